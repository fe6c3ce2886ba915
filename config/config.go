package config

import (
	"errors"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Cache    CacheConfig    `mapstructure:"cache"`
	Rules    RulesConfig    `mapstructure:"rules"`
	Table    TableConfig    `mapstructure:"table"`
	Log      LogConfig      `mapstructure:"log"`
}

type ServerConfig struct {
	HTTPAddress    string `mapstructure:"http_address"`
	RPCAddress     string `mapstructure:"rpc_address"`
	GRPCAddress    string `mapstructure:"grpc_address"`
	MetricsAddress string `mapstructure:"metrics_address"`
}

type DatabaseConfig struct {
	// Driver 可选 sqlite 或 postgres
	Driver   string         `mapstructure:"driver"`
	SQLite   SQLiteConfig   `mapstructure:"sqlite"`
	Postgres PostgresConfig `mapstructure:"postgres"`
}

type SQLiteConfig struct {
	Path string `mapstructure:"path"`
}

type PostgresConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
}

type CacheConfig struct {
	Redis RedisConfig `mapstructure:"redis"`
}

type RedisConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	TTL      time.Duration `mapstructure:"ttl"`
}

// RulesConfig holds the table rules the services enforce.
type RulesConfig struct {
	Locale     string `mapstructure:"locale"`
	MinPlayers int    `mapstructure:"min_players"`
	MaxPlayers int    `mapstructure:"max_players"`
}

type TableConfig struct {
	IdleTimeout time.Duration `mapstructure:"idle_timeout"`
}

type LogConfig struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.http_address", ":8080")
	v.SetDefault("server.rpc_address", ":8081")
	v.SetDefault("server.grpc_address", ":8082")
	v.SetDefault("server.metrics_address", "")

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.sqlite.path", "data/skullscore.db")
	v.SetDefault("database.postgres.host", "localhost")
	v.SetDefault("database.postgres.port", 5432)
	v.SetDefault("database.postgres.user", "skullscore")
	v.SetDefault("database.postgres.password", "")
	v.SetDefault("database.postgres.dbname", "skullscore")

	v.SetDefault("cache.redis.enabled", false)
	v.SetDefault("cache.redis.addr", "localhost:6379")
	v.SetDefault("cache.redis.db", 0)
	v.SetDefault("cache.redis.ttl", 2*time.Hour)

	v.SetDefault("rules.locale", "en")
	v.SetDefault("rules.min_players", 2)
	v.SetDefault("rules.max_players", 6)

	v.SetDefault("table.idle_timeout", 10*time.Minute)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.development", false)
}

// LoadConfig reads config.yaml from path when it exists. Missing files fall back
// to defaults; SKULLSCORE_* environment variables override both.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	v.AddConfigPath(path)
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	v.SetEnvPrefix("skullscore")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects settings the services cannot run with.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "sqlite":
		if strings.TrimSpace(c.Database.SQLite.Path) == "" {
			return errors.New("database.sqlite.path is required")
		}
	case "postgres":
	default:
		return errors.New("database.driver must be sqlite or postgres")
	}
	if c.Rules.MinPlayers < 1 {
		return errors.New("rules.min_players must be at least 1")
	}
	if c.Rules.MaxPlayers < c.Rules.MinPlayers {
		return errors.New("rules.max_players must be greater than or equal to rules.min_players")
	}
	return nil
}
