package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/wfunc/skullscore/cache"
	"github.com/wfunc/skullscore/config"
	"github.com/wfunc/skullscore/logger"
	"github.com/wfunc/skullscore/persistence"
	"github.com/wfunc/skullscore/server"
)

func openStore(cfg *config.Config) (persistence.Store, error) {
	switch cfg.Database.Driver {
	case "postgres":
		return persistence.NewGormPostgreSQL(
			cfg.Database.Postgres.Host,
			cfg.Database.Postgres.Port,
			cfg.Database.Postgres.User,
			cfg.Database.Postgres.Password,
			cfg.Database.Postgres.DBName,
		)
	default:
		return persistence.OpenSQLite(cfg.Database.SQLite.Path)
	}
}

func openCache(cfg *config.Config) cache.Cache {
	redisCfg := cfg.Cache.Redis
	if !redisCfg.Enabled {
		return cache.NewMemory(redisCfg.TTL)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	r, err := cache.NewRedis(ctx, redisCfg.Addr, redisCfg.Password, redisCfg.DB, redisCfg.TTL)
	if err != nil {
		logger.Log.Warnf("Redis unavailable, using in-memory cache: %v", err)
		return cache.NewMemory(redisCfg.TTL)
	}
	logger.Log.Infof("Scoreboard cache on redis %s", redisCfg.Addr)
	return r
}

func main() {
	// Load configuration
	cfg, err := config.LoadConfig(".")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	if err := logger.Init(cfg.Log.Level, cfg.Log.Development); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	// Initialize Database
	store, err := openStore(cfg)
	if err != nil {
		logger.Log.Fatalf("Failed to connect to database: %v", err)
	}
	defer store.Close()
	logger.Log.Infof("Database connection successful (%s).", cfg.Database.Driver)

	scoreCache := openCache(cfg)
	if closer, ok := scoreCache.(interface{ Close() error }); ok {
		defer closer.Close()
	}

	gameServer, err := server.NewGameServer(cfg, store, scoreCache)
	if err != nil {
		logger.Log.Fatalf("Failed to create server: %v", err)
	}

	errChan := make(chan error, 1)
	go func() {
		errChan <- gameServer.Start()
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-stop:
		logger.Log.Infof("Received %s, shutting down.", sig)
	case err := <-errChan:
		if err != nil {
			logger.Log.Errorf("Server error: %v", err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := gameServer.Shutdown(ctx); err != nil {
		logger.Log.Errorf("Shutdown error: %v", err)
	}
	logger.Log.Info("Server stopped.")
}
