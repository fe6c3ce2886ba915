// persistence/gorm_postgresql.go
package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"github.com/wfunc/skullscore/logger"
	"github.com/wfunc/skullscore/models"
)

// PostgreSQL error codes
const (
	pqUniqueViolation     = "23505"
	pqForeignKeyViolation = "23503"
)

// GormPostgreSQL 使用GORM的PostgreSQL实现
type GormPostgreSQL struct {
	db *gorm.DB
}

// NewGormPostgreSQL 创建GORM PostgreSQL数据库连接
func NewGormPostgreSQL(host string, port int, user, password, dbname string) (*GormPostgreSQL, error) {
	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		host, port, user, password, dbname)
	return OpenGormPostgreSQL(dsn)
}

// OpenGormPostgreSQL connects through lib/pq with a libpq style DSN.
func OpenGormPostgreSQL(dsn string) (*GormPostgreSQL, error) {
	sqlDB, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}

	// 设置连接池
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)
	sqlDB.SetConnMaxLifetime(time.Hour)

	// 配置GORM日志
	gormLog := gormlogger.New(
		zap.NewStdLog(logger.Log.Desugar()),
		gormlogger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)

	db, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{
		Logger: gormLog,
	})
	if err != nil {
		_ = sqlDB.Close()
		return nil, err
	}

	// 自动迁移表结构
	if err := autoMigrate(db); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("auto migrate: %w", err)
	}

	return &GormPostgreSQL{db: db}, nil
}

// autoMigrate 自动迁移表结构
func autoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.GormPlayer{},
		&models.GormGroup{},
		&models.GormGroupMember{},
		&models.GormGame{},
		&models.GormGamePlayer{},
		&models.GormTurn{},
		&models.GormTurnResult{},
	)
}

// Close 关闭数据库连接
func (p *GormPostgreSQL) Close() error {
	sqlDB, err := p.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (p *GormPostgreSQL) Ping(ctx context.Context) error {
	sqlDB, err := p.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// --- players ---

func (p *GormPostgreSQL) CreatePlayer(ctx context.Context, name string) (models.Player, error) {
	name = strings.TrimSpace(name)
	row := models.GormPlayer{
		Name:      name,
		NameKey:   NameKey(name),
		CreatedAt: time.Now().UTC().Truncate(time.Millisecond),
	}
	if err := p.db.WithContext(ctx).Create(&row).Error; err != nil {
		return models.Player{}, translatePostgresError("create player", err)
	}
	return toPlayer(row), nil
}

func (p *GormPostgreSQL) GetPlayer(ctx context.Context, id int64) (models.Player, error) {
	var row models.GormPlayer
	if err := p.db.WithContext(ctx).First(&row, id).Error; err != nil {
		return models.Player{}, gormNotFound(err)
	}
	return toPlayer(row), nil
}

func (p *GormPostgreSQL) FindPlayerByName(ctx context.Context, name string) (models.Player, error) {
	var row models.GormPlayer
	if err := p.db.WithContext(ctx).Where("name_key = ?", NameKey(name)).First(&row).Error; err != nil {
		return models.Player{}, gormNotFound(err)
	}
	return toPlayer(row), nil
}

func (p *GormPostgreSQL) ListPlayers(ctx context.Context) ([]models.Player, error) {
	var rows []models.GormPlayer
	if err := p.db.WithContext(ctx).Order("id").Find(&rows).Error; err != nil {
		return nil, err
	}
	players := make([]models.Player, 0, len(rows))
	for _, row := range rows {
		players = append(players, toPlayer(row))
	}
	return players, nil
}

func (p *GormPostgreSQL) UpdatePlayerName(ctx context.Context, id int64, name string) error {
	name = strings.TrimSpace(name)
	result := p.db.WithContext(ctx).Model(&models.GormPlayer{}).Where("id = ?", id).
		Updates(map[string]any{"name": name, "name_key": NameKey(name)})
	if result.Error != nil {
		return translatePostgresError("update player", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrRecordNotFound
	}
	return nil
}

func (p *GormPostgreSQL) DeletePlayer(ctx context.Context, id int64) error {
	result := p.db.WithContext(ctx).Delete(&models.GormPlayer{}, id)
	if result.Error != nil {
		return translatePostgresError("delete player", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrRecordNotFound
	}
	return nil
}

func (p *GormPostgreSQL) CountPlayerGames(ctx context.Context, playerID int64) (int, error) {
	var count int64
	err := p.db.WithContext(ctx).Model(&models.GormGamePlayer{}).
		Where("player_id = ?", playerID).Count(&count).Error
	return int(count), err
}

// --- groups ---

func (p *GormPostgreSQL) CreateGroup(ctx context.Context, name string) (models.Group, error) {
	row := models.GormGroup{Name: strings.TrimSpace(name)}
	if err := p.db.WithContext(ctx).Create(&row).Error; err != nil {
		return models.Group{}, translatePostgresError("create group", err)
	}
	return models.Group{ID: row.ID, Name: row.Name}, nil
}

func (p *GormPostgreSQL) GetGroup(ctx context.Context, id int64) (models.Group, error) {
	var row models.GormGroup
	if err := p.db.WithContext(ctx).First(&row, id).Error; err != nil {
		return models.Group{}, gormNotFound(err)
	}
	return models.Group{ID: row.ID, Name: row.Name}, nil
}

func (p *GormPostgreSQL) FindGroupByName(ctx context.Context, name string) (models.Group, error) {
	var row models.GormGroup
	if err := p.db.WithContext(ctx).Where("name = ?", strings.TrimSpace(name)).First(&row).Error; err != nil {
		return models.Group{}, gormNotFound(err)
	}
	return models.Group{ID: row.ID, Name: row.Name}, nil
}

func (p *GormPostgreSQL) ListGroups(ctx context.Context) ([]models.Group, error) {
	var groups []models.Group
	err := p.db.WithContext(ctx).Model(&models.GormGroup{}).
		Select("id, name").Order("name").Scan(&groups).Error
	return groups, err
}

func (p *GormPostgreSQL) DeleteGroup(ctx context.Context, id int64) error {
	result := p.db.WithContext(ctx).Delete(&models.GormGroup{}, id)
	if result.Error != nil {
		return translatePostgresError("delete group", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrRecordNotFound
	}
	return nil
}

func (p *GormPostgreSQL) AddPlayerToGroup(ctx context.Context, playerID, groupID int64) error {
	row := models.GormGroupMember{PlayerID: playerID, GroupID: groupID}
	err := p.db.WithContext(ctx).Omit(clause.Associations).
		Clauses(clause.OnConflict{DoNothing: true}).Create(&row).Error
	if err != nil {
		return pqMissingReference("add player to group", err)
	}
	return nil
}

func (p *GormPostgreSQL) RemovePlayerFromGroup(ctx context.Context, playerID, groupID int64) error {
	return p.db.WithContext(ctx).
		Where("player_id = ? AND group_id = ?", playerID, groupID).
		Delete(&models.GormGroupMember{}).Error
}

func (p *GormPostgreSQL) ListPlayerGroups(ctx context.Context, playerID int64) ([]models.Group, error) {
	var groups []models.Group
	err := p.db.WithContext(ctx).Table("player_groups AS g").
		Select("g.id, g.name").
		Joins("INNER JOIN group_members m ON m.group_id = g.id").
		Where("m.player_id = ?", playerID).
		Order("g.name").
		Scan(&groups).Error
	return groups, err
}

func (p *GormPostgreSQL) CountGroupMembers(ctx context.Context, groupID int64) (int, error) {
	var count int64
	err := p.db.WithContext(ctx).Model(&models.GormGroupMember{}).
		Where("group_id = ?", groupID).Count(&count).Error
	return int(count), err
}

// --- games ---

func (p *GormPostgreSQL) CreateGame(ctx context.Context, game models.Game, playerIDs []int64) (models.Game, error) {
	if game.StartDate.IsZero() {
		game.StartDate = time.Now()
	}
	game.StartDate = game.StartDate.UTC().Truncate(time.Millisecond)
	if game.CurrentTurnNumber == 0 {
		game.CurrentTurnNumber = 1
	}

	err := p.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		row := models.GormGame{
			StartDate:         game.StartDate,
			CurrentTurnNumber: game.CurrentTurnNumber,
			Ended:             game.Ended,
		}
		if err := tx.Create(&row).Error; err != nil {
			return translatePostgresError("create game", err)
		}
		game.ID = row.ID

		seats := make([]models.GormGamePlayer, 0, len(playerIDs))
		for position, playerID := range playerIDs {
			seats = append(seats, models.GormGamePlayer{GameID: row.ID, PlayerID: playerID, Position: position})
		}
		if len(seats) > 0 {
			if err := tx.Omit(clause.Associations).Create(&seats).Error; err != nil {
				return pqMissingReference("seat players", err)
			}
		}

		for number := 1; number <= models.RoundCount; number++ {
			turn := models.GormTurn{GameID: row.ID, Number: number}
			if err := tx.Omit(clause.Associations).Create(&turn).Error; err != nil {
				return translatePostgresError("create turn", err)
			}
			results := make([]models.GormTurnResult, 0, len(playerIDs))
			for _, playerID := range playerIDs {
				results = append(results, models.GormTurnResult{TurnID: turn.ID, PlayerID: playerID})
			}
			if len(results) > 0 {
				if err := tx.Omit(clause.Associations).Create(&results).Error; err != nil {
					return pqMissingReference("create turn results", err)
				}
			}
		}
		return nil
	})
	if err != nil {
		return models.Game{}, err
	}
	return game, nil
}

func (p *GormPostgreSQL) GetGame(ctx context.Context, id int64) (models.Game, error) {
	var row models.GormGame
	if err := p.db.WithContext(ctx).First(&row, id).Error; err != nil {
		return models.Game{}, gormNotFound(err)
	}
	return toGame(row), nil
}

func (p *GormPostgreSQL) ListGames(ctx context.Context) ([]models.Game, error) {
	var rows []models.GormGame
	if err := p.db.WithContext(ctx).Order("start_date DESC").Find(&rows).Error; err != nil {
		return nil, err
	}
	games := make([]models.Game, 0, len(rows))
	for _, row := range rows {
		games = append(games, toGame(row))
	}
	return games, nil
}

func (p *GormPostgreSQL) CountGames(ctx context.Context) (int, error) {
	var count int64
	err := p.db.WithContext(ctx).Model(&models.GormGame{}).Count(&count).Error
	return int(count), err
}

func (p *GormPostgreSQL) UpdateGame(ctx context.Context, game models.Game) error {
	result := p.db.WithContext(ctx).Model(&models.GormGame{}).Where("id = ?", game.ID).
		Updates(map[string]any{
			"current_turn_number": game.CurrentTurnNumber,
			"ended":               game.Ended,
		})
	if result.Error != nil {
		return translatePostgresError("update game", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrRecordNotFound
	}
	return nil
}

func (p *GormPostgreSQL) DeleteGame(ctx context.Context, id int64) error {
	result := p.db.WithContext(ctx).Delete(&models.GormGame{}, id)
	if result.Error != nil {
		return translatePostgresError("delete game", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrRecordNotFound
	}
	return nil
}

type gamePlayerRow struct {
	ID        int64
	Name      string
	CreatedAt time.Time
	Position  int
}

func (p *GormPostgreSQL) ListGamePlayers(ctx context.Context, gameID int64) ([]models.GamePlayer, error) {
	var rows []gamePlayerRow
	err := p.db.WithContext(ctx).Table("game_players AS gp").
		Select("p.id, p.name, p.created_at, gp.position").
		Joins("INNER JOIN players p ON p.id = gp.player_id").
		Where("gp.game_id = ?", gameID).
		Order("gp.position").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	players := make([]models.GamePlayer, 0, len(rows))
	for _, row := range rows {
		players = append(players, models.GamePlayer{
			Player:   models.Player{ID: row.ID, Name: row.Name, CreatedAt: row.CreatedAt.UTC()},
			Position: row.Position,
		})
	}
	return players, nil
}

// --- turns ---

func (p *GormPostgreSQL) GetTurn(ctx context.Context, id int64) (models.Turn, error) {
	var row models.GormTurn
	if err := p.db.WithContext(ctx).First(&row, id).Error; err != nil {
		return models.Turn{}, gormNotFound(err)
	}
	return p.loadTurn(ctx, row)
}

func (p *GormPostgreSQL) GetTurnByNumber(ctx context.Context, gameID int64, number int) (models.Turn, error) {
	var row models.GormTurn
	err := p.db.WithContext(ctx).Where("game_id = ? AND number = ?", gameID, number).First(&row).Error
	if err != nil {
		return models.Turn{}, gormNotFound(err)
	}
	return p.loadTurn(ctx, row)
}

func (p *GormPostgreSQL) loadTurn(ctx context.Context, row models.GormTurn) (models.Turn, error) {
	var results []models.GormTurnResult
	err := p.db.WithContext(ctx).Where("turn_id = ?", row.ID).Order("player_id").Find(&results).Error
	if err != nil {
		return models.Turn{}, err
	}
	turn := models.Turn{ID: row.ID, GameID: row.GameID, Number: row.Number}
	for _, r := range results {
		turn.Results = append(turn.Results, toTurnResult(r))
	}
	return turn, nil
}

func (p *GormPostgreSQL) ListTurns(ctx context.Context, gameID int64) ([]models.Turn, error) {
	var rows []models.GormTurn
	if err := p.db.WithContext(ctx).Where("game_id = ?", gameID).Order("number").Find(&rows).Error; err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}

	turnIDs := make([]int64, 0, len(rows))
	index := make(map[int64]int, len(rows))
	turns := make([]models.Turn, 0, len(rows))
	for i, row := range rows {
		turnIDs = append(turnIDs, row.ID)
		index[row.ID] = i
		turns = append(turns, models.Turn{ID: row.ID, GameID: row.GameID, Number: row.Number})
	}

	var results []models.GormTurnResult
	err := p.db.WithContext(ctx).Where("turn_id IN ?", turnIDs).
		Order("turn_id, player_id").Find(&results).Error
	if err != nil {
		return nil, err
	}
	for _, r := range results {
		i := index[r.TurnID]
		turns[i].Results = append(turns[i].Results, toTurnResult(r))
	}
	return turns, nil
}

func (p *GormPostgreSQL) UpdateTurnResults(ctx context.Context, turnID int64, results []models.TurnResult) error {
	return p.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, r := range results {
			result := tx.Model(&models.GormTurnResult{}).
				Where("turn_id = ? AND player_id = ?", turnID, r.PlayerID).
				Updates(map[string]any{
					"declaration":    r.Declaration,
					"result":         r.Result,
					"has_skull_king": r.HasSkullKing,
					"pirate_count":   r.PirateCount,
					"has_mermaid":    r.HasMermaid,
				})
			if result.Error != nil {
				return translatePostgresError("update turn result", result.Error)
			}
			if result.RowsAffected == 0 {
				return fmt.Errorf("update result of player %d: %w", r.PlayerID, ErrRecordNotFound)
			}
		}
		return nil
	})
}

// --- conversion helpers ---

func toPlayer(row models.GormPlayer) models.Player {
	return models.Player{ID: row.ID, Name: row.Name, CreatedAt: row.CreatedAt.UTC()}
}

func toGame(row models.GormGame) models.Game {
	return models.Game{
		ID:                row.ID,
		StartDate:         row.StartDate.UTC(),
		CurrentTurnNumber: row.CurrentTurnNumber,
		Ended:             row.Ended,
	}
}

func toTurnResult(row models.GormTurnResult) models.TurnResult {
	return models.TurnResult{
		TurnID:       row.TurnID,
		PlayerID:     row.PlayerID,
		Declaration:  row.Declaration,
		Result:       row.Result,
		HasSkullKing: row.HasSkullKing,
		PirateCount:  row.PirateCount,
		HasMermaid:   row.HasMermaid,
	}
}

func gormNotFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrRecordNotFound
	}
	return err
}

func pqMissingReference(op string, err error) error {
	err = translatePostgresError(op, err)
	if errors.Is(err, ErrInUse) {
		return fmt.Errorf("%s: %w", op, ErrRecordNotFound)
	}
	return err
}

func translatePostgresError(op string, err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch string(pqErr.Code) {
		case pqUniqueViolation:
			return fmt.Errorf("%s: %w", op, ErrAlreadyExists)
		case pqForeignKeyViolation:
			return fmt.Errorf("%s: %w", op, ErrInUse)
		}
	}
	return fmt.Errorf("%s: %w", op, err)
}
