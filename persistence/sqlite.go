// persistence/sqlite.go
package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/wfunc/skullscore/models"
	"github.com/wfunc/skullscore/persistence/migrations"
	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"
)

// SQLite 嵌入式存储，默认后端
type SQLite struct {
	db *sql.DB
}

// querier is satisfied by *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

// OpenSQLite opens (creating when needed) the database at path and applies
// the embedded migrations.
func OpenSQLite(path string) (*SQLite, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	cleanPath := filepath.Clean(path)
	if dir := filepath.Dir(cleanPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create storage dir: %w", err)
		}
	}

	dsn := "file:" + cleanPath + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// 单写者
	db.SetMaxOpenConns(1)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := applyMigrations(ctx, db, migrations.FS); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &SQLite{db: db}, nil
}

// Close 关闭数据库连接
func (s *SQLite) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *SQLite) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// transaction runs fn in a transaction, rolling back when fn fails.
func (s *SQLite) transaction(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

// --- players ---

func (s *SQLite) CreatePlayer(ctx context.Context, name string) (models.Player, error) {
	if err := ctx.Err(); err != nil {
		return models.Player{}, err
	}
	name = strings.TrimSpace(name)
	now := time.Now().UTC()

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO players (name, name_key, created_at) VALUES (?, ?, ?)`,
		name, NameKey(name), toMillis(now),
	)
	if err != nil {
		return models.Player{}, translateSQLiteError("create player", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return models.Player{}, fmt.Errorf("create player: %w", err)
	}
	return models.Player{ID: id, Name: name, CreatedAt: fromMillis(toMillis(now))}, nil
}

func (s *SQLite) GetPlayer(ctx context.Context, id int64) (models.Player, error) {
	return scanPlayer(s.db.QueryRowContext(ctx,
		`SELECT id, name, created_at FROM players WHERE id = ?`, id))
}

func (s *SQLite) FindPlayerByName(ctx context.Context, name string) (models.Player, error) {
	return scanPlayer(s.db.QueryRowContext(ctx,
		`SELECT id, name, created_at FROM players WHERE name_key = ?`, NameKey(name)))
}

func (s *SQLite) ListPlayers(ctx context.Context) ([]models.Player, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, created_at FROM players ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list players: %w", err)
	}
	defer rows.Close()

	var players []models.Player
	for rows.Next() {
		p, err := scanPlayer(rows)
		if err != nil {
			return nil, err
		}
		players = append(players, p)
	}
	return players, rows.Err()
}

func (s *SQLite) UpdatePlayerName(ctx context.Context, id int64, name string) error {
	name = strings.TrimSpace(name)
	res, err := s.db.ExecContext(ctx,
		`UPDATE players SET name = ?, name_key = ? WHERE id = ?`, name, NameKey(name), id)
	if err != nil {
		return translateSQLiteError("update player", err)
	}
	return requireAffected(res)
}

func (s *SQLite) DeletePlayer(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM players WHERE id = ?`, id)
	if err != nil {
		return translateSQLiteError("delete player", err)
	}
	return requireAffected(res)
}

func (s *SQLite) CountPlayerGames(ctx context.Context, playerID int64) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM game_players WHERE player_id = ?`, playerID).Scan(&count)
	return count, err
}

// --- groups ---

func (s *SQLite) CreateGroup(ctx context.Context, name string) (models.Group, error) {
	name = strings.TrimSpace(name)
	res, err := s.db.ExecContext(ctx, `INSERT INTO player_groups (name) VALUES (?)`, name)
	if err != nil {
		return models.Group{}, translateSQLiteError("create group", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return models.Group{}, fmt.Errorf("create group: %w", err)
	}
	return models.Group{ID: id, Name: name}, nil
}

func (s *SQLite) GetGroup(ctx context.Context, id int64) (models.Group, error) {
	return scanGroup(s.db.QueryRowContext(ctx, `SELECT id, name FROM player_groups WHERE id = ?`, id))
}

func (s *SQLite) FindGroupByName(ctx context.Context, name string) (models.Group, error) {
	return scanGroup(s.db.QueryRowContext(ctx,
		`SELECT id, name FROM player_groups WHERE name = ?`, strings.TrimSpace(name)))
}

func (s *SQLite) ListGroups(ctx context.Context) ([]models.Group, error) {
	return queryGroups(ctx, s.db, `SELECT id, name FROM player_groups ORDER BY name`)
}

func (s *SQLite) DeleteGroup(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM player_groups WHERE id = ?`, id)
	if err != nil {
		return translateSQLiteError("delete group", err)
	}
	return requireAffected(res)
}

func (s *SQLite) AddPlayerToGroup(ctx context.Context, playerID, groupID int64) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO group_members (player_id, group_id) VALUES (?, ?) ON CONFLICT DO NOTHING`,
		playerID, groupID)
	if err != nil {
		err = translateSQLiteError("add player to group", err)
		if errors.Is(err, ErrInUse) {
			return fmt.Errorf("add player to group: %w", ErrRecordNotFound)
		}
		return err
	}
	return nil
}

func (s *SQLite) RemovePlayerFromGroup(ctx context.Context, playerID, groupID int64) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM group_members WHERE player_id = ? AND group_id = ?`, playerID, groupID)
	return err
}

func (s *SQLite) ListPlayerGroups(ctx context.Context, playerID int64) ([]models.Group, error) {
	return queryGroups(ctx, s.db, `
        SELECT g.id, g.name FROM player_groups g
        INNER JOIN group_members m ON m.group_id = g.id
        WHERE m.player_id = ?
        ORDER BY g.name`, playerID)
}

func (s *SQLite) CountGroupMembers(ctx context.Context, groupID int64) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM group_members WHERE group_id = ?`, groupID).Scan(&count)
	return count, err
}

// --- games ---

func (s *SQLite) CreateGame(ctx context.Context, game models.Game, playerIDs []int64) (models.Game, error) {
	if err := ctx.Err(); err != nil {
		return models.Game{}, err
	}
	if game.StartDate.IsZero() {
		game.StartDate = time.Now()
	}
	game.StartDate = fromMillis(toMillis(game.StartDate))
	if game.CurrentTurnNumber == 0 {
		game.CurrentTurnNumber = 1
	}

	err := s.transaction(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`INSERT INTO games (start_date, current_turn_number, ended) VALUES (?, ?, ?)`,
			toMillis(game.StartDate), game.CurrentTurnNumber, game.Ended)
		if err != nil {
			return translateSQLiteError("create game", err)
		}
		if game.ID, err = res.LastInsertId(); err != nil {
			return fmt.Errorf("create game: %w", err)
		}

		for position, playerID := range playerIDs {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO game_players (game_id, player_id, position) VALUES (?, ?, ?)`,
				game.ID, playerID, position); err != nil {
				return missingReference("seat player", err)
			}
		}

		for number := 1; number <= models.RoundCount; number++ {
			res, err := tx.ExecContext(ctx,
				`INSERT INTO turns (game_id, number) VALUES (?, ?)`, game.ID, number)
			if err != nil {
				return translateSQLiteError("create turn", err)
			}
			turnID, err := res.LastInsertId()
			if err != nil {
				return fmt.Errorf("create turn: %w", err)
			}
			for _, playerID := range playerIDs {
				if _, err := tx.ExecContext(ctx,
					`INSERT INTO turn_results (turn_id, player_id) VALUES (?, ?)`,
					turnID, playerID); err != nil {
					return missingReference("create turn result", err)
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

func (s *SQLite) GetGame(ctx context.Context, id int64) (models.Game, error) {
	return scanGame(s.db.QueryRowContext(ctx,
		`SELECT id, start_date, current_turn_number, ended FROM games WHERE id = ?`, id))
}

func (s *SQLite) ListGames(ctx context.Context) ([]models.Game, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, start_date, current_turn_number, ended FROM games ORDER BY start_date DESC`)
	if err != nil {
		return nil, fmt.Errorf("list games: %w", err)
	}
	defer rows.Close()

	var games []models.Game
	for rows.Next() {
		g, err := scanGame(rows)
		if err != nil {
			return nil, err
		}
		games = append(games, g)
	}
	return games, rows.Err()
}

func (s *SQLite) CountGames(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM games`).Scan(&count)
	return count, err
}

func (s *SQLite) UpdateGame(ctx context.Context, game models.Game) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE games SET current_turn_number = ?, ended = ? WHERE id = ?`,
		game.CurrentTurnNumber, game.Ended, game.ID)
	if err != nil {
		return translateSQLiteError("update game", err)
	}
	return requireAffected(res)
}

func (s *SQLite) DeleteGame(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM games WHERE id = ?`, id)
	if err != nil {
		return translateSQLiteError("delete game", err)
	}
	return requireAffected(res)
}

func (s *SQLite) ListGamePlayers(ctx context.Context, gameID int64) ([]models.GamePlayer, error) {
	rows, err := s.db.QueryContext(ctx, `
        SELECT p.id, p.name, p.created_at, gp.position
        FROM game_players gp
        INNER JOIN players p ON p.id = gp.player_id
        WHERE gp.game_id = ?
        ORDER BY gp.position`, gameID)
	if err != nil {
		return nil, fmt.Errorf("list game players: %w", err)
	}
	defer rows.Close()

	var players []models.GamePlayer
	for rows.Next() {
		var (
			gp        models.GamePlayer
			createdAt int64
		)
		if err := rows.Scan(&gp.Player.ID, &gp.Player.Name, &createdAt, &gp.Position); err != nil {
			return nil, err
		}
		gp.Player.CreatedAt = fromMillis(createdAt)
		players = append(players, gp)
	}
	return players, rows.Err()
}

// --- turns ---

func (s *SQLite) GetTurn(ctx context.Context, id int64) (models.Turn, error) {
	var turn models.Turn
	err := s.db.QueryRowContext(ctx,
		`SELECT id, game_id, number FROM turns WHERE id = ?`, id).
		Scan(&turn.ID, &turn.GameID, &turn.Number)
	if err != nil {
		return models.Turn{}, notFound(err)
	}
	turn.Results, err = queryResults(ctx, s.db, `WHERE r.turn_id = ?`, id)
	return turn, err
}

func (s *SQLite) GetTurnByNumber(ctx context.Context, gameID int64, number int) (models.Turn, error) {
	var turn models.Turn
	err := s.db.QueryRowContext(ctx,
		`SELECT id, game_id, number FROM turns WHERE game_id = ? AND number = ?`, gameID, number).
		Scan(&turn.ID, &turn.GameID, &turn.Number)
	if err != nil {
		return models.Turn{}, notFound(err)
	}
	turn.Results, err = queryResults(ctx, s.db, `WHERE r.turn_id = ?`, turn.ID)
	return turn, err
}

func (s *SQLite) ListTurns(ctx context.Context, gameID int64) ([]models.Turn, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, game_id, number FROM turns WHERE game_id = ? ORDER BY number`, gameID)
	if err != nil {
		return nil, fmt.Errorf("list turns: %w", err)
	}
	var turns []models.Turn
	index := make(map[int64]int)
	for rows.Next() {
		var turn models.Turn
		if err := rows.Scan(&turn.ID, &turn.GameID, &turn.Number); err != nil {
			rows.Close()
			return nil, err
		}
		index[turn.ID] = len(turns)
		turns = append(turns, turn)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	results, err := queryResults(ctx, s.db,
		`INNER JOIN turns t ON t.id = r.turn_id WHERE t.game_id = ?`, gameID)
	if err != nil {
		return nil, err
	}
	for _, r := range results {
		if i, ok := index[r.TurnID]; ok {
			turns[i].Results = append(turns[i].Results, r)
		}
	}
	return turns, nil
}

func (s *SQLite) UpdateTurnResults(ctx context.Context, turnID int64, results []models.TurnResult) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.transaction(ctx, func(tx *sql.Tx) error {
		for _, r := range results {
			res, err := tx.ExecContext(ctx, `
                UPDATE turn_results
                SET declaration = ?, result = ?, has_skull_king = ?, pirate_count = ?, has_mermaid = ?
                WHERE turn_id = ? AND player_id = ?`,
				nullInt(r.Declaration), nullInt(r.Result), nullBool(r.HasSkullKing),
				nullInt(r.PirateCount), nullBool(r.HasMermaid), turnID, r.PlayerID)
			if err != nil {
				return translateSQLiteError("update turn result", err)
			}
			if err := requireAffected(res); err != nil {
				return fmt.Errorf("update result of player %d: %w", r.PlayerID, err)
			}
		}
		return nil
	})
}

// --- scanning helpers ---

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPlayer(row rowScanner) (models.Player, error) {
	var (
		p         models.Player
		createdAt int64
	)
	if err := row.Scan(&p.ID, &p.Name, &createdAt); err != nil {
		return models.Player{}, notFound(err)
	}
	p.CreatedAt = fromMillis(createdAt)
	return p, nil
}

func scanGroup(row rowScanner) (models.Group, error) {
	var g models.Group
	if err := row.Scan(&g.ID, &g.Name); err != nil {
		return models.Group{}, notFound(err)
	}
	return g, nil
}

func scanGame(row rowScanner) (models.Game, error) {
	var (
		g         models.Game
		startDate int64
	)
	if err := row.Scan(&g.ID, &startDate, &g.CurrentTurnNumber, &g.Ended); err != nil {
		return models.Game{}, notFound(err)
	}
	g.StartDate = fromMillis(startDate)
	return g, nil
}

func queryGroups(ctx context.Context, q querier, query string, args ...any) ([]models.Group, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list groups: %w", err)
	}
	defer rows.Close()

	var groups []models.Group
	for rows.Next() {
		g, err := scanGroup(rows)
		if err != nil {
			return nil, err
		}
		groups = append(groups, g)
	}
	return groups, rows.Err()
}

func queryResults(ctx context.Context, q querier, where string, args ...any) ([]models.TurnResult, error) {
	rows, err := q.QueryContext(ctx, `
        SELECT r.turn_id, r.player_id, r.declaration, r.result, r.has_skull_king, r.pirate_count, r.has_mermaid
        FROM turn_results r `+where+`
        ORDER BY r.turn_id, r.player_id`, args...)
	if err != nil {
		return nil, fmt.Errorf("list turn results: %w", err)
	}
	defer rows.Close()

	var results []models.TurnResult
	for rows.Next() {
		var (
			r                           models.TurnResult
			declaration, result, pirate sql.NullInt64
			skullKing, mermaid          sql.NullBool
		)
		if err := rows.Scan(&r.TurnID, &r.PlayerID, &declaration, &result, &skullKing, &pirate, &mermaid); err != nil {
			return nil, err
		}
		r.Declaration = intPtr(declaration)
		r.Result = intPtr(result)
		r.PirateCount = intPtr(pirate)
		r.HasSkullKing = boolPtr(skullKing)
		r.HasMermaid = boolPtr(mermaid)
		results = append(results, r)
	}
	return results, rows.Err()
}

func nullInt(v *int) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*v), Valid: true}
}

func nullBool(v *bool) sql.NullBool {
	if v == nil {
		return sql.NullBool{}
	}
	return sql.NullBool{Bool: *v, Valid: true}
}

func intPtr(v sql.NullInt64) *int {
	if !v.Valid {
		return nil
	}
	i := int(v.Int64)
	return &i
}

func boolPtr(v sql.NullBool) *bool {
	if !v.Valid {
		return nil
	}
	b := v.Bool
	return &b
}

// --- error helpers ---

func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return ErrRecordNotFound
	}
	return err
}

func requireAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrRecordNotFound
	}
	return nil
}

// missingReference maps a foreign key failure on insert to ErrRecordNotFound.
func missingReference(op string, err error) error {
	err = translateSQLiteError(op, err)
	if errors.Is(err, ErrInUse) {
		return fmt.Errorf("%s: %w", op, ErrRecordNotFound)
	}
	return err
}

func translateSQLiteError(op string, err error) error {
	if err == nil {
		return nil
	}
	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3lib.SQLITE_CONSTRAINT_UNIQUE:
			return fmt.Errorf("%s: %w", op, ErrAlreadyExists)
		case sqlite3lib.SQLITE_CONSTRAINT_FOREIGNKEY:
			return fmt.Errorf("%s: %w", op, ErrInUse)
		}
	}
	message := strings.ToLower(err.Error())
	switch {
	case strings.Contains(message, "unique constraint failed"):
		return fmt.Errorf("%s: %w", op, ErrAlreadyExists)
	case strings.Contains(message, "foreign key constraint failed"):
		return fmt.Errorf("%s: %w", op, ErrInUse)
	}
	return fmt.Errorf("%s: %w", op, err)
}
