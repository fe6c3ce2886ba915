// persistence/interface.go
package persistence

import (
	"context"
	"errors"

	"github.com/wfunc/skullscore/models"
)

// Store 持久化接口. Multi-row writes (CreateGame, UpdateTurnResults) are atomic.
type Store interface {
	CreatePlayer(ctx context.Context, name string) (models.Player, error)
	GetPlayer(ctx context.Context, id int64) (models.Player, error)
	FindPlayerByName(ctx context.Context, name string) (models.Player, error)
	ListPlayers(ctx context.Context) ([]models.Player, error)
	UpdatePlayerName(ctx context.Context, id int64, name string) error
	DeletePlayer(ctx context.Context, id int64) error
	CountPlayerGames(ctx context.Context, playerID int64) (int, error)

	CreateGroup(ctx context.Context, name string) (models.Group, error)
	GetGroup(ctx context.Context, id int64) (models.Group, error)
	FindGroupByName(ctx context.Context, name string) (models.Group, error)
	ListGroups(ctx context.Context) ([]models.Group, error)
	DeleteGroup(ctx context.Context, id int64) error
	AddPlayerToGroup(ctx context.Context, playerID, groupID int64) error
	RemovePlayerFromGroup(ctx context.Context, playerID, groupID int64) error
	ListPlayerGroups(ctx context.Context, playerID int64) ([]models.Group, error)
	CountGroupMembers(ctx context.Context, groupID int64) (int, error)

	// CreateGame inserts the game, its seating in playerIDs order, RoundCount
	// turns and one empty result per player and turn.
	CreateGame(ctx context.Context, game models.Game, playerIDs []int64) (models.Game, error)
	GetGame(ctx context.Context, id int64) (models.Game, error)
	ListGames(ctx context.Context) ([]models.Game, error)
	CountGames(ctx context.Context) (int, error)
	UpdateGame(ctx context.Context, game models.Game) error
	DeleteGame(ctx context.Context, id int64) error
	ListGamePlayers(ctx context.Context, gameID int64) ([]models.GamePlayer, error)

	GetTurn(ctx context.Context, id int64) (models.Turn, error)
	GetTurnByNumber(ctx context.Context, gameID int64, number int) (models.Turn, error)
	ListTurns(ctx context.Context, gameID int64) ([]models.Turn, error)
	// UpdateTurnResults writes every result of the slice or none.
	UpdateTurnResults(ctx context.Context, turnID int64, results []models.TurnResult) error

	Ping(ctx context.Context) error
	Close() error
}

// 错误定义
var (
	ErrRecordNotFound = errors.New("record not found")
	ErrAlreadyExists  = errors.New("record already exists")
	// ErrInUse is returned when a delete would break a reference, e.g. a
	// player with game history.
	ErrInUse = errors.New("record is referenced")
)
