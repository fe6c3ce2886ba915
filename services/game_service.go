// services/game_service.go
package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/wfunc/skullscore/cache"
	"github.com/wfunc/skullscore/logger"
	"github.com/wfunc/skullscore/models"
	"github.com/wfunc/skullscore/persistence"
	"github.com/wfunc/skullscore/scoring"
	"github.com/wfunc/skullscore/state"
)

// start_date is unique; a clash is retried this many times, 1ms later each time.
const startDateAttempts = 5

// Rules bound the number of players of a game.
type Rules struct {
	MinPlayers int
	MaxPlayers int
}

// DefaultRules 2..6 players
func DefaultRules() Rules {
	return Rules{MinPlayers: 2, MaxPlayers: 6}
}

// Scoreboard is the rendered state of a game.
type Scoreboard struct {
	Game      models.Game        `json:"game"`
	Standings []scoring.Standing `json:"standings"`
	Progress  state.Progress     `json:"progress"`
}

// GameSummary is a line of the game list.
type GameSummary struct {
	Game    models.Game       `json:"game"`
	Players []models.Player   `json:"players"`
	Leader  *scoring.Standing `json:"leader,omitempty"`
}

type GameService struct {
	store     persistence.Store
	cache     cache.Cache
	collator  *scoring.Collator
	publisher EventPublisher
	rules     Rules
	now       func() time.Time
}

// NewGameService wires the game commands; cache and publisher may be nil.
func NewGameService(store persistence.Store, c cache.Cache, collator *scoring.Collator, publisher EventPublisher, rules Rules) *GameService {
	if collator == nil {
		collator = scoring.NewCollator("en")
	}
	if publisher == nil {
		publisher = nopPublisher{}
	}
	if rules.MinPlayers <= 0 || rules.MaxPlayers < rules.MinPlayers {
		rules = DefaultRules()
	}
	return &GameService{
		store:     store,
		cache:     c,
		collator:  collator,
		publisher: publisher,
		rules:     rules,
		now:       time.Now,
	}
}

// Create starts a game with the players seated in the given order.
func (s *GameService) Create(ctx context.Context, playerIDs []int64) (*Scoreboard, error) {
	if len(playerIDs) < s.rules.MinPlayers {
		return nil, invalid(CodeNotEnoughPlayers, "player_ids", "at least %d players are required", s.rules.MinPlayers)
	}
	if len(playerIDs) > s.rules.MaxPlayers {
		return nil, invalid(CodeTooManyPlayers, "player_ids", "at most %d players are allowed", s.rules.MaxPlayers)
	}
	seen := make(map[int64]bool, len(playerIDs))
	for _, id := range playerIDs {
		if seen[id] {
			return nil, invalid(CodeDuplicate, "player_ids", "player %d is selected twice", id)
		}
		seen[id] = true
		if _, err := s.store.GetPlayer(ctx, id); err != nil {
			return nil, fmt.Errorf("player %d: %w", id, err)
		}
	}

	start := s.now()
	var (
		game models.Game
		err  error
	)
	for attempt := 0; attempt < startDateAttempts; attempt++ {
		game, err = s.store.CreateGame(ctx, models.Game{StartDate: start, CurrentTurnNumber: 1}, playerIDs)
		if !errors.Is(err, persistence.ErrAlreadyExists) {
			break
		}
		start = start.Add(time.Millisecond)
	}
	if err != nil {
		return nil, fmt.Errorf("create game: %w", err)
	}

	board, err := s.refresh(ctx, game.ID)
	if err != nil {
		return nil, err
	}
	logger.Log.Infof("game %d created with %d players", game.ID, len(playerIDs))
	s.publisher.Publish(Event{Type: EventGameCreated, GameID: game.ID, PlayerIDs: playerIDs, Scoreboard: board})
	return board, nil
}

// Rematch starts a new game with the players of gameID in the same seating.
func (s *GameService) Rematch(ctx context.Context, gameID int64) (*Scoreboard, error) {
	if _, err := s.store.GetGame(ctx, gameID); err != nil {
		return nil, fmt.Errorf("game %d: %w", gameID, err)
	}
	players, err := s.store.ListGamePlayers(ctx, gameID)
	if err != nil {
		return nil, err
	}
	ids := make([]int64, 0, len(players))
	for _, gp := range players {
		ids = append(ids, gp.Player.ID)
	}
	return s.Create(ctx, ids)
}

// Scoreboard returns the standings and progress of a game, from cache when
// possible. Readers never fill the cache: only commands, which run one at a
// time per game, write it through refresh.
func (s *GameService) Scoreboard(ctx context.Context, gameID int64) (*Scoreboard, error) {
	if s.cache != nil {
		data, ok, err := s.cache.Get(ctx, gameID)
		if err != nil {
			logger.Log.Warnf("scoreboard cache read for game %d: %v", gameID, err)
		} else if ok {
			var board Scoreboard
			if err := json.Unmarshal(data, &board); err == nil {
				return &board, nil
			}
			logger.Log.Warnf("invalid cached scoreboard for game %d", gameID)
		}
	}
	return s.buildScoreboard(ctx, gameID)
}

func (s *GameService) buildScoreboard(ctx context.Context, gameID int64) (*Scoreboard, error) {
	game, err := s.store.GetGame(ctx, gameID)
	if err != nil {
		return nil, fmt.Errorf("game %d: %w", gameID, err)
	}
	players, err := s.store.ListGamePlayers(ctx, gameID)
	if err != nil {
		return nil, err
	}
	turns, err := s.store.ListTurns(ctx, gameID)
	if err != nil {
		return nil, err
	}
	lifecycle, err := state.FromGame(game)
	if err != nil {
		return nil, fmt.Errorf("game %d: %w", gameID, err)
	}

	var current []models.TurnResult
	for _, turn := range turns {
		if turn.Number == game.CurrentTurnNumber {
			current = turn.Results
			break
		}
	}

	return &Scoreboard{
		Game:      game,
		Standings: scoring.Rank(players, turns, game.CurrentTurnNumber, game.Ended, s.collator),
		Progress:  state.ProgressOf(lifecycle, current),
	}, nil
}

// refresh rebuilds the scoreboard after a command committed and replaces the
// cached copy.
func (s *GameService) refresh(ctx context.Context, gameID int64) (*Scoreboard, error) {
	board, err := s.buildScoreboard(ctx, gameID)
	if err != nil {
		return nil, err
	}
	if s.cache == nil {
		return board, nil
	}
	data, err := json.Marshal(board)
	if err != nil {
		return board, nil
	}
	if err := s.cache.Set(ctx, gameID, data); err != nil {
		logger.Log.Warnf("scoreboard cache write for game %d: %v", gameID, err)
		if err := s.cache.Delete(ctx, gameID); err != nil {
			logger.Log.Warnf("scoreboard cache delete for game %d: %v", gameID, err)
		}
	}
	return board, nil
}

// List returns every game, newest first, with its players and leader.
func (s *GameService) List(ctx context.Context) ([]GameSummary, error) {
	games, err := s.store.ListGames(ctx)
	if err != nil {
		return nil, err
	}

	summaries := make([]GameSummary, 0, len(games))
	for _, game := range games {
		players, err := s.store.ListGamePlayers(ctx, game.ID)
		if err != nil {
			return nil, err
		}
		summary := GameSummary{Game: game, Players: make([]models.Player, 0, len(players))}
		for _, gp := range players {
			summary.Players = append(summary.Players, gp.Player)
		}

		board, err := s.Scoreboard(ctx, game.ID)
		if err != nil {
			return nil, err
		}
		if leader, ok := scoring.Leader(board.Standings); ok {
			summary.Leader = &leader
		}
		summaries = append(summaries, summary)
	}
	return summaries, nil
}

// HasAtLeastOneGame reports whether any game was ever started.
func (s *GameService) HasAtLeastOneGame(ctx context.Context) (bool, error) {
	count, err := s.store.CountGames(ctx)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// DeleteGame removes a game with its turns, drops its cached scoreboard and
// publishes game_deleted. Callers run it on the game's table.
func (s *GameService) DeleteGame(ctx context.Context, id int64) error {
	if err := s.store.DeleteGame(ctx, id); err != nil {
		return fmt.Errorf("game %d: %w", id, err)
	}
	if s.cache != nil {
		if err := s.cache.Delete(ctx, id); err != nil {
			logger.Log.Warnf("scoreboard cache delete for game %d: %v", id, err)
		}
	}
	s.publisher.Publish(Event{Type: EventGameDeleted, GameID: id})
	return nil
}

// StartNextTurn advances the game to the next round.
func (s *GameService) StartNextTurn(ctx context.Context, gameID int64) (*Scoreboard, error) {
	return s.transition(ctx, gameID, EventTurnStarted, (*state.Lifecycle).StartNextTurn)
}

// End terminates the game; history is kept.
func (s *GameService) End(ctx context.Context, gameID int64) (*Scoreboard, error) {
	return s.transition(ctx, gameID, EventGameEnded, (*state.Lifecycle).End)
}

func (s *GameService) transition(ctx context.Context, gameID int64, event EventType, apply func(*state.Lifecycle) error) (*Scoreboard, error) {
	game, err := s.store.GetGame(ctx, gameID)
	if err != nil {
		return nil, fmt.Errorf("game %d: %w", gameID, err)
	}
	if game.Ended {
		return nil, invalid(CodeGameEnded, "", "game %d has ended", gameID)
	}
	lifecycle, err := state.FromGame(game)
	if err != nil {
		return nil, fmt.Errorf("game %d: %w", gameID, err)
	}
	if err := apply(lifecycle); err != nil {
		if errors.Is(err, state.ErrTransitionNotAllowed) {
			return nil, invalid(CodeInvalidTransition, "", "game %d cannot leave round %d this way", gameID, lifecycle.Round())
		}
		return nil, err
	}

	lifecycle.Apply(&game)
	if err := s.store.UpdateGame(ctx, game); err != nil {
		return nil, fmt.Errorf("update game %d: %w", gameID, err)
	}

	board, err := s.refresh(ctx, gameID)
	if err != nil {
		return nil, err
	}
	logger.Log.Infof("game %d: %s (round %d)", gameID, event, game.CurrentTurnNumber)
	s.publisher.Publish(Event{Type: event, GameID: gameID, Scoreboard: board})
	return board, nil
}
