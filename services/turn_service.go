// services/turn_service.go
package services

import (
	"context"
	"fmt"
	"sort"

	"github.com/wfunc/skullscore/logger"
	"github.com/wfunc/skullscore/models"
	"github.com/wfunc/skullscore/scoring"
	"github.com/wfunc/skullscore/state"
)

// TurnView is a turn with the players attached to its results, ordered by name.
type TurnView struct {
	Game     models.Game    `json:"game"`
	Turn     models.Turn    `json:"turn"`
	Progress state.Progress `json:"progress"`
}

// Declaration 玩家叫牌
type Declaration struct {
	PlayerID    int64 `json:"player_id"`
	Declaration *int  `json:"declaration"`
}

// ResultEntry 玩家实际赢墩数; a nil result defaults to the declaration.
type ResultEntry struct {
	PlayerID int64 `json:"player_id"`
	Result   *int  `json:"result"`
}

// BonusClaim sets the bonus fields of one player; nil fields are left as they are.
type BonusClaim struct {
	PlayerID     int64 `json:"player_id"`
	HasSkullKing *bool `json:"has_skull_king"`
	PirateCount  *int  `json:"pirate_count"`
	HasMermaid   *bool `json:"has_mermaid"`
}

// CurrentTurn returns the turn of the game's current round.
func (s *GameService) CurrentTurn(ctx context.Context, gameID int64) (*TurnView, error) {
	game, err := s.store.GetGame(ctx, gameID)
	if err != nil {
		return nil, fmt.Errorf("game %d: %w", gameID, err)
	}
	return s.turnView(ctx, game, game.CurrentTurnNumber)
}

// Turn returns a turn by number, for history views.
func (s *GameService) Turn(ctx context.Context, gameID int64, number int) (*TurnView, error) {
	if number < 1 || number > models.RoundCount {
		return nil, invalid(CodeOutOfRange, "number", "turn number must be between 1 and %d", models.RoundCount)
	}
	game, err := s.store.GetGame(ctx, gameID)
	if err != nil {
		return nil, fmt.Errorf("game %d: %w", gameID, err)
	}
	return s.turnView(ctx, game, number)
}

func (s *GameService) turnView(ctx context.Context, game models.Game, number int) (*TurnView, error) {
	turn, err := s.store.GetTurnByNumber(ctx, game.ID, number)
	if err != nil {
		return nil, fmt.Errorf("turn %d of game %d: %w", number, game.ID, err)
	}
	players, err := s.store.ListGamePlayers(ctx, game.ID)
	if err != nil {
		return nil, err
	}
	byID := make(map[int64]models.Player, len(players))
	for _, gp := range players {
		byID[gp.Player.ID] = gp.Player
	}
	for i := range turn.Results {
		if p, ok := byID[turn.Results[i].PlayerID]; ok {
			p := p
			turn.Results[i].Player = &p
		}
	}
	sort.SliceStable(turn.Results, func(i, j int) bool {
		a, b := turn.Results[i].Player, turn.Results[j].Player
		if a == nil || b == nil {
			return a != nil
		}
		return s.collator.Less(a.Name, b.Name)
	})

	lifecycle, err := state.FromGame(game)
	if err != nil {
		return nil, fmt.Errorf("game %d: %w", game.ID, err)
	}
	var current []models.TurnResult
	if number == game.CurrentTurnNumber {
		current = turn.Results
	} else if currentTurn, err := s.store.GetTurnByNumber(ctx, game.ID, game.CurrentTurnNumber); err == nil {
		current = currentTurn.Results
	}
	return &TurnView{Game: game, Turn: turn, Progress: state.ProgressOf(lifecycle, current)}, nil
}

// loadCurrent returns the game and its current turn, rejecting ended games.
func (s *GameService) loadCurrent(ctx context.Context, gameID int64) (models.Game, models.Turn, error) {
	game, err := s.store.GetGame(ctx, gameID)
	if err != nil {
		return models.Game{}, models.Turn{}, fmt.Errorf("game %d: %w", gameID, err)
	}
	if game.Ended {
		return models.Game{}, models.Turn{}, invalid(CodeGameEnded, "", "game %d has ended", gameID)
	}
	turn, err := s.store.GetTurnByNumber(ctx, gameID, game.CurrentTurnNumber)
	if err != nil {
		return models.Game{}, models.Turn{}, fmt.Errorf("turn %d of game %d: %w", game.CurrentTurnNumber, gameID, err)
	}
	return game, turn, nil
}

// resultIndex maps player ids to their result position, rejecting players
// outside the game and players named twice.
func resultIndex(turn models.Turn, field string, playerIDs []int64) (map[int64]int, error) {
	index := make(map[int64]int, len(turn.Results))
	for i, r := range turn.Results {
		index[r.PlayerID] = i
	}
	seen := make(map[int64]bool, len(playerIDs))
	for _, id := range playerIDs {
		if _, ok := index[id]; !ok {
			return nil, invalid(CodeNotInGame, field, "player %d is not in this game", id)
		}
		if seen[id] {
			return nil, invalid(CodeDuplicate, field, "player %d is given twice", id)
		}
		seen[id] = true
	}
	return index, nil
}

// SaveDeclarations records the bids of the current round.
func (s *GameService) SaveDeclarations(ctx context.Context, gameID int64, declarations []Declaration) (*Scoreboard, error) {
	if len(declarations) == 0 {
		return nil, invalid(CodeRequired, "declarations", "no declaration given")
	}
	_, turn, err := s.loadCurrent(ctx, gameID)
	if err != nil {
		return nil, err
	}

	ids := make([]int64, 0, len(declarations))
	for _, d := range declarations {
		if d.Declaration == nil {
			return nil, invalid(CodeRequired, "declarations", "declaration of player %d is required", d.PlayerID)
		}
		ids = append(ids, d.PlayerID)
	}
	index, err := resultIndex(turn, "declarations", ids)
	if err != nil {
		return nil, err
	}

	updated := make([]models.TurnResult, 0, len(declarations))
	for _, d := range declarations {
		r := turn.Results[index[d.PlayerID]]
		r.Declaration = models.Int(*d.Declaration)
		updated = append(updated, r)
	}
	if err := s.store.UpdateTurnResults(ctx, turn.ID, updated); err != nil {
		return nil, fmt.Errorf("save declarations of game %d: %w", gameID, err)
	}
	return s.committed(ctx, gameID, EventDeclarationsSaved)
}

// SaveResults records the tricks won in the current round. Every result left
// nil takes the player's declaration; the results must add up to the round
// number or nothing is written.
func (s *GameService) SaveResults(ctx context.Context, gameID int64, entries []ResultEntry) (*Scoreboard, error) {
	game, turn, err := s.loadCurrent(ctx, gameID)
	if err != nil {
		return nil, err
	}

	ids := make([]int64, 0, len(entries))
	for _, e := range entries {
		ids = append(ids, e.PlayerID)
	}
	index, err := resultIndex(turn, "results", ids)
	if err != nil {
		return nil, err
	}

	results := make([]models.TurnResult, len(turn.Results))
	copy(results, turn.Results)
	for _, e := range entries {
		results[index[e.PlayerID]].Result = e.Result
	}

	sum := 0
	for i := range results {
		if results[i].Result == nil && results[i].Declaration != nil {
			results[i].Result = models.Int(*results[i].Declaration)
		}
		if results[i].Result != nil {
			sum += *results[i].Result
		}
	}
	if sum != game.CurrentTurnNumber {
		v := invalid(CodeInvalidResultSum, "results", "results must add up to %d, got %d", game.CurrentTurnNumber, sum)
		v.Arg = game.CurrentTurnNumber
		return nil, v
	}

	if err := s.store.UpdateTurnResults(ctx, turn.ID, results); err != nil {
		return nil, fmt.Errorf("save results of game %d: %w", gameID, err)
	}
	return s.committed(ctx, gameID, EventResultsSaved)
}

// UpdateBonus applies bonus claims to the current round. A turn has at most
// one bonus holder: claiming Skull King or Mermaid clears both bonuses and
// the pirate count of every other player.
func (s *GameService) UpdateBonus(ctx context.Context, gameID int64, claims []BonusClaim) (*Scoreboard, error) {
	if len(claims) == 0 {
		return nil, invalid(CodeRequired, "bonus", "no bonus claim given")
	}
	_, turn, err := s.loadCurrent(ctx, gameID)
	if err != nil {
		return nil, err
	}

	for _, c := range claims {
		if c.PirateCount != nil && (*c.PirateCount < 0 || *c.PirateCount > scoring.MaxPirates) {
			return nil, invalid(CodeOutOfRange, "pirate_count", "pirate count must be between 0 and %d", scoring.MaxPirates)
		}
		if _, ok := turn.ResultFor(c.PlayerID); !ok {
			return nil, invalid(CodeNotInGame, "bonus", "player %d is not in this game", c.PlayerID)
		}
	}

	results := ApplyBonusClaims(turn.Results, claims)
	if err := s.store.UpdateTurnResults(ctx, turn.ID, results); err != nil {
		return nil, fmt.Errorf("save bonus of game %d: %w", gameID, err)
	}
	return s.committed(ctx, gameID, EventBonusUpdated)
}

// ApplyBonusClaims returns a copy of results with the claims applied in
// order; the last claimer of a bonus keeps it.
func ApplyBonusClaims(results []models.TurnResult, claims []BonusClaim) []models.TurnResult {
	out := make([]models.TurnResult, len(results))
	copy(out, results)

	for _, c := range claims {
		holder := -1
		for i := range out {
			if out[i].PlayerID == c.PlayerID {
				holder = i
				break
			}
		}
		if holder < 0 {
			continue
		}

		r := &out[holder]
		if c.PirateCount != nil {
			r.PirateCount = models.Int(*c.PirateCount)
		}
		if c.HasSkullKing != nil {
			r.HasSkullKing = models.Bool(*c.HasSkullKing)
			if *c.HasSkullKing && r.HasMermaid != nil {
				r.HasMermaid = models.Bool(false)
			}
		}
		if c.HasMermaid != nil {
			r.HasMermaid = models.Bool(*c.HasMermaid)
			if *c.HasMermaid {
				if r.HasSkullKing != nil {
					r.HasSkullKing = models.Bool(false)
				}
				if r.PirateCount != nil {
					r.PirateCount = models.Int(0)
				}
			}
		}

		if r.HasBonus() {
			clearOtherBonuses(out, holder)
		}
	}
	return out
}

func clearOtherBonuses(results []models.TurnResult, holder int) {
	for i := range results {
		if i == holder {
			continue
		}
		if results[i].HasSkullKing != nil {
			results[i].HasSkullKing = models.Bool(false)
		}
		if results[i].PirateCount != nil {
			results[i].PirateCount = models.Int(0)
		}
		if results[i].HasMermaid != nil {
			results[i].HasMermaid = models.Bool(false)
		}
	}
}

func (s *GameService) committed(ctx context.Context, gameID int64, event EventType) (*Scoreboard, error) {
	board, err := s.refresh(ctx, gameID)
	if err != nil {
		return nil, err
	}
	logger.Log.Debugf("game %d: %s", gameID, event)
	s.publisher.Publish(Event{Type: event, GameID: gameID, Scoreboard: board})
	return board, nil
}
