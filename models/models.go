// models/models.go
package models

import (
	"time"
)

// RoundCount is the number of turns created with every game.
const RoundCount = 10

// Player 玩家
type Player struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Groups    []Group   `json:"groups,omitempty"`
	Deletable bool      `json:"deletable"`
	CreatedAt time.Time `json:"created_at"`
}

// Group tags players. A group without members is removed by orphan cleanup.
type Group struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// Game 对局
type Game struct {
	ID                int64     `json:"id"`
	StartDate         time.Time `json:"start_date"`
	CurrentTurnNumber int       `json:"current_turn_number"`
	Ended             bool      `json:"ended"`
}

// GamePlayer is a participant with its seating position (0-based) in a game.
type GamePlayer struct {
	Player   Player `json:"player"`
	Position int    `json:"position"`
}

// Turn 回合
type Turn struct {
	ID      int64        `json:"id"`
	GameID  int64        `json:"game_id"`
	Number  int          `json:"number"`
	Results []TurnResult `json:"results"`
}

// TurnResult is one player's declaration, result and bonus claims for a turn.
// Nil fields have not been recorded yet.
type TurnResult struct {
	TurnID       int64   `json:"turn_id"`
	PlayerID     int64   `json:"player_id"`
	Player       *Player `json:"player,omitempty"`
	Declaration  *int    `json:"declaration"`
	Result       *int    `json:"result"`
	HasSkullKing *bool   `json:"has_skull_king"`
	PirateCount  *int    `json:"pirate_count"`
	HasMermaid   *bool   `json:"has_mermaid"`
}

// SkullKing reports whether the Skull King bonus is claimed.
func (r TurnResult) SkullKing() bool {
	return r.HasSkullKing != nil && *r.HasSkullKing
}

// Mermaid reports whether the Mermaid bonus is claimed.
func (r TurnResult) Mermaid() bool {
	return r.HasMermaid != nil && *r.HasMermaid
}

// Pirates returns the captured pirate count, 0 when unset.
func (r TurnResult) Pirates() int {
	if r.PirateCount == nil {
		return 0
	}
	return *r.PirateCount
}

// HasBonus reports whether the result holds either bonus.
func (r TurnResult) HasBonus() bool {
	return r.SkullKing() || r.Mermaid()
}

// ResultFor returns the result of playerID in the turn.
func (t Turn) ResultFor(playerID int64) (TurnResult, bool) {
	for _, r := range t.Results {
		if r.PlayerID == playerID {
			return r, true
		}
	}
	return TurnResult{}, false
}

// Int returns a pointer to v.
func Int(v int) *int { return &v }

// Bool returns a pointer to v.
func Bool(v bool) *bool { return &v }
