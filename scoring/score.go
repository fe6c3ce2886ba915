// Package scoring computes Skull King round scores and game standings.
package scoring

import (
	"strconv"

	"github.com/wfunc/skullscore/models"
)

// Points of the scoring table.
const (
	ZeroBidPointsPerRound = 10
	PointsPerTrick        = 20
	PointsPerPirate       = 30
	MermaidBonus          = 50
	PenaltyPerTrick       = 10
	MaxPirates            = 5
)

// Score returns the contribution of one round. An unresolved round (nil
// declaration or result) scores 0. Bonuses only count on a made bid.
// Inputs are not assumed to be bounded by the round number.
func Score(turnNumber int, declaration, result *int, hasSkullKing bool, pirateCount int, hasMermaid bool) int {
	if declaration == nil || result == nil {
		return 0
	}
	d, r := *declaration, *result

	if d != r {
		if d == 0 {
			return turnNumber * -PenaltyPerTrick
		}
		return abs(r-d) * -PenaltyPerTrick
	}

	total := r * PointsPerTrick
	if r == 0 {
		total = turnNumber * ZeroBidPointsPerRound
	}
	if hasSkullKing {
		total += pirateCount * PointsPerPirate
	}
	if hasMermaid {
		total += MermaidBonus
	}
	return total
}

// ScoreResult scores a stored turn result; unset bonus fields count as not claimed.
func ScoreResult(turnNumber int, r models.TurnResult) int {
	return Score(turnNumber, r.Declaration, r.Result, r.SkullKing(), r.Pirates(), r.Mermaid())
}

// BonusLabel describes the bonus claimed on r: "skull_king" followed by the
// pirate count, "mermaid", or "" when none.
func BonusLabel(r models.TurnResult) string {
	switch {
	case r.SkullKing():
		return "skull_king x" + strconv.Itoa(r.Pirates())
	case r.Mermaid():
		return "mermaid"
	}
	return ""
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
