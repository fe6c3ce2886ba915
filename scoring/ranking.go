package scoring

import (
	"sort"

	"github.com/wfunc/skullscore/models"
)

// RoundScore is a player's score for one turn.
type RoundScore struct {
	Turn  int    `json:"turn"`
	Score int    `json:"score"`
	Bonus string `json:"bonus,omitempty"`
}

// Standing is a player's line on the scoreboard.
type Standing struct {
	Player             models.Player `json:"player"`
	Position           int           `json:"position"`
	Score              int           `json:"score"`
	CurrentDeclaration *int          `json:"current_declaration"`
	Place              int           `json:"place"`
	Rounds             []RoundScore  `json:"rounds"`
}

// Rank totals every turn per player and orders the standings: score
// descending, then name, then seating. When every total is 0 the seating
// order decides. CurrentDeclaration is taken from currentRound unless the
// game has ended.
func Rank(players []models.GamePlayer, turns []models.Turn, currentRound int, ended bool, c *Collator) []Standing {
	if c == nil {
		c = NewCollator("en")
	}

	ordered := make([]models.Turn, len(turns))
	copy(ordered, turns)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Number < ordered[j].Number
	})

	standings := make([]Standing, 0, len(players))
	allZero := true
	for _, gp := range players {
		st := Standing{
			Player:   gp.Player,
			Position: gp.Position,
			Rounds:   make([]RoundScore, 0, len(ordered)),
		}
		for _, turn := range ordered {
			r, ok := turn.ResultFor(gp.Player.ID)
			score, bonus := 0, ""
			if ok {
				bonus = BonusLabel(r)
				score = ScoreResult(turn.Number, r)
				if !ended && turn.Number == currentRound && r.Declaration != nil {
					d := *r.Declaration
					st.CurrentDeclaration = &d
				}
			}
			st.Score += score
			st.Rounds = append(st.Rounds, RoundScore{Turn: turn.Number, Score: score, Bonus: bonus})
		}
		if st.Score != 0 {
			allZero = false
		}
		standings = append(standings, st)
	}

	if allZero {
		sort.SliceStable(standings, func(i, j int) bool {
			return standings[i].Position < standings[j].Position
		})
	} else {
		sort.SliceStable(standings, func(i, j int) bool {
			a, b := standings[i], standings[j]
			if a.Score != b.Score {
				return a.Score > b.Score
			}
			if cmp := c.Compare(a.Player.Name, b.Player.Name); cmp != 0 {
				return cmp < 0
			}
			return a.Position < b.Position
		})
	}

	for i := range standings {
		standings[i].Place = i + 1
	}
	return standings
}

// Leader returns the first standing, false when there are no players.
func Leader(standings []Standing) (Standing, bool) {
	if len(standings) == 0 {
		return Standing{}, false
	}
	return standings[0], true
}
