package state

import "github.com/wfunc/skullscore/models"

// Action is the next step the UI should offer for the current turn.
type Action string

const (
	ActionDeclare       Action = "declare"
	ActionRecordResults Action = "record_results"
	ActionAdvance       Action = "advance"
	ActionEnd           Action = "end"
	ActionNone          Action = "none"
)

// Progress are the derived flags of the current turn.
type Progress struct {
	Round            int    `json:"round"`
	Ended            bool   `json:"ended"`
	DeclarationsSet  bool   `json:"declarations_set"`
	ResultsSet       bool   `json:"results_set"`
	CanStartNextTurn bool   `json:"can_start_next_turn"`
	CanEnd           bool   `json:"can_end"`
	NextAction       Action `json:"next_action"`
}

// AreDeclarationsSet reports whether every participant declared. An empty
// turn has nothing set.
func AreDeclarationsSet(results []models.TurnResult) bool {
	if len(results) == 0 {
		return false
	}
	for _, r := range results {
		if r.Declaration == nil {
			return false
		}
	}
	return true
}

// AreResultsSet reports whether every participant's result is recorded.
func AreResultsSet(results []models.TurnResult) bool {
	if len(results) == 0 {
		return false
	}
	for _, r := range results {
		if r.Result == nil {
			return false
		}
	}
	return true
}

// ProgressOf derives the flags for the current turn's results.
func ProgressOf(l *Lifecycle, current []models.TurnResult) Progress {
	p := Progress{
		Round:            l.Round(),
		Ended:            l.Ended(),
		DeclarationsSet:  AreDeclarationsSet(current),
		ResultsSet:       AreResultsSet(current),
		CanStartNextTurn: l.CanStartNextTurn(),
		CanEnd:           l.CanEnd(),
	}

	switch {
	case p.Ended:
		p.NextAction = ActionNone
	case !p.DeclarationsSet:
		p.NextAction = ActionDeclare
	case !p.ResultsSet:
		p.NextAction = ActionRecordResults
	case p.CanStartNextTurn:
		p.NextAction = ActionAdvance
	default:
		p.NextAction = ActionEnd
	}
	return p
}
