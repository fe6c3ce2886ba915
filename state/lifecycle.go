package state

import (
	"errors"
	"fmt"

	"github.com/wfunc/skullscore/logger"
	"github.com/wfunc/skullscore/models"
)

const (
	StateInProgress = "in_progress"
	StateEnded      = "ended"
)

// ErrInvalidRound is returned when a persisted round is outside 1..RoundCount.
var ErrInvalidRound = errors.New("round out of range")

// InProgressState 进行中，Round 为当前回合
type InProgressState struct {
	StateBase
	GameID int64
	Round  int
}

func NewInProgressState(gameID int64, round int) *InProgressState {
	return &InProgressState{
		StateBase: StateBase{ID: StateInProgress},
		GameID:    gameID,
		Round:     round,
	}
}

func (s *InProgressState) OnEnter() {
	logger.Log.Debugf("game %d playing turn %d", s.GameID, s.Round)
}

// EndedState 已结束，终态
type EndedState struct {
	StateBase
	GameID int64
}

func NewEndedState(gameID int64) *EndedState {
	return &EndedState{StateBase: StateBase{ID: StateEnded}, GameID: gameID}
}

func (s *EndedState) OnEnter() {
	logger.Log.Debugf("game %d ended", s.GameID)
}

// Lifecycle drives one game through its turns:
// InProgress(r) -> InProgress(r+1) while r < RoundCount, InProgress -> Ended.
// Nothing leaves Ended and the round never decreases.
type Lifecycle struct {
	gameID  int64
	round   int
	machine *BaseStateMachine
}

// NewLifecycle restores the lifecycle of a persisted game.
func NewLifecycle(gameID int64, round int, ended bool) (*Lifecycle, error) {
	if round < 1 || round > models.RoundCount {
		return nil, fmt.Errorf("%w: %d", ErrInvalidRound, round)
	}

	var initial State = NewInProgressState(gameID, round)
	if ended {
		initial = NewEndedState(gameID)
	}

	l := &Lifecycle{gameID: gameID, round: round}
	l.machine = NewBaseStateMachine(initial)
	l.machine.AddTransition(StateInProgress, StateInProgress, func() bool {
		return l.currentRound() < models.RoundCount
	})
	l.machine.AddTransition(StateInProgress, StateEnded, nil)
	return l, nil
}

// FromGame restores the lifecycle of g.
func FromGame(g models.Game) (*Lifecycle, error) {
	return NewLifecycle(g.ID, g.CurrentTurnNumber, g.Ended)
}

// StartNextTurn moves to the next round.
func (l *Lifecycle) StartNextTurn() error {
	next := l.currentRound() + 1
	if err := l.machine.ChangeState(NewInProgressState(l.gameID, next)); err != nil {
		return err
	}
	l.round = next
	return nil
}

// End terminates the game; the current round is kept.
func (l *Lifecycle) End() error {
	return l.machine.ChangeState(NewEndedState(l.gameID))
}

// Round returns the current round, kept after the game ends.
func (l *Lifecycle) Round() int {
	return l.currentRound()
}

// Ended reports whether the game reached the terminal state.
func (l *Lifecycle) Ended() bool {
	return l.machine.GetCurrentState().GetID() == StateEnded
}

// CanStartNextTurn reports whether StartNextTurn would succeed.
func (l *Lifecycle) CanStartNextTurn() bool {
	return !l.Ended() && l.currentRound() < models.RoundCount
}

// CanEnd reports whether End would succeed.
func (l *Lifecycle) CanEnd() bool {
	return !l.Ended()
}

// Apply copies the lifecycle position onto g.
func (l *Lifecycle) Apply(g *models.Game) {
	g.CurrentTurnNumber = l.currentRound()
	g.Ended = l.Ended()
}

func (l *Lifecycle) currentRound() int {
	return l.round
}
