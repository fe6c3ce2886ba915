package state

import (
	"errors"
	"testing"
)

// hookState records the enter/exit hooks run on it.
type hookState struct {
	StateBase
	entered int
	exited  int
}

func newHookState(id string) *hookState {
	return &hookState{StateBase: StateBase{ID: id}}
}

func (h *hookState) OnEnter() { h.entered++ }

func (h *hookState) OnExit() { h.exited++ }

func TestBaseStateMachineEntersInitialState(t *testing.T) {
	initial := newHookState(StateInProgress)
	sm := NewBaseStateMachine(initial)

	if initial.entered != 1 {
		t.Errorf("Expected initial state entered once, got %d", initial.entered)
	}
	if sm.GetCurrentState() != initial {
		t.Error("Expected current state to be the initial state")
	}
}

func TestBaseStateMachineTransitions(t *testing.T) {
	tests := []struct {
		name     string
		register bool
		guard    func() bool
		wantErr  error
	}{
		{name: "unregistered", register: false, wantErr: ErrTransitionNotAllowed},
		{name: "nil guard", register: true, guard: nil},
		{name: "guard allows", register: true, guard: func() bool { return true }},
		{name: "guard blocks", register: true, guard: func() bool { return false }, wantErr: ErrTransitionNotAllowed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			from := newHookState(StateInProgress)
			to := newHookState(StateEnded)
			sm := NewBaseStateMachine(from)
			if tt.register {
				if err := sm.AddTransition(StateInProgress, StateEnded, tt.guard); err != nil {
					t.Fatalf("AddTransition failed: %v", err)
				}
			}

			err := sm.ChangeState(to)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Expected error %v, got %v", tt.wantErr, err)
			}

			if tt.wantErr != nil {
				if sm.GetCurrentState() != from {
					t.Errorf("Expected state to stay %s, got %s", StateInProgress, sm.GetCurrentState().GetID())
				}
				if from.exited != 0 || to.entered != 0 {
					t.Errorf("Expected no hooks on a rejected transition, got exit=%d enter=%d", from.exited, to.entered)
				}
				return
			}
			if sm.GetCurrentState() != to {
				t.Errorf("Expected state %s, got %s", StateEnded, sm.GetCurrentState().GetID())
			}
			if from.exited != 1 || to.entered != 1 {
				t.Errorf("Expected exit=1 enter=1, got exit=%d enter=%d", from.exited, to.entered)
			}
		})
	}
}

func TestBaseStateMachineSelfTransition(t *testing.T) {
	round := 1
	sm := NewBaseStateMachine(newHookState(StateInProgress))
	sm.AddTransition(StateInProgress, StateInProgress, func() bool { return round < 2 })

	if err := sm.ChangeState(newHookState(StateInProgress)); err != nil {
		t.Fatalf("Expected self transition allowed, got %v", err)
	}
	round = 2
	if err := sm.ChangeState(newHookState(StateInProgress)); !errors.Is(err, ErrTransitionNotAllowed) {
		t.Errorf("Expected ErrTransitionNotAllowed once the guard closes, got %v", err)
	}
}
