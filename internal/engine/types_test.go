package engine

import (
	"testing"

	clierr "github.com/registrylabs/registry-cli/internal/errors"
)

func TestTransitionTimedOutToConfirmedIsLegal(t *testing.T) {
	attempt := NewAttempt(endorseRequest(newFakeBackend(), -1))
	for _, state := range []AttemptState{StateSimulating, StateSubmitting, StateAwaitingConfirmation, StateTimedOut, StateConfirmed} {
		if err := transition(attempt, state, nil); err != nil {
			t.Fatalf("transition to %s failed: %v", state, err)
		}
	}
	if !attempt.State.Terminal() {
		t.Fatal("confirmed must be terminal")
	}
}

func TestTransitionRejectsIllegalMove(t *testing.T) {
	attempt := NewAttempt(endorseRequest(newFakeBackend(), -1))
	err := transition(attempt, StateAwaitingConfirmation, nil)
	if clierr.KindOf(err) != clierr.KindInternal {
		t.Fatalf("expected INTERNAL for an illegal transition, got %v", err)
	}
	if attempt.State != StateIdle {
		t.Fatalf("illegal transition must not change state, got %s", attempt.State)
	}
}

func TestTerminalStates(t *testing.T) {
	for state, terminal := range map[AttemptState]bool{
		StateConfirmed: true,
		StateFailed:    true,
		StateTimedOut:  false,
		StateIdle:      false,
	} {
		if state.Terminal() != terminal {
			t.Fatalf("Terminal(%s) = %v, want %v", state, state.Terminal(), terminal)
		}
	}
}

func TestObserverSeesEveryTransition(t *testing.T) {
	var seen []AttemptState
	observer := func(_ *SubmissionAttempt, _, to AttemptState) { seen = append(seen, to) }

	attempt := NewAttempt(endorseRequest(newFakeBackend(), -1))
	if err := transition(attempt, StateNegotiating, observer); err != nil {
		t.Fatal(err)
	}
	if err := transition(attempt, StateSimulating, observer); err != nil {
		t.Fatal(err)
	}
	if len(seen) != 2 || seen[0] != StateNegotiating || seen[1] != StateSimulating {
		t.Fatalf("observer missed transitions: %v", seen)
	}
}

func TestNewAttemptIDsAreUnique(t *testing.T) {
	req := endorseRequest(newFakeBackend(), -1)
	a, b := NewAttempt(req), NewAttempt(req)
	if a.AttemptID == b.AttemptID {
		t.Fatal("attempt ids must be unique")
	}
	if a.State != StateIdle {
		t.Fatalf("new attempts start idle, got %s", a.State)
	}
}
