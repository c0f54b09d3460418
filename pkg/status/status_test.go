package status

import (
	"errors"
	"testing"
)

func TestAllowed(t *testing.T) {
	tests := []struct {
		from, to Status
		want     bool
	}{
		{NotInitialized, Initializing, true},
		{NotInitialized, Ready, false},
		{NotInitialized, Moving, false},
		{Initializing, Ready, true},
		{Initializing, Error, true},
		{Initializing, Initializing, false},
		{Ready, Moving, true},
		{Moving, Ready, true},
		{Moving, PositionUnknown, true},
		{Moving, Moving, false},
		{Moving, Initializing, false},
		{PositionUnknown, Ready, false},
		{PositionUnknown, Moving, true},
		{PositionUnknown, Initializing, true},
		{Error, Ready, false},
		{Error, Moving, false},
		{Error, Initializing, true},
	}
	for _, tt := range tests {
		if got := Allowed(tt.from, tt.to); got != tt.want {
			t.Errorf("Allowed(%s, %s) = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}

func TestEveryStatusCanFailAndReset(t *testing.T) {
	for s := range indicators {
		if s != Error && !Allowed(s, Error) {
			t.Errorf("%s -> Error should be allowed", s)
		}
		if s != NotInitialized && !Allowed(s, NotInitialized) {
			t.Errorf("%s -> NotInitialized should be allowed", s)
		}
	}
}

func TestMachineTransitions(t *testing.T) {
	m := NewMachine()
	var seen []Status
	m.OnTransition = func(_, to Status) {
		seen = append(seen, to)
	}

	if m.Current() != NotInitialized {
		t.Fatalf("initial status = %s, want NotInitialized", m.Current())
	}

	for _, s := range []Status{Initializing, Ready, Moving, Ready} {
		if err := m.Transition(s); err != nil {
			t.Fatalf("Transition(%s): %v", s, err)
		}
	}

	err := m.Transition(Initializing)
	if err != nil {
		t.Fatalf("Ready -> Initializing: %v", err)
	}
	err = m.Transition(Moving)
	if !errors.Is(err, ErrIllegalTransition) {
		t.Fatalf("Initializing -> Moving: err = %v, want ErrIllegalTransition", err)
	}
	if m.Current() != Initializing {
		t.Errorf("illegal transition changed status to %s", m.Current())
	}

	want := []Status{Initializing, Ready, Moving, Ready, Initializing}
	if len(seen) != len(want) {
		t.Fatalf("notifications = %v, want %v", seen, want)
	}
	for i := range want {
		if seen[i] != want[i] {
			t.Errorf("notification %d = %s, want %s", i, seen[i], want[i])
		}
	}
}

func TestMachineReset(t *testing.T) {
	m := NewMachine()
	calls := 0
	m.OnTransition = func(_, _ Status) { calls++ }

	m.Reset()
	if calls != 0 {
		t.Errorf("Reset from NotInitialized should not notify")
	}

	_ = m.Transition(Initializing)
	_ = m.Transition(Error)
	m.Reset()
	if m.Current() != NotInitialized {
		t.Errorf("status after reset = %s", m.Current())
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestLabels(t *testing.T) {
	if PositionUnknown.Label() != "Position unknown" || PositionUnknown.Color() != "lightgreen" {
		t.Errorf("unexpected indicator for PositionUnknown: %s/%s", PositionUnknown.Label(), PositionUnknown.Color())
	}
	if Error.Label() != "ERROR" {
		t.Errorf("Error label = %q", Error.Label())
	}
	if Status("bogus").Valid() {
		t.Error("bogus status should not be valid")
	}
}
