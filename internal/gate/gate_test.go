package gate

import (
	"testing"
	"time"
)

func TestAllowed(t *testing.T) {
	deadline := time.Date(2026, 1, 20, 12, 0, 0, 0, time.UTC)

	if !Allowed(deadline.Add(-time.Second), deadline, false) {
		t.Fatal("expected open just before deadline")
	}
	if Allowed(deadline.Add(time.Second), deadline, false) {
		t.Fatal("expected closed just after deadline")
	}
	if !Allowed(deadline.Add(time.Second), deadline, true) {
		t.Fatal("expected forced-open to override deadline")
	}
	if Allowed(deadline, deadline, false) {
		t.Fatal("expected closed exactly at deadline")
	}
}

func TestDescribe(t *testing.T) {
	deadline := time.Date(2026, 1, 20, 12, 0, 0, 0, time.UTC)

	w := Describe(deadline.Add(-90*time.Second), deadline, false)
	if !w.Open {
		t.Fatal("expected open window")
	}
	if w.RemainingSeconds != 90 {
		t.Fatalf("expected 90s remaining, got %d", w.RemainingSeconds)
	}

	w = Describe(deadline.Add(time.Hour), deadline, true)
	if !w.Open {
		t.Fatal("expected forced-open window")
	}
	if w.RemainingSeconds != 0 {
		t.Fatalf("expected clamped remaining, got %d", w.RemainingSeconds)
	}
	if !w.ForcedOpen {
		t.Fatal("expected forced_open flag set")
	}
}
