package gate

import "time"

// Allowed reports whether submissions are accepted at the given instant:
// either the forced-open override is set or the deadline has not passed.
func Allowed(now, deadline time.Time, forcedOpen bool) bool {
	return forcedOpen || now.Before(deadline)
}

// Window describes the submission window as shown to clients. Clients tick
// the countdown locally; the server evaluates the gate only at render and
// submit time.
type Window struct {
	Deadline         time.Time `json:"deadline"`
	ForcedOpen       bool      `json:"forced_open"`
	Open             bool      `json:"open"`
	RemainingSeconds int64     `json:"remaining_seconds"`
}

// Describe builds the window payload for the given instant.
func Describe(now, deadline time.Time, forcedOpen bool) Window {
	remaining := int64(deadline.Sub(now).Seconds())
	if remaining < 0 {
		remaining = 0
	}
	return Window{
		Deadline:         deadline,
		ForcedOpen:       forcedOpen,
		Open:             Allowed(now, deadline, forcedOpen),
		RemainingSeconds: remaining,
	}
}
