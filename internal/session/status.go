package session

import "fmt"

// Status is the lifecycle status of a simulation session. The store never
// drives transitions itself; statuses arrive from callers or from the
// simulator backend's event stream.
type Status string

const (
	StatusIdle        Status = "idle"
	StatusRunning     Status = "running"
	StatusPaused      Status = "paused"
	StatusStopped     Status = "stopped"
	StatusExpired     Status = "expired"
	StatusInterrupted Status = "interrupted"
)

var statuses = map[Status]struct{}{
	StatusIdle:        {},
	StatusRunning:     {},
	StatusPaused:      {},
	StatusStopped:     {},
	StatusExpired:     {},
	StatusInterrupted: {},
}

// ParseStatus converts a wire value into a Status, rejecting anything outside
// the closed enumeration.
func ParseStatus(s string) (Status, error) {
	st := Status(s)
	if _, ok := statuses[st]; !ok {
		return "", fmt.Errorf("session: unknown status %q", s)
	}
	return st, nil
}

// Known reports whether the status is a member of the enumeration.
func (s Status) Known() bool {
	_, ok := statuses[s]
	return ok
}
