package runner

import (
	"errors"
	"fmt"
)

// State is where a version is in a run.
type State int

const (
	Discovered State = iota
	Skipped
	SchemaSyncing
	ReadinessWaiting
	Executing
	Recording
	Applied
	Aborted
)

var stateNames = map[State]string{
	Discovered:       "discovered",
	Skipped:          "skipped",
	SchemaSyncing:    "schema syncing",
	ReadinessWaiting: "readiness waiting",
	Executing:        "executing",
	Recording:        "recording",
	Applied:          "applied",
	Aborted:          "aborted",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}

	return fmt.Sprintf("state(%d)", int(s))
}

// ErrRecord means Up succeeded but the applied set could not be written.
var ErrRecord = errors.New("migration applied but not recorded")

// AbortError stops the run. State is the step that failed.
type AbortError struct {
	Label string
	ID    string
	State State
	Err   error
}

func (e *AbortError) Error() string {
	if e.Label == "" {
		return fmt.Sprintf("migration run aborted while %s: %s", e.State, e.Err)
	}

	return fmt.Sprintf("migration run aborted at %s (id %q) while %s: %s", e.Label, e.ID, e.State, e.Err)
}

func (e *AbortError) Unwrap() error {
	return e.Err
}
