package schemasync

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrToolMissing = errors.New("schema tool not found")
	ErrSync        = errors.New("schema sync failed")
)

type SyncError struct {
	Op     string
	Args   []string
	Output string
	Err    error
}

func (e *SyncError) Error() string {
	msg := fmt.Sprintf("%s: %s (%s): %s", ErrSync, e.Op, strings.Join(e.Args, " "), e.Err)
	if out := strings.TrimSpace(e.Output); out != "" {
		msg += ": " + out
	}

	return msg
}

func (e *SyncError) Unwrap() []error {
	return []error{ErrSync, e.Err}
}
