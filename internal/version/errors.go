package version

import (
	"errors"
	"fmt"
)

var (
	ErrDiscovery        = errors.New("version discovery failed")
	ErrMalformedVersion = errors.New("malformed version")
)

type DiscoveryError struct {
	Dir string
	Err error
}

func (e *DiscoveryError) Error() string {
	return fmt.Sprintf("%s: migrations directory %s: %s", ErrDiscovery, e.Dir, e.Err)
}

func (e *DiscoveryError) Unwrap() []error {
	return []error{ErrDiscovery, e.Err}
}

type MalformedVersionError struct {
	Label  string
	Reason string
}

func (e *MalformedVersionError) Error() string {
	return fmt.Sprintf("%s %s: %s", ErrMalformedVersion, e.Label, e.Reason)
}

func (e *MalformedVersionError) Unwrap() error {
	return ErrMalformedVersion
}
