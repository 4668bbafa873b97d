// Package compliance versions bulk mutation paths so that changes to their
// propagation semantics have to be acknowledged by every caller.
package compliance

import (
	"errors"
	"fmt"
)

// Version tags the semantics a caller expects from a bulk operation. The
// zero value means no tag was supplied and never matches a guard.
type Version uint

// ErrCompliance matches every *Error through errors.Is.
var ErrCompliance = errors.New("compliance error")

// Error reports a version tag that does not match the declared one.
type Error struct {
	Scope    string
	Received Version
	Expected Version
}

func (e *Error) Error() string {
	if e.Scope == "" {
		return fmt.Sprintf("compliance error: expected version is %d (received %d)", e.Expected, e.Received)
	}
	return fmt.Sprintf("compliance error: %s expected version is %d (received %d)", e.Scope, e.Expected, e.Received)
}

func (e *Error) Is(target error) bool {
	return target == ErrCompliance
}

// Guard declares the current version of a bulk mutation scope.
type Guard struct {
	Scope   string
	Version Version
}

// NewGuard constructs a guard for scope at version.
func NewGuard(scope string, version Version) Guard {
	return Guard{Scope: scope, Version: version}
}

// Check fails unless received equals the declared version.
func (g Guard) Check(received Version) error {
	if g.Version == 0 || received != g.Version {
		return &Error{Scope: g.Scope, Received: received, Expected: g.Version}
	}
	return nil
}

// Run invokes fn only when received passes Check.
func (g Guard) Run(received Version, fn func() error) error {
	if err := g.Check(received); err != nil {
		return err
	}
	return fn()
}
