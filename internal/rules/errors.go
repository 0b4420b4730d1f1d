package rules

import (
	"errors"
	"fmt"
)

// ErrNotFound reports an absent rule id.
var ErrNotFound = errors.New("rule not found")

// ErrDuplicateID reports an attempt to add a rule whose id exists.
var ErrDuplicateID = errors.New("duplicate rule id")

// ValidationError reports a malformed rule or criteria, rejected
// before any I/O happens.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string { return "invalid rule: " + e.Reason }

func validationf(format string, args ...any) error {
	return &ValidationError{Reason: fmt.Sprintf(format, args...)}
}
