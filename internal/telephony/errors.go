package telephony

import (
	"errors"
	"fmt"
)

// ErrNotFound covers both true absence and scope mismatch. The two are
// deliberately indistinguishable so a caller cannot probe for objects it
// does not own.
var ErrNotFound = errors.New("not found")

// ValidationError is a rejected input. Nothing was created or modified.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string {
	return e.Msg
}

func validationErrorf(format string, args ...any) error {
	return &ValidationError{Msg: fmt.Sprintf(format, args...)}
}

// PartialFailure reports the two-step callee rule creation failing halfway:
// the rule exists at the gateway in individual form but the patch to callee
// did not land. Callers can retry the patch or delete the half-created rule
// using RuleID.
type PartialFailure struct {
	RuleID string
	Rule   *DispatchRule // the created rule in its individual state
	Err    error
}

func (e *PartialFailure) Error() string {
	return fmt.Sprintf("rule %s created as individual but patch to callee failed: %v", e.RuleID, e.Err)
}

func (e *PartialFailure) Unwrap() error {
	return e.Err
}
