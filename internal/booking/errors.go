package booking

import "fmt"

// Policy reason codes, stable across the API surface.
const (
	ReasonPastDate        = "date_in_past"
	ReasonAdvanceWindow   = "advance_window_exceeded"
	ReasonLeadTime        = "lead_time_too_short"
	ReasonCancelDeadline  = "cancel_deadline_passed"
	ReasonOutsideSchedule = "outside_schedule"
)

// ValidationError marks malformed input, rejected before any side effect.
type ValidationError struct {
	msg string
}

func (e *ValidationError) Error() string {
	return e.msg
}

func validationError(format string, args ...interface{}) error {
	return &ValidationError{msg: fmt.Sprintf(format, args...)}
}

// PolicyViolation marks a request that is well-formed but breaks the store's
// temporal booking policy. Reason is machine-checkable.
type PolicyViolation struct {
	Reason string
	msg    string
}

func (e *PolicyViolation) Error() string {
	return e.msg
}

func policyViolation(reason, format string, args ...interface{}) error {
	return &PolicyViolation{Reason: reason, msg: fmt.Sprintf(format, args...)}
}
