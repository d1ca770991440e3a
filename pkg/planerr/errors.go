// Package planerr defines the error taxonomy shared by the staffing and
// coverage packages.
//
// Callers match conditions with errors.Is against the sentinels and use
// errors.As to pull out the typed details:
//   - ErrInvalidInput       - *InputError (field and reason)
//   - ErrTargetUnreachable  - staffing search ran past its safety bound
//   - ErrInfeasibleCoverage - *InfeasibleError (offending interval)
//   - ErrSolverTimeout      - *SolverError (optional incumbent)
//   - ErrSolverFailed       - *SolverError
package planerr

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidInput       = errors.New("invalid input")
	ErrTargetUnreachable  = errors.New("service level target unreachable")
	ErrInfeasibleCoverage = errors.New("infeasible coverage")
	ErrSolverTimeout      = errors.New("solver timeout")
	ErrSolverFailed       = errors.New("solver failed")
)

// InputError describes an input rejected before any computation ran.
type InputError struct {
	Field  string
	Reason string
}

func (e *InputError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *InputError) Unwrap() error {
	return ErrInvalidInput
}

// Invalid is shorthand for &InputError{...} with a formatted reason.
func Invalid(field, format string, args ...any) error {
	return &InputError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// InfeasibleError reports that no combination of shift templates can cover
// an interval. Interval is -1 when the solver proved infeasibility without
// naming a constraint.
type InfeasibleError struct {
	Interval int
	Required int
	Reason   string
}

func (e *InfeasibleError) Error() string {
	if e.Interval < 0 {
		if e.Reason != "" {
			return fmt.Sprintf("infeasible coverage: %s", e.Reason)
		}
		return "infeasible coverage"
	}
	msg := fmt.Sprintf("infeasible coverage at interval %d (required %d)", e.Interval, e.Required)
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	return msg
}

func (e *InfeasibleError) Unwrap() error {
	return ErrInfeasibleCoverage
}

// SolverError wraps a solver run that ended without a proven optimum.
// Incumbent holds the best feasible counts found so far, if any.
type SolverError struct {
	Timeout   bool
	Cause     error
	Incumbent map[string]int
}

func (e *SolverError) Error() string {
	kind := "solver failed"
	if e.Timeout {
		kind = "solver timeout"
	}
	if e.Cause == nil {
		return kind
	}
	return fmt.Sprintf("%s: %v", kind, e.Cause)
}

// Unwrap exposes both the category sentinel and the underlying cause.
func (e *SolverError) Unwrap() []error {
	sentinel := ErrSolverFailed
	if e.Timeout {
		sentinel = ErrSolverTimeout
	}
	if e.Cause == nil {
		return []error{sentinel}
	}
	return []error{sentinel, e.Cause}
}

// HasIncumbent reports whether a best-so-far solution is attached.
func (e *SolverError) HasIncumbent() bool {
	return len(e.Incumbent) > 0
}
