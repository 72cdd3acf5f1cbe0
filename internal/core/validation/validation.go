// Package validation provides the result value shared by provider and
// component validation checks. Pure values only, per ADR-002: Values as
// Boundaries.
package validation

import "fmt"

// =============================================================================
// Result
// =============================================================================

// Result represents the outcome of a validation check.
type Result struct {
	// Valid indicates whether the checked value was accepted.
	Valid bool

	// Reason explains the rejection (empty if Valid is true).
	Reason string
}

// OK returns a passing result.
func OK() Result {
	return Result{Valid: true}
}

// Fail returns a failing result with the given reason.
func Fail(reason string) Result {
	return Result{Valid: false, Reason: reason}
}

// Failf returns a failing result with a formatted reason.
func Failf(format string, args ...any) Result {
	return Result{Valid: false, Reason: fmt.Sprintf(format, args...)}
}

// =============================================================================
// Convenience Methods
// =============================================================================

// Ok returns true if the validation passed.
func (r Result) Ok() bool {
	return r.Valid
}

// Err returns the reason as an error if validation failed, nil otherwise.
func (r Result) Err() error {
	if r.Valid {
		return nil
	}
	return fmt.Errorf("validation failed: %s", r.Reason)
}
