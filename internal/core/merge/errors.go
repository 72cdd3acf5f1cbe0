package merge

import (
	"errors"
	"fmt"
	"strings"
)

// =============================================================================
// Merge Errors
// =============================================================================

var (
	// ErrConflict marks an irreconcilable configuration within a group.
	ErrConflict = errors.New("requirement merge conflict")

	// ErrEmptyGroup is returned when a group has no members to merge.
	ErrEmptyGroup = errors.New("requirement group has no members")
)

// ConflictError reports one irreconcilable field inside a requirement group,
// naming the contributing components so the author can find both sides.
type ConflictError struct {
	// CompositeKey is the group the conflict occurred in.
	CompositeKey string

	// Field is the configuration field that could not be resolved.
	Field string

	// Identity names the sub-resource entry the field belongs to, when the
	// conflict occurred inside a union collection ("" otherwise).
	Identity string

	// Components are the contributing component IDs, declaration order.
	Components []string

	// Values holds the incompatible values.
	Values []any
}

func (e *ConflictError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "requirement merge conflict on %q: field %q", e.CompositeKey, e.Field)
	if e.Identity != "" {
		fmt.Fprintf(&b, " of entry %q", e.Identity)
	}
	fmt.Fprintf(&b, ": components %v declare incompatible values", e.Components)
	return b.String()
}

func (e *ConflictError) Unwrap() error {
	return ErrConflict
}

// Conflicts flattens every ConflictError reachable through err's unwrap tree.
func Conflicts(err error) []*ConflictError {
	if err == nil {
		return nil
	}

	var out []*ConflictError
	var walk func(error)
	walk = func(err error) {
		if c, ok := err.(*ConflictError); ok {
			out = append(out, c)
			return
		}
		switch u := err.(type) {
		case interface{ Unwrap() []error }:
			for _, e := range u.Unwrap() {
				walk(e)
			}
		case interface{ Unwrap() error }:
			walk(u.Unwrap())
		}
	}
	walk(err)
	return out
}
