// Package naming defines the contract for the naming collaborator that turns
// resource keys into platform-valid physical names. The orchestrator treats
// the formatter as an opaque, trusted function; it only requires determinism
// (same inputs always produce the same name). Platform-specific validity
// rules live entirely inside the formatter implementation.
package naming

import (
	"fmt"
	"strings"
)

// =============================================================================
// Formatter Contract
// =============================================================================

// Formatter produces the physical name of one concrete resource. suffix is
// the 1-based bucket index; implementations must leave the first bucket's
// name unsuffixed so an unsplit resource keeps a stable name.
type Formatter interface {
	ResourceName(resourceType, backendID string, suffix int) string
}

// Func adapts a plain function to the Formatter interface.
type Func func(resourceType, backendID string, suffix int) string

func (f Func) ResourceName(resourceType, backendID string, suffix int) string {
	return f(resourceType, backendID, suffix)
}

// =============================================================================
// Default Formatter
// =============================================================================

// Default is a deterministic formatter for tests and local runs.
// Pattern: weld_{backendID}_{resourceType} with a numeric suffix for
// overflow buckets.
//
// Example:
//
//	Default.ResourceName("storage", "abc123", 1) // "weld_abc123_storage"
//	Default.ResourceName("storage", "abc123", 3) // "weld_abc123_storage_3"
var Default Formatter = Func(func(resourceType, backendID string, suffix int) string {
	name := fmt.Sprintf("weld_%s_%s", sanitize(backendID), sanitize(resourceType))
	if suffix > 1 {
		name = fmt.Sprintf("%s_%d", name, suffix)
	}
	return name
})

// sanitize lowers the input and replaces separator characters so the default
// pattern stays a single token.
func sanitize(s string) string {
	s = strings.ToLower(s)
	replacer := strings.NewReplacer(":", "-", "/", "-", " ", "-", "_", "-")
	return replacer.Replace(s)
}
