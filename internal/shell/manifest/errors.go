// Package manifest loads YAML project manifests and turns their component
// entries into orchestratable definitions via a type catalog.
package manifest

import (
	"errors"
	"fmt"
)

// =============================================================================
// Error Types
// =============================================================================

var (
	// ErrEmptyInput is returned when the manifest document is empty.
	ErrEmptyInput = errors.New("manifest is empty")

	// ErrInvalidYAML is returned when the document is not valid YAML.
	ErrInvalidYAML = errors.New("invalid YAML")

	// ErrMissingProject is returned when the manifest has no project name.
	ErrMissingProject = errors.New("manifest requires a project name")

	// ErrNoComponents is returned when the manifest declares no components.
	ErrNoComponents = errors.New("manifest declares no components")

	// ErrDuplicateComponentID is returned when two entries share an id.
	ErrDuplicateComponentID = errors.New("duplicate component id")

	// ErrUnknownComponentType is returned for a type the catalog does not know.
	ErrUnknownComponentType = errors.New("unknown component type")

	// ErrInvalidComponent is returned when a component entry is malformed.
	ErrInvalidComponent = errors.New("invalid component entry")

	// ErrNoServices is returned when a compose file declares no services.
	ErrNoServices = errors.New("compose file declares no services")
)

// Error wraps manifest errors with the field they occurred at.
type Error struct {
	Field   string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("manifest: %s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("manifest: %s", e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewError creates a new manifest Error.
func NewError(field, message string, err error) *Error {
	return &Error{
		Field:   field,
		Message: message,
		Err:     err,
	}
}
