package engine

import (
	"errors"
	"fmt"
)

// ErrAdminRequired is returned when a non-admin modifies a global rule.
var ErrAdminRequired = errors.New("global rules can only be modified by an admin")

// ErrParentCycle is returned when a parent assignment would create a loop.
var ErrParentCycle = errors.New("parent assignment would create a cycle")

// ValidationError describes an invalid rule definition.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid rule: %s %s", e.Field, e.Message)
}
