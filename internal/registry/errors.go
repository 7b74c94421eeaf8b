package registry

import "fmt"

// NotFoundError is returned when a lookup finds no entry for (kind, name) or
// (entityClass, name).
type NotFoundError struct {
	EntityClass string
	Name        string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("registry: no %s registered under name %q", e.EntityClass, e.Name)
}

// ConflictError is returned when a registration targets a name that is
// already bound to a different target. Re-registering the same target under
// the same name is not a conflict.
type ConflictError struct {
	EntityClass string
	Name        string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("registry: %s %q is already registered with a different target", e.EntityClass, e.Name)
}
