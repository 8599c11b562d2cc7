package record

import (
	"errors"
	"fmt"
)

// FieldError is one attribute-level validation failure.
type FieldError struct {
	Attribute string
	Message   string
}

// NotFoundError reports a primary-key lookup that matched nothing.
type NotFoundError struct {
	Entity string
	ID     any
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s with id %v not found", e.Entity, e.ID)
}

// InvalidError reports that a record failed domain validation at save time.
type InvalidError struct {
	Record Record
	Errors []FieldError
}

func (e *InvalidError) Error() string {
	return fmt.Sprintf("%s is invalid (%d validation errors)", e.Record.EntityName(), len(e.Errors))
}

// ConflictError reports a uniqueness violation raised by the storage layer.
type ConflictError struct {
	Entity  string
	Message string
}

func (e *ConflictError) Error() string {
	return e.Message
}

// ConstraintError reports a storage-level constraint violation other than
// uniqueness, such as a broken foreign key or a null in a required column.
type ConstraintError struct {
	Entity  string
	Message string
}

func (e *ConstraintError) Error() string {
	return e.Message
}

// IsNotFound reports whether err is (or wraps) a *NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// IsInvalid reports whether err is (or wraps) a *InvalidError.
func IsInvalid(err error) bool {
	var inv *InvalidError
	return errors.As(err, &inv)
}
