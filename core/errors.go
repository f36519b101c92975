package core

import "github.com/pkg/errors"

// FieldError is used to indicate an error with a specific struct field.
type FieldError struct {
	Field string `json:"field"`
	Error string `json:"error"`
}

type ValidationError struct {
	Err    error
	Fields []FieldError
}

func NewValidationError(err error, flds ...FieldError) error {
	return &ValidationError{err, flds}
}

func (err ValidationError) Error() string {
	if err.Err == nil {
		return ""
	}
	return err.Err.Error()
}

// PermissionError means the actor lacks the role or ownership the operation requires.
type PermissionError struct {
	Action string
}

func NewPermissionError(action string) error {
	return &PermissionError{Action: action}
}

func (err PermissionError) Error() string {
	return "permission denied: " + err.Action
}

// InvalidStateError means the operation is not legal in the entity's current state.
type InvalidStateError struct {
	Entity string
	State  string
	Action string
}

func NewInvalidStateError(entity, state, action string) error {
	return &InvalidStateError{Entity: entity, State: state, Action: action}
}

func (err InvalidStateError) Error() string {
	return "cannot " + err.Action + " " + err.Entity + " in state " + err.State
}

// ConflictError means a uniqueness invariant would be violated.
type ConflictError struct {
	Err error
}

func NewConflictError(err error) error {
	return &ConflictError{Err: err}
}

func (err ConflictError) Error() string {
	if err.Err == nil {
		return "conflict"
	}
	return err.Err.Error()
}

func (err ConflictError) Unwrap() error { return err.Err }

// DepthExceededError means a comment reply would nest deeper than MaxDepth.
type DepthExceededError struct {
	MaxDepth int
}

func (err DepthExceededError) Error() string {
	return "comments cannot be nested deeper than the allowed depth"
}

func IsValidation(err error) bool {
	var target *ValidationError
	return errors.As(err, &target)
}

func IsPermission(err error) bool {
	var target *PermissionError
	return errors.As(err, &target)
}

func IsInvalidState(err error) bool {
	var target *InvalidStateError
	return errors.As(err, &target)
}

func IsConflict(err error) bool {
	var target *ConflictError
	return errors.As(err, &target)
}

func IsDepthExceeded(err error) bool {
	var target *DepthExceededError
	return errors.As(err, &target)
}
