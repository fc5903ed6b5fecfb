// Package validate checks loosely-typed JSON payloads and turns them into
// typed values. Every check returns a Result that is either Valid with a
// value or Invalid with the path of the offending field.
package validate

import "fmt"

// Error describes the first field that failed validation.
type Error struct {
	// Field is the path of the failing field, e.g. "legs[2].operator".
	Field  string
	Reason string
}

func (e *Error) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// Result is the outcome of a validation step.
type Result[T any] struct {
	value T
	err   *Error
}

// Valid wraps a successfully validated value.
func Valid[T any](v T) Result[T] {
	return Result[T]{value: v}
}

// Invalid reports a failure for field.
func Invalid[T any](field, reason string) Result[T] {
	return Result[T]{err: &Error{Field: field, Reason: reason}}
}

// Forward re-types a failed result. It panics when r is valid.
func Forward[T, U any](r Result[U]) Result[T] {
	if r.err == nil {
		panic("validate: Forward called on a valid result")
	}
	return Result[T]{err: r.err}
}

func (r Result[T]) OK() bool { return r.err == nil }

// Value returns the validated value; the zero value when invalid.
func (r Result[T]) Value() T { return r.value }

// Field returns the failing field path, or "" when valid.
func (r Result[T]) Field() string {
	if r.err == nil {
		return ""
	}
	return r.err.Field
}

// Err returns the failure as an error, or nil when valid.
func (r Result[T]) Err() error {
	if r.err == nil {
		return nil
	}
	return r.err
}
