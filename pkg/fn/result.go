// Package fn holds the small generic helpers the pipeline stages share: a
// Result type, composable stages and a slice filter.
package fn

import "fmt"

// Result carries either a value or the error that prevented producing it.
type Result[T any] struct {
	val T
	err error
}

// Ok wraps a successful value.
func Ok[T any](v T) Result[T] {
	return Result[T]{val: v}
}

// Err wraps a failure. A nil err is treated as a generic failure so the
// result never reports success without a value.
func Err[T any](err error) Result[T] {
	if err == nil {
		err = fmt.Errorf("fn: unspecified error")
	}
	return Result[T]{err: err}
}

// FromPair adapts a conventional (value, error) return.
func FromPair[T any](v T, err error) Result[T] {
	if err != nil {
		return Err[T](err)
	}
	return Ok(v)
}

// IsErr reports whether the result carries an error.
func (r Result[T]) IsErr() bool { return r.err != nil }

// Unwrap returns the value and error.
func (r Result[T]) Unwrap() (T, error) { return r.val, r.err }

// Error returns the wrapped error, or nil.
func (r Result[T]) Error() error { return r.err }

// MapResult converts Result[T] to Result[U], passing errors through.
func MapResult[T, U any](r Result[T], f func(T) U) Result[U] {
	if r.err != nil {
		return Err[U](r.err)
	}
	return Ok(f(r.val))
}
