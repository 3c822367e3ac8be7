// Package async provides the execution contexts and the result type shared by
// the cache updater and the request dispatcher.
package async

// Result is the outcome of one asynchronous operation. Exactly one of Value or
// Err is meaningful: Err != nil means failure, otherwise Value holds the result.
type Result[T any] struct {
	Value T
	Err   error
}

// Success wraps a value.
func Success[T any](v T) Result[T] {
	return Result[T]{Value: v}
}

// Failure wraps an error. A nil err is replaced by ErrNilFailure so that the
// result is never mistaken for a success.
func Failure[T any](err error) Result[T] {
	if err == nil {
		err = ErrNilFailure
	}
	return Result[T]{Err: err}
}

// OK reports whether r is a success.
func (r Result[T]) OK() bool { return r.Err == nil }

// Unpack returns the value and error, for use with the usual if err != nil idiom.
func (r Result[T]) Unpack() (T, error) { return r.Value, r.Err }

// From builds a Result from a (value, error) pair.
func From[T any](v T, err error) Result[T] {
	if err != nil {
		return Result[T]{Err: err}
	}
	return Success(v)
}
