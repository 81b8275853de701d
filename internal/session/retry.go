package session

import "gameboost/internal/primitive"

// retry issues fn and, if it failed transiently, issues it exactly once more.
func retry(fn func() error) error {
	err := fn()
	if primitive.IsTransient(err) {
		err = fn()
	}
	return err
}

// retryValue is retry for primitives that return a value.
func retryValue[T any](fn func() (T, error)) (T, error) {
	v, err := fn()
	if primitive.IsTransient(err) {
		v, err = fn()
	}
	return v, err
}
