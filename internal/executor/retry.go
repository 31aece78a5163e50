package executor

import (
	"errors"

	"golang.org/x/sys/unix"
)

// Retry calls fn until it returns something other than EINTR.
func Retry[T any](fn func() (T, error)) (T, error) {
	for {
		v, err := fn()
		if !errors.Is(err, unix.EINTR) {
			return v, err
		}
	}
}

// RetryErr is Retry for calls that only return an error.
func RetryErr(fn func() error) error {
	_, err := Retry(func() (struct{}, error) {
		return struct{}{}, fn()
	})
	return err
}
