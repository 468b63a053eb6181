package borrowing

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidRequest marks a malformed id list; nothing was read or written.
	ErrInvalidRequest = errors.New("invalid request")
	// ErrStorage wraps any failure of the underlying store that is not a domain outcome.
	ErrStorage = errors.New("storage error")
)

func invalid(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalidRequest, fmt.Sprintf(format, args...))
}

func storageErr(err error) error {
	return fmt.Errorf("%w: %w", ErrStorage, err)
}
