package convstore

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound marks lookups of unknown conversation or message ids.
	ErrNotFound = errors.New("not found")

	// ErrWrite marks failures of the backing medium. Fatal for the
	// operation, surfaced to the caller.
	ErrWrite = errors.New("storage write failed")
)

func notFoundf(format string, args ...interface{}) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), ErrNotFound)
}

func writeErrf(err error, format string, args ...interface{}) error {
	return fmt.Errorf("%s: %w: %v", fmt.Sprintf(format, args...), ErrWrite, err)
}
