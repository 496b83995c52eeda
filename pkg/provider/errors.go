package provider

import "fmt"

// Error marks a failure originating from a model backend. Callers can
// recover it with errors.As to distinguish provider failures from store or
// tool failures.
type Error struct {
	Provider string
	Err      error
}

func (e *Error) Error() string {
	return fmt.Sprintf("provider %s: %v", e.Provider, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}
