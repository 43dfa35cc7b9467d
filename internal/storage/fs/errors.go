package fs

import (
	"errors"
	"fmt"
)

// ErrIOFailure indicates a file could not be read or written.
var ErrIOFailure = errors.New("fs: I/O failure")

// IOError wraps err with ErrIOFailure, keeping the underlying error reachable.
func IOError(op, path string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %s %s: %w", ErrIOFailure, op, path, err)
}
