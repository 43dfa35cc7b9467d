package main

import (
	"errors"

	"github.com/kk-code-lab/kitcat/internal/storage/engine"
)

const (
	exitOK         = 0
	exitFailure    = 1
	exitUsage      = 2
	exitIncomplete = 3
	exitCorrupt    = 4
)

type exitCodeError struct {
	code  int
	msg   string
	quiet bool
	err   error
}

func (e *exitCodeError) Error() string {
	return e.msg
}

func (e *exitCodeError) Unwrap() error {
	return e.err
}

func (e *exitCodeError) ExitCode() int {
	return e.code
}

func (e *exitCodeError) Quiet() bool {
	return e.quiet
}

func usageError(err error) error {
	if err == nil {
		return nil
	}
	return &exitCodeError{code: exitUsage, msg: err.Error(), err: err}
}

// exitCode maps an error returned by a command onto the process exit status.
func exitCode(err error) int {
	if err == nil {
		return exitOK
	}
	var ce *exitCodeError
	if errors.As(err, &ce) {
		return ce.ExitCode()
	}
	switch {
	case errors.Is(err, engine.ErrIncomplete):
		return exitIncomplete
	case errors.Is(err, engine.ErrCorrupt):
		return exitCorrupt
	default:
		return exitFailure
	}
}
