// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package process

import (
	"errors"
	"fmt"
	"io"
	"os"
)

// Exit statuses.
const (
	ExitFailure = 1
	ExitUsage   = 2
)

// ExitError carries a specific exit status out of run().
type ExitError struct {
	Code int
	Err  error
}

func (err *ExitError) Error() string {
	if err.Err == nil {
		return fmt.Sprintf("exit status %d", err.Code)
	}
	return err.Err.Error()
}

func (err *ExitError) Unwrap() error {
	return err.Err
}

// Usage wraps err as a command-line usage error.
func Usage(err error) error {
	return &ExitError{Code: ExitUsage, Err: err}
}

// Report writes "error: err" to w and returns the exit status for err.
// Nothing is written for a silent [ExitError].
func Report(w io.Writer, err error) int {
	code := ExitFailure
	var exit *ExitError
	if errors.As(err, &exit) {
		code = exit.Code
		if exit.Err == nil {
			return code
		}
	}
	fmt.Fprintf(w, "error: %v\n", err)
	return code
}

// Fatal reports err to stderr and exits with its status.
func Fatal(err error) {
	os.Exit(Report(os.Stderr, err))
}
