// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import "fmt"

// Exit codes shared by every command.
const (
	ExitOK      = 0
	ExitFailure = 1
	ExitInvalid = 2
	ExitPartial = 3
	ExitFailed  = 4
)

// ExitError signals a non-zero exit code without printing an extra
// error message. When a command handler returns an ExitError, main
// exits with the specified code without printing the error string:
// the command has already written its own output.
//
// verify uses it for invalid containers and regenerate for partial
// and failed recoveries. These are outcomes, not unexpected errors.
type ExitError struct {
	Code int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("exit code %d", e.Code)
}

// ExitCode returns the exit code. main checks for this interface on
// returned errors to distinguish a handled non-zero exit from an
// unexpected error to display.
func (e *ExitError) ExitCode() int {
	return e.Code
}
