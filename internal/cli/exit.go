// Package cli implements the hubctl commands.
package cli

import "fmt"

const (
	exitSuccess      = 0
	exitFailure      = 1
	exitSendFailed   = 2
	exitFileNotFound = 3
	exitInputParse   = 4
	exitConfig       = 5
	exitNotFound     = 6
)

// ExitError carries the process exit code a command wants.
type ExitError struct {
	Code    int
	Message string
}

func (e *ExitError) Error() string {
	return e.Message
}

func exitError(code int, format string, args ...any) *ExitError {
	return &ExitError{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
	}
}
