// Package exitcode defines the process exit codes for the signon CLI.
package exitcode

import (
	"errors"
	"os"

	"github.com/signonhq/signon/internal/idp"
)

// Exit codes for consistent error handling across the CLI
const (
	// Success indicates successful execution
	Success = 0

	// GeneralError indicates a general error condition
	GeneralError = 1

	// UsageError indicates invalid command usage (bad flags, missing args, etc.)
	UsageError = 2

	// AuthError indicates the session is unauthenticated or a sign-in failed
	AuthError = 5

	// NetworkError indicates the identity service could not be reached
	NetworkError = 6

	// Interrupted indicates the user aborted with an interrupt signal
	Interrupted = 130
)

// Exit terminates the program with the given exit code
func Exit(code int) {
	os.Exit(code)
}

// ExitWithError exits with an appropriate code based on error type
func ExitWithError(err error) {
	Exit(DetermineExitCode(err))
}

// DetermineExitCode analyzes an error and returns the appropriate exit code
func DetermineExitCode(err error) int {
	if err == nil {
		return Success
	}

	var perr *idp.ProviderError
	if errors.As(err, &perr) {
		switch perr.Code {
		case idp.CodeProviderUnavailable:
			return NetworkError
		case idp.CodeUserCancelled, idp.CodeDuplicateRequest, idp.CodeProviderFailure:
			return AuthError
		}
	}

	return GeneralError
}
