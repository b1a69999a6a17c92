package cli

import (
	"errors"

	"github.com/tollgate/tollgate/internal/domain"
)

// Process exit codes.
const (
	ExitOK               = 0
	ExitFailure          = 1
	ExitNotFound         = 3
	ExitAlreadyResolved  = 4
	ExitMissingRationale = 5
)

// ExitCode maps a command error to the process exit code.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return ExitOK
	case errors.Is(err, domain.ErrNotFound):
		return ExitNotFound
	case errors.Is(err, domain.ErrAlreadyResolved):
		return ExitAlreadyResolved
	case errors.Is(err, domain.ErrMissingRationale):
		return ExitMissingRationale
	default:
		return ExitFailure
	}
}
