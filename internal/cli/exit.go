package cli

import (
	"errors"
	"fmt"

	"github.com/picklr-io/pinmatrix/internal/ir"
)

// Exit codes for each error kind.
const (
	ExitOK           = 0
	ExitError        = 1
	ExitUnresolvable = 2
	ExitDuplicate    = 3
	ExitBuildFailed  = 4
	ExitUnknown      = 5
)

// StatusError carries a child process exit status through the command
// tree. It is not reported as an error line.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("exit status %d", e.Code)
}

// ExitCode maps an error returned by Execute to a process exit code.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	var status *StatusError
	if errors.As(err, &status) {
		return status.Code
	}
	switch ir.Kind(err) {
	case ir.KindUnresolvableSource:
		return ExitUnresolvable
	case ir.KindDuplicateName:
		return ExitDuplicate
	case ir.KindBuildFailed:
		return ExitBuildFailed
	case ir.KindUnknownOutputName:
		return ExitUnknown
	default:
		return ExitError
	}
}

// IsStatus reports whether err only carries a child exit status.
func IsStatus(err error) bool {
	var status *StatusError
	return errors.As(err, &status)
}
