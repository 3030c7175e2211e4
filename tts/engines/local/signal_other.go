//go:build !unix

package local

import (
	"errors"
	"os"
)

var errPauseUnsupported = errors.New("pausing a speech process is not supported on this platform")

func suspendProcess(*os.Process) error { return errPauseUnsupported }

func resumeProcess(*os.Process) error { return errPauseUnsupported }
