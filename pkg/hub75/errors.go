package hub75

import (
	"errors"
	"fmt"
)

// ErrPinMismatch means the controller configured a different set of output
// pins than the panel asked for. The pin table does not match the platform.
var ErrPinMismatch = errors.New("configured output pins differ from requested pins")

// StartupError is a failure while bringing up the hardware. There is no safe
// partially-initialized state to retry from, so callers must abort.
type StartupError struct {
	Stage string
	Err   error
}

func (e *StartupError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *StartupError) Unwrap() error {
	return e.Err
}

// IsStartup reports whether err is an unrecoverable startup failure
func IsStartup(err error) bool {
	var se *StartupError
	return errors.As(err, &se)
}

func startupError(stage string, err error) error {
	if err == nil {
		return nil
	}
	return &StartupError{Stage: stage, Err: err}
}
