package processproxy

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrLaunchTimeout is matched by every *TimeoutError.
	ErrLaunchTimeout = errors.New("launch timed out")

	// ErrTerminationFailed indicates the scheduler did not report the
	// application as completed after a teardown request.
	ErrTerminationFailed = errors.New("termination failed")

	// ErrProcessExited is returned by a zero signal once the application has
	// completed.
	ErrProcessExited = errors.New("process exited")

	// ErrNoProcess indicates there is no local process to act on.
	ErrNoProcess = errors.New("no local process")
)

// StartupError is a fatal startup failure: the application was observed in a
// terminal state before the kernel was running, or the launcher died first.
type StartupError struct {
	KernelID      string
	ApplicationID string
	State         string

	// ExitCode is set when the local launcher exited before the application
	// id was known.
	ExitCode *int
}

func (e *StartupError) Error() string {
	if e.ExitCode != nil {
		return fmt.Sprintf("KernelID: '%s' launcher process exited with code %d before an application id was assigned",
			e.KernelID, *e.ExitCode)
	}
	return fmt.Sprintf("KernelID: '%s', ApplicationID: '%s' unexpectedly found in state '%s' during kernel startup!",
		e.KernelID, e.ApplicationID, e.State)
}

// TimeoutError is returned when confirmation exceeds its budget.
type TimeoutError struct {
	KernelID      string
	ApplicationID string
	Timeout       time.Duration
	Elapsed       time.Duration
}

func (e *TimeoutError) Error() string {
	if e.ApplicationID == "" {
		return fmt.Sprintf("KernelID: '%s' launch timeout due to: application ID not received after %s (elapsed %s)",
			e.KernelID, e.Timeout, e.Elapsed.Round(time.Millisecond))
	}
	return fmt.Sprintf("KernelID: '%s', ApplicationID: '%s' launch timeout: not running after %s (elapsed %s)",
		e.KernelID, e.ApplicationID, e.Timeout, e.Elapsed.Round(time.Millisecond))
}

func (e *TimeoutError) Unwrap() error {
	return ErrLaunchTimeout
}

// IsStartupFailure reports whether err aborted a launch: a startup or
// timeout failure.
func IsStartupFailure(err error) bool {
	var se *StartupError
	return errors.As(err, &se) || errors.Is(err, ErrLaunchTimeout)
}
