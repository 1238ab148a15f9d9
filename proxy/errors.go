package proxy

import (
	"errors"
	"fmt"
	"strings"
)

// ErrDisposed is returned for calls against a handle that was disposed
// without crashing.
var ErrDisposed = errors.New("worker handle disposed")

// RemoteError reports that the worker executed a call and it failed.
// Scoped to one call; the handle stays healthy.
type RemoteError struct {
	// Method is the remote method that failed.
	Method string
	// Message is the failure description reported by the worker.
	Message string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("remote call %q failed: %s", e.Method, e.Message)
}

// IsRemoteError returns true if the error is a RemoteError.
func IsRemoteError(err error) bool {
	var remoteErr *RemoteError
	return errors.As(err, &remoteErr)
}

// CrashError is the fatal error cached on a handle after its worker
// terminates unexpectedly. Every pending call is rejected with it, and
// every later call fails with it immediately.
type CrashError struct {
	// Status is how the worker exited.
	Status ExitStatus
	// Tail is the most recent captured output, oldest first. May be empty.
	Tail []string
}

func (e *CrashError) Error() string {
	if len(e.Tail) == 0 {
		return fmt.Sprintf("worker terminated unexpectedly (%s); no output captured", e.Status)
	}
	return fmt.Sprintf("worker terminated unexpectedly (%s); recent output:\n\t%s",
		e.Status, strings.Join(e.Tail, "\n\t"))
}

// IsCrashError returns true if the error is a CrashError.
func IsCrashError(err error) bool {
	var crashErr *CrashError
	return errors.As(err, &crashErr)
}
