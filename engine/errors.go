package engine

import (
	"errors"
	"fmt"

	"github.com/pithecene-io/scenesync/wire"
)

var (
	// ErrAlreadyRunning is returned by Start while a session exists.
	ErrAlreadyRunning = errors.New("sync session already running")
	// ErrNotRunning is returned by Publish and the triggers with no session.
	ErrNotRunning = errors.New("sync session not running")
	// ErrObjectNotFound is returned by an Applier when the named object
	// does not exist in the host scene.
	ErrObjectNotFound = errors.New("object not found")
)

// ConnectError reports a failed dial.
type ConnectError struct {
	Address string
	Err     error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("failed to connect to %s: %v", e.Address, e.Err)
}

func (e *ConnectError) Unwrap() error {
	return e.Err
}

// IsFrameTooLarge reports whether err is an oversized frame error.
func IsFrameTooLarge(err error) bool {
	return errors.Is(err, wire.ErrFrameTooLarge)
}

// IsSendError reports whether err is a failed or short frame write.
func IsSendError(err error) bool {
	var sendErr *wire.SendError
	return errors.As(err, &sendErr)
}
