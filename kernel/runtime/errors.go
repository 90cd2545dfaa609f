package runtime

import (
	"errors"
	"fmt"

	"github.com/basnijholt/kernelchat/kernel/host"
)

// ThreadBusyError indicates one thread already has an in-flight turn.
type ThreadBusyError struct {
	AppName  string
	UserID   string
	ThreadID string
}

func (e *ThreadBusyError) Error() string {
	if e == nil {
		return "runtime: thread is busy"
	}
	return fmt.Sprintf("runtime: thread %q is busy for app=%q user=%q", e.ThreadID, e.AppName, e.UserID)
}

func (e *ThreadBusyError) Code() host.ErrorCode {
	return host.ErrorCodeThreadBusy
}

func IsThreadBusy(err error) bool {
	var target *ThreadBusyError
	return errors.As(err, &target)
}
