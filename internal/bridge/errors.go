package bridge

import (
	"errors"
	"fmt"
)

// Error is a session-level failure reported to callers through the
// connection-result and streaming-result notifications.
type Error struct {
	Code    string
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Error codes
const (
	ErrCodeLinkFailed      = "LINK_FAILED"
	ErrCodeProvisionFailed = "PROVISION_FAILED"
	ErrCodeAcquireTimeout  = "ACQUIRE_TIMEOUT"
	ErrCodeAcquireFailed   = "ACQUIRE_FAILED"
	ErrCodeNoDevices       = "NO_DEVICES"
	ErrCodeNoChannels      = "NO_CHANNELS"
)

// NewError creates a new bridge error
func NewError(code, message string, cause error) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// Errors returned to callers of Service.
var (
	ErrControlQueueFull = errors.New("control queue full")
	ErrNotRunning       = errors.New("bridge not running")
)

// IsCode reports whether err is a bridge Error with the given code.
func IsCode(err error, code string) bool {
	var e *Error
	return errors.As(err, &e) && e.Code == code
}
