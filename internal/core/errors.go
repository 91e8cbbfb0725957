package core

import "errors"

// Error codes for session failures.
const (
	ErrCodeInvalidArgument = "invalid_argument"
	ErrCodeNotConnected    = "not_connected"
	ErrCodeSessionEnded    = "session_ended"
	ErrCodeTokenFailed     = "token_failed"
	ErrCodeConnectFailed   = "connect_failed"
	ErrCodeDisconnected    = "provider_disconnected"
	ErrCodeMicrophone      = "microphone_failed"
)

var (
	ErrInvalidArgument = errors.New("invalid argument")
	ErrNotConnected    = errors.New("session is not connected")
	ErrSessionEnded    = errors.New("session has ended")
)

// Error wraps a code, a human-readable message and the underlying cause.
type Error struct {
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

func coreError(code, msg string, err error) *Error {
	return &Error{Code: code, Message: msg, Err: err}
}

// ErrorCode returns the code of the first *Error in err's chain.
func ErrorCode(err error) string {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Code
	}
	return ""
}
