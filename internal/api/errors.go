package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/vovakirdan/calldesk/internal/proto"
)

// Error codes produced by the client itself or recognised from the backend.
const (
	CodeUnauthorized        = "unauthorized"
	CodeNetwork             = "network_error"
	CodeDecode              = "decode_error"
	CodeStream              = "stream_error"
	CodeInsufficientBalance = "insufficient_balance"
)

// Error is the single error shape callers observe for backend calls.
// Status is zero when the request never produced an HTTP response.
type Error struct {
	Status  int
	Code    string
	Message string
	Details any

	cause error
}

func (e *Error) Error() string {
	return e.Message
}

// Unwrap exposes the transport or decode failure behind the error, if any.
func (e *Error) Unwrap() error {
	return e.cause
}

// HTTPStatus reports the response status, zero for transport failures.
func (e *Error) HTTPStatus() int {
	return e.Status
}

// AsError extracts an *Error from err.
func AsError(err error) (*Error, bool) {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}

// StatusOf returns the HTTP status carried by err, or zero.
func StatusOf(err error) int {
	if apiErr, ok := AsError(err); ok {
		return apiErr.Status
	}
	return 0
}

// IsUnauthorized reports whether err is an HTTP 401 from the backend.
func IsUnauthorized(err error) bool {
	return StatusOf(err) == http.StatusUnauthorized
}

// IsInsufficientBalance reports whether err is the billing rejection,
// whether it came as an HTTP response or as a streamed error event.
func IsInsufficientBalance(err error) bool {
	apiErr, ok := AsError(err)
	return ok && apiErr.Code == CodeInsufficientBalance
}

func networkError(err error) *Error {
	return &Error{
		Code:    CodeNetwork,
		Message: fmt.Sprintf("network error: %v", err),
		cause:   err,
	}
}

// errorFromResponse normalises a non-2xx body into *Error.
func errorFromResponse(status int, body []byte) *Error {
	apiErr := &Error{
		Status:  status,
		Message: statusText(status),
	}
	if status == http.StatusUnauthorized {
		apiErr.Code = CodeUnauthorized
	}

	var env proto.ErrorEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return apiErr
	}
	applyEnvelope(apiErr, &env)
	return apiErr
}

func applyEnvelope(apiErr *Error, env *proto.ErrorEnvelope) {
	if env.Error != nil {
		if env.Error.Code != "" {
			apiErr.Code = env.Error.Code
		}
		if msg := strings.TrimSpace(env.Error.Message); msg != "" {
			apiErr.Message = msg
		}
		if len(env.Error.Details) > 0 {
			var details any
			if err := json.Unmarshal(env.Error.Details, &details); err == nil {
				apiErr.Details = details
			}
		}
	}
	if msg := strings.TrimSpace(env.Message); msg != "" && (env.Error == nil || env.Error.Message == "") {
		apiErr.Message = msg
	}
}

func statusText(status int) string {
	if text := http.StatusText(status); text != "" {
		return text
	}
	return fmt.Sprintf("HTTP %d", status)
}
