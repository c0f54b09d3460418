package client

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

var (
	// ErrDaemonNotRunning is returned when the daemon is not running
	ErrDaemonNotRunning = errors.New("daemon not running")

	// ErrPermissionDenied is returned when the user does not have permission to perform the requested action
	ErrPermissionDenied = errors.New("permission denied")

	// ErrNotFound is returned when 404 is returned from the daemon
	ErrNotFound = errors.New("404 not found")

	// ErrBadRequest is returned when the daemon rejects a malformed request.
	ErrBadRequest = errors.New("400 bad request")

	// ErrConflict is returned when the session state does not allow the request.
	ErrConflict = errors.New("409 conflict")
)

// APIError is a non-2xx response from the daemon.
type APIError struct {
	StatusCode int
	Message    string
}

func newAPIError(code int, body []byte) *APIError {
	msg := strings.TrimSpace(string(body))
	// Errors are written as JSON strings.
	var s string
	if err := json.Unmarshal(body, &s); err == nil {
		msg = s
	}
	return &APIError{StatusCode: code, Message: msg}
}

func (e *APIError) Error() string {
	return fmt.Sprintf("got %d: %s", e.StatusCode, e.Message)
}

func (e *APIError) Is(target error) bool {
	switch e.StatusCode {
	case http.StatusNotFound:
		return target == ErrNotFound
	case http.StatusBadRequest:
		return target == ErrBadRequest
	case http.StatusConflict:
		return target == ErrConflict
	}
	return false
}
