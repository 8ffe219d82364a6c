package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Error classes. Concrete errors report membership through errors.Is.
var (
	ErrAuthentication = errors.New("authentication failed")
	ErrValidation     = errors.New("invalid request")
	ErrRemote         = errors.New("remote error")
	ErrNetwork        = errors.New("network error")

	// ErrAuthRequired means the session could not be recovered and the user
	// has to log in again.
	ErrAuthRequired = fmt.Errorf("%w: login required", ErrAuthentication)
)

// HTTPError is a non-2xx response from the backend.
type HTTPError struct {
	Status  int
	Message string
	Path    string
}

func (e *HTTPError) Error() string {
	return e.Message
}

// Is maps the status code onto the error classes.
func (e *HTTPError) Is(target error) bool {
	switch target {
	case ErrAuthentication:
		return e.Status == http.StatusUnauthorized
	case ErrValidation:
		return e.Status == http.StatusBadRequest || e.Status == http.StatusUnprocessableEntity
	case ErrRemote:
		return e.Status != http.StatusUnauthorized &&
			e.Status != http.StatusBadRequest &&
			e.Status != http.StatusUnprocessableEntity
	}
	return false
}

// NetworkError means no response was received.
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("%s: unable to reach the server: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

func (e *NetworkError) Is(target error) bool {
	return target == ErrNetwork
}

// UserMessage returns the text to show for err in an inline error state.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	var httpErr *HTTPError
	switch {
	case errors.Is(err, ErrAuthRequired):
		return "Session expired. Please log in again."
	case errors.Is(err, ErrNetwork):
		return "Unable to reach the server. Check your connection."
	case errors.As(err, &httpErr):
		return httpErr.Message
	default:
		return err.Error()
	}
}

// newHTTPError builds an HTTPError carrying the backend message when the body
// has one, else a message derived from the status.
func newHTTPError(status int, path string, body []byte) *HTTPError {
	msg := errorMessage(body)
	if msg == "" {
		msg = fmt.Sprintf("HTTP error %d: %s", status, http.StatusText(status))
	}
	return &HTTPError{Status: status, Message: msg, Path: path}
}

func errorMessage(body []byte) string {
	var payload struct {
		Error   json.RawMessage `json:"error"`
		Message string          `json:"message"`
	}
	if len(body) == 0 || json.Unmarshal(body, &payload) != nil {
		return ""
	}
	if msg := rawString(payload.Error); msg != "" {
		return msg
	}
	// {"error": {"message": "..."}} envelopes.
	var nested struct {
		Message string `json:"message"`
	}
	if len(payload.Error) > 0 && json.Unmarshal(payload.Error, &nested) == nil && nested.Message != "" {
		return strings.TrimSpace(nested.Message)
	}
	return strings.TrimSpace(payload.Message)
}

func rawString(raw json.RawMessage) string {
	var s string
	if len(raw) == 0 || json.Unmarshal(raw, &s) != nil {
		return ""
	}
	return strings.TrimSpace(s)
}
