package appwrite

import (
	"errors"
	"fmt"
	"net/http"
)

// Error is the error body returned by the Appwrite REST API.
type Error struct {
	Code    int    `json:"code"`
	Type    string `json:"type"`
	Message string `json:"message"`
	Version string `json:"version,omitempty"`
}

func (e *Error) Error() string {
	if e.Type == "" {
		return fmt.Sprintf("appwrite: %s (code %d)", e.Message, e.Code)
	}

	return fmt.Sprintf("appwrite: %s (code %d, type %s)", e.Message, e.Code, e.Type)
}

// StatusCode returns the HTTP status carried by err, or 0 when err is not an *Error.
func StatusCode(err error) int {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Code
	}

	return 0
}

// IsNotFound reports whether err is an API error with status 404.
func IsNotFound(err error) bool {
	return StatusCode(err) == http.StatusNotFound
}

// IsConflict reports whether err is an API error with status 409.
func IsConflict(err error) bool {
	return StatusCode(err) == http.StatusConflict
}

// IsServerError reports whether err is an API error with a 5xx status.
func IsServerError(err error) bool {
	return StatusCode(err) >= http.StatusInternalServerError
}
