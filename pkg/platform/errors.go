package platform

import (
	"errors"
	"fmt"
	"net/http"
)

// APIError describes a platform API response outside the success range.
// The reconciliation engine inspects the status code to distinguish the
// not-found control signal from genuine transport failures.
type APIError struct {
	// StatusCode is the HTTP status code of the response.
	StatusCode int

	// Method is the HTTP method of the failed request.
	Method string

	// Path is the request path relative to the API base.
	Path string

	// Body is the response body, truncated to the client's read limit.
	Body string
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("platform API %s %s: status %d", e.Method, e.Path, e.StatusCode)
	}
	return fmt.Sprintf("platform API %s %s: status %d: %s", e.Method, e.Path, e.StatusCode, e.Body)
}

// IsNotFound reports whether err is a platform API error with a 404 status.
// Not-found is a control signal for the reconciler, not a failure.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

// StatusCode returns the HTTP status code carried by err, or 0 when err is
// not a platform API error.
func StatusCode(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	return 0
}
