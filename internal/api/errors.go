package api

import (
	"errors"
	"fmt"
	"net/http"
)

// APIError represents a non-success response from the Gitea API. The status
// code doubles as a control-flow signal: callers probe endpoint support by
// checking for 404.
type APIError struct {
	StatusCode int
	URL        string
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api request to %s failed with status %d: %s", e.URL, e.StatusCode, e.Body)
}

// IsNotFound reports whether err is an APIError with HTTP status 404.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}
