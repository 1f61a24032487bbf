package upstream

import (
	"errors"
	"fmt"
	"net/http"
)

// APIError describes a failed upstream call: a transport failure (StatusCode
// 0), a non-2xx response, or an undecodable body.
type APIError struct {
	Service    string
	Endpoint   string
	StatusCode int
	Body       string
	Err        error
}

func (e *APIError) Error() string {
	switch {
	case e.StatusCode != 0 && e.Body != "":
		return fmt.Sprintf("%s API error: %s: status %d: %s", e.Service, e.Endpoint, e.StatusCode, e.Body)
	case e.Err != nil && e.StatusCode != 0:
		return fmt.Sprintf("%s API error: %s: status %d: %v", e.Service, e.Endpoint, e.StatusCode, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("%s API error: %s: %v", e.Service, e.Endpoint, e.Err)
	default:
		return fmt.Sprintf("%s API error: %s: status %d", e.Service, e.Endpoint, e.StatusCode)
	}
}

func (e *APIError) Unwrap() error { return e.Err }

// IsNotFound reports whether err is an upstream 404.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}
