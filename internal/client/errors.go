package client

import (
	"errors"
	"fmt"
)

// ErrUnknownOperation is returned when the client's schema has no operation
// with the requested id. It usually means the cached schema is stale and
// the caller should force a rebuild.
var ErrUnknownOperation = errors.New("unknown API operation")

// StatusError is returned for non-2xx responses.
type StatusError struct {
	URL  string
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("GET %s: status %d", e.URL, e.Code)
	}
	return fmt.Sprintf("GET %s: status %d: %s", e.URL, e.Code, e.Body)
}
