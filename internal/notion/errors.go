package notion

import (
	"errors"
	"fmt"
)

var (
	ErrMissingToken      = errors.New("notion: api token is required")
	ErrMissingParentPage = errors.New("notion: parent page id is required")
)

// RemoteError is a non-2xx response from the destination API. The client
// never retries these; callers decide.
type RemoteError struct {
	Status int
	Body   string
}

func (e *RemoteError) Error() string {
	body := e.Body
	if len(body) > 300 {
		body = body[:300] + "..."
	}
	return fmt.Sprintf("notion: remote status %d: %s", e.Status, body)
}

// TransportError is a connection-level failure (dial, timeout, broken body)
// as opposed to a remote rejection.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("notion: %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }
