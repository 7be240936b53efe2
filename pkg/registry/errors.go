package registry

import (
	"fmt"

	"github.com/itsneelabh/eureka/core"
)

// StatusError is returned when a reachable registry answers a query with a
// status the operation does not accept. It unwraps to core.ErrRequestRejected.
type StatusError struct {
	Op         string
	StatusCode int
	Body       []byte
}

func newStatusError(op string, resp *Response) *StatusError {
	return &StatusError{
		Op:         op,
		StatusCode: resp.StatusCode,
		Body:       resp.Body,
	}
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: registry answered %d", e.Op, e.StatusCode)
}

func (e *StatusError) Unwrap() error {
	return core.ErrRequestRejected
}
