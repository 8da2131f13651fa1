package errors

import (
	"context"
	"database/sql/driver"
	"errors"
	"net"

	"github.com/lib/pq"
)

// Transient reports whether err looks like a retryable store or network
// failure rather than a logic error. Callers map these to ErrTransient
// so clients know a retry may succeed.
func Transient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code.Class() {
		case "08", "53", "57": // connection, resources, operator intervention
			return true
		}
		switch pqErr.Code {
		case "40001", "40P01": // serialization failure, deadlock
			return true
		}
	}
	return false
}
