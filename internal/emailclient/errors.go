package emailclient

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// ErrBreakerOpen is returned without contacting the remote while the circuit
// breaker is open (or refusing extra probes in half-open state).
var ErrBreakerOpen = errors.New("email service circuit breaker open")

// StatusError is a non-2xx response from the delivery API.
type StatusError struct {
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("email service returned status %d", e.StatusCode)
}

// Retryable classifies a delivery error as transient. 5xx, 408, 429, and any
// transport-level failure (timeout, refused connection, DNS) are transient;
// every other HTTP status is terminal for the attempt loop. A breaker-open
// result counts as transient for record-status purposes.
func Retryable(err error) bool {
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.StatusCode >= 500 ||
			statusErr.StatusCode == 408 ||
			statusErr.StatusCode == 429
	}
	return true
}

// Classification labels an error for structured logs.
func Classification(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, ErrBreakerOpen):
		return "breaker_open"
	case isTimeout(err):
		return "timeout"
	case Retryable(err):
		return "transient"
	default:
		return "terminal"
	}
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
