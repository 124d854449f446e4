package remote

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
)

// Sentinel errors for classification. Use errors.Is(err, remote.ErrRejected)
// to detect a business-rule rejection.
var (
	// ErrRejected marks a non-retryable refusal: validation or business rule.
	ErrRejected = errors.New("remote: rejected")
	// ErrUnavailable marks a retryable failure: transport, timeout, overload.
	ErrUnavailable = errors.New("remote: unavailable")
)

// Error carries the HTTP status and the server's message for a failed call.
type Error struct {
	StatusCode int
	Message    string
	Fields     map[string]string // field-level detail from a rejection
	Err        error             // ErrRejected or ErrUnavailable, for errors.Is()
}

func (e *Error) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("remote: %s", e.Message)
	}
	return fmt.Sprintf("remote: HTTP %d: %s", e.StatusCode, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// isRetryableStatus reports whether a call answered with code may succeed later.
func isRetryableStatus(code int) bool {
	switch code {
	case http.StatusRequestTimeout,
		http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	default:
		return code > http.StatusInternalServerError
	}
}

// classifyStatus maps a non-2xx status code to a sentinel.
func classifyStatus(code int) error {
	if isRetryableStatus(code) {
		return ErrUnavailable
	}
	return ErrRejected
}

// IsRetryable reports whether err is worth replaying later: timeouts,
// connectivity loss and transient server errors. Rejections and caller
// cancellation are not. Unclassified errors default to retryable so an
// unknown transport failure never loses a write.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, ErrRejected) {
		return false
	}
	if errors.Is(err, ErrUnavailable) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	// Rejections from collaborators that do not use *Error still carry the
	// words the backend uses for validation failures.
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "validation") || strings.Contains(msg, "400") {
		return false
	}

	return true
}
