package resilience

import (
	"context"
	"errors"
	"net"
	"os"
	"strings"

	"github.com/nomis52/goinit/stage"
)

// Sentinel errors stage executors can wrap to steer classification
// explicitly instead of relying on message matching.
var (
	// ErrAuth marks authentication and permission failures; never retried.
	ErrAuth = errors.New("authentication failed")
	// ErrFatal marks unrecoverable state; never retried.
	ErrFatal = errors.New("fatal state")
	// ErrUnavailable marks connectivity-class failures; retried with
	// backoff.
	ErrUnavailable = errors.New("service unavailable")
)

// Classify assigns a severity to an error from the given stage.
//
// Authentication, permission and fatal-state errors are critical: they are
// never retried, and on a critical stage they fail the whole run. Any other
// error on a stage flagged critical is high. Connectivity and timeout class
// errors are medium. Everything else is low.
func Classify(err error, s stage.Stage) stage.Severity {
	if err == nil {
		return stage.SeverityLow
	}

	if isAuthOrFatal(err) {
		return stage.SeverityCritical
	}
	if s.Critical {
		return stage.SeverityHigh
	}
	if isConnectivity(err) {
		return stage.SeverityMedium
	}
	return stage.SeverityLow
}

func isAuthOrFatal(err error) bool {
	if errors.Is(err, ErrAuth) || errors.Is(err, ErrFatal) || errors.Is(err, os.ErrPermission) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range []string{"unauthorized", "unauthenticated", "permission denied", "forbidden", "invalid credentials"} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

func isConnectivity(err error) bool {
	if errors.Is(err, ErrUnavailable) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range []string{"timeout", "timed out", "connection refused", "connection reset", "no route to host", "network"} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

// Retryable reports whether a failure of the given severity may be
// re-attempted at all. Critical failures never retry; high severity
// failures retry only because the underlying error was not itself critical.
func Retryable(severity stage.Severity) bool {
	return severity != stage.SeverityCritical
}
