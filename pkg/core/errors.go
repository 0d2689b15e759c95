package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// RemoteErrorType categorizes remote call failures.
type RemoteErrorType string

const (
	// ErrQuotaExhausted means the upstream rejected the call for rate/quota
	// reasons. Callers should wait about a minute before retrying.
	ErrQuotaExhausted RemoteErrorType = "quota_exhausted"

	// ErrServiceUnavailable means the upstream is overloaded or down.
	ErrServiceUnavailable RemoteErrorType = "service_unavailable"

	// ErrTransient covers every other remote failure.
	ErrTransient RemoteErrorType = "transient"
)

// Retry delays advised per error class. These pace the caller's retry
// control; nothing in the core enforces them.
const (
	QuotaRetryDelay       = 60 * time.Second
	UnavailableRetryDelay = 10 * time.Second
	TransientRetryDelay   = 5 * time.Second
)

// Child-facing messages for the two classified failure modes. The copy is
// deliberately in the companion's voice: the reader is a kid.
const (
	quotaMessage       = "Whew! I was thinking too fast and need to catch my breath. Let's try again in a minute!"
	unavailableMessage = "My head feels a little foggy right now. Can we try again in a few seconds?"
	transientFallback  = "Oops, something got tangled up. Let's try that again!"
)

// RemoteError is the classified form of any failed remote call.
// Constructed per failure, never persisted.
type RemoteError struct {
	Type           RemoteErrorType
	Message        string
	RetryDelay     time.Duration
	QuotaExhausted bool
	Err            error
}

// Error implements the error interface.
func (e *RemoteError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the underlying error.
func (e *RemoteError) Unwrap() error {
	return e.Err
}

// StatusError is implemented by provider errors that carry an HTTP status.
type StatusError interface {
	error
	StatusCode() int
}

// Classify maps any remote failure into the three-way taxonomy. It inspects
// the HTTP status when the error carries one and falls back to signature
// sniffing on the message.
func Classify(err error) *RemoteError {
	if err == nil {
		return nil
	}

	// Already classified.
	var re *RemoteError
	if errors.As(err, &re) {
		return re
	}

	status := 0
	var se StatusError
	if errors.As(err, &se) {
		status = se.StatusCode()
	}

	msg := strings.ToLower(err.Error())

	switch {
	case status == 429 || containsAny(msg, "quota", "rate limit", "resource_exhausted", "429"):
		return &RemoteError{
			Type:           ErrQuotaExhausted,
			Message:        quotaMessage,
			RetryDelay:     QuotaRetryDelay,
			QuotaExhausted: true,
			Err:            err,
		}

	case status == 503 || containsAny(msg, "unavailable", "overloaded", "503"):
		return &RemoteError{
			Type:       ErrServiceUnavailable,
			Message:    unavailableMessage,
			RetryDelay: UnavailableRetryDelay,
			Err:        err,
		}

	default:
		message := strings.TrimSpace(err.Error())
		if message == "" {
			message = transientFallback
		}
		return &RemoteError{
			Type:       ErrTransient,
			Message:    message,
			RetryDelay: TransientRetryDelay,
			Err:        err,
		}
	}
}

// Invoke runs op and classifies any failure into a *RemoteError. It is a
// pure reclassification layer: it never retries, and it adds no timeout
// beyond what the transport enforces.
func Invoke[T any](ctx context.Context, op func(ctx context.Context) (T, error)) (T, error) {
	result, err := op(ctx)
	if err != nil {
		var zero T
		return zero, Classify(err)
	}
	return result, nil
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
