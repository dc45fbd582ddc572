package helpers

import (
	"context"
	"fmt"
	"time"

	"market-streamer/src/logger"
)

// -----------------------------------------------------------------------------
// Custom Error Types
// -----------------------------------------------------------------------------

type MarketStreamerError struct {
	Message string
	Cause   error
}

func (e *MarketStreamerError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *MarketStreamerError) Unwrap() error {
	return e.Cause
}

// Distinct error types, matched with errors.As
type ConfigurationError struct{ MarketStreamerError }
type NetworkError struct{ MarketStreamerError }
type DatabaseError struct{ MarketStreamerError }

// AuthRejectedError: the feed answered AUTH with a state other than AUTHORIZED.
type AuthRejectedError struct{ MarketStreamerError }

// TransportError: the connection failed, dropped, or the handshake timed out.
type TransportError struct{ MarketStreamerError }

// DecodeError: a single row could not be decoded. Never fatal for a session.
type DecodeError struct {
	MarketStreamerError
	EventType string
}

// PreconditionError: an operation was invoked before its required step.
type PreconditionError struct{ MarketStreamerError }

// -----------------------------------------------------------------------------

func NewAuthRejectedError(state string) error {
	return &AuthRejectedError{MarketStreamerError{Message: fmt.Sprintf("authorization rejected (state=%s)", state)}}
}

func NewTransportError(message string, cause error) error {
	return &TransportError{MarketStreamerError{Message: message, Cause: cause}}
}

func NewDecodeError(eventType, format string, args ...interface{}) error {
	return &DecodeError{
		MarketStreamerError: MarketStreamerError{Message: fmt.Sprintf(format, args...)},
		EventType:           eventType,
	}
}

func NewPreconditionError(message string) error {
	return &PreconditionError{MarketStreamerError{Message: message}}
}

func NewConfigurationError(message string) error {
	return &ConfigurationError{MarketStreamerError{Message: message}}
}

func NewNetworkError(message string, cause error) error {
	return &NetworkError{MarketStreamerError{Message: message, Cause: cause}}
}

func NewDatabaseError(message string, cause error) error {
	return &DatabaseError{MarketStreamerError{Message: message, Cause: cause}}
}

// -----------------------------------------------------------------------------
// Retry Logic
// -----------------------------------------------------------------------------

// RetryWithBackoff attempts to execute the operation up to maxRetries times with exponential
// backoff. A nil log silences the per-attempt warnings. Errors marked permanent by fn
// (see Permanent) stop the loop immediately.
func RetryWithBackoff[T any](ctx context.Context, log *logger.Logger, operation string, maxRetries int, baseDelay time.Duration, fn func() (T, error)) (T, error) {
	var zero T
	var lastErr error

	if maxRetries < 1 {
		maxRetries = 1
	}

	for attempt := 0; attempt < maxRetries; attempt++ {
		res, err := fn()
		if err == nil {
			return res, nil
		}

		if p, ok := err.(*permanentError); ok {
			return zero, p.err
		}

		lastErr = err
		if attempt == maxRetries-1 {
			break
		}

		delay := baseDelay * (1 << attempt)
		if log != nil {
			log.Warning("Attempt %d/%d failed for %s: %v. Retrying in %v", attempt+1, maxRetries, operation, err, delay)
		}

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return zero, ctx.Err()
		}
	}

	return zero, fmt.Errorf("%s failed after %d attempts: %w", operation, maxRetries, lastErr)
}

// -----------------------------------------------------------------------------

type permanentError struct{ err error }

func (p *permanentError) Error() string { return p.err.Error() }

// Permanent wraps err so RetryWithBackoff returns it without further attempts.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}
