package transport

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies a failed request. The retry loop and the orchestrator both
// branch on it, never on raw error strings.
type Kind int

const (
	KindNetwork     Kind = iota // no response received
	KindTimeout                 // request deadline exceeded
	KindServerError             // HTTP 5xx
	KindRateLimited             // HTTP 429
	KindClientError             // other 4xx — never retried
	KindCancelled               // caller cancelled the context
)

// String returns a human-readable kind name (for logs / status fields).
func (k Kind) String() string {
	switch k {
	case KindNetwork:
		return "network"
	case KindTimeout:
		return "timeout"
	case KindServerError:
		return "server_error"
	case KindRateLimited:
		return "rate_limited"
	case KindClientError:
		return "client_error"
	case KindCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Error is the typed failure returned by Client.Execute after classification.
// Status is zero when no response was received.
type Error struct {
	Kind   Kind
	Status int
	Op     string // "GET /heartbeat" etc.
	Err    error
}

func (e *Error) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("transport: %s: %s (status %d)", e.Op, e.Kind, e.Status)
	}
	if e.Err != nil {
		return fmt.Sprintf("transport: %s: %s: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("transport: %s: %s", e.Op, e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// Retryable reports whether the default policy retries this failure:
// no response (network/timeout), 5xx, 429 and 408.
func (e *Error) Retryable() bool {
	switch e.Kind {
	case KindNetwork, KindTimeout, KindServerError, KindRateLimited:
		return true
	case KindClientError:
		return e.Status == http.StatusRequestTimeout
	default:
		return false
	}
}

// classifyStatus maps an HTTP response status to an error kind.
func classifyStatus(status int) Kind {
	switch {
	case status == http.StatusTooManyRequests:
		return KindRateLimited
	case status >= 500:
		return KindServerError
	default:
		return KindClientError
	}
}

// classifyErr maps a transport-level failure (no response) to an error kind.
func classifyErr(err error) Kind {
	switch {
	case errors.Is(err, context.Canceled):
		return KindCancelled
	case errors.Is(err, context.DeadlineExceeded):
		return KindTimeout
	default:
		var ne interface{ Timeout() bool }
		if errors.As(err, &ne) && ne.Timeout() {
			return KindTimeout
		}
		return KindNetwork
	}
}

// IsKind reports whether err is a transport Error of the given kind.
func IsKind(err error, k Kind) bool {
	var te *Error
	return errors.As(err, &te) && te.Kind == k
}
