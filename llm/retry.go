package llm

import (
	"context"
	"errors"
	"fmt"
)

// RetryingClient wraps a Client and applies spec.md §7's transport-failure
// policy: on a transport error, retry the same call once with the same
// payload; a second failure aborts with a FatalError carrying the last HTTP
// status and body prefix.
type RetryingClient struct {
	inner Client
}

// WithRetry wraps inner in a single-retry policy.
func WithRetry(inner Client) *RetryingClient {
	return &RetryingClient{inner: inner}
}

// FatalError is returned when both the original call and its retry fail. It
// is the error the Loop Controller surfaces as the run's fatal abort.
type FatalError struct {
	Attempts int
	Last     error
}

func (e *FatalError) Error() string {
	var te *TransportError
	if errors.As(e.Last, &te) {
		return fmt.Sprintf("LLM call failed after %d attempts: status %d: %s", e.Attempts, te.StatusCode, te.BodyPrefix)
	}
	return fmt.Sprintf("LLM call failed after %d attempts: %v", e.Attempts, e.Last)
}

func (e *FatalError) Unwrap() error { return e.Last }

// Call invokes inner.Call, retrying once on error with the identical
// request. A second failure returns a *FatalError, never the raw underlying
// error, so callers can rely on errors.As with a *FatalError target to
// recognize an unrecoverable transport abort.
func (c *RetryingClient) Call(ctx context.Context, req Request) (*Response, error) {
	resp, err := c.inner.Call(ctx, req)
	if err == nil {
		return resp, nil
	}

	resp, err2 := c.inner.Call(ctx, req)
	if err2 == nil {
		return resp, nil
	}

	return nil, &FatalError{Attempts: 2, Last: err2}
}
