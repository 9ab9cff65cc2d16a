package dpa

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"
)

// Request is one outgoing DPA request buffer.
type Request struct {
	// NADR is the network address the request targets.
	NADR uint16
	// Payload is the full request buffer produced by the packet codec,
	// including its 6-byte header.
	Payload []byte
}

// Confirmation is the optional confirmation packet a coordinator may send
// before the final response.
type Confirmation struct {
	Payload []byte
}

// Response is the final DPA response to a request.
type Response struct {
	Payload []byte
}

// DefaultRetryBackoff is the fixed back-off interval ExecuteWithRetry
// waits between attempts (spec.md §4.1: "wait a protocol back-off
// (implementation choice: ~2s)").
const DefaultRetryBackoff = 2 * time.Second

// Client is the single-request DPA transport. Implementations never
// parallelize calls; serialization of the underlying link is the client's
// own responsibility.
type Client interface {
	// Execute sends req and blocks until a response, a transport error, or
	// timeout. timeout<=0 uses the client's own default.
	Execute(ctx context.Context, req Request, timeout time.Duration) (*Confirmation, *Response, error)
}

// retryingClient adapts a Client so every Execute call goes through
// ExecuteWithRetry with a fixed retry count, letting callers (e.g. the
// splitter handlers) depend on a plain Client without threading retries
// through every call site.
type retryingClient struct {
	inner   Client
	retries int
	log     *zap.SugaredLogger
}

// WithRetry wraps inner so every Execute call retries up to retries
// extra times via ExecuteWithRetry.
func WithRetry(inner Client, retries int, log *zap.SugaredLogger) Client {
	return &retryingClient{inner: inner, retries: retries, log: log}
}

func (c *retryingClient) Execute(ctx context.Context, req Request, timeout time.Duration) (*Confirmation, *Response, error) {
	return ExecuteWithRetry(ctx, c.inner, req, timeout, c.retries, c.log)
}

// ExecuteWithRetry wraps a Client.Execute call: on TransportError or
// DPAError it waits DefaultRetryBackoff and retries, up to retries extra
// attempts (so at most retries+1 requests are sent, per spec.md §8's
// retry-bound property).
func ExecuteWithRetry(ctx context.Context, c Client, req Request, timeout time.Duration, retries int, log *zap.SugaredLogger) (*Confirmation, *Response, error) {
	policy := &backoff.ConstantBackOff{Interval: DefaultRetryBackoff}

	var lastErr error
	attempts := retries + 1
	for attempt := 0; attempt < attempts; attempt++ {
		conf, resp, err := c.Execute(ctx, req, timeout)
		if err == nil {
			return conf, resp, nil
		}
		lastErr = err
		if !IsRetryable(err) {
			return nil, nil, err
		}
		if attempt == attempts-1 {
			break
		}
		if log != nil {
			log.Warnw("dpa: retrying after error", "attempt", attempt+1, "error", err)
		}
		wait := policy.NextBackOff()
		select {
		case <-ctx.Done():
			return nil, nil, ctx.Err()
		case <-time.After(wait):
		}
	}
	return nil, nil, lastErr
}
