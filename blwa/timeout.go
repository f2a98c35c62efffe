package blwa

import (
	"context"
	"time"
)

// Behind Lambda Web Adapter the HTTP server is only reached by LWA on localhost, so the server level timeouts are
// an outer bound derived from the function timeout (BW_LAMBDA_TIMEOUT). The authoritative deadline is the
// invocation deadline from the x-amzn-lambda-context header: it becomes the deadline of the request context, minus
// a buffer, and the router budgets handlers against it.

// DefaultDeadlineBuffer is the default time reserved before the Lambda deadline
// for cleanup, error responses, and graceful shutdown.
const DefaultDeadlineBuffer = 500 * time.Millisecond

// TimeoutConfig holds timeout configuration for the HTTP server.
type TimeoutConfig struct {
	// LambdaTimeout is the configured Lambda function timeout from infrastructure.
	LambdaTimeout time.Duration

	// DeadlineBuffer defaults to DefaultDeadlineBuffer.
	DeadlineBuffer time.Duration
}

// ServerTimeouts returns the http.Server timeouts: the Lambda timeout minus the buffer, or the full Lambda timeout
// when the buffer would consume it. The header timeout is capped at 5s since LWA sends headers immediately.
func (tc TimeoutConfig) ServerTimeouts() (readHeaderTimeout, readTimeout, writeTimeout, idleTimeout time.Duration) {
	buffer := tc.DeadlineBuffer
	if buffer <= 0 {
		buffer = DefaultDeadlineBuffer
	}

	timeout := tc.LambdaTimeout - buffer
	if timeout <= 0 {
		timeout = tc.LambdaTimeout
	}

	return min(timeout, 5*time.Second), timeout, timeout, timeout
}

// withRequestDeadline derives a context that ends buffer before the invocation deadline of the LWA context in ctx.
// Without an LWA context, or with a deadline that already passed, ctx is returned unchanged.
func withRequestDeadline(ctx context.Context, buffer time.Duration) (context.Context, context.CancelFunc) {
	lwa := LWA(ctx)
	if lwa == nil || lwa.DeadlineTime().IsZero() {
		return ctx, func() {}
	}

	deadline := lwa.DeadlineTime().Add(-buffer)
	if time.Until(deadline) <= 0 {
		return ctx, func() {}
	}

	return context.WithDeadline(ctx, deadline)
}

// RequestDeadline returns the context deadline for the current request.
// Returns the zero time and false if no deadline is set.
func RequestDeadline(ctx context.Context) (time.Time, bool) {
	return ctx.Deadline()
}

// RequestRemainingTime returns the duration until the request context deadline.
// Returns 0 if no deadline is set or if the deadline has passed.
func RequestRemainingTime(ctx context.Context) time.Duration {
	deadline, ok := ctx.Deadline()
	if !ok {
		return 0
	}
	return max(time.Until(deadline), 0)
}
