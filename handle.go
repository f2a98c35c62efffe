package broute

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
)

// DefaultDeadlineBuffer is subtracted from the deadline of the caller's context so a timed out route still has time to
// render its error response.
const DefaultDeadlineBuffer = 500 * time.Millisecond

type handlerResult struct {
	resp *Response
	err  error
}

// budget returns how long the handler may run: the smaller of the router timeout and what is left of the context's
// deadline minus buffer. When the buffer would use up the remaining time the full remaining time is used. It returns
// false when there is no limit at all.
func budget(ctx context.Context, timeout, buffer time.Duration) (time.Duration, bool) {
	dl, hasDeadline := ctx.Deadline()
	if !hasDeadline {
		return timeout, timeout > 0
	}

	remaining := time.Until(dl)
	if remaining > buffer {
		remaining -= buffer
	}

	if timeout > 0 && timeout < remaining {
		return timeout, true
	}

	return remaining, true
}

// runHandler runs the route handler on its own goroutine and races it against the budget. When the budget runs out
// first the handler is abandoned: it keeps running with the caller's context and its result is only logged.
func runHandler(
	ctx context.Context, rc *RoutingContext, route *Route, timeout, buffer time.Duration, logs Logger,
) (*Response, error) {
	done := make(chan handlerResult, 1)

	go func() {
		defer func() {
			if p := recover(); p != nil {
				done <- handlerResult{err: errors.Newf("handler panicked: %v", p)}
			}
		}()

		resp, err := route.handler(ctx, rc)
		done <- handlerResult{resp, err}
	}()

	limit, ok := budget(ctx, timeout, buffer)
	if !ok {
		res := <-done
		return res.resp, res.err
	}

	timer := time.NewTimer(limit)
	defer timer.Stop()

	select {
	case res := <-done:
		return res.resp, res.err
	case <-timer.C:
		go func() {
			res := <-done
			logs.LogAbandonedHandler(route, res.err)
		}()

		return nil, newTimeoutError(route, limit)
	}
}
