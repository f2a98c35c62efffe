package broute

import (
	"context"
	"slices"
)

// MiddlewareKind identifies a middleware. A router holds at most one middleware per kind and routes opt into a
// middleware by declaring metadata under its kind.
type MiddlewareKind string

// Middleware is registered on the router and runs around every matched route. It implements [BeforeMiddleware],
// [AfterMiddleware] or both.
type Middleware interface {
	MiddlewareKind() MiddlewareKind
}

// BeforeMiddleware runs before the handler. Returning a response skips the handler and later before hooks.
type BeforeMiddleware interface {
	Middleware
	Before(ctx context.Context, rc *RoutingContext, route *Route, metadata any) (*Response, error)
}

// AfterMiddleware runs after the handler and may replace the response.
type AfterMiddleware interface {
	Middleware
	After(ctx context.Context, rc *RoutingContext, route *Route, metadata any, resp *Response) (*Response, error)
}

// MiddlewareFuncs builds a middleware from plain functions. Either function may be nil.
type MiddlewareFuncs struct {
	Kind       MiddlewareKind
	BeforeFunc func(ctx context.Context, rc *RoutingContext, route *Route, metadata any) (*Response, error)
	AfterFunc  func(ctx context.Context, rc *RoutingContext, route *Route, metadata any, resp *Response) (*Response, error)
}

// MiddlewareKind returns m.Kind.
func (m MiddlewareFuncs) MiddlewareKind() MiddlewareKind { return m.Kind }

// Before calls BeforeFunc, if set.
func (m MiddlewareFuncs) Before(ctx context.Context, rc *RoutingContext, route *Route, md any) (*Response, error) {
	if m.BeforeFunc == nil {
		return nil, nil
	}

	return m.BeforeFunc(ctx, rc, route, md)
}

// After calls AfterFunc, if set, and passes resp through otherwise.
func (m MiddlewareFuncs) After(
	ctx context.Context, rc *RoutingContext, route *Route, md any, resp *Response,
) (*Response, error) {
	if m.AfterFunc == nil {
		return resp, nil
	}

	return m.AfterFunc(ctx, rc, route, md, resp)
}

// runBefore runs the before hooks in registration order and stops at the first response.
func runBefore(ctx context.Context, mws []Middleware, rc *RoutingContext, route *Route) (*Response, error) {
	for _, mw := range mws {
		bmw, ok := mw.(BeforeMiddleware)
		if !ok {
			continue
		}

		resp, err := bmw.Before(ctx, rc, route, route.Metadata(mw.MiddlewareKind()))
		if err != nil {
			return nil, err
		}

		if resp != nil {
			return resp, nil
		}
	}

	return nil, nil
}

// runAfter runs the after hooks in reverse registration order, each receiving the response of the previous one.
func runAfter(
	ctx context.Context, mws []Middleware, rc *RoutingContext, route *Route, resp *Response,
) (*Response, error) {
	for _, mw := range slices.Backward(mws) {
		amw, ok := mw.(AfterMiddleware)
		if !ok {
			continue
		}

		next, err := amw.After(ctx, rc, route, route.Metadata(mw.MiddlewareKind()), resp)
		if err != nil {
			return nil, err
		}

		if next != nil {
			resp = next
		}
	}

	return resp, nil
}
