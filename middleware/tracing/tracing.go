// Package tracing provides a middleware that starts a server span for every routed request. Register it first so
// that its before hook runs before, and its after hook after, all other middleware.
package tracing

import (
	"context"
	"net/http"
	"strings"

	"github.com/advdv/broute"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

// Kind is the middleware kind of the tracing middleware.
const Kind broute.MiddlewareKind = "tracing"

// ScopeName is the instrumentation scope of the spans.
const ScopeName = "github.com/advdv/broute/middleware/tracing"

// Metadata configures tracing for a single route.
type Metadata struct {
	// Disabled skips the span for the route.
	Disabled bool
	// Attributes are added to the span.
	Attributes []attribute.KeyValue
}

type spanKey struct{}

// Middleware traces routed requests.
type Middleware struct {
	tracer trace.Tracer
	prop   propagation.TextMapPropagator
}

// New creates the middleware. The TracerProvider and propagator are injected to avoid global state.
func New(tp trace.TracerProvider, prop propagation.TextMapPropagator) *Middleware {
	return &Middleware{tracer: tp.Tracer(ScopeName), prop: prop}
}

func (m *Middleware) MiddlewareKind() broute.MiddlewareKind { return Kind }

// headerCarrier reads the router's lower-cased request headers.
type headerCarrier map[string]string

func (c headerCarrier) Get(key string) string { return c[strings.ToLower(key)] }
func (c headerCarrier) Set(key, val string)   { c[strings.ToLower(key)] = val }
func (c headerCarrier) Keys() []string {
	keys := make([]string, 0, len(c))
	for k := range c {
		keys = append(keys, k)
	}

	return keys
}

// Before starts the span and makes it current on the routing context.
func (m *Middleware) Before(
	ctx context.Context, rc *broute.RoutingContext, route *broute.Route, metadata any,
) (*broute.Response, error) {
	md, _ := metadata.(Metadata)
	if md.Disabled {
		return nil, nil
	}

	path := rc.Chain().Path()
	attrs := append([]attribute.KeyValue{
		semconv.HTTPRequestMethodKey.String(route.Method()),
		semconv.URLPath(rc.Event().Path),
		semconv.HTTPRoute(path),
	}, md.Attributes...)

	if id := route.OperationID(); id != "" {
		attrs = append(attrs, attribute.String("broute.operation_id", id))
	}

	if id := rc.RequestID(); id != "" {
		attrs = append(attrs, attribute.String("broute.request_id", id))
	}

	ctx, span := m.tracer.Start(
		m.prop.Extract(ctx, headerCarrier(rc.Headers())),
		route.Method()+" "+path,
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(attrs...))

	rc.SetContext(ctx)
	rc.Set(spanKey{}, span)

	return nil, nil
}

// After records the response status and ends the span.
func (m *Middleware) After(
	_ context.Context, rc *broute.RoutingContext, _ *broute.Route, _ any, resp *broute.Response,
) (*broute.Response, error) {
	v, ok := rc.Get(spanKey{})
	if !ok {
		return resp, nil
	}

	span := v.(trace.Span) //nolint:forcetypeassert
	defer span.End()

	span.SetAttributes(semconv.HTTPResponseStatusCode(resp.StatusCode))
	if resp.StatusCode >= http.StatusInternalServerError {
		span.SetStatus(codes.Error, http.StatusText(resp.StatusCode))
	}

	return resp, nil
}

var (
	_ broute.BeforeMiddleware = &Middleware{}
	_ broute.AfterMiddleware  = &Middleware{}
)
