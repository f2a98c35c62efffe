package broute

import (
	"context"
	"maps"
	"net/http"
	"strings"

	"github.com/advdv/broute/schema"
)

// HandlerFunc handles a matched request. Validated parameters are available on the routing context.
type HandlerFunc func(ctx context.Context, rc *RoutingContext) (*Response, error)

// ResponseSchema documents one response a route may produce.
type ResponseSchema struct {
	Description string
	Schema      *schema.Schema
}

// Node is a member of the route tree: a [*Route] or a [*Namespace].
type Node interface {
	Path() string
	node()
}

// Route is a leaf of the route tree: one method, one path segment and a handler. It is immutable once created.
type Route struct {
	method      string
	path        string
	handler     HandlerFunc
	description string
	operationID string
	params      Params
	responses   map[int]ResponseSchema
	metadata    map[MiddlewareKind]any
}

// RouteOption configures a route.
type RouteOption func(*Route)

// WithOperationID names the route. Operation ids are unique within a router and are used for reversing, caching
// and documentation.
func WithOperationID(id string) RouteOption {
	return func(r *Route) { r.operationID = id }
}

// WithDescription describes the route for documentation.
func WithDescription(desc string) RouteOption {
	return func(r *Route) { r.description = desc }
}

// WithParams declares the route's own parameters.
func WithParams(ps Params) RouteOption {
	return func(r *Route) { maps.Copy(r.params, ps) }
}

// WithResponse declares a response the route may produce.
func WithResponse(status int, rs ResponseSchema) RouteOption {
	return func(r *Route) { r.responses[status] = rs }
}

// WithMetadata opts the route into a middleware, passing v to its hooks.
func WithMetadata(kind MiddlewareKind, v any) RouteOption {
	return func(r *Route) { r.metadata[kind] = v }
}

// NewRoute creates a route for method and path.
func NewRoute(method, path string, handler HandlerFunc, opts ...RouteOption) *Route {
	r := &Route{
		method:    strings.ToUpper(method),
		path:      path,
		handler:   handler,
		params:    Params{},
		responses: map[int]ResponseSchema{},
		metadata:  map[MiddlewareKind]any{},
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

// GET creates a route answering GET requests on path.
func GET(path string, h HandlerFunc, opts ...RouteOption) *Route {
	return NewRoute(http.MethodGet, path, h, opts...)
}

// PUT creates a route answering PUT requests on path.
func PUT(path string, h HandlerFunc, opts ...RouteOption) *Route {
	return NewRoute(http.MethodPut, path, h, opts...)
}

// POST creates a route answering POST requests on path.
func POST(path string, h HandlerFunc, opts ...RouteOption) *Route {
	return NewRoute(http.MethodPost, path, h, opts...)
}

// PATCH creates a route answering PATCH requests on path.
func PATCH(path string, h HandlerFunc, opts ...RouteOption) *Route {
	return NewRoute(http.MethodPatch, path, h, opts...)
}

// DELETE creates a route answering DELETE requests on path.
func DELETE(path string, h HandlerFunc, opts ...RouteOption) *Route {
	return NewRoute(http.MethodDelete, path, h, opts...)
}

// OPTIONS creates a route answering OPTIONS requests on path.
func OPTIONS(path string, h HandlerFunc, opts ...RouteOption) *Route {
	return NewRoute(http.MethodOptions, path, h, opts...)
}

// HEAD creates a route answering HEAD requests on path.
func HEAD(path string, h HandlerFunc, opts ...RouteOption) *Route {
	return NewRoute(http.MethodHead, path, h, opts...)
}

func (r *Route) node() {}

// Method returns the HTTP method the route answers.
func (r *Route) Method() string { return r.method }

// Path returns the route's own path, relative to its namespace.
func (r *Route) Path() string { return r.path }

// Description returns the text set with [WithDescription].
func (r *Route) Description() string { return r.description }

// OperationID returns the id set with [WithOperationID], or the empty string.
func (r *Route) OperationID() string { return r.operationID }

// Handler returns the route's handler.
func (r *Route) Handler() HandlerFunc { return r.handler }

// Params returns a copy of the route's own parameters.
func (r *Route) Params() Params { return maps.Clone(r.params) }

// Responses returns a copy of the declared responses.
func (r *Route) Responses() map[int]ResponseSchema { return maps.Clone(r.responses) }

// Metadata returns what the route declared for the middleware kind, nil if it did not opt in.
func (r *Route) Metadata(kind MiddlewareKind) any { return r.metadata[kind] }
