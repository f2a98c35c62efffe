package broute

import (
	"context"
	"maps"
	"sync"

	"github.com/cockroachdb/errors"
)

// RoutingContext carries one request through the router: the event, its normalized headers, the validated parameters
// and request scoped values. A new one is created for every request.
type RoutingContext struct {
	router     *Router
	event      *Event
	requestID  string
	chain      Chain
	headers    map[string]string
	pathValues map[string]string

	bodyOnce sync.Once
	body     any
	bodyErr  error

	mu     sync.Mutex
	ctx    context.Context //nolint:containedctx
	params map[string]any
	values map[any]any
}

func newRoutingContext(
	ctx context.Context, router *Router, ev *Event, requestID string, chain Chain, pathValues map[string]string,
) *RoutingContext {
	return &RoutingContext{
		router:     router,
		event:      ev,
		requestID:  requestID,
		chain:      chain,
		headers:    normalizeHeaders(ev),
		pathValues: pathValues,
		ctx:        ctx,
		params:     map[string]any{},
		values:     map[any]any{},
	}
}

// Event returns the inbound event.
func (rc *RoutingContext) Event() *Event { return rc.event }

// RequestID returns the id of the request, as provided by the event or generated.
func (rc *RoutingContext) RequestID() string { return rc.requestID }

// Router returns the router that matched the request.
func (rc *RoutingContext) Router() *Router { return rc.router }

// Chain returns the matched chain.
func (rc *RoutingContext) Chain() Chain { return rc.chain }

// Headers returns the request headers with lower-cased names.
func (rc *RoutingContext) Headers() map[string]string { return maps.Clone(rc.headers) }

// Header returns a request header by its lower-cased name.
func (rc *RoutingContext) Header(name string) string { return rc.headers[name] }

// Body returns the decoded request body: a JSON value, a map for form bodies or the raw text.
func (rc *RoutingContext) Body() (any, error) {
	rc.bodyOnce.Do(func() {
		rc.body, rc.bodyErr = decodeBody(rc.event, rc.headers["content-type"])
	})

	return rc.body, rc.bodyErr
}

// Params returns a copy of the validated parameters of every scope validated so far.
func (rc *RoutingContext) Params() map[string]any {
	rc.mu.Lock()
	defer rc.mu.Unlock()

	return maps.Clone(rc.params)
}

// Param returns one validated parameter.
func (rc *RoutingContext) Param(name string) (any, bool) {
	rc.mu.Lock()
	defer rc.mu.Unlock()

	v, ok := rc.params[name]
	return v, ok
}

// ParamAs returns a validated parameter as T. It reports false if the parameter is absent or of another type.
func ParamAs[T any](rc *RoutingContext, name string) (T, bool) {
	v, _ := rc.Param(name)
	t, ok := v.(T)

	return t, ok
}

// Context returns the request context as last set by a middleware or hook.
func (rc *RoutingContext) Context() context.Context {
	rc.mu.Lock()
	defer rc.mu.Unlock()

	return rc.ctx
}

// SetContext replaces the request context, e.g. to carry a trace span into the handler.
func (rc *RoutingContext) SetContext(ctx context.Context) {
	rc.mu.Lock()
	defer rc.mu.Unlock()

	rc.ctx = ctx
}

// Set stores a request scoped value, readable by later hooks and the handler.
func (rc *RoutingContext) Set(key, val any) {
	rc.mu.Lock()
	defer rc.mu.Unlock()

	rc.values[key] = val
}

// Get returns a request scoped value.
func (rc *RoutingContext) Get(key any) (any, bool) {
	rc.mu.Lock()
	defer rc.mu.Unlock()

	v, ok := rc.values[key]
	return v, ok
}

// JSON returns a response with v serialized as JSON and status 200, unless changed with opts.
func (rc *RoutingContext) JSON(v any, opts ...ResponseOption) (*Response, error) {
	resp, err := jsonResponse(v, opts...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to encode response")
	}

	return resp, nil
}

// validate checks the params of one scope, one source at a time in the order path, query, body, and merges the
// coerced values into the accumulated params.
func (rc *RoutingContext) validate(ps Params) error {
	if len(ps) == 0 {
		return nil
	}

	groups := ps.bySource()
	for _, src := range sourceOrder {
		obj, ok := groups[src]
		if !ok {
			continue
		}

		raw, err := rc.rawParams(src)
		if err != nil {
			return err
		}

		out, err := obj.Validate(raw)
		if err != nil {
			return fromValidation(err)
		}

		vals, _ := out.(map[string]any)

		rc.mu.Lock()
		maps.Copy(rc.params, vals)
		rc.mu.Unlock()
	}

	return nil
}

func (rc *RoutingContext) rawParams(src Source) (any, error) {
	switch src {
	case SourcePath:
		return schemaInput(rc.pathValues), nil
	case SourceQuery:
		return parseQuery(rc.event), nil
	default:
		body, err := rc.Body()
		if err != nil {
			return nil, err
		}

		if body == nil {
			return map[string]any{}, nil
		}

		return body, nil
	}
}

func schemaInput(vals map[string]string) map[string]any {
	out := make(map[string]any, len(vals))
	for k, v := range vals {
		out[k] = v
	}

	return out
}
