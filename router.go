package broute

import (
	"context"
	"log"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/advdv/broute/internal/pathpattern"
	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/samber/lo"
)

// Router matches events against the flattened route tree and drives validation, middleware, the handler and
// exception handling for the matched chain. It is safe for concurrent use.
type Router struct {
	chains         []Chain
	operations     map[string]Chain
	reverser       *Reverser
	middlewares    []Middleware
	middlewareMap  map[MiddlewareKind]Middleware
	timeout        time.Duration
	deadlineBuffer time.Duration
	logs           Logger
	formatter      *ErrorFormatter

	patterns sync.Map // *Route -> *pathpattern.Pattern
}

// Option configures the router.
type Option func(*Router)

// WithMiddleware registers middleware. Before hooks run in the order given, after hooks in reverse.
func WithMiddleware(mws ...Middleware) Option {
	return func(r *Router) { r.middlewares = append(r.middlewares, mws...) }
}

// WithTimeout limits how long a handler may run. The deadline of the context passed to Resolve limits it further.
func WithTimeout(d time.Duration) Option {
	return func(r *Router) { r.timeout = d }
}

// WithDeadlineBuffer sets how much of the context deadline is kept free for rendering a timeout response. It
// defaults to [DefaultDeadlineBuffer].
func WithDeadlineBuffer(d time.Duration) Option {
	return func(r *Router) { r.deadlineBuffer = d }
}

// WithLogger sets the logger, it defaults to a standard library logger writing to stderr.
func WithLogger(l Logger) Option {
	return func(r *Router) { r.logs = l }
}

// WithErrorFormatter sets the formatter of the root scope. It defaults to [ErrorFormatterFromEnv].
func WithErrorFormatter(f *ErrorFormatter) Option {
	return func(r *Router) { r.formatter = f }
}

// NewRouter builds a router for the given top-level nodes. The nodes are wrapped in an implicit root namespace whose
// exception handler renders every error it receives. Construction fails with a configuration error for an empty
// tree, a duplicate operation id, a duplicate middleware kind, a route without handler, a route used twice or a
// malformed path.
func NewRouter(routes []Node, opts ...Option) (*Router, error) {
	r := &Router{
		deadlineBuffer: DefaultDeadlineBuffer,
		middlewareMap:  map[MiddlewareKind]Middleware{},
		reverser:       NewReverser(),
	}

	for _, opt := range opts {
		opt(r)
	}

	if r.logs == nil {
		r.logs = NewStdLogger(log.New(os.Stderr, "", log.LstdFlags))
	}

	if r.formatter == nil {
		var err error
		if r.formatter, err = ErrorFormatterFromEnv(); err != nil {
			return nil, errors.Wrap(err, "error formatter from env")
		}
	}

	root, err := NewNamespace("", routes, WithExceptionHandler(r.formatter.rootExceptionHandler))
	if err != nil {
		return nil, err
	}

	r.chains = Flatten(root)
	if err := r.checkChains(); err != nil {
		return nil, err
	}

	if err := r.indexOperations(); err != nil {
		return nil, err
	}

	for _, mw := range r.middlewares {
		kind := mw.MiddlewareKind()
		if _, exists := r.middlewareMap[kind]; exists {
			return nil, NewConfigurationError("middleware of kind %q is registered more than once", kind)
		}

		r.middlewareMap[kind] = mw
	}

	return r, nil
}

func (r *Router) checkChains() error {
	seen := map[*Route]bool{}
	for _, ch := range r.chains {
		if ch.Route.handler == nil {
			return NewConfigurationError("route %s %s has no handler", ch.Method(), ch.Path())
		}

		if seen[ch.Route] {
			return NewConfigurationError("route %s %s is used more than once in the tree", ch.Method(), ch.Path())
		}

		seen[ch.Route] = true

		if _, err := pathpattern.Compile(ch.Path()); err != nil {
			return NewConfigurationError("route %s has an invalid path: %v", ch.Path(), err)
		}
	}

	return nil
}

func (r *Router) indexOperations() error {
	named := lo.Filter(r.chains, func(ch Chain, _ int) bool { return ch.Route.operationID != "" })
	groups := lo.GroupBy(named, func(ch Chain) string { return ch.Route.operationID })

	ids := lo.Keys(groups)
	slices.Sort(ids)

	for _, id := range ids {
		if n := len(groups[id]); n > 1 {
			return NewConfigurationError("%d routes share the operation id %q", n, id)
		}
	}

	r.operations = lo.MapValues(groups, func(chs []Chain, _ string) Chain { return chs[0] })
	for id, ch := range r.operations {
		if _, err := r.reverser.NamedPattern(id, ch.Path()); err != nil {
			return NewConfigurationError("operation %q: %v", id, err)
		}
	}

	return nil
}

// Chains returns the flattened route tree, including the implicit root namespace.
func (r *Router) Chains() []Chain { return slices.Clone(r.chains) }

// FindRoute returns the route with the operation id.
func (r *Router) FindRoute(operationID string) (*Route, bool) {
	ch, ok := r.operations[operationID]
	return ch.Route, ok
}

// Reverse builds the path of the route with the operation id, filling its path parameters with vals in order.
func (r *Router) Reverse(operationID string, vals ...string) (string, error) {
	return r.reverser.Reverse(operationID, vals...)
}

// FindMiddleware returns the middleware registered for kind.
func (r *Router) FindMiddleware(kind MiddlewareKind) (Middleware, bool) {
	mw, ok := r.middlewareMap[kind]
	return mw, ok
}

// FindMiddleware returns the first middleware of the router that is a T.
func FindMiddleware[T Middleware](r *Router) (T, bool) {
	for _, mw := range r.middlewares {
		if t, ok := mw.(T); ok {
			return t, true
		}
	}

	var zero T
	return zero, false
}

// Handler adapts Resolve to the signature of a Lambda handler. Errors no exception handler resolved are returned as
// the invocation error.
func (r *Router) Handler() func(ctx context.Context, ev Event) (Response, error) {
	return func(ctx context.Context, ev Event) (Response, error) {
		resp, err := r.Resolve(ctx, &ev)
		if err != nil {
			return Response{}, err
		}

		return *resp, nil
	}
}

// Resolve routes one event. The first chain whose method and path match wins, no match results in a 404. Errors are
// turned into responses by the exception handlers of the matched chain, innermost first. An error none of them
// resolves is logged and returned.
func (r *Router) Resolve(ctx context.Context, ev *Event) (*Response, error) {
	method := strings.ToUpper(ev.HTTPMethod)

	for _, ch := range r.chains {
		if ch.Method() != method {
			continue
		}

		vals, ok := r.pattern(ch).Match(ev.Path)
		if !ok {
			continue
		}

		requestID := ev.RequestContext.RequestID
		if requestID == "" {
			requestID = uuid.NewString()
		}

		rc := newRoutingContext(ctx, r, ev, requestID, ch, vals)

		resp, err := r.dispatch(rc, ch)
		if err != nil {
			r.logs.LogUnhandledError(requestID, err)
			return nil, err
		}

		return resp, nil
	}

	return notFound(), nil
}

// pattern returns the compiled pattern of the chain. Concurrent first calls may both compile, the first stored wins.
func (r *Router) pattern(ch Chain) *pathpattern.Pattern {
	if pat, ok := r.patterns.Load(ch.Route); ok {
		return pat.(*pathpattern.Pattern) //nolint:forcetypeassert
	}

	pat, _ := r.patterns.LoadOrStore(ch.Route, pathpattern.MustCompile(ch.Path()))

	return pat.(*pathpattern.Pattern) //nolint:forcetypeassert
}

// dispatch runs a matched chain. Errors from validation and namespace before hooks are resolved without running
// after hooks. Errors from before hooks or the handler are resolved and the resulting response goes through the after
// hooks. Errors from after hooks are resolved directly.
func (r *Router) dispatch(rc *RoutingContext, ch Chain) (*Response, error) {
	if err := r.cascade(rc, ch); err != nil {
		return r.resolveException(rc, ch, err)
	}

	resp, err := r.invoke(rc, ch)
	if err != nil {
		if resp, err = r.resolveException(rc, ch, err); err != nil {
			return nil, err
		}
	}

	out, err := runAfter(rc.Context(), r.middlewares, rc, ch.Route, resp)
	if err != nil {
		return r.resolveException(rc, ch, err)
	}

	return out, nil
}

// cascade validates the params of every namespace, outer to inner, running each namespace's before hook right after
// its params, and ends with the route's own params.
func (r *Router) cascade(rc *RoutingContext, ch Chain) error {
	for _, ns := range ch.Namespaces {
		if err := rc.validate(ns.Params()); err != nil {
			return err
		}

		if ns.before == nil {
			continue
		}

		if err := ns.before(rc.Context(), rc); err != nil {
			return err
		}
	}

	return rc.validate(ch.Route.params)
}

func (r *Router) invoke(rc *RoutingContext, ch Chain) (*Response, error) {
	resp, err := runBefore(rc.Context(), r.middlewares, rc, ch.Route)
	if err != nil || resp != nil {
		return resp, err
	}

	resp, err = runHandler(rc.Context(), rc, ch.Route, r.timeout, r.deadlineBuffer, r.logs)
	if err == nil && resp == nil {
		err = errors.Newf("handler of %s %s returned no response", ch.Method(), ch.Path())
	}

	return resp, err
}

// resolveException asks the exception handlers of the chain, innermost first, to turn err into a response.
func (r *Router) resolveException(rc *RoutingContext, ch Chain, err error) (*Response, error) {
	for _, ns := range slices.Backward(ch.Namespaces) {
		if ns.exception == nil {
			continue
		}

		resp, herr := ns.exception(rc.Context(), rc, err)
		if resp != nil {
			return resp, nil
		}

		if herr != nil {
			err = herr
		}
	}

	return nil, err
}
