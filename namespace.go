package broute

import (
	"context"
	"maps"
	"slices"

	"github.com/advdv/broute/schema"
	"github.com/samber/lo"
)

// BeforeFunc runs when a request enters a namespace, after the namespace's path parameters were validated. Returning
// an error hands it to the exception handlers.
type BeforeFunc func(ctx context.Context, rc *RoutingContext) error

// ExceptionHandler turns an error raised inside a namespace into a response. Returning a nil response passes the
// error on to the enclosing namespace, returning an error passes that error instead.
type ExceptionHandler func(ctx context.Context, rc *RoutingContext, err error) (*Response, error)

// Namespace groups routes and namespaces under a shared path segment. It may declare path parameters shared by all
// descendants, a before hook and an exception handler.
type Namespace struct {
	path      string
	children  []Node
	params    map[string]*schema.Schema
	before    BeforeFunc
	exception ExceptionHandler
}

// NamespaceOption configures a namespace.
type NamespaceOption func(*Namespace)

// WithPathParams declares path parameters captured by the namespace's path segment.
func WithPathParams(params map[string]*schema.Schema) NamespaceOption {
	return func(ns *Namespace) { maps.Copy(ns.params, params) }
}

// WithBefore sets the namespace's before hook.
func WithBefore(fn BeforeFunc) NamespaceOption {
	return func(ns *Namespace) { ns.before = fn }
}

// WithExceptionHandler sets the namespace's exception handler.
func WithExceptionHandler(fn ExceptionHandler) NamespaceOption {
	return func(ns *Namespace) { ns.exception = fn }
}

// NewNamespace creates a namespace. It fails with a configuration error when children is empty.
func NewNamespace(path string, children []Node, opts ...NamespaceOption) (*Namespace, error) {
	if len(children) < 1 {
		return nil, NewConfigurationError("namespace %q must have at least one child", path)
	}

	if i := slices.Index(children, nil); i >= 0 {
		return nil, NewConfigurationError("namespace %q has a nil child at index %d", path, i)
	}

	ns := &Namespace{
		path:     path,
		children: slices.Clone(children),
		params:   map[string]*schema.Schema{},
	}

	for _, opt := range opts {
		opt(ns)
	}

	return ns, nil
}

// MustNamespace is like NewNamespace but panics on error.
func MustNamespace(path string, children []Node, opts ...NamespaceOption) *Namespace {
	ns, err := NewNamespace(path, children, opts...)
	if err != nil {
		panic("broute: " + err.Error())
	}

	return ns
}

func (ns *Namespace) node() {}

// Path returns the namespace's own path segment, relative to its parent.
func (ns *Namespace) Path() string { return ns.path }

// Children returns a copy of the namespace's children.
func (ns *Namespace) Children() []Node { return slices.Clone(ns.children) }

// Params returns the namespace's path parameters as parameter declarations.
func (ns *Namespace) Params() Params {
	return lo.MapValues(ns.params, func(s *schema.Schema, _ string) Param { return Path(s) })
}

// Before returns the hook set with [WithBefore], or nil.
func (ns *Namespace) Before() BeforeFunc { return ns.before }

// ExceptionHandler returns the handler set with [WithExceptionHandler], or nil.
func (ns *Namespace) ExceptionHandler() ExceptionHandler { return ns.exception }
