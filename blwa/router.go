package blwa

import (
	"github.com/advdv/broute"
	"github.com/advdv/broute/middleware/cache"
	"github.com/advdv/broute/middleware/tracing"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	routesName         = `name:"blwa.routes"`
	middlewaresName    = `name:"blwa.middlewares"`
	routerOptionsGroup = `group:"blwa.router_options"`
)

// RouterParams holds the dependencies for creating the router.
type RouterParams struct {
	fx.In

	Env         Environment
	Logger      *zap.Logger
	Formatter   *broute.ErrorFormatter
	TracerProv  trace.TracerProvider
	Propagator  propagation.TextMapPropagator
	Cache       *cache.Middleware
	Routes      []broute.Node       `name:"blwa.routes"`
	Middlewares []broute.Middleware `name:"blwa.middlewares" optional:"true"`
	Options     []broute.Option     `group:"blwa.router_options"`
}

// NewRouter creates the router. Tracing is the outermost middleware, followed by the cache middleware when a cache
// store is configured and then the app's own middlewares.
func NewRouter(p RouterParams) (*broute.Router, error) {
	mws := []broute.Middleware{tracing.New(p.TracerProv, p.Propagator)}
	if p.Cache != nil {
		mws = append(mws, p.Cache)
	}

	opts := []broute.Option{
		broute.WithMiddleware(append(mws, p.Middlewares...)...),
		broute.WithLogger(newZapRouterLogger(p.Logger)),
		broute.WithErrorFormatter(p.Formatter),
		broute.WithTimeout(p.Env.base().RouteTimeout),
		// the request context already ends DefaultDeadlineBuffer before the invocation deadline
		broute.WithDeadlineBuffer(0),
	}

	return broute.NewRouter(p.Routes, append(opts, p.Options...)...)
}
