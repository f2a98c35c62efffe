package blwa

import (
	"context"
	"net/http"

	"github.com/advdv/broute"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// App wraps an fx.App for lifecycle management.
type App struct {
	app *fx.App
}

// AppConfig holds configuration for the app.
type AppConfig struct {
	ServerConfig
	FxOptions []fx.Option
}

// Option configures the App.
type Option func(*AppConfig)

// routerRef is filled once the router is built, so that the runtime can be injected into the routes constructor.
type routerRef struct{ router *broute.Router }

type runtimeProviderParams[E Environment] struct {
	fx.In

	Env             E
	Ref             *routerRef
	SecretReader    SecretReader
	ParameterReader ParameterReader
	Transport       http.RoundTripper
}

// WithAWSClient registers an AWS SDK v2 client for dependency injection. Clients target the local region unless
// [ForPrimaryRegion] or [ForRegion] is given:
//
//	blwa.WithAWSClient(func(cfg aws.Config) *dynamodb.Client {
//	    return dynamodb.NewFromConfig(cfg)
//	})
func WithAWSClient[T any](factory func(aws.Config) T, opts ...ClientOption) Option {
	return func(c *AppConfig) {
		c.FxOptions = append(c.FxOptions, AWSClientProvider(factory, opts...))
	}
}

// WithFx adds fx options for dependency injection.
func WithFx(fxOpts ...fx.Option) Option {
	return func(c *AppConfig) {
		c.FxOptions = append(c.FxOptions, fxOpts...)
	}
}

// WithHealthHandler sets a custom health check handler.
// If not set, a default handler returning 200 OK is used.
func WithHealthHandler(h func(http.ResponseWriter, *http.Request)) Option {
	return func(c *AppConfig) {
		c.HealthHandler = h
	}
}

// WithMiddlewares registers the app's router middlewares. The constructor may take any injected dependency and
// returns the middlewares in the order their before hooks run:
//
//	blwa.WithMiddlewares(func(store *Sessions) []broute.Middleware {
//	    return []broute.Middleware{NewAuth(store)}
//	})
func WithMiddlewares(constructor any) Option {
	return func(c *AppConfig) {
		c.FxOptions = append(c.FxOptions, fx.Provide(fx.Annotate(constructor, fx.ResultTags(middlewaresName))))
	}
}

// WithRouterOptions adds options to the router, after the ones blwa configures.
func WithRouterOptions(opts ...broute.Option) Option {
	return func(c *AppConfig) {
		for _, opt := range opts {
			c.FxOptions = append(c.FxOptions, fx.Provide(fx.Annotate(
				func() broute.Option { return opt },
				fx.ResultTags(routerOptionsGroup))))
		}
	}
}

// FxOptions returns the options of the dependency graph of [NewApp].
func FxOptions[E Environment](routes any, opts ...Option) []fx.Option {
	var cfg AppConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	return append([]fx.Option{
		fx.NopLogger,
		fx.Provide(ParseEnv[E]()),
		fx.Provide(func(e E) Environment { return e }),
		fx.Provide(func(e E) (*zap.Logger, error) { return NewLogger(e) }),
		fx.Provide(NewTracerProvider),
		fx.Provide(NewPropagator),
		fx.Provide(NewHTTPTransport),
		fx.Provide(provideAWSConfig),
		fx.Provide(func(cfg aws.Config) (SecretReader, error) {
			return NewAWSSecretReader(cfg)
		}),
		fx.Provide(func(cfg aws.Config, env Environment) ParameterReader {
			return NewAWSParameterReader(ssm.NewFromConfig(clientConfig(cfg, env.base())))
		}),
		fx.Provide(NewErrorFormatter),
		fx.Provide(newCacheStore),
		fx.Provide(newCacheMiddleware),
		fx.Provide(fx.Annotate(routes, fx.ResultTags(routesName))),
		fx.Provide(NewRouter),
		fx.Provide(func() *routerRef { return &routerRef{} }),
		fx.Provide(func(p runtimeProviderParams[E]) *Runtime[E] {
			return NewRuntime(p.Env, func() *broute.Router { return p.Ref.router }, RuntimeParams{
				SecretReader:    p.SecretReader,
				ParameterReader: p.ParameterReader,
				Transport:       p.Transport,
			})
		}),
		fx.Supply(cfg.ServerConfig),
		fx.Provide(NewServer),
		fx.Invoke(func(ref *routerRef, r *broute.Router) { ref.router = r }),
		fx.Invoke(startServerHook),
	}, cfg.FxOptions...)
}

// NewApp creates a batteries-included app with dependency injection. The routes constructor can request any type
// provided via fx options and returns the route tree served by the app:
//
//	blwa.NewApp[Env](func(h *Handlers) []broute.Node {
//	    return []broute.Node{
//	        broute.GET("/items/:id", h.GetItem, broute.WithOperationID("getItem")),
//	    }
//	},
//	    blwa.WithAWSClient(func(cfg aws.Config) *dynamodb.Client {
//	        return dynamodb.NewFromConfig(cfg)
//	    }),
//	    blwa.WithFx(fx.Provide(NewHandlers)),
//	).Run()
func NewApp[E Environment](routes any, opts ...Option) *App {
	return &App{app: fx.New(FxOptions[E](routes, opts...)...)}
}

// Run starts the application and blocks until interrupted.
func (a *App) Run() {
	a.app.Run()
}

// Start starts the application with the given context and stops it once ctx is done.
func (a *App) Start(ctx context.Context) error {
	if err := a.app.Start(ctx); err != nil {
		return err
	}

	<-ctx.Done()

	stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.app.StopTimeout())
	defer cancel()

	return a.app.Stop(stopCtx)
}
