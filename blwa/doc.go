// Package blwa runs a broute route tree as an HTTP service behind AWS Lambda Web Adapter (LWA).
//
// # Overview
//
// blwa handles the boilerplate around the router: environment parsing, structured logging, OpenTelemetry tracing,
// AWS SDK clients, error detail encryption, response caching and graceful shutdown. A complete application can be
// created in a single call:
//
//	blwa.NewApp[Env](func(h *Handlers) []broute.Node {
//	    return []broute.Node{
//	        broute.GET("/items", h.ListItems),
//	        broute.GET("/items/:id", h.GetItem, broute.WithOperationID("getItem"),
//	            broute.WithParams(broute.Params{"id": broute.Path(schema.String())})),
//	    }
//	},
//	    blwa.WithAWSClient(dynamodb.NewFromConfig),
//	    blwa.WithFx(fx.Provide(NewHandlers)),
//	).Run()
//
// The routes constructor is an fx constructor: its parameters are injected and it returns the top level nodes of
// the tree.
//
// # Environment Configuration
//
// Define your environment by embedding [BaseEnvironment]:
//
//	type Env struct {
//	    blwa.BaseEnvironment
//	    MainTableName string `env:"MAIN_TABLE_NAME,required"`
//	}
//
// BaseEnvironment provides the following environment variables:
//
//	| Variable                      | Required | Default | Description                                            |
//	|-------------------------------|----------|---------|--------------------------------------------------------|
//	| AWS_LWA_PORT                  | Yes      | -       | Port the HTTP server listens on                        |
//	| AWS_LWA_READINESS_CHECK_PATH  | Yes      | -       | Health check endpoint path for LWA readiness           |
//	| AWS_REGION                    | Yes      | -       | AWS region (set automatically by Lambda runtime)       |
//	| BW_SERVICE_NAME               | Yes      | -       | Service name for logging and tracing                   |
//	| BW_PRIMARY_REGION             | Yes      | -       | Primary deployment region (injected by CDK)            |
//	| BW_LAMBDA_TIMEOUT             | Yes      | -       | Lambda function timeout (e.g., "30s", "5m")            |
//	| AWS_LWA_ERROR_STATUS_CODES    | Yes      | -       | HTTP status codes that indicate Lambda errors          |
//	| BW_LOG_LEVEL                  | No       | info    | Log level (debug, info, warn, error)                   |
//	| BW_OTEL_EXPORTER              | No       | stdout  | Trace exporter: "stdout", "xrayudp" or "none"          |
//	| BW_GATEWAY_ACCESS_LOG_GROUP   | No       | -       | API Gateway access log group for X-Ray correlation     |
//	| BW_ROUTE_TIMEOUT              | No       | -       | Default handler timeout of the router                  |
//	| BW_ERROR_SECRET               | No       | -       | Secret that encrypts internal error details            |
//	| BW_ERROR_SECRET_ID            | No       | -       | Secrets Manager id holding the error secret            |
//	| BW_ERROR_SECRET_PATH          | No       | -       | gjson path into the BW_ERROR_SECRET_ID secret          |
//	| BW_ERROR_SECRET_PARAMETER     | No       | -       | SSM parameter holding the error secret                 |
//	| BW_CACHE_STORE                | No       | -       | Response cache: "memory", "redis" or "dynamodb"        |
//	| BW_CACHE_REDIS_URL            | No       | -       | Redis URL, required for the redis store                |
//	| BW_CACHE_TABLE_NAME           | No       | -       | DynamoDB table, required for the dynamodb store        |
//
// The AWS_LWA_* variables match the official Lambda Web Adapter configuration, so values you set for LWA are
// automatically picked up by blwa.
//
// # Runtime
//
// [Runtime] provides access to app-scoped dependencies and should be injected into handler constructors via fx:
//
//   - [Runtime.Env] returns the typed environment configuration
//   - [Runtime.Reverse] builds the path of a route by its operation id
//   - [Runtime.Secret] retrieves secrets from AWS Secrets Manager
//   - [Runtime.Parameter] retrieves parameters from the SSM Parameter Store
//   - [Runtime.NewRequest] starts an outbound request on the instrumented transport
//
// A handler using it:
//
//	func (h *Handlers) GetItem(ctx context.Context, rc *broute.RoutingContext) (*broute.Response, error) {
//	    id, _ := broute.ParamAs[string](rc, "id")
//	    url, _ := h.rt.Reverse("getItem", id)
//	    blwa.Log(ctx).Info("fetching item", zap.String("table", h.rt.Env().MainTableName))
//	    return rc.JSON(map[string]string{"self": url})
//	}
//
// Secrets and parameters are fetched through a cache so rotated values are picked up without a redeploy:
//
//	apiKey, err := h.rt.Secret(ctx, "my-api-key-secret")
//	password, err := h.rt.Secret(ctx, "my-db-credentials", "database.password") // gjson path
//	endpoint, err := h.rt.Parameter(ctx, "/app/endpoint")
//
// # Context
//
// Handlers receive the request context. Use the package-level functions to access request-scoped values:
//
//   - [Log] - trace-correlated zap logger
//   - [Span] - current OpenTelemetry span for custom instrumentation
//   - [LWA] - Lambda execution context (request ID, deadline, etc.)
//
// The request id on the [broute.RoutingContext] is taken from the API Gateway request context
// (x-amzn-request-context) and falls back to the Lambda request id.
//
// # Router
//
// [NewRouter] registers the tracing middleware first, then the cache middleware when BW_CACHE_STORE is set and
// then the middlewares returned by the constructor passed to [WithMiddlewares]. Extra router options are added
// with [WithRouterOptions]:
//
//	blwa.NewApp[Env](routes,
//	    blwa.WithMiddlewares(func(logs *zap.Logger) []broute.Middleware {
//	        return []broute.Middleware{NewAuditMiddleware(logs)}
//	    }),
//	    blwa.WithRouterOptions(broute.WithTimeout(10*time.Second)),
//	)
//
// Routes opt into caching with [cache.Metadata]:
//
//	broute.GET("/counter", h.Counter, broute.WithOperationID("getCounter"),
//	    broute.WithMetadata(cache.Kind, cache.Metadata{ExpiresIn: time.Minute}))
//
// Errors that are not an application [broute.Error], validation errors included, are answered with a 500 whose
// metadata is the error detail encrypted with the error secret. Decrypt it with [broute.ErrorFormatter.DecryptDetail].
//
// # Tracing
//
// OpenTelemetry tracing is configured automatically based on BW_OTEL_EXPORTER:
//
//   - "stdout" (default): Pretty-printed spans for local development
//   - "xrayudp": X-Ray UDP exporter for Lambda with proper trace ID format
//   - "none": no spans are recorded
//
// The tracer provider and propagator are injected explicitly (no globals). The server span covers the HTTP
// exchange, the router's tracing middleware adds a child span for the matched route.
//
// When BW_GATEWAY_ACCESS_LOG_GROUP is set, the log group is added to trace segments via the aws.log.group.names
// resource attribute so X-Ray's "View Logs" can query API Gateway access logs alongside the function logs.
//
// # AWS Clients
//
// AWS SDK v2 clients are registered with [WithAWSClient] and injected directly into handler constructors via fx.
// Clients for the local region (AWS_REGION) are injected as-is:
//
//	blwa.WithAWSClient(func(cfg aws.Config) *dynamodb.Client {
//	    return dynamodb.NewFromConfig(cfg)
//	})
//
// Clients that must target the primary deployment region (BW_PRIMARY_REGION) are wrapped with [Primary]:
//
//	blwa.WithAWSClient(func(cfg aws.Config) *blwa.Primary[ssm.Client] {
//	    return blwa.NewPrimary(ssm.NewFromConfig(cfg))
//	}, blwa.ForPrimaryRegion())
//
// Clients for a specific region are wrapped with [InRegion]:
//
//	blwa.WithAWSClient(func(cfg aws.Config) *blwa.InRegion[s3.Client] {
//	    return blwa.NewInRegion(s3.NewFromConfig(cfg), "eu-central-1")
//	}, blwa.ForRegion("eu-central-1"))
//
// # HTTP Client
//
// An instrumented [http.RoundTripper] and [*http.Client] are available via fx, and [Runtime.NewRequest] returns
// a fresh [requests.Builder] on the same transport. Outbound requests become child spans of the active trace.
//
// # Timeouts
//
// HTTP server timeouts are derived from BW_LAMBDA_TIMEOUT. The per-request deadline comes from the Lambda
// invocation deadline (x-amzn-lambda-context header) minus a 500ms buffer, and the router budgets each handler
// against it. A handler that outlives its budget is answered with a 500 TimeoutError and reported through the
// logger once it returns. Use [RequestDeadline] and [RequestRemainingTime] to check the effective deadline.
//
// # Error Status Codes
//
// AWS_LWA_ERROR_STATUS_CODES tells Lambda Web Adapter which HTTP response codes indicate a Lambda function error.
// Without it failed SQS messages are deleted instead of retried and Lambda error metrics are inaccurate.
//
// blwa requires this variable and validates it at startup. The codes in [DefaultRequiredErrorStatusCodes] must be included. The
// recommended configuration covers all server errors:
//
//	AWS_LWA_ERROR_STATUS_CODES=500-599
//
// The format supports comma-separated values and ranges ("500,502-504,599"), see [ValidateErrorStatusCodes].
//
// # Testing
//
// [blwatest.Serve] resolves a request with a router the way the server does, without the DI graph:
//
//	router, err := broute.NewRouter(h.Routes())
//	require.NoError(t, err)
//	rec := blwatest.Serve(t, router, httptest.NewRequest(http.MethodGet, "/items", nil))
//
// For integration tests that need the full DI graph, use [blwatest.New]:
//
//	blwatest.SetBaseEnv(t, 18081).MemoryCache()
//	app := blwatest.New[Env](t, routes, blwa.WithAWSClient(...))
//	app.RequireStart()
//	t.Cleanup(app.RequireStop)
//
// # Health Checks
//
// A health endpoint is registered at AWS_LWA_READINESS_CHECK_PATH. Customize it with [WithHealthHandler].
package blwa
