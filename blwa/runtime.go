package blwa

import (
	"context"
	"net/http"

	"github.com/advdv/broute"
	"github.com/carlmjohnson/requests"
	"github.com/cockroachdb/errors"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// Runtime provides access to app-scoped dependencies.
// Inject this into the routes constructor via fx instead of pulling from context.
//
// Example:
//
//	type Handlers struct {
//	    rt     *blwa.Runtime[Env]
//	    dynamo *dynamodb.Client
//	}
//
//	func (h *Handlers) GetItem(ctx context.Context, rc *broute.RoutingContext) (*broute.Response, error) {
//	    id, _ := broute.ParamAs[string](rc, "id")
//	    self, _ := h.rt.Reverse("getItem", id)
//	    // ...
//	}
type Runtime[E Environment] struct {
	env          E
	router       func() *broute.Router
	secretReader SecretReader
	paramReader  ParameterReader
	transport    http.RoundTripper
}

// RuntimeParams holds optional dependencies for Runtime.
type RuntimeParams struct {
	SecretReader    SecretReader
	ParameterReader ParameterReader
	Transport       http.RoundTripper
}

// NewRuntime creates a new Runtime. The router is resolved lazily since the routes are usually built from handlers
// that depend on the runtime.
func NewRuntime[E Environment](env E, router func() *broute.Router, params RuntimeParams) *Runtime[E] {
	return &Runtime[E]{
		env:          env,
		router:       router,
		secretReader: params.SecretReader,
		paramReader:  params.ParameterReader,
		transport:    params.Transport,
	}
}

// Env returns the environment configuration.
func (r *Runtime[E]) Env() E {
	return r.env
}

// Reverse returns the path of the route with the given operation id, filled with vals.
func (r *Runtime[E]) Reverse(operationID string, vals ...string) (string, error) {
	router := r.router()
	if router == nil {
		return "", errors.New("blwa: router is not built yet")
	}

	return router.Reverse(operationID, vals...)
}

// Secret retrieves a secret value from AWS Secrets Manager.
//
// If jsonPath is provided, the secret is parsed as JSON and the path is extracted
// using gjson syntax (e.g., "database.password", "api.keys.0").
// Secrets are cached but fetched per-request to support rotation without redeployment.
func (r *Runtime[E]) Secret(ctx context.Context, secretID string, jsonPath ...string) (string, error) {
	if r.secretReader == nil {
		return "", errors.New("blwa: secret reader not configured")
	}
	return secretFromReader(ctx, r.secretReader, secretID, jsonPath...)
}

// Parameter retrieves a decrypted value from SSM Parameter Store.
func (r *Runtime[E]) Parameter(ctx context.Context, name string) (string, error) {
	if r.paramReader == nil {
		return "", errors.New("blwa: parameter reader not configured")
	}
	return r.paramReader.GetParameter(ctx, name)
}

// NewRequest returns a request builder whose requests are traced. Each call returns an independent builder.
func (r *Runtime[E]) NewRequest() *requests.Builder {
	return newRequestBuilder(r.transport)
}

// NewHTTPTransport creates an HTTP RoundTripper instrumented with OpenTelemetry tracing.
// The TracerProvider and Propagator are explicitly injected to avoid global state.
func NewHTTPTransport(tp trace.TracerProvider, prop propagation.TextMapPropagator) http.RoundTripper {
	return otelhttp.NewTransport(http.DefaultTransport,
		otelhttp.WithTracerProvider(tp),
		otelhttp.WithPropagators(prop),
	)
}

// NewHTTPClient creates an *http.Client that uses the instrumented transport.
func NewHTTPClient(t http.RoundTripper) *http.Client {
	return &http.Client{Transport: t}
}

// newRequestBuilder creates a base [requests.Builder] with the instrumented transport. Handlers access it via
// [Runtime.NewRequest].
func newRequestBuilder(t http.RoundTripper) *requests.Builder {
	if t == nil {
		t = http.DefaultTransport
	}
	return requests.New().Transport(t)
}
