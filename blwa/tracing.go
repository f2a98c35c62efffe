package blwa

import (
	"context"
	"net/http"
	"time"

	"github.com/aws-observability/aws-otel-go/exporters/xrayudp"
	"github.com/cockroachdb/errors"
	"go.opentelemetry.io/contrib/detectors/aws/lambda"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/contrib/propagators/aws/xray"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/fx"
)

const tracingInitTimeout = 5 * time.Second

// Values of BW_OTEL_EXPORTER.
const (
	ExporterStdout  = "stdout"
	ExporterXRayUDP = "xrayudp"
	ExporterNone    = "none"
)

// exporterSetup describes how spans are exported for one BW_OTEL_EXPORTER value. A nil export records nothing.
type exporterSetup struct {
	export     func(ctx context.Context) (sdktrace.SpanExporter, error)
	resource   func(ctx context.Context, base BaseEnvironment) (*resource.Resource, error)
	propagator func() propagation.TextMapPropagator
	ids        sdktrace.IDGenerator
}

func w3cPropagator() propagation.TextMapPropagator {
	return propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{})
}

// serviceResource names the service; used outside Lambda.
func serviceResource(_ context.Context, base BaseEnvironment) (*resource.Resource, error) {
	return resource.NewWithAttributes(semconv.SchemaURL, semconv.ServiceName(base.ServiceName)), nil
}

// lambdaResource describes the function through the Lambda detector. The gateway access log group, if any, is added
// so X-Ray can show the gateway logs next to the function logs.
func lambdaResource(ctx context.Context, base BaseEnvironment) (*resource.Resource, error) {
	res, err := lambda.NewResourceDetector().Detect(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "detect lambda resource")
	}

	return mergeLogGroups(ctx, res, base.GatewayAccessLogGroup)
}

func setupFor(exporter string) (exporterSetup, error) {
	switch exporter {
	case ExporterStdout, "":
		return exporterSetup{
			export: func(context.Context) (sdktrace.SpanExporter, error) {
				return stdouttrace.New(stdouttrace.WithPrettyPrint())
			},
			resource:   serviceResource,
			propagator: w3cPropagator,
		}, nil
	case ExporterXRayUDP:
		return exporterSetup{
			export: func(ctx context.Context) (sdktrace.SpanExporter, error) {
				return xrayudp.NewSpanExporter(ctx)
			},
			resource:   lambdaResource,
			propagator: func() propagation.TextMapPropagator { return xray.Propagator{} },
			ids:        xray.NewIDGenerator(),
		}, nil
	case ExporterNone:
		return exporterSetup{propagator: w3cPropagator}, nil
	default:
		return exporterSetup{}, errors.Newf("unsupported BW_OTEL_EXPORTER: %q (supported: stdout, xrayudp, none)", exporter)
	}
}

// NewTracerProvider builds the tracer provider for BW_OTEL_EXPORTER: "stdout" (default) pretty prints spans,
// "xrayudp" sends them to the Lambda X-Ray daemon and "none" records nothing. The provider is shut down with the app.
func NewTracerProvider(lc fx.Lifecycle, env Environment) (trace.TracerProvider, error) {
	base := env.base()

	setup, err := setupFor(base.OtelExporter)
	if err != nil {
		return nil, err
	}

	if setup.export == nil {
		return noop.NewTracerProvider(), nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), tracingInitTimeout)
	defer cancel()

	exp, err := setup.export(ctx)
	if err != nil {
		return nil, errors.Wrapf(err, "create %s exporter", base.OtelExporter)
	}

	res, err := setup.resource(ctx, base)
	if err != nil {
		return nil, err
	}

	opts := []sdktrace.TracerProviderOption{
		sdktrace.WithSpanProcessor(sdktrace.NewSimpleSpanProcessor(exp)),
		sdktrace.WithResource(res),
	}
	if setup.ids != nil {
		opts = append(opts, sdktrace.WithIDGenerator(setup.ids))
	}

	tp := sdktrace.NewTracerProvider(opts...)
	lc.Append(fx.StopHook(tp.Shutdown))

	return tp, nil
}

// NewPropagator returns the X-Ray propagator for the xrayudp exporter and W3C trace context plus baggage otherwise.
func NewPropagator(env Environment) propagation.TextMapPropagator {
	setup, err := setupFor(env.base().OtelExporter)
	if err != nil {
		return w3cPropagator()
	}

	return setup.propagator()
}

// mergeLogGroups adds the non-empty log groups to res as aws.log.group.names.
func mergeLogGroups(ctx context.Context, res *resource.Resource, groups ...string) (*resource.Resource, error) {
	var names []string
	for _, g := range groups {
		if g != "" {
			names = append(names, g)
		}
	}

	if len(names) == 0 {
		return res, nil
	}

	extra, err := resource.New(ctx, resource.WithAttributes(attribute.StringSlice("aws.log.group.names", names)))
	if err != nil {
		return nil, err
	}

	return resource.Merge(res, extra)
}

// traceServer wraps the server handler with otelhttp. Its span is the parent of the span the router's tracing
// middleware starts for the matched route. Requests to skip are not traced.
func traceServer(
	tp trace.TracerProvider, prop propagation.TextMapPropagator, serviceName string, skip ...string,
) func(http.Handler) http.Handler {
	skipped := make(map[string]bool, len(skip))
	for _, p := range skip {
		skipped[p] = true
	}

	return func(next http.Handler) http.Handler {
		return otelhttp.NewHandler(next, serviceName,
			otelhttp.WithTracerProvider(tp),
			otelhttp.WithPropagators(prop),
			otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
				return r.Method + " " + r.URL.Path
			}),
			otelhttp.WithFilter(func(r *http.Request) bool { return !skipped[r.URL.Path] }),
		)
	}
}
