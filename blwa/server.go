package blwa

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"maps"
	"net/http"
	"strconv"
	"time"
	"unicode/utf8"

	"github.com/advdv/broute"
	"github.com/cockroachdb/errors"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// LambdaMaxResponsePayloadBytes is AWS Lambda's 6 MiB limit minus 1 KiB headroom for JSON/API Gateway overhead.
const LambdaMaxResponsePayloadBytes = 6*1024*1024 - 1024

// LambdaMaxRequestPayloadBytes is AWS Lambda's 6 MiB request limit.
const LambdaMaxRequestPayloadBytes = 6 * 1024 * 1024

// ServerConfig holds optional configuration for the HTTP server.
type ServerConfig struct {
	HealthHandler func(http.ResponseWriter, *http.Request)
}

// ServerParams holds the dependencies for creating an HTTP server.
type ServerParams struct {
	fx.In

	Env        Environment
	Router     *broute.Router
	Logger     *zap.Logger
	TracerProv trace.TracerProvider
	Propagator propagation.TextMapPropagator
}

// NewServer creates the HTTP server that Lambda Web Adapter forwards invocations to. The readiness check path is
// answered by the health handler and left untraced, every other request is resolved by the router.
func NewServer(params ServerParams, cfg ServerConfig) *http.Server {
	env := params.Env.base()

	healthHandler := cfg.HealthHandler
	if healthHandler == nil {
		healthHandler = defaultHealthHandler
	}

	mux := http.NewServeMux()
	mux.HandleFunc(env.ReadinessCheckPath, healthHandler)
	mux.Handle("/", NewHandler(params.Router, params.Logger, DefaultDeadlineBuffer))

	handler := traceServer(params.TracerProv, params.Propagator, env.ServiceName, env.ReadinessCheckPath)(mux)

	tc := TimeoutConfig{LambdaTimeout: env.LambdaTimeout}
	readHeaderTimeout, readTimeout, writeTimeout, idleTimeout := tc.ServerTimeouts()

	return &http.Server{
		Addr:              fmt.Sprintf(":%d", env.Port),
		Handler:           handler,
		ReadHeaderTimeout: readHeaderTimeout,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
	}
}

// Handler serves HTTP requests with a router.
type Handler struct {
	router *broute.Router
	logs   *zap.Logger
	buffer time.Duration
}

// NewHandler creates a handler that converts each request into an event, resolves it with router and writes the
// response back. The request context ends buffer before the invocation deadline.
func NewHandler(router *broute.Router, logs *zap.Logger, buffer time.Duration) *Handler {
	return &Handler{router: router, logs: logs, buffer: buffer}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := withRequestDep(r.Context(), &requestDep{logger: h.logs})

	lwa := parseLWAContext(r.Header.Get("x-amzn-lambda-context"))
	if lwa != nil {
		ctx = WithLWAContext(ctx, lwa)
	}

	ctx, cancel := withRequestDeadline(ctx, h.buffer)
	defer cancel()

	ev, err := NewEvent(r.WithContext(ctx), http.MaxBytesReader(w, r.Body, LambdaMaxRequestPayloadBytes))
	if err != nil {
		h.logs.Info("failed to read request", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	resp, err := h.router.Resolve(ctx, ev)
	if err != nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	if err := writeResponse(w, resp); err != nil {
		h.logs.Error("failed to write response", zap.String("request_id", ev.RequestContext.RequestID), zap.Error(err))
	}
}

// NewEvent converts an HTTP request into an event. Bodies that are not valid UTF-8 are base64 encoded. The request
// id is taken from the API Gateway request context forwarded by LWA, then from the LWA context.
func NewEvent(r *http.Request, body io.Reader) (*broute.Event, error) {
	buf, err := io.ReadAll(body)
	if err != nil {
		return nil, errors.Wrap(err, "read body")
	}

	headers := maps.Clone(r.Header)
	if headers == nil {
		headers = http.Header{}
	}

	if r.Host != "" {
		headers.Set("Host", r.Host)
	}

	gw := parseGatewayContext(r.Header.Get("x-amzn-request-context"))
	if gw.RequestID == "" {
		if lwa := LWA(r.Context()); lwa != nil {
			gw.RequestID = lwa.RequestID
		}
	}

	ev := &broute.Event{
		Path:                            r.URL.EscapedPath(),
		HTTPMethod:                      r.Method,
		MultiValueHeaders:               headers,
		MultiValueQueryStringParameters: r.URL.Query(),
		RequestContext:                  broute.RequestContext{RequestID: gw.RequestID, Stage: gw.Stage},
	}

	if utf8.Valid(buf) {
		ev.Body = string(buf)
	} else {
		ev.Body, ev.IsBase64Encoded = base64.StdEncoding.EncodeToString(buf), true
	}

	return ev, nil
}

func writeResponse(w http.ResponseWriter, resp *broute.Response) error {
	body := []byte(resp.Body)
	if resp.IsBase64Encoded {
		var err error
		if body, err = base64.StdEncoding.DecodeString(resp.Body); err != nil {
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
			return errors.Wrap(err, "decode base64 body")
		}
	}

	if len(body) > LambdaMaxResponsePayloadBytes {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return errors.Newf("response body of %d bytes exceeds the Lambda payload limit", len(body))
	}

	for k, v := range resp.Headers {
		w.Header().Set(k, v)
	}

	w.Header().Set("Content-Length", strconv.Itoa(len(body)))
	w.WriteHeader(resp.StatusCode)

	_, err := w.Write(body)

	return errors.Wrap(err, "write body")
}

// startServerHook registers lifecycle hooks for the HTTP server.
func startServerHook(lc fx.Lifecycle, server *http.Server, logger *zap.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			logger.Info("starting server", zap.String("addr", server.Addr))
			go func() {
				if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					logger.Error("server error", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			logger.Info("stopping server")
			return server.Shutdown(ctx)
		},
	})
}

func defaultHealthHandler(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
}
