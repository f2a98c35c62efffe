package blwa_test

import (
	"context"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/advdv/broute"
	"github.com/advdv/broute/blwa"
	"github.com/advdv/broute/blwa/blwatest"
	"github.com/advdv/broute/middleware/cache"
	"github.com/advdv/broute/schema"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
)

// TestEnv is a test environment with app-specific fields beyond BaseEnvironment.
type TestEnv struct {
	blwa.BaseEnvironment
	MainTableName string `env:"MAIN_TABLE_NAME,required"`
	BucketName    string `env:"BUCKET_NAME,required"`
	QueueURL      string `env:"QUEUE_URL,required"`
}

// setTestEnvVars sets TestEnv-specific env vars that are not part of BaseEnvironment.
func setTestEnvVars(t *testing.T) {
	t.Helper()
	t.Setenv("MAIN_TABLE_NAME", "test-table")
	t.Setenv("BUCKET_NAME", "test-bucket")
	t.Setenv("QUEUE_URL", "test-queue")
}

// regionTestEnv is a minimal test environment with only BaseEnvironment fields.
type regionTestEnv struct {
	blwa.BaseEnvironment
}

// Handlers demonstrates direct fx injection of AWS clients.
type Handlers struct {
	rt     *blwa.Runtime[TestEnv]
	dynamo *dynamodb.Client
	s3     *s3.Client
	sqs    *sqs.Client
	calls  int
}

func NewHandlers(
	rt *blwa.Runtime[TestEnv],
	dynamo *dynamodb.Client,
	s3 *s3.Client,
	sqs *sqs.Client,
) *Handlers {
	return &Handlers{rt: rt, dynamo: dynamo, s3: s3, sqs: sqs}
}

// Routes returns the route tree served by the test app.
func (h *Handlers) Routes() []broute.Node {
	return []broute.Node{
		broute.GET("/context", h.TestContext),
		broute.GET("/aws", h.TestAWS),
		broute.MustNamespace("/items", []broute.Node{
			broute.POST("", h.CreateItem, broute.WithOperationID("createItem"), broute.WithParams(broute.Params{
				"name":  broute.Body(schema.String()),
				"value": broute.Body(schema.Int()),
			})),
			broute.GET("/:id", h.GetItem, broute.WithOperationID("getItem"), broute.WithParams(broute.Params{
				"id": broute.Path(schema.String()),
			})),
		}),
		broute.GET("/counter", h.Counter, broute.WithOperationID("getCounter"),
			broute.WithMetadata(cache.Kind, cache.Metadata{ExpiresIn: time.Minute})),
		broute.GET("/fail", func(context.Context, *broute.RoutingContext) (*broute.Response, error) {
			return nil, io.ErrUnexpectedEOF
		}),
	}
}

func (h *Handlers) TestContext(ctx context.Context, rc *broute.RoutingContext) (*broute.Response, error) {
	env := h.rt.Env()
	lwa := blwa.LWA(ctx)

	itemURL, err := h.rt.Reverse("getItem", "test-123")
	if err != nil {
		return nil, err
	}

	blwa.Span(ctx).AddEvent("context-test")
	blwa.Log(ctx).Info("testing context features")

	return rc.JSON(map[string]any{
		"env": map[string]string{
			"table":        env.MainTableName,
			"bucket":       env.BucketName,
			"queue":        env.QueueURL,
			"service_name": env.ServiceName,
		},
		"span_valid":   blwa.Span(ctx).SpanContext().IsValid(),
		"lwa_nil":      lwa == nil,
		"reversed_url": itemURL,
		"request_id":   rc.RequestID(),
	})
}

func (h *Handlers) TestAWS(ctx context.Context, rc *broute.RoutingContext) (*broute.Response, error) {
	blwa.Log(ctx).Info("testing AWS clients")

	return rc.JSON(map[string]bool{
		"dynamo": h.dynamo != nil,
		"s3":     h.s3 != nil,
		"sqs":    h.sqs != nil,
	})
}

func (h *Handlers) CreateItem(ctx context.Context, rc *broute.RoutingContext) (*broute.Response, error) {
	env := h.rt.Env()

	name, _ := broute.ParamAs[string](rc, "name")
	value, _ := broute.ParamAs[int64](rc, "value")

	blwa.Span(ctx).AddEvent("creating-item")
	blwa.Log(ctx).Info("creating item")

	return rc.JSON(map[string]any{
		"id":    "item-123",
		"table": env.MainTableName,
		"name":  name,
		"value": value,
	}, broute.WithStatus(http.StatusCreated))
}

func (h *Handlers) GetItem(ctx context.Context, rc *broute.RoutingContext) (*broute.Response, error) {
	id, _ := broute.ParamAs[string](rc, "id")
	env := h.rt.Env()

	selfURL, _ := h.rt.Reverse("getItem", id)

	blwa.Log(ctx).Info("getting item")

	return rc.JSON(map[string]any{
		"id":       id,
		"table":    env.MainTableName,
		"self_url": selfURL,
	})
}

func (h *Handlers) Counter(_ context.Context, rc *broute.RoutingContext) (*broute.Response, error) {
	h.calls++
	return rc.JSON(map[string]int{"calls": h.calls})
}

// RegionHandlers demonstrates all three region types injected via fx.
type RegionHandlers struct {
	rt     *blwa.Runtime[regionTestEnv]
	dynamo *dynamodb.Client
	s3     *blwa.Primary[s3.Client]
	sqs    *blwa.InRegion[sqs.Client]
}

func NewRegionHandlers(
	rt *blwa.Runtime[regionTestEnv],
	dynamo *dynamodb.Client,
	s3 *blwa.Primary[s3.Client],
	sqs *blwa.InRegion[sqs.Client],
) *RegionHandlers {
	return &RegionHandlers{rt: rt, dynamo: dynamo, s3: s3, sqs: sqs}
}

func (h *RegionHandlers) TestClients(_ context.Context, rc *broute.RoutingContext) (*broute.Response, error) {
	return rc.JSON(map[string]any{
		"local":          h.dynamo != nil,
		"local_region":   h.dynamo.Options().Region,
		"primary":        h.s3 != nil && h.s3.Client != nil,
		"primary_region": h.s3.Client.Options().Region,
		"fixed":          h.sqs != nil && h.sqs.Client != nil,
		"fixed_region":   h.sqs.Region,
		"fixed_config":   h.sqs.Client.Options().Region,
	})
}

// doGet performs an HTTP GET with the given context.
func doGet(ctx context.Context, client *http.Client, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	return client.Do(req)
}

// doPost performs an HTTP POST with the given context and content type.
func doPost(ctx context.Context, client *http.Client, url, contentType string, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", contentType)
	return client.Do(req)
}

// setTestEnvForTestEnv is a convenience that calls SetBaseEnv and setTestEnvVars.
func setTestEnvForTestEnv(t *testing.T, port int) *blwatest.Env {
	t.Helper()
	env := blwatest.SetBaseEnv(t, port)
	setTestEnvVars(t)
	return env
}
