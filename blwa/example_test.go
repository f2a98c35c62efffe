package blwa_test

import (
	"context"
	"time"

	"github.com/advdv/broute"
	"github.com/advdv/broute/blwa"
	"github.com/advdv/broute/middleware/cache"
	"github.com/advdv/broute/schema"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Env defines the environment variables for the application.
// Embed blwa.BaseEnvironment to get the required LWA fields.
type Env struct {
	blwa.BaseEnvironment
	MainTableName string `env:"MAIN_TABLE_NAME,required"`
}

// ItemHandlers contains the handlers for item operations.
// Dependencies are injected via the constructor, including AWS clients.
type ItemHandlers struct {
	rt     *blwa.Runtime[Env]
	dynamo *dynamodb.Client
}

func NewItemHandlers(rt *blwa.Runtime[Env], dynamo *dynamodb.Client) *ItemHandlers {
	return &ItemHandlers{rt: rt, dynamo: dynamo}
}

// Routes declares the item routes. Parameters are validated before the handlers run.
func (h *ItemHandlers) Routes() []broute.Node {
	return []broute.Node{
		broute.MustNamespace("/items", []broute.Node{
			broute.GET("", h.ListItems, broute.WithOperationID("listItems"), broute.WithParams(broute.Params{
				"limit": broute.Query(schema.Int().Min(1).Max(100).Default(int64(20))),
			})),
			broute.GET("/:id", h.GetItem,
				broute.WithOperationID("getItem"),
				broute.WithParams(broute.Params{"id": broute.Path(schema.String())}),
				broute.WithMetadata(cache.Kind, cache.Metadata{ExpiresIn: time.Minute})),
			broute.POST("", h.CreateItem, broute.WithOperationID("createItem"), broute.WithParams(broute.Params{
				"name": broute.Body(schema.String()),
			})),
		}),
	}
}

// ListItems returns items from the database.
// Demonstrates: Log for trace-correlated logging, Runtime.Env for configuration access.
func (h *ItemHandlers) ListItems(ctx context.Context, rc *broute.RoutingContext) (*broute.Response, error) {
	env := h.rt.Env()
	limit, _ := broute.ParamAs[int64](rc, "limit")

	blwa.Log(ctx).Info("listing items from table",
		zap.String("table", env.MainTableName), zap.Int64("limit", limit))

	return rc.JSON(map[string]any{
		"table": env.MainTableName,
		"items": []string{"item-1", "item-2"},
	})
}

// GetItem returns a single item by ID. Responses are cached when BW_CACHE_STORE is set.
// Demonstrates: Span for adding trace events, Runtime.Reverse for URL generation.
func (h *ItemHandlers) GetItem(ctx context.Context, rc *broute.RoutingContext) (*broute.Response, error) {
	id, _ := broute.ParamAs[string](rc, "id")

	blwa.Span(ctx).AddEvent("fetching item")

	selfURL, _ := h.rt.Reverse("getItem", id)

	return rc.JSON(map[string]any{
		"id":   id,
		"self": selfURL,
	})
}

// CreateItem creates a new item in DynamoDB.
// Demonstrates: Direct AWS client injection, LWA for Lambda context.
func (h *ItemHandlers) CreateItem(ctx context.Context, rc *broute.RoutingContext) (*broute.Response, error) {
	log := blwa.Log(ctx)

	// LWA returns nil outside Lambda.
	if lwa := blwa.LWA(ctx); lwa != nil {
		log.Info("lambda context",
			zap.String("request_id", lwa.RequestID),
			zap.Duration("remaining", lwa.RemainingTime()),
		)
	}

	_ = h.dynamo

	return rc.JSON(map[string]string{
		"id":     "new-item-123",
		"status": "created",
	}, broute.WithStatus(201))
}

// Example demonstrates a complete blwa application with local region AWS clients.
// AWS clients are injected directly into handler constructors via fx.
func Example() {
	blwa.NewApp[Env](
		func(h *ItemHandlers) []broute.Node { return h.Routes() },
		blwa.WithAWSClient(func(cfg aws.Config) *dynamodb.Client {
			return dynamodb.NewFromConfig(cfg)
		}),
		blwa.WithFx(fx.Provide(NewItemHandlers)),
	).Run()
}

// ConfigHandlers demonstrates primary region client injection.
type ConfigHandlers struct {
	rt  *blwa.Runtime[Env]
	ssm *blwa.Primary[ssm.Client]
}

func NewConfigHandlers(rt *blwa.Runtime[Env], ssm *blwa.Primary[ssm.Client]) *ConfigHandlers {
	return &ConfigHandlers{rt: rt, ssm: ssm}
}

// GetConfig fetches configuration from the primary region SSM Parameter Store.
func (h *ConfigHandlers) GetConfig(ctx context.Context, rc *broute.RoutingContext) (*broute.Response, error) {
	out, err := h.ssm.Client.GetParameter(ctx, &ssm.GetParameterInput{Name: aws.String("/app/config")})
	if err != nil {
		return nil, err
	}

	return rc.JSON(map[string]string{"config": aws.ToString(out.Parameter.Value)})
}

// Example_primaryRegion demonstrates primary region AWS client injection.
// Use Primary[T] when you need resources in the primary deployment region.
func Example_primaryRegion() {
	blwa.NewApp[Env](
		func(h *ConfigHandlers) []broute.Node {
			return []broute.Node{broute.GET("/config", h.GetConfig)}
		},
		blwa.WithAWSClient(func(cfg aws.Config) *blwa.Primary[ssm.Client] {
			return blwa.NewPrimary(ssm.NewFromConfig(cfg))
		}, blwa.ForPrimaryRegion()),
		blwa.WithFx(fx.Provide(NewConfigHandlers)),
	).Run()
}

// UploadHandlers demonstrates fixed region client injection.
type UploadHandlers struct {
	s3  *blwa.InRegion[s3.Client]
	sqs *sqs.Client
}

func NewUploadHandlers(s3 *blwa.InRegion[s3.Client], sqs *sqs.Client) *UploadHandlers {
	return &UploadHandlers{s3: s3, sqs: sqs}
}

// Upload stores the body in a fixed-region S3 bucket and announces it on a local queue.
func (h *UploadHandlers) Upload(ctx context.Context, rc *broute.RoutingContext) (*broute.Response, error) {
	key, _ := broute.ParamAs[string](rc, "key")

	blwa.Log(ctx).Info("uploading to fixed region S3", zap.String("region", h.s3.Region))

	_, _ = h.s3.Client, h.sqs

	return rc.JSON(map[string]string{
		"key":    key,
		"region": h.s3.Region,
	})
}

// Example_fixedRegion demonstrates fixed region AWS client injection.
// Use InRegion[T] for resources that must live in a particular region.
func Example_fixedRegion() {
	blwa.NewApp[Env](
		func(h *UploadHandlers) []broute.Node {
			return []broute.Node{
				broute.PUT("/uploads/:key", h.Upload, broute.WithParams(broute.Params{
					"key": broute.Path(schema.String()),
				})),
			}
		},
		blwa.WithAWSClient(func(cfg aws.Config) *blwa.InRegion[s3.Client] {
			return blwa.NewInRegion(s3.NewFromConfig(cfg), "eu-central-1")
		}, blwa.ForRegion("eu-central-1")),
		blwa.WithAWSClient(func(cfg aws.Config) *sqs.Client {
			return sqs.NewFromConfig(cfg)
		}),
		blwa.WithFx(fx.Provide(NewUploadHandlers)),
	).Run()
}

// SecretHandlers demonstrates secret retrieval.
type SecretHandlers struct {
	rt *blwa.Runtime[Env]
}

func NewSecretHandlers(rt *blwa.Runtime[Env]) *SecretHandlers {
	return &SecretHandlers{rt: rt}
}

// Connect retrieves a raw secret, a value at a JSON path of a secret and an SSM parameter.
func (h *SecretHandlers) Connect(ctx context.Context, rc *broute.RoutingContext) (*broute.Response, error) {
	apiKey, err := h.rt.Secret(ctx, "my-api-key-secret")
	if err != nil {
		return nil, err
	}

	// e.g. {"database": {"host": "...", "password": "secret123"}}
	dbPassword, err := h.rt.Secret(ctx, "my-db-credentials", "database.password")
	if err != nil {
		return nil, err
	}

	endpoint, err := h.rt.Parameter(ctx, "/app/endpoint")
	if err != nil {
		return nil, err
	}

	blwa.Log(ctx).Info("retrieved secrets",
		zap.Int("api_key_len", len(apiKey)),
		zap.Int("password_len", len(dbPassword)))

	var status struct {
		OK bool `json:"ok"`
	}
	if err := h.rt.NewRequest().BaseURL(endpoint).Header("Authorization", apiKey).ToJSON(&status).Fetch(ctx); err != nil {
		return nil, err
	}

	return rc.JSON(map[string]bool{"connected": status.OK})
}

// Example_secrets demonstrates secrets and parameters. Errors a handler returns are rendered as a 500 whose
// detail is encrypted with the secret configured by BW_ERROR_SECRET_ID.
func Example_secrets() {
	blwa.NewApp[Env](
		func(h *SecretHandlers) []broute.Node {
			return []broute.Node{broute.POST("/connect", h.Connect)}
		},
		blwa.WithFx(fx.Provide(NewSecretHandlers)),
	).Run()
}

// Example_middlewares demonstrates a namespace before hook and an app middleware.
func Example_middlewares() {
	requireKey := func(_ context.Context, rc *broute.RoutingContext) error {
		if rc.Header("x-api-key") == "" {
			return broute.NewError(broute.CodeUnauthorized, "Unauthorized", "missing api key", nil)
		}
		return nil
	}

	blwa.NewApp[Env](
		func() []broute.Node {
			return []broute.Node{
				broute.MustNamespace("/admin", []broute.Node{
					broute.GET("/stats", func(_ context.Context, rc *broute.RoutingContext) (*broute.Response, error) {
						return rc.JSON(map[string]int{"items": 2})
					}),
				}, broute.WithBefore(requireKey)),
			}
		},
		blwa.WithMiddlewares(func(logs *zap.Logger) []broute.Middleware {
			return []broute.Middleware{broute.MiddlewareFuncs{
				Kind: "access-log",
				AfterFunc: func(
					_ context.Context, rc *broute.RoutingContext, route *broute.Route, _ any, resp *broute.Response,
				) (*broute.Response, error) {
					logs.Info("served", zap.String("path", route.Path()), zap.Int("status", resp.StatusCode),
						zap.String("request_id", rc.RequestID()))
					return resp, nil
				},
			}}
		}),
		blwa.WithRouterOptions(broute.WithTimeout(10*time.Second)),
	).Run()
}
