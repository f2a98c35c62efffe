package blwa

import (
	"context"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"go.opentelemetry.io/contrib/instrumentation/github.com/aws/aws-sdk-go-v2/otelaws"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
)

// Region represents a target AWS region for client creation.
type Region interface {
	resolve(env BaseEnvironment) string
}

type localRegion struct{}

func (localRegion) resolve(env BaseEnvironment) string { return env.AWSRegion }

// LocalRegion returns a Region that uses the Lambda's AWS_REGION.
func LocalRegion() Region { return localRegion{} }

type primaryRegion struct{}

func (primaryRegion) resolve(env BaseEnvironment) string { return env.PrimaryRegion }

// PrimaryRegion returns a Region that uses BW_PRIMARY_REGION, for resources that only live in the primary
// deployment region.
func PrimaryRegion() Region { return primaryRegion{} }

type fixedRegion string

func (r fixedRegion) resolve(BaseEnvironment) string { return string(r) }

// FixedRegion returns a Region that uses a specific region string.
func FixedRegion(region string) Region { return fixedRegion(region) }

// Primary wraps an AWS client for the primary deployment region, so that it can be told apart from the local client
// of the same type when injected:
//
//	blwa.WithAWSClient(func(cfg aws.Config) *blwa.Primary[ssm.Client] {
//	    return blwa.NewPrimary(ssm.NewFromConfig(cfg))
//	}, blwa.ForPrimaryRegion())
type Primary[T any] struct {
	Client *T
}

// NewPrimary wraps a client configured for the primary region.
func NewPrimary[T any](client *T) *Primary[T] {
	return &Primary[T]{Client: client}
}

// InRegion wraps an AWS client configured for a fixed region.
type InRegion[T any] struct {
	Client *T
	Region string
}

// NewInRegion wraps a client configured for region.
func NewInRegion[T any](client *T, region string) *InRegion[T] {
	return &InRegion[T]{Client: client, Region: region}
}

type clientOptions struct {
	region Region
}

// ClientOption configures AWS client registration.
type ClientOption func(*clientOptions)

// ForPrimaryRegion configures the client to use BW_PRIMARY_REGION.
func ForPrimaryRegion() ClientOption {
	return func(o *clientOptions) { o.region = PrimaryRegion() }
}

// ForRegion configures the client to use a specific fixed region.
func ForRegion(region string) ClientOption {
	return func(o *clientOptions) { o.region = FixedRegion(region) }
}

const awsConfigTimeout = 10 * time.Second

// NewAWSConfig loads the default AWS SDK v2 configuration.
func NewAWSConfig(ctx context.Context) (aws.Config, error) {
	return awsconfig.LoadDefaultConfig(ctx)
}

// provideAWSConfig loads the AWS config and instruments it for tracing of SDK calls. The TracerProvider and
// Propagator are injected to avoid global state.
func provideAWSConfig(tp trace.TracerProvider, prop propagation.TextMapPropagator) (aws.Config, error) {
	ctx, cancel := context.WithTimeout(context.Background(), awsConfigTimeout)
	defer cancel()

	cfg, err := NewAWSConfig(ctx)
	if err != nil {
		return cfg, err
	}

	otelaws.AppendMiddlewares(&cfg.APIOptions,
		otelaws.WithTracerProvider(tp),
		otelaws.WithTextMapPropagator(prop),
	)

	return cfg, nil
}

// clientConfig copies cfg for the region the options resolve to.
func clientConfig(cfg aws.Config, env BaseEnvironment, opts ...ClientOption) aws.Config {
	options := &clientOptions{region: LocalRegion()}
	for _, opt := range opts {
		opt(options)
	}

	awsCfg := cfg.Copy()
	if r := options.region.resolve(env); r != "" {
		awsCfg.Region = r
	}

	return awsCfg
}

// AWSClientProvider creates an fx.Option that provides an AWS client for injection. The factory receives an
// aws.Config with the region already configured, the local region unless an option says otherwise:
//
//	blwa.AWSClientProvider(func(cfg aws.Config) *dynamodb.Client {
//	    return dynamodb.NewFromConfig(cfg)
//	})
func AWSClientProvider[T any](factory func(aws.Config) T, opts ...ClientOption) fx.Option {
	return fx.Provide(func(cfg aws.Config, env Environment) T {
		return factory(clientConfig(cfg, env.base(), opts...))
	})
}
