package blwa

import (
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/cockroachdb/errors"
	"go.uber.org/zap/zapcore"
)

// Environment defines the interface that all environment configurations must implement.
// Embed BaseEnvironment in your struct to satisfy this interface.
type Environment interface {
	base() BaseEnvironment
}

// CacheStore selects the store of the cache middleware.
type CacheStore string

const (
	// CacheStoreNone disables the cache middleware.
	CacheStoreNone CacheStore = ""
	// CacheStoreMemory keeps responses in process memory.
	CacheStoreMemory CacheStore = "memory"
	// CacheStoreRedis keeps responses in the Redis server at BW_CACHE_REDIS_URL.
	CacheStoreRedis CacheStore = "redis"
	// CacheStoreDynamoDB keeps responses in the table named by BW_CACHE_TABLE_NAME.
	CacheStoreDynamoDB CacheStore = "dynamodb"
)

// BaseEnvironment contains the required LWA environment variables.
// Embed this in your custom environment struct.
type BaseEnvironment struct {
	Port               int           `env:"AWS_LWA_PORT,required"`
	ServiceName        string        `env:"BW_SERVICE_NAME,required"`
	ReadinessCheckPath string        `env:"AWS_LWA_READINESS_CHECK_PATH,required"`
	LogLevel           zapcore.Level `env:"BW_LOG_LEVEL" envDefault:"info"`
	OtelExporter       string        `env:"BW_OTEL_EXPORTER" envDefault:"stdout"`
	AWSRegion          string        `env:"AWS_REGION,required"`
	PrimaryRegion      string        `env:"BW_PRIMARY_REGION,required"`
	LambdaTimeout      time.Duration `env:"BW_LAMBDA_TIMEOUT,required"`
	ErrorStatusCodes   string        `env:"AWS_LWA_ERROR_STATUS_CODES,required"`
	// GatewayAccessLogGroup is the CloudWatch Log Group name for API Gateway
	// access logs. When set, traces include this log group for X-Ray log
	// correlation.
	GatewayAccessLogGroup string `env:"BW_GATEWAY_ACCESS_LOG_GROUP"`

	// RouteTimeout bounds every handler, on top of the invocation deadline.
	RouteTimeout time.Duration `env:"BW_ROUTE_TIMEOUT"`

	// The error detail secret is read from the first of these that is set.
	ErrorSecret          string `env:"BW_ERROR_SECRET"`
	ErrorSecretID        string `env:"BW_ERROR_SECRET_ID"`
	ErrorSecretPath      string `env:"BW_ERROR_SECRET_PATH"`
	ErrorSecretParameter string `env:"BW_ERROR_SECRET_PARAMETER"`

	CacheStore     CacheStore `env:"BW_CACHE_STORE"`
	CacheRedisURL  string     `env:"BW_CACHE_REDIS_URL"`
	CacheTableName string     `env:"BW_CACHE_TABLE_NAME"`
}

func (e BaseEnvironment) base() BaseEnvironment { return e }

var _ Environment = BaseEnvironment{}

func (e BaseEnvironment) validate() error {
	if err := ValidateErrorStatusCodes(e.ErrorStatusCodes, DefaultRequiredErrorStatusCodes...); err != nil {
		return err
	}

	switch e.CacheStore {
	case CacheStoreNone, CacheStoreMemory:
	case CacheStoreRedis:
		if e.CacheRedisURL == "" {
			return errors.New("BW_CACHE_REDIS_URL is required for the redis cache store")
		}
	case CacheStoreDynamoDB:
		if e.CacheTableName == "" {
			return errors.New("BW_CACHE_TABLE_NAME is required for the dynamodb cache store")
		}
	default:
		return errors.Newf("unsupported BW_CACHE_STORE: %q (supported: memory, redis, dynamodb)", e.CacheStore)
	}

	return nil
}

// ParseEnv parses environment variables into the given Environment type.
func ParseEnv[E Environment]() func() (E, error) {
	return func() (e E, err error) {
		if err := env.Parse(&e); err != nil {
			return e, errors.Wrap(err, "failed to parse environment")
		}

		if err := e.base().validate(); err != nil {
			return e, errors.Wrap(err, "invalid environment")
		}

		return e, nil
	}
}

// DefaultRequiredErrorStatusCodes must be reported as invocation errors by Lambda Web Adapter. The router renders
// unresolved failures and timeouts as 500, LWA itself answers 504 when the app does not respond in time.
var DefaultRequiredErrorStatusCodes = []int{500, 504}

// ValidateErrorStatusCodes checks that the AWS_LWA_ERROR_STATUS_CODES expression, e.g. "500,502-504" or "500-",
// covers every required status code.
func ValidateErrorStatusCodes(expr string, required ...int) error {
	ranges, err := parseStatusRanges(expr)
	if err != nil {
		return errors.Wrapf(err, "failed to parse AWS_LWA_ERROR_STATUS_CODES %q", expr)
	}

	var missing []int
	for _, code := range required {
		if !slices.ContainsFunc(ranges, func(r statusRange) bool { return r.contains(code) }) {
			missing = append(missing, code)
		}
	}

	if len(missing) > 0 {
		return errors.Newf("AWS_LWA_ERROR_STATUS_CODES %q does not cover all required codes, missing: %v "+
			"(recommended value: %q)", expr, missing, "500-599")
	}

	return nil
}

type statusRange struct {
	lo, hi int // hi < 0 is open-ended
}

func (r statusRange) contains(code int) bool {
	return code >= r.lo && (r.hi < 0 || code <= r.hi)
}

func parseStatusRanges(expr string) ([]statusRange, error) {
	var ranges []statusRange

	for part := range strings.SplitSeq(expr, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			return nil, errors.New("empty item")
		}

		from, to, isRange := strings.Cut(part, "-")

		lo, err := strconv.Atoi(strings.TrimSpace(from))
		if err != nil {
			return nil, errors.Newf("invalid status code %q", from)
		}

		r := statusRange{lo: lo, hi: lo}
		if isRange {
			r.hi = -1
			if to = strings.TrimSpace(to); to != "" {
				if r.hi, err = strconv.Atoi(to); err != nil || r.hi < lo {
					return nil, errors.Newf("invalid range %q", part)
				}
			}
		}

		ranges = append(ranges, r)
	}

	return ranges, nil
}
