package blwa

import (
	"context"

	"github.com/advdv/broute/middleware/cache"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/cockroachdb/errors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// newCacheStore creates the store selected by BW_CACHE_STORE, nil when caching is disabled. A Redis client is
// closed when the app stops.
func newCacheStore(lc fx.Lifecycle, env Environment, cfg aws.Config) (cache.Store, error) {
	base := env.base()

	switch base.CacheStore {
	case CacheStoreMemory:
		return cache.NewMemoryStore(), nil
	case CacheStoreRedis:
		opts, err := redis.ParseURL(base.CacheRedisURL)
		if err != nil {
			return nil, errors.Wrap(err, "failed to parse BW_CACHE_REDIS_URL")
		}

		client := redis.NewClient(opts)
		lc.Append(fx.Hook{OnStop: func(context.Context) error { return client.Close() }})

		return cache.NewRedisStore(client, base.ServiceName+":"), nil
	case CacheStoreDynamoDB:
		client := dynamodb.NewFromConfig(clientConfig(cfg, base))
		return cache.NewDynamoStore(client, base.CacheTableName), nil
	default:
		return nil, nil //nolint:nilnil
	}
}

// newCacheMiddleware creates the cache middleware, nil when caching is disabled.
func newCacheMiddleware(store cache.Store, logs *zap.Logger) *cache.Middleware {
	if store == nil {
		return nil
	}

	return cache.New(store, logs)
}
