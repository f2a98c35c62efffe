// Package cache provides a middleware that serves GET responses from a cache store. Routes opt in by declaring
// [Metadata] under the middleware's kind:
//
//	broute.GET("/users/:id", getUser,
//	    broute.WithOperationID("getUser"),
//	    broute.WithMetadata(cache.Kind, cache.Metadata{ExpiresIn: time.Minute}))
//
// Responses are keyed by the route's operation id and its validated parameters. Only 2xx responses are stored. A
// failing store never fails the request: the error is logged and the request is handled as a miss.
package cache

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/advdv/broute"
	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
)

// Kind is the middleware kind of the cache middleware.
const Kind broute.MiddlewareKind = "cache"

// Metadata opts a route into caching.
type Metadata struct {
	ExpiresIn time.Duration
}

// Store persists cached responses.
type Store interface {
	Get(ctx context.Context, key string) (val string, found bool, err error)
	Set(ctx context.Context, key, val string, ttl time.Duration) error
	Delete(ctx context.Context, key string) (deleted bool, err error)
}

type servedFromCache struct{}

// Middleware caches responses in a [Store].
type Middleware struct {
	store Store
	logs  *zap.Logger
}

// New creates the middleware.
func New(store Store, logs *zap.Logger) *Middleware {
	return &Middleware{store: store, logs: logs.Named("cache")}
}

func (m *Middleware) MiddlewareKind() broute.MiddlewareKind { return Kind }

// Key returns the cache key for an operation and its parameters.
func Key(operationID string, params map[string]any) (string, error) {
	buf, err := json.Marshal(params)
	if err != nil {
		return "", errors.Wrap(err, "marshal params")
	}

	return operationID + "." + string(buf), nil
}

func metadataOf(v any) (Metadata, bool) {
	switch md := v.(type) {
	case Metadata:
		return md, true
	case *Metadata:
		if md != nil {
			return *md, true
		}
	}

	return Metadata{}, false
}

func checkRoute(route *broute.Route) error {
	if route.OperationID() == "" {
		return broute.NewConfigurationError("cache: route %s %s must have an operation id", route.Method(), route.Path())
	}

	if route.Method() != http.MethodGet {
		return broute.NewConfigurationError("cache: route %q must be a GET route", route.OperationID())
	}

	return nil
}

// Before returns the cached response of the route, if any.
func (m *Middleware) Before(
	ctx context.Context, rc *broute.RoutingContext, route *broute.Route, metadata any,
) (*broute.Response, error) {
	if _, ok := metadataOf(metadata); !ok {
		return nil, nil
	}

	if err := checkRoute(route); err != nil {
		return nil, err
	}

	key, err := Key(route.OperationID(), rc.Params())
	if err != nil {
		return nil, err
	}

	val, found, err := m.store.Get(ctx, key)
	if err != nil {
		m.logs.Error("failed to read from cache store", zap.String("key", key), zap.Error(err))
		return nil, nil
	}

	if !found {
		return nil, nil
	}

	var resp broute.Response
	if err := json.Unmarshal([]byte(val), &resp); err != nil {
		m.logs.Error("failed to decode cached response", zap.String("key", key), zap.Error(err))
		return nil, nil
	}

	rc.Set(servedFromCache{}, true)

	return &resp, nil
}

// After stores successful responses that were not served from the cache.
func (m *Middleware) After(
	ctx context.Context, rc *broute.RoutingContext, route *broute.Route, metadata any, resp *broute.Response,
) (*broute.Response, error) {
	md, ok := metadataOf(metadata)
	if !ok || checkRoute(route) != nil || resp.StatusCode < 200 || resp.StatusCode > 299 {
		return resp, nil
	}

	if served, _ := rc.Get(servedFromCache{}); served == true {
		return resp, nil
	}

	key, err := Key(route.OperationID(), rc.Params())
	if err != nil {
		return nil, err
	}

	buf, err := json.Marshal(resp)
	if err != nil {
		return nil, errors.Wrap(err, "marshal response")
	}

	if err := m.store.Set(ctx, key, string(buf), md.ExpiresIn); err != nil {
		m.logs.Error("failed to write to cache store", zap.String("key", key), zap.Error(err))
	}

	return resp, nil
}

// DeleteCache removes the cached response of the operation for the given parameters.
func (m *Middleware) DeleteCache(ctx context.Context, operationID string, params map[string]any) (bool, error) {
	key, err := Key(operationID, params)
	if err != nil {
		return false, err
	}

	deleted, err := m.store.Delete(ctx, key)
	if err != nil {
		return false, errors.Wrapf(err, "delete %q", key)
	}

	return deleted, nil
}

var (
	_ broute.BeforeMiddleware = &Middleware{}
	_ broute.AfterMiddleware  = &Middleware{}
)
