package broute_test

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"testing"
	"time"

	"github.com/advdv/broute"
	"github.com/advdv/broute/schema"
	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type followingsBody struct {
	TestID any `json:"testId"`
	UserID any `json:"userId"`
	Update any `json:"update"`
}

func apiRoutes() []broute.Node {
	return []broute.Node{
		broute.MustNamespace("/api/:userId", []broute.Node{
			broute.GET("/followers", func(_ context.Context, rc *broute.RoutingContext) (*broute.Response, error) {
				return rc.JSON(map[string]any{"data": map[string]any{}})
			}, broute.WithOperationID("listFollowers")),
			broute.POST("/followings", func(_ context.Context, rc *broute.RoutingContext) (*broute.Response, error) {
				p := rc.Params()
				return rc.JSON(followingsBody{p["testId"], p["userId"], p["update"]})
			}, broute.WithOperationID("updateFollowings"), broute.WithParams(broute.Params{
				"testId": broute.Query(schema.Int()),
				"update": broute.Body(schema.Object(schema.Fields{
					"fieldA": schema.Number(),
				})),
			})),
		}, broute.WithPathParams(map[string]*schema.Schema{"userId": schema.Int()})),
	}
}

func newRouter(t *testing.T, routes []broute.Node, opts ...broute.Option) (*broute.Router, *broute.TestLogger) {
	t.Helper()

	logs := broute.NewTestLogger(t)
	fmtr, err := broute.NewErrorFormatter("")
	require.NoError(t, err)

	r, err := broute.NewRouter(routes, append([]broute.Option{
		broute.WithLogger(logs),
		broute.WithErrorFormatter(fmtr),
	}, opts...)...)
	require.NoError(t, err)

	return r, logs
}

func event(method, path string) *broute.Event {
	return &broute.Event{
		HTTPMethod:     method,
		Path:           path,
		RequestContext: broute.RequestContext{RequestID: "req-1"},
	}
}

// unprocessable answers validation errors with a 422 listing the failed fields.
func unprocessable(_ context.Context, rc *broute.RoutingContext, err error) (*broute.Response, error) {
	verr, ok := broute.AsError(err)
	if !ok || verr.Kind() != broute.KindValidation {
		return nil, nil
	}

	return rc.JSON(map[string]any{"fields": verr.Fields()}, broute.WithStatus(422))
}

func TestScenarios(t *testing.T) {
	r, _ := newRouter(t, apiRoutes())
	ur, _ := newRouter(t, []broute.Node{
		broute.MustNamespace("", apiRoutes(), broute.WithExceptionHandler(unprocessable)),
	})

	t.Run("followers", func(t *testing.T) {
		resp, err := r.Resolve(t.Context(), event("GET", "/api/33/followers"))
		require.NoError(t, err)
		assert.Equal(t, 200, resp.StatusCode)
		assert.JSONEq(t, `{"data":{}}`, resp.Body)
		assert.Equal(t, "application/json; charset=utf-8", resp.Headers["Content-Type"])
	})

	t.Run("followings strips unknown body fields", func(t *testing.T) {
		ev := event("POST", "/api/33/followings")
		ev.QueryStringParameters = map[string]string{"testId": "12345"}
		ev.Body = `{"update":{"fieldA":12345,"fieldB":54321}}`

		resp, err := r.Resolve(t.Context(), ev)
		require.NoError(t, err)
		assert.Equal(t, 200, resp.StatusCode)
		assert.Equal(t, `{"testId":12345,"userId":33,"update":{"fieldA":12345}}`, resp.Body)
	})

	t.Run("not found", func(t *testing.T) {
		for _, ev := range []*broute.Event{
			event("GET", "/api/33/unknown"),
			event("DELETE", "/api/33/followers"),
		} {
			resp, err := r.Resolve(t.Context(), ev)
			require.NoError(t, err)
			assert.Equal(t, 404, resp.StatusCode)
			assert.JSONEq(t, `{"error":"Not Found"}`, resp.Body)
			assert.Equal(t, "application/json", resp.Headers["Content-Type"])
		}
	})

	t.Run("idempotent", func(t *testing.T) {
		ev := event("POST", "/api/33/followings")
		ev.QueryStringParameters = map[string]string{"testId": "1"}
		ev.Body = `{"update":{"fieldA":2}}`

		resp1, err := r.Resolve(t.Context(), ev)
		require.NoError(t, err)
		resp2, err := r.Resolve(t.Context(), ev)
		require.NoError(t, err)
		assert.Equal(t, resp1, resp2)
	})

	t.Run("validation failure", func(t *testing.T) {
		ev := event("POST", "/api/abc/followings")
		resp, err := r.Resolve(t.Context(), ev)
		require.NoError(t, err)
		assert.Equal(t, 500, resp.StatusCode)
		assert.JSONEq(t, `{"error":{
			"id":"req-1",
			"code":"ValidationError",
			"message":"\"userId\" must be an integer"
		}}`, resp.Body)
	})

	t.Run("collects all field errors of a source", func(t *testing.T) {
		ev := event("POST", "/api/33/followings")
		ev.Body = `{"update":{}}`

		resp, err := ur.Resolve(t.Context(), ev)
		require.NoError(t, err)
		assert.Equal(t, 422, resp.StatusCode)
		assert.Contains(t, resp.Body, `{"field":"testId","message":"is required"}`)

		ev.QueryStringParameters = map[string]string{"testId": "1"}
		resp, err = ur.Resolve(t.Context(), ev)
		require.NoError(t, err)
		assert.Contains(t, resp.Body, `{"field":"update.fieldA","message":"is required"}`)
	})

	t.Run("invalid json body", func(t *testing.T) {
		ev := event("POST", "/api/33/followings")
		ev.QueryStringParameters = map[string]string{"testId": "1"}
		ev.Body = `{"update":`

		resp, err := r.Resolve(t.Context(), ev)
		require.NoError(t, err)
		assert.Equal(t, 500, resp.StatusCode)
		assert.Contains(t, resp.Body, `"code":"ValidationError"`)

		resp, err = ur.Resolve(t.Context(), ev)
		require.NoError(t, err)
		assert.Equal(t, 422, resp.StatusCode)
		assert.Contains(t, resp.Body, `{"field":"body","message":"must be valid JSON"}`)
	})

	t.Run("json numbers keep their type", func(t *testing.T) {
		er, _ := newRouter(t, []broute.Node{
			broute.POST("/echo", func(_ context.Context, rc *broute.RoutingContext) (*broute.Response, error) {
				return rc.JSON(rc.Params())
			}, broute.WithParams(broute.Params{
				"n":   broute.Body(schema.Any()),
				"arr": broute.Body(schema.Array(schema.Any())),
				"s":   broute.Body(schema.String().Optional()),
			})),
		})

		ev := event("POST", "/echo")
		ev.Body = `{"n":42,"arr":[1,2.5]}`
		resp, err := er.Resolve(t.Context(), ev)
		require.NoError(t, err)
		assert.Equal(t, 200, resp.StatusCode)
		assert.JSONEq(t, `{"n":42,"arr":[1,2.5]}`, resp.Body)

		ev.Body = `{"n":1,"arr":[],"s":12345}`
		resp, err = er.Resolve(t.Context(), ev)
		require.NoError(t, err)
		assert.Equal(t, 500, resp.StatusCode)
		assert.Contains(t, resp.Body, `"message":"\"s\" must be a string"`)
	})

	t.Run("lambda handler", func(t *testing.T) {
		resp, err := r.Handler()(t.Context(), *event("GET", "/api/1/followers"))
		require.NoError(t, err)
		assert.Equal(t, 200, resp.StatusCode)
	})
}

func TestRouterConfiguration(t *testing.T) {
	ok := func(context.Context, *broute.RoutingContext) (*broute.Response, error) { return nil, nil }

	t.Run("namespace without children", func(t *testing.T) {
		_, err := broute.NewNamespace("/api", nil)
		require.Error(t, err)
		assert.Equal(t, broute.KindConfiguration, broute.KindOf(err))

		assert.Panics(t, func() { broute.MustNamespace("/api", []broute.Node{}) })
	})

	t.Run("empty tree", func(t *testing.T) {
		_, err := broute.NewRouter(nil)
		assert.Equal(t, broute.KindConfiguration, broute.KindOf(err))
	})

	t.Run("duplicate operation id", func(t *testing.T) {
		_, err := broute.NewRouter([]broute.Node{
			broute.GET("/a", ok, broute.WithOperationID("getThing")),
			broute.GET("/b", ok, broute.WithOperationID("getThing")),
			broute.GET("/c", ok),
			broute.GET("/d", ok),
		})
		require.Error(t, err)
		assert.Equal(t, broute.KindConfiguration, broute.KindOf(err))
		assert.Contains(t, err.Error(), `"getThing"`)
	})

	t.Run("duplicate middleware kind", func(t *testing.T) {
		_, err := broute.NewRouter([]broute.Node{broute.GET("/a", ok)}, broute.WithMiddleware(
			broute.MiddlewareFuncs{Kind: "auth"},
			broute.MiddlewareFuncs{Kind: "auth"},
		))
		require.Error(t, err)
		assert.Contains(t, err.Error(), `"auth"`)
	})

	t.Run("route without handler", func(t *testing.T) {
		_, err := broute.NewRouter([]broute.Node{broute.GET("/a", nil)})
		assert.Equal(t, broute.KindConfiguration, broute.KindOf(err))
	})

	t.Run("route used twice", func(t *testing.T) {
		rt := broute.GET("/a", ok)
		_, err := broute.NewRouter([]broute.Node{rt, broute.MustNamespace("/x", []broute.Node{rt})})
		assert.ErrorContains(t, err, "more than once")
	})

	t.Run("invalid path", func(t *testing.T) {
		_, err := broute.NewRouter([]broute.Node{broute.GET("/a/{id", ok)})
		assert.ErrorContains(t, err, "invalid path")
	})
}

func TestLookups(t *testing.T) {
	auth := broute.MiddlewareFuncs{Kind: "auth"}
	r, _ := newRouter(t, apiRoutes(), broute.WithMiddleware(auth))

	rt, ok := r.FindRoute("updateFollowings")
	require.True(t, ok)
	assert.Equal(t, "POST", rt.Method())

	_, ok = r.FindRoute("bogus")
	assert.False(t, ok)

	p, err := r.Reverse("listFollowers", "33")
	require.NoError(t, err)
	assert.Equal(t, "/api/33/followers", p)

	mw, ok := r.FindMiddleware("auth")
	require.True(t, ok)
	assert.Equal(t, auth, mw)

	typed, ok := broute.FindMiddleware[broute.MiddlewareFuncs](r)
	require.True(t, ok)
	assert.Equal(t, broute.MiddlewareKind("auth"), typed.MiddlewareKind())

	chains := r.Chains()
	require.Len(t, chains, 2)
	assert.Equal(t, "/api/:userId/followers", chains[0].Path())
	assert.Empty(t, chains[0].Namespaces[0].Path())
}

func TestFirstMatchWins(t *testing.T) {
	hdl := func(name string) broute.HandlerFunc {
		return func(_ context.Context, rc *broute.RoutingContext) (*broute.Response, error) {
			return rc.JSON(name)
		}
	}

	r, _ := newRouter(t, []broute.Node{
		broute.GET("/users/me", hdl("me")),
		broute.GET("/users/:id", hdl("id")),
	})

	resp, err := r.Resolve(t.Context(), event("get", "/users/me"))
	require.NoError(t, err)
	assert.JSONEq(t, `"me"`, resp.Body)

	resp, err = r.Resolve(t.Context(), event("GET", "/users/12/"))
	require.NoError(t, err)
	assert.JSONEq(t, `"id"`, resp.Body)
}

func TestCascadingParams(t *testing.T) {
	var seenInBefore, seenInHandler any

	r, _ := newRouter(t, []broute.Node{
		broute.MustNamespace("/api/:userId", []broute.Node{
			broute.MustNamespace("/inner", []broute.Node{
				broute.GET("/leaf", func(_ context.Context, rc *broute.RoutingContext) (*broute.Response, error) {
					seenInHandler, _ = rc.Param("userId")
					return rc.JSON(rc.Params())
				}, broute.WithParams(broute.Params{"sort": broute.Query(schema.String().Default("asc"))})),
			}, broute.WithBefore(func(_ context.Context, rc *broute.RoutingContext) error {
				seenInBefore, _ = rc.Param("userId")
				return nil
			})),
		}, broute.WithPathParams(map[string]*schema.Schema{"userId": schema.Int()})),
	})

	resp, err := r.Resolve(t.Context(), event("GET", "/api/33/inner/leaf"))
	require.NoError(t, err)
	assert.Equal(t, int64(33), seenInBefore)
	assert.Equal(t, int64(33), seenInHandler)
	assert.JSONEq(t, `{"userId":33,"sort":"asc"}`, resp.Body)
}

func TestParamPrecedence(t *testing.T) {
	r, _ := newRouter(t, []broute.Node{
		broute.POST("/items/:id", func(_ context.Context, rc *broute.RoutingContext) (*broute.Response, error) {
			id, _ := broute.ParamAs[string](rc, "id")
			return rc.JSON(id)
		}, broute.WithParams(broute.Params{"id": broute.Path(schema.String())})),
		broute.POST("/other/:id", func(_ context.Context, rc *broute.RoutingContext) (*broute.Response, error) {
			id, _ := broute.ParamAs[string](rc, "id")
			return rc.JSON(id)
		}),
	})

	resp, err := r.Resolve(t.Context(), event("POST", "/items/abc"))
	require.NoError(t, err)
	assert.JSONEq(t, `"abc"`, resp.Body)

	// undeclared path values are not exposed as params
	resp, err = r.Resolve(t.Context(), event("POST", "/other/abc"))
	require.NoError(t, err)
	assert.JSONEq(t, `""`, resp.Body)
}

func TestParamPrecedenceAcrossSources(t *testing.T) {
	r, _ := newRouter(t, []broute.Node{
		broute.MustNamespace("/items/:id", []broute.Node{
			broute.POST("", func(_ context.Context, rc *broute.RoutingContext) (*broute.Response, error) {
				return rc.JSON(rc.Params())
			}, broute.WithParams(broute.Params{
				"id":   broute.Body(schema.String()),
				"mode": broute.Query(schema.String()),
			})),
		}, broute.WithPathParams(map[string]*schema.Schema{"id": schema.String()})),
	})

	ev := event("POST", "/items/from-path")
	ev.QueryStringParameters = map[string]string{"mode": "q"}
	ev.Body = `{"id":"from-body"}`

	resp, err := r.Resolve(t.Context(), ev)
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"from-body","mode":"q"}`, resp.Body)
}

func TestTimeout(t *testing.T) {
	block := make(chan struct{})

	r, logs := newRouter(t, []broute.Node{
		broute.MustNamespace("/slow", []broute.Node{
			broute.GET("", func(context.Context, *broute.RoutingContext) (*broute.Response, error) {
				<-block
				return nil, errors.New("too late")
			}, broute.WithOperationID("slowOp")),
		}, broute.WithExceptionHandler(func(
			_ context.Context, rc *broute.RoutingContext, err error,
		) (*broute.Response, error) {
			if berr, ok := broute.AsError(err); ok && berr.Kind() == broute.KindTimeout {
				return rc.JSON(map[string]string{"op": berr.Route().OperationID()}, broute.WithStatus(504))
			}

			return nil, nil
		})),
	}, broute.WithTimeout(20*time.Millisecond))

	resp, err := r.Resolve(t.Context(), event("GET", "/slow"))
	require.NoError(t, err)
	assert.Equal(t, 504, resp.StatusCode)
	assert.JSONEq(t, `{"op":"slowOp"}`, resp.Body)

	close(block)
	assert.Eventually(t, func() bool {
		return atomic.LoadInt64(&logs.NumLogAbandonedHandler) == 1
	}, time.Second, time.Millisecond)
}

func TestTimeoutFromContextDeadline(t *testing.T) {
	block := make(chan struct{})

	r, logs := newRouter(t, []broute.Node{
		broute.GET("/slow", func(context.Context, *broute.RoutingContext) (*broute.Response, error) {
			<-block
			return nil, nil
		}),
	}, broute.WithDeadlineBuffer(10*time.Millisecond))

	ctx, cancel := context.WithTimeout(t.Context(), 50*time.Millisecond)
	defer cancel()

	resp, err := r.Resolve(ctx, event("GET", "/slow"))
	require.NoError(t, err)
	assert.Equal(t, 500, resp.StatusCode)
	assert.Contains(t, resp.Body, `"code":"TimeoutError"`)

	close(block)
	assert.Eventually(t, func() bool {
		return atomic.LoadInt64(&logs.NumLogAbandonedHandler) == 1
	}, time.Second, time.Millisecond)
}

type namedErr struct{}

func (namedErr) Error() string { return "database unreachable" }
func (namedErr) Name() string  { return "DatabaseError" }

func TestExceptionResolution(t *testing.T) {
	fail := func(err error) broute.HandlerFunc {
		return func(context.Context, *broute.RoutingContext) (*broute.Response, error) { return nil, err }
	}

	var innerCalls int
	r, logs := newRouter(t, []broute.Node{
		broute.GET("/boom", fail(errors.New("boom"))),
		broute.GET("/named", fail(namedErr{})),
		broute.GET("/panic", func(context.Context, *broute.RoutingContext) (*broute.Response, error) {
			panic("oops")
		}),
		broute.GET("/nothing", fail(nil)),
		broute.GET("/declared", fail(broute.NewError(422, "INVALID_STATE", "not now", map[string]any{"retry": true}))),
		broute.GET("/unrenderable", fail(broute.NewError(400, "X", "x", make(chan int)))),
		broute.MustNamespace("/nested", []broute.Node{
			broute.GET("/convert", fail(errors.New("inner"))),
		}, broute.WithExceptionHandler(func(context.Context, *broute.RoutingContext, error) (*broute.Response, error) {
			innerCalls++
			return nil, broute.NewError(broute.CodeTeapot, "TEAPOT", "converted", nil)
		})),
	})

	for _, tt := range []struct {
		path   string
		status int
		body   string
	}{
		{"/boom", 500, `{"error":{"id":"req-1","code":"Error","message":"boom"}}`},
		{"/named", 500, `{"error":{"id":"req-1","code":"DatabaseError","message":"database unreachable"}}`},
		{"/panic", 500, `{"error":{"id":"req-1","code":"Error","message":"handler panicked: oops"}}`},
		{"/nothing", 500, `{"error":{"id":"req-1","code":"Error","message":"handler of GET /nothing returned no response"}}`},
		{"/declared", 422, `{"error":{"id":"req-1","code":"INVALID_STATE","message":"not now","metadata":{"retry":true}}}`},
		{"/nested/convert", 418, `{"error":{"id":"req-1","code":"TEAPOT","message":"converted"}}`},
	} {
		t.Run(tt.path, func(t *testing.T) {
			resp, err := r.Resolve(t.Context(), event("GET", tt.path))
			require.NoError(t, err)
			assert.Equal(t, tt.status, resp.StatusCode)
			assert.JSONEq(t, tt.body, resp.Body)
		})
	}

	assert.Equal(t, 1, innerCalls)

	t.Run("unresolved", func(t *testing.T) {
		_, err := r.Resolve(t.Context(), event("GET", "/unrenderable"))
		require.Error(t, err)
		assert.Equal(t, int64(1), atomic.LoadInt64(&logs.NumLogUnhandledError))

		_, err = r.Handler()(t.Context(), *event("GET", "/unrenderable"))
		require.Error(t, err)
	})

	t.Run("generated request id", func(t *testing.T) {
		ev := event("GET", "/boom")
		ev.RequestContext.RequestID = ""

		resp, err := r.Resolve(t.Context(), ev)
		require.NoError(t, err)

		var env broute.ErrorEnvelope
		require.NoError(t, json.Unmarshal([]byte(resp.Body), &env))
		assert.Len(t, env.Error.ID, 36)
	})
}

func TestEncryptedDetail(t *testing.T) {
	fmtr, err := broute.NewErrorFormatter("s3cr3t")
	require.NoError(t, err)

	r, err := broute.NewRouter([]broute.Node{
		broute.GET("/boom", func(context.Context, *broute.RoutingContext) (*broute.Response, error) {
			return nil, errors.New("boom")
		}),
	}, broute.WithErrorFormatter(fmtr), broute.WithLogger(broute.NewTestLogger(t)))
	require.NoError(t, err)

	resp, err := r.Resolve(t.Context(), event("GET", "/boom"))
	require.NoError(t, err)

	var env broute.ErrorEnvelope
	require.NoError(t, json.Unmarshal([]byte(resp.Body), &env))

	blob, ok := env.Error.Metadata.(string)
	require.True(t, ok)
	assert.Contains(t, blob, "$")
	assert.NotContains(t, blob, "boom")

	detail, err := fmtr.DecryptDetail(blob)
	require.NoError(t, err)
	assert.Equal(t, "Error", detail.Name)
	assert.Equal(t, "boom", detail.Message)
	assert.NotEmpty(t, detail.Stack)
}
