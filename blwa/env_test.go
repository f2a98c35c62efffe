package blwa_test

import (
	"os"
	"testing"
	"time"

	"github.com/advdv/broute/blwa"
	"github.com/advdv/broute/blwa/blwatest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateErrorStatusCodes(t *testing.T) {
	for _, tt := range []struct {
		name     string
		expr     string
		required []int
		errs     []string
	}{
		{name: "valid single codes", expr: "500,504", required: []int{500, 504}},
		{name: "valid range covering all required", expr: "500-599", required: []int{500, 504}},
		{name: "valid mixed format", expr: "500,502-505", required: []int{500, 504}},
		{name: "valid with extra codes", expr: "400,500-599", required: []int{500, 504}},
		{name: "spaces around items", expr: " 500 , 502 - 504 ", required: []int{500, 504}},
		{
			name: "missing 500", expr: "502-504", required: []int{500, 504},
			errs: []string{"missing: [500]", `recommended value: "500-599"`},
		},
		{name: "missing 504", expr: "500-503", required: []int{500, 504}, errs: []string{"missing: [504]"}},
		{name: "missing both", expr: "502-503", required: []int{500, 504}, errs: []string{"missing: [500 504]"}},
		{name: "empty string fails parsing", expr: "", required: []int{500}, errs: []string{"failed to parse", "empty item"}},
		{name: "trailing comma fails parsing", expr: "500,", required: []int{500}, errs: []string{"empty item"}},
		{
			name: "invalid format fails parsing", expr: "not-a-number", required: []int{500},
			errs: []string{"failed to parse", "invalid status code"},
		},
		{name: "inverted range fails parsing", expr: "504-500", required: []int{500}, errs: []string{"invalid range"}},
		{name: "no required codes always passes", expr: "500"},
		{name: "custom required codes", expr: "400-499", required: []int{400, 404}},
		{name: "custom required codes missing", expr: "400-403", required: []int{400, 404}, errs: []string{"missing: [404]"}},
		{name: "open-ended range", expr: "500-", required: []int{500, 504, 599}},
		{name: "open-ended range below start", expr: "501-", required: []int{500}, errs: []string{"missing: [500]"}},
		{name: "multiple separate ranges", expr: "500,502-503,504", required: []int{500, 504}},
		{name: "recommended configuration", expr: "500-599", required: blwa.DefaultRequiredErrorStatusCodes},
		{name: "minimal valid configuration", expr: "500,504", required: blwa.DefaultRequiredErrorStatusCodes},
	} {
		t.Run(tt.name, func(t *testing.T) {
			err := blwa.ValidateErrorStatusCodes(tt.expr, tt.required...)
			if len(tt.errs) == 0 {
				require.NoError(t, err)
				return
			}

			require.Error(t, err)
			for _, msg := range tt.errs {
				assert.Contains(t, err.Error(), msg)
			}
		})
	}
}

func TestDefaultRequiredErrorStatusCodes(t *testing.T) {
	assert.Equal(t, []int{500, 504}, blwa.DefaultRequiredErrorStatusCodes)
}

func TestParseEnv(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		blwatest.SetBaseEnv(t, 18100)

		env, err := blwa.ParseEnv[regionTestEnv]()()
		require.NoError(t, err)
		assert.Equal(t, 18100, env.Port)
		assert.Equal(t, "stdout", env.OtelExporter)
		assert.Equal(t, 30*time.Second, env.LambdaTimeout)
		assert.Equal(t, time.Duration(0), env.RouteTimeout)
		assert.Equal(t, blwa.CacheStoreNone, env.CacheStore)
	})

	t.Run("route timeout and cache", func(t *testing.T) {
		blwatest.SetBaseEnv(t, 18100).RouteTimeout("3s").MemoryCache()

		env, err := blwa.ParseEnv[regionTestEnv]()()
		require.NoError(t, err)
		assert.Equal(t, 3*time.Second, env.RouteTimeout)
		assert.Equal(t, blwa.CacheStoreMemory, env.CacheStore)
	})

	t.Run("missing required", func(t *testing.T) {
		blwatest.SetBaseEnv(t, 18100)
		require.NoError(t, os.Unsetenv("BW_LAMBDA_TIMEOUT"))

		_, err := blwa.ParseEnv[regionTestEnv]()()
		require.ErrorContains(t, err, "BW_LAMBDA_TIMEOUT")
	})

	t.Run("uncovered error status codes", func(t *testing.T) {
		blwatest.SetBaseEnv(t, 18100)
		t.Setenv("AWS_LWA_ERROR_STATUS_CODES", "500")

		_, err := blwa.ParseEnv[regionTestEnv]()()
		require.ErrorContains(t, err, "invalid environment")
		require.ErrorContains(t, err, "missing: [504]")
	})

	for _, tt := range []struct {
		store string
		extra map[string]string
		err   string
	}{
		{store: "redis", err: "BW_CACHE_REDIS_URL is required"},
		{store: "redis", extra: map[string]string{"BW_CACHE_REDIS_URL": "redis://localhost:6379/0"}},
		{store: "dynamodb", err: "BW_CACHE_TABLE_NAME is required"},
		{store: "dynamodb", extra: map[string]string{"BW_CACHE_TABLE_NAME": "cache"}},
		{store: "memcached", err: `unsupported BW_CACHE_STORE: "memcached"`},
	} {
		t.Run("cache store "+tt.store, func(t *testing.T) {
			blwatest.SetBaseEnv(t, 18100)
			t.Setenv("BW_CACHE_STORE", tt.store)
			for k, v := range tt.extra {
				t.Setenv(k, v)
			}

			_, err := blwa.ParseEnv[regionTestEnv]()()
			if tt.err == "" {
				require.NoError(t, err)
				return
			}

			require.ErrorContains(t, err, tt.err)
		})
	}
}
