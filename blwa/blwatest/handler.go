package blwatest

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/advdv/broute"
	"github.com/advdv/broute/blwa"
	"go.uber.org/zap/zaptest"
)

// Serve resolves req with router the way the blwa server does, without starting the app, and returns the recorded
// response. Handlers may use [blwa.Log], which writes to the test log.
func Serve(t testing.TB, router *broute.Router, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()

	rec := httptest.NewRecorder()
	blwa.NewHandler(router, zaptest.NewLogger(t), blwa.DefaultDeadlineBuffer).ServeHTTP(rec, req)

	return rec
}
