package observability

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStartSpanBeforeInit(t *testing.T) {
	ctx, span := StartSpan(context.Background(), "bootstrap")
	require.NotNil(t, span)
	assert.NotNil(t, ctx)
	span.End()
}

func TestInitAndShutdown(t *testing.T) {
	err := Init(Config{
		ServiceName:    "configurator-test",
		ServiceVersion: "0.0.0-test",
		Environment:    "test",
		SamplingRate:   0,
	})
	require.NoError(t, err)

	ctx, span := StartSpan(context.Background(), "commit")
	assert.NotNil(t, ctx)
	span.End()

	require.NoError(t, Shutdown(context.Background()))
}

func TestMiddlewarePassesThrough(t *testing.T) {
	handler := Middleware("configurator-test")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/datasources", nil))

	assert.Equal(t, http.StatusNoContent, rec.Code)
}
