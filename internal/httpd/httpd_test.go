package httpd

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matchforge/configurator/internal/bootstrap"
	"github.com/matchforge/configurator/internal/client"
	"github.com/matchforge/configurator/pkg/engine/enginetest"
	"github.com/matchforge/configurator/pkg/errors"
	"github.com/matchforge/configurator/pkg/json"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	store := enginetest.NewStore()
	require.NoError(t, bootstrap.New(store).Run(context.Background()))

	c, err := client.New(client.Options{
		Store:        store,
		Factory:      &enginetest.Factory{},
		Live:         &enginetest.Engine{Name: "live"},
		SettingsJSON: `{"PIPELINE":{},"SQL":{}}`,
	})
	require.NoError(t, err)

	srv := httptest.NewServer(newRouter(NewHandler(c)))
	t.Cleanup(srv.Close)
	return srv
}

func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(body)
}

func TestEndToEndAddAndList(t *testing.T) {
	srv := newTestServer(t)

	resp, err := http.Post(srv.URL+"/datasources", "application/json",
		strings.NewReader(`["CUSTOMER","WATCHLIST"]`))
	require.NoError(t, err)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.JSONEq(t, `{"existingDatasources":[],"createdDatasources":["CUSTOMER","WATCHLIST"]}`,
		readBody(t, resp))

	resp, err = http.Get(srv.URL + "/datasources")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
	assert.JSONEq(t, `["CUSTOMER","WATCHLIST"]`, readBody(t, resp))

	resp, err = http.Post(srv.URL+"/datasources", "application/json",
		strings.NewReader(`["WATCHLIST","AML"]`))
	require.NoError(t, err)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.JSONEq(t, `{"existingDatasources":["WATCHLIST"],"createdDatasources":["AML"]}`,
		readBody(t, resp))

	// Codes come back sorted regardless of registration order.
	resp, err = http.Get(srv.URL + "/datasources")
	require.NoError(t, err)
	assert.JSONEq(t, `["AML","CUSTOMER","WATCHLIST"]`, readBody(t, resp))
}

func TestPostMalformedBody(t *testing.T) {
	srv := newTestServer(t)

	resp, err := http.Post(srv.URL+"/datasources", "application/json",
		strings.NewReader(`{"not":"an array"`))
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	var envelope struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal([]byte(readBody(t, resp)), &envelope))
	assert.Equal(t, "invalid_request", envelope.Error.Code)
	assert.NotEmpty(t, envelope.Error.Message)
}

func TestPostWrongContentType(t *testing.T) {
	srv := newTestServer(t)

	resp, err := http.Post(srv.URL+"/datasources", "text/plain",
		strings.NewReader(`["CUSTOMER"]`))
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, readBody(t, resp), "invalid_request")
}

func TestPostEmptyCodeRejected(t *testing.T) {
	srv := newTestServer(t)

	resp, err := http.Post(srv.URL+"/datasources", "application/json",
		strings.NewReader(`[""]`))
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, readBody(t, resp), "validation_failed")
}

func TestHealth(t *testing.T) {
	srv := newTestServer(t)

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var health struct {
		Status         string  `json:"status"`
		ActiveConfigID int64   `json:"activeConfigID"`
		Uptime         float64 `json:"uptime"`
		Process        struct {
			Goroutines int `json:"goroutines"`
		} `json:"process"`
	}
	require.NoError(t, json.Unmarshal([]byte(readBody(t, resp)), &health))
	assert.Equal(t, "UP", health.Status)
	assert.Equal(t, int64(1), health.ActiveConfigID)
	assert.GreaterOrEqual(t, health.Uptime, 0.0)
	assert.Greater(t, health.Process.Goroutines, 0)
}

func TestMetricsEndpoint(t *testing.T) {
	srv := newTestServer(t)

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, readBody(t, resp), "matchforge_snapshots_created_total")
}

// downService simulates a lost configuration store.
type downService struct{}

func (downService) ListDataSources(context.Context) ([]string, error) {
	return nil, errors.New(errors.ErrorTypeConnection, "store gone")
}

func (downService) AddDataSources(context.Context, []string) (client.AddResult, error) {
	return client.AddResult{}, errors.New(errors.ErrorTypeConnection, "store gone")
}

func (downService) ActiveConfigID(context.Context) (int64, bool, error) {
	return 0, false, errors.New(errors.ErrorTypeConnection, "store gone")
}

func TestHealthWhenStoreDown(t *testing.T) {
	srv := httptest.NewServer(newRouter(NewHandler(downService{})))
	t.Cleanup(srv.Close)

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Contains(t, readBody(t, resp), "unavailable")
}

func TestStoreFailureNeverLeaksInternals(t *testing.T) {
	srv := httptest.NewServer(newRouter(NewHandler(downService{})))
	t.Cleanup(srv.Close)

	resp, err := http.Get(srv.URL + "/datasources")
	require.NoError(t, err)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	body := readBody(t, resp)
	assert.Contains(t, body, "internal server error")
	assert.NotContains(t, body, "store gone")
}

// panicService triggers the recovery middleware.
type panicService struct{ downService }

func (panicService) ListDataSources(context.Context) ([]string, error) {
	panic("boom")
}

func TestRecoveryMiddleware(t *testing.T) {
	srv := httptest.NewServer(newRouter(NewHandler(panicService{})))
	t.Cleanup(srv.Close)

	resp, err := http.Get(srv.URL + "/datasources")
	require.NoError(t, err)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Contains(t, readBody(t, resp), "internal_error")
}
