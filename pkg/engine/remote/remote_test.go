package remote

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matchforge/configurator/pkg/engine"
	"github.com/matchforge/configurator/pkg/errors"
	"github.com/matchforge/configurator/pkg/json"
)

func TestNewFactoryExplicitVersion(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
	}))
	defer server.Close()

	f, err := NewFactory(server.URL, APIVersion3)
	require.NoError(t, err)
	assert.Equal(t, 3, f.Version())
}

func TestNewFactoryProbesVersion(t *testing.T) {
	tests := []struct {
		name string
		body string
		want int
	}{
		{name: "semver envelope", body: `{"version":"3.4.1"}`, want: 3},
		{name: "major only envelope", body: `{"version":"2"}`, want: 2},
		{name: "bare version", body: "3.0.0", want: 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/version", r.URL.Path)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			f, err := NewFactory(server.URL, 0)
			require.NoError(t, err)
			assert.Equal(t, tt.want, f.Version())
		})
	}
}

func TestNewFactoryRejectsUnsupportedVersion(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"version":"1.9.9"}`))
	}))
	defer server.Close()

	_, err := NewFactory(server.URL, 0)
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeCapability))

	_, err = NewFactory(server.URL, 4)
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeCapability))
}

func TestNewFactoryRequiresURL(t *testing.T) {
	_, err := NewFactory("", APIVersion3)
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeConfig))
}

// capture decodes the single request the handler saw.
type capture struct {
	path string
	body map[string]interface{}
}

func newCaptureServer(t *testing.T, status int, response string) (*httptest.Server, *capture) {
	t.Helper()
	c := &capture{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c.path = r.URL.Path
		raw, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		if len(raw) > 0 {
			require.NoError(t, json.Unmarshal(raw, &c.body))
		}
		w.WriteHeader(status)
		_, _ = w.Write([]byte(response))
	}))
	return server, c
}

func TestSearchV3Wire(t *testing.T) {
	server, c := newCaptureServer(t, http.StatusOK, `{"RESOLVED_ENTITIES":[]}`)
	defer server.Close()

	f, err := NewFactory(server.URL, APIVersion3)
	require.NoError(t, err)
	eng, err := f.NewEngine("test-engine")
	require.NoError(t, err)

	result, err := eng.Search(context.Background(), "{}", engine.ExportDefaultFlags)
	require.NoError(t, err)
	assert.Equal(t, `{"RESOLVED_ENTITIES":[]}`, result)

	assert.Equal(t, "/v3/engine/search", c.path)
	assert.Equal(t, "{}", c.body["attributes"])
	assert.Contains(t, c.body, "flags")
	assert.NotContains(t, c.body, "exportFlags")
	assert.Equal(t, float64(engine.ExportDefaultFlags), c.body["flags"])
}

func TestSearchV2Wire(t *testing.T) {
	server, c := newCaptureServer(t, http.StatusOK, `{"RESOLVED_ENTITIES":[]}`)
	defer server.Close()

	f, err := NewFactory(server.URL, APIVersion2)
	require.NoError(t, err)
	eng, err := f.NewEngine("test-engine")
	require.NoError(t, err)

	_, err = eng.Search(context.Background(), "{}", engine.ExportDefaultFlags)
	require.NoError(t, err)

	assert.Equal(t, "/v2/engine/search-by-attributes", c.path)
	assert.Contains(t, c.body, "exportFlags")
	assert.NotContains(t, c.body, "flags")
}

func TestInitializeWithConfigIDWire(t *testing.T) {
	server, c := newCaptureServer(t, http.StatusOK, `{}`)
	defer server.Close()

	f, err := NewFactory(server.URL, APIVersion3)
	require.NoError(t, err)
	eng, err := f.NewEngine("validator")
	require.NoError(t, err)

	err = eng.InitializeWithConfigID(context.Background(), "validator", `{"PIPELINE":{}}`, 42, true)
	require.NoError(t, err)

	assert.Equal(t, "/v3/engine/initialize-with-config-id", c.path)
	assert.Equal(t, "validator", c.body["name"])
	assert.Equal(t, float64(42), c.body["configId"])
	assert.Equal(t, true, c.body["verboseLogging"])
}

func TestInitializeOmitsConfigID(t *testing.T) {
	server, c := newCaptureServer(t, http.StatusOK, `{}`)
	defer server.Close()

	f, err := NewFactory(server.URL, APIVersion3)
	require.NoError(t, err)
	eng, err := f.NewEngine("live")
	require.NoError(t, err)

	err = eng.Initialize(context.Background(), "live", `{"PIPELINE":{}}`, false)
	require.NoError(t, err)

	assert.Equal(t, "/v3/engine/initialize", c.path)
	assert.NotContains(t, c.body, "configId")
}

func TestReinitializeWire(t *testing.T) {
	server, c := newCaptureServer(t, http.StatusOK, `{}`)
	defer server.Close()

	f, err := NewFactory(server.URL, APIVersion3)
	require.NoError(t, err)
	eng, err := f.NewEngine("live")
	require.NoError(t, err)

	require.NoError(t, eng.Reinitialize(context.Background(), 17))
	assert.Equal(t, "/v3/engine/reinitialize", c.path)
	assert.Equal(t, float64(17), c.body["configId"])
}

func TestEngineErrorEnvelope(t *testing.T) {
	server, _ := newCaptureServer(t, http.StatusInternalServerError, `{"error":"configuration 99 not found"}`)
	defer server.Close()

	f, err := NewFactory(server.URL, APIVersion3)
	require.NoError(t, err)
	eng, err := f.NewEngine("validator")
	require.NoError(t, err)

	err = eng.InitializeWithConfigID(context.Background(), "validator", "{}", 99, false)
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeData))
	assert.Contains(t, err.Error(), "configuration 99 not found")
}

func TestEngineConnectionError(t *testing.T) {
	server, _ := newCaptureServer(t, http.StatusOK, `{}`)
	f, err := NewFactory(server.URL, APIVersion3)
	require.NoError(t, err)
	server.Close()

	eng, err := f.NewEngine("live")
	require.NoError(t, err)

	err = eng.Destroy(context.Background())
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeConnection))
}
