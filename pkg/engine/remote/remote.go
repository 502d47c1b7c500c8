// Package remote implements the engine capability interfaces over the
// MatchForge engine service's JSON HTTP API.
//
// The engine service kept its v2 wire protocol alive after the v3 split, and
// deployments pin either one. The two differ only in path prefix and in the
// search operation: v3 posts to /v3/engine/search with a "flags" field, v2
// posts to /v2/engine/search-by-attributes with the legacy "exportFlags"
// field. The Factory picks the protocol once at startup, either from explicit
// configuration or by probing the service's /version endpoint, so no per-call
// version branching happens afterwards.
package remote

import (
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/matchforge/configurator/pkg/engine"
	"github.com/matchforge/configurator/pkg/errors"
	"github.com/matchforge/configurator/pkg/json"
	"github.com/matchforge/configurator/pkg/logger"
)

// Supported engine API major versions.
const (
	APIVersion2 = 2
	APIVersion3 = 3
)

// Factory creates remote engine handles bound to one API version.
type Factory struct {
	baseURL    string
	version    int
	httpClient *http.Client
}

// NewFactory returns a Factory for the engine service at baseURL. When
// apiVersion is 0 the service's /version endpoint is probed and the major
// version parsed from its response; otherwise apiVersion is used as given.
// Versions other than 2 and 3 are rejected.
func NewFactory(baseURL string, apiVersion int) (*Factory, error) {
	baseURL = strings.TrimRight(baseURL, "/")
	if baseURL == "" {
		return nil, errors.New(errors.ErrorTypeConfig, "engine service URL must not be empty")
	}

	f := &Factory{
		baseURL:    baseURL,
		version:    apiVersion,
		httpClient: newHTTPClient(),
	}

	if f.version == 0 {
		version, err := f.probeVersion()
		if err != nil {
			return nil, err
		}
		f.version = version
		logger.Info("engine API version probed", zap.Int("version", version))
	}

	switch f.version {
	case APIVersion2, APIVersion3:
	default:
		return nil, errors.Newf(errors.ErrorTypeCapability,
			"unsupported engine API version %d", f.version)
	}

	return f, nil
}

// Version returns the API major version the factory is bound to.
func (f *Factory) Version() int {
	return f.version
}

// NewEngine returns a fresh engine handle. Handles share the factory's HTTP
// client but carry no other state, making them cheap enough for the commit
// protocol's throwaway validation instances.
func (f *Factory) NewEngine(name string) (engine.Engine, error) {
	if name == "" {
		return nil, errors.New(errors.ErrorTypeValidation, "engine name must not be empty")
	}
	return &remoteEngine{
		name:       name,
		baseURL:    f.baseURL,
		version:    f.version,
		httpClient: f.httpClient,
	}, nil
}

// probeVersion asks the engine service for its version and extracts the
// major number. Accepts "3", "3.4.1", or a {"version": "..."} body.
func (f *Factory) probeVersion() (int, error) {
	resp, err := f.httpClient.Get(f.baseURL + "/version")
	if err != nil {
		return 0, errors.Wrap(err, errors.ErrorTypeConnection, "cannot probe engine service version")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, errors.Wrap(err, errors.ErrorTypeConnection, "cannot read engine service version response")
	}
	if resp.StatusCode != http.StatusOK {
		return 0, errors.Newf(errors.ErrorTypeConnection,
			"engine service version probe returned status %d", resp.StatusCode)
	}

	var envelope struct {
		Version string `json:"version"`
	}
	version := strings.TrimSpace(string(body))
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.Version != "" {
		version = envelope.Version
	}

	major, _, _ := strings.Cut(version, ".")
	parsed, err := strconv.Atoi(strings.TrimSpace(major))
	if err != nil {
		return 0, errors.Newf(errors.ErrorTypeData,
			"cannot parse engine service version %q", version)
	}
	return parsed, nil
}

// newHTTPClient builds the shared HTTP client. Engine initialization loads
// the full configuration server-side, so the request timeout is generous.
func newHTTPClient() *http.Client {
	transport := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:          10,
		MaxIdleConnsPerHost:   10,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 60 * time.Second,
	}
	return &http.Client{
		Transport: transport,
		Timeout:   90 * time.Second,
	}
}

// pathPrefix returns "/v2/engine" or "/v3/engine".
func pathPrefix(version int) string {
	return fmt.Sprintf("/v%d/engine", version)
}
