package remote

import (
	"bytes"
	"context"
	"io"
	"net/http"

	"github.com/matchforge/configurator/pkg/engine"
	"github.com/matchforge/configurator/pkg/errors"
	"github.com/matchforge/configurator/pkg/json"
)

// remoteEngine is one engine handle speaking a fixed API version.
type remoteEngine struct {
	name       string
	baseURL    string
	version    int
	httpClient *http.Client
}

type initializeRequest struct {
	Name           string `json:"name"`
	Settings       string `json:"settings"`
	ConfigID       *int64 `json:"configId,omitempty"`
	VerboseLogging bool   `json:"verboseLogging"`
}

type reinitializeRequest struct {
	ConfigID int64 `json:"configId"`
}

type searchRequest struct {
	Attributes string `json:"attributes"`
	// Exactly one of these is set, matching the API version.
	Flags       *engine.Flags `json:"flags,omitempty"`
	ExportFlags *engine.Flags `json:"exportFlags,omitempty"`
}

func (e *remoteEngine) Initialize(ctx context.Context, name, settingsJSON string, verbose bool) error {
	body := initializeRequest{
		Name:           name,
		Settings:       settingsJSON,
		VerboseLogging: verbose,
	}
	_, err := e.post(ctx, "initialize", body)
	return err
}

func (e *remoteEngine) InitializeWithConfigID(ctx context.Context, name, settingsJSON string, configID int64, verbose bool) error {
	body := initializeRequest{
		Name:           name,
		Settings:       settingsJSON,
		ConfigID:       &configID,
		VerboseLogging: verbose,
	}
	_, err := e.post(ctx, "initialize-with-config-id", body)
	return err
}

func (e *remoteEngine) Reinitialize(ctx context.Context, configID int64) error {
	_, err := e.post(ctx, "reinitialize", reinitializeRequest{ConfigID: configID})
	return err
}

func (e *remoteEngine) Search(ctx context.Context, attributesJSON string, flags engine.Flags) (string, error) {
	body := searchRequest{Attributes: attributesJSON}
	operation := "search"
	if e.version == APIVersion2 {
		operation = "search-by-attributes"
		body.ExportFlags = &flags
	} else {
		body.Flags = &flags
	}

	result, err := e.post(ctx, operation, body)
	if err != nil {
		return "", err
	}
	return string(result), nil
}

func (e *remoteEngine) Destroy(ctx context.Context) error {
	_, err := e.post(ctx, "destroy", struct{}{})
	return err
}

// post sends one engine operation and returns the raw response body. A 2xx
// status carries the operation result; anything else carries an
// {"error": "..."} envelope that is surfaced as an engine error.
func (e *remoteEngine) post(ctx context.Context, operation string, body interface{}) ([]byte, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeInternal, "cannot encode engine request").
			WithDetail("operation", operation)
	}

	url := e.baseURL + pathPrefix(e.version) + "/" + operation
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConnection, "cannot build engine request").
			WithDetail("operation", operation)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConnection, "engine request failed").
			WithDetail("operation", operation).
			WithDetail("engine", e.name)
	}
	defer resp.Body.Close()

	responseBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConnection, "cannot read engine response").
			WithDetail("operation", operation)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		message := engineErrorMessage(responseBody)
		return nil, errors.Newf(errors.ErrorTypeData, "engine %s failed: %s", operation, message).
			WithDetail("status", resp.StatusCode).
			WithDetail("engine", e.name)
	}

	return responseBody, nil
}

// engineErrorMessage extracts the error text from a failure envelope,
// falling back to the raw body.
func engineErrorMessage(body []byte) string {
	var envelope struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.Error != "" {
		return envelope.Error
	}
	if len(body) == 0 {
		return "no error detail"
	}
	return string(body)
}
