package httpd

import (
	stderrors "errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/matchforge/configurator/pkg/errors"
	"github.com/matchforge/configurator/pkg/json"
	"github.com/matchforge/configurator/pkg/logger"
)

// Error codes carried in the response envelope.
const (
	errCodeInvalidRequest = "invalid_request"
	errCodeValidation     = "validation_failed"
	errCodeNotFound       = "not_found"
	errCodeInternal       = "internal_error"
	errCodeUnavailable    = "unavailable"
)

// apiError is the body of every error response.
type apiError struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// errorResponse wraps an apiError so every error body has the same shape:
// {"error":{"code","message","details?"}}.
type errorResponse struct {
	Error apiError `json:"error"`
}

// writeJSON encodes v as the response body with the given status.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Get().Error("cannot encode http response", zap.Error(err))
	}
}

// writeError writes the error envelope with the given status.
func writeError(w http.ResponseWriter, status int, e apiError) {
	writeJSON(w, status, errorResponse{Error: e})
}

// writeInvalidRequest writes a 400 for malformed request bodies.
func writeInvalidRequest(w http.ResponseWriter, message string) {
	writeError(w, http.StatusBadRequest, apiError{Code: errCodeInvalidRequest, Message: message})
}

// writeDomainError translates a structured error into the envelope.
// Validation and not-found errors keep their message and details; anything
// else is logged and surfaces as a generic 500 so internals never leak.
func writeDomainError(w http.ResponseWriter, err error) {
	var structured *errors.Error
	if stderrors.As(err, &structured) {
		switch structured.Type {
		case errors.ErrorTypeValidation:
			writeError(w, http.StatusBadRequest, apiError{
				Code:    errCodeValidation,
				Message: structured.Message,
				Details: structured.Details,
			})
			return
		case errors.ErrorTypeNotFound:
			writeError(w, http.StatusNotFound, apiError{
				Code:    errCodeNotFound,
				Message: structured.Message,
				Details: structured.Details,
			})
			return
		}
	}

	logger.Get().Error("request failed", zap.Error(err))
	writeError(w, http.StatusInternalServerError, apiError{
		Code:    errCodeInternal,
		Message: "internal server error",
	})
}
