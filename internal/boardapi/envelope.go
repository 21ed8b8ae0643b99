// Package boardapi is the HTTP/JSON boundary: chi-routed handlers over
// the board engine, claim manager, mission lifecycle, event broker, hook
// ingestor, and activity log, wrapping every response in the
// {success, data} / {success: false, error: {code, message, details}}
// envelope and mapping error codes to status codes per the fixed table.
//
// Grounded on the teacher's jsonResponse/jsonError helpers
// (internal/web/api.go) and request/response conventions, generalized to
// chi routing, go-playground/validator struct-tag validation, and the
// richer envelope this system's clients depend on.
package boardapi

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/ateam/orchestrator/internal/apierr"
)

type envelope struct {
	Success bool  `json:"success"`
	Data    any   `json:"data,omitempty"`
	Error   *errBody `json:"error,omitempty"`
}

type errBody struct {
	Code    apierr.Code    `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, logger *slog.Logger, status int, v envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("failed to encode JSON response", "error", err)
	}
}

func writeData(w http.ResponseWriter, logger *slog.Logger, status int, data any) {
	writeJSON(w, logger, status, envelope{Success: true, Data: data})
}

// writeError maps any error to the response envelope. apierr.Error
// values carry their own code/details; everything else surfaces as
// SERVER_ERROR so internal failures never leak unstructured messages.
func writeError(w http.ResponseWriter, logger *slog.Logger, err error) {
	if apiErr, ok := err.(*apierr.Error); ok {
		writeJSON(w, logger, apiErr.Code.HTTPStatus(), envelope{
			Success: false,
			Error:   &errBody{Code: apiErr.Code, Message: apiErr.Message, Details: apiErr.Details},
		})
		return
	}
	logger.Error("unhandled internal error", "error", err)
	writeJSON(w, logger, 500, envelope{
		Success: false,
		Error:   &errBody{Code: apierr.CodeServerError, Message: "internal server error"},
	})
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}
