package boardapi

import (
	"net/http"

	"github.com/ateam/orchestrator/internal/apierr"
	"github.com/ateam/orchestrator/internal/scope"
)

func validationError(msg string) error {
	return apierr.New(apierr.CodeValidation, msg)
}

func normalizeID(raw string) (string, error) {
	return scope.Normalize(raw)
}

// mustProjectID extracts the request's scoped project ID. It is only
// ever called from routes mounted behind requireProject, so the context
// value is always present; a missing value indicates a routing bug, not
// a client error, and is reported as SERVER_ERROR.
func mustProjectID(r *http.Request) (string, error) {
	id, ok := scope.ProjectID(r.Context())
	if !ok {
		return "", apierr.New(apierr.CodeServerError, "request not scoped to a project")
	}
	return id, nil
}
