package boardapi

import (
	"net/http"

	"github.com/ateam/orchestrator/internal/scope"
)

// requireProject normalizes and validates the X-Project-ID header, auto
// creates the project (and its stage rows) on first use, and carries the
// normalized ID on the request context for every handler beneath it.
func (s *Server) requireProject(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := r.Header.Get("X-Project-ID")
		id, err := scope.Normalize(raw)
		if err != nil {
			writeError(w, s.logger, err)
			return
		}

		exists, err := s.store.ProjectExists(id)
		if err != nil {
			writeError(w, s.logger, err)
			return
		}
		if !exists {
			if err := s.store.EnsureProject(id, id); err != nil {
				writeError(w, s.logger, err)
				return
			}
			if err := s.store.EnsureStages(id); err != nil {
				writeError(w, s.logger, err)
				return
			}
		}

		ctx := scope.WithProjectID(r.Context(), id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
