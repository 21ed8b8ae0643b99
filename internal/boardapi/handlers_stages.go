package boardapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ateam/orchestrator/board"
)

type setWIPLimitRequest struct {
	WIPLimit *int `json:"wipLimit"`
}

// handleSetWIPLimit sets or clears (null) a stage's WIP limit for the
// calling project. The eight stages themselves are a closed, process-global
// set — no project may define its own — but each project tracks its own
// WIP limit per stage, since one project's pipeline pressure should not
// throttle another's.
func (s *Server) handleSetWIPLimit(w http.ResponseWriter, r *http.Request) {
	projectID, err := mustProjectID(r)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	stage := board.Stage(chi.URLParam(r, "stageId"))
	if !stage.Valid() {
		writeError(w, s.logger, validationError("unknown stage: "+string(stage)))
		return
	}

	var req setWIPLimitRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, s.logger, validationError("malformed request body"))
		return
	}

	if err := s.store.SetWIPLimit(projectID, stage, req.WIPLimit); err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeData(w, s.logger, http.StatusOK, map[string]any{"stage": stage, "wipLimit": req.WIPLimit})
}
