package boardapi

import (
	"net/http"

	"github.com/ateam/orchestrator/internal/apierr"
)

type createProjectRequest struct {
	ID   string `json:"id" validate:"required"`
	Name string `json:"name" validate:"required"`
}

func (s *Server) handleListProjects(w http.ResponseWriter, r *http.Request) {
	projects, err := s.store.ListProjects()
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeData(w, s.logger, http.StatusOK, projects)
}

func (s *Server) handleCreateProject(w http.ResponseWriter, r *http.Request) {
	var req createProjectRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, s.logger, validationError("malformed request body"))
		return
	}
	if err := s.validate.Struct(req); err != nil {
		writeError(w, s.logger, validationError(err.Error()))
		return
	}

	id, err := normalizeID(req.ID)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}

	exists, err := s.store.ProjectExists(id)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	if exists {
		writeError(w, s.logger, apierr.WithDetails(apierr.CodeConflict,
			"a project with this id already exists", map[string]any{"id": id}))
		return
	}

	if err := s.store.EnsureProject(id, req.Name); err != nil {
		writeError(w, s.logger, err)
		return
	}
	if err := s.store.EnsureStages(id); err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeData(w, s.logger, http.StatusCreated, map[string]string{"id": id, "name": req.Name})
}
