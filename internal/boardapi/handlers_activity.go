package boardapi

import (
	"net/http"

	"github.com/ateam/orchestrator/internal/broker"
)

func (s *Server) handleListActivity(w http.ResponseWriter, r *http.Request) {
	projectID, err := mustProjectID(r)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	missionID := r.URL.Query().Get("missionId")
	limit := parseLimit(r, 100)

	entries, err := s.activity.List(projectID, missionID, limit)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeData(w, s.logger, http.StatusOK, entries)
}

type appendActivityRequest struct {
	Message   string `json:"message" validate:"required"`
	Agent     string `json:"agent"`
	Level     string `json:"level" validate:"omitempty,oneof=info warn error"`
	MissionID string `json:"missionId"`
}

func (s *Server) handleAppendActivity(w http.ResponseWriter, r *http.Request) {
	projectID, err := mustProjectID(r)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	var req appendActivityRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, s.logger, validationError("malformed request body"))
		return
	}
	if err := s.validate.Struct(req); err != nil {
		writeError(w, s.logger, validationError(err.Error()))
		return
	}
	level := req.Level
	if level == "" {
		level = "info"
	}

	entry, err := s.activity.Append(projectID, req.MissionID, req.Agent, level, req.Message)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}

	s.broker.Publish(projectID, broker.KindActivityEntryAdded, entry)
	writeData(w, s.logger, http.StatusCreated, entry)
}
