package boardapi

import (
	"net/http"

	"github.com/ateam/orchestrator/internal/broker"
	"github.com/ateam/orchestrator/internal/claims"
)

type agentStartRequest struct {
	ItemID string `json:"itemId" validate:"required"`
	Agent  string `json:"agent" validate:"required"`
	TaskID string `json:"task_id"`
}

// handleAgentStart is the claim manager's acquire algorithm exposed as the
// agent-facing "take custody of this item" entry point.
func (s *Server) handleAgentStart(w http.ResponseWriter, r *http.Request) {
	projectID, err := mustProjectID(r)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	var req agentStartRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, s.logger, validationError("malformed request body"))
		return
	}
	if err := s.validate.Struct(req); err != nil {
		writeError(w, s.logger, validationError(err.Error()))
		return
	}

	claim, err := s.claims.Claim(projectID, req.ItemID, req.Agent)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeData(w, s.logger, http.StatusCreated, claim)
}

type agentStopRequest struct {
	ItemID  string `json:"itemId" validate:"required"`
	Agent   string `json:"agent" validate:"required"`
	Summary string `json:"summary" validate:"required"`
	Outcome string `json:"outcome" validate:"omitempty,oneof=completed blocked"`
}

// handleAgentStop is the claim manager's combined stop operation: verify,
// log, release, and move in one atomic step.
func (s *Server) handleAgentStop(w http.ResponseWriter, r *http.Request) {
	projectID, err := mustProjectID(r)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	var req agentStopRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, s.logger, validationError("malformed request body"))
		return
	}
	if err := s.validate.Struct(req); err != nil {
		writeError(w, s.logger, validationError(err.Error()))
		return
	}

	outcome := claims.OutcomeCompleted
	if req.Outcome == string(claims.OutcomeBlocked) {
		outcome = claims.OutcomeBlocked
	}

	before, err := s.store.GetItem(projectID, req.ItemID)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}

	item, err := s.claims.Stop(projectID, req.ItemID, req.Agent, req.Summary, outcome)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}

	s.broker.Publish(projectID, broker.KindItemMoved, map[string]any{
		"itemId": item.ID, "fromStage": before.Stage, "toStage": item.Stage, "item": item,
	})
	s.broker.Publish(projectID, broker.KindBoardUpdated, nil)

	writeData(w, s.logger, http.StatusOK, item)
}
