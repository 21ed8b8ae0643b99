package boardapi

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/ateam/orchestrator/board"
	"github.com/ateam/orchestrator/internal/apierr"
	"github.com/ateam/orchestrator/internal/broker"
	"github.com/ateam/orchestrator/internal/store"
)

func (s *Server) handleListItems(w http.ResponseWriter, r *http.Request) {
	projectID, err := mustProjectID(r)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	items, err := s.store.ListItems(projectID, false)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeData(w, s.logger, http.StatusOK, items)
}

type createItemRequest struct {
	Title        string        `json:"title" validate:"required"`
	Description  string        `json:"description"`
	Type         string        `json:"type" validate:"required,oneof=feature bug enhancement task"`
	Priority     string        `json:"priority" validate:"required,oneof=low medium high critical"`
	Dependencies []string      `json:"dependencies"`
	Outputs      *board.Outputs `json:"outputs"`
}

func (s *Server) handleCreateItem(w http.ResponseWriter, r *http.Request) {
	projectID, err := mustProjectID(r)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	var req createItemRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, s.logger, validationError("malformed request body"))
		return
	}
	if err := s.validate.Struct(req); err != nil {
		writeError(w, s.logger, validationError(err.Error()))
		return
	}

	outputs := board.Outputs{}
	if req.Outputs != nil {
		outputs = *req.Outputs
	}

	now := time.Now()
	item := &board.Item{
		ID:          uuid.New().String(),
		ProjectID:   projectID,
		Title:       req.Title,
		Description: req.Description,
		Type:        board.ItemType(req.Type),
		Stage:       board.StageBriefings,
		Priority:    board.Priority(req.Priority),
		Outputs:     outputs,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	existing, err := s.store.ListItems(projectID, true)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	deps, err := s.store.ProjectDependencies(projectID)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}

	if err := board.CheckOutputCollision(*item, existing, deps); err != nil {
		writeError(w, s.logger, translateBoardError(err))
		return
	}

	existingIDs := make(map[string]bool, len(existing))
	for _, it := range existing {
		existingIDs[it.ID] = true
	}
	for _, depID := range req.Dependencies {
		if !existingIDs[depID] {
			writeError(w, s.logger, validationError("dependency not found in this project: "+depID))
			return
		}
		if cycle := board.DetectCycle(deps, item.ID, depID); cycle != nil {
			writeError(w, s.logger, translateBoardError(cycle))
			return
		}
		deps = append(deps, board.ItemDependency{ItemID: item.ID, DependsOnID: depID})
	}

	if err := s.store.CreateItem(item); err != nil {
		writeError(w, s.logger, err)
		return
	}
	for _, depID := range req.Dependencies {
		if err := s.store.AddDependency(item.ID, depID); err != nil {
			writeError(w, s.logger, err)
			return
		}
	}

	s.broker.Publish(projectID, broker.KindItemAdded, item)
	s.broker.Publish(projectID, broker.KindBoardUpdated, nil)

	writeData(w, s.logger, http.StatusCreated, item)
}

type updateItemRequest struct {
	Title       *string        `json:"title"`
	Description *string        `json:"description"`
	Priority    *string        `json:"priority" validate:"omitempty,oneof=low medium high critical"`
	Outputs     *board.Outputs `json:"outputs"`
}

func (s *Server) handleUpdateItem(w http.ResponseWriter, r *http.Request) {
	projectID, err := mustProjectID(r)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	id := chi.URLParam(r, "id")

	var req updateItemRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, s.logger, validationError("malformed request body"))
		return
	}
	if err := s.validate.Struct(req); err != nil {
		writeError(w, s.logger, validationError(err.Error()))
		return
	}

	fields := store.UpdateItemFields{Title: req.Title, Description: req.Description, Outputs: req.Outputs}
	if req.Priority != nil {
		p := board.Priority(*req.Priority)
		fields.Priority = &p
	}

	updated, err := s.store.UpdateItem(projectID, id, fields)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}

	s.broker.Publish(projectID, broker.KindItemUpdated, updated)
	writeData(w, s.logger, http.StatusOK, updated)
}

type rejectItemRequest struct {
	Reason string `json:"reason" validate:"required"`
	Agent  string `json:"agent" validate:"required"`
}

func (s *Server) handleRejectItem(w http.ResponseWriter, r *http.Request) {
	projectID, err := mustProjectID(r)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	id := chi.URLParam(r, "id")

	var req rejectItemRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, s.logger, validationError("malformed request body"))
		return
	}
	if err := s.validate.Struct(req); err != nil {
		writeError(w, s.logger, validationError(err.Error()))
		return
	}

	item, err := s.store.GetItem(projectID, id)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	if item.Stage != board.StageReview {
		writeError(w, s.logger, apierr.WithDetails(apierr.CodeInvalidTransition,
			"only an item in review can be rejected",
			map[string]any{"from": item.Stage, "to": board.StageImplementing}))
		return
	}
	if err := board.ValidateTransition(item.Stage, board.StageImplementing, false); err != nil {
		writeError(w, s.logger, translateBoardError(err))
		return
	}

	if err := s.store.IncrementRejectionCount(projectID, id); err != nil {
		writeError(w, s.logger, err)
		return
	}
	updated, err := s.store.MoveItem(projectID, id, item.Stage, board.StageImplementing, req.Agent, req.Reason)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}

	s.broker.Publish(projectID, broker.KindItemMoved, map[string]any{
		"itemId": updated.ID, "fromStage": item.Stage, "toStage": updated.Stage, "item": updated,
	})
	writeData(w, s.logger, http.StatusOK, updated)
}

func (s *Server) handleItemWorkLog(w http.ResponseWriter, r *http.Request) {
	projectID, err := mustProjectID(r)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	id := chi.URLParam(r, "id")
	if _, err := s.store.GetItem(projectID, id); err != nil {
		writeError(w, s.logger, err)
		return
	}
	entries, err := s.store.WorkLog(id)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeData(w, s.logger, http.StatusOK, entries)
}

func parseLimit(r *http.Request, def int) int {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return def
	}
	return n
}
