package boardapi

import (
	"net/http"

	"github.com/ateam/orchestrator/board"
	"github.com/ateam/orchestrator/internal/apierr"
	"github.com/ateam/orchestrator/internal/broker"
)

type boardSnapshot struct {
	Stages         map[board.Stage][]board.Item `json:"stages"`
	Claims         []board.AgentClaim           `json:"claims"`
	CurrentMission string                       `json:"currentMission,omitempty"`
}

// currentSnapshot builds the same {stages, claims, currentMission} view the
// REST snapshot endpoint returns, shared with the event stream's
// snapshot-on-connect frame so a fresh subscriber never has to guess at
// state it missed before subscribing.
func (s *Server) currentSnapshot(projectID string, includeCompleted bool) (boardSnapshot, error) {
	items, err := s.store.ListItems(projectID, includeCompleted)
	if err != nil {
		return boardSnapshot{}, err
	}
	claims, err := s.store.ActiveClaimsForProject(projectID)
	if err != nil {
		return boardSnapshot{}, err
	}
	current, err := s.store.ActiveMissionID(projectID)
	if err != nil {
		return boardSnapshot{}, err
	}

	grouped := make(map[board.Stage][]board.Item)
	for _, st := range board.Stages {
		grouped[st] = []board.Item{}
	}
	for _, it := range items {
		grouped[it.Stage] = append(grouped[it.Stage], it)
	}

	return boardSnapshot{Stages: grouped, Claims: claims, CurrentMission: current}, nil
}

func (s *Server) handleGetBoard(w http.ResponseWriter, r *http.Request) {
	projectID, err := mustProjectID(r)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	includeCompleted := r.URL.Query().Get("includeCompleted") == "true"

	snapshot, err := s.currentSnapshot(projectID, includeCompleted)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeData(w, s.logger, http.StatusOK, snapshot)
}

func (s *Server) handleGetBoardHealth(w http.ResponseWriter, r *http.Request) {
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
	history, err := s.store.AllHistory(projectID)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeData(w, s.logger, http.StatusOK, board.ComputeHealth(items, history))
}

type moveItemRequest struct {
	ItemID      string `json:"itemId" validate:"required"`
	ToStage     string `json:"toStage" validate:"required"`
	Force       bool   `json:"force"`
	ActingAgent string `json:"actingAgent"`
}

func (s *Server) handleMoveItem(w http.ResponseWriter, r *http.Request) {
	projectID, err := mustProjectID(r)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	var req moveItemRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, s.logger, validationError("malformed request body"))
		return
	}
	if err := s.validate.Struct(req); err != nil {
		writeError(w, s.logger, validationError(err.Error()))
		return
	}

	toStage := board.Stage(req.ToStage)
	item, err := s.store.GetItem(projectID, req.ItemID)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}

	if err := board.ValidateTransition(item.Stage, toStage, req.Force); err != nil {
		writeError(w, s.logger, translateBoardError(err))
		return
	}

	if !req.Force {
		configs, err := s.store.GetStageConfigs(projectID)
		if err != nil {
			writeError(w, s.logger, err)
			return
		}
		items, err := s.store.ListItems(projectID, false)
		if err != nil {
			writeError(w, s.logger, err)
			return
		}
		for _, cfg := range configs {
			if cfg.Name != toStage {
				continue
			}
			current := 0
			for _, it := range items {
				if it.Stage == toStage {
					current++
				}
			}
			if err := board.CheckWIP(toStage, cfg.WIPLimit, current); err != nil {
				writeError(w, s.logger, translateBoardError(err))
				return
			}
		}

		if toStage == board.StageReady {
			deps, err := s.store.ProjectDependencies(projectID)
			if err != nil {
				writeError(w, s.logger, err)
				return
			}
			if !board.IsReady(item.ID, items, deps) {
				writeError(w, s.logger, validationError("item has unmet dependencies"))
				return
			}
		}
	}

	if err := s.claims.ReleaseForMove(projectID, item.ID, req.ActingAgent); err != nil {
		writeError(w, s.logger, err)
		return
	}

	updated, err := s.store.MoveItem(projectID, item.ID, item.Stage, toStage, req.ActingAgent, "")
	if err != nil {
		writeError(w, s.logger, err)
		return
	}

	// A move that names an acting agent claims the item for that agent as
	// part of the same operation; absence of an agent leaves it unclaimed.
	if req.ActingAgent != "" {
		if _, err := s.claims.Claim(projectID, updated.ID, req.ActingAgent); err != nil {
			writeError(w, s.logger, err)
			return
		}
	}

	s.broker.Publish(projectID, broker.KindItemMoved, map[string]any{
		"itemId": updated.ID, "fromStage": item.Stage, "toStage": updated.Stage, "item": updated,
	})
	s.broker.Publish(projectID, broker.KindBoardUpdated, nil)

	writeData(w, s.logger, http.StatusOK, updated)
}

type claimRequest struct {
	ItemID string `json:"itemId" validate:"required"`
	Agent  string `json:"agent" validate:"required"`
}

func (s *Server) handleClaim(w http.ResponseWriter, r *http.Request) {
	projectID, err := mustProjectID(r)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	var req claimRequest
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

type releaseRequest struct {
	ItemID string `json:"itemId" validate:"required"`
}

func (s *Server) handleRelease(w http.ResponseWriter, r *http.Request) {
	projectID, err := mustProjectID(r)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	var req releaseRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, s.logger, validationError("malformed request body"))
		return
	}
	if err := s.claims.Release(projectID, req.ItemID); err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeData(w, s.logger, http.StatusOK, map[string]bool{"released": true})
}

// translateBoardError maps the board package's pure domain errors onto
// the shared apierr taxonomy with recovery details, per the error
// handling design's {from, to, allowed[]} / {stage, limit, current}
// detail contracts.
func translateBoardError(err error) error {
	switch e := err.(type) {
	case *board.TransitionError:
		return apierr.WithDetails(apierr.CodeInvalidTransition, e.Error(), map[string]any{
			"from": e.From, "to": e.To, "allowed": e.Allowed,
		})
	case *board.WIPError:
		return apierr.WithDetails(apierr.CodeWIPLimitExceeded, e.Error(), map[string]any{
			"stage": e.Stage, "limit": e.Limit, "current": e.Current,
		})
	case *board.CycleError:
		return apierr.WithDetails(apierr.CodeDependencyCycle, e.Error(), map[string]any{"path": e.Path})
	case *board.CollisionError:
		return apierr.WithDetails(apierr.CodeOutputCollision, e.Error(), map[string]any{
			"itemId": e.ItemID, "otherId": e.OtherID, "paths": e.Paths,
		})
	default:
		return err
	}
}
