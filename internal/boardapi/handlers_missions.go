package boardapi

import (
	"encoding/json"
	"net/http"

	"github.com/ateam/orchestrator/board"
	"github.com/ateam/orchestrator/internal/apierr"
	"github.com/ateam/orchestrator/internal/broker"
)

func (s *Server) handleListMissions(w http.ResponseWriter, r *http.Request) {
	projectID, err := mustProjectID(r)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	missions, err := s.store.ListMissions(projectID)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeData(w, s.logger, http.StatusOK, missions)
}

func (s *Server) handleCurrentMission(w http.ResponseWriter, r *http.Request) {
	projectID, err := mustProjectID(r)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	id, err := s.store.ActiveMissionID(projectID)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	if id == "" {
		writeData(w, s.logger, http.StatusOK, nil)
		return
	}
	m, err := s.store.GetMission(projectID, id)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeData(w, s.logger, http.StatusOK, m)
}

type createMissionRequest struct {
	Name    string `json:"name" validate:"required"`
	PRDPath string `json:"prdPath"`
	Force   bool   `json:"force"`
}

// handleCreateMission enforces the at-most-one-active-mission-per-project
// invariant: a second mission requires force=true, which force-archives
// the incumbent before the new one is initialized.
func (s *Server) handleCreateMission(w http.ResponseWriter, r *http.Request) {
	projectID, err := mustProjectID(r)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	var req createMissionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, s.logger, validationError("malformed request body"))
		return
	}
	if err := s.validate.Struct(req); err != nil {
		writeError(w, s.logger, validationError(err.Error()))
		return
	}

	activeID, err := s.store.ActiveMissionID(projectID)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	if activeID != "" {
		if !req.Force {
			writeError(w, s.logger, apierr.WithDetails(apierr.CodeConflict,
				"a mission is already active for this project", map[string]any{"missionId": activeID}))
			return
		}
		if _, err := s.missions.ForceArchive(projectID, activeID); err != nil {
			writeError(w, s.logger, err)
			return
		}
	}

	m, err := s.missions.Init(projectID, req.Name, req.PRDPath)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeData(w, s.logger, http.StatusCreated, m)
}

type missionChecksRequest struct {
	Checks map[string]bool `json:"checks"`
}

func (s *Server) currentMissionOrNotFound(projectID string) (*board.Mission, error) {
	id, err := s.store.ActiveMissionID(projectID)
	if err != nil {
		return nil, err
	}
	if id == "" {
		return nil, apierr.New(apierr.CodeNotFound, "no active mission for this project")
	}
	return s.store.GetMission(projectID, id)
}

// latestMissionOrNotFound looks up a project's most recently created
// mission regardless of state, including one already archived. Archival
// is the one operation that must keep working against an already-archived
// mission (to stay terminal-idempotent), so it cannot use
// currentMissionOrNotFound, which excludes archived missions.
func (s *Server) latestMissionOrNotFound(projectID string) (*board.Mission, error) {
	id, err := s.store.LatestMissionID(projectID)
	if err != nil {
		return nil, err
	}
	if id == "" {
		return nil, apierr.New(apierr.CodeNotFound, "no mission for this project")
	}
	return s.store.GetMission(projectID, id)
}

func checksPass(checks map[string]bool) bool {
	for _, ok := range checks {
		if !ok {
			return false
		}
	}
	return true
}

// handleMissionPrecheck advances the active mission from prechecking to
// running on a passing check set, or to failed otherwise. mission_init
// already placed the mission in prechecking when it was created.
func (s *Server) handleMissionPrecheck(w http.ResponseWriter, r *http.Request) {
	projectID, err := mustProjectID(r)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	var req missionChecksRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, s.logger, validationError("malformed request body"))
		return
	}
	mission, err := s.currentMissionOrNotFound(projectID)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}

	if err := s.missions.RecordChecks(projectID, mission.ID, "precheck", req.Checks); err != nil {
		writeError(w, s.logger, err)
		return
	}

	to := board.MissionRunning
	if !checksPass(req.Checks) {
		to = board.MissionFailed
	}
	updated, err := s.missions.Advance(projectID, mission.ID, to, false)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeData(w, s.logger, http.StatusOK, updated)
}

type missionPostcheckRequest struct {
	Checks        map[string]bool `json:"checks"`
	FinalReview   json.RawMessage `json:"finalReview"`
	PostChecks    json.RawMessage `json:"postChecks"`
	Documentation json.RawMessage `json:"documentation"`
}

// handleMissionPostcheck drives the active mission from running through
// postchecking to completed on a passing check set, or to failed
// otherwise. Postcheck failure is treated as terminal-in-failed rather
// than reopening the mission to running, per the decided reading of
// spec.md's open question on the ambiguous postcheck re-entry path.
//
// On a passing check set, the completion panel's substates are persisted
// verbatim and the canonical event sequence is emitted: final review,
// post-checks (one update per check), then documentation, each bracketed
// by a started/complete pair, before the terminal mission-completed event.
func (s *Server) handleMissionPostcheck(w http.ResponseWriter, r *http.Request) {
	projectID, err := mustProjectID(r)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	var req missionPostcheckRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, s.logger, validationError("malformed request body"))
		return
	}
	mission, err := s.currentMissionOrNotFound(projectID)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}

	// Entering postchecking is the running -> postchecking leg of the
	// lifecycle; the check results then decide postchecking -> completed
	// or postchecking -> failed.
	if _, err := s.missions.Advance(projectID, mission.ID, board.MissionPostchecking, false); err != nil {
		writeError(w, s.logger, err)
		return
	}

	if err := s.missions.RecordChecks(projectID, mission.ID, "postcheck", req.Checks); err != nil {
		writeError(w, s.logger, err)
		return
	}

	to := board.MissionCompleted
	if !checksPass(req.Checks) {
		to = board.MissionFailed
	}
	updated, err := s.missions.Advance(projectID, mission.ID, to, false)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}

	if to == board.MissionCompleted {
		if err := s.missions.RecordSubstates(projectID, mission.ID, req.FinalReview, req.PostChecks, req.Documentation); err != nil {
			writeError(w, s.logger, err)
			return
		}
		updated, err = s.store.GetMission(projectID, mission.ID)
		if err != nil {
			writeError(w, s.logger, err)
			return
		}

		s.broker.Publish(projectID, broker.KindFinalReviewStarted, map[string]any{"missionId": mission.ID})
		s.broker.Publish(projectID, broker.KindFinalReviewComplete, map[string]any{"missionId": mission.ID, "finalReview": req.FinalReview})

		s.broker.Publish(projectID, broker.KindPostChecksStarted, map[string]any{"missionId": mission.ID})
		for name, ok := range req.Checks {
			s.broker.Publish(projectID, broker.KindPostCheckUpdate, map[string]any{"missionId": mission.ID, "check": name, "passed": ok})
		}
		s.broker.Publish(projectID, broker.KindPostChecksComplete, map[string]any{"missionId": mission.ID, "postChecks": req.PostChecks})

		s.broker.Publish(projectID, broker.KindDocumentationStarted, map[string]any{"missionId": mission.ID})
		s.broker.Publish(projectID, broker.KindDocumentationComplete, map[string]any{"missionId": mission.ID, "documentation": req.Documentation})

		s.broker.Publish(projectID, broker.KindMissionCompleted, updated)
	}
	writeData(w, s.logger, http.StatusOK, updated)
}

type archiveMissionRequest struct {
	ItemIDs  []string `json:"itemIds"`
	Complete bool     `json:"complete"`
	DryRun   bool     `json:"dryRun"`
}

// handleMissionArchive implements the two archival paths: complete=true
// drives the validated completed -> archived transition (clearing the
// marker and recording archivedAt), and complete=false force-archives
// regardless of state with no completion side effects. dryRun reports what
// would happen without persisting it. archive(complete=true) is
// terminal-idempotent: repeating it against an already-archived mission
// returns success with no state change.
func (s *Server) handleMissionArchive(w http.ResponseWriter, r *http.Request) {
	projectID, err := mustProjectID(r)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	var req archiveMissionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, s.logger, validationError("malformed request body"))
		return
	}
	mission, err := s.latestMissionOrNotFound(projectID)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}

	if req.Complete && mission.State == board.MissionArchived {
		writeData(w, s.logger, http.StatusOK, mission)
		return
	}

	if req.DryRun {
		writeData(w, s.logger, http.StatusOK, map[string]any{
			"missionId": mission.ID, "wouldArchive": true, "itemIds": req.ItemIDs, "complete": req.Complete,
		})
		return
	}

	var archived *board.Mission
	if req.Complete {
		archived, err = s.missions.Advance(projectID, mission.ID, board.MissionArchived, false)
	} else {
		archived, err = s.missions.ForceArchive(projectID, mission.ID)
	}
	if err != nil {
		writeError(w, s.logger, err)
		return
	}

	writeData(w, s.logger, http.StatusOK, archived)
}
