// Package missions implements the mission lifecycle state machine:
// initializing -> prechecking -> running -> postchecking -> completed
// (or failed) -> archived, plus the forced-archive escape hatch and the
// advisory mission-active marker file external hook programs read.
package missions

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/ateam/orchestrator/board"
	"github.com/ateam/orchestrator/internal/apierr"
)

// Store is the subset of persistence the mission lifecycle needs.
type Store interface {
	CreateMission(m *board.Mission) error
	GetMission(projectID, id string) (*board.Mission, error)
	UpdateMissionState(projectID, id string, state board.MissionState) error
	ForceArchiveMission(projectID, id string) error
	LinkMissionItem(missionID, itemID string) error
	MissionItemIDs(missionID string) ([]string, error)
	UpdateMissionChecks(projectID, id string, phase string, results map[string]bool) error
	UpdateMissionSubstates(projectID, id string, finalReview, postChecks, documentation json.RawMessage) error
	ArchiveMissionItems(projectID, missionID string) error
}

// Engine drives missions through their lifecycle and manages the
// mission-active marker file.
type Engine struct {
	store   Store
	markDir string
}

// New builds a mission engine. markDir is the directory the mission-active
// marker file is written into; an empty value disables marker writes.
func New(store Store, markDir string) *Engine {
	return &Engine{store: store, markDir: markDir}
}

// Init creates a mission, deletes any stale marker file left over from a
// prior mission regardless of its content, and performs the mission_init
// transition from initializing straight to prechecking.
func (e *Engine) Init(projectID, title, prdPath string) (*board.Mission, error) {
	m := &board.Mission{
		ID:        uuid.New().String(),
		ProjectID: projectID,
		Title:     title,
		PRDPath:   prdPath,
		State:     board.MissionInitializing,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	if err := e.store.CreateMission(m); err != nil {
		return nil, err
	}
	e.removeMarker(projectID)
	return e.Advance(projectID, m.ID, board.MissionPrechecking, false)
}

// RecordChecks persists a precheck or postcheck result map verbatim
// against the mission, keyed by phase ("precheck" or "postcheck").
func (e *Engine) RecordChecks(projectID, id, phase string, results map[string]bool) error {
	return e.store.UpdateMissionChecks(projectID, id, phase, results)
}

// RecordSubstates persists the completion panel's opaque final-review,
// post-checks, and documentation sub-records verbatim. A nil argument
// leaves the corresponding column untouched.
func (e *Engine) RecordSubstates(projectID, id string, finalReview, postChecks, documentation json.RawMessage) error {
	return e.store.UpdateMissionSubstates(projectID, id, finalReview, postChecks, documentation)
}

// AddItem links an item into a mission.
func (e *Engine) AddItem(missionID, itemID string) error {
	return e.store.LinkMissionItem(missionID, itemID)
}

// Advance transitions a mission to the next state. force bypasses the
// transition matrix, matching the board engine's own force-move escape
// hatch. Any transition into running (normally a passing precheck,
// prechecking -> running) writes the mission marker; any transition into
// archived removes it and soft-archives the mission's linked items.
func (e *Engine) Advance(projectID, id string, to board.MissionState, force bool) (*board.Mission, error) {
	m, err := e.store.GetMission(projectID, id)
	if err != nil {
		return nil, err
	}
	if !force && !board.ValidMissionTransition(m.State, to) {
		return nil, apierr.WithDetails(apierr.CodeInvalidTransition,
			fmt.Sprintf("invalid mission transition %s -> %s", m.State, to),
			map[string]any{"from": m.State, "to": to})
	}

	if err := e.store.UpdateMissionState(projectID, id, to); err != nil {
		return nil, err
	}

	if to == board.MissionRunning {
		e.writeMarker(projectID)
	}
	if to == board.MissionArchived {
		e.removeMarker(projectID)
		if err := e.store.ArchiveMissionItems(projectID, id); err != nil {
			return nil, err
		}
	}

	return e.store.GetMission(projectID, id)
}

// ForceArchive archives a mission regardless of its current state, removes
// the marker file, and soft-archives every item linked to it.
func (e *Engine) ForceArchive(projectID, id string) (*board.Mission, error) {
	if err := e.store.ForceArchiveMission(projectID, id); err != nil {
		return nil, err
	}
	e.removeMarker(projectID)
	if err := e.store.ArchiveMissionItems(projectID, id); err != nil {
		return nil, err
	}
	return e.store.GetMission(projectID, id)
}

func (e *Engine) markerPath(projectID string) string {
	return filepath.Join(e.markDir, fmt.Sprintf("mission-active-%s", projectID))
}

// writeMarker writes the marker best-effort; I/O failures never fail the
// calling operation, matching the spec's "core writes it best-effort"
// rule for infrastructure external hook programs merely observe.
func (e *Engine) writeMarker(projectID string) {
	if e.markDir == "" {
		return
	}
	content := fmt.Sprintf("%s\n%s\n", projectID, time.Now().Format(time.RFC3339))
	_ = os.WriteFile(e.markerPath(projectID), []byte(content), 0644)
}

func (e *Engine) removeMarker(projectID string) {
	if e.markDir == "" {
		return
	}
	_ = os.Remove(e.markerPath(projectID))
}
