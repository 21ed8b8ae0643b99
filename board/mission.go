package board

import (
	"encoding/json"
	"time"
)

// MissionState is one of the seven states a mission passes through from
// creation to archival.
type MissionState string

const (
	MissionInitializing MissionState = "initializing"
	MissionPrechecking  MissionState = "prechecking"
	MissionRunning      MissionState = "running"
	MissionPostchecking MissionState = "postchecking"
	MissionCompleted    MissionState = "completed"
	MissionFailed       MissionState = "failed"
	MissionArchived     MissionState = "archived"
)

// missionTransitions lists the states reachable from each mission state
// without a force-archive.
var missionTransitions = map[MissionState][]MissionState{
	MissionInitializing: {MissionPrechecking, MissionFailed},
	MissionPrechecking:  {MissionRunning, MissionFailed},
	MissionRunning:      {MissionPostchecking, MissionFailed},
	MissionPostchecking: {MissionCompleted, MissionFailed},
	MissionCompleted:    {MissionArchived},
	MissionFailed:       {MissionArchived},
	MissionArchived:     {},
}

// ValidMissionTransition reports whether a non-forced mission state
// transition is permitted.
func ValidMissionTransition(from, to MissionState) bool {
	for _, s := range missionTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Mission is a directed set of work items driven through the precheck,
// run, and postcheck phases as a unit.
type Mission struct {
	ID             string          `json:"id"`
	ProjectID      string          `json:"projectId"`
	Title          string          `json:"title"`
	PRDPath        string          `json:"prdPath,omitempty"`
	State          MissionState    `json:"state"`
	ForceArchived  bool            `json:"forceArchived"`
	PrecheckResults  map[string]bool `json:"precheckResults,omitempty"`
	PostcheckResults map[string]bool `json:"postcheckResults,omitempty"`
	// FinalReview, PostChecks, and Documentation are opaque substates the
	// completion panel populates while a mission nears completion; the
	// core persists whatever shape the caller sends verbatim and never
	// interprets their contents.
	FinalReview   json.RawMessage `json:"finalReview,omitempty"`
	PostChecks    json.RawMessage `json:"postChecks,omitempty"`
	Documentation json.RawMessage `json:"documentation,omitempty"`
	CreatedAt     time.Time       `json:"createdAt"`
	UpdatedAt     time.Time       `json:"updatedAt"`
	CompletedAt   *time.Time      `json:"completedAt,omitempty"`
	ArchivedAt    *time.Time      `json:"archivedAt,omitempty"`
}

// MissionItemLink associates one item with one mission.
type MissionItemLink struct {
	MissionID string    `json:"missionId"`
	ItemID    string    `json:"itemId"`
	LinkedAt  time.Time `json:"linkedAt"`
}
