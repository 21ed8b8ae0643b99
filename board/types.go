// Package board models the pipeline that work items move through: the
// fixed stage sequence, the transition matrix between stages, dependency
// readiness, cycle detection, and output-path collision checks.
package board

import "time"

// Stage identifies one of the eight fixed pipeline stages an item can sit
// in. Stages are ordered; the order is canonical and used for display.
// The set is closed: no project may define its own stages.
type Stage string

const (
	StageBriefings    Stage = "briefings"
	StageReady        Stage = "ready"
	StageTesting      Stage = "testing"
	StageImplementing Stage = "implementing"
	StageProbing      Stage = "probing"
	StageReview       Stage = "review"
	StageDone         Stage = "done"
	StageBlocked      Stage = "blocked"
)

// Stages lists every stage in canonical pipeline order.
var Stages = []Stage{
	StageBriefings,
	StageReady,
	StageTesting,
	StageImplementing,
	StageProbing,
	StageReview,
	StageDone,
	StageBlocked,
}

// Order returns the stage's position in the canonical sequence, or -1 if
// the stage is not one of the eight fixed stages.
func (s Stage) Order() int {
	for i, known := range Stages {
		if s == known {
			return i
		}
	}
	return -1
}

// Valid reports whether s is one of the eight fixed stages.
func (s Stage) Valid() bool {
	for _, known := range Stages {
		if s == known {
			return true
		}
	}
	return false
}

// Priority orders items within a stage when items are listed: critical
// first, then high, medium and low.
type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityMedium   Priority = "medium"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

// ItemType classifies the kind of work an item represents.
type ItemType string

const (
	ItemTypeFeature     ItemType = "feature"
	ItemTypeBug         ItemType = "bug"
	ItemTypeEnhancement ItemType = "enhancement"
	ItemTypeTask        ItemType = "task"
)

// Project is the top-level scope under which stages, items, missions,
// claims and activity are isolated from every other project.
type Project struct {
	ID          string    `json:"id"`
	DisplayName string    `json:"displayName"`
	CreatedAt   time.Time `json:"createdAt"`
}

// StageConfig carries the optional work-in-progress limit for one stage
// within one project. A nil Limit means unconstrained.
type StageConfig struct {
	ProjectID string `json:"projectId"`
	Name      Stage  `json:"name"`
	Order     int    `json:"order"`
	WIPLimit  *int   `json:"wipLimit,omitempty"`
}

// Outputs names the file paths an item is expected to produce. Any of
// the three may be empty; collision detection only compares non-empty
// paths between two items.
type Outputs struct {
	Test  string `json:"test,omitempty"`
	Impl  string `json:"impl,omitempty"`
	Types string `json:"types,omitempty"`
}

// Item is the unit of work moved across stages, claimed by agents, and
// optionally linked into missions.
type Item struct {
	ID             string     `json:"id"`
	ProjectID      string     `json:"projectId"`
	Title          string     `json:"title"`
	Description    string     `json:"description,omitempty"`
	Type           ItemType   `json:"type"`
	Stage          Stage      `json:"stage"`
	Priority       Priority   `json:"priority"`
	AssignedAgent  string     `json:"assignedAgent,omitempty"`
	RejectionCount int        `json:"rejectionCount"`
	Outputs        Outputs    `json:"outputs"`
	CreatedAt      time.Time  `json:"createdAt"`
	UpdatedAt      time.Time  `json:"updatedAt"`
	CompletedAt    *time.Time `json:"completedAt,omitempty"`
	ArchivedAt     *time.Time `json:"archivedAt,omitempty"`
}

// ItemDependency records that Item cannot enter ready until DependsOn
// has reached done.
type ItemDependency struct {
	ItemID      string `json:"itemId"`
	DependsOnID string `json:"dependsOnId"`
}

// HistoryEntry is one recorded stage transition for an item.
type HistoryEntry struct {
	ItemID    string    `json:"itemId"`
	FromStage Stage     `json:"fromStage,omitempty"`
	ToStage   Stage     `json:"toStage"`
	ChangedBy string    `json:"changedBy,omitempty"`
	Note      string    `json:"note,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// AgentClaim grants one agent exclusive custody of one item. A claim is
// active while ReleasedAt is nil; at most one active claim may exist per
// item, and at most one active claim may exist per (project, agent) pair.
type AgentClaim struct {
	ID         string     `json:"id"`
	ProjectID  string     `json:"projectId"`
	ItemID     string     `json:"itemId"`
	AgentID    string     `json:"agentId"`
	ClaimedAt  time.Time  `json:"claimedAt"`
	ReleasedAt *time.Time `json:"releasedAt,omitempty"`
}

// Active reports whether the claim has not yet been released.
func (c AgentClaim) Active() bool {
	return c.ReleasedAt == nil
}

// WorkLogAction classifies why a work log entry was appended.
type WorkLogAction string

const (
	WorkLogStarted   WorkLogAction = "started"
	WorkLogCompleted WorkLogAction = "completed"
	WorkLogRejected  WorkLogAction = "rejected"
	WorkLogNote      WorkLogAction = "note"
)

// WorkLogEntry is a narration an agent attaches to an item while it holds
// the claim, tagged with the action that produced it.
type WorkLogEntry struct {
	ID        string        `json:"id"`
	ItemID    string        `json:"itemId"`
	AgentID   string        `json:"agentId"`
	Action    WorkLogAction `json:"action"`
	Body      string        `json:"body"`
	CreatedAt time.Time     `json:"createdAt"`
}

// Snapshot is a point-in-time view of a project's board, with items
// grouped by stage in a map keyed by stage name.
type Snapshot struct {
	ProjectID string           `json:"projectId"`
	Stages    map[Stage][]Item `json:"stages"`
	TakenAt   time.Time        `json:"takenAt"`
}
