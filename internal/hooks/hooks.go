// Package hooks implements the hook-event ingestor: validated, deduped,
// batch intake of external agent tool-use telemetry, plus read-side
// pre/post duration pairing and time-window pruning.
package hooks

import (
	"time"

	"github.com/google/uuid"

	"github.com/ateam/orchestrator/board"
	"github.com/ateam/orchestrator/internal/apierr"
)

// Store is the subset of persistence the ingestor needs.
type Store interface {
	InsertHookEvent(e *board.HookEvent) (inserted bool, err error)
	ListHookEvents(projectID string) ([]board.HookEvent, error)
	PruneHookEvents(projectID string, olderThan time.Time) (int64, error)
}

// Incoming is one submitted event prior to ID assignment, mirroring the
// wire shape {eventType, agent, tool?, status, summary, correlationId?,
// timestamp, missionId?}.
type Incoming struct {
	EventType     string
	Agent         string
	Tool          string
	Status        string
	Summary       string
	CorrelationID string
	Timestamp     time.Time
	MissionID     string
}

// Ingestor validates, dedupes, and stores hook events.
type Ingestor struct {
	store Store
}

// New builds an ingestor over a store.
func New(store Store) *Ingestor {
	return &Ingestor{store: store}
}

// Result reports how many events in a batch were newly created versus
// skipped as duplicates.
type Result struct {
	Created int
	Skipped int
	Events  []board.HookEvent
}

// Submit validates every event's type against the fixed enum up front —
// rejecting the whole batch on any invalid type — then inserts each
// event, treating a dedup-key collision as a skip rather than a failure.
func (i *Ingestor) Submit(projectID string, batch []Incoming) (*Result, error) {
	for _, e := range batch {
		if !board.HookEventTypes[e.EventType] {
			return nil, apierr.WithDetails(apierr.CodeValidation,
				"unknown hook event type: "+e.EventType,
				map[string]any{"field": "eventType"})
		}
	}

	result := &Result{}
	for _, in := range batch {
		e := &board.HookEvent{
			ID:            uuid.New().String(),
			ProjectID:     projectID,
			CorrelationID: in.CorrelationID,
			EventType:     in.EventType,
			Agent:         in.Agent,
			Tool:          in.Tool,
			Status:        in.Status,
			Summary:       in.Summary,
			MissionID:     in.MissionID,
			OccurredAt:    in.Timestamp,
			ReceivedAt:    time.Now(),
		}
		inserted, err := i.store.InsertHookEvent(e)
		if err != nil {
			return nil, err
		}
		if inserted {
			result.Created++
			result.Events = append(result.Events, *e)
		} else {
			result.Skipped++
		}
	}
	return result, nil
}

// Prune deletes events older than the cutoff.
func (i *Ingestor) Prune(projectID string, olderThan time.Time) (int64, error) {
	return i.store.PruneHookEvents(projectID, olderThan)
}

// Durations pairs every post_tool_use (and failure variant) event having
// a correlation identifier with its matching pre_tool_use event and
// returns the elapsed duration for each pair found. Unpaired events are
// silently omitted — duration is a derived, read-side-only view.
func (i *Ingestor) Durations(projectID string) (map[string]int64, error) {
	events, err := i.store.ListHookEvents(projectID)
	if err != nil {
		return nil, err
	}

	pre := make(map[string]board.HookEvent)
	for _, e := range events {
		if e.EventType == "pre_tool_use" && e.CorrelationID != "" {
			pre[e.CorrelationID] = e
		}
	}

	durations := make(map[string]int64)
	for _, e := range events {
		if e.CorrelationID == "" {
			continue
		}
		if e.EventType != "post_tool_use" && e.EventType != "post_tool_use_failed" {
			continue
		}
		if p, ok := pre[e.CorrelationID]; ok {
			durations[e.CorrelationID] = board.DurationMs(p, e)
		}
	}
	return durations, nil
}
