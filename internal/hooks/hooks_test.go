package hooks

import (
	"testing"
	"time"

	"github.com/ateam/orchestrator/board"
)

type fakeStore struct {
	events map[string]*board.HookEvent // keyed by projectID+"/"+correlationId+"/"+eventType
	list   []board.HookEvent
}

func newFakeStore() *fakeStore {
	return &fakeStore{events: make(map[string]*board.HookEvent)}
}

func (s *fakeStore) InsertHookEvent(e *board.HookEvent) (bool, error) {
	key := e.ProjectID + "/" + e.CorrelationID + "/" + e.EventType
	if e.CorrelationID != "" {
		if _, exists := s.events[key]; exists {
			return false, nil
		}
		s.events[key] = e
	}
	s.list = append(s.list, *e)
	return true, nil
}

func (s *fakeStore) ListHookEvents(projectID string) ([]board.HookEvent, error) {
	var out []board.HookEvent
	for _, e := range s.list {
		if e.ProjectID == projectID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *fakeStore) PruneHookEvents(projectID string, olderThan time.Time) (int64, error) {
	var kept []board.HookEvent
	var pruned int64
	for _, e := range s.list {
		if e.ProjectID == projectID && e.ReceivedAt.Before(olderThan) {
			pruned++
			continue
		}
		kept = append(kept, e)
	}
	s.list = kept
	return pruned, nil
}

func TestSubmitRejectsWholeBatchOnInvalidEventType(t *testing.T) {
	store := newFakeStore()
	ing := New(store)

	batch := []Incoming{
		{EventType: "pre_tool_use", Agent: "Murdock", CorrelationID: "c1"},
		{EventType: "not_a_real_type", Agent: "Murdock"},
	}
	_, err := ing.Submit("p1", batch)
	if err == nil {
		t.Fatal("expected an error for an unknown event type")
	}
	if len(store.list) != 0 {
		t.Fatalf("an invalid event anywhere in the batch should reject the whole batch, got %d inserted", len(store.list))
	}
}

func TestSubmitDedupesOnCorrelationAndEventType(t *testing.T) {
	store := newFakeStore()
	ing := New(store)

	batch := []Incoming{
		{EventType: "pre_tool_use", Agent: "Murdock", CorrelationID: "c1", Timestamp: time.Now()},
	}
	res, err := ing.Submit("p1", batch)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Created != 1 || res.Skipped != 0 {
		t.Fatalf("first submit: %+v", res)
	}

	res, err = ing.Submit("p1", batch)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Created != 0 || res.Skipped != 1 {
		t.Fatalf("duplicate {correlationId, eventType} should be skipped, got %+v", res)
	}
}

func TestDurationsPairsPreAndPostEvents(t *testing.T) {
	store := newFakeStore()
	ing := New(store)

	start := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	batch := []Incoming{
		{EventType: "pre_tool_use", Agent: "Murdock", CorrelationID: "c1", Timestamp: start},
		{EventType: "post_tool_use", Agent: "Murdock", CorrelationID: "c1", Timestamp: start.Add(1500 * time.Millisecond)},
		{EventType: "session_start", Agent: "Murdock", Timestamp: start},
	}
	if _, err := ing.Submit("p1", batch); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	durations, err := ing.Durations("p1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if durations["c1"] != 1500 {
		t.Fatalf("durations[c1] = %d, want 1500", durations["c1"])
	}
	if len(durations) != 1 {
		t.Fatalf("expected exactly one paired duration, got %+v", durations)
	}
}

func TestDurationsOmitsUnpairedEvents(t *testing.T) {
	store := newFakeStore()
	ing := New(store)

	batch := []Incoming{
		{EventType: "post_tool_use", Agent: "Murdock", CorrelationID: "orphan", Timestamp: time.Now()},
	}
	if _, err := ing.Submit("p1", batch); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	durations, err := ing.Durations("p1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(durations) != 0 {
		t.Fatalf("an unpaired post event should not produce a duration, got %+v", durations)
	}
}

func TestPruneExcludesEventsNewerThanCutoff(t *testing.T) {
	store := newFakeStore()
	ing := New(store)

	old := &board.HookEvent{ID: "old", ProjectID: "p1", EventType: "session_start", ReceivedAt: time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)}
	recent := &board.HookEvent{ID: "recent", ProjectID: "p1", EventType: "session_start", ReceivedAt: time.Now()}
	store.list = append(store.list, *old, *recent)

	cutoff := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	pruned, err := ing.Prune("p1", cutoff)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if pruned != 1 {
		t.Fatalf("pruned = %d, want 1", pruned)
	}

	remaining, err := store.ListHookEvents("p1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(remaining) != 1 || remaining[0].ID != "recent" {
		t.Fatalf("expected only the recent event to survive, got %+v", remaining)
	}
}
