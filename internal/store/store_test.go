package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/ateam/orchestrator/board"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	db, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestEnsureProjectIsIdempotent(t *testing.T) {
	db := newTestDB(t)
	s := NewStore(db)

	if err := s.EnsureProject("p1", "Project One"); err != nil {
		t.Fatalf("first EnsureProject: %v", err)
	}
	if err := s.EnsureProject("p1", "Project One Renamed"); err != nil {
		t.Fatalf("second EnsureProject should be a no-op, not an error: %v", err)
	}

	exists, err := s.ProjectExists("p1")
	if err != nil {
		t.Fatalf("ProjectExists: %v", err)
	}
	if !exists {
		t.Fatal("expected project to exist")
	}
}

func TestEnsureStagesSeedsUnlimitedWIP(t *testing.T) {
	db := newTestDB(t)
	s := NewStore(db)
	if err := s.EnsureProject("p1", "Project One"); err != nil {
		t.Fatalf("EnsureProject: %v", err)
	}
	if err := s.EnsureStages("p1"); err != nil {
		t.Fatalf("EnsureStages: %v", err)
	}

	configs, err := s.GetStageConfigs("p1")
	if err != nil {
		t.Fatalf("GetStageConfigs: %v", err)
	}
	if len(configs) != len(board.Stages) {
		t.Fatalf("expected %d stages, got %d", len(board.Stages), len(configs))
	}
	for i, c := range configs {
		if c.Name != board.Stages[i] {
			t.Fatalf("stage %d = %s, want %s (order must be preserved)", i, c.Name, board.Stages[i])
		}
		if c.WIPLimit != nil {
			t.Fatalf("expected unlimited WIP by default, got %v", *c.WIPLimit)
		}
	}
}

func TestEnsureStagesPreservesExistingWIPLimit(t *testing.T) {
	db := newTestDB(t)
	s := NewStore(db)
	if err := s.EnsureProject("p1", "Project One"); err != nil {
		t.Fatalf("EnsureProject: %v", err)
	}
	if err := s.EnsureStages("p1"); err != nil {
		t.Fatalf("EnsureStages: %v", err)
	}
	limit := 3
	if err := s.SetWIPLimit("p1", board.StageTesting, &limit); err != nil {
		t.Fatalf("SetWIPLimit: %v", err)
	}

	// Re-running EnsureStages must not clobber the configured limit.
	if err := s.EnsureStages("p1"); err != nil {
		t.Fatalf("second EnsureStages: %v", err)
	}
	configs, err := s.GetStageConfigs("p1")
	if err != nil {
		t.Fatalf("GetStageConfigs: %v", err)
	}
	for _, c := range configs {
		if c.Name == board.StageTesting {
			if c.WIPLimit == nil || *c.WIPLimit != 3 {
				t.Fatalf("expected testing's WIP limit to survive re-seeding, got %v", c.WIPLimit)
			}
		}
	}
}

func TestSetWIPLimitUnknownStage(t *testing.T) {
	db := newTestDB(t)
	s := NewStore(db)
	if err := s.EnsureProject("p1", "Project One"); err != nil {
		t.Fatalf("EnsureProject: %v", err)
	}
	if err := s.EnsureStages("p1"); err != nil {
		t.Fatalf("EnsureStages: %v", err)
	}
	limit := 1
	err := s.SetWIPLimit("p1", board.Stage("not-a-stage"), &limit)
	if err == nil {
		t.Fatal("expected an error setting the WIP limit of an unknown stage")
	}
}

func newItem(projectID string) *board.Item {
	now := time.Now()
	return &board.Item{
		ID:        uuid.New().String(),
		ProjectID: projectID,
		Title:     "write the onboarding doc",
		Type:      board.ItemTypeTask,
		Stage:     board.StageBriefings,
		Priority:  board.PriorityHigh,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestCreateAndGetItemRoundTrip(t *testing.T) {
	db := newTestDB(t)
	s := NewStore(db)
	if err := s.EnsureProject("p1", "Project One"); err != nil {
		t.Fatalf("EnsureProject: %v", err)
	}

	it := newItem("p1")
	it.Outputs = board.Outputs{Impl: "internal/foo.go"}
	if err := s.CreateItem(it); err != nil {
		t.Fatalf("CreateItem: %v", err)
	}

	got, err := s.GetItem("p1", it.ID)
	if err != nil {
		t.Fatalf("GetItem: %v", err)
	}
	if got.Title != it.Title || got.Stage != board.StageBriefings || got.Outputs.Impl != "internal/foo.go" {
		t.Fatalf("round trip mismatch: %+v", got)
	}

	history, err := s.ItemHistory(it.ID)
	if err != nil {
		t.Fatalf("ItemHistory: %v", err)
	}
	if len(history) != 1 || history[0].ToStage != board.StageBriefings {
		t.Fatalf("expected a creation history entry, got %+v", history)
	}
}

func TestGetItemNotFound(t *testing.T) {
	db := newTestDB(t)
	s := NewStore(db)
	if err := s.EnsureProject("p1", "Project One"); err != nil {
		t.Fatalf("EnsureProject: %v", err)
	}
	_, err := s.GetItem("p1", "does-not-exist")
	if err == nil {
		t.Fatal("expected an error for a missing item")
	}
}

func TestListItemsOrdersByStageThenPriority(t *testing.T) {
	db := newTestDB(t)
	s := NewStore(db)
	if err := s.EnsureProject("p1", "Project One"); err != nil {
		t.Fatalf("EnsureProject: %v", err)
	}

	low := newItem("p1")
	low.Priority = board.PriorityLow
	critical := newItem("p1")
	critical.Priority = board.PriorityCritical
	medium := newItem("p1")
	medium.Priority = board.PriorityMedium

	for _, it := range []*board.Item{low, critical, medium} {
		if err := s.CreateItem(it); err != nil {
			t.Fatalf("CreateItem: %v", err)
		}
	}

	items, err := s.ListItems("p1", false)
	if err != nil {
		t.Fatalf("ListItems: %v", err)
	}
	if len(items) != 3 {
		t.Fatalf("expected 3 items, got %d", len(items))
	}
	if items[0].Priority != board.PriorityCritical || items[1].Priority != board.PriorityMedium || items[2].Priority != board.PriorityLow {
		t.Fatalf("expected critical, medium, low order; got %s, %s, %s", items[0].Priority, items[1].Priority, items[2].Priority)
	}
}

func TestListItemsExcludesArchivedByDefault(t *testing.T) {
	db := newTestDB(t)
	s := NewStore(db)
	if err := s.EnsureProject("p1", "Project One"); err != nil {
		t.Fatalf("EnsureProject: %v", err)
	}
	it := newItem("p1")
	if err := s.CreateItem(it); err != nil {
		t.Fatalf("CreateItem: %v", err)
	}
	if err := s.ArchiveItem("p1", it.ID); err != nil {
		t.Fatalf("ArchiveItem: %v", err)
	}

	active, err := s.ListItems("p1", false)
	if err != nil {
		t.Fatalf("ListItems: %v", err)
	}
	if len(active) != 0 {
		t.Fatalf("expected archived item to be excluded, got %d", len(active))
	}

	all, err := s.ListItems("p1", true)
	if err != nil {
		t.Fatalf("ListItems(includeArchived): %v", err)
	}
	if len(all) != 1 {
		t.Fatalf("expected the archived item when includeArchived=true, got %d", len(all))
	}
}

func TestMoveItemStampsCompletedAtOnDone(t *testing.T) {
	db := newTestDB(t)
	s := NewStore(db)
	if err := s.EnsureProject("p1", "Project One"); err != nil {
		t.Fatalf("EnsureProject: %v", err)
	}
	it := newItem("p1")
	if err := s.CreateItem(it); err != nil {
		t.Fatalf("CreateItem: %v", err)
	}

	updated, err := s.MoveItem("p1", it.ID, board.StageBriefings, board.StageDone, "Murdock", "shipped it")
	if err != nil {
		t.Fatalf("MoveItem: %v", err)
	}
	if updated.Stage != board.StageDone {
		t.Fatalf("stage = %s, want done", updated.Stage)
	}
	if updated.CompletedAt == nil {
		t.Fatal("expected completedAt to be stamped on reaching done")
	}

	history, err := s.ItemHistory(it.ID)
	if err != nil {
		t.Fatalf("ItemHistory: %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("expected creation + move history, got %d entries", len(history))
	}
}

func TestAddDependencyIsIdempotent(t *testing.T) {
	db := newTestDB(t)
	s := NewStore(db)
	if err := s.EnsureProject("p1", "Project One"); err != nil {
		t.Fatalf("EnsureProject: %v", err)
	}
	a, b := newItem("p1"), newItem("p1")
	if err := s.CreateItem(a); err != nil {
		t.Fatalf("CreateItem a: %v", err)
	}
	if err := s.CreateItem(b); err != nil {
		t.Fatalf("CreateItem b: %v", err)
	}

	if err := s.AddDependency(a.ID, b.ID); err != nil {
		t.Fatalf("first AddDependency: %v", err)
	}
	if err := s.AddDependency(a.ID, b.ID); err != nil {
		t.Fatalf("re-adding the same edge should be a no-op, got: %v", err)
	}

	deps, err := s.ProjectDependencies("p1")
	if err != nil {
		t.Fatalf("ProjectDependencies: %v", err)
	}
	if len(deps) != 1 {
		t.Fatalf("expected exactly one edge, got %d", len(deps))
	}
}

func TestClaimConflictAndAgentBusyAreRaceFree(t *testing.T) {
	db := newTestDB(t)
	s := NewStore(db)
	if err := s.EnsureProject("p1", "Project One"); err != nil {
		t.Fatalf("EnsureProject: %v", err)
	}
	a, b := newItem("p1"), newItem("p1")
	if err := s.CreateItem(a); err != nil {
		t.Fatalf("CreateItem a: %v", err)
	}
	if err := s.CreateItem(b); err != nil {
		t.Fatalf("CreateItem b: %v", err)
	}

	claim1 := &board.AgentClaim{ID: uuid.New().String(), ProjectID: "p1", ItemID: a.ID, AgentID: "Murdock", ClaimedAt: time.Now()}
	if err := s.CreateClaim(claim1); err != nil {
		t.Fatalf("first claim: %v", err)
	}

	claimSameItem := &board.AgentClaim{ID: uuid.New().String(), ProjectID: "p1", ItemID: a.ID, AgentID: "B.A.", ClaimedAt: time.Now()}
	if err := s.CreateClaim(claimSameItem); err == nil {
		t.Fatal("expected a conflict claiming an already-claimed item")
	}

	claimSameAgent := &board.AgentClaim{ID: uuid.New().String(), ProjectID: "p1", ItemID: b.ID, AgentID: "Murdock", ClaimedAt: time.Now()}
	if err := s.CreateClaim(claimSameAgent); err == nil {
		t.Fatal("expected a conflict claiming a second item as the same busy agent")
	}

	if err := s.ReleaseClaim(a.ID); err != nil {
		t.Fatalf("ReleaseClaim: %v", err)
	}
	if err := s.CreateClaim(claimSameItem); err != nil {
		t.Fatalf("item should be claimable again after release: %v", err)
	}
}

func TestMissionRoundTripWithSubstates(t *testing.T) {
	db := newTestDB(t)
	s := NewStore(db)
	if err := s.EnsureProject("p1", "Project One"); err != nil {
		t.Fatalf("EnsureProject: %v", err)
	}

	m := &board.Mission{
		ID:        uuid.New().String(),
		ProjectID: "p1",
		Title:     "launch",
		PRDPath:   "docs/prd.md",
		State:     board.MissionInitializing,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	if err := s.CreateMission(m); err != nil {
		t.Fatalf("CreateMission: %v", err)
	}

	if err := s.UpdateMissionChecks("p1", m.ID, "precheck", map[string]bool{"lint": true}); err != nil {
		t.Fatalf("UpdateMissionChecks: %v", err)
	}
	if err := s.UpdateMissionSubstates("p1", m.ID, []byte(`{"approved":true}`), nil, nil); err != nil {
		t.Fatalf("UpdateMissionSubstates: %v", err)
	}

	got, err := s.GetMission("p1", m.ID)
	if err != nil {
		t.Fatalf("GetMission: %v", err)
	}
	if got.PRDPath != "docs/prd.md" {
		t.Fatalf("prdPath = %q", got.PRDPath)
	}
	if !got.PrecheckResults["lint"] {
		t.Fatalf("expected precheck results to round trip, got %+v", got.PrecheckResults)
	}
	if string(got.FinalReview) != `{"approved":true}` {
		t.Fatalf("finalReview = %s", got.FinalReview)
	}
}

func TestArchiveMissionItemsSoftArchivesLinkedItemsOnly(t *testing.T) {
	db := newTestDB(t)
	s := NewStore(db)
	if err := s.EnsureProject("p1", "Project One"); err != nil {
		t.Fatalf("EnsureProject: %v", err)
	}
	linked, unlinked := newItem("p1"), newItem("p1")
	if err := s.CreateItem(linked); err != nil {
		t.Fatalf("CreateItem linked: %v", err)
	}
	if err := s.CreateItem(unlinked); err != nil {
		t.Fatalf("CreateItem unlinked: %v", err)
	}

	m := &board.Mission{ID: uuid.New().String(), ProjectID: "p1", Title: "m", State: board.MissionInitializing, CreatedAt: time.Now(), UpdatedAt: time.Now()}
	if err := s.CreateMission(m); err != nil {
		t.Fatalf("CreateMission: %v", err)
	}
	if err := s.LinkMissionItem(m.ID, linked.ID); err != nil {
		t.Fatalf("LinkMissionItem: %v", err)
	}

	if err := s.ArchiveMissionItems("p1", m.ID); err != nil {
		t.Fatalf("ArchiveMissionItems: %v", err)
	}

	gotLinked, err := s.GetItem("p1", linked.ID)
	if err != nil {
		t.Fatalf("GetItem linked: %v", err)
	}
	if gotLinked.ArchivedAt == nil {
		t.Fatal("expected the linked item to be archived")
	}

	gotUnlinked, err := s.GetItem("p1", unlinked.ID)
	if err != nil {
		t.Fatalf("GetItem unlinked: %v", err)
	}
	if gotUnlinked.ArchivedAt != nil {
		t.Fatal("expected the unlinked item to remain unarchived")
	}
}

func TestListMissionsMatchesScanMissionColumnCount(t *testing.T) {
	db := newTestDB(t)
	s := NewStore(db)
	if err := s.EnsureProject("p1", "Project One"); err != nil {
		t.Fatalf("EnsureProject: %v", err)
	}
	m1 := &board.Mission{ID: uuid.New().String(), ProjectID: "p1", Title: "first", State: board.MissionInitializing, CreatedAt: time.Now(), UpdatedAt: time.Now()}
	m2 := &board.Mission{ID: uuid.New().String(), ProjectID: "p1", Title: "second", State: board.MissionInitializing, CreatedAt: time.Now().Add(time.Second), UpdatedAt: time.Now()}
	if err := s.CreateMission(m1); err != nil {
		t.Fatalf("CreateMission m1: %v", err)
	}
	if err := s.CreateMission(m2); err != nil {
		t.Fatalf("CreateMission m2: %v", err)
	}

	missions, err := s.ListMissions("p1")
	if err != nil {
		t.Fatalf("ListMissions: %v", err)
	}
	if len(missions) != 2 {
		t.Fatalf("expected 2 missions, got %d", len(missions))
	}
	if missions[0].Title != "second" {
		t.Fatalf("expected most-recent-first ordering, got %s first", missions[0].Title)
	}
}

func TestHookEventDedupAndPrune(t *testing.T) {
	db := newTestDB(t)
	s := NewStore(db)
	if err := s.EnsureProject("p1", "Project One"); err != nil {
		t.Fatalf("EnsureProject: %v", err)
	}

	e := &board.HookEvent{
		ID: uuid.New().String(), ProjectID: "p1", CorrelationID: "c1", EventType: "pre_tool_use",
		Agent: "Murdock", OccurredAt: time.Now(), ReceivedAt: time.Now(),
	}
	inserted, err := s.InsertHookEvent(e)
	if err != nil || !inserted {
		t.Fatalf("first insert: inserted=%v err=%v", inserted, err)
	}

	dup := &board.HookEvent{
		ID: uuid.New().String(), ProjectID: "p1", CorrelationID: "c1", EventType: "pre_tool_use",
		Agent: "Murdock", OccurredAt: time.Now(), ReceivedAt: time.Now(),
	}
	inserted, err = s.InsertHookEvent(dup)
	if err != nil {
		t.Fatalf("dedup insert returned an error instead of a skip: %v", err)
	}
	if inserted {
		t.Fatal("expected the dedup-key collision to be silently skipped")
	}

	events, err := s.ListHookEvents("p1")
	if err != nil {
		t.Fatalf("ListHookEvents: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("expected exactly one stored event, got %d", len(events))
	}

	pruned, err := s.PruneHookEvents("p1", time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("PruneHookEvents: %v", err)
	}
	if pruned != 1 {
		t.Fatalf("expected the event to be prunable once its cutoff has passed, got %d", pruned)
	}
}

func TestActivityAutoAssociatesActiveMission(t *testing.T) {
	db := newTestDB(t)
	s := NewStore(db)
	if err := s.EnsureProject("p1", "Project One"); err != nil {
		t.Fatalf("EnsureProject: %v", err)
	}
	m := &board.Mission{ID: uuid.New().String(), ProjectID: "p1", Title: "m", State: board.MissionInitializing, CreatedAt: time.Now(), UpdatedAt: time.Now()}
	if err := s.CreateMission(m); err != nil {
		t.Fatalf("CreateMission: %v", err)
	}

	entry := &board.ActivityLogEntry{ID: uuid.New().String(), ProjectID: "p1", Actor: "Murdock", Kind: "note", Body: "hi", CreatedAt: time.Now()}
	if err := s.AppendActivity(entry); err != nil {
		t.Fatalf("AppendActivity: %v", err)
	}
	if entry.MissionID != m.ID {
		t.Fatalf("expected auto-association with the active mission, got %q", entry.MissionID)
	}

	list, err := s.ListActivity("p1", "", 10)
	if err != nil {
		t.Fatalf("ListActivity: %v", err)
	}
	if len(list) != 1 || list[0].MissionID != m.ID {
		t.Fatalf("unexpected activity list: %+v", list)
	}
}
