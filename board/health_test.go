package board

import "testing"

func TestComputeHealthStable(t *testing.T) {
	items := []Item{
		{ID: "a", Stage: StageTesting},
		{ID: "b", Stage: StageImplementing},
	}
	h := ComputeHealth(items, nil)
	if h.Status != HealthStable {
		t.Fatalf("status = %s, want stable", h.Status)
	}
	if h.ActiveCount != 2 || h.BlockedCount != 0 {
		t.Fatalf("unexpected counts: %+v", h)
	}
}

func TestComputeHealthAccumulating(t *testing.T) {
	items := []Item{
		{ID: "a", Stage: StageBlocked},
		{ID: "b", Stage: StageBlocked},
		{ID: "c", Stage: StageTesting},
	}
	h := ComputeHealth(items, nil)
	if h.Status != HealthAccumulating {
		t.Fatalf("status = %s, want accumulating (2/3 blocked)", h.Status)
	}
}

func TestComputeHealthReworking(t *testing.T) {
	items := []Item{{ID: "a", Stage: StageImplementing}}
	history := []HistoryEntry{
		{ItemID: "a", FromStage: StageReview, ToStage: StageImplementing},
		{ItemID: "a", FromStage: StageReview, ToStage: StageImplementing},
		{ItemID: "a", FromStage: StageTesting, ToStage: StageImplementing},
		{ItemID: "a", FromStage: StageBriefings, ToStage: StageReady},
	}
	h := ComputeHealth(items, history)
	if h.Status != HealthReworking {
		t.Fatalf("status = %s, want reworking (2/4 backward moves, rate 0.5 > 0.3)", h.Status)
	}
}

func TestComputeHealthStalled(t *testing.T) {
	items := []Item{{ID: "a", Stage: StageDone}}
	h := ComputeHealth(items, nil)
	if h.Status != HealthStalled {
		t.Fatalf("status = %s, want stalled (no active or blocked items, but items exist)", h.Status)
	}
}

func TestComputeHealthEmptyBoard(t *testing.T) {
	h := ComputeHealth(nil, nil)
	if h.Status != HealthStable {
		t.Fatalf("status = %s, want stable on an empty board", h.Status)
	}
}
