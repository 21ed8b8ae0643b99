package board

// HealthStatus summarizes the overall state of a project's board for
// human supervisors, supplementing the endpoints spec.md names with a
// derived signal no single snapshot field expresses on its own.
type HealthStatus string

const (
	HealthStable       HealthStatus = "stable"
	HealthAccumulating HealthStatus = "accumulating"
	HealthReworking    HealthStatus = "reworking"
	HealthStalled      HealthStatus = "stalled"
)

// Health reports a project's board health at the moment it was computed.
type Health struct {
	Status       HealthStatus `json:"status"`
	Message      string       `json:"message"`
	BlockedCount int          `json:"blockedCount"`
	ActiveCount  int          `json:"activeCount"`
	BlockedRatio float64      `json:"blockedRatio"`
	ReworkRate   float64      `json:"reworkRate"`
}

var activeStages = map[Stage]bool{
	StageTesting:      true,
	StageImplementing: true,
	StageProbing:      true,
	StageReview:       true,
}

// ComputeHealth derives a health summary from the current items and their
// recorded history. rework counts history entries where the new stage
// comes earlier in the pipeline's flow than the prior stage (a move
// backwards through the pipeline, e.g. review -> implementing on
// rejection). Flow order differs from the canonical order in that review
// precedes probing, so an approval (review -> probing) is not rework.
func ComputeHealth(items []Item, history []HistoryEntry) Health {
	flowOrder := map[Stage]int{
		StageBriefings: 0, StageReady: 1, StageTesting: 2, StageImplementing: 3,
		StageReview: 4, StageProbing: 5, StageDone: 6, StageBlocked: 7,
	}
	var blocked, active int
	for _, it := range items {
		switch {
		case it.Stage == StageBlocked:
			blocked++
		case activeStages[it.Stage]:
			active++
		}
	}

	reworkCount := 0
	for _, h := range history {
		if h.FromStage == "" {
			continue
		}
		if flowOrder[h.ToStage] < flowOrder[h.FromStage] {
			reworkCount++
		}
	}

	total := blocked + active
	var blockedRatio float64
	if total > 0 {
		blockedRatio = float64(blocked) / float64(total)
	}
	var reworkRate float64
	if len(history) > 0 {
		reworkRate = float64(reworkCount) / float64(len(history))
	}

	status := HealthStable
	message := "pipeline moving normally"
	switch {
	case blockedRatio > 0.5:
		status = HealthAccumulating
		message = "more than half of in-flight work is blocked"
	case reworkRate > 0.3:
		status = HealthReworking
		message = "high rate of items sent back for rework"
	case total == 0 && len(items) > 0:
		status = HealthStalled
		message = "no items currently active or blocked"
	}

	return Health{
		Status:       status,
		Message:      message,
		BlockedCount: blocked,
		ActiveCount:  active,
		BlockedRatio: blockedRatio,
		ReworkRate:   reworkRate,
	}
}
