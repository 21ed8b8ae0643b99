package board

import "time"

// ActivityLogEntry is one append-only, project-scoped narration entry,
// auto-associated with the project's active mission when one exists.
type ActivityLogEntry struct {
	ID        string    `json:"id"`
	ProjectID string    `json:"projectId"`
	MissionID string    `json:"missionId,omitempty"`
	Actor     string    `json:"actor"`
	Kind      string    `json:"kind"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"createdAt"`
}

// HookEvent is one ingested lifecycle notification from an external
// agent-hook program, deduplicated on {projectId, correlationId,
// eventType} and retained for pre/post duration pairing.
type HookEvent struct {
	ID            string    `json:"id"`
	ProjectID     string    `json:"projectId"`
	CorrelationID string    `json:"correlationId,omitempty"`
	EventType     string    `json:"eventType"`
	Agent         string    `json:"agent"`
	Tool          string    `json:"tool,omitempty"`
	Status        string    `json:"status,omitempty"`
	Summary       string    `json:"summary,omitempty"`
	MissionID     string    `json:"missionId,omitempty"`
	OccurredAt    time.Time `json:"timestamp"`
	ReceivedAt    time.Time `json:"receivedAt"`
}

// DurationMs pairs a post_tool_use (or failure-variant) event with its
// matching pre_tool_use event by correlation identifier and returns the
// elapsed milliseconds. Pairing is computed read-side; no duration is
// persisted on either row.
func DurationMs(pre, post HookEvent) int64 {
	return post.OccurredAt.Sub(pre.OccurredAt).Milliseconds()
}

// HookEventTypes is the closed set of lifecycle event types the ingestor
// accepts; any other value is rejected as VALIDATION_ERROR.
var HookEventTypes = map[string]bool{
	"pre_tool_use":         true,
	"post_tool_use":        true,
	"post_tool_use_failed": true,
	"agent_started":        true,
	"agent_stopped":        true,
	"session_start":        true,
	"session_end":          true,
}
