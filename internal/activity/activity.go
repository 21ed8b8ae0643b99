// Package activity implements the append-only, project-scoped activity
// log, rendering Markdown entry bodies to HTML with goldmark the same
// way the teacher renders ticket descriptions for display.
package activity

import (
	"bytes"
	"time"

	"github.com/google/uuid"
	"github.com/yuin/goldmark"

	"github.com/ateam/orchestrator/board"
)

// Store is the subset of persistence the activity log needs.
type Store interface {
	AppendActivity(e *board.ActivityLogEntry) error
	ListActivity(projectID string, missionID string, limit int) ([]board.ActivityLogEntry, error)
	ActiveMissionID(projectID string) (string, error)
}

// Log appends and lists activity entries for a project.
type Log struct {
	store Store
	md    goldmark.Markdown
}

// New builds an activity log over a store.
func New(store Store) *Log {
	return &Log{store: store, md: goldmark.New()}
}

// Append records a new activity entry. missionID may be empty, in which
// case the store auto-associates the project's active mission.
func (l *Log) Append(projectID, missionID, actor, kind, body string) (*board.ActivityLogEntry, error) {
	e := &board.ActivityLogEntry{
		ID:        uuid.New().String(),
		ProjectID: projectID,
		MissionID: missionID,
		Actor:     actor,
		Kind:      kind,
		Body:      body,
		CreatedAt: time.Now(),
	}
	if err := l.store.AppendActivity(e); err != nil {
		return nil, err
	}
	return e, nil
}

// List returns a project's activity log, most recent first. When missionID
// is absent, it defaults to the project's current non-archived mission if
// one exists; otherwise it falls back to entries across the whole project.
func (l *Log) List(projectID, missionID string, limit int) ([]board.ActivityLogEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	if missionID == "" {
		if active, err := l.store.ActiveMissionID(projectID); err == nil {
			missionID = active
		}
	}
	return l.store.ListActivity(projectID, missionID, limit)
}

// RenderHTML renders an entry's Markdown body to sanitized-by-omission
// HTML (goldmark's default renderer does not execute raw HTML blocks)
// for clients that want to display rich activity text.
func (l *Log) RenderHTML(body string) (string, error) {
	var buf bytes.Buffer
	if err := l.md.Convert([]byte(body), &buf); err != nil {
		return "", err
	}
	return buf.String(), nil
}
