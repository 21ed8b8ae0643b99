package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/sony/gobreaker"

	"github.com/ateam/orchestrator/board"
	"github.com/ateam/orchestrator/internal/apierr"
)

// nullIfEmpty turns an empty string into a nil bind argument so the column
// stores SQL NULL rather than an empty string.
func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// circuitOpenDuration is how long the breaker stays open after tripping
// before allowing a single probe request through.
const circuitOpenDuration = 10 * time.Second

// Store implements transactional persistence of projects, stages, items,
// dependencies, claims, missions, work logs, activity, and hook events
// over SQLite.
type Store struct {
	db *DB
}

// NewStore creates a new SQLite-backed store.
func NewStore(db *DB) *Store {
	return &Store{db: db}
}

// withBreaker routes a transient-fault-prone database operation through
// the circuit breaker, isolating the board from a stretch of failing
// queries. The breaker's own rejections (open state, too many requests)
// become DATABASE_ERROR; errors returned by fn pass through unchanged.
// fn runs once per call; there is no retry.
func (s *Store) withBreaker(op string, fn func() error) error {
	_, err := s.db.cb.Execute(func() (any, error) {
		return nil, fn()
	})
	if err == nil {
		return nil
	}
	if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
		return apierr.New(apierr.CodeDatabaseError, "database unavailable: "+err.Error())
	}
	return err
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// --- Projects ---

// EnsureProject creates the project row if it does not already exist,
// grounding the project-scope guard's auto-create-on-first-use behavior.
func (s *Store) EnsureProject(id, displayName string) error {
	return s.withBreaker("ensure_project", func() error {
		_, err := s.db.Exec(`
			INSERT OR IGNORE INTO projects (id, display_name) VALUES (?, ?)
		`, id, displayName)
		if err != nil {
			return apierr.New(apierr.CodeDatabaseError, "failed to ensure project: "+err.Error())
		}
		return nil
	})
}

// ProjectExists reports whether a project with the given ID has been
// created.
func (s *Store) ProjectExists(id string) (bool, error) {
	var exists bool
	row := s.db.QueryRow(`SELECT EXISTS(SELECT 1 FROM projects WHERE id = ?)`, id)
	if err := row.Scan(&exists); err != nil {
		return false, apierr.New(apierr.CodeDatabaseError, "failed to check project: "+err.Error())
	}
	return exists, nil
}

// --- Stage config ---

// EnsureStages inserts the eight fixed stages for a project with
// unlimited WIP if they are not already present. Existing rows are left
// untouched so a previously configured WIP limit survives.
func (s *Store) EnsureStages(projectID string) error {
	return s.withBreaker("ensure_stages", func() error {
		tx, err := s.db.Begin()
		if err != nil {
			return apierr.New(apierr.CodeDatabaseError, err.Error())
		}
		defer tx.Rollback()

		for i, stage := range board.Stages {
			_, err := tx.Exec(`
				INSERT OR IGNORE INTO stages (project_id, name, ord, wip_limit)
				VALUES (?, ?, ?, NULL)
			`, projectID, string(stage), i)
			if err != nil {
				return apierr.New(apierr.CodeDatabaseError, "failed to seed stage: "+err.Error())
			}
		}
		return tx.Commit()
	})
}

// GetStageConfigs returns the configured stages for a project in
// canonical order.
func (s *Store) GetStageConfigs(projectID string) ([]board.StageConfig, error) {
	rows, err := s.db.Query(`
		SELECT project_id, name, ord, wip_limit FROM stages
		WHERE project_id = ? ORDER BY ord
	`, projectID)
	if err != nil {
		return nil, apierr.New(apierr.CodeDatabaseError, err.Error())
	}
	defer rows.Close()

	var out []board.StageConfig
	for rows.Next() {
		var sc board.StageConfig
		var limit sql.NullInt64
		if err := rows.Scan(&sc.ProjectID, &sc.Name, &sc.Order, &limit); err != nil {
			return nil, apierr.New(apierr.CodeDatabaseError, err.Error())
		}
		if limit.Valid {
			v := int(limit.Int64)
			sc.WIPLimit = &v
		}
		out = append(out, sc)
	}
	return out, nil
}

// SetWIPLimit updates the WIP limit for one stage, nil meaning unlimited.
func (s *Store) SetWIPLimit(projectID string, stage board.Stage, limit *int) error {
	return s.withBreaker("set_wip_limit", func() error {
		var limitArg any
		if limit != nil {
			limitArg = *limit
		}
		res, err := s.db.Exec(`
			UPDATE stages SET wip_limit = ? WHERE project_id = ? AND name = ?
		`, limitArg, projectID, string(stage))
		if err != nil {
			return apierr.New(apierr.CodeDatabaseError, err.Error())
		}
		n, _ := res.RowsAffected()
		if n == 0 {
			return apierr.New(apierr.CodeInvalidStage, fmt.Sprintf("unknown stage %q", stage))
		}
		return nil
	})
}

// --- Items ---

// CreateItem inserts a new item in the briefings stage.
func (s *Store) CreateItem(it *board.Item) error {
	return s.withBreaker("create_item", func() error {
		_, err := s.db.Exec(`
			INSERT INTO items (
				id, project_id, title, description, item_type, stage, priority,
				output_test, output_impl, output_types, created_at, updated_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`,
			it.ID, it.ProjectID, it.Title, it.Description, string(it.Type), string(it.Stage), string(it.Priority),
			nullIfEmpty(it.Outputs.Test), nullIfEmpty(it.Outputs.Impl), nullIfEmpty(it.Outputs.Types),
			it.CreatedAt, it.UpdatedAt,
		)
		if err != nil {
			return apierr.New(apierr.CodeDatabaseError, "failed to create item: "+err.Error())
		}
		return s.addHistory(it.ID, "", it.Stage, "system", "item created")
	})
}

func scanItem(row interface{ Scan(...any) error }) (*board.Item, error) {
	var it board.Item
	var testOut, implOut, typesOut, assignedAgent sql.NullString
	var completedAt, archivedAt sql.NullTime
	err := row.Scan(
		&it.ID, &it.ProjectID, &it.Title, &it.Description, &it.Type, &it.Stage, &it.Priority,
		&assignedAgent, &it.RejectionCount,
		&testOut, &implOut, &typesOut,
		&it.CreatedAt, &it.UpdatedAt, &completedAt, &archivedAt,
	)
	if err != nil {
		return nil, err
	}
	it.Outputs = board.Outputs{Test: testOut.String, Impl: implOut.String, Types: typesOut.String}
	it.AssignedAgent = assignedAgent.String
	if completedAt.Valid {
		it.CompletedAt = &completedAt.Time
	}
	if archivedAt.Valid {
		it.ArchivedAt = &archivedAt.Time
	}
	return &it, nil
}

const itemColumns = `
	id, project_id, title, description, item_type, stage, priority,
	assigned_agent, rejection_count,
	output_test, output_impl, output_types,
	created_at, updated_at, completed_at, archived_at
`

// GetItem retrieves one item by ID.
func (s *Store) GetItem(projectID, id string) (*board.Item, error) {
	row := s.db.QueryRow(`SELECT `+itemColumns+` FROM items WHERE id = ? AND project_id = ?`, id, projectID)
	it, err := scanItem(row)
	if err == sql.ErrNoRows {
		return nil, apierr.New(apierr.CodeItemNotFound, "item not found: "+id)
	}
	if err != nil {
		return nil, apierr.New(apierr.CodeDatabaseError, err.Error())
	}
	return it, nil
}

// ListItems returns every non-archived item in a project, ordered by
// stage then priority then creation. includeArchived also returns
// archived items.
func (s *Store) ListItems(projectID string, includeArchived bool) ([]board.Item, error) {
	query := `SELECT ` + itemColumns + ` FROM items WHERE project_id = ?`
	if !includeArchived {
		query += ` AND archived_at IS NULL`
	}
	query += ` ORDER BY stage, CASE priority
		WHEN 'critical' THEN 0 WHEN 'high' THEN 1 WHEN 'medium' THEN 2 WHEN 'low' THEN 3 ELSE 4 END, created_at`

	rows, err := s.db.Query(query, projectID)
	if err != nil {
		return nil, apierr.New(apierr.CodeDatabaseError, err.Error())
	}
	defer rows.Close()

	var items []board.Item
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, apierr.New(apierr.CodeDatabaseError, err.Error())
		}
		items = append(items, *it)
	}
	return items, nil
}

// UpdateItemFields applies a partial update; nil pointer fields are left
// unchanged, matching the teacher's pointer-field PATCH convention.
type UpdateItemFields struct {
	Title       *string
	Description *string
	Priority    *board.Priority
	Outputs     *board.Outputs
}

// UpdateItem applies a partial update to an item.
func (s *Store) UpdateItem(projectID, id string, fields UpdateItemFields) (*board.Item, error) {
	it, err := s.GetItem(projectID, id)
	if err != nil {
		return nil, err
	}
	if fields.Title != nil {
		it.Title = *fields.Title
	}
	if fields.Description != nil {
		it.Description = *fields.Description
	}
	if fields.Priority != nil {
		it.Priority = *fields.Priority
	}
	if fields.Outputs != nil {
		it.Outputs = *fields.Outputs
	}
	it.UpdatedAt = time.Now()

	err = s.withBreaker("update_item", func() error {
		_, err := s.db.Exec(`
			UPDATE items SET title=?, description=?, priority=?,
				output_test=?, output_impl=?, output_types=?, updated_at=?
			WHERE id = ? AND project_id = ?
		`, it.Title, it.Description, string(it.Priority),
			nullIfEmpty(it.Outputs.Test), nullIfEmpty(it.Outputs.Impl), nullIfEmpty(it.Outputs.Types),
			it.UpdatedAt, id, projectID)
		if err != nil {
			return apierr.New(apierr.CodeDatabaseError, err.Error())
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return it, nil
}

// MoveItem transitions an item to a new stage within a single
// transaction: it updates the stage, stamps completedAt when the item
// enters done, and appends a history row. The caller is responsible for
// transition-matrix, WIP, dependency, and collision validation before
// calling MoveItem — the store only enforces atomicity.
func (s *Store) MoveItem(projectID, id string, from, to board.Stage, changedBy, note string) (*board.Item, error) {
	var updated *board.Item
	err := s.withBreaker("move_item", func() error {
		tx, err := s.db.Begin()
		if err != nil {
			return apierr.New(apierr.CodeDatabaseError, err.Error())
		}
		defer tx.Rollback()

		now := time.Now()
		var completedAtArg any
		if to == board.StageDone {
			completedAtArg = now
		}

		_, err = tx.Exec(`
			UPDATE items SET stage=?, updated_at=?, completed_at=COALESCE(?, completed_at)
			WHERE id=? AND project_id=?
		`, string(to), now, completedAtArg, id, projectID)
		if err != nil {
			return apierr.New(apierr.CodeDatabaseError, "failed to move item: "+err.Error())
		}

		_, err = tx.Exec(`
			INSERT INTO item_history (item_id, from_stage, to_stage, changed_by, note)
			VALUES (?, ?, ?, ?, ?)
		`, id, nullIfEmpty(string(from)), string(to), changedBy, note)
		if err != nil {
			return apierr.New(apierr.CodeDatabaseError, "failed to record history: "+err.Error())
		}

		if err := tx.Commit(); err != nil {
			return apierr.New(apierr.CodeDatabaseError, err.Error())
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	updated, err = s.GetItem(projectID, id)
	return updated, err
}

// ClearAssignedAgent nulls an item's assignedAgent field, used by the
// claim manager when a claim is released or force-moved away.
func (s *Store) ClearAssignedAgent(projectID, id string) error {
	return s.withBreaker("clear_assigned_agent", func() error {
		_, err := s.db.Exec(`UPDATE items SET assigned_agent=NULL WHERE id=? AND project_id=?`, id, projectID)
		if err != nil {
			return apierr.New(apierr.CodeDatabaseError, err.Error())
		}
		return nil
	})
}

// SetAssignedAgent sets an item's assignedAgent field to match the agent
// that currently holds its claim.
func (s *Store) SetAssignedAgent(projectID, id, agentID string) error {
	return s.withBreaker("set_assigned_agent", func() error {
		_, err := s.db.Exec(`UPDATE items SET assigned_agent=? WHERE id=? AND project_id=?`, agentID, id, projectID)
		if err != nil {
			return apierr.New(apierr.CodeDatabaseError, err.Error())
		}
		return nil
	})
}

// IncrementRejectionCount bumps an item's rejection counter by one.
func (s *Store) IncrementRejectionCount(projectID, id string) error {
	return s.withBreaker("increment_rejection_count", func() error {
		_, err := s.db.Exec(`UPDATE items SET rejection_count = rejection_count + 1 WHERE id=? AND project_id=?`, id, projectID)
		if err != nil {
			return apierr.New(apierr.CodeDatabaseError, err.Error())
		}
		return nil
	})
}

// ArchiveItem soft-deletes an item by stamping archivedAt.
func (s *Store) ArchiveItem(projectID, id string) error {
	return s.withBreaker("archive_item", func() error {
		_, err := s.db.Exec(`UPDATE items SET archived_at=? WHERE id=? AND project_id=?`, time.Now(), id, projectID)
		if err != nil {
			return apierr.New(apierr.CodeDatabaseError, err.Error())
		}
		return nil
	})
}

func (s *Store) addHistory(itemID string, from, to board.Stage, changedBy, note string) error {
	_, err := s.db.Exec(`
		INSERT INTO item_history (item_id, from_stage, to_stage, changed_by, note)
		VALUES (?, ?, ?, ?, ?)
	`, itemID, nullIfEmpty(string(from)), string(to), changedBy, note)
	if err != nil {
		return apierr.New(apierr.CodeDatabaseError, "failed to add history: "+err.Error())
	}
	return nil
}

// ItemHistory returns an item's recorded transitions, oldest first.
func (s *Store) ItemHistory(itemID string) ([]board.HistoryEntry, error) {
	rows, err := s.db.Query(`
		SELECT item_id, from_stage, to_stage, changed_by, note, created_at
		FROM item_history WHERE item_id = ? ORDER BY id
	`, itemID)
	if err != nil {
		return nil, apierr.New(apierr.CodeDatabaseError, err.Error())
	}
	defer rows.Close()

	var out []board.HistoryEntry
	for rows.Next() {
		var h board.HistoryEntry
		var from sql.NullString
		if err := rows.Scan(&h.ItemID, &from, &h.ToStage, &h.ChangedBy, &h.Note, &h.CreatedAt); err != nil {
			return nil, apierr.New(apierr.CodeDatabaseError, err.Error())
		}
		h.FromStage = board.Stage(from.String)
		out = append(out, h)
	}
	return out, nil
}

// AllHistory returns every history entry for a project's items, used by
// the health computation's rework-rate signal.
func (s *Store) AllHistory(projectID string) ([]board.HistoryEntry, error) {
	rows, err := s.db.Query(`
		SELECT h.item_id, h.from_stage, h.to_stage, h.changed_by, h.note, h.created_at
		FROM item_history h
		JOIN items i ON i.id = h.item_id
		WHERE i.project_id = ?
		ORDER BY h.id
	`, projectID)
	if err != nil {
		return nil, apierr.New(apierr.CodeDatabaseError, err.Error())
	}
	defer rows.Close()

	var out []board.HistoryEntry
	for rows.Next() {
		var h board.HistoryEntry
		var from sql.NullString
		if err := rows.Scan(&h.ItemID, &from, &h.ToStage, &h.ChangedBy, &h.Note, &h.CreatedAt); err != nil {
			return nil, apierr.New(apierr.CodeDatabaseError, err.Error())
		}
		h.FromStage = board.Stage(from.String)
		out = append(out, h)
	}
	return out, nil
}

// --- Item dependencies ---

// AddDependency inserts an edge (itemID depends on dependsOnID).
func (s *Store) AddDependency(itemID, dependsOnID string) error {
	return s.withBreaker("add_dependency", func() error {
		_, err := s.db.Exec(`
			INSERT INTO item_dependencies (item_id, depends_on_id) VALUES (?, ?)
		`, itemID, dependsOnID)
		if isUniqueViolation(err) {
			return nil // edge already present; idempotent
		}
		if err != nil {
			return apierr.New(apierr.CodeDatabaseError, err.Error())
		}
		return nil
	})
}

// ProjectDependencies returns every dependency edge among items in a
// project, used for cycle detection and readiness computation.
func (s *Store) ProjectDependencies(projectID string) ([]board.ItemDependency, error) {
	rows, err := s.db.Query(`
		SELECT d.item_id, d.depends_on_id
		FROM item_dependencies d
		JOIN items i ON i.id = d.item_id
		WHERE i.project_id = ?
	`, projectID)
	if err != nil {
		return nil, apierr.New(apierr.CodeDatabaseError, err.Error())
	}
	defer rows.Close()

	var out []board.ItemDependency
	for rows.Next() {
		var d board.ItemDependency
		if err := rows.Scan(&d.ItemID, &d.DependsOnID); err != nil {
			return nil, apierr.New(apierr.CodeDatabaseError, err.Error())
		}
		out = append(out, d)
	}
	return out, nil
}

// --- Agent claims ---

// CreateClaim inserts an active claim. The two partial unique indexes on
// agent_claims (one per item, one per project+agent) turn a race between
// two acquire attempts into a UNIQUE constraint failure, which CreateClaim
// reports as CLAIM_CONFLICT whichever index was violated.
func (s *Store) CreateClaim(c *board.AgentClaim) error {
	_, err := s.db.Exec(`
		INSERT INTO agent_claims (id, project_id, item_id, agent_id, claimed_at)
		VALUES (?, ?, ?, ?, ?)
	`, c.ID, c.ProjectID, c.ItemID, c.AgentID, c.ClaimedAt)
	if isUniqueViolation(err) {
		return apierr.New(apierr.CodeClaimConflict, "claim already held")
	}
	if err != nil {
		return apierr.New(apierr.CodeDatabaseError, err.Error())
	}
	return nil
}

// ActiveClaimForItem returns the active claim on an item, if any.
func (s *Store) ActiveClaimForItem(itemID string) (*board.AgentClaim, error) {
	row := s.db.QueryRow(`
		SELECT id, project_id, item_id, agent_id, claimed_at, released_at
		FROM agent_claims WHERE item_id = ? AND released_at IS NULL
	`, itemID)
	return scanClaim(row)
}

// ActiveClaimForAgent returns the agent's active claim within a project,
// if any.
func (s *Store) ActiveClaimForAgent(projectID, agentID string) (*board.AgentClaim, error) {
	row := s.db.QueryRow(`
		SELECT id, project_id, item_id, agent_id, claimed_at, released_at
		FROM agent_claims WHERE project_id = ? AND agent_id = ? AND released_at IS NULL
	`, projectID, agentID)
	return scanClaim(row)
}

func scanClaim(row interface{ Scan(...any) error }) (*board.AgentClaim, error) {
	var c board.AgentClaim
	var released sql.NullTime
	err := row.Scan(&c.ID, &c.ProjectID, &c.ItemID, &c.AgentID, &c.ClaimedAt, &released)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, apierr.New(apierr.CodeDatabaseError, err.Error())
	}
	if released.Valid {
		c.ReleasedAt = &released.Time
	}
	return &c, nil
}

// ReleaseClaim stamps releasedAt on the active claim for an item.
func (s *Store) ReleaseClaim(itemID string) error {
	res, err := s.db.Exec(`
		UPDATE agent_claims SET released_at = ? WHERE item_id = ? AND released_at IS NULL
	`, time.Now(), itemID)
	if err != nil {
		return apierr.New(apierr.CodeDatabaseError, err.Error())
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return apierr.New(apierr.CodeNotClaimed, "item has no active claim")
	}
	return nil
}

// --- Missions ---

// CreateMission inserts a new mission in the initializing state.
func (s *Store) CreateMission(m *board.Mission) error {
	_, err := s.db.Exec(`
		INSERT INTO missions (id, project_id, title, prd_path, state, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, m.ID, m.ProjectID, m.Title, nullIfEmpty(m.PRDPath), string(m.State), m.CreatedAt, m.UpdatedAt)
	if err != nil {
		return apierr.New(apierr.CodeDatabaseError, err.Error())
	}
	return nil
}

const missionColumns = `
	id, project_id, title, prd_path, state, force_archived,
	precheck_results, postcheck_results, final_review, post_checks, documentation,
	created_at, updated_at, completed_at, archived_at
`

// GetMission retrieves a mission by ID.
func (s *Store) GetMission(projectID, id string) (*board.Mission, error) {
	row := s.db.QueryRow(`SELECT `+missionColumns+` FROM missions WHERE id = ? AND project_id = ?`, id, projectID)
	m, err := scanMission(row)
	if err == sql.ErrNoRows {
		return nil, apierr.New(apierr.CodeNotFound, "mission not found: "+id)
	}
	if err != nil {
		return nil, apierr.New(apierr.CodeDatabaseError, err.Error())
	}
	return m, nil
}

func scanMission(row interface{ Scan(...any) error }) (*board.Mission, error) {
	var m board.Mission
	var forceArchived int
	var prdPath, precheck, postcheck, finalReview, postChecks, documentation sql.NullString
	var completedAt, archivedAt sql.NullTime
	err := row.Scan(&m.ID, &m.ProjectID, &m.Title, &prdPath, &m.State, &forceArchived,
		&precheck, &postcheck, &finalReview, &postChecks, &documentation,
		&m.CreatedAt, &m.UpdatedAt, &completedAt, &archivedAt)
	if err != nil {
		return nil, err
	}
	m.PRDPath = prdPath.String
	m.ForceArchived = forceArchived != 0
	if precheck.Valid {
		_ = json.Unmarshal([]byte(precheck.String), &m.PrecheckResults)
	}
	if postcheck.Valid {
		_ = json.Unmarshal([]byte(postcheck.String), &m.PostcheckResults)
	}
	if finalReview.Valid {
		m.FinalReview = json.RawMessage(finalReview.String)
	}
	if postChecks.Valid {
		m.PostChecks = json.RawMessage(postChecks.String)
	}
	if documentation.Valid {
		m.Documentation = json.RawMessage(documentation.String)
	}
	if completedAt.Valid {
		m.CompletedAt = &completedAt.Time
	}
	if archivedAt.Valid {
		m.ArchivedAt = &archivedAt.Time
	}
	return &m, nil
}

// UpdateMissionChecks persists the precheck or postcheck result map
// verbatim, keyed by which phase just ran.
func (s *Store) UpdateMissionChecks(projectID, id string, phase string, results map[string]bool) error {
	encoded, err := json.Marshal(results)
	if err != nil {
		return apierr.New(apierr.CodeDatabaseError, err.Error())
	}
	column := "precheck_results"
	if phase == "postcheck" {
		column = "postcheck_results"
	}
	_, err = s.db.Exec(`UPDATE missions SET `+column+` = ? WHERE id = ? AND project_id = ?`, string(encoded), id, projectID)
	if err != nil {
		return apierr.New(apierr.CodeDatabaseError, err.Error())
	}
	return nil
}

// UpdateMissionSubstates persists the completion panel's final-review,
// post-checks, and documentation sub-records verbatim. A nil argument
// leaves that column unchanged.
func (s *Store) UpdateMissionSubstates(projectID, id string, finalReview, postChecks, documentation json.RawMessage) error {
	_, err := s.db.Exec(`
		UPDATE missions SET
			final_review = COALESCE(?, final_review),
			post_checks = COALESCE(?, post_checks),
			documentation = COALESCE(?, documentation)
		WHERE id = ? AND project_id = ?
	`, rawArg(finalReview), rawArg(postChecks), rawArg(documentation), id, projectID)
	if err != nil {
		return apierr.New(apierr.CodeDatabaseError, err.Error())
	}
	return nil
}

func rawArg(raw json.RawMessage) any {
	if raw == nil {
		return nil
	}
	return string(raw)
}

// ArchiveMissionItems soft-archives every item linked to a mission,
// stamping archivedAt on items that are not already archived.
func (s *Store) ArchiveMissionItems(projectID, missionID string) error {
	_, err := s.db.Exec(`
		UPDATE items SET archived_at = ?
		WHERE project_id = ? AND archived_at IS NULL
		AND id IN (SELECT item_id FROM mission_items WHERE mission_id = ?)
	`, time.Now(), projectID, missionID)
	if err != nil {
		return apierr.New(apierr.CodeDatabaseError, err.Error())
	}
	return nil
}

// UpdateMissionState transitions a mission to a new state.
func (s *Store) UpdateMissionState(projectID, id string, state board.MissionState) error {
	now := time.Now()
	var completedArg, archivedArg any
	if state == board.MissionCompleted {
		completedArg = now
	}
	if state == board.MissionArchived {
		archivedArg = now
	}
	_, err := s.db.Exec(`
		UPDATE missions SET state=?, updated_at=?,
			completed_at=COALESCE(?, completed_at),
			archived_at=COALESCE(?, archived_at)
		WHERE id=? AND project_id=?
	`, string(state), now, completedArg, archivedArg, id, projectID)
	if err != nil {
		return apierr.New(apierr.CodeDatabaseError, err.Error())
	}
	return nil
}

// ForceArchiveMission marks a mission archived regardless of its current
// state, recording that the archival was forced.
func (s *Store) ForceArchiveMission(projectID, id string) error {
	_, err := s.db.Exec(`
		UPDATE missions SET state=?, force_archived=1, archived_at=?, updated_at=?
		WHERE id=? AND project_id=?
	`, string(board.MissionArchived), time.Now(), time.Now(), id, projectID)
	if err != nil {
		return apierr.New(apierr.CodeDatabaseError, err.Error())
	}
	return nil
}

// LinkMissionItem associates an item with a mission.
func (s *Store) LinkMissionItem(missionID, itemID string) error {
	_, err := s.db.Exec(`
		INSERT OR IGNORE INTO mission_items (mission_id, item_id) VALUES (?, ?)
	`, missionID, itemID)
	if err != nil {
		return apierr.New(apierr.CodeDatabaseError, err.Error())
	}
	return nil
}

// MissionItemIDs returns the IDs of items linked to a mission.
func (s *Store) MissionItemIDs(missionID string) ([]string, error) {
	rows, err := s.db.Query(`SELECT item_id FROM mission_items WHERE mission_id = ?`, missionID)
	if err != nil {
		return nil, apierr.New(apierr.CodeDatabaseError, err.Error())
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, apierr.New(apierr.CodeDatabaseError, err.Error())
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// ActiveMissionID returns the ID of the most recently created
// non-archived mission in a project, or "" if none.
func (s *Store) ActiveMissionID(projectID string) (string, error) {
	var id sql.NullString
	row := s.db.QueryRow(`
		SELECT id FROM missions
		WHERE project_id = ? AND state != ?
		ORDER BY created_at DESC LIMIT 1
	`, projectID, string(board.MissionArchived))
	if err := row.Scan(&id); err != nil && err != sql.ErrNoRows {
		return "", apierr.New(apierr.CodeDatabaseError, err.Error())
	}
	return id.String, nil
}

// LatestMissionID returns the ID of the most recently created mission in
// a project regardless of state (including archived), or "" if none
// exists. Used by operations like archive(complete=true) that must stay
// terminal-idempotent against a mission that is already archived.
func (s *Store) LatestMissionID(projectID string) (string, error) {
	var id sql.NullString
	row := s.db.QueryRow(`
		SELECT id FROM missions
		WHERE project_id = ?
		ORDER BY created_at DESC LIMIT 1
	`, projectID)
	if err := row.Scan(&id); err != nil && err != sql.ErrNoRows {
		return "", apierr.New(apierr.CodeDatabaseError, err.Error())
	}
	return id.String, nil
}

// --- Work log ---

// AddWorkLogEntry appends a work log entry for an item.
func (s *Store) AddWorkLogEntry(e *board.WorkLogEntry) error {
	action := e.Action
	if action == "" {
		action = board.WorkLogNote
	}
	_, err := s.db.Exec(`
		INSERT INTO work_log_entries (id, item_id, agent_id, action, body, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, e.ID, e.ItemID, e.AgentID, string(action), e.Body, e.CreatedAt)
	if err != nil {
		return apierr.New(apierr.CodeDatabaseError, err.Error())
	}
	return nil
}

// WorkLog returns an item's work log entries, oldest first.
func (s *Store) WorkLog(itemID string) ([]board.WorkLogEntry, error) {
	rows, err := s.db.Query(`
		SELECT id, item_id, agent_id, action, body, created_at
		FROM work_log_entries WHERE item_id = ? ORDER BY created_at
	`, itemID)
	if err != nil {
		return nil, apierr.New(apierr.CodeDatabaseError, err.Error())
	}
	defer rows.Close()

	var out []board.WorkLogEntry
	for rows.Next() {
		var e board.WorkLogEntry
		var action string
		if err := rows.Scan(&e.ID, &e.ItemID, &e.AgentID, &action, &e.Body, &e.CreatedAt); err != nil {
			return nil, apierr.New(apierr.CodeDatabaseError, err.Error())
		}
		e.Action = board.WorkLogAction(action)
		out = append(out, e)
	}
	return out, nil
}

// --- Activity log ---

// AppendActivity inserts an activity log entry, auto-associating it with
// the project's active mission when one exists and the caller did not
// supply one.
func (s *Store) AppendActivity(e *board.ActivityLogEntry) error {
	if e.MissionID == "" {
		if active, err := s.ActiveMissionID(e.ProjectID); err == nil {
			e.MissionID = active
		}
	}
	_, err := s.db.Exec(`
		INSERT INTO activity_log_entries (id, project_id, mission_id, actor, kind, body, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, e.ID, e.ProjectID, nullIfEmpty(e.MissionID), e.Actor, e.Kind, e.Body, e.CreatedAt)
	if err != nil {
		return apierr.New(apierr.CodeDatabaseError, err.Error())
	}
	return nil
}

// ListActivity returns a project's activity log, most recent first,
// bounded by limit and optionally filtered to one mission.
func (s *Store) ListActivity(projectID string, missionID string, limit int) ([]board.ActivityLogEntry, error) {
	query := `
		SELECT id, project_id, mission_id, actor, kind, body, created_at
		FROM activity_log_entries WHERE project_id = ?
	`
	args := []any{projectID}
	if missionID != "" {
		query += ` AND mission_id = ?`
		args = append(args, missionID)
	}
	query += ` ORDER BY created_at DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, apierr.New(apierr.CodeDatabaseError, err.Error())
	}
	defer rows.Close()

	var out []board.ActivityLogEntry
	for rows.Next() {
		var e board.ActivityLogEntry
		var missionID sql.NullString
		if err := rows.Scan(&e.ID, &e.ProjectID, &missionID, &e.Actor, &e.Kind, &e.Body, &e.CreatedAt); err != nil {
			return nil, apierr.New(apierr.CodeDatabaseError, err.Error())
		}
		e.MissionID = missionID.String
		out = append(out, e)
	}
	return out, nil
}

// --- Hook events ---

// InsertHookEvent inserts one hook event, silently treating a dedup-key
// collision as "already recorded" rather than an error so the ingestor
// can report skipped counts instead of failing the batch.
func (s *Store) InsertHookEvent(e *board.HookEvent) (inserted bool, err error) {
	_, err = s.db.Exec(`
		INSERT INTO hook_events (
			id, project_id, correlation_id, event_type, agent, tool, status, summary, mission_id,
			occurred_at, received_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, e.ID, e.ProjectID, nullIfEmpty(e.CorrelationID), e.EventType, e.Agent,
		nullIfEmpty(e.Tool), nullIfEmpty(e.Status), nullIfEmpty(e.Summary), nullIfEmpty(e.MissionID),
		e.OccurredAt, e.ReceivedAt)
	if isUniqueViolation(err) {
		return false, nil
	}
	if err != nil {
		return false, apierr.New(apierr.CodeDatabaseError, err.Error())
	}
	return true, nil
}

// ListHookEvents returns a project's hook events ordered by occurrence,
// used both for display and for read-side pre/post duration pairing.
func (s *Store) ListHookEvents(projectID string) ([]board.HookEvent, error) {
	rows, err := s.db.Query(`
		SELECT id, project_id, correlation_id, event_type, agent, tool, status, summary, mission_id,
			occurred_at, received_at
		FROM hook_events WHERE project_id = ? ORDER BY occurred_at
	`, projectID)
	if err != nil {
		return nil, apierr.New(apierr.CodeDatabaseError, err.Error())
	}
	defer rows.Close()

	var out []board.HookEvent
	for rows.Next() {
		var e board.HookEvent
		var corr, tool, status, summary, missionID sql.NullString
		if err := rows.Scan(&e.ID, &e.ProjectID, &corr, &e.EventType, &e.Agent, &tool, &status, &summary,
			&missionID, &e.OccurredAt, &e.ReceivedAt); err != nil {
			return nil, apierr.New(apierr.CodeDatabaseError, err.Error())
		}
		e.CorrelationID, e.Tool, e.Status, e.Summary, e.MissionID = corr.String, tool.String, status.String, summary.String, missionID.String
		out = append(out, e)
	}
	return out, nil
}

// PruneHookEvents deletes hook events whose timestamp is before the cutoff, except
// those linked to the project's current non-archived mission, returning
// the number of rows removed.
func (s *Store) PruneHookEvents(projectID string, olderThan time.Time) (int64, error) {
	activeMissionID, err := s.ActiveMissionID(projectID)
	if err != nil {
		return 0, err
	}
	res, err := s.db.Exec(`
		DELETE FROM hook_events
		WHERE project_id = ? AND occurred_at < ?
		AND (? = '' OR mission_id IS NULL OR mission_id != ?)
	`, projectID, olderThan, activeMissionID, activeMissionID)
	if err != nil {
		return 0, apierr.New(apierr.CodeDatabaseError, err.Error())
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// ActiveClaimsForProject returns every active claim in a project, used to
// build the board snapshot's {claims} field.
func (s *Store) ActiveClaimsForProject(projectID string) ([]board.AgentClaim, error) {
	rows, err := s.db.Query(`
		SELECT id, project_id, item_id, agent_id, claimed_at, released_at
		FROM agent_claims WHERE project_id = ? AND released_at IS NULL
	`, projectID)
	if err != nil {
		return nil, apierr.New(apierr.CodeDatabaseError, err.Error())
	}
	defer rows.Close()

	var out []board.AgentClaim
	for rows.Next() {
		var c board.AgentClaim
		var released sql.NullTime
		if err := rows.Scan(&c.ID, &c.ProjectID, &c.ItemID, &c.AgentID, &c.ClaimedAt, &released); err != nil {
			return nil, apierr.New(apierr.CodeDatabaseError, err.Error())
		}
		if released.Valid {
			c.ReleasedAt = &released.Time
		}
		out = append(out, c)
	}
	return out, nil
}

// ListMissions returns every mission in a project, most recent first.
func (s *Store) ListMissions(projectID string) ([]board.Mission, error) {
	rows, err := s.db.Query(`SELECT `+missionColumns+`FROM missions WHERE project_id = ? ORDER BY created_at DESC`, projectID)
	if err != nil {
		return nil, apierr.New(apierr.CodeDatabaseError, err.Error())
	}
	defer rows.Close()

	var out []board.Mission
	for rows.Next() {
		m, err := scanMission(rows)
		if err != nil {
			return nil, apierr.New(apierr.CodeDatabaseError, err.Error())
		}
		out = append(out, *m)
	}
	return out, nil
}

// ListProjects returns every known project.
func (s *Store) ListProjects() ([]board.Project, error) {
	rows, err := s.db.Query(`SELECT id, display_name, created_at FROM projects ORDER BY created_at`)
	if err != nil {
		return nil, apierr.New(apierr.CodeDatabaseError, err.Error())
	}
	defer rows.Close()

	var out []board.Project
	for rows.Next() {
		var p board.Project
		if err := rows.Scan(&p.ID, &p.DisplayName, &p.CreatedAt); err != nil {
			return nil, apierr.New(apierr.CodeDatabaseError, err.Error())
		}
		out = append(out, p)
	}
	return out, nil
}
