// Package claims implements the claim manager: race-free exclusive
// custody of one item by one agent at a time, grounded on the store's
// two partial unique indexes (one per item, one per project+agent) to
// turn acquisition races into constraint failures rather than lost
// updates.
package claims

import (
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/ateam/orchestrator/board"
	"github.com/ateam/orchestrator/internal/apierr"
)

// Store is the subset of the persistence layer the claim manager needs.
type Store interface {
	GetItem(projectID, id string) (*board.Item, error)
	ActiveClaimForItem(itemID string) (*board.AgentClaim, error)
	ActiveClaimForAgent(projectID, agentID string) (*board.AgentClaim, error)
	CreateClaim(c *board.AgentClaim) error
	ReleaseClaim(itemID string) error
	SetAssignedAgent(projectID, id, agentID string) error
	ClearAssignedAgent(projectID, id string) error
	AddWorkLogEntry(e *board.WorkLogEntry) error
	MoveItem(projectID, id string, from, to board.Stage, changedBy, note string) (*board.Item, error)
}

// roster is the named cast of agents the spec's glossary calls out. It is
// only enforced when strict mode is on; the project's claim history is not
// otherwise limited to this set.
var roster = map[string]bool{
	"Hannibal": true, "Face": true, "Murdock": true, "B.A.": true,
	"Lynch": true, "Amy": true, "Tawnia": true,
}

// strictAgentsEnv, when set to "true", rejects claims from agents outside
// the named roster with VALIDATION_ERROR instead of allowing any string.
const strictAgentsEnv = "ATEAM_STRICT_AGENTS"

func strictAgentsEnabled() bool {
	return os.Getenv(strictAgentsEnv) == "true"
}

// Manager grants and revokes item custody.
type Manager struct {
	store Store
}

// New builds a claim manager over a store.
func New(store Store) *Manager {
	return &Manager{store: store}
}

// Claim acquires custody of item for agent. It fails with CLAIM_CONFLICT
// if the item already has an active claim, and AGENT_BUSY if the agent
// already holds a different active claim in the project.
func (m *Manager) Claim(projectID, itemID, agentID string) (*board.AgentClaim, error) {
	if strictAgentsEnabled() && !roster[agentID] {
		return nil, apierr.WithDetails(apierr.CodeValidation, "agent is not in the roster",
			map[string]any{"agent": agentID})
	}

	item, err := m.store.GetItem(projectID, itemID)
	if err != nil {
		return nil, err
	}

	if existing, err := m.store.ActiveClaimForItem(itemID); err != nil {
		return nil, err
	} else if existing != nil {
		return nil, apierr.WithDetails(apierr.CodeClaimConflict, "item already claimed",
			map[string]any{"claimedBy": existing.AgentID})
	}

	if existing, err := m.store.ActiveClaimForAgent(projectID, agentID); err != nil {
		return nil, err
	} else if existing != nil {
		return nil, apierr.WithDetails(apierr.CodeAgentBusy, "agent already holds a claim",
			map[string]any{"itemId": existing.ItemID})
	}

	claim := &board.AgentClaim{
		ID:        uuid.New().String(),
		ProjectID: projectID,
		ItemID:    itemID,
		AgentID:   agentID,
		ClaimedAt: time.Now(),
	}
	if err := m.store.CreateClaim(claim); err != nil {
		return nil, err
	}
	if err := m.store.SetAssignedAgent(projectID, item.ID, agentID); err != nil {
		return nil, err
	}
	return claim, nil
}

// Release drops an item's active claim. Releasing an unclaimed item is
// idempotent and succeeds without state change, per the administrative
// idempotency rule.
func (m *Manager) Release(projectID, itemID string) error {
	existing, err := m.store.ActiveClaimForItem(itemID)
	if err != nil {
		return err
	}
	if existing == nil {
		return nil
	}
	if err := m.store.ReleaseClaim(itemID); err != nil {
		return err
	}
	return m.store.ClearAssignedAgent(projectID, itemID)
}

// ReleaseForMove is called by the board engine before applying a move
// initiated by an agent different from the item's current claim holder;
// it silently releases the prior claim so the move can proceed.
func (m *Manager) ReleaseForMove(projectID, itemID, movingAgentID string) error {
	existing, err := m.store.ActiveClaimForItem(itemID)
	if err != nil {
		return err
	}
	if existing == nil || existing.AgentID == movingAgentID {
		return nil
	}
	return m.Release(projectID, itemID)
}

// Outcome is the result an agent reports when it finishes work on a
// claimed item.
type Outcome string

const (
	OutcomeCompleted Outcome = "completed"
	OutcomeBlocked   Outcome = "blocked"
)

// Stop atomically verifies the claim is held by agent, appends a work log
// entry, releases the claim, clears the item's assigned agent, and moves
// the item to review (outcome=completed) or blocked (outcome=blocked).
func (m *Manager) Stop(projectID, itemID, agentID, summary string, outcome Outcome) (*board.Item, error) {
	claim, err := m.store.ActiveClaimForItem(itemID)
	if err != nil {
		return nil, err
	}
	if claim == nil {
		return nil, apierr.New(apierr.CodeNotClaimed, "item has no active claim")
	}
	if claim.AgentID != agentID {
		return nil, apierr.WithDetails(apierr.CodeClaimMismatch, "claim held by a different agent",
			map[string]any{"claimedBy": claim.AgentID})
	}

	action := board.WorkLogCompleted
	if outcome == OutcomeBlocked {
		action = board.WorkLogRejected
	}
	if err := m.store.AddWorkLogEntry(&board.WorkLogEntry{
		ID: newWorkLogID(), ItemID: itemID, AgentID: agentID, Action: action, Body: summary, CreatedAt: time.Now(),
	}); err != nil {
		return nil, err
	}

	if err := m.store.ReleaseClaim(itemID); err != nil {
		return nil, err
	}
	if err := m.store.ClearAssignedAgent(projectID, itemID); err != nil {
		return nil, err
	}

	item, err := m.store.GetItem(projectID, itemID)
	if err != nil {
		return nil, err
	}

	toStage := board.StageReview
	if outcome == OutcomeBlocked {
		toStage = board.StageBlocked
	}
	return m.store.MoveItem(projectID, itemID, item.Stage, toStage, agentID, summary)
}

func newWorkLogID() string {
	return uuid.New().String()
}
