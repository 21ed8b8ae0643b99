package boardapi

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/ateam/orchestrator/internal/broker"
	"github.com/ateam/orchestrator/internal/hooks"
)

type hookEventPayload struct {
	EventType     string    `json:"eventType" validate:"required"`
	Agent         string    `json:"agent" validate:"required"`
	Tool          string    `json:"tool"`
	Status        string    `json:"status"`
	Summary       string    `json:"summary"`
	CorrelationID string    `json:"correlationId"`
	Timestamp     time.Time `json:"timestamp"`
	MissionID     string    `json:"missionId"`
}

// handleHookEvents accepts either a single event object or a JSON array of
// events, matching the "single event OR array of events" wire contract.
func (s *Server) handleHookEvents(w http.ResponseWriter, r *http.Request) {
	projectID, err := mustProjectID(r)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}

	raw, err := decodeRawJSON(r)
	if err != nil {
		writeError(w, s.logger, validationError("malformed request body"))
		return
	}

	var payloads []hookEventPayload
	if len(raw) > 0 && raw[0] == '[' {
		if err := json.Unmarshal(raw, &payloads); err != nil {
			writeError(w, s.logger, validationError("malformed request body"))
			return
		}
	} else {
		var single hookEventPayload
		if err := json.Unmarshal(raw, &single); err != nil {
			writeError(w, s.logger, validationError("malformed request body"))
			return
		}
		payloads = []hookEventPayload{single}
	}

	batch := make([]hooks.Incoming, 0, len(payloads))
	for _, p := range payloads {
		if err := s.validate.Struct(p); err != nil {
			writeError(w, s.logger, validationError(err.Error()))
			return
		}
		ts := p.Timestamp
		if ts.IsZero() {
			ts = time.Now()
		}
		batch = append(batch, hooks.Incoming{
			EventType: p.EventType, Agent: p.Agent, Tool: p.Tool, Status: p.Status,
			Summary: p.Summary, CorrelationID: p.CorrelationID, Timestamp: ts, MissionID: p.MissionID,
		})
	}

	result, err := s.hooks.Submit(projectID, batch)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}

	for _, e := range result.Events {
		s.broker.Publish(projectID, broker.KindHookEvent, e)
	}

	writeData(w, s.logger, http.StatusCreated, result)
}

type pruneHooksRequest struct {
	OlderThan time.Time `json:"olderThan" validate:"required"`
}

func (s *Server) handleHookPrune(w http.ResponseWriter, r *http.Request) {
	projectID, err := mustProjectID(r)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	var req pruneHooksRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, s.logger, validationError("malformed request body"))
		return
	}
	if err := s.validate.Struct(req); err != nil {
		writeError(w, s.logger, validationError(err.Error()))
		return
	}

	pruned, err := s.hooks.Prune(projectID, req.OlderThan)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeData(w, s.logger, http.StatusOK, map[string]int64{"pruned": pruned})
}

func decodeRawJSON(r *http.Request) (json.RawMessage, error) {
	var raw json.RawMessage
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(&raw); err != nil {
		return nil, err
	}
	return raw, nil
}
