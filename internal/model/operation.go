package model

import (
	"encoding/json"
	"time"
)

// Operation records one attempted edit, applied or not. Applied create/move
// operations carry a reversible undo envelope in ResultJSON.
type Operation struct {
	OpID                 string          `db:"op_id"`
	ExpectedPlanRevision int64           `db:"expected_plan_revision"`
	AppliedRevision      int64           `db:"applied_revision"`
	Intent               EditIntent      `db:"intent"`
	Status               OperationStatus `db:"status"`
	PayloadJSON          string          `db:"payload_json"`
	ResultJSON           string          `db:"result_json"`
	CreatedAtUTC         time.Time       `db:"created_at_utc"`
}

// Undo envelope kinds persisted in Operation.ResultJSON.
const (
	EnvelopeCreatedBlock = "created_block"
	EnvelopeMovedBlock   = "moved_block"
)

// UndoEnvelope is the persisted description sufficient to invert the last
// applied mutation. Exactly one of the kind-specific fields is populated.
type UndoEnvelope struct {
	Kind            string         `json:"kind"`
	BlockID         string         `json:"block_id,omitempty"`
	CalendarEventID string         `json:"calendar_event_id,omitempty"`
	Previous        *CalendarBlock `json:"previous,omitempty"`
}

// EncodeUndoEnvelope serializes an envelope for the operations table.
func EncodeUndoEnvelope(env UndoEnvelope) (string, error) {
	raw, err := json.Marshal(env)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

// DecodeUndoEnvelope parses a persisted envelope. An empty payload yields a
// zero envelope with no kind, which callers treat as not undoable.
func DecodeUndoEnvelope(raw string) (UndoEnvelope, error) {
	var env UndoEnvelope
	if raw == "" {
		return env, nil
	}
	err := json.Unmarshal([]byte(raw), &env)
	return env, err
}

// EditOperation is a structured intent to mutate plan state, produced by the
// command grammar or the LLM intent parser and validated by the rules engine
// before any side effect.
type EditOperation struct {
	Intent               EditIntent `json:"intent"`
	ExpectedPlanRevision int64      `json:"expected_plan_revision"`
	Title                string     `json:"title,omitempty"`
	FuzzyTitle           string     `json:"fuzzy_title,omitempty"`
	CalendarEventID      string     `json:"calendar_event_id,omitempty"`
	StartLocal           *time.Time `json:"start_local,omitempty"`
	EndLocal             *time.Time `json:"end_local,omitempty"`
	SleepWindow          string     `json:"sleep_window,omitempty"`
	RequiresConfirmation bool       `json:"requires_confirmation,omitempty"`
	AmbiguityReason      string     `json:"ambiguity_reason,omitempty"`
}

// HasTimeWindow reports whether the edit carries a valid start < end range.
func (e *EditOperation) HasTimeWindow() bool {
	return e.StartLocal != nil && e.EndLocal != nil && e.StartLocal.Before(*e.EndLocal)
}

// HasTarget reports whether the edit names at least one target identifier.
func (e *EditOperation) HasTarget() bool {
	return e.CalendarEventID != "" || e.FuzzyTitle != ""
}
