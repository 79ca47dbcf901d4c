package model

import (
	"fmt"
	"time"
)

// CalendarBlock is one scheduled time range. The agent only mutates blocks
// where ManagedByAgent is set and CalendarName equals the configured managed
// calendar name.
type CalendarBlock struct {
	BlockID         string    `db:"block_id"`
	TaskID          string    `db:"task_id"`
	Title           string    `db:"title"`
	StartLocal      time.Time `db:"start_local"`
	EndLocal        time.Time `db:"end_local"`
	CalendarEventID string    `db:"calendar_event_id"`
	CalendarName    string    `db:"calendar_name"`
	ManagedByAgent  bool      `db:"managed_by_agent"`
	LockLevel       LockLevel `db:"lock_level"`
	PlanRevision    int64     `db:"plan_revision"`
}

// Valid reports whether the block has a positive time range.
func (b *CalendarBlock) Valid() bool {
	return b.StartLocal.Before(b.EndLocal)
}

// Minutes returns the block duration in whole minutes.
func (b *CalendarBlock) Minutes() int {
	return int(b.EndLocal.Sub(b.StartLocal) / time.Minute)
}

// DiffKey is the canonical identity used when reconciling desired blocks
// against observed ones: title plus start/end truncated to the minute.
// Sub-minute drift in the calendar backend does not force churn.
func (b *CalendarBlock) DiffKey() string {
	return fmt.Sprintf("%s|%d|%d", b.Title, b.StartLocal.Unix()/60, b.EndLocal.Unix()/60)
}

// PlanRevision is one row of the monotonic revision counter, recording what
// triggered the mutation and what it changed.
type PlanRevision struct {
	RevisionID   int64     `db:"revision_id"`
	Trigger      string    `db:"trigger"`
	CreatedCount int       `db:"created_count"`
	MovedCount   int       `db:"moved_count"`
	DeletedCount int       `db:"deleted_count"`
	CreatedAtUTC time.Time `db:"created_at_utc"`
}
