package model

import "time"

// AuditEntry is one append-only record of a decision or mutation.
type AuditEntry struct {
	ID           int64             `db:"id"`
	Category     string            `db:"category"`
	Severity     string            `db:"severity"`
	Message      string            `db:"message"`
	Context      map[string]string `db:"-"`
	CreatedAtUTC time.Time         `db:"created_at_utc"`
}

// Audit severities.
const (
	SeverityInfo  = "info"
	SeverityWarn  = "warn"
	SeverityError = "error"
)
