package model

import (
	"fmt"
	"strings"
	"time"
)

// Task is one unit of user work with scheduling metadata.
type Task struct {
	TaskID           string           `db:"task_id"`
	Title            string           `db:"title"`
	Category         Category         `db:"category"`
	DueAtLocal       *time.Time       `db:"due_at_local"`
	EstimatedMinutes int              `db:"estimated_minutes"`
	MinDailyMinutes  int              `db:"min_daily_minutes"`
	Priority         int              `db:"priority"`
	StressWeight     float64          `db:"stress_weight"`
	Feasibility      FeasibilityState `db:"feasibility_state"`
	Status           TaskStatus       `db:"status"`
	DedupeKey        string           `db:"dedupe_key"`
	Sources          []TaskSource     `db:"-"`
}

// TaskSource records the provenance of a task back to one inbound message.
// Multiple rows per task are permitted; each triple is unique.
type TaskSource struct {
	TaskID            string  `db:"task_id"`
	Source            Source  `db:"source"`
	AccountID         string  `db:"account_id"`
	ProviderMessageID string  `db:"provider_message_id"`
	Confidence        float64 `db:"confidence"`
}

// DedupeKey builds the stable merge key for a task:
// category | lowercase(title) | due date in ISO-8601, or "none".
func DedupeKey(category Category, title string, dueAtLocal *time.Time) string {
	due := "none"
	if dueAtLocal != nil {
		due = dueAtLocal.Format(time.RFC3339)
	}
	return fmt.Sprintf("%s|%s|%s", category, strings.ToLower(strings.TrimSpace(title)), due)
}

// NormalizeDedupeKey recomputes and stamps the dedupe key from the task's own
// fields. Call before any upsert so merges stay stable.
func (t *Task) NormalizeDedupeKey() {
	t.DedupeKey = DedupeKey(t.Category, t.Title, t.DueAtLocal)
}

// DaysUntilDue returns the whole days between now and the due date, never
// negative. Tasks without a due date report a far horizon.
func (t *Task) DaysUntilDue(now time.Time) int {
	if t.DueAtLocal == nil {
		return 365
	}
	d := t.DueAtLocal.Sub(now)
	if d < 0 {
		return 0
	}
	return int(d.Hours() / 24)
}
