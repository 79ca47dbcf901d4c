package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"mira/internal/errors"
	"mira/internal/model"
)

// Client is the extraction fallback used when rule-based parsing cannot
// produce a confident card: turn free text into task candidates or a
// structured edit intent. Implementations must be safe for concurrent use.
type Client interface {
	// ExtractTasks proposes tasks from one update card. A schema violation in
	// the model output yields an empty slice and a nil error: extraction is
	// best effort and never poisons ingestion.
	ExtractTasks(ctx context.Context, card model.UpdateCard) ([]model.Task, error)

	// ParseEditIntent turns a free-text instruction into a structured edit.
	ParseEditIntent(ctx context.Context, text string, now time.Time) (model.EditOperation, error)

	Model() string
}

// taskCandidate is the JSON shape the extraction prompt demands.
type taskCandidate struct {
	Title            string  `json:"title"`
	Category         string  `json:"category"`
	DueAtLocal       string  `json:"due_at_local,omitempty"`
	EstimatedMinutes int     `json:"estimated_minutes"`
	MinDailyMinutes  int     `json:"min_daily_minutes"`
	Priority         int     `json:"priority"`
	StressWeight     float64 `json:"stress_weight"`
}

// validateCandidate enforces the extraction schema. Anything out of range is
// a schema violation: the whole batch is dropped rather than half-trusted.
func validateCandidate(c taskCandidate, loc *time.Location) (model.Task, error) {
	title := strings.TrimSpace(c.Title)
	if title == "" {
		return model.Task{}, &errors.SchemaViolationError{Detail: "title", Err: fmt.Errorf("empty")}
	}
	category := model.Category(c.Category)
	if !category.IsValid() {
		category = model.CategoryAdmin
	}
	if c.EstimatedMinutes < 0 || c.EstimatedMinutes > 24*60 {
		return model.Task{}, &errors.SchemaViolationError{
			Detail: "estimated_minutes", Err: fmt.Errorf("out of range: %d", c.EstimatedMinutes),
		}
	}
	if c.Priority < 1 || c.Priority > 5 {
		return model.Task{}, &errors.SchemaViolationError{
			Detail: "priority", Err: fmt.Errorf("out of range: %d", c.Priority),
		}
	}
	if c.StressWeight < 0 || c.StressWeight > 1 {
		return model.Task{}, &errors.SchemaViolationError{
			Detail: "stress_weight", Err: fmt.Errorf("out of range: %v", c.StressWeight),
		}
	}

	task := model.Task{
		Title:            title,
		Category:         category,
		EstimatedMinutes: c.EstimatedMinutes,
		MinDailyMinutes:  c.MinDailyMinutes,
		Priority:         c.Priority,
		StressWeight:     c.StressWeight,
		Status:           model.TaskTodo,
	}
	if c.DueAtLocal != "" {
		due, err := parseLocalTime(c.DueAtLocal, loc)
		if err != nil {
			return model.Task{}, &errors.SchemaViolationError{Detail: "due_at_local", Err: err}
		}
		task.DueAtLocal = &due
	}
	task.NormalizeDedupeKey()
	return task, nil
}

// parseLocalTime accepts the formats local models actually emit.
func parseLocalTime(s string, loc *time.Location) (time.Time, error) {
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02 15:04", "2006-01-02"} {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable timestamp %q", s)
}
