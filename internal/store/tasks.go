package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	mirerrors "mira/internal/errors"
	"mira/internal/model"
)

// TasksRepo persists tasks and their provenance rows. Upserts merge by
// dedupe_key; provenance rows are replaced wholesale on each merge.
type TasksRepo struct {
	db *sqlx.DB
}

type taskRow struct {
	TaskID           string         `db:"task_id"`
	Title            string         `db:"title"`
	Category         string         `db:"category"`
	DueAtLocal       sql.NullString `db:"due_at_local"`
	EstimatedMinutes int            `db:"estimated_minutes"`
	MinDailyMinutes  int            `db:"min_daily_minutes"`
	Priority         int            `db:"priority"`
	StressWeight     float64        `db:"stress_weight"`
	Feasibility      string         `db:"feasibility_state"`
	Status           string         `db:"status"`
	DedupeKey        string         `db:"dedupe_key"`
}

func toTaskRow(task model.Task) taskRow {
	row := taskRow{
		TaskID:           task.TaskID,
		Title:            task.Title,
		Category:         string(task.Category),
		EstimatedMinutes: task.EstimatedMinutes,
		MinDailyMinutes:  task.MinDailyMinutes,
		Priority:         task.Priority,
		StressWeight:     task.StressWeight,
		Feasibility:      string(task.Feasibility),
		Status:           string(task.Status),
		DedupeKey:        task.DedupeKey,
	}
	if task.DueAtLocal != nil {
		row.DueAtLocal = sql.NullString{String: encodeLocalTime(*task.DueAtLocal), Valid: true}
	}
	return row
}

func fromTaskRow(row taskRow) (model.Task, error) {
	task := model.Task{
		TaskID:           row.TaskID,
		Title:            row.Title,
		Category:         model.Category(row.Category),
		EstimatedMinutes: row.EstimatedMinutes,
		MinDailyMinutes:  row.MinDailyMinutes,
		Priority:         row.Priority,
		StressWeight:     row.StressWeight,
		Feasibility:      model.FeasibilityState(row.Feasibility),
		Status:           model.TaskStatus(row.Status),
		DedupeKey:        row.DedupeKey,
	}
	if row.DueAtLocal.Valid && row.DueAtLocal.String != "" {
		due, err := time.Parse(time.RFC3339, row.DueAtLocal.String)
		if err != nil {
			return model.Task{}, fmt.Errorf("decode due_at_local: %w", err)
		}
		task.DueAtLocal = &due
	}
	return task, nil
}

const upsertTaskSQL = `
INSERT INTO tasks (
	task_id, title, category, due_at_local, estimated_minutes, min_daily_minutes,
	priority, stress_weight, feasibility_state, status, dedupe_key
) VALUES (
	:task_id, :title, :category, :due_at_local, :estimated_minutes, :min_daily_minutes,
	:priority, :stress_weight, :feasibility_state, :status, :dedupe_key
)
ON CONFLICT(dedupe_key) DO UPDATE SET
	title             = excluded.title,
	estimated_minutes = excluded.estimated_minutes,
	min_daily_minutes = excluded.min_daily_minutes,
	priority          = excluded.priority,
	stress_weight     = excluded.stress_weight,
	feasibility_state = excluded.feasibility_state`

// Upsert merges tasks by dedupe key, then replaces each task's provenance
// rows. Status is never overwritten by a merge: a done task stays done when
// the same assignment is re-extracted.
func (r *TasksRepo) Upsert(ctx context.Context, tasks []model.Task) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	if err := r.UpsertTx(ctx, tx, tasks); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

// UpsertTx is Upsert inside a caller-owned transaction.
func (r *TasksRepo) UpsertTx(ctx context.Context, tx *sqlx.Tx, tasks []model.Task) error {
	for i := range tasks {
		task := &tasks[i]
		task.NormalizeDedupeKey()
		if !task.Category.IsValid() {
			return &mirerrors.SchemaViolationError{
				Detail: "task category",
				Err:    fmt.Errorf("unknown category %q", task.Category),
			}
		}
		if _, err := sqlx.NamedExecContext(ctx, tx, upsertTaskSQL, toTaskRow(*task)); err != nil {
			return fmt.Errorf("upsert task %q: %w", task.Title, err)
		}

		// The surviving row may predate this upsert; resolve its id so the
		// provenance rows attach to the right task.
		var canonicalID string
		if err := tx.GetContext(ctx, &canonicalID,
			`SELECT task_id FROM tasks WHERE dedupe_key = ?`, task.DedupeKey); err != nil {
			return fmt.Errorf("resolve task id for %q: %w", task.DedupeKey, err)
		}

		if _, err := tx.ExecContext(ctx,
			`DELETE FROM task_sources WHERE task_id = ?`, canonicalID); err != nil {
			return fmt.Errorf("clear task sources: %w", err)
		}
		for _, src := range task.Sources {
			if _, err := tx.ExecContext(ctx,
				`INSERT OR IGNORE INTO task_sources (task_id, source, account_id, provider_message_id, confidence)
				 VALUES (?, ?, ?, ?, ?)`,
				canonicalID, string(src.Source), src.AccountID, src.ProviderMessageID, src.Confidence); err != nil {
				return fmt.Errorf("insert task source: %w", err)
			}
		}
	}
	return nil
}

// ListActive returns tasks with status todo or in_progress, ordered by
// priority descending then due date ascending (no due date sorts last).
func (r *TasksRepo) ListActive(ctx context.Context) ([]model.Task, error) {
	var rows []taskRow
	err := r.db.SelectContext(ctx, &rows,
		`SELECT * FROM tasks
		 WHERE status IN ('todo', 'in_progress')
		 ORDER BY priority DESC,
		          CASE WHEN due_at_local IS NULL THEN 1 ELSE 0 END,
		          due_at_local ASC,
		          task_id ASC`)
	if err != nil {
		return nil, err
	}
	tasks := make([]model.Task, 0, len(rows))
	for _, row := range rows {
		task, err := fromTaskRow(row)
		if err != nil {
			return nil, err
		}
		sources, err := r.sourcesFor(ctx, task.TaskID)
		if err != nil {
			return nil, err
		}
		task.Sources = sources
		tasks = append(tasks, task)
	}
	return tasks, nil
}

// Get returns one task by id.
func (r *TasksRepo) Get(ctx context.Context, taskID string) (model.Task, error) {
	var row taskRow
	err := r.db.GetContext(ctx, &row, `SELECT * FROM tasks WHERE task_id = ?`, taskID)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Task{}, mirerrors.ErrNotFound
	}
	if err != nil {
		return model.Task{}, err
	}
	return fromTaskRow(row)
}

// Count returns the total number of task rows.
func (r *TasksRepo) Count(ctx context.Context) (int, error) {
	var n int
	err := r.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM tasks`)
	return n, err
}

// SetStatus transitions a task's lifecycle state.
func (r *TasksRepo) SetStatus(ctx context.Context, taskID string, status model.TaskStatus) error {
	if !status.IsValid() {
		return &mirerrors.SchemaViolationError{Detail: "task status", Err: fmt.Errorf("unknown status %q", status)}
	}
	res, err := r.db.ExecContext(ctx, `UPDATE tasks SET status = ? WHERE task_id = ?`, string(status), taskID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return mirerrors.ErrNotFound
	}
	return nil
}

func (r *TasksRepo) sourcesFor(ctx context.Context, taskID string) ([]model.TaskSource, error) {
	type sourceRow struct {
		TaskID            string  `db:"task_id"`
		Source            string  `db:"source"`
		AccountID         string  `db:"account_id"`
		ProviderMessageID string  `db:"provider_message_id"`
		Confidence        float64 `db:"confidence"`
	}
	var rows []sourceRow
	err := r.db.SelectContext(ctx, &rows,
		`SELECT * FROM task_sources WHERE task_id = ? ORDER BY provider_message_id`, taskID)
	if err != nil {
		return nil, err
	}
	sources := make([]model.TaskSource, 0, len(rows))
	for _, row := range rows {
		sources = append(sources, model.TaskSource{
			TaskID:            row.TaskID,
			Source:            model.Source(row.Source),
			AccountID:         row.AccountID,
			ProviderMessageID: row.ProviderMessageID,
			Confidence:        row.Confidence,
		})
	}
	return sources, nil
}
