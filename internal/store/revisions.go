package store

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"mira/internal/model"
)

// RevisionsRepo owns the monotonic plan revision counter. AUTOINCREMENT
// guarantees ids never repeat even after deletes.
type RevisionsRepo struct {
	db *sqlx.DB
}

// RevisionSummary is the {created, moved, deleted} triple recorded with each
// revision.
type RevisionSummary struct {
	Created int
	Moved   int
	Deleted int
}

// LatestID returns the newest revision id, or 0 when no revision exists yet.
func (r *RevisionsRepo) LatestID(ctx context.Context) (int64, error) {
	var id int64
	err := r.db.GetContext(ctx, &id, `SELECT COALESCE(MAX(revision_id), 0) FROM plan_revisions`)
	return id, err
}

// Append allocates the next revision, tagging it with what triggered the
// mutation and what it changed.
func (r *RevisionsRepo) Append(ctx context.Context, trigger string, summary RevisionSummary) (int64, error) {
	return appendRevision(ctx, r.db, trigger, summary)
}

// AppendTx is Append inside a caller-owned transaction.
func (r *RevisionsRepo) AppendTx(ctx context.Context, tx *sqlx.Tx, trigger string, summary RevisionSummary) (int64, error) {
	return appendRevision(ctx, tx, trigger, summary)
}

func appendRevision(ctx context.Context, q queryer, trigger string, summary RevisionSummary) (int64, error) {
	res, err := q.ExecContext(ctx, `
		INSERT INTO plan_revisions (trigger_tag, created_count, moved_count, deleted_count, created_at_utc)
		VALUES (?, ?, ?, ?, ?)`,
		trigger, summary.Created, summary.Moved, summary.Deleted, encodeTime(utcNow()))
	if err != nil {
		return 0, fmt.Errorf("append revision (%s): %w", trigger, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	return id, nil
}

// List returns revisions newest first, capped at limit.
func (r *RevisionsRepo) List(ctx context.Context, limit int) ([]model.PlanRevision, error) {
	type revisionRow struct {
		RevisionID   int64  `db:"revision_id"`
		TriggerTag   string `db:"trigger_tag"`
		CreatedCount int    `db:"created_count"`
		MovedCount   int    `db:"moved_count"`
		DeletedCount int    `db:"deleted_count"`
		CreatedAtUTC string `db:"created_at_utc"`
	}
	var rows []revisionRow
	err := r.db.SelectContext(ctx, &rows,
		`SELECT * FROM plan_revisions ORDER BY revision_id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	out := make([]model.PlanRevision, 0, len(rows))
	for _, row := range rows {
		created, err := decodeTime(row.CreatedAtUTC)
		if err != nil {
			return nil, err
		}
		out = append(out, model.PlanRevision{
			RevisionID:   row.RevisionID,
			Trigger:      row.TriggerTag,
			CreatedCount: row.CreatedCount,
			MovedCount:   row.MovedCount,
			DeletedCount: row.DeletedCount,
			CreatedAtUTC: created,
		})
	}
	return out, nil
}
