package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	mirerrors "mira/internal/errors"
	"mira/internal/model"
)

// OperationsRepo records every attempted edit. Applied create/move rows carry
// the undo envelope that makes them reversible across restarts.
type OperationsRepo struct {
	db *sqlx.DB
}

type operationRow struct {
	OpID                 string `db:"op_id"`
	ExpectedPlanRevision int64  `db:"expected_plan_revision"`
	AppliedRevision      int64  `db:"applied_revision"`
	Intent               string `db:"intent"`
	Status               string `db:"status"`
	PayloadJSON          string `db:"payload_json"`
	ResultJSON           string `db:"result_json"`
	CreatedAtUTC         string `db:"created_at_utc"`
}

func fromOperationRow(row operationRow) (model.Operation, error) {
	created, err := decodeTime(row.CreatedAtUTC)
	if err != nil {
		return model.Operation{}, fmt.Errorf("decode operation timestamp: %w", err)
	}
	return model.Operation{
		OpID:                 row.OpID,
		ExpectedPlanRevision: row.ExpectedPlanRevision,
		AppliedRevision:      row.AppliedRevision,
		Intent:               model.EditIntent(row.Intent),
		Status:               model.OperationStatus(row.Status),
		PayloadJSON:          row.PayloadJSON,
		ResultJSON:           row.ResultJSON,
		CreatedAtUTC:         created,
	}, nil
}

// Insert persists one operation record.
func (r *OperationsRepo) Insert(ctx context.Context, op model.Operation) error {
	return insertOperation(ctx, r.db, op)
}

// InsertTx is Insert inside a caller-owned transaction, so the operation row
// lands atomically with its side effect's audit record.
func (r *OperationsRepo) InsertTx(ctx context.Context, tx *sqlx.Tx, op model.Operation) error {
	return insertOperation(ctx, tx, op)
}

func insertOperation(ctx context.Context, q queryer, op model.Operation) error {
	if op.CreatedAtUTC.IsZero() {
		op.CreatedAtUTC = utcNow()
	}
	_, err := q.ExecContext(ctx, `
		INSERT INTO operations (
			op_id, expected_plan_revision, applied_revision, intent, status,
			payload_json, result_json, created_at_utc
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		op.OpID, op.ExpectedPlanRevision, op.AppliedRevision, string(op.Intent),
		string(op.Status), op.PayloadJSON, op.ResultJSON, encodeTime(op.CreatedAtUTC))
	if err != nil {
		return fmt.Errorf("insert operation %s: %w", op.OpID, err)
	}
	return nil
}

// LatestUndoable returns the most recent applied create/move operation, or
// not-found when nothing can be undone.
func (r *OperationsRepo) LatestUndoable(ctx context.Context) (model.Operation, error) {
	var row operationRow
	err := r.db.GetContext(ctx, &row, `
		SELECT * FROM operations
		WHERE status = 'applied' AND intent IN ('create_block', 'move_block')
		ORDER BY applied_revision DESC, created_at_utc DESC
		LIMIT 1`)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Operation{}, mirerrors.ErrNotFound
	}
	if err != nil {
		return model.Operation{}, err
	}
	return fromOperationRow(row)
}

// MarkUndone transitions one applied operation to undone. The transition is
// one-way and happens at most once.
func (r *OperationsRepo) MarkUndone(ctx context.Context, opID string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE operations SET status = 'undone' WHERE op_id = ? AND status = 'applied'`, opID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return mirerrors.ErrNotFound
	}
	return nil
}

// LatestAppliedRevision returns the highest revision any applied operation
// reached, or 0. Used to hydrate the command service after a restart.
func (r *OperationsRepo) LatestAppliedRevision(ctx context.Context) (int64, error) {
	var id int64
	err := r.db.GetContext(ctx, &id,
		`SELECT COALESCE(MAX(applied_revision), 0) FROM operations WHERE status IN ('applied', 'undone')`)
	return id, err
}

// Get returns one operation by id.
func (r *OperationsRepo) Get(ctx context.Context, opID string) (model.Operation, error) {
	var row operationRow
	err := r.db.GetContext(ctx, &row, `SELECT * FROM operations WHERE op_id = ?`, opID)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Operation{}, mirerrors.ErrNotFound
	}
	if err != nil {
		return model.Operation{}, err
	}
	return fromOperationRow(row)
}
