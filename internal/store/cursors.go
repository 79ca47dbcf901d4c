package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"mira/internal/model"
)

// CursorsRepo persists one resume point per (provider, account). Upserts are
// last-writer-wins within the sync transaction; callers only write a cursor
// after the batch it covers has committed.
type CursorsRepo struct {
	db *sqlx.DB
}

type cursorRow struct {
	Provider        string `db:"provider"`
	AccountID       string `db:"account_id"`
	PrimaryCursor   string `db:"primary_cursor"`
	SecondaryCursor string `db:"secondary_cursor"`
	UpdatedAtUTC    string `db:"updated_at_utc"`
}

// Get returns the cursor for (provider, account). A missing row yields a zero
// cursor and found=false.
func (r *CursorsRepo) Get(ctx context.Context, provider model.Provider, accountID string) (model.Cursor, bool, error) {
	var row cursorRow
	err := r.db.GetContext(ctx, &row,
		`SELECT * FROM provider_cursors WHERE provider = ? AND account_id = ?`,
		string(provider), accountID)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Cursor{Provider: provider, AccountID: accountID}, false, nil
	}
	if err != nil {
		return model.Cursor{}, false, err
	}
	updated, err := decodeTime(row.UpdatedAtUTC)
	if err != nil {
		return model.Cursor{}, false, fmt.Errorf("decode cursor timestamp: %w", err)
	}
	return model.Cursor{
		Provider:  model.Provider(row.Provider),
		AccountID: row.AccountID,
		Primary:   row.PrimaryCursor,
		Secondary: row.SecondaryCursor,
		UpdatedAt: updated,
	}, true, nil
}

// Upsert writes the cursor, replacing any prior row for the same key.
func (r *CursorsRepo) Upsert(ctx context.Context, cursor model.Cursor) error {
	return upsertCursor(ctx, r.db, cursor)
}

// UpsertTx is Upsert inside a caller-owned transaction.
func (r *CursorsRepo) UpsertTx(ctx context.Context, tx *sqlx.Tx, cursor model.Cursor) error {
	return upsertCursor(ctx, tx, cursor)
}

func upsertCursor(ctx context.Context, q queryer, cursor model.Cursor) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO provider_cursors (provider, account_id, primary_cursor, secondary_cursor, updated_at_utc)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(provider, account_id) DO UPDATE SET
			primary_cursor   = excluded.primary_cursor,
			secondary_cursor = excluded.secondary_cursor,
			updated_at_utc   = excluded.updated_at_utc`,
		string(cursor.Provider), cursor.AccountID, cursor.Primary, cursor.Secondary, encodeTime(utcNow()))
	if err != nil {
		return fmt.Errorf("upsert cursor %s/%s: %w", cursor.Provider, cursor.AccountID, err)
	}
	return nil
}
