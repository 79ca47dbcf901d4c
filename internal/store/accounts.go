package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"mira/internal/model"
)

// AccountsRepo persists the configured mail accounts.
type AccountsRepo struct {
	db *sqlx.DB
}

type accountRow struct {
	AccountID string `db:"account_id"`
	Provider  string `db:"provider"`
	Email     string `db:"email"`
	Enabled   bool   `db:"enabled"`
}

// Upsert inserts or updates one account.
func (r *AccountsRepo) Upsert(ctx context.Context, account model.Account) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO accounts (account_id, provider, email, enabled)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(account_id) DO UPDATE SET
			provider = excluded.provider,
			email    = excluded.email,
			enabled  = excluded.enabled`,
		account.AccountID, string(account.Provider), account.Email, account.Enabled)
	if err != nil {
		return fmt.Errorf("upsert account %s: %w", account.AccountID, err)
	}
	return nil
}

// ListEnabled returns every enabled account in stable order.
func (r *AccountsRepo) ListEnabled(ctx context.Context) ([]model.Account, error) {
	var rows []accountRow
	err := r.db.SelectContext(ctx, &rows,
		`SELECT * FROM accounts WHERE enabled = 1 ORDER BY provider, account_id`)
	if err != nil {
		return nil, err
	}
	accounts := make([]model.Account, 0, len(rows))
	for _, row := range rows {
		accounts = append(accounts, model.Account{
			AccountID: row.AccountID,
			Provider:  model.Provider(row.Provider),
			Email:     row.Email,
			Enabled:   row.Enabled,
		})
	}
	return accounts, nil
}

// SetEnabled toggles one account.
func (r *AccountsRepo) SetEnabled(ctx context.Context, accountID string, enabled bool) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE accounts SET enabled = ? WHERE account_id = ?`, enabled, accountID)
	return err
}

// PreferencesRepo is a simple key/value store for persisted runtime toggles.
type PreferencesRepo struct {
	db *sqlx.DB
}

// Get returns the stored value, or "" when the key is absent.
func (r *PreferencesRepo) Get(ctx context.Context, key string) (string, error) {
	var value string
	err := r.db.GetContext(ctx, &value, `SELECT value FROM preferences WHERE key = ?`, key)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return value, nil
}

// Set writes one key/value pair.
func (r *PreferencesRepo) Set(ctx context.Context, key, value string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO preferences (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value)
	return err
}
