package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"mira/internal/logging"
)

// Store owns the persistent representation of every entity. Services hold
// only in-memory views for the duration of one operation.
type Store struct {
	db     *sqlx.DB
	logger logging.Logger

	Updates     *UpdatesRepo
	Tasks       *TasksRepo
	Blocks      *BlocksRepo
	Cursors     *CursorsRepo
	Revisions   *RevisionsRepo
	Operations  *OperationsRepo
	Audit       *AuditRepo
	Accounts    *AccountsRepo
	Preferences *PreferencesRepo
}

// Open opens (or creates) the SQLite database at path, applies pragmas and
// pending migrations, and wires the typed repositories.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	db, err := sqlx.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// One writer at a time keeps SQLite happy under the connection-per-
	// operation policy.
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply %s: %w", pragma, err)
		}
	}

	s := &Store{db: db, logger: logging.NewComponentLogger("store")}
	if err := s.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}

	s.Updates = &UpdatesRepo{db: db}
	s.Tasks = &TasksRepo{db: db}
	s.Blocks = &BlocksRepo{db: db}
	s.Cursors = &CursorsRepo{db: db}
	s.Revisions = &RevisionsRepo{db: db}
	s.Operations = &OperationsRepo{db: db}
	s.Audit = &AuditRepo{db: db, logger: s.logger}
	s.Accounts = &AccountsRepo{db: db}
	s.Preferences = &PreferencesRepo{db: db}
	return s, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB exposes the raw handle for repositories that need cross-repo
// transactions.
func (s *Store) DB() *sqlx.DB { return s.db }

// WithTx runs fn inside one transaction; any error rolls the whole
// transaction back.
func (s *Store) WithTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && rbErr != sql.ErrTxDone {
			s.logger.Error("rollback failed: %v (after: %v)", rbErr, err)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// queryer is satisfied by both *sqlx.DB and *sqlx.Tx so repository methods
// can run standalone or inside a caller-owned transaction.
type queryer interface {
	sqlx.ExtContext
	GetContext(ctx context.Context, dest any, query string, args ...any) error
	SelectContext(ctx context.Context, dest any, query string, args ...any) error
}

// utcNow returns the current time truncated for stable text encoding.
func utcNow() time.Time {
	return time.Now().UTC().Truncate(time.Second)
}

// encodeTime renders a timestamp as ISO-8601 UTC text.
func encodeTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

// encodeLocalTime preserves the wall-clock offset, for times that are
// meaningful in the user's local zone.
func encodeLocalTime(t time.Time) string {
	return t.Format(time.RFC3339)
}

func decodeTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339, s)
}
