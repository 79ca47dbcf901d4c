package store

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// migration is one schema step, applied at most once and recorded by id.
type migration struct {
	id   int
	stmt string
}

var migrations = []migration{
	{1, `CREATE TABLE IF NOT EXISTS accounts (
		account_id TEXT PRIMARY KEY,
		provider   TEXT NOT NULL,
		email      TEXT NOT NULL,
		enabled    INTEGER NOT NULL DEFAULT 1
	)`},
	{2, `CREATE TABLE IF NOT EXISTS updates (
		update_id             TEXT PRIMARY KEY,
		account_id            TEXT NOT NULL,
		source                TEXT NOT NULL,
		provider_message_id   TEXT NOT NULL,
		provider_thread_id    TEXT NOT NULL DEFAULT '',
		received_at_utc       TEXT NOT NULL,
		sender                TEXT NOT NULL,
		subject               TEXT NOT NULL,
		body_text             TEXT NOT NULL,
		links_json            TEXT NOT NULL DEFAULT '[]',
		tags_json             TEXT NOT NULL DEFAULT '[]',
		parser_method         TEXT NOT NULL,
		parse_confidence      REAL NOT NULL,
		evidence_json         TEXT NOT NULL DEFAULT '[]',
		requires_confirmation INTEGER NOT NULL DEFAULT 0,
		content_hash          TEXT NOT NULL,
		UNIQUE(source, provider_message_id)
	)`},
	{3, `CREATE TABLE IF NOT EXISTS tasks (
		task_id           TEXT PRIMARY KEY,
		title             TEXT NOT NULL,
		category          TEXT NOT NULL,
		due_at_local      TEXT,
		estimated_minutes INTEGER NOT NULL DEFAULT 0,
		min_daily_minutes INTEGER NOT NULL DEFAULT 0,
		priority          INTEGER NOT NULL DEFAULT 0,
		stress_weight     REAL NOT NULL DEFAULT 0,
		feasibility_state TEXT NOT NULL DEFAULT 'on_track',
		status            TEXT NOT NULL DEFAULT 'todo',
		dedupe_key        TEXT NOT NULL UNIQUE
	)`},
	{4, `CREATE TABLE IF NOT EXISTS task_sources (
		task_id             TEXT NOT NULL REFERENCES tasks(task_id),
		source              TEXT NOT NULL,
		account_id          TEXT NOT NULL,
		provider_message_id TEXT NOT NULL,
		confidence          REAL NOT NULL DEFAULT 0,
		UNIQUE(task_id, source, account_id, provider_message_id)
	)`},
	{5, `CREATE TABLE IF NOT EXISTS blocks (
		block_id          TEXT PRIMARY KEY,
		task_id           TEXT NOT NULL DEFAULT '',
		title             TEXT NOT NULL,
		start_local       TEXT NOT NULL,
		end_local         TEXT NOT NULL,
		calendar_event_id TEXT NOT NULL DEFAULT '',
		calendar_name     TEXT NOT NULL,
		managed_by_agent  INTEGER NOT NULL DEFAULT 0,
		lock_level        TEXT NOT NULL DEFAULT 'flexible',
		plan_revision     INTEGER NOT NULL DEFAULT 0
	)`},
	{6, `CREATE TABLE IF NOT EXISTS provider_cursors (
		provider         TEXT NOT NULL,
		account_id       TEXT NOT NULL,
		primary_cursor   TEXT NOT NULL DEFAULT '',
		secondary_cursor TEXT NOT NULL DEFAULT '',
		updated_at_utc   TEXT NOT NULL,
		PRIMARY KEY(provider, account_id)
	)`},
	{7, `CREATE TABLE IF NOT EXISTS plan_revisions (
		revision_id    INTEGER PRIMARY KEY AUTOINCREMENT,
		trigger_tag    TEXT NOT NULL,
		created_count  INTEGER NOT NULL DEFAULT 0,
		moved_count    INTEGER NOT NULL DEFAULT 0,
		deleted_count  INTEGER NOT NULL DEFAULT 0,
		created_at_utc TEXT NOT NULL
	)`},
	{8, `CREATE TABLE IF NOT EXISTS operations (
		op_id                  TEXT PRIMARY KEY,
		expected_plan_revision INTEGER NOT NULL,
		applied_revision       INTEGER NOT NULL DEFAULT 0,
		intent                 TEXT NOT NULL,
		status                 TEXT NOT NULL,
		payload_json           TEXT NOT NULL DEFAULT '{}',
		result_json            TEXT NOT NULL DEFAULT '',
		created_at_utc         TEXT NOT NULL
	)`},
	{9, `CREATE TABLE IF NOT EXISTS preferences (
		key   TEXT PRIMARY KEY,
		value TEXT NOT NULL
	)`},
	{10, `CREATE TABLE IF NOT EXISTS audit_log (
		id             INTEGER PRIMARY KEY AUTOINCREMENT,
		category       TEXT NOT NULL,
		severity       TEXT NOT NULL,
		message        TEXT NOT NULL,
		context_json   TEXT NOT NULL DEFAULT '{}',
		created_at_utc TEXT NOT NULL
	)`},
	{11, `CREATE INDEX IF NOT EXISTS idx_updates_account ON updates(account_id, received_at_utc)`},
	{12, `CREATE INDEX IF NOT EXISTS idx_tasks_status ON tasks(status, priority)`},
	{13, `CREATE INDEX IF NOT EXISTS idx_operations_status ON operations(status, created_at_utc)`},
}

// migrate applies pending migrations in order, recording each id. Runs once
// at bootstrap.
func (s *Store) migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx,
		`CREATE TABLE IF NOT EXISTS schema_migrations (
			id         INTEGER PRIMARY KEY,
			applied_at TEXT NOT NULL
		)`); err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}

	applied := map[int]bool{}
	var ids []int
	if err := s.db.SelectContext(ctx, &ids, `SELECT id FROM schema_migrations`); err != nil {
		return fmt.Errorf("read schema_migrations: %w", err)
	}
	for _, id := range ids {
		applied[id] = true
	}

	for _, m := range migrations {
		if applied[m.id] {
			continue
		}
		m := m
		err := s.WithTx(ctx, func(tx *sqlx.Tx) error {
			if _, err := tx.ExecContext(ctx, m.stmt); err != nil {
				return fmt.Errorf("migration %d: %w", m.id, err)
			}
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO schema_migrations (id, applied_at) VALUES (?, ?)`,
				m.id, encodeTime(utcNow())); err != nil {
				return fmt.Errorf("record migration %d: %w", m.id, err)
			}
			return nil
		})
		if err != nil {
			return err
		}
		s.logger.Debug("applied migration %d", m.id)
	}
	return nil
}
