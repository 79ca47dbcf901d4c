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

// BlocksRepo mirrors the blocks the agent has placed on the managed calendar.
// The calendar backend stays authoritative for what is visible; this mirror
// carries the plan revision and undo metadata.
type BlocksRepo struct {
	db *sqlx.DB
}

type blockRow struct {
	BlockID         string `db:"block_id"`
	TaskID          string `db:"task_id"`
	Title           string `db:"title"`
	StartLocal      string `db:"start_local"`
	EndLocal        string `db:"end_local"`
	CalendarEventID string `db:"calendar_event_id"`
	CalendarName    string `db:"calendar_name"`
	ManagedByAgent  bool   `db:"managed_by_agent"`
	LockLevel       string `db:"lock_level"`
	PlanRevision    int64  `db:"plan_revision"`
}

func toBlockRow(b model.CalendarBlock) blockRow {
	return blockRow{
		BlockID:         b.BlockID,
		TaskID:          b.TaskID,
		Title:           b.Title,
		StartLocal:      encodeLocalTime(b.StartLocal),
		EndLocal:        encodeLocalTime(b.EndLocal),
		CalendarEventID: b.CalendarEventID,
		CalendarName:    b.CalendarName,
		ManagedByAgent:  b.ManagedByAgent,
		LockLevel:       string(b.LockLevel),
		PlanRevision:    b.PlanRevision,
	}
}

func fromBlockRow(row blockRow) (model.CalendarBlock, error) {
	start, err := time.Parse(time.RFC3339, row.StartLocal)
	if err != nil {
		return model.CalendarBlock{}, fmt.Errorf("decode start_local: %w", err)
	}
	end, err := time.Parse(time.RFC3339, row.EndLocal)
	if err != nil {
		return model.CalendarBlock{}, fmt.Errorf("decode end_local: %w", err)
	}
	return model.CalendarBlock{
		BlockID:         row.BlockID,
		TaskID:          row.TaskID,
		Title:           row.Title,
		StartLocal:      start,
		EndLocal:        end,
		CalendarEventID: row.CalendarEventID,
		CalendarName:    row.CalendarName,
		ManagedByAgent:  row.ManagedByAgent,
		LockLevel:       model.LockLevel(row.LockLevel),
		PlanRevision:    row.PlanRevision,
	}, nil
}

// Insert records one placed block.
func (r *BlocksRepo) Insert(ctx context.Context, block model.CalendarBlock) error {
	return insertBlock(ctx, r.db, block)
}

// InsertTx is Insert inside a caller-owned transaction.
func (r *BlocksRepo) InsertTx(ctx context.Context, tx *sqlx.Tx, block model.CalendarBlock) error {
	return insertBlock(ctx, tx, block)
}

func insertBlock(ctx context.Context, q queryer, block model.CalendarBlock) error {
	if !block.Valid() {
		return &mirerrors.InvariantViolationError{
			Err: fmt.Errorf("block %q has start >= end", block.Title),
		}
	}
	_, err := sqlx.NamedExecContext(ctx, q, `
		INSERT OR REPLACE INTO blocks (
			block_id, task_id, title, start_local, end_local,
			calendar_event_id, calendar_name, managed_by_agent, lock_level, plan_revision
		) VALUES (
			:block_id, :task_id, :title, :start_local, :end_local,
			:calendar_event_id, :calendar_name, :managed_by_agent, :lock_level, :plan_revision
		)`, toBlockRow(block))
	if err != nil {
		return fmt.Errorf("insert block %q: %w", block.Title, err)
	}
	return nil
}

// Delete removes one mirrored block by id.
func (r *BlocksRepo) Delete(ctx context.Context, blockID string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM blocks WHERE block_id = ?`, blockID)
	return err
}

// Get returns one mirrored block.
func (r *BlocksRepo) Get(ctx context.Context, blockID string) (model.CalendarBlock, error) {
	var row blockRow
	err := r.db.GetContext(ctx, &row, `SELECT * FROM blocks WHERE block_id = ?`, blockID)
	if errors.Is(err, sql.ErrNoRows) {
		return model.CalendarBlock{}, mirerrors.ErrNotFound
	}
	if err != nil {
		return model.CalendarBlock{}, err
	}
	return fromBlockRow(row)
}

// ListOnDate returns mirrored blocks overlapping the given local calendar day.
func (r *BlocksRepo) ListOnDate(ctx context.Context, day time.Time) ([]model.CalendarBlock, error) {
	dayStart := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, day.Location())
	dayEnd := dayStart.Add(24 * time.Hour)
	var rows []blockRow
	err := r.db.SelectContext(ctx, &rows,
		`SELECT * FROM blocks WHERE start_local < ? AND end_local > ? ORDER BY start_local ASC`,
		encodeLocalTime(dayEnd), encodeLocalTime(dayStart))
	if err != nil {
		return nil, err
	}
	blocks := make([]model.CalendarBlock, 0, len(rows))
	for _, row := range rows {
		block, err := fromBlockRow(row)
		if err != nil {
			return nil, err
		}
		blocks = append(blocks, block)
	}
	return blocks, nil
}
