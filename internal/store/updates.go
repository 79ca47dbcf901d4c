package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jmoiron/sqlx"

	"mira/internal/model"
)

// UpdatesRepo persists update cards. Cards are insert-or-ignore keyed by
// (source, provider_message_id): re-ingesting the same message is a no-op.
type UpdatesRepo struct {
	db *sqlx.DB
}

type updateRow struct {
	UpdateID             string  `db:"update_id"`
	AccountID            string  `db:"account_id"`
	Source               string  `db:"source"`
	ProviderMessageID    string  `db:"provider_message_id"`
	ProviderThreadID     string  `db:"provider_thread_id"`
	ReceivedAtUTC        string  `db:"received_at_utc"`
	Sender               string  `db:"sender"`
	Subject              string  `db:"subject"`
	BodyText             string  `db:"body_text"`
	LinksJSON            string  `db:"links_json"`
	TagsJSON             string  `db:"tags_json"`
	ParserMethod         string  `db:"parser_method"`
	ParseConfidence      float64 `db:"parse_confidence"`
	EvidenceJSON         string  `db:"evidence_json"`
	RequiresConfirmation bool    `db:"requires_confirmation"`
	ContentHash          string  `db:"content_hash"`
}

func encodeStrings(values []string) string {
	if len(values) == 0 {
		return "[]"
	}
	raw, err := json.Marshal(values)
	if err != nil {
		return "[]"
	}
	return string(raw)
}

func decodeStrings(raw string) []string {
	if raw == "" || raw == "[]" {
		return nil
	}
	var values []string
	if err := json.Unmarshal([]byte(raw), &values); err != nil {
		return nil
	}
	return values
}

func toUpdateRow(card model.UpdateCard) updateRow {
	return updateRow{
		UpdateID:             card.UpdateID,
		AccountID:            card.AccountID,
		Source:               string(card.Source),
		ProviderMessageID:    card.ProviderMessageID,
		ProviderThreadID:     card.ProviderThreadID,
		ReceivedAtUTC:        encodeTime(card.ReceivedAtUTC),
		Sender:               card.Sender,
		Subject:              card.Subject,
		BodyText:             card.BodyText,
		LinksJSON:            encodeStrings(card.Links),
		TagsJSON:             encodeStrings(card.Tags),
		ParserMethod:         string(card.ParserMethod),
		ParseConfidence:      card.ParseConfidence,
		EvidenceJSON:         encodeStrings(card.Evidence),
		RequiresConfirmation: card.RequiresConfirmation,
		ContentHash:          card.ContentHash,
	}
}

func fromUpdateRow(row updateRow) (model.UpdateCard, error) {
	received, err := decodeTime(row.ReceivedAtUTC)
	if err != nil {
		return model.UpdateCard{}, fmt.Errorf("decode received_at_utc: %w", err)
	}
	return model.UpdateCard{
		UpdateID:             row.UpdateID,
		AccountID:            row.AccountID,
		Source:               model.Source(row.Source),
		ProviderMessageID:    row.ProviderMessageID,
		ProviderThreadID:     row.ProviderThreadID,
		ReceivedAtUTC:        received,
		Sender:               row.Sender,
		Subject:              row.Subject,
		BodyText:             row.BodyText,
		Links:                decodeStrings(row.LinksJSON),
		Tags:                 decodeStrings(row.TagsJSON),
		ParserMethod:         model.ParserMethod(row.ParserMethod),
		ParseConfidence:      row.ParseConfidence,
		Evidence:             decodeStrings(row.EvidenceJSON),
		RequiresConfirmation: row.RequiresConfirmation,
		ContentHash:          row.ContentHash,
	}, nil
}

const insertUpdateSQL = `
INSERT OR IGNORE INTO updates (
	update_id, account_id, source, provider_message_id, provider_thread_id,
	received_at_utc, sender, subject, body_text, links_json, tags_json,
	parser_method, parse_confidence, evidence_json, requires_confirmation, content_hash
) VALUES (
	:update_id, :account_id, :source, :provider_message_id, :provider_thread_id,
	:received_at_utc, :sender, :subject, :body_text, :links_json, :tags_json,
	:parser_method, :parse_confidence, :evidence_json, :requires_confirmation, :content_hash
)`

// Upsert inserts cards, ignoring duplicates of (source, provider_message_id).
// Returns the number of rows actually inserted.
func (r *UpdatesRepo) Upsert(ctx context.Context, cards []model.UpdateCard) (int, error) {
	return upsertUpdates(ctx, r.db, cards)
}

// UpsertTx is Upsert inside a caller-owned transaction.
func (r *UpdatesRepo) UpsertTx(ctx context.Context, tx *sqlx.Tx, cards []model.UpdateCard) (int, error) {
	return upsertUpdates(ctx, tx, cards)
}

func upsertUpdates(ctx context.Context, q queryer, cards []model.UpdateCard) (int, error) {
	inserted := 0
	for _, card := range cards {
		res, err := sqlx.NamedExecContext(ctx, q, insertUpdateSQL, toUpdateRow(card))
		if err != nil {
			return inserted, fmt.Errorf("insert update %s: %w", card.ProviderMessageID, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return inserted, err
		}
		inserted += int(n)
	}
	return inserted, nil
}

// Count returns the total number of stored update cards.
func (r *UpdatesRepo) Count(ctx context.Context) (int, error) {
	var n int
	err := r.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM updates`)
	return n, err
}

// CountByAccount returns the number of stored cards for one account.
func (r *UpdatesRepo) CountByAccount(ctx context.Context, accountID string) (int, error) {
	var n int
	err := r.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM updates WHERE account_id = ?`, accountID)
	return n, err
}

// ListByAccount returns the cards for one account, newest first.
func (r *UpdatesRepo) ListByAccount(ctx context.Context, accountID string) ([]model.UpdateCard, error) {
	var rows []updateRow
	err := r.db.SelectContext(ctx, &rows,
		`SELECT * FROM updates WHERE account_id = ? ORDER BY received_at_utc DESC`, accountID)
	if err != nil {
		return nil, err
	}
	cards := make([]model.UpdateCard, 0, len(rows))
	for _, row := range rows {
		card, err := fromUpdateRow(row)
		if err != nil {
			return nil, err
		}
		cards = append(cards, card)
	}
	return cards, nil
}
