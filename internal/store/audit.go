package store

import (
	"context"
	"encoding/json"
	"sort"
	"strings"

	"github.com/jmoiron/sqlx"

	"mira/internal/logging"
	"mira/internal/model"
)

// AuditRepo is the append-only log of every decision and mutation. Audit
// failures are logged but never fail the caller's operation.
type AuditRepo struct {
	db     *sqlx.DB
	logger logging.Logger
}

// credential-shaped context keys are dropped before persistence.
var sensitiveContextKeys = []string{"token", "secret", "password", "credential", "api_key"}

func redactContext(context map[string]string) map[string]string {
	if len(context) == 0 {
		return nil
	}
	out := make(map[string]string, len(context))
	for k, v := range context {
		lower := strings.ToLower(k)
		drop := false
		for _, needle := range sensitiveContextKeys {
			if strings.Contains(lower, needle) {
				drop = true
				break
			}
		}
		if !drop {
			out[k] = v
		}
	}
	return out
}

// encodeContext renders the context map with sorted keys so identical
// contexts hash identically.
func encodeContext(context map[string]string) string {
	context = redactContext(context)
	if len(context) == 0 {
		return "{}"
	}
	keys := make([]string, 0, len(context))
	for k := range context {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	b.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			b.WriteByte(',')
		}
		key, _ := json.Marshal(k)
		val, _ := json.Marshal(context[k])
		b.Write(key)
		b.WriteByte(':')
		b.Write(val)
	}
	b.WriteByte('}')
	return b.String()
}

// Log appends one audit entry.
func (r *AuditRepo) Log(ctx context.Context, category, severity, message string, context map[string]string) {
	r.logTo(ctx, r.db, category, severity, message, context)
}

// LogTx appends one audit entry inside a caller-owned transaction, so the
// entry is durable exactly when the mutation it describes is.
func (r *AuditRepo) LogTx(ctx context.Context, tx *sqlx.Tx, category, severity, message string, context map[string]string) {
	r.logTo(ctx, tx, category, severity, message, context)
}

func (r *AuditRepo) logTo(ctx context.Context, q queryer, category, severity, message string, context map[string]string) {
	_, err := q.ExecContext(ctx, `
		INSERT INTO audit_log (category, severity, message, context_json, created_at_utc)
		VALUES (?, ?, ?, ?, ?)`,
		category, severity, message, encodeContext(context), encodeTime(utcNow()))
	if err != nil {
		r.logger.Error("audit append failed (%s/%s): %v", category, severity, err)
	}
}

// Recent returns the newest entries, capped at limit.
func (r *AuditRepo) Recent(ctx context.Context, limit int) ([]model.AuditEntry, error) {
	type auditRow struct {
		ID           int64  `db:"id"`
		Category     string `db:"category"`
		Severity     string `db:"severity"`
		Message      string `db:"message"`
		ContextJSON  string `db:"context_json"`
		CreatedAtUTC string `db:"created_at_utc"`
	}
	var rows []auditRow
	err := r.db.SelectContext(ctx, &rows,
		`SELECT * FROM audit_log ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	entries := make([]model.AuditEntry, 0, len(rows))
	for _, row := range rows {
		created, err := decodeTime(row.CreatedAtUTC)
		if err != nil {
			return nil, err
		}
		var contextMap map[string]string
		_ = json.Unmarshal([]byte(row.ContextJSON), &contextMap)
		entries = append(entries, model.AuditEntry{
			ID:           row.ID,
			Category:     row.Category,
			Severity:     row.Severity,
			Message:      row.Message,
			Context:      contextMap,
			CreatedAtUTC: created,
		})
	}
	return entries, nil
}
