package ingest

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus"

	"mira/internal/llm"
	"mira/internal/logging"
	"mira/internal/metrics"
	"mira/internal/model"
	"mira/internal/parser"
	"mira/internal/provider"
	"mira/internal/rules"
	"mira/internal/store"
)

// Service runs one account's sync: fetch from the cursor, parse, gate,
// derive tasks, and commit everything in one transaction with the advanced
// cursor. A failure anywhere leaves the cursor where it was, so the next
// attempt re-fetches the same messages and the idempotent upserts absorb
// the overlap.
type Service struct {
	account   model.Account
	client    provider.Client
	pipeline  *parser.Pipeline
	rules     *rules.Engine
	extractor llm.Client
	store     *store.Store
	threshold float64
	metrics   *metrics.Metrics
	logger    logging.Logger
}

// NewService wires a sync service for one account.
func NewService(
	account model.Account,
	client provider.Client,
	pipeline *parser.Pipeline,
	engine *rules.Engine,
	extractor llm.Client,
	st *store.Store,
	threshold float64,
	m *metrics.Metrics,
	logger logging.Logger,
) *Service {
	return &Service{
		account:   account,
		client:    client,
		pipeline:  pipeline,
		rules:     engine,
		extractor: extractor,
		store:     st,
		threshold: threshold,
		metrics:   m,
		logger:    logging.OrNop(logger),
	}
}

// Result summarizes one sync pass.
type Result struct {
	Fetched        int
	Stored         int
	TasksUpserted  int
	CursorAdvanced bool
}

// Sync runs one fetch-parse-store pass for the account.
func (s *Service) Sync(ctx context.Context) (Result, error) {
	if s.metrics != nil {
		timer := prometheus.NewTimer(s.metrics.SyncDuration.WithLabelValues(string(s.account.Provider)))
		defer timer.ObserveDuration()
	}

	cursor, found, err := s.store.Cursors.Get(ctx, s.account.Provider, s.account.AccountID)
	if err != nil {
		return Result{}, fmt.Errorf("read cursor: %w", err)
	}
	if !found {
		cursor = model.Cursor{Provider: s.account.Provider, AccountID: s.account.AccountID}
	}

	messages, next, err := s.client.FetchMessages(ctx, cursor)
	if err != nil {
		s.countSync("error")
		return Result{}, fmt.Errorf("fetch %s/%s: %w", s.account.Provider, s.account.AccountID, err)
	}

	var cards []model.UpdateCard
	var tasks []model.Task
	for _, msg := range messages {
		for _, parsed := range s.pipeline.Parse(msg) {
			card := parsed.Card
			card.AccountID = s.account.AccountID

			verdict := s.rules.ValidateUpdate(card, rules.UpdateContext{ConfidenceThreshold: s.threshold})
			if verdict.Decision == rules.Rejected {
				s.store.Audit.Log(ctx, "ingest", "warning",
					"update rejected: "+verdict.Reason,
					map[string]string{"message_id": card.ProviderMessageID, "sender": card.Sender})
				continue
			}
			cards = append(cards, card)

			if verdict.Decision != rules.Approved {
				continue
			}
			derived, err := s.deriveTasks(ctx, parsed, card)
			if err != nil {
				// Extraction trouble never blocks ingestion of the card itself.
				s.logger.Warn("task derivation failed for %s: %v", card.ProviderMessageID, err)
				continue
			}
			tasks = append(tasks, derived...)
		}
	}

	result := Result{Fetched: len(messages)}
	err = s.store.WithTx(ctx, func(tx *sqlx.Tx) error {
		stored, err := s.store.Updates.UpsertTx(ctx, tx, cards)
		if err != nil {
			return err
		}
		result.Stored = stored
		if err := s.store.Tasks.UpsertTx(ctx, tx, tasks); err != nil {
			return err
		}
		result.TasksUpserted = len(tasks)

		// The cursor only moves inside the same commit as the data it covers.
		if cursor.Before(next) {
			if err := s.store.Cursors.UpsertTx(ctx, tx, next); err != nil {
				return err
			}
			result.CursorAdvanced = true
		}
		return nil
	})
	if err != nil {
		s.countSync("error")
		return Result{}, fmt.Errorf("commit sync: %w", err)
	}

	s.countSync("ok")
	if s.metrics != nil {
		s.metrics.UpdatesStored.Add(float64(result.Stored))
		s.metrics.TasksUpserted.Add(float64(result.TasksUpserted))
	}
	if result.Stored > 0 {
		s.logger.Info("sync %s/%s: fetched=%d stored=%d tasks=%d",
			s.account.Provider, s.account.AccountID, result.Fetched, result.Stored, result.TasksUpserted)
	}
	return result, nil
}

// deriveTasks turns one approved card into task candidates: rule-based when
// the template gave us structure, the model fallback otherwise.
func (s *Service) deriveTasks(ctx context.Context, parsed parser.ParsedUpdate, card model.UpdateCard) ([]model.Task, error) {
	if task, ok := s.ruleBasedTask(parsed, card); ok {
		return []model.Task{task}, nil
	}
	if s.extractor == nil {
		return nil, nil
	}
	tasks, err := s.extractor.ExtractTasks(ctx, card)
	if err != nil {
		return nil, err
	}
	for i := range tasks {
		tasks[i].TaskID = uuid.NewString()
		tasks[i].Sources = []model.TaskSource{{
			TaskID:            tasks[i].TaskID,
			Source:            card.Source,
			AccountID:         card.AccountID,
			ProviderMessageID: card.ProviderMessageID,
			Confidence:        card.ParseConfidence,
		}}
		tasks[i].NormalizeDedupeKey()
	}
	return tasks, nil
}

// ruleBasedTask builds a task directly from the card when it carries an
// actionable type tag. Estimates are per-category defaults; the planner's
// demand model refines them against due dates.
func (s *Service) ruleBasedTask(parsed parser.ParsedUpdate, card model.UpdateCard) (model.Task, bool) {
	category, estimate, ok := categoryFor(card)
	if !ok {
		return model.Task{}, false
	}

	task := model.Task{
		TaskID:           uuid.NewString(),
		Title:            card.Subject,
		Category:         category,
		EstimatedMinutes: estimate,
		MinDailyMinutes:  estimate / 3,
		Priority:         3,
		StressWeight:     0.5,
		Status:           model.TaskTodo,
	}
	if parsed.DuePhrase != "" {
		if due, ok := parser.ParseDueDate(parsed.DuePhrase, card.ReceivedAtUTC); ok {
			task.DueAtLocal = &due
			task.Priority = 4
		}
	}
	task.Sources = []model.TaskSource{{
		TaskID:            task.TaskID,
		Source:            card.Source,
		AccountID:         card.AccountID,
		ProviderMessageID: card.ProviderMessageID,
		Confidence:        card.ParseConfidence,
	}}
	task.NormalizeDedupeKey()
	return task, true
}

func categoryFor(card model.UpdateCard) (model.Category, int, bool) {
	switch {
	case card.HasTag(parser.TagAssignment):
		return model.CategoryAssignment, 180, true
	case card.HasTag(parser.TagQuiz):
		return model.CategoryQuiz, 90, true
	case card.HasTag(parser.TagResponseRequired):
		return model.CategoryEmailReply, 20, true
	default:
		return "", 0, false
	}
}

func (s *Service) countSync(outcome string) {
	if s.metrics != nil {
		s.metrics.SyncRuns.WithLabelValues(string(s.account.Provider), outcome).Inc()
	}
}

// Account returns the account this service syncs.
func (s *Service) Account() model.Account { return s.account }
