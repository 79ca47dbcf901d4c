package command

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"mira/internal/calendar"
	"mira/internal/config"
	"mira/internal/logging"
	"mira/internal/metrics"
	"mira/internal/model"
	"mira/internal/rules"
	"mira/internal/store"
)

// maxUndoStack bounds the in-memory undo accelerator. The operations table
// stays authoritative; the stack only saves a query on the common path.
const maxUndoStack = 100

// Response is what goes back to the chat channel.
type Response struct {
	Text     string
	Decision rules.Decision
	Revision int64
}

// Service executes chat commands against the plan. Every mutation passes the
// rules firewall first and lands an operation record with enough state to be
// undone, including across a process restart.
type Service struct {
	store    *store.Store
	rules    *rules.Engine
	calendar calendar.Store
	cfg      config.Config
	metrics  *metrics.Metrics
	logger   logging.Logger

	mu        sync.Mutex
	undoStack []string
}

// New wires the command service.
func New(st *store.Store, engine *rules.Engine, cal calendar.Store, cfg config.Config, m *metrics.Metrics, logger logging.Logger) *Service {
	return &Service{
		store:    st,
		rules:    engine,
		calendar: cal,
		cfg:      cfg,
		metrics:  m,
		logger:   logging.OrNop(logger),
	}
}

// CurrentRevision hydrates the live plan revision: the revision log is
// authoritative, but an applied operation may have outrun a lost log write,
// so the maximum of both wins.
func (s *Service) CurrentRevision(ctx context.Context) (int64, error) {
	fromLog, err := s.store.Revisions.LatestID(ctx)
	if err != nil {
		return 0, err
	}
	fromOps, err := s.store.Operations.LatestAppliedRevision(ctx)
	if err != nil {
		return 0, err
	}
	if fromOps > fromLog {
		return fromOps, nil
	}
	return fromLog, nil
}

// Handle parses and executes one chat line.
func (s *Service) Handle(ctx context.Context, text string, now time.Time) (Response, error) {
	cmd, err := Parse(text)
	if err != nil {
		return Response{Text: err.Error() + "\n" + HelpText, Decision: rules.Rejected}, nil
	}

	switch cmd.Kind {
	case KindHelp:
		return Response{Text: HelpText, Decision: rules.Approved}, nil
	case KindToday:
		return s.today(ctx, now)
	case KindUndo:
		return s.Undo(ctx, now)
	}

	revision, err := s.CurrentRevision(ctx)
	if err != nil {
		return Response{}, err
	}
	edit := editFrom(cmd, now, revision)
	return s.Apply(ctx, edit, now)
}

func editFrom(cmd Command, now time.Time, revision int64) model.EditOperation {
	start := cmd.StartTime(now)
	edit := model.EditOperation{
		ExpectedPlanRevision: revision,
		StartLocal:           &start,
	}
	switch cmd.Kind {
	case KindAdd:
		end := start.Add(time.Duration(cmd.DurationMinutes) * time.Minute)
		edit.Intent = model.IntentCreateBlock
		edit.Title = cmd.Title
		edit.EndLocal = &end
	case KindMove:
		// Without an explicit duration the end stays open; Apply fills it
		// from the matched block so the move keeps its length.
		edit.Intent = model.IntentMoveBlock
		edit.FuzzyTitle = cmd.Title
		if cmd.DurationMinutes > 0 {
			end := start.Add(time.Duration(cmd.DurationMinutes) * time.Minute)
			edit.EndLocal = &end
		}
	}
	return edit
}

// Apply validates one structured edit and executes it when approved.
func (s *Service) Apply(ctx context.Context, edit model.EditOperation, now time.Time) (Response, error) {
	current, err := s.CurrentRevision(ctx)
	if err != nil {
		return Response{}, err
	}

	matches, foreign, err := s.resolveTarget(ctx, edit, now)
	if err != nil {
		return Response{}, err
	}
	// A move without an explicit duration keeps the target's length; when no
	// target resolved, assume a nominal length so the firewall judges the
	// command on its other merits first.
	if edit.Intent == model.IntentMoveBlock && edit.EndLocal == nil && edit.StartLocal != nil {
		length := 30 * time.Minute
		if len(matches) > 0 {
			length = matches[0].EndLocal.Sub(matches[0].StartLocal)
		}
		end := edit.StartLocal.Add(length)
		edit.EndLocal = &end
	}

	verdict := s.rules.ValidateEdit(edit, rules.EditContext{
		CurrentPlanRevision:    current,
		TouchesNonAgentManaged: foreign,
		MatchedTargetCount:     len(matches),
	})
	s.countCommand(verdict)

	switch verdict.Decision {
	case rules.Rejected:
		s.recordVerdict(ctx, edit, model.OperationRejected, verdict.Reason)
		text := "rejected: " + verdict.Reason
		if verdict.Reason == rules.ReasonStaleRevision {
			text = fmt.Sprintf("rejected: %s (plan is at revision %d; run /today and retry)",
				rules.ReasonStaleRevision, current)
		}
		return Response{Text: text, Decision: rules.Rejected, Revision: current}, nil

	case rules.RequiresConfirmation:
		s.recordVerdict(ctx, edit, model.OperationRequiresConfirmation, verdict.Reason)
		text := "needs confirmation: " + verdict.Reason
		if verdict.Reason == rules.ReasonAmbiguousTarget {
			text = "Ambiguous match: " + candidateList(matches)
		}
		return Response{Text: text, Decision: rules.RequiresConfirmation, Revision: current}, nil
	}

	switch edit.Intent {
	case model.IntentCreateBlock:
		return s.applyCreate(ctx, edit, current, now)
	case model.IntentMoveBlock:
		if len(matches) == 0 {
			s.recordVerdict(ctx, edit, model.OperationRejected, "no_matching_block")
			return Response{
				Text:     fmt.Sprintf("No managed block matches %q; run /today to see the plan.", edit.FuzzyTitle),
				Decision: rules.Rejected,
				Revision: current,
			}, nil
		}
		return s.applyMove(ctx, edit, matches[0], current, now)
	default:
		return Response{}, fmt.Errorf("intent %s is not executable here", edit.Intent)
	}
}

// resolveTarget finds the managed blocks a fuzzy title names, and whether the
// title instead points at an event the agent does not manage.
func (s *Service) resolveTarget(ctx context.Context, edit model.EditOperation, now time.Time) ([]model.CalendarBlock, bool, error) {
	if edit.FuzzyTitle == "" {
		return nil, false, nil
	}
	matches, err := s.calendar.FindByTitle(ctx, edit.FuzzyTitle)
	if err != nil {
		return nil, false, err
	}
	if len(matches) > 0 {
		return matches, false, nil
	}

	// Nothing managed matched; a same-named foreign event means the user is
	// aiming at something the agent must not touch unconfirmed.
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	events, err := s.calendar.ListEvents(ctx, dayStart, dayStart.AddDate(0, 0, 2))
	if err != nil {
		return nil, false, err
	}
	needle := strings.ToLower(edit.FuzzyTitle)
	for _, event := range events {
		if !event.ManagedByAgent && strings.Contains(strings.ToLower(event.Title), needle) {
			return nil, true, nil
		}
	}
	return nil, false, nil
}

func (s *Service) applyCreate(ctx context.Context, edit model.EditOperation, current int64, now time.Time) (Response, error) {
	block := model.CalendarBlock{
		BlockID:        uuid.NewString(),
		Title:          edit.Title,
		StartLocal:     *edit.StartLocal,
		EndLocal:       *edit.EndLocal,
		CalendarName:   s.cfg.ManagedCalendarName,
		ManagedByAgent: true,
		LockLevel:      model.LockFlexible,
		PlanRevision:   current + 1,
	}
	eventID, err := s.calendar.CreateEvent(ctx, block)
	if err != nil {
		return Response{}, fmt.Errorf("create event: %w", err)
	}
	block.CalendarEventID = eventID
	if err := s.store.Blocks.Insert(ctx, block); err != nil {
		return Response{}, err
	}

	revision, err := s.store.Revisions.Append(ctx, "command_add", store.RevisionSummary{Created: 1})
	if err != nil {
		return Response{}, err
	}
	envelope, err := model.EncodeUndoEnvelope(model.UndoEnvelope{
		Kind:            model.EnvelopeCreatedBlock,
		BlockID:         block.BlockID,
		CalendarEventID: eventID,
	})
	if err != nil {
		return Response{}, err
	}
	if err := s.recordApplied(ctx, edit, revision, envelope, now); err != nil {
		return Response{}, err
	}

	return Response{
		Text: fmt.Sprintf("Added %q %s (revision %d)",
			block.Title, renderRange(block.StartLocal, block.EndLocal), revision),
		Decision: rules.Approved,
		Revision: revision,
	}, nil
}

func (s *Service) applyMove(ctx context.Context, edit model.EditOperation, target model.CalendarBlock, current int64, now time.Time) (Response, error) {
	previous := target
	start := *edit.StartLocal
	end := *edit.EndLocal

	if err := s.calendar.MoveEvent(ctx, target.CalendarEventID, start, end); err != nil {
		return Response{}, fmt.Errorf("move event: %w", err)
	}

	revision, err := s.store.Revisions.Append(ctx, "command_move", store.RevisionSummary{Moved: 1})
	if err != nil {
		return Response{}, err
	}

	target.StartLocal = start
	target.EndLocal = end
	target.PlanRevision = revision
	if err := s.store.Blocks.Insert(ctx, target); err != nil {
		return Response{}, err
	}

	envelope, err := model.EncodeUndoEnvelope(model.UndoEnvelope{
		Kind:            model.EnvelopeMovedBlock,
		BlockID:         target.BlockID,
		CalendarEventID: target.CalendarEventID,
		Previous:        &previous,
	})
	if err != nil {
		return Response{}, err
	}
	if err := s.recordApplied(ctx, edit, revision, envelope, now); err != nil {
		return Response{}, err
	}

	return Response{
		Text: fmt.Sprintf("Moved %q to %s (revision %d)",
			target.Title, renderRange(start, end), revision),
		Decision: rules.Approved,
		Revision: revision,
	}, nil
}

// Undo reverts the most recent applied add or move. The operations table is
// the source of truth, so undo works even when the mutation happened in a
// previous process.
func (s *Service) Undo(ctx context.Context, now time.Time) (Response, error) {
	op, err := s.nextUndoable(ctx)
	if err != nil {
		return Response{Text: "Nothing to undo.", Decision: rules.Rejected}, nil
	}

	envelope, err := model.DecodeUndoEnvelope(op.ResultJSON)
	if err != nil || envelope.Kind == "" {
		return Response{}, fmt.Errorf("operation %s has no undo envelope", op.OpID)
	}

	var summary store.RevisionSummary
	var text string
	switch envelope.Kind {
	case model.EnvelopeCreatedBlock:
		if err := s.calendar.DeleteEvent(ctx, envelope.CalendarEventID); err != nil {
			return Response{}, fmt.Errorf("undo create: %w", err)
		}
		if err := s.store.Blocks.Delete(ctx, envelope.BlockID); err != nil {
			return Response{}, err
		}
		summary = store.RevisionSummary{Deleted: 1}
		text = "Undid the last add."

	case model.EnvelopeMovedBlock:
		prev := envelope.Previous
		if prev == nil {
			return Response{}, fmt.Errorf("operation %s: move envelope missing prior block", op.OpID)
		}
		if err := s.calendar.MoveEvent(ctx, envelope.CalendarEventID, prev.StartLocal, prev.EndLocal); err != nil {
			return Response{}, fmt.Errorf("undo move: %w", err)
		}
		if err := s.store.Blocks.Insert(ctx, *prev); err != nil {
			return Response{}, err
		}
		summary = store.RevisionSummary{Moved: 1}
		text = fmt.Sprintf("Undid the last move; %q is back at %s.",
			prev.Title, renderRange(prev.StartLocal, prev.EndLocal))

	default:
		return Response{}, fmt.Errorf("operation %s: unknown envelope kind %q", op.OpID, envelope.Kind)
	}

	if err := s.store.Operations.MarkUndone(ctx, op.OpID); err != nil {
		return Response{}, err
	}
	revision, err := s.store.Revisions.Append(ctx, "undo", summary)
	if err != nil {
		return Response{}, err
	}
	s.store.Audit.Log(ctx, "command", "info", "undo applied",
		map[string]string{"op_id": op.OpID, "kind": envelope.Kind})

	return Response{Text: text, Decision: rules.Approved, Revision: revision}, nil
}

// nextUndoable pops the in-memory stack, falling back to the operations
// table after a restart or when the stack has been exhausted.
func (s *Service) nextUndoable(ctx context.Context) (model.Operation, error) {
	s.mu.Lock()
	for len(s.undoStack) > 0 {
		opID := s.undoStack[len(s.undoStack)-1]
		s.undoStack = s.undoStack[:len(s.undoStack)-1]
		s.mu.Unlock()
		op, err := s.store.Operations.Get(ctx, opID)
		if err == nil && op.Status == model.OperationApplied {
			return op, nil
		}
		s.mu.Lock()
	}
	s.mu.Unlock()
	return s.store.Operations.LatestUndoable(ctx)
}

func (s *Service) pushUndo(opID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.undoStack = append(s.undoStack, opID)
	if len(s.undoStack) > maxUndoStack {
		s.undoStack = s.undoStack[len(s.undoStack)-maxUndoStack:]
	}
}

func (s *Service) recordApplied(ctx context.Context, edit model.EditOperation, revision int64, envelope string, now time.Time) error {
	op := model.Operation{
		OpID:                 uuid.NewString(),
		ExpectedPlanRevision: edit.ExpectedPlanRevision,
		AppliedRevision:      revision,
		Intent:               edit.Intent,
		Status:               model.OperationApplied,
		PayloadJSON:          encodePayload(edit),
		ResultJSON:           envelope,
		CreatedAtUTC:         now.UTC(),
	}
	if err := s.store.Operations.Insert(ctx, op); err != nil {
		return err
	}
	s.pushUndo(op.OpID)
	if s.metrics != nil {
		s.metrics.PlanRevision.Set(float64(revision))
	}
	return nil
}

func (s *Service) recordVerdict(ctx context.Context, edit model.EditOperation, status model.OperationStatus, reason string) {
	op := model.Operation{
		OpID:                 uuid.NewString(),
		ExpectedPlanRevision: edit.ExpectedPlanRevision,
		Intent:               edit.Intent,
		Status:               status,
		PayloadJSON:          encodePayload(edit),
		ResultJSON:           fmt.Sprintf(`{"reason":%q}`, reason),
	}
	if err := s.store.Operations.Insert(ctx, op); err != nil {
		s.logger.Error("record %s operation: %v", status, err)
	}
}

func encodePayload(edit model.EditOperation) string {
	parts := []string{fmt.Sprintf(`"intent":%q`, edit.Intent)}
	if edit.Title != "" {
		parts = append(parts, fmt.Sprintf(`"title":%q`, edit.Title))
	}
	if edit.FuzzyTitle != "" {
		parts = append(parts, fmt.Sprintf(`"fuzzy_title":%q`, edit.FuzzyTitle))
	}
	return "{" + strings.Join(parts, ",") + "}"
}

func (s *Service) today(ctx context.Context, now time.Time) (Response, error) {
	revision, err := s.CurrentRevision(ctx)
	if err != nil {
		return Response{}, err
	}
	blocks, err := s.store.Blocks.ListOnDate(ctx, now)
	if err != nil {
		return Response{}, err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Plan for %s (revision %d):\n", now.Format("Mon Jan 2"), revision)
	if len(blocks) == 0 {
		b.WriteString("  nothing scheduled")
	}
	for _, block := range blocks {
		fmt.Fprintf(&b, "  %s  %s\n", renderRange(block.StartLocal, block.EndLocal), block.Title)
	}
	return Response{Text: strings.TrimRight(b.String(), "\n"), Decision: rules.Approved, Revision: revision}, nil
}

func (s *Service) countCommand(verdict rules.Verdict) {
	if s.metrics != nil {
		s.metrics.Commands.WithLabelValues(string(verdict.Decision)).Inc()
	}
}

func renderRange(start, end time.Time) string {
	return fmt.Sprintf("%s-%s", start.Format("15:04"), end.Format("15:04"))
}

func candidateList(matches []model.CalendarBlock) string {
	names := make([]string, 0, len(matches))
	for _, m := range matches {
		names = append(names, fmt.Sprintf("%q at %s", m.Title, renderRange(m.StartLocal, m.EndLocal)))
	}
	return strings.Join(names, ", ") + "; be more specific."
}
