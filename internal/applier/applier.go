package applier

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"mira/internal/calendar"
	"mira/internal/config"
	"mira/internal/logging"
	"mira/internal/metrics"
	"mira/internal/model"
	"mira/internal/planner"
	"mira/internal/store"
)

// Service regenerates the daily plan: run the planner, diff the result
// against what is already on the calendar, and apply only the difference.
// Blocks whose identity survives the diff are never touched, so a replan
// that changes nothing mutates nothing.
type Service struct {
	store    *store.Store
	planner  *planner.Planner
	calendar calendar.Store
	cfg      config.Config
	metrics  *metrics.Metrics
	logger   logging.Logger
}

// New wires the regeneration service.
func New(st *store.Store, pl *planner.Planner, cal calendar.Store, cfg config.Config, m *metrics.Metrics, logger logging.Logger) *Service {
	return &Service{
		store:    st,
		planner:  pl,
		calendar: cal,
		cfg:      cfg,
		metrics:  m,
		logger:   logging.OrNop(logger),
	}
}

// Outcome summarizes one regeneration.
type Outcome struct {
	Revision    int64
	Created     int
	Deleted     int
	Feasibility model.FeasibilityState
	Unscheduled []string
}

// Regenerate plans the given day and reconciles the calendar to it.
// The trigger tag names what asked for the replan and lands in the
// revision log.
func (s *Service) Regenerate(ctx context.Context, now time.Time, trigger string) (Outcome, error) {
	tasks, err := s.store.Tasks.ListActive(ctx)
	if err != nil {
		return Outcome{}, fmt.Errorf("list active tasks: %w", err)
	}

	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	existing, err := s.calendar.ListEvents(ctx, dayStart, dayStart.Add(24*time.Hour))
	if err != nil {
		return Outcome{}, fmt.Errorf("list calendar events: %w", err)
	}

	latest, err := s.store.Revisions.LatestID(ctx)
	if err != nil {
		return Outcome{}, fmt.Errorf("read latest revision: %w", err)
	}
	nextRevision := latest + 1

	result := s.planner.Plan(planner.Request{
		Date:         now,
		Tasks:        tasks,
		Existing:     existing,
		Constraints:  s.cfg.Planner,
		PlanRevision: nextRevision,
	})

	toCreate, toDelete := diffBlocks(result.Blocks, existing, s.cfg.ManagedCalendarName)

	deleted := 0
	for _, block := range toDelete {
		if err := s.calendar.DeleteEvent(ctx, block.CalendarEventID); err != nil {
			s.store.Audit.Log(ctx, "applier", "error",
				fmt.Sprintf("delete event failed: %v", err),
				map[string]string{"title": block.Title, "event_id": block.CalendarEventID})
			continue
		}
		if err := s.store.Blocks.Delete(ctx, block.BlockID); err != nil {
			s.logger.Error("unmirror block %s: %v", block.BlockID, err)
		}
		deleted++
	}

	created := 0
	for _, block := range toCreate {
		block.CalendarName = s.cfg.ManagedCalendarName
		eventID, err := s.calendar.CreateEvent(ctx, block)
		if err != nil {
			s.store.Audit.Log(ctx, "applier", "error",
				fmt.Sprintf("create event failed: %v", err),
				map[string]string{"title": block.Title})
			continue
		}
		block.CalendarEventID = eventID
		if err := s.store.Blocks.Insert(ctx, block); err != nil {
			s.logger.Error("mirror block %s: %v", block.BlockID, err)
		}
		created++
	}

	revision, err := s.store.Revisions.Append(ctx, trigger, store.RevisionSummary{
		Created: created,
		Deleted: deleted,
	})
	if err != nil {
		return Outcome{}, fmt.Errorf("append revision: %w", err)
	}

	op := model.Operation{
		OpID:                 uuid.NewString(),
		ExpectedPlanRevision: latest,
		AppliedRevision:      revision,
		Intent:               model.IntentRegeneratePlan,
		Status:               model.OperationApplied,
		PayloadJSON:          fmt.Sprintf(`{"trigger":%q}`, trigger),
		CreatedAtUTC:         now.UTC(),
	}
	if err := s.store.Operations.Insert(ctx, op); err != nil {
		return Outcome{}, fmt.Errorf("record regenerate operation: %w", err)
	}

	if s.metrics != nil {
		s.metrics.Regenerations.Inc()
		s.metrics.PlanRevision.Set(float64(revision))
	}
	s.logger.Info("regenerated plan: revision=%d trigger=%s created=%d deleted=%d feasibility=%s",
		revision, trigger, created, deleted, result.Feasibility)

	return Outcome{
		Revision:    revision,
		Created:     created,
		Deleted:     deleted,
		Feasibility: result.Feasibility,
		Unscheduled: result.Unscheduled,
	}, nil
}

// diffBlocks splits desired vs observed into creations and deletions by
// diff key. Only managed flexible blocks are ever deleted; locked and
// foreign events pass through untouched.
func diffBlocks(desired, observed []model.CalendarBlock, managedName string) (toCreate, toDelete []model.CalendarBlock) {
	observedKeys := make(map[string]bool, len(observed))
	for _, block := range observed {
		if block.ManagedByAgent && block.LockLevel != model.LockLocked {
			observedKeys[block.DiffKey()] = true
		}
	}
	desiredKeys := make(map[string]bool, len(desired))
	for _, block := range desired {
		desiredKeys[block.DiffKey()] = true
	}

	for _, block := range desired {
		if !observedKeys[block.DiffKey()] {
			toCreate = append(toCreate, block)
		}
	}
	for _, block := range observed {
		if !block.ManagedByAgent || block.LockLevel == model.LockLocked {
			continue
		}
		if block.CalendarName != managedName {
			continue
		}
		if !desiredKeys[block.DiffKey()] {
			toDelete = append(toDelete, block)
		}
	}
	return toCreate, toDelete
}
