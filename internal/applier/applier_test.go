package applier

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mira/internal/calendar"
	"mira/internal/config"
	"mira/internal/model"
	"mira/internal/planner"
	"mira/internal/store"
)

func newService(t *testing.T) (*Service, *store.Store, *calendar.MemoryStore) {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "mira.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	cfg := config.Default()
	cfg.DatabasePath = "unused"
	cal := calendar.NewMemoryStore(cfg.ManagedCalendarName)
	svc := New(st, planner.New(nil), cal, cfg, nil, nil)
	return svc, st, cal
}

func seedTask(t *testing.T, st *store.Store, title string, due time.Time) {
	t.Helper()
	task := model.Task{
		TaskID:           uuid.NewString(),
		Title:            title,
		Category:         model.CategoryAssignment,
		DueAtLocal:       &due,
		EstimatedMinutes: 120,
		MinDailyMinutes:  60,
		Priority:         3,
		StressWeight:     0.5,
		Status:           model.TaskTodo,
	}
	require.NoError(t, st.Tasks.Upsert(context.Background(), []model.Task{task}))
}

func TestRegenerateCreatesBlocks(t *testing.T) {
	svc, st, cal := newService(t)
	ctx := context.Background()
	now := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)
	seedTask(t, st, "CSE312 Homework", now.Add(36*time.Hour))

	outcome, err := svc.Regenerate(ctx, now, "manual")
	require.NoError(t, err)
	assert.Equal(t, int64(1), outcome.Revision)
	assert.Greater(t, outcome.Created, 0)
	assert.Zero(t, outcome.Deleted)
	assert.Equal(t, model.FeasibilityOnTrack, outcome.Feasibility)

	events, err := cal.ListEvents(ctx, now, now.Add(24*time.Hour))
	require.NoError(t, err)
	assert.Len(t, events, outcome.Created)
	for _, event := range events {
		assert.True(t, event.ManagedByAgent)
		// Mirrored rows track the backend event id.
		mirrored, err := st.Blocks.Get(ctx, event.BlockID)
		require.NoError(t, err)
		assert.Equal(t, event.CalendarEventID, mirrored.CalendarEventID)
	}

	latest, err := st.Revisions.LatestID(ctx)
	require.NoError(t, err)
	assert.Equal(t, outcome.Revision, latest)
}

func TestRegenerateStableWhenNothingChanged(t *testing.T) {
	svc, st, _ := newService(t)
	ctx := context.Background()
	now := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)
	seedTask(t, st, "CSE312 Homework", now.Add(36*time.Hour))

	first, err := svc.Regenerate(ctx, now, "manual")
	require.NoError(t, err)
	require.Greater(t, first.Created, 0)

	second, err := svc.Regenerate(ctx, now, "daily")
	require.NoError(t, err)
	assert.Zero(t, second.Created, "identical plans must not churn the calendar")
	assert.Zero(t, second.Deleted)
	assert.Equal(t, first.Revision+1, second.Revision, "the revision counter still advances")
}

func TestRegenerateReplacesStaleBlocks(t *testing.T) {
	svc, st, cal := newService(t)
	ctx := context.Background()
	now := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)
	seedTask(t, st, "CSE312 Homework", now.Add(36*time.Hour))

	_, err := svc.Regenerate(ctx, now, "manual")
	require.NoError(t, err)

	// A new urgent task displaces the earlier placement.
	seedTask(t, st, "CSE442 Project milestone", now.Add(12*time.Hour))
	outcome, err := svc.Regenerate(ctx, now, "new_update")
	require.NoError(t, err)
	assert.Greater(t, outcome.Created, 0)
	assert.Greater(t, outcome.Deleted, 0)

	events, err := cal.ListEvents(ctx, now, now.Add(24*time.Hour))
	require.NoError(t, err)
	titles := map[string]bool{}
	for _, e := range events {
		titles[e.Title] = true
	}
	assert.True(t, titles["CSE442 Project milestone"])
}

func TestRegenerateInfeasibleClearsManagedBlocks(t *testing.T) {
	svc, st, cal := newService(t)
	ctx := context.Background()
	now := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)
	seedTask(t, st, "CSE312 Homework", now.Add(36*time.Hour))

	_, err := svc.Regenerate(ctx, now, "manual")
	require.NoError(t, err)

	// Shrink the day until nothing fits.
	svc.cfg.Planner.WorkdayStartHour = 9
	svc.cfg.Planner.WorkdayEndHour = 10

	outcome, err := svc.Regenerate(ctx, now, "config_change")
	require.NoError(t, err)
	assert.Equal(t, model.FeasibilityInfeasible, outcome.Feasibility)
	assert.Zero(t, outcome.Created)
	assert.Greater(t, outcome.Deleted, 0)
	assert.NotEmpty(t, outcome.Unscheduled)

	events, err := cal.ListEvents(ctx, now, now.Add(24*time.Hour))
	require.NoError(t, err)
	assert.Empty(t, events, "an infeasible day leaves no managed blocks behind")
}

func TestRegenerateLeavesLockedAndForeignAlone(t *testing.T) {
	svc, st, cal := newService(t)
	ctx := context.Background()
	now := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)
	seedTask(t, st, "CSE312 Homework", now.Add(36*time.Hour))

	lectureID := cal.Seed(model.CalendarBlock{
		Title:        "CSE312 Lecture",
		StartLocal:   now.Add(2 * time.Hour),
		EndLocal:     now.Add(3 * time.Hour),
		CalendarName: "Personal",
	})
	dinnerID := cal.Seed(model.CalendarBlock{
		Title:          "Dinner",
		StartLocal:     now.Add(10 * time.Hour),
		EndLocal:       now.Add(11 * time.Hour),
		CalendarName:   svc.cfg.ManagedCalendarName,
		ManagedByAgent: true,
		LockLevel:      model.LockLocked,
	})

	_, err := svc.Regenerate(ctx, now, "manual")
	require.NoError(t, err)

	events, err := cal.ListEvents(ctx, now, now.Add(24*time.Hour))
	require.NoError(t, err)
	ids := map[string]bool{}
	for _, e := range events {
		ids[e.CalendarEventID] = true
	}
	assert.True(t, ids[lectureID], "foreign events survive every replan")
	assert.True(t, ids[dinnerID], "locked blocks survive every replan")
}
