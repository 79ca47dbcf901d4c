package planner

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mira/internal/config"
	"mira/internal/model"
)

func testConstraints() config.PlannerConfig {
	return config.Default().Planner
}

func testDate() time.Time {
	return time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
}

func dueIn(days int) *time.Time {
	t := testDate().AddDate(0, 0, days)
	return &t
}

func task(id, title string, est, minDaily, priority int, stress float64, due *time.Time) model.Task {
	return model.Task{
		TaskID:           id,
		Title:            title,
		Category:         model.CategoryAssignment,
		EstimatedMinutes: est,
		MinDailyMinutes:  minDaily,
		Priority:         priority,
		StressWeight:     stress,
		DueAtLocal:       due,
		Status:           model.TaskTodo,
	}
}

func TestPlanPlacesChunksWithBreaks(t *testing.T) {
	p := New(nil)
	// Due tomorrow: urgency base lifts demand to 120 minutes.
	result := p.Plan(Request{
		Date:         testDate(),
		Tasks:        []model.Task{task("t1", "CSE312 Homework", 180, 30, 3, 0.5, dueIn(1))},
		Constraints:  testConstraints(),
		PlanRevision: 7,
	})

	assert.Equal(t, model.FeasibilityOnTrack, result.Feasibility)
	assert.Empty(t, result.Unscheduled)
	require.Len(t, result.Blocks, 2)

	first, second := result.Blocks[0], result.Blocks[1]
	assert.Equal(t, "CSE312 Homework", first.Title)
	assert.Equal(t, 90, first.Minutes())
	assert.Equal(t, 30, second.Minutes())

	// The break gap separates consecutive chunks.
	gap := second.StartLocal.Sub(first.EndLocal)
	assert.Equal(t, 10*time.Minute, gap)

	// First chunk starts at the workday open.
	assert.Equal(t, 9, first.StartLocal.Hour())
	assert.Equal(t, 0, first.StartLocal.Minute())

	for _, b := range result.Blocks {
		assert.True(t, b.ManagedByAgent)
		assert.Equal(t, model.LockFlexible, b.LockLevel)
		assert.Equal(t, int64(7), b.PlanRevision)
		assert.Equal(t, "t1", b.TaskID)
		assert.NotEmpty(t, b.BlockID)
	}
}

func TestPlanInfeasibleDayPlacesNothing(t *testing.T) {
	c := testConstraints()
	c.WorkdayStartHour = 9
	c.WorkdayEndHour = 11 // 120 minutes, 75 after the buffer

	p := New(nil)
	result := p.Plan(Request{
		Date: testDate(),
		Tasks: []model.Task{
			task("t1", "Homework", 120, 60, 3, 0.5, dueIn(1)),
			task("t2", "Reading", 90, 60, 2, 0.2, dueIn(2)),
		},
		Constraints: c,
	})

	assert.Equal(t, model.FeasibilityInfeasible, result.Feasibility)
	assert.Empty(t, result.Blocks)
	assert.ElementsMatch(t, []string{"t1", "t2"}, result.Unscheduled)
}

func TestPlanAtRisk(t *testing.T) {
	c := testConstraints()
	c.WorkdayStartHour = 9
	c.WorkdayEndHour = 12 // 180 minutes, 135 after the buffer
	c.MaxDeepWorkMinutesPerDay = 600

	p := New(nil)
	// Demand 130 of 135 available: over the 90% line but still schedulable.
	result := p.Plan(Request{
		Date:        testDate(),
		Tasks:       []model.Task{task("t1", "Project", 130, 130, 3, 0.5, dueIn(10))},
		Constraints: c,
	})
	assert.Equal(t, model.FeasibilityAtRisk, result.Feasibility)
	assert.NotEmpty(t, result.Blocks)
}

func TestPlanDeepWorkCap(t *testing.T) {
	c := testConstraints()
	c.MaxDeepWorkMinutesPerDay = 60

	p := New(nil)
	result := p.Plan(Request{
		Date:        testDate(),
		Tasks:       []model.Task{task("t1", "Homework", 240, 120, 3, 0.5, dueIn(1))},
		Constraints: c,
	})

	total := 0
	for _, b := range result.Blocks {
		total += b.Minutes()
	}
	assert.LessOrEqual(t, total, 60)
	assert.Contains(t, result.Unscheduled, "t1", "leftover demand surfaces as unscheduled")
}

func TestPlanAvoidsLockedAndForeignBlocks(t *testing.T) {
	day := testDate()
	lecture := model.CalendarBlock{
		Title:          "CSE312 Lecture",
		StartLocal:     day.Add(9 * time.Hour),
		EndLocal:       day.Add(11 * time.Hour),
		ManagedByAgent: false,
	}
	locked := model.CalendarBlock{
		Title:          "Dinner",
		StartLocal:     day.Add(18 * time.Hour),
		EndLocal:       day.Add(19 * time.Hour),
		ManagedByAgent: true,
		LockLevel:      model.LockLocked,
	}

	p := New(nil)
	result := p.Plan(Request{
		Date:        day,
		Tasks:       []model.Task{task("t1", "Homework", 120, 30, 3, 0.5, dueIn(1))},
		Existing:    []model.CalendarBlock{lecture, locked},
		Constraints: testConstraints(),
	})

	require.NotEmpty(t, result.Blocks)
	for _, b := range result.Blocks {
		for _, busy := range []model.CalendarBlock{lecture, locked} {
			overlaps := b.StartLocal.Before(busy.EndLocal) && busy.StartLocal.Before(b.EndLocal)
			assert.False(t, overlaps, "block %s overlaps %s", b.Title, busy.Title)
		}
	}
	// The earliest free minute is right after the lecture.
	assert.Equal(t, 11, result.Blocks[0].StartLocal.Hour())
}

func TestPlanSleepWindowShrinksEarlyMorning(t *testing.T) {
	c := testConstraints()
	c.WorkdayStartHour = 6 // earlier than sleep_end 08:00

	p := New(nil)
	result := p.Plan(Request{
		Date:        testDate(),
		Tasks:       []model.Task{task("t1", "Homework", 60, 60, 3, 0.5, dueIn(1))},
		Constraints: c,
	})

	require.NotEmpty(t, result.Blocks)
	assert.Equal(t, 8, result.Blocks[0].StartLocal.Hour(), "placement waits for sleep_end")
}

func TestPlanDeterministicTieBreak(t *testing.T) {
	// Identical scores: order falls back to task id.
	tasks := []model.Task{
		task("t2", "Beta", 60, 60, 2, 0.5, dueIn(2)),
		task("t1", "Alpha", 60, 60, 2, 0.5, dueIn(2)),
	}

	p := New(nil)
	first := p.Plan(Request{Date: testDate(), Tasks: tasks, Constraints: testConstraints()})
	second := p.Plan(Request{Date: testDate(), Tasks: tasks, Constraints: testConstraints()})

	require.NotEmpty(t, first.Blocks)
	assert.Equal(t, "t1", first.Blocks[0].TaskID)

	require.Equal(t, len(first.Blocks), len(second.Blocks))
	for i := range first.Blocks {
		assert.Equal(t, first.Blocks[i].TaskID, second.Blocks[i].TaskID)
		assert.Equal(t, first.Blocks[i].StartLocal, second.Blocks[i].StartLocal)
	}
}

func TestDailyDemand(t *testing.T) {
	cases := []struct {
		name string
		task model.Task
		want int
	}{
		{"due tomorrow lifts to 120", task("a", "x", 300, 30, 1, 0, dueIn(1)), 120},
		{"due in three days lifts to 90", task("a", "x", 300, 30, 1, 0, dueIn(3)), 90},
		{"far due date uses min daily", task("a", "x", 300, 45, 1, 0, dueIn(30)), 45},
		{"estimate caps the demand", task("a", "x", 50, 30, 1, 0, dueIn(1)), 50},
		{"tiny estimate floors at 30", task("a", "x", 10, 120, 1, 0, dueIn(1)), 30},
		{"no due date uses min daily", task("a", "x", 300, 60, 1, 0, nil), 60},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, dailyDemand(tc.task, testDate()))
		})
	}
}

func TestScoreOrdering(t *testing.T) {
	now := testDate()
	urgent := task("a", "x", 60, 30, 1, 0, dueIn(0))
	relaxed := task("b", "x", 60, 30, 1, 0, dueIn(20))
	assert.Greater(t, score(urgent, now), score(relaxed, now))

	highPriority := task("a", "x", 60, 30, 5, 0, dueIn(5))
	lowPriority := task("b", "x", 60, 30, 1, 0, dueIn(5))
	assert.Greater(t, score(highPriority, now), score(lowPriority, now))

	calm := task("a", "x", 60, 30, 3, 0.1, dueIn(5))
	stressed := task("b", "x", 60, 30, 3, 0.9, dueIn(5))
	assert.Greater(t, score(calm, now), score(stressed, now))
}

func TestSubtractSplitsWindow(t *testing.T) {
	day := testDate()
	full := []window{{start: day.Add(9 * time.Hour), end: day.Add(17 * time.Hour)}}

	out := subtract(full, window{start: day.Add(12 * time.Hour), end: day.Add(13 * time.Hour)})
	require.Len(t, out, 2)
	assert.Equal(t, day.Add(9*time.Hour), out[0].start)
	assert.Equal(t, day.Add(12*time.Hour), out[0].end)
	assert.Equal(t, day.Add(13*time.Hour), out[1].start)
	assert.Equal(t, day.Add(17*time.Hour), out[1].end)

	// Non-overlapping busy ranges leave the window alone.
	out = subtract(full, window{start: day.Add(7 * time.Hour), end: day.Add(9 * time.Hour)})
	require.Len(t, out, 1)
	assert.Equal(t, full[0], out[0])
}
