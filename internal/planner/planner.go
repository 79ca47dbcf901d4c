package planner

import (
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"mira/internal/config"
	"mira/internal/logging"
	"mira/internal/model"
)

// minimum chunk worth placing, in minutes
const minChunkMinutes = 25

// Request is one planning invocation for a single day.
type Request struct {
	Date         time.Time
	Tasks        []model.Task
	Existing     []model.CalendarBlock
	Constraints  config.PlannerConfig
	PlanRevision int64
}

// Result is the planner's verdict: the blocks to place, the day's
// feasibility, and the tasks that did not fit.
type Result struct {
	Blocks      []model.CalendarBlock
	Feasibility model.FeasibilityState
	Unscheduled []string
}

// Planner allocates tasks into free windows by score. Pure and
// deterministic: identical inputs produce identical output, ties broken by
// task id.
type Planner struct {
	logger logging.Logger
}

// New returns a planner.
func New(logger logging.Logger) *Planner {
	return &Planner{logger: logging.OrNop(logger)}
}

// window is one free time range, consumed front to back.
type window struct {
	start time.Time
	end   time.Time
}

func (w window) minutes() int { return int(w.end.Sub(w.start) / time.Minute) }

// Plan builds the day's schedule.
func (p *Planner) Plan(req Request) Result {
	windows := p.buildWindows(req)

	available := 0
	for _, w := range windows {
		available += w.minutes()
	}
	available -= req.Constraints.FreeSpaceBufferMinutes

	demands := make(map[string]int, len(req.Tasks))
	required := 0
	for _, task := range req.Tasks {
		d := dailyDemand(task, req.Date)
		demands[task.TaskID] = d
		required += d
	}

	feasibility := model.FeasibilityOnTrack
	switch {
	case required > available:
		feasibility = model.FeasibilityInfeasible
	case float64(required) > 0.9*float64(available):
		feasibility = model.FeasibilityAtRisk
	}

	if feasibility == model.FeasibilityInfeasible {
		// Do not place anything the day cannot hold; surface every task
		// instead of a partial schedule that silently drops the tail.
		unscheduled := make([]string, 0, len(req.Tasks))
		for _, task := range sortedByScore(req.Tasks, req.Date) {
			unscheduled = append(unscheduled, task.TaskID)
		}
		p.logger.Warn("plan infeasible: required=%dm available=%dm", required, available)
		return Result{Feasibility: feasibility, Unscheduled: unscheduled}
	}

	blocks, unscheduled := p.place(req, windows, demands)
	return Result{Blocks: blocks, Feasibility: feasibility, Unscheduled: unscheduled}
}

// buildWindows constructs the free windows for the day: the workday range
// capped by avoid_after, minus the synthesized sleep block and every existing
// block that is locked or not agent-managed.
func (p *Planner) buildWindows(req Request) []window {
	c := req.Constraints
	day := req.Date
	dayStart := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, day.Location())

	endHour := c.WorkdayEndHour
	if c.AvoidAfterHour > 0 && c.AvoidAfterHour < endHour {
		endHour = c.AvoidAfterHour
	}
	windows := []window{{
		start: dayStart.Add(time.Duration(c.WorkdayStartHour) * time.Hour),
		end:   dayStart.Add(time.Duration(endHour) * time.Hour),
	}}

	busy := make([]window, 0, len(req.Existing)+1)
	for _, block := range req.Existing {
		if block.LockLevel == model.LockLocked || !block.ManagedByAgent {
			busy = append(busy, window{start: block.StartLocal, end: block.EndLocal})
		}
	}
	if sleep, ok := sleepWindow(dayStart, c.SleepStart, c.SleepEnd); ok {
		busy = append(busy, sleep)
	}

	for _, b := range busy {
		windows = subtract(windows, b)
	}
	sort.Slice(windows, func(i, j int) bool { return windows[i].start.Before(windows[j].start) })
	return windows
}

// sleepWindow synthesizes the locked sleep range for the day. A window that
// crosses midnight contributes its morning half (00:00..end) to this day.
func sleepWindow(dayStart time.Time, startHHMM, endHHMM string) (window, bool) {
	start, okStart := parseHHMM(startHHMM)
	end, okEnd := parseHHMM(endHHMM)
	if !okStart || !okEnd {
		return window{}, false
	}
	if start <= end {
		return window{
			start: dayStart.Add(start),
			end:   dayStart.Add(end),
		}, true
	}
	// Crosses midnight: the part that lands on this day runs from 00:00 to
	// the end time; the evening part belongs to this day too.
	return window{start: dayStart, end: dayStart.Add(end)}, true
}

func parseHHMM(s string) (time.Duration, bool) {
	parts := strings.SplitN(strings.TrimSpace(s), ":", 2)
	if len(parts) != 2 {
		return 0, false
	}
	h, err1 := strconv.Atoi(parts[0])
	m, err2 := strconv.Atoi(parts[1])
	if err1 != nil || err2 != nil || h < 0 || h > 23 || m < 0 || m > 59 {
		return 0, false
	}
	return time.Duration(h)*time.Hour + time.Duration(m)*time.Minute, true
}

// subtract removes the busy range from every window, splitting where needed.
func subtract(windows []window, busy window) []window {
	var out []window
	for _, w := range windows {
		if busy.end.Before(w.start) || busy.end.Equal(w.start) ||
			busy.start.After(w.end) || busy.start.Equal(w.end) {
			out = append(out, w)
			continue
		}
		if busy.start.After(w.start) {
			out = append(out, window{start: w.start, end: busy.start})
		}
		if busy.end.Before(w.end) {
			out = append(out, window{start: busy.end, end: w.end})
		}
	}
	return out
}

// dailyDemand computes how many minutes this task wants today:
// min(max(30, estimated), max(min_daily, base_by_urgency)) where the urgency
// base is 120 within one day of the due date, 90 within three.
func dailyDemand(task model.Task, now time.Time) int {
	days := task.DaysUntilDue(now)
	base := task.MinDailyMinutes
	switch {
	case days <= 1:
		base = 120
	case days <= 3:
		base = 90
	}
	allowance := task.MinDailyMinutes
	if base > allowance {
		allowance = base
	}
	want := task.EstimatedMinutes
	if want < 30 {
		want = 30
	}
	if want < allowance {
		return want
	}
	return allowance
}

// score ranks tasks for placement: urgency dominates, then priority, a small
// nudge for longer work, and a stress penalty.
func score(task model.Task, now time.Time) float64 {
	days := task.DaysUntilDue(now)
	return 200.0/float64(days+1) +
		20.0*float64(task.Priority) +
		0.05*float64(task.EstimatedMinutes) -
		10.0*task.StressWeight
}

func sortedByScore(tasks []model.Task, now time.Time) []model.Task {
	out := make([]model.Task, len(tasks))
	copy(out, tasks)
	sort.SliceStable(out, func(i, j int) bool {
		si, sj := score(out[i], now), score(out[j], now)
		if si != sj {
			return si > sj
		}
		return out[i].TaskID < out[j].TaskID
	})
	return out
}

// place walks tasks in score order, chunking each into the earliest window
// with capacity and inserting a break after each chunk. The daily deep-work
// cap bounds total placed minutes.
func (p *Planner) place(req Request, windows []window, demands map[string]int) ([]model.CalendarBlock, []string) {
	c := req.Constraints
	chunkSize := c.BreakEveryMinutes
	if chunkSize < 30 {
		chunkSize = 30
	}
	capLeft := c.MaxDeepWorkMinutesPerDay

	var blocks []model.CalendarBlock
	var unscheduled []string

	for _, task := range sortedByScore(req.Tasks, req.Date) {
		remaining := demands[task.TaskID]
		placedAny := false

		for remaining >= minChunkMinutes && capLeft >= minChunkMinutes {
			chunk := chunkSize
			if chunk > remaining {
				chunk = remaining
			}
			if chunk > capLeft {
				chunk = capLeft
			}
			if chunk < minChunkMinutes {
				break
			}

			idx := -1
			for i := range windows {
				if windows[i].minutes() >= chunk {
					idx = i
					break
				}
			}
			if idx < 0 {
				break
			}

			start := windows[idx].start
			end := start.Add(time.Duration(chunk) * time.Minute)
			blocks = append(blocks, model.CalendarBlock{
				BlockID:        uuid.NewString(),
				TaskID:         task.TaskID,
				Title:          blockTitle(task),
				StartLocal:     start,
				EndLocal:       end,
				ManagedByAgent: true,
				LockLevel:      model.LockFlexible,
				PlanRevision:   req.PlanRevision,
			})

			// The break gap is consumed from the same window.
			consumed := end.Add(time.Duration(c.BreakDurationMinutes) * time.Minute)
			if consumed.After(windows[idx].end) {
				consumed = windows[idx].end
			}
			windows[idx].start = consumed

			remaining -= chunk
			capLeft -= chunk
			placedAny = true
		}

		if remaining >= minChunkMinutes || (!placedAny && remaining > 0) {
			unscheduled = append(unscheduled, task.TaskID)
		}
	}
	return blocks, unscheduled
}

func blockTitle(task model.Task) string {
	return task.Title
}
