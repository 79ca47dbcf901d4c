package command

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTable(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want Command
	}{
		{"today", "/today", Command{Kind: KindToday}},
		{"today no slash", "today", Command{Kind: KindToday}},
		{"undo", "/undo", Command{Kind: KindUndo}},
		{"help", "/help", Command{Kind: KindHelp}},
		{"empty is help", "   ", Command{Kind: KindHelp}},
		{
			"add with defaults",
			`/add "CSE312 review" 45m`,
			Command{Kind: KindAdd, Title: "CSE312 review", DurationMinutes: 45, Day: "today", Hour: 19},
		},
		{
			"add tomorrow with pm time",
			`/add "Gym" 60m tomorrow 6pm`,
			Command{Kind: KindAdd, Title: "Gym", DurationMinutes: 60, Day: "tomorrow", Hour: 18, HasTime: true},
		},
		{
			"add with minutes",
			`/add "Call advisor" 15m today 9:30am`,
			Command{Kind: KindAdd, Title: "Call advisor", DurationMinutes: 15, Day: "today", Hour: 9, Minute: 30, HasTime: true},
		},
		{
			"move with to",
			`/move "Assignment 3" to 8pm`,
			Command{Kind: KindMove, Title: "Assignment 3", Day: "today", Hour: 20, HasTime: true},
		},
		{
			"move tomorrow 24h clock",
			`/move "Quiz prep" tomorrow 14:00`,
			Command{Kind: KindMove, Title: "Quiz prep", Day: "tomorrow", Hour: 14, HasTime: true},
		},
		{
			"move with resize",
			`/move "Quiz prep" 2pm 45m`,
			Command{Kind: KindMove, Title: "Quiz prep", Day: "today", Hour: 14, DurationMinutes: 45, HasTime: true},
		},
		{
			"midnight is 12am",
			`/move "Laundry" 12am`,
			Command{Kind: KindMove, Title: "Laundry", Day: "today", Hour: 0, HasTime: true},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Parse(tc.in)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestParseRejects(t *testing.T) {
	bad := []string{
		"/add review 45m",          // title must be quoted
		`/add "review" 0m`,         // zero duration
		`/add "review" 2000m`,      // over a day
		`/add "review" 45m 25:00`,  // no such hour
		`/move "review"`,           // move needs a time
		`/move "review" 7:75pm`,    // bad minutes
		"/tomorrow",                // not a command
	}
	for _, in := range bad {
		_, err := Parse(in)
		assert.Error(t, err, "input %q", in)
	}
}

func TestStartTimeResolvesDay(t *testing.T) {
	loc, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)
	now := time.Date(2026, 3, 1, 22, 15, 0, 0, loc)

	cmd, err := Parse(`/add "Late reading" 30m`)
	require.NoError(t, err)
	start := cmd.StartTime(now)
	assert.Equal(t, time.Date(2026, 3, 1, 19, 0, 0, 0, loc), start,
		"default lands at 7pm today even when that is already past")

	cmd, err = Parse(`/move "Gym" tomorrow 6:30am`)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 3, 2, 6, 30, 0, 0, loc), cmd.StartTime(now))
}
