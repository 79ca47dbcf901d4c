package calendar

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mira/internal/model"
)

func block(title string, start time.Time, minutes int) model.CalendarBlock {
	return model.CalendarBlock{
		Title:      title,
		StartLocal: start,
		EndLocal:   start.Add(time.Duration(minutes) * time.Minute),
	}
}

func TestMemoryStoreEnsureManagedCalendar(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore("Mira Plan")

	require.NoError(t, store.EnsureManagedCalendar(ctx, "Mira Plan"))
	assert.ErrorIs(t, store.EnsureManagedCalendar(ctx, "Other Plan"), ErrCalendarNotAvailable)
	assert.Error(t, store.EnsureManagedCalendar(ctx, ""))
}

func TestMemoryStoreLifecycle(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore("Mira Plan")
	start := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

	id, err := store.CreateEvent(ctx, block("CSE312 Homework", start, 90))
	require.NoError(t, err)
	require.NotEmpty(t, id)

	events, err := store.ListEvents(ctx, start.Add(-time.Hour), start.Add(4*time.Hour))
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "Mira Plan", events[0].CalendarName)
	assert.True(t, events[0].ManagedByAgent)

	newStart := start.Add(2 * time.Hour)
	require.NoError(t, store.MoveEvent(ctx, id, newStart, newStart.Add(time.Hour)))

	events, err = store.ListEvents(ctx, start.Add(-time.Hour), start.Add(4*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, newStart, events[0].StartLocal)

	require.NoError(t, store.DeleteEvent(ctx, id))
	assert.ErrorIs(t, store.DeleteEvent(ctx, id), ErrEventNotFound)
}

func TestMemoryStoreRefusesForeignEvents(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore("Mira Plan")
	start := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

	lecture := block("CSE312 Lecture", start, 50)
	lecture.CalendarName = "Personal"
	id := store.Seed(lecture)

	err := store.MoveEvent(ctx, id, start.Add(time.Hour), start.Add(2*time.Hour))
	assert.ErrorIs(t, err, ErrPermissionDenied)
	assert.ErrorIs(t, store.DeleteEvent(ctx, id), ErrPermissionDenied)

	// Foreign events stay visible for window construction.
	events, err := store.ListEvents(ctx, start.Add(-time.Hour), start.Add(2*time.Hour))
	require.NoError(t, err)
	assert.Len(t, events, 1)
}

func TestMemoryStoreFindByTitle(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore("Mira Plan")
	start := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

	_, err := store.CreateEvent(ctx, block("CSE312 Homework 3", start, 60))
	require.NoError(t, err)
	_, err = store.CreateEvent(ctx, block("CSE312 Homework 4", start.Add(2*time.Hour), 60))
	require.NoError(t, err)
	_, err = store.CreateEvent(ctx, block("Gym", start.Add(4*time.Hour), 60))
	require.NoError(t, err)

	foreign := block("Homework club", start, 60)
	foreign.CalendarName = "Personal"
	store.Seed(foreign)

	matches, err := store.FindByTitle(ctx, "homework")
	require.NoError(t, err)
	require.Len(t, matches, 2, "foreign calendars are out of scope")
	assert.Equal(t, "CSE312 Homework 3", matches[0].Title)

	matches, err = store.FindByTitle(ctx, "homework 4")
	require.NoError(t, err)
	require.Len(t, matches, 1)

	matches, err = store.FindByTitle(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestMemoryStoreRejectsInvalidRanges(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore("Mira Plan")
	start := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

	bad := model.CalendarBlock{Title: "x", StartLocal: start, EndLocal: start}
	_, err := store.CreateEvent(ctx, bad)
	assert.Error(t, err)

	id, err := store.CreateEvent(ctx, block("x", start, 30))
	require.NoError(t, err)
	assert.Error(t, store.MoveEvent(ctx, id, start, start))
}
