package calendar

import (
	"context"
	"errors"
	"time"

	"mira/internal/model"
)

// Typed failures surfaced by calendar backends.
var (
	ErrPermissionDenied     = errors.New("calendar permission denied")
	ErrCalendarNotAvailable = errors.New("calendar not available")
	ErrEventNotFound        = errors.New("calendar event not found")
	ErrUnsupportedPlatform  = errors.New("calendar platform not supported")
)

// Store is the write capability over the managed calendar. Implementations
// scope every operation to the managed calendar name: events elsewhere are
// visible through ListEvents but never mutated.
type Store interface {
	// EnsureManagedCalendar creates the managed calendar when it does not
	// exist yet, so blocks never land on a personal calendar.
	EnsureManagedCalendar(ctx context.Context, name string) error

	// CreateEvent places a block and returns its backend event id.
	CreateEvent(ctx context.Context, block model.CalendarBlock) (string, error)

	// MoveEvent rewrites an event's time range in place.
	MoveEvent(ctx context.Context, eventID string, start, end time.Time) error

	// DeleteEvent removes an event.
	DeleteEvent(ctx context.Context, eventID string) error

	// ListEvents returns every event overlapping [from, to), managed or not.
	ListEvents(ctx context.Context, from, to time.Time) ([]model.CalendarBlock, error)

	// FindByTitle matches managed events by case-insensitive substring.
	FindByTitle(ctx context.Context, fuzzyTitle string) ([]model.CalendarBlock, error)
}
