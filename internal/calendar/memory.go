package calendar

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"mira/internal/model"
)

var _ Store = (*MemoryStore)(nil)

// MemoryStore is a calendar backend held in process memory. It backs tests
// and the dry-run plan mode, and doubles as the reference behavior for real
// backends: managed-name scoping, event ids, and not-found semantics match.
type MemoryStore struct {
	mu          sync.RWMutex
	managedName string
	events      map[string]model.CalendarBlock
}

// NewMemoryStore builds an empty store scoped to the managed calendar name.
func NewMemoryStore(managedName string) *MemoryStore {
	return &MemoryStore{
		managedName: managedName,
		events:      make(map[string]model.CalendarBlock),
	}
}

// Seed inserts an event verbatim, bypassing the managed-calendar scoping.
// Tests use it to stand up foreign events the agent must not touch.
func (s *MemoryStore) Seed(block model.CalendarBlock) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if block.CalendarEventID == "" {
		block.CalendarEventID = uuid.NewString()
	}
	s.events[block.CalendarEventID] = block
	return block.CalendarEventID
}

// EnsureManagedCalendar pins the store's scope to the given calendar name.
// The in-memory backend has nothing to create, but it refuses to be rescoped
// to a different name than the one it was built for.
func (s *MemoryStore) EnsureManagedCalendar(_ context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if name == "" {
		return fmt.Errorf("managed calendar name must not be empty")
	}
	if s.managedName != name {
		return fmt.Errorf("%w: store is scoped to %q, not %q", ErrCalendarNotAvailable, s.managedName, name)
	}
	return nil
}

// CreateEvent places a managed block and returns its event id.
func (s *MemoryStore) CreateEvent(_ context.Context, block model.CalendarBlock) (string, error) {
	if !block.Valid() {
		return "", fmt.Errorf("invalid time range %s..%s", block.StartLocal, block.EndLocal)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	block.CalendarEventID = uuid.NewString()
	block.CalendarName = s.managedName
	block.ManagedByAgent = true
	s.events[block.CalendarEventID] = block
	return block.CalendarEventID, nil
}

// MoveEvent rewrites a managed event's time range.
func (s *MemoryStore) MoveEvent(_ context.Context, eventID string, start, end time.Time) error {
	if !start.Before(end) {
		return fmt.Errorf("invalid time range %s..%s", start, end)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	event, ok := s.events[eventID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrEventNotFound, eventID)
	}
	if event.CalendarName != s.managedName {
		return fmt.Errorf("%w: %s is outside %q", ErrPermissionDenied, eventID, s.managedName)
	}
	event.StartLocal = start
	event.EndLocal = end
	s.events[eventID] = event
	return nil
}

// DeleteEvent removes a managed event.
func (s *MemoryStore) DeleteEvent(_ context.Context, eventID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	event, ok := s.events[eventID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrEventNotFound, eventID)
	}
	if event.CalendarName != s.managedName {
		return fmt.Errorf("%w: %s is outside %q", ErrPermissionDenied, eventID, s.managedName)
	}
	delete(s.events, eventID)
	return nil
}

// ListEvents returns every event overlapping [from, to), sorted by start.
func (s *MemoryStore) ListEvents(_ context.Context, from, to time.Time) ([]model.CalendarBlock, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []model.CalendarBlock
	for _, event := range s.events {
		if event.StartLocal.Before(to) && from.Before(event.EndLocal) {
			out = append(out, event)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].StartLocal.Equal(out[j].StartLocal) {
			return out[i].StartLocal.Before(out[j].StartLocal)
		}
		return out[i].CalendarEventID < out[j].CalendarEventID
	})
	return out, nil
}

// FindByTitle matches managed events whose title contains the fuzzy title,
// case-insensitive, sorted by start time.
func (s *MemoryStore) FindByTitle(_ context.Context, fuzzyTitle string) ([]model.CalendarBlock, error) {
	needle := strings.ToLower(strings.TrimSpace(fuzzyTitle))
	if needle == "" {
		return nil, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []model.CalendarBlock
	for _, event := range s.events {
		if event.CalendarName != s.managedName {
			continue
		}
		if strings.Contains(strings.ToLower(event.Title), needle) {
			out = append(out, event)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartLocal.Before(out[j].StartLocal) })
	return out, nil
}
