package llm

import (
	"context"
	"sync"
	"time"

	"mira/internal/model"
)

var _ Client = (*MockClient)(nil)

// MockClient implements Client for tests. Unset hooks return zero values.
type MockClient struct {
	mu sync.Mutex

	ExtractTasksFunc    func(ctx context.Context, card model.UpdateCard) ([]model.Task, error)
	ParseEditIntentFunc func(ctx context.Context, text string, now time.Time) (model.EditOperation, error)

	ExtractCalls int
	IntentCalls  int
}

func (m *MockClient) Model() string { return "mock" }

func (m *MockClient) ExtractTasks(ctx context.Context, card model.UpdateCard) ([]model.Task, error) {
	m.mu.Lock()
	m.ExtractCalls++
	fn := m.ExtractTasksFunc
	m.mu.Unlock()
	if fn == nil {
		return nil, nil
	}
	return fn(ctx, card)
}

func (m *MockClient) ParseEditIntent(ctx context.Context, text string, now time.Time) (model.EditOperation, error) {
	m.mu.Lock()
	m.IntentCalls++
	fn := m.ParseEditIntentFunc
	m.mu.Unlock()
	if fn == nil {
		return model.EditOperation{}, nil
	}
	return fn(ctx, text, now)
}
