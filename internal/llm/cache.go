package llm

import (
	"context"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"mira/internal/model"
)

var _ Client = (*CachingClient)(nil)

// CachingClient memoizes extraction by content hash. Digest re-fetches and
// restarts hit the same message bodies over and over; identical bytes always
// extract identically, so a hit skips the model call entirely.
type CachingClient struct {
	inner Client
	cache *lru.Cache[string, []model.Task]
}

// NewCachingClient wraps inner with an LRU of the given size.
func NewCachingClient(inner Client, size int) (*CachingClient, error) {
	if size <= 0 {
		size = 512
	}
	cache, err := lru.New[string, []model.Task](size)
	if err != nil {
		return nil, err
	}
	return &CachingClient{inner: inner, cache: cache}, nil
}

func (c *CachingClient) Model() string { return c.inner.Model() }

// ExtractTasks serves cache hits by content hash, delegating misses.
func (c *CachingClient) ExtractTasks(ctx context.Context, card model.UpdateCard) ([]model.Task, error) {
	key := card.ContentHash
	if key == "" {
		key = model.ContentHash(card.BodyText)
	}
	if tasks, ok := c.cache.Get(key); ok {
		return cloneTasks(tasks), nil
	}

	tasks, err := c.inner.ExtractTasks(ctx, card)
	if err != nil {
		return nil, err
	}
	c.cache.Add(key, cloneTasks(tasks))
	return tasks, nil
}

// ParseEditIntent is not cached: intent depends on the current time.
func (c *CachingClient) ParseEditIntent(ctx context.Context, text string, now time.Time) (model.EditOperation, error) {
	return c.inner.ParseEditIntent(ctx, text, now)
}

func cloneTasks(tasks []model.Task) []model.Task {
	out := make([]model.Task, len(tasks))
	copy(out, tasks)
	return out
}
