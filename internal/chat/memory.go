package chat

import (
	"context"
	"sync"
)

// MemoryTransport is an in-process transport for tests and the one-shot CLI
// path.
type MemoryTransport struct {
	mu      sync.Mutex
	inbox   chan Envelope
	replies []string
}

var _ Transport = (*MemoryTransport)(nil)

// NewMemoryTransport returns an empty transport.
func NewMemoryTransport() *MemoryTransport {
	return &MemoryTransport{inbox: make(chan Envelope, 16)}
}

// Inject queues one inbound envelope.
func (t *MemoryTransport) Inject(env Envelope) {
	t.inbox <- env
}

// Close ends the message stream.
func (t *MemoryTransport) Close() {
	close(t.inbox)
}

// Messages implements Transport.
func (t *MemoryTransport) Messages() <-chan Envelope {
	return t.inbox
}

// Reply implements Transport by recording the text.
func (t *MemoryTransport) Reply(_ context.Context, _ Envelope, text string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.replies = append(t.replies, text)
	return nil
}

// Replies returns a copy of everything sent so far.
func (t *MemoryTransport) Replies() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]string, len(t.replies))
	copy(out, t.replies)
	return out
}
