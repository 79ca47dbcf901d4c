package chat

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mira/internal/calendar"
	"mira/internal/command"
	"mira/internal/config"
	"mira/internal/rules"
	"mira/internal/store"
)

func newGateway(t *testing.T) (*Gateway, *MemoryTransport) {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "mira.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	cfg := config.Default()
	cal := calendar.NewMemoryStore(cfg.ManagedCalendarName)
	commands := command.New(st, rules.New(), cal, cfg, nil, nil)

	transport := NewMemoryTransport()
	gw, err := NewGateway(transport, commands, cfg.ChatAckDeadlineSeconds, nil)
	require.NoError(t, err)
	return gw, transport
}

func runUntilReplies(t *testing.T, gw *Gateway, transport *MemoryTransport, want int) []string {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = gw.Run(ctx)
	}()

	deadline := time.After(5 * time.Second)
	for {
		if replies := transport.Replies(); len(replies) >= want {
			cancel()
			<-done
			return replies
		}
		select {
		case <-deadline:
			cancel()
			<-done
			t.Fatalf("got %d replies, want %d", len(transport.Replies()), want)
			return nil
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func envelope(id, text string) Envelope {
	return Envelope{
		MessageID:  id,
		UserID:     "student",
		ChannelID:  "dm",
		Text:       text,
		ReceivedAt: time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC),
	}
}

func TestGatewayRoutesCommands(t *testing.T) {
	gw, transport := newGateway(t)
	transport.Inject(envelope("m1", `/add "Essay draft" 60m today 1pm`))
	transport.Inject(envelope("m2", "/today"))

	replies := runUntilReplies(t, gw, transport, 2)
	assert.Contains(t, replies[0], "Added")
	assert.Contains(t, replies[1], "Essay draft")
}

func TestGatewayDropsRedeliveredMessages(t *testing.T) {
	gw, transport := newGateway(t)
	env := envelope("dup-1", `/add "Essay draft" 60m today 1pm`)
	transport.Inject(env)
	transport.Inject(env)
	transport.Inject(envelope("m2", "/today"))

	replies := runUntilReplies(t, gw, transport, 2)
	adds := 0
	for _, r := range replies {
		if strings.Contains(r, "Added") {
			adds++
		}
	}
	assert.Equal(t, 1, adds, "redelivery must not run the command twice")
}

func TestGatewayAnswerSurvivesTightAckDeadline(t *testing.T) {
	gw, transport := newGateway(t)
	gw.ackDeadline = time.Millisecond

	go func() {
		transport.Inject(envelope("m1", "/today"))
		transport.Close()
	}()

	err := gw.Run(context.Background())
	require.NoError(t, err)

	replies := transport.Replies()
	require.NotEmpty(t, replies)
	// An interim ack may or may not land first; the answer always does.
	assert.Contains(t, replies[len(replies)-1], "Plan for")
}

func TestAckTextIsPlainASCII(t *testing.T) {
	// Some chat surfaces mangle typographic punctuation.
	for _, r := range ackText {
		assert.Less(t, r, rune(128), "ack text must stay ASCII")
	}
}

func TestGatewayRepliesHelpOnNoise(t *testing.T) {
	gw, transport := newGateway(t)
	transport.Inject(envelope("m1", "what's my day look like"))
	replies := runUntilReplies(t, gw, transport, 1)
	assert.Contains(t, replies[0], "/today")
}
