package chat

import (
	"context"
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"mira/internal/command"
	"mira/internal/logging"
)

const (
	messageDedupCacheSize = 2048
	messageDedupTTL       = 10 * time.Minute
)

// ackText is sent when handling outlives the ack deadline, so the user knows
// the command was heard.
const ackText = "On it, give me a moment."

// Envelope is one inbound chat message.
type Envelope struct {
	MessageID  string
	UserID     string
	ChannelID  string
	Text       string
	ReceivedAt time.Time
}

// Transport delivers inbound messages and carries replies back to the user.
type Transport interface {
	// Messages yields inbound envelopes until the transport closes.
	Messages() <-chan Envelope

	// Reply sends text back on the envelope's channel.
	Reply(ctx context.Context, env Envelope, text string) error
}

// Gateway bridges a chat transport into the command service. Each message is
// acknowledged within the configured deadline even when the command itself
// takes longer.
type Gateway struct {
	transport   Transport
	commands    *command.Service
	ackDeadline time.Duration
	dedupCache  *lru.Cache[string, time.Time]
	now         func() time.Time
	logger      logging.Logger
}

// NewGateway wires a transport to the command service.
func NewGateway(transport Transport, commands *command.Service, ackDeadlineSeconds int, logger logging.Logger) (*Gateway, error) {
	if transport == nil {
		return nil, fmt.Errorf("chat gateway requires a transport")
	}
	if commands == nil {
		return nil, fmt.Errorf("chat gateway requires the command service")
	}
	if ackDeadlineSeconds <= 0 {
		ackDeadlineSeconds = 3
	}
	dedupCache, err := lru.New[string, time.Time](messageDedupCacheSize)
	if err != nil {
		return nil, fmt.Errorf("chat message deduper init: %w", err)
	}
	return &Gateway{
		transport:   transport,
		commands:    commands,
		ackDeadline: time.Duration(ackDeadlineSeconds) * time.Second,
		dedupCache:  dedupCache,
		now:         time.Now,
		logger:      logging.OrNop(logger),
	}, nil
}

// Run consumes the transport until the context ends or the message channel
// closes.
func (g *Gateway) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case env, ok := <-g.transport.Messages():
			if !ok {
				return nil
			}
			if g.isDuplicate(env.MessageID) {
				continue
			}
			g.handle(ctx, env)
		}
	}
}

// isDuplicate reports whether this message id was seen within the TTL.
// Transports that redeliver on reconnect would otherwise replay commands.
func (g *Gateway) isDuplicate(messageID string) bool {
	if messageID == "" {
		return false
	}
	now := g.now()
	if seen, ok := g.dedupCache.Get(messageID); ok && now.Sub(seen) < messageDedupTTL {
		return true
	}
	g.dedupCache.Add(messageID, now)
	return false
}

func (g *Gateway) handle(ctx context.Context, env Envelope) {
	now := env.ReceivedAt
	if now.IsZero() {
		now = g.now()
	}

	type result struct {
		resp command.Response
		err  error
	}
	done := make(chan result, 1)
	go func() {
		resp, err := g.commands.Handle(ctx, env.Text, now)
		done <- result{resp, err}
	}()

	ack := time.NewTimer(g.ackDeadline)
	defer ack.Stop()

	var res result
	select {
	case res = <-done:
	case <-ack.C:
		if err := g.transport.Reply(ctx, env, ackText); err != nil {
			g.logger.Warn("chat ack failed: %v", err)
		}
		select {
		case res = <-done:
		case <-ctx.Done():
			return
		}
	case <-ctx.Done():
		return
	}

	text := res.resp.Text
	if res.err != nil {
		g.logger.Error("command %q failed: %v", env.Text, res.err)
		text = "Something went wrong handling that; check the agent log."
	}
	if err := g.transport.Reply(ctx, env, text); err != nil {
		g.logger.Warn("chat reply failed: %v", err)
	}
}
