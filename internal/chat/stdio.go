package chat

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"time"
)

// StdioTransport turns an input stream of lines into chat envelopes and
// writes replies to an output stream. It is the local chat surface when no
// messaging platform is wired up.
type StdioTransport struct {
	out    io.Writer
	inbox  chan Envelope
	prompt string
}

var _ Transport = (*StdioTransport)(nil)

// NewStdioTransport starts reading lines from in immediately. The message
// channel closes when in reaches EOF.
func NewStdioTransport(in io.Reader, out io.Writer) *StdioTransport {
	t := &StdioTransport{
		out:    out,
		inbox:  make(chan Envelope, 16),
		prompt: "mira> ",
	}
	go t.read(in)
	return t
}

func (t *StdioTransport) read(in io.Reader) {
	defer close(t.inbox)
	scanner := bufio.NewScanner(in)
	seq := 0
	for scanner.Scan() {
		seq++
		t.inbox <- Envelope{
			MessageID:  "stdio-" + strconv.Itoa(seq),
			UserID:     "local",
			ChannelID:  "stdio",
			Text:       scanner.Text(),
			ReceivedAt: time.Now(),
		}
	}
}

// Messages implements Transport.
func (t *StdioTransport) Messages() <-chan Envelope {
	return t.inbox
}

// Reply implements Transport.
func (t *StdioTransport) Reply(_ context.Context, _ Envelope, text string) error {
	_, err := fmt.Fprintf(t.out, "%s\n%s", text, t.prompt)
	return err
}
