package daemon

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mira/internal/calendar"
	"mira/internal/chat"
	"mira/internal/config"
	"mira/internal/llm"
	"mira/internal/rules"
)

func testConfig(t *testing.T) config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.DatabasePath = filepath.Join(t.TempDir(), "mira.db")
	return cfg
}

func newDaemon(t *testing.T, opts Options) *Daemon {
	t.Helper()
	if opts.Extractor == nil {
		opts.Extractor = &llm.MockClient{}
	}
	d, err := New(context.Background(), testConfig(t), opts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = d.Close() })
	return d
}

func TestNewRejectsBadConfig(t *testing.T) {
	cfg := config.Default() // no database path
	_, err := New(context.Background(), cfg, Options{})
	require.Error(t, err)
}

func TestNewEnsuresManagedCalendar(t *testing.T) {
	// A backend that cannot provide the configured managed calendar must
	// stop the daemon at startup, before anything writes an event.
	mismatched := calendar.NewMemoryStore("Someone Else's Plan")
	_, err := New(context.Background(), testConfig(t), Options{
		Calendar:  mismatched,
		Extractor: &llm.MockClient{},
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, calendar.ErrCalendarNotAvailable)
}

func TestHealthCheck(t *testing.T) {
	d := newDaemon(t, Options{})
	assert.NoError(t, d.HealthCheck(context.Background()))
}

func TestSyncOnceWithNoAccounts(t *testing.T) {
	d := newDaemon(t, Options{})
	res, err := d.SyncOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, res.Stored)
	assert.Empty(t, res.Failures)
}

func TestHandleCommandRoundTrip(t *testing.T) {
	d := newDaemon(t, Options{})
	ctx := context.Background()

	resp, err := d.HandleCommand(ctx, `/add "Office hours prep" 30m today 4pm`)
	require.NoError(t, err)
	assert.Equal(t, rules.Approved, resp.Decision)

	resp, err = d.HandleCommand(ctx, "/today")
	require.NoError(t, err)
	assert.Contains(t, resp.Text, "Office hours prep")
}

func TestRunStopsOnCancel(t *testing.T) {
	transport := chat.NewMemoryTransport()
	d := newDaemon(t, Options{Transport: transport})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("daemon did not shut down")
	}
}
