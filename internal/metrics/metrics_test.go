package metrics

import (
	"io"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandlerExposesInstruments(t *testing.T) {
	m := New()
	m.SyncRuns.WithLabelValues("gmail", "ok").Inc()
	m.UpdatesStored.Add(3)
	m.Commands.WithLabelValues("approved").Inc()
	m.PlanRevision.Set(7)
	m.SyncDuration.WithLabelValues("gmail").Observe(0.2)

	server := httptest.NewServer(m.Handler())
	defer server.Close()

	resp, err := server.Client().Get(server.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	exposition := string(body)
	assert.Contains(t, exposition, `mira_sync_runs_total{outcome="ok",provider="gmail"} 1`)
	assert.Contains(t, exposition, "mira_updates_stored_total 3")
	assert.Contains(t, exposition, `mira_commands_total{verdict="approved"} 1`)
	assert.Contains(t, exposition, "mira_plan_revision 7")
	assert.Contains(t, exposition, "mira_sync_duration_seconds_bucket")
}

func TestEachInstanceHasPrivateRegistry(t *testing.T) {
	a := New()
	b := New()
	a.Regenerations.Inc()

	server := httptest.NewServer(b.Handler())
	defer server.Close()
	resp, err := server.Client().Get(server.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	assert.Contains(t, string(body), "mira_plan_regenerations_total 0")
}
