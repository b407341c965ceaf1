package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrometheusRecorder(t *testing.T) {
	reg := prom.NewRegistry()
	pr := NewPrometheusRecorder(reg)
	pr.ObserveBuildDuration("main", 150*time.Millisecond)
	pr.IncBuildOutcome("main", OutcomeSuccess)
	pr.IncBuildOutcome("preload", OutcomeFailed)
	pr.IncHostRestart()
	pr.IncHostRestart()
	pr.IncHostExit(3)
	pr.IncReloadBroadcast()
	pr.SetReloadClients(2)

	assert.InDelta(t, 1, testutil.ToFloat64(pr.buildOutcome.WithLabelValues("main", "success")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(pr.buildOutcome.WithLabelValues("preload", "failed")), 0)
	assert.InDelta(t, 2, testutil.ToFloat64(pr.hostRestarts), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(pr.hostExits.WithLabelValues("3")), 0)
	assert.InDelta(t, 2, testutil.ToFloat64(pr.reloadClients), 0)

	mfs, err := reg.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, mfs)
}

func TestPrometheusRecorderHandler(t *testing.T) {
	pr := NewPrometheusRecorder(nil)
	pr.IncHostRestart()

	srv := httptest.NewServer(pr.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "tachyon_host_restarts_total 1")
}

func TestNoopRecorder(t *testing.T) {
	var r Recorder = NoopRecorder{}
	r.ObserveBuildDuration("renderer", time.Second)
	r.IncBuildOutcome("renderer", OutcomeSuccess)
	r.IncHostRestart()
	r.IncHostExit(0)
	r.IncReloadBroadcast()
	r.SetReloadClients(1)
}
