package observability

import (
	"context"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.TurnFinished("completed")
		m.ObserveStage("chat", time.Second)
		m.ProviderError("gemini", "chat")
		m.SessionOpened()
		m.SessionClosed()
		m.AudioSession("stopped")
		m.VideoPolled()
		m.WSMessage("in", "text")
	})
}

func TestMetricsHandlerExposesCounters(t *testing.T) {
	m := NewMetrics("mion")
	m.TurnFinished("completed")
	m.TurnFinished("completed")
	m.SessionOpened()

	assert.Equal(t, 2.0, testutil.ToFloat64(m.Turns.WithLabelValues("completed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ActiveSessions))

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Result().Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `mion_turns_total{outcome="completed"} 2`)
}

func TestSetupTracingWithoutEndpoint(t *testing.T) {
	shutdown, err := SetupTracing(context.Background(), "", "mion")
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))
}
