package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups all Prometheus instruments used by the service. A nil
// *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	Turns          *prometheus.CounterVec
	TurnStage      *prometheus.HistogramVec
	ProviderErrors *prometheus.CounterVec
	ActiveSessions prometheus.Gauge
	AudioSessions  *prometheus.CounterVec
	VideoPolls     prometheus.Counter
	WSMessages     *prometheus.CounterVec
}

// NewMetrics registers the instruments on a private registry.
func NewMetrics(namespace string) *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		Turns: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "turns_total",
			Help:      "Completed conversation turns by outcome.",
		}, []string{"outcome"}),
		TurnStage: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "turn_stage_seconds",
			Help:      "Time spent in each awaited stage of a turn.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 4, 8, 16, 32},
		}, []string{"stage"}),
		ProviderErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_errors_total",
			Help:      "External service failures by provider and operation.",
		}, []string{"provider", "operation"}),
		ActiveSessions: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_sessions",
			Help:      "Number of live conversation sessions.",
		}),
		AudioSessions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audio_sessions_total",
			Help:      "Audio playback sessions by outcome.",
		}, []string{"outcome"}),
		VideoPolls: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "video_polls_total",
			Help:      "Video operation status polls.",
		}),
		WSMessages: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ws_messages_total",
			Help:      "WebSocket messages by direction and type.",
		}, []string{"direction", "type"}),
	}
}

// Handler exposes the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) TurnFinished(outcome string) {
	if m != nil {
		m.Turns.WithLabelValues(outcome).Inc()
	}
}

func (m *Metrics) ObserveStage(stage string, d time.Duration) {
	if m != nil {
		m.TurnStage.WithLabelValues(stage).Observe(d.Seconds())
	}
}

func (m *Metrics) ProviderError(provider, operation string) {
	if m != nil {
		m.ProviderErrors.WithLabelValues(provider, operation).Inc()
	}
}

func (m *Metrics) SessionOpened() {
	if m != nil {
		m.ActiveSessions.Inc()
	}
}

func (m *Metrics) SessionClosed() {
	if m != nil {
		m.ActiveSessions.Dec()
	}
}

func (m *Metrics) AudioSession(outcome string) {
	if m != nil {
		m.AudioSessions.WithLabelValues(outcome).Inc()
	}
}

func (m *Metrics) VideoPolled() {
	if m != nil {
		m.VideoPolls.Inc()
	}
}

func (m *Metrics) WSMessage(direction, typ string) {
	if m != nil {
		m.WSMessages.WithLabelValues(direction, typ).Inc()
	}
}
