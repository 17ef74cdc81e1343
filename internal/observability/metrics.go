package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ent0n29/intakedesk/internal/reliability"
	"github.com/ent0n29/intakedesk/internal/transport"
)

// Metrics groups all Prometheus instruments used by the service.
type Metrics struct {
	ActiveConsultations prometheus.Gauge
	ConsultationEvents  *prometheus.CounterVec
	Exchanges           *prometheus.CounterVec
	BackendErrors       *prometheus.CounterVec
	BackendLatency      *prometheus.HistogramVec
	WSMessages          *prometheus.CounterVec

	window *latencyWindow
}

func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		ActiveConsultations: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_consultations",
			Help:      "Number of live intake consultations.",
		}),
		ConsultationEvents: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "consultation_events_total",
			Help:      "Consultation lifecycle events by type.",
		}, []string{"event"}),
		Exchanges: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "exchanges_total",
			Help:      "Message submissions by outcome.",
		}, []string{"outcome"}),
		BackendErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "backend_errors_total",
			Help:      "Conversational backend failures by operation and status class.",
		}, []string{"op", "kind"}),
		BackendLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "backend_latency_ms",
			Help:      "Conversational backend call latency in milliseconds.",
			Buckets:   []float64{100, 250, 500, 1000, 2000, 4000, 8000, 16000, 32000},
		}, []string{"op"}),
		WSMessages: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ws_messages_total",
			Help:      "WebSocket messages by direction and type.",
		}, []string{"direction", "type"}),
		window: newLatencyWindow(256),
	}
}

// ObserveBackendCall has the shape of transport.ObserveFunc.
func (m *Metrics) ObserveBackendCall(op string, elapsed time.Duration, err error) {
	outcome := BackendOutcome(err)
	m.BackendLatency.WithLabelValues(op).Observe(float64(elapsed.Milliseconds()))
	m.window.Record(op, elapsed, outcome)
	if outcome != OutcomeOK {
		m.BackendErrors.WithLabelValues(op, outcome).Inc()
	}
}

// BackendOutcome classifies the result of one backend call.
func BackendOutcome(err error) string {
	if err == nil {
		return OutcomeOK
	}
	te, ok := transport.AsError(err)
	switch {
	case !ok:
		return OutcomeOther
	case te.Status > 0:
		return reliability.StatusClass(te.Status)
	default:
		return OutcomeNetwork
	}
}

// SnapshotLatency returns rolling latency stats per backend operation.
func (m *Metrics) SnapshotLatency() LatencySnapshot {
	return m.window.Snapshot()
}

func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
