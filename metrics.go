package openai

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	modeSync   = "sync"
	modeStream = "stream"
)

// Metrics records Prometheus metrics for chat requests. A nil *Metrics
// records nothing.
type Metrics struct {
	Requests *prometheus.CounterVec
	Duration *prometheus.HistogramVec
}

// NewMetrics creates the chat metrics and registers them with reg. When reg
// is nil the metrics are created but not registered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "openai",
			Subsystem: "chat",
			Name:      "requests_total",
			Help:      "Chat completion requests by mode and outcome.",
		}, []string{"mode", "outcome"}),
		Duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "openai",
			Subsystem: "chat",
			Name:      "request_duration_seconds",
			Help:      "Time from sending a chat request until the reply is complete.",
			Buckets:   []float64{.1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		}, []string{"mode"}),
	}

	if reg != nil {
		reg.MustRegister(m.Requests, m.Duration)
	}

	return m
}

// outcome classifies an error into a low cardinality label value.
func outcome(err error) string {
	var apiErr *APIError
	switch {
	case err == nil:
		return "ok"
	case errors.As(err, &apiErr) && apiErr.StatusCode == 429:
		return "rate_limited"
	case errors.As(err, &apiErr):
		return "api_error"
	default:
		return "error"
	}
}

func (m *Metrics) observe(mode string, err error, d time.Duration) {
	if m == nil {
		return
	}
	m.Requests.WithLabelValues(mode, outcome(err)).Inc()
	m.Duration.WithLabelValues(mode).Observe(d.Seconds())
}
