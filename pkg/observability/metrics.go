package observability

import (
	"context"
	"errors"

	"github.com/aretw0/doubtflow/pkg/domain"
	"github.com/prometheus/client_golang/prometheus"
)

// Escalation outcome labels.
const (
	OutcomeSuccess     = "success"
	OutcomeRateLimited = "rate_limited"
	OutcomeQuota       = "quota_exhausted"
	OutcomeMalformed   = "malformed"
	OutcomeUnavailable = "unavailable"
)

// Metrics holds the Prometheus collectors fed by session hooks.
type Metrics struct {
	NodeVisits         *prometheus.CounterVec
	OptionSelections   *prometheus.CounterVec
	Escalations        *prometheus.CounterVec
	EscalationDuration prometheus.Histogram
	ActiveSessions     prometheus.Gauge
}

// NewMetrics creates the collectors and registers them on reg.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		NodeVisits: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "doubtflow_node_visits_total",
				Help: "Total number of node visits",
			},
			[]string{"flow_id", "node_type"},
		),
		OptionSelections: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "doubtflow_option_selections_total",
				Help: "Total number of options picked by learners",
			},
			[]string{"flow_id"},
		),
		Escalations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "doubtflow_escalations_total",
				Help: "AI escalations by outcome",
			},
			[]string{"outcome"},
		),
		EscalationDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "doubtflow_escalation_duration_seconds",
				Help:    "Duration of AI round trips",
				Buckets: prometheus.ExponentialBuckets(0.25, 2, 8),
			},
		),
		ActiveSessions: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "doubtflow_active_sessions",
				Help: "Sessions currently open",
			},
		),
	}

	for _, c := range []prometheus.Collector{
		m.NodeVisits, m.OptionSelections, m.Escalations, m.EscalationDuration, m.ActiveSessions,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// Hooks returns lifecycle hooks recording into m.
func (m *Metrics) Hooks() domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnSessionStart: func(_ context.Context, _ *domain.SessionEvent) {
			m.ActiveSessions.Inc()
		},
		OnSessionEnd: func(_ context.Context, _ *domain.SessionEvent) {
			m.ActiveSessions.Dec()
		},
		OnNodeEnter: func(_ context.Context, e *domain.NodeEvent) {
			m.NodeVisits.WithLabelValues(e.FlowID, string(e.NodeType)).Inc()
		},
		OnOptionSelected: func(_ context.Context, e *domain.OptionEvent) {
			m.OptionSelections.WithLabelValues(e.FlowID).Inc()
		},
		OnEscalationResult: func(_ context.Context, e *domain.EscalationEvent) {
			m.Escalations.WithLabelValues(Outcome(e.Err)).Inc()
			m.EscalationDuration.Observe(e.Duration.Seconds())
		},
	}
}

// Outcome maps an escalation error to its metric label.
func Outcome(err error) string {
	if err == nil {
		return OutcomeSuccess
	}
	switch kind := domain.ClassifyAIError(err); {
	case errors.Is(kind, domain.ErrRateLimited):
		return OutcomeRateLimited
	case errors.Is(kind, domain.ErrQuotaExhausted):
		return OutcomeQuota
	case errors.Is(kind, domain.ErrMalformedResponse):
		return OutcomeMalformed
	default:
		return OutcomeUnavailable
	}
}
