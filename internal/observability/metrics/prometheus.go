// Package metrics provides Prometheus metrics for the smart-entry engine and
// the services around it.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all application metrics
type Metrics struct {
	SmartEntries           prometheus.Counter
	RuleMatches            *prometheus.CounterVec
	PatternLookups         *prometheus.CounterVec
	PersistenceWarnings    *prometheus.CounterVec
	SuggestionsServed      prometheus.Counter
	ActiveSessions         prometheus.Gauge
	ConsultationsFinalized prometheus.Counter
	SmartEntryDuration     prometheus.Histogram
	TicketsEnqueued        prometheus.Counter
	KafkaMessagesProduced  prometheus.Counter
	KafkaMessagesConsumed  prometheus.Counter
	OutboxPending          prometheus.Gauge
	CircuitBreakerState    *prometheus.GaugeVec
}

// New creates all metrics and registers them on reg. A nil reg uses the
// default registerer.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	m := &Metrics{
		SmartEntries: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "smartrx_smart_entries_total",
			Help: "Total smart-entry lines parsed",
		}),
		RuleMatches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "smartrx_rule_matches_total",
			Help: "Fields extracted from typed text, by category",
		}, []string{"category"}),
		PatternLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "smartrx_pattern_lookups_total",
			Help: "Pattern memory lookups (result=hit|miss)",
		}, []string{"result"}),
		PersistenceWarnings: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "smartrx_persistence_warnings_total",
			Help: "Writes kept in memory but not persisted, by store",
		}, []string{"store"}),
		SuggestionsServed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "smartrx_suggestions_served_total",
			Help: "Autocomplete suggestion lists served",
		}),
		ActiveSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "smartrx_consultations_active",
			Help: "Consultation sessions currently open",
		}),
		ConsultationsFinalized: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "smartrx_consultations_finalized_total",
			Help: "Total consultations ended and recorded",
		}),
		SmartEntryDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "smartrx_smart_entry_duration_seconds",
			Help:    "Smart-entry handling duration",
			Buckets: []float64{.0005, .001, .005, .01, .025, .05, .1, .25, .5},
		}),
		TicketsEnqueued: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "smartrx_pharmacy_tickets_enqueued_total",
			Help: "Total pharmacy tickets enqueued",
		}),
		KafkaMessagesProduced: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "kafka_messages_produced_total",
			Help: "Total Kafka messages produced",
		}),
		KafkaMessagesConsumed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "kafka_messages_consumed_total",
			Help: "Total Kafka messages consumed",
		}),
		OutboxPending: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "outbox_pending_entries",
			Help: "Pending outbox entries",
		}),
		CircuitBreakerState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=open, 2=half-open)",
		}, []string{"name"}),
	}

	reg.MustRegister(
		m.SmartEntries,
		m.RuleMatches,
		m.PatternLookups,
		m.PersistenceWarnings,
		m.SuggestionsServed,
		m.ActiveSessions,
		m.ConsultationsFinalized,
		m.SmartEntryDuration,
		m.TicketsEnqueued,
		m.KafkaMessagesProduced,
		m.KafkaMessagesConsumed,
		m.OutboxPending,
		m.CircuitBreakerState,
	)

	return m
}

// Handler returns the Prometheus HTTP handler for g. A nil g serves the
// default gatherer.
func Handler(g prometheus.Gatherer) http.Handler {
	if g == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
