package present

import (
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
)

// Stats is a point-in-time snapshot of the engine counters.
type Stats struct {
	EventsProcessed      uint64
	PresentsCompleted    uint64
	PresentsLost         uint64
	OrphanEvents         uint64
	LostByEviction       uint64
	LostByReplacement    uint64
	ClassificationErrors uint64
	InvariantBreaches    uint64
}

// metrics holds the engine's counters.
//
// The producer thread is the only writer, but Stats() may be called from
// consumer threads, so the counters are atomics. The prometheus collectors
// mirror the same values for scrape-based observability.
type metrics struct {
	eventsProcessed   atomic.Uint64
	presentsCompleted atomic.Uint64
	presentsLost      atomic.Uint64
	orphanEvents      atomic.Uint64
	lostByEviction    atomic.Uint64
	lostByReplacement atomic.Uint64
	classification    atomic.Uint64
	invariantBreaches atomic.Uint64

	promEvents    prometheus.Counter
	promCompleted prometheus.Counter
	promLost      *prometheus.CounterVec
	promErrors    *prometheus.CounterVec
}

func newMetrics() *metrics {
	return &metrics{
		promEvents: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "framewatch",
			Name:      "events_processed_total",
			Help:      "Trace events dispatched to the correlation engine.",
		}),
		promCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "framewatch",
			Name:      "presents_completed_total",
			Help:      "Present records emitted on the completed queue.",
		}),
		promLost: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "framewatch",
			Name:      "presents_lost_total",
			Help:      "Present records emitted on the lost queue, by cause.",
		}, []string{"cause"}),
		promErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "framewatch",
			Name:      "correlation_errors_total",
			Help:      "Non-fatal correlation errors, by kind.",
		}, []string{"kind"}),
	}
}

// Describe implements prometheus.Collector.
func (m *metrics) Describe(ch chan<- *prometheus.Desc) {
	m.promEvents.Describe(ch)
	m.promCompleted.Describe(ch)
	m.promLost.Describe(ch)
	m.promErrors.Describe(ch)
}

// Collect implements prometheus.Collector.
func (m *metrics) Collect(ch chan<- prometheus.Metric) {
	m.promEvents.Collect(ch)
	m.promCompleted.Collect(ch)
	m.promLost.Collect(ch)
	m.promErrors.Collect(ch)
}

func (m *metrics) event() {
	m.eventsProcessed.Add(1)
	m.promEvents.Inc()
}

func (m *metrics) completed() {
	m.presentsCompleted.Add(1)
	m.promCompleted.Inc()
}

func (m *metrics) lost(code CorrelationErrorCode) {
	m.presentsLost.Add(1)
	switch code {
	case ErrCodeLostEviction:
		m.lostByEviction.Add(1)
		m.promLost.WithLabelValues("eviction").Inc()
	case ErrCodeLostReplacement:
		m.lostByReplacement.Add(1)
		m.promLost.WithLabelValues("replacement").Inc()
	default:
		m.promLost.WithLabelValues("shutdown").Inc()
	}
}

func (m *metrics) orphan() {
	m.orphanEvents.Add(1)
	m.promErrors.WithLabelValues("orphan_event").Inc()
}

func (m *metrics) classificationError() {
	m.classification.Add(1)
	m.promErrors.WithLabelValues("classification").Inc()
}

func (m *metrics) invariantBreach() {
	m.invariantBreaches.Add(1)
	m.promErrors.WithLabelValues("invariant_breach").Inc()
}

func (m *metrics) snapshot() Stats {
	return Stats{
		EventsProcessed:      m.eventsProcessed.Load(),
		PresentsCompleted:    m.presentsCompleted.Load(),
		PresentsLost:         m.presentsLost.Load(),
		OrphanEvents:         m.orphanEvents.Load(),
		LostByEviction:       m.lostByEviction.Load(),
		LostByReplacement:    m.lostByReplacement.Load(),
		ClassificationErrors: m.classification.Load(),
		InvariantBreaches:    m.invariantBreaches.Load(),
	}
}
