package aggregate

import (
	"github.com/prometheus/client_golang/prometheus"

	"attentionguard/internal/classify"
	"attentionguard/internal/records"
)

// Metrics exports aggregator activity. A nil *Metrics records nothing.
type Metrics struct {
	reports         *prometheus.CounterVec
	items           *prometheus.GaugeVec
	rate            *prometheus.GaugeVec
	resets          prometheus.Counter
	persistFailures *prometheus.CounterVec
	activeSurfaces  prometheus.Gauge
	durable         prometheus.Gauge
}

// NewMetrics creates the aggregator collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		reports: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "attentionguard",
			Name:      "reports_total",
			Help:      "Stats reports received per source",
		}, []string{"source"}),
		items: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "attentionguard",
			Name:      "items",
			Help:      "Items in the aggregated record by classification",
		}, []string{"source", "classification"}),
		rate: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "attentionguard",
			Name:      "manipulation_rate_percent",
			Help:      "Manipulation rate of the aggregated record",
		}, []string{"source"}),
		resets: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "attentionguard",
			Name:      "resets_total",
			Help:      "Record resets requested",
		}),
		persistFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "attentionguard",
			Name:      "persist_failures_total",
			Help:      "Failed backend writes by backend",
		}, []string{"backend"}),
		activeSurfaces: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "attentionguard",
			Name:      "active_surfaces",
			Help:      "Surfaces currently showing a supported source",
		}),
		durable: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "attentionguard",
			Name:      "durable_persistence",
			Help:      "1 when records persist across restarts",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.reports, m.items, m.rate, m.resets, m.persistFailures, m.activeSurfaces, m.durable)
	}
	return m
}

func (m *Metrics) observeReport(source string) {
	if m == nil {
		return
	}
	m.reports.WithLabelValues(source).Inc()
}

func (m *Metrics) observeRecord(rec records.Record) {
	if m == nil {
		return
	}
	counts := map[classify.Classification]int{
		classify.Ad:          rec.Ads,
		classify.Algorithmic: rec.Algorithmic,
		classify.Social:      rec.Social,
		classify.Organic:     rec.Organic,
	}
	for class, n := range counts {
		m.items.WithLabelValues(rec.Source, string(class)).Set(float64(n))
	}
	m.rate.WithLabelValues(rec.Source).Set(rec.Rate())
}

func (m *Metrics) observeReset() {
	if m == nil {
		return
	}
	m.resets.Inc()
}

func (m *Metrics) observePersistFailure(backend string) {
	if m == nil {
		return
	}
	m.persistFailures.WithLabelValues(backend).Inc()
}

func (m *Metrics) setActiveSurfaces(n int) {
	if m == nil {
		return
	}
	m.activeSurfaces.Set(float64(n))
}

func (m *Metrics) setDurable(durable bool) {
	if m == nil {
		return
	}
	if durable {
		m.durable.Set(1)
	} else {
		m.durable.Set(0)
	}
}

// ReportsCounter exposes the per-source report counter.
func (m *Metrics) ReportsCounter(source string) prometheus.Counter {
	return m.reports.WithLabelValues(source)
}

// PersistFailuresCounter exposes the per-backend failure counter.
func (m *Metrics) PersistFailuresCounter(backend string) prometheus.Counter {
	return m.persistFailures.WithLabelValues(backend)
}
