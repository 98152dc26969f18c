package dispatch

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/roach88/eventual2pc/internal/saga"
)

// Metrics are the dispatcher's Prometheus collectors. A nil *Metrics
// records nothing.
type Metrics struct {
	commands   *prometheus.CounterVec
	records    *prometheus.CounterVec
	completed  *prometheus.CounterVec
	queueDepth prometheus.Gauge
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "e2pc",
			Name:      "commands_total",
			Help:      "Commands processed, by command name and outcome.",
		}, []string{"command", "outcome"}),
		records: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "e2pc",
			Name:      "records_total",
			Help:      "Records appended, by kind.",
		}, []string{"kind"}),
		completed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "e2pc",
			Name:      "transactions_completed_total",
			Help:      "Transactions completed, by outcome.",
		}, []string{"outcome"}),
		queueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "e2pc",
			Name:      "queue_depth",
			Help:      "Commands waiting in the dispatch queue.",
		}),
	}
	reg.MustRegister(m.commands, m.records, m.completed, m.queueDepth)
	return m
}

func (m *Metrics) command(name, outcome string) {
	if m == nil {
		return
	}
	m.commands.WithLabelValues(name, outcome).Inc()
}

func (m *Metrics) appended(recs []saga.Record) {
	if m == nil {
		return
	}
	for _, rec := range recs {
		m.records.WithLabelValues(string(rec.RecordKind())).Inc()
	}
}

func (m *Metrics) transactionCompleted(commit bool) {
	if m == nil {
		return
	}
	outcome := "rolled_back"
	if commit {
		outcome = "committed"
	}
	m.completed.WithLabelValues(outcome).Inc()
}

func (m *Metrics) queued(n int) {
	if m == nil {
		return
	}
	m.queueDepth.Set(float64(n))
}
