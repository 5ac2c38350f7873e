// Package metrics exposes prometheus collectors for the logged disk.
//
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "ptree"

type Metrics struct {
	Commits          prometheus.Counter
	CommitFailures   prometheus.Counter
	Aborts           prometheus.Counter
	LoggedSectors    prometheus.Counter
	WriteBackSectors prometheus.Counter
	WriteBackSeconds prometheus.Histogram
	RecoveredRecords prometheus.Counter
	LogOccupancy     prometheus.Gauge
	QueueLength      prometheus.Gauge
}

// New creates the collectors and registers them on reg, if reg is not nil.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Commits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "log", Name: "commits_total",
			Help: "Transactions whose commit record became durable.",
		}),
		CommitFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "log", Name: "commit_failures_total",
			Help: "Commits that failed and were discarded.",
		}),
		Aborts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "log", Name: "aborts_total",
			Help: "Aborted transactions.",
		}),
		LoggedSectors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "log", Name: "logged_sectors_total",
			Help: "Data sectors written to the redo log.",
		}),
		WriteBackSectors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "writeback", Name: "sectors_total",
			Help: "Sectors installed at their home location.",
		}),
		WriteBackSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "writeback", Name: "duration_seconds",
			Help:    "Time to write back one committed transaction.",
			Buckets: prometheus.ExponentialBuckets(0.0001, 4, 8),
		}),
		RecoveredRecords: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "recovery", Name: "records_total",
			Help: "Commit records replayed by recovery.",
		}),
		LogOccupancy: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "log", Name: "occupied_sectors",
			Help: "Log sectors reserved and not yet released by write-back.",
		}),
		QueueLength: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "writeback", Name: "queue_length",
			Help: "Committed transactions awaiting write-back.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.Commits, m.CommitFailures, m.Aborts, m.LoggedSectors,
			m.WriteBackSectors, m.WriteBackSeconds, m.RecoveredRecords,
			m.LogOccupancy, m.QueueLength)
	}
	return m
}

func (m *Metrics) Commit(sectors int) {
	if m == nil {
		return
	}
	m.Commits.Inc()
	m.LoggedSectors.Add(float64(sectors))
}

func (m *Metrics) CommitFailed() {
	if m == nil {
		return
	}
	m.CommitFailures.Inc()
}

func (m *Metrics) Abort() {
	if m == nil {
		return
	}
	m.Aborts.Inc()
}

func (m *Metrics) WriteBack(sectors int, d time.Duration) {
	if m == nil {
		return
	}
	m.WriteBackSectors.Add(float64(sectors))
	m.WriteBackSeconds.Observe(d.Seconds())
}

func (m *Metrics) Recovered(records int) {
	if m == nil {
		return
	}
	m.RecoveredRecords.Add(float64(records))
}

func (m *Metrics) Log(occupied uint64, queued int) {
	if m == nil {
		return
	}
	m.LogOccupancy.Set(float64(occupied))
	m.QueueLength.Set(float64(queued))
}
