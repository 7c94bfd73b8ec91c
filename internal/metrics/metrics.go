// Package metrics records driver runs as prometheus metrics and dumps them
// in the text exposition format.
package metrics

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
)

const namespace = "dswp"

// Run outcomes used as the status label.
const (
	StatusOK       = "ok"
	StatusError    = "error"
	StatusCanceled = "canceled"
)

var (
	phaseBuckets = prometheus.ExponentialBuckets(0.0001, 4, 10)
	once         sync.Once
	monitor      *Monitor
)

// Monitor holds the driver metrics of one registry.
type Monitor struct {
	registry *prometheus.Registry

	RunsTotal     *prometheus.CounterVec
	PhaseDuration *prometheus.HistogramVec
	MergesTotal   *prometheus.CounterVec
	Subsets       *prometheus.GaugeVec
	SCCs          prometheus.Gauge
	Stages        prometheus.Gauge
}

// GetMonitor returns the process wide monitor.
func GetMonitor() *Monitor {
	once.Do(func() { monitor = NewMonitor() })
	return monitor
}

// NewMonitor creates a monitor with its own registry.
func NewMonitor() *Monitor {
	m := &Monitor{registry: prometheus.NewRegistry()}

	m.RunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "candidates processed, by outcome.",
		},
		[]string{"status"})

	m.PhaseDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "phase_duration_seconds",
			Help:      "time spent in each driver phase.",
			Buckets:   phaseBuckets,
		},
		[]string{"phase"})

	m.MergesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "merges_total",
			Help:      "subset merges applied, by kind.",
		},
		[]string{"kind"})

	m.Subsets = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "subsets",
			Help:      "subset count of the last run after each partition phase.",
		},
		[]string{"phase"})

	m.SCCs = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "sccs",
		Help:      "SCC count of the last run after normalization.",
	})

	m.Stages = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "stages",
		Help:      "pipeline stages of the last run.",
	})

	m.registry.MustRegister(m.RunsTotal, m.PhaseDuration, m.MergesTotal, m.Subsets, m.SCCs, m.Stages)
	return m
}

// Registry exposes the underlying registry.
func (m *Monitor) Registry() *prometheus.Registry { return m.registry }

// ObservePhase records how long phase took since start.
func (m *Monitor) ObservePhase(phase string, start time.Time) {
	m.PhaseDuration.WithLabelValues(phase).Observe(time.Since(start).Seconds())
}

// Dump writes every metric family in the text exposition format.
func (m *Monitor) Dump(w io.Writer) error {
	families, err := m.registry.Gather()
	if err != nil {
		return fmt.Errorf("gather metrics: %w", err)
	}
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return fmt.Errorf("write metrics: %w", err)
		}
	}
	return nil
}
