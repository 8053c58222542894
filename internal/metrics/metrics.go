// Package metrics records cycle outcomes in a private Prometheus registry
// and pushes them to a Pushgateway at the end of each run.
package metrics

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/push"

	"github.com/alanyoungcy/perpbot/internal/domain"
)

const namespace = "perpbot"

// Config selects where metrics are pushed. An empty PushURL disables the
// push; the registry still records.
type Config struct {
	PushURL string
	Job     string
}

// Metrics owns the registry and the collectors fed by the cycle runner and
// the store clients.
type Metrics struct {
	registry *prometheus.Registry
	cfg      Config
	logger   *slog.Logger

	cycles        *prometheus.CounterVec
	decisions     *prometheus.CounterVec
	cycleDuration *prometheus.HistogramVec
	equity        *prometheus.GaugeVec
	exposure      *prometheus.GaugeVec
	openPositions *prometheus.GaugeVec
	storeCommands *prometheus.HistogramVec
	lastSuccess   prometheus.Gauge
}

// New creates a Metrics with Go runtime and process collectors registered.
func New(cfg Config, logger *slog.Logger) *Metrics {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Job == "" {
		cfg.Job = namespace
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	m := &Metrics{
		registry: reg,
		cfg:      cfg,
		logger:   logger.With(slog.String("component", "metrics")),
	}

	m.cycles = m.newCounterVec(prometheus.CounterOpts{
		Name: "cycles_total",
		Help: "Cycles run, by execution mode and outcome.",
	}, []string{"mode", "outcome"})
	m.decisions = m.newCounterVec(prometheus.CounterOpts{
		Name: "decisions_total",
		Help: "Intent decisions, by execution mode and disposition.",
	}, []string{"mode", "disposition"})
	m.cycleDuration = m.newHistogramVec(prometheus.HistogramOpts{
		Name:    "cycle_duration_seconds",
		Help:    "Wall time of one cycle from snapshot to last order.",
		Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
	}, []string{"mode"})
	m.equity = m.newGaugeVec(prometheus.GaugeOpts{
		Name: "equity_usd",
		Help: "Account equity at the start of the last cycle.",
	}, []string{"mode"})
	m.exposure = m.newGaugeVec(prometheus.GaugeOpts{
		Name: "exposure_usd",
		Help: "Open notional at the start of the last cycle, by side.",
	}, []string{"mode", "side"})
	m.openPositions = m.newGaugeVec(prometheus.GaugeOpts{
		Name: "open_positions",
		Help: "Open positions at the start of the last cycle.",
	}, []string{"mode"})
	m.storeCommands = m.newHistogramVec(prometheus.HistogramOpts{
		Name:    "store_command_duration_seconds",
		Help:    "Document store command latency.",
		Buckets: prometheus.DefBuckets,
	}, []string{"command", "status"})

	m.lastSuccess = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "last_success_timestamp_seconds",
		Help:      "Unix time of the last cycle that was not aborted.",
	})
	reg.MustRegister(m.lastSuccess)

	return m
}

func (m *Metrics) newCounterVec(opts prometheus.CounterOpts, labels []string) *prometheus.CounterVec {
	opts.Namespace = namespace
	cv := prometheus.NewCounterVec(opts, labels)
	m.registry.MustRegister(cv)
	return cv
}

func (m *Metrics) newGaugeVec(opts prometheus.GaugeOpts, labels []string) *prometheus.GaugeVec {
	opts.Namespace = namespace
	gv := prometheus.NewGaugeVec(opts, labels)
	m.registry.MustRegister(gv)
	return gv
}

func (m *Metrics) newHistogramVec(opts prometheus.HistogramOpts, labels []string) *prometheus.HistogramVec {
	opts.Namespace = namespace
	hv := prometheus.NewHistogramVec(opts, labels)
	m.registry.MustRegister(hv)
	return hv
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// ObserveCycle records one finished cycle. It satisfies
// service.CycleObserver.
func (m *Metrics) ObserveCycle(report domain.CycleReport, elapsed time.Duration) {
	mode := string(report.Mode)

	outcome := "ok"
	if report.Error != "" {
		outcome = "aborted"
	} else {
		m.lastSuccess.Set(float64(report.FinishedAt.Unix()))
	}
	m.cycles.WithLabelValues(mode, outcome).Inc()
	m.cycleDuration.WithLabelValues(mode).Observe(elapsed.Seconds())

	for _, d := range report.Decisions {
		m.decisions.WithLabelValues(mode, string(d.Disposition)).Inc()
	}

	snap := report.Snapshot
	if !snap.TakenAt.IsZero() {
		m.equity.WithLabelValues(mode).Set(snap.Equity)
		m.exposure.WithLabelValues(mode, string(domain.SideLong)).Set(snap.LongNotional)
		m.exposure.WithLabelValues(mode, string(domain.SideShort)).Set(snap.ShortNotional)
		m.openPositions.WithLabelValues(mode).Set(float64(snap.OpenPositions))
	}
}

// ObserveStoreCommand records one document store command. Its signature
// matches mongodb.CommandObserver.
func (m *Metrics) ObserveStoreCommand(command string, elapsed time.Duration, ok bool) {
	status := "ok"
	if !ok {
		status = "error"
	}
	m.storeCommands.WithLabelValues(command, status).Observe(elapsed.Seconds())
}

// Push sends the registry to the configured Pushgateway, replacing the
// job's previous metrics. It is a no-op without a PushURL.
func (m *Metrics) Push(ctx context.Context) error {
	if m.cfg.PushURL == "" {
		return nil
	}
	err := push.New(m.cfg.PushURL, m.cfg.Job).
		Gatherer(m.registry).
		PushContext(ctx)
	if err != nil {
		return fmt.Errorf("metrics: push to %s: %w", m.cfg.PushURL, err)
	}
	m.logger.Debug("metrics: pushed", slog.String("job", m.cfg.Job))
	return nil
}
