// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"scalping-backtest-lab/internal/backtest"
	"scalping-backtest-lab/internal/domain"
)

// Metrics holds all Prometheus metrics for the application. It implements
// backtest.Observer, so an engine reports into it directly.
type Metrics struct {
	// Run metrics
	RunsTotal     *prometheus.CounterVec
	RunDuration   *prometheus.HistogramVec
	BarsProcessed *prometheus.CounterVec

	// Engine event metrics
	Entries        *prometheus.CounterVec
	Events         *prometheus.CounterVec
	TradesClosed   *prometheus.CounterVec
	TradePnLPct    *prometheus.HistogramVec
	TradeDuration  prometheus.Histogram
	Equity         *prometheus.GaugeVec
	Drawdown       *prometheus.GaugeVec
	KillSwitchHits *prometheus.CounterVec

	// Database metrics
	DBQueryDuration *prometheus.HistogramVec
	DBQueryErrors   *prometheus.CounterVec

	// Health metrics
	LastSuccessfulRun prometheus.Gauge
}

var _ backtest.Observer = (*Metrics)(nil)

// NewMetrics registers every metric with reg. A nil reg uses the default registerer.
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	if namespace == "" {
		namespace = "scalping_backtest"
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)

	return &Metrics{
		RunsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "run",
			Name:      "total",
			Help:      "Backtest runs by symbol and outcome",
		}, []string{"symbol", "status"}),
		RunDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "run",
			Name:      "duration_seconds",
			Help:      "Backtest run duration in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 5, 10, 30, 60, 300},
		}, []string{"symbol"}),
		BarsProcessed: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "run",
			Name:      "bars_processed_total",
			Help:      "Fast bars evaluated by the engine",
		}, []string{"symbol"}),

		Entries: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "entries_total",
			Help:      "Positions opened by symbol and side",
		}, []string{"symbol", "side"}),
		Events: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "events_total",
			Help:      "Engine events by symbol and kind",
		}, []string{"symbol", "kind"}),
		TradesClosed: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "trades_closed_total",
			Help:      "Closed trades by symbol and exit reason",
		}, []string{"symbol", "exit_reason"}),
		TradePnLPct: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "trade_pnl_pct",
			Help:      "Closed trade PnL in percent of entry notional",
			Buckets:   []float64{-5, -2, -1, -0.5, -0.25, 0, 0.25, 0.5, 1, 2, 5},
		}, []string{"symbol"}),
		TradeDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "trade_duration_seconds",
			Help:      "Closed trade holding time in bar-clock seconds",
			Buckets:   []float64{300, 900, 1800, 3600, 7200, 14400, 43200, 86400},
		}),
		Equity: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "equity",
			Help:      "Latest equity sample per symbol",
		}, []string{"symbol"}),
		Drawdown: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "drawdown_ratio",
			Help:      "Latest drawdown from peak equity per symbol",
		}, []string{"symbol"}),
		KillSwitchHits: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "kill_switch_total",
			Help:      "Runs stopped by the drawdown kill switch",
		}, []string{"symbol"}),

		DBQueryDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_duration_seconds",
			Help:      "Database query duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"database", "operation"}),
		DBQueryErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_errors_total",
			Help:      "Total number of database query errors",
		}, []string{"database", "operation"}),

		LastSuccessfulRun: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_successful_run_timestamp",
			Help:      "Unix timestamp of last successful run",
		}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// HandlerFor serves the metrics of a custom gatherer.
func HandlerFor(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

// OnTrade records a closed trade.
func (m *Metrics) OnTrade(_ string, t domain.TradeLog) {
	m.TradesClosed.WithLabelValues(t.Symbol, t.ExitReason).Inc()
	m.TradePnLPct.WithLabelValues(t.Symbol).Observe(t.PnLPct.InexactFloat64())
	m.TradeDuration.Observe(float64(t.DurationMs) / 1000)
}

// OnEquity tracks the latest sample of each symbol.
func (m *Metrics) OnEquity(_, symbol string, s domain.EquitySample) {
	m.Equity.WithLabelValues(symbol).Set(s.Equity.InexactFloat64())
	m.Drawdown.WithLabelValues(symbol).Set(s.Drawdown.InexactFloat64())
	m.BarsProcessed.WithLabelValues(symbol).Inc()
}

// OnEvent counts engine events.
func (m *Metrics) OnEvent(e backtest.Event) {
	m.Events.WithLabelValues(e.Symbol, string(e.Kind)).Inc()
	switch e.Kind {
	case backtest.EventEntry:
		m.Entries.WithLabelValues(e.Symbol, string(e.Side)).Inc()
	case backtest.EventKillSwitch:
		m.KillSwitchHits.WithLabelValues(e.Symbol).Inc()
	}
}

// RecordRun records a finished run.
func (m *Metrics) RecordRun(symbol, status string, durationSeconds float64, finishedUnix int64) {
	m.RunsTotal.WithLabelValues(symbol, status).Inc()
	m.RunDuration.WithLabelValues(symbol).Observe(durationSeconds)
	if status == StatusSuccess {
		m.LastSuccessfulRun.Set(float64(finishedUnix))
	}
}

// RecordDBQuery records database query metrics.
func (m *Metrics) RecordDBQuery(database, operation string, seconds float64, err error) {
	m.DBQueryDuration.WithLabelValues(database, operation).Observe(seconds)
	if err != nil {
		m.DBQueryErrors.WithLabelValues(database, operation).Inc()
	}
}

// Run outcome labels.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)
