// Package telemetry generalizes the teacher's metrics/metrics.go
// (one prometheus.NewRegistry, promauto.With(Registry) gauges/counters,
// an Init() registering the Go/process collectors) from per-trader
// P&L gauges to per-service pipeline gauges, and its api/tactics.go
// gin router from tactic-CRUD handlers to a minimal /healthz+/metrics
// admin surface (spec.md names no UI; this is ops-facing, not the
// excluded "any UI").
package telemetry

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry is the custom registry every service's metrics register
// against, same shape as the teacher's package-level Registry.
var Registry = prometheus.NewRegistry()

var mu sync.RWMutex

var (
	// CycleDuration observes one runCycle's wall time per service
	// (Discovery, Scanner, Selector, Executor) or one delivery's
	// processing time (Analyzer, Finder).
	CycleDuration = promauto.With(Registry).NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "pipeline",
			Name:      "cycle_duration_seconds",
			Help:      "Wall time of one service cycle or message handled.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service"},
	)

	// CycleErrorsTotal counts cycles/deliveries that returned an error.
	CycleErrorsTotal = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pipeline",
			Name:      "cycle_errors_total",
			Help:      "Cycles or deliveries that failed.",
		},
		[]string{"service"},
	)

	// DiscoverySymbolsGauge tracks the size of the latest published
	// Discovery symbol set.
	DiscoverySymbolsGauge = promauto.With(Registry).NewGauge(
		prometheus.GaugeOpts{
			Namespace: "pipeline",
			Subsystem: "discovery",
			Name:      "symbols_count",
			Help:      "Symbols in the most recently published discovery set.",
		},
	)

	// ScannerTasksPublishedTotal counts backtest-tasks messages published.
	ScannerTasksPublishedTotal = promauto.With(Registry).NewCounter(
		prometheus.CounterOpts{
			Namespace: "pipeline",
			Subsystem: "scanner",
			Name:      "tasks_published_total",
			Help:      "backtest-tasks messages published.",
		},
	)

	// AnalyzerTradesSimulatedTotal counts simulated trades across all
	// analyzed (symbol, timeframe) tasks.
	AnalyzerTradesSimulatedTotal = promauto.With(Registry).NewCounter(
		prometheus.CounterOpts{
			Namespace: "pipeline",
			Subsystem: "analyzer",
			Name:      "trades_simulated_total",
			Help:      "Trades simulated across all backtest tasks.",
		},
	)

	// SelectorSignalsPublishedTotal counts trading-signals messages published.
	SelectorSignalsPublishedTotal = promauto.With(Registry).NewCounter(
		prometheus.CounterOpts{
			Namespace: "pipeline",
			Subsystem: "selector",
			Name:      "signals_published_total",
			Help:      "trading-signals messages published.",
		},
	)

	// FinderProposalsWrittenTotal counts PositionProposal rows written.
	FinderProposalsWrittenTotal = promauto.With(Registry).NewCounter(
		prometheus.CounterOpts{
			Namespace: "pipeline",
			Subsystem: "finder",
			Name:      "proposals_written_total",
			Help:      "PositionProposal rows written to active status.",
		},
	)

	// FinderProposalsDroppedTotal counts signals dropped without a
	// proposal, labeled by the drop reason string.
	FinderProposalsDroppedTotal = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pipeline",
			Subsystem: "finder",
			Name:      "proposals_dropped_total",
			Help:      "trading-signals dropped without writing a proposal.",
		},
		[]string{"reason"},
	)

	// ExecutorOrdersPlacedTotal counts market orders successfully placed.
	ExecutorOrdersPlacedTotal = promauto.With(Registry).NewCounter(
		prometheus.CounterOpts{
			Namespace: "pipeline",
			Subsystem: "executor",
			Name:      "orders_placed_total",
			Help:      "Market orders placed with retCode=0.",
		},
	)

	// ExecutorActivePositionsGauge tracks status=active Positions rows
	// as of the most recent scan cycle.
	ExecutorActivePositionsGauge = promauto.With(Registry).NewGauge(
		prometheus.GaugeOpts{
			Namespace: "pipeline",
			Subsystem: "executor",
			Name:      "active_positions",
			Help:      "PositionProposal rows with status=active as of the last scan.",
		},
	)

	// ServiceUp reports 1 while a service's main loop is running, 0 once
	// it has exited cleanly.
	ServiceUp = promauto.With(Registry).NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "pipeline",
			Name:      "service_up",
			Help:      "1 while the service's main loop is running.",
		},
		[]string{"service"},
	)
)

// ObserveCycle records a cycle's duration and, on error, bumps the
// error counter. Callers wrap their runCycle/handle call:
// defer telemetry.ObserveCycle(service, time.Now())(&err)
func ObserveCycle(service string, start time.Time) func(errp *error) {
	return func(errp *error) {
		CycleDuration.WithLabelValues(service).Observe(time.Since(start).Seconds())
		if errp != nil && *errp != nil {
			CycleErrorsTotal.WithLabelValues(service).Inc()
		}
	}
}

// Init registers the standard Go/process collectors, the same two
// calls the teacher's metrics.Init does.
func Init() {
	mu.Lock()
	defer mu.Unlock()
	Registry.MustRegister(prometheus.NewGoCollector())
	Registry.MustRegister(prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))
}

// Server exposes /healthz and /metrics for one service process,
// generalized from the teacher's api.Server gin router (tactic CRUD
// there, liveness/metrics here).
type Server struct {
	service string
	engine  *gin.Engine
	http    *http.Server
}

// NewServer builds the gin router for service, bound to addr
// (":PORT").
func NewServer(service, addr string) *Server {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())

	engine.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"service": service, "status": "ok"})
	})
	engine.GET("/metrics", gin.WrapH(promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})))

	return &Server{
		service: service,
		engine:  engine,
		http:    &http.Server{Addr: addr, Handler: engine},
	}
}

// Run starts the HTTP server and blocks until ctx is cancelled, then
// shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	ServiceUp.WithLabelValues(s.service).Set(1)
	errCh := make(chan error, 1)
	go func() {
		if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		ServiceUp.WithLabelValues(s.service).Set(0)
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.http.Shutdown(shutdownCtx)
	case err := <-errCh:
		ServiceUp.WithLabelValues(s.service).Set(0)
		return err
	}
}
