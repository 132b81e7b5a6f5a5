// Package selector implements the Strategy-Selector of spec.md §4.4: a
// single-threaded periodic loop that promotes qualifying Results rows
// into trading-signal messages.
package selector

import (
	"context"
	"time"

	"PerpMesh/internal/broker/amqp"
	"PerpMesh/internal/config"
	"PerpMesh/internal/ids"
	"PerpMesh/internal/logger"
	"PerpMesh/internal/messages"
	"PerpMesh/internal/storage"
	"PerpMesh/internal/telemetry"
)

var log = logger.With("selector")

// Service scans Results for eligible (symbol, timeframe) pairs every
// cfg.ScanInterval and publishes one trading-signal per match.
type Service struct {
	db    *storage.DB
	conn  *amqp.Conn
	cfg   config.Trading
	queue string

	id      string
	running bool
	stopCh  chan struct{}
}

// New builds a Selector bound to queue (spec.md §6 "trading-signals").
func New(db *storage.DB, conn *amqp.Conn, cfg config.Trading, queue string) *Service {
	return &Service{db: db, conn: conn, cfg: cfg, queue: queue, id: ids.New()}
}

// Run executes cycles every cfg.ScanInterval until ctx is cancelled or
// Stop is called, following the teacher's AutoTrader.Run/Stop
// ticker-loop shape (see internal/discovery for the same grounding).
func (s *Service) Run(ctx context.Context) error {
	if err := s.conn.DeclareQueue(s.queue); err != nil {
		return err
	}

	s.running = true
	s.stopCh = make(chan struct{})
	log.Infof("selector %s started, interval=%s", s.id, s.cfg.ScanInterval)

	if err := s.runCycle(ctx); err != nil {
		log.Errorf("selector cycle failed: %v", err)
	}

	ticker := time.NewTicker(s.cfg.ScanInterval)
	defer ticker.Stop()

	for s.running {
		select {
		case <-ticker.C:
			if err := s.runCycle(ctx); err != nil {
				log.Errorf("selector cycle failed: %v", err)
			}
		case <-ctx.Done():
			return nil
		case <-s.stopCh:
			return nil
		}
	}
	return nil
}

// Stop requests a clean shutdown.
func (s *Service) Stop() {
	if !s.running {
		return
	}
	s.running = false
	close(s.stopCh)
}

// runCycle implements spec.md §4.4: scan active Results, publish one
// durable trading-signal per row clearing all three thresholds.
func (s *Service) runCycle(ctx context.Context) (err error) {
	defer telemetry.ObserveCycle("selector", time.Now())(&err)

	active, err := s.db.ActiveResults()
	if err != nil {
		return err
	}

	published := 0
	for _, r := range active {
		if !eligible(r, s.cfg) {
			continue
		}
		signal := messages.TradingSignal{
			Version:       messages.SchemaVersion,
			SelectorID:    s.id,
			Symbol:        r.Symbol,
			Timeframe:     r.OptimalTimeframe,
			Strategy:      r.Timeframe.BestStrategy,
			WinRate:       r.OptimalWinRate,
			TotalPnL:      r.OptimalPnL,
			ConfidenceAvg: r.Timeframe.ConfidenceAvg,
			ScanID:        scanIDFromTimestamp(r.ScanTimestamp),
			Volatility24h: r.PctChange24h,
			Price:         r.LastPrice,
			Timestamp:     time.Now().Unix(),
		}
		if err := signal.Validate(); err != nil {
			log.Warnf("skipping invalid trading signal for %s: %v", r.Symbol, err)
			continue
		}
		if err := s.conn.Publish(ctx, s.queue, signal); err != nil {
			return err
		}
		telemetry.SelectorSignalsPublishedTotal.Inc()
		published++
	}
	log.Infof("selector cycle: %d active, %d published", len(active), published)
	return nil
}

// eligible implements spec.md §4.4's three thresholds, all required.
func eligible(r storage.ActiveResult, cfg config.Trading) bool {
	return r.OptimalWinRate >= cfg.MinWinRate &&
		r.OptimalPnL >= cfg.MinPnL &&
		r.Timeframe.TotalTrades >= cfg.MinTrades
}

func scanIDFromTimestamp(ts int64) string {
	return "scan-" + time.Unix(ts, 0).UTC().Format("20060102T150405Z")
}
