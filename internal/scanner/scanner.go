// Package scanner implements the Scanner of spec.md §4 data-flow line
// ("KV(symbol set) → Scanner → Broker(backtest-tasks)"): a
// single-threaded periodic loop that turns the latest Discovery symbol
// set into one backtest-tasks message per (symbol, timeframe), records
// the cycle in ScanHistory, and garbage-collects stale Results rows
// (spec.md I6). It also owns the Results/ScanHistory TTL sweep, the
// closest existing owner of that duty per spec.md §9.
package scanner

import (
	"context"
	"time"

	"PerpMesh/internal/broker/amqp"
	"PerpMesh/internal/config"
	"PerpMesh/internal/ids"
	"PerpMesh/internal/kv"
	"PerpMesh/internal/logger"
	"PerpMesh/internal/messages"
	"PerpMesh/internal/storage"
	"PerpMesh/internal/telemetry"
)

var log = logger.With("scanner")

// timeframes is spec.md §6's backtest-tasks timeframe domain: one task
// per symbol per timeframe, each independently scored by Analyzer.
var timeframes = []string{"1", "3", "5", "15", "30"}

// Service turns Discovery's published symbol set into backtest tasks.
type Service struct {
	conn  *amqp.Conn
	store *kv.Store
	db    *storage.DB
	cfg   config.Trading
	queue string

	id      string
	running bool
	stopCh  chan struct{}
}

// New builds a Scanner bound to queue (spec.md §6 "backtest-tasks").
func New(conn *amqp.Conn, store *kv.Store, db *storage.DB, cfg config.Trading, queue string) *Service {
	return &Service{conn: conn, store: store, db: db, cfg: cfg, queue: queue, id: ids.New()}
}

// Run executes cycles every cfg.ScanInterval until ctx is cancelled or
// Stop is called, running one cycle immediately on entry, following
// the teacher's AutoTrader.Run/Stop ticker-loop shape already reused
// by internal/discovery and internal/selector.
func (s *Service) Run(ctx context.Context) error {
	if err := s.conn.DeclareQueue(s.queue); err != nil {
		return err
	}
	s.running = true
	s.stopCh = make(chan struct{})
	log.Infof("scanner %s started, interval=%s", s.id, s.cfg.ScanInterval)

	if err := s.runCycle(ctx); err != nil {
		log.Errorf("scan cycle failed: %v", err)
	}

	ticker := time.NewTicker(s.cfg.ScanInterval)
	defer ticker.Stop()

	for s.running {
		select {
		case <-ticker.C:
			if err := s.runCycle(ctx); err != nil {
				log.Errorf("scan cycle failed: %v", err)
			}
		case <-ctx.Done():
			return nil
		case <-s.stopCh:
			log.Infof("scanner %s stopping", s.id)
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

// runCycle implements the Scanner's three duties: publish one task per
// (symbol, timeframe) in the latest Discovery set, record the cycle
// against the previous one in ScanHistory, and garbage-collect Results
// rows for symbols no longer in the set (I6). It also sweeps expired
// Results/ScanHistory rows (§9 "PERSISTENCE BINDING").
func (s *Service) runCycle(ctx context.Context) (err error) {
	defer telemetry.ObserveCycle("scanner", time.Now())(&err)

	set, ok, err := s.store.LatestDiscovery(ctx)
	if err != nil {
		return err
	}
	if !ok {
		log.Debugf("no discovery set published yet; skipping cycle")
		return nil
	}

	scanID := ids.New()
	now := time.Now().Unix()

	bySymbol := make(map[string]kv.SymbolDetail, len(set.Details))
	for _, d := range set.Details {
		bySymbol[d.Symbol] = d
	}

	for _, symbol := range set.Symbols {
		detail := bySymbol[symbol]
		for _, tf := range timeframes {
			task := messages.BacktestTask{
				Version:        messages.SchemaVersion,
				ScanID:         scanID,
				Symbol:         symbol,
				Timeframe:      tf,
				Volatility24h:  detail.PctChange24h,
				Turnover:       detail.Turnover24h,
				PriceChange24h: detail.PctChange24h,
				Timestamp:      now,
			}
			if err := s.conn.Publish(ctx, s.queue, task); err != nil {
				return err
			}
			telemetry.ScannerTasksPublishedTotal.Inc()
		}
	}

	removed := diffRemoved(s.db, now, set.Symbols)
	if err := s.db.RecordScan(storage.ScanHistory{
		ScanID:        scanID,
		ScanTimestamp: now,
		Selected:      set.Symbols,
		Removed:       removed,
	}); err != nil {
		return err
	}

	if n, err := s.db.DeleteResultsNotIn(set.Symbols); err != nil {
		return err
	} else if n > 0 {
		log.Infof("gc'd %d stale results row(s) not in latest discovery set", n)
	}

	if n, err := s.db.SweepExpiredResults(now); err != nil {
		return err
	} else if n > 0 {
		log.Debugf("swept %d expired results row(s)", n)
	}
	if n, err := s.db.SweepExpiredScanHistory(now); err != nil {
		return err
	} else if n > 0 {
		log.Debugf("swept %d expired scan_history row(s)", n)
	}

	log.Infof("scan cycle %s: published %d symbol(s) x %d timeframe(s), removed %d", scanID, len(set.Symbols), len(timeframes), len(removed))
	return nil
}

// diffRemoved compares the current symbol set to the most recent
// prior ScanHistory record (spec.md §3: "those removed vs previous
// cycle"). Any lookup failure degrades to an empty diff rather than
// aborting the cycle — the diff is informational, not load-bearing for
// correctness.
func diffRemoved(db *storage.DB, now int64, current []string) []string {
	prev, ok, err := db.PreviousScan(now)
	if err != nil || !ok {
		return nil
	}
	inCurrent := make(map[string]bool, len(current))
	for _, sym := range current {
		inCurrent[sym] = true
	}
	var removed []string
	for _, sym := range prev.Selected {
		if !inCurrent[sym] {
			removed = append(removed, sym)
		}
	}
	return removed
}
