// Package executor implements the Order-Executor of spec.md §4.6: a
// singleton, periodic (SCAN_INTERVAL) loop that places real orders
// against active PositionProposals. Singleton status is enforced with
// a renewable KV leader lock rather than left purely to deployment
// discipline, following the same lock primitive internal/kv already
// exposes for this exact purpose (spec.md §9).
package executor

import (
	"context"
	"sort"
	"time"

	"PerpMesh/internal/config"
	"PerpMesh/internal/exchange"
	"PerpMesh/internal/ids"
	"PerpMesh/internal/kv"
	"PerpMesh/internal/logger"
	"PerpMesh/internal/storage"
	"PerpMesh/internal/symbol"
	"PerpMesh/internal/telemetry"
	"PerpMesh/internal/xerr"
)

var log = logger.With("executor")

// lockKey is the single Redis key every Executor process contends on.
const lockKey = "executor:leader"

// lockTTL must comfortably outlive one scan cycle so a healthy leader
// never loses its own lock mid-cycle; spec.md §5 names Executor as a
// "must be a singleton" periodic loop but leaves the mechanism open.
const lockTTL = 30 * time.Second

// minVolume24h is spec.md §4.6 step 3's liquidity gate floor.
const minVolume24h = 1000.0

// Service scans Positions for status=active every cfg.ScanInterval and
// attempts to execute each one that clears all entry gates.
type Service struct {
	client exchange.Client
	db     *storage.DB
	store  *kv.Store
	cfg    config.Trading

	id      string
	running bool
	stopCh  chan struct{}
}

// New builds an Executor. store may be nil only in tests that call
// runCycle directly without Run's leader-election wrapper.
func New(client exchange.Client, db *storage.DB, store *kv.Store, cfg config.Trading) *Service {
	return &Service{client: client, db: db, store: store, cfg: cfg, id: ids.New()}
}

// Run acquires the leader lock, then executes cycles every
// cfg.ScanInterval until ctx is cancelled, Stop is called, or the lock
// is lost to another holder. Grounded on the same AutoTrader.Run/Stop
// ticker-loop shape as internal/discovery and internal/selector.
func (s *Service) Run(ctx context.Context) error {
	lock, ok, err := s.store.AcquireLock(ctx, lockKey, s.id, lockTTL)
	if err != nil {
		return err
	}
	if !ok {
		return xerr.Wrap(xerr.ContractViolation, "executor %s: another instance already holds the leader lock", s.id)
	}
	defer func() { _ = lock.Release(ctx) }()

	s.running = true
	s.stopCh = make(chan struct{})
	log.Infof("executor %s elected leader, interval=%s", s.id, s.cfg.ScanInterval)

	if err := s.runCycle(ctx); err != nil {
		log.Errorf("executor cycle failed: %v", err)
	}

	ticker := time.NewTicker(s.cfg.ScanInterval)
	defer ticker.Stop()

	renewEvery := lockTTL / 3
	renewTicker := time.NewTicker(renewEvery)
	defer renewTicker.Stop()

	for s.running {
		select {
		case <-ticker.C:
			if err := s.runCycle(ctx); err != nil {
				log.Errorf("executor cycle failed: %v", err)
			}
		case <-renewTicker.C:
			held, err := lock.Renew(ctx, lockTTL)
			if err != nil {
				log.Errorf("renew leader lock: %v", err)
				continue
			}
			if !held {
				return xerr.Wrap(xerr.ContractViolation, "executor %s: lost leader lock", s.id)
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

// runCycle expires proposals past their 5-minute TTL, then implements
// spec.md §4.6 steps 1-8 over every active proposal, most-recent first.
func (s *Service) runCycle(ctx context.Context) (err error) {
	defer telemetry.ObserveCycle("executor", time.Now())(&err)

	if n, err := s.db.SweepExpiredPositions(time.Now().Unix()); err != nil {
		return err
	} else if n > 0 {
		log.Debugf("expired %d stale position(s)", n)
	}

	positions, err := s.db.ActivePositions()
	if err != nil {
		return err
	}
	telemetry.ExecutorActivePositionsGauge.Set(float64(len(positions)))
	sort.Slice(positions, func(i, j int) bool {
		return positions[i].SignalTimestamp > positions[j].SignalTimestamp
	})

	tickers, err := s.client.ListLinearTickers(ctx)
	if err != nil {
		return err
	}
	bySymbol := make(map[string]exchange.Ticker, len(tickers))
	for _, t := range tickers {
		bySymbol[t.Symbol] = t
	}

	for _, p := range positions {
		if err := s.attempt(ctx, p, bySymbol[p.Symbol]); err != nil {
			log.Errorf("execute %s: %v", p.Symbol, err)
		}
	}
	return nil
}

// attempt runs one proposal through the gates, margin check, leverage
// set, sizing, and order placement of spec.md §4.6 steps 2-8. Gate and
// margin failures are not errors: the proposal is simply left active
// for the next cycle, exactly as step 8 prescribes for order errors.
func (s *Service) attempt(ctx context.Context, p storage.PositionProposal, ticker exchange.Ticker) error {
	if ticker.Symbol == "" {
		return nil // no current ticker for this symbol this cycle
	}
	if reason, ok := passesEntryGates(p, ticker, s.cfg); !ok {
		log.Debugf("gate failed for %s: %s", p.Symbol, reason)
		return nil
	}

	available, err := s.availableMargin(ctx)
	if err != nil {
		return err
	}
	if available < p.PositionSize/float64(p.Leverage) {
		log.Debugf("insufficient margin for %s: available=%.2f required=%.2f", p.Symbol, available, p.PositionSize/float64(p.Leverage))
		return nil
	}

	if err := s.client.SetLeverage(ctx, p.Symbol, p.Leverage); err != nil {
		return err
	}

	instrument, err := s.client.GetInstrumentInfo(ctx, p.Symbol)
	if err != nil {
		return err
	}
	qty := orderQty(p, toInstrumentRules(instrument))
	if qty <= 0 {
		log.Debugf("zero order quantity for %s after snapping", p.Symbol)
		return nil
	}

	side := exchange.Buy
	if p.PositionType == "SHORT" {
		side = exchange.Sell
	}
	result, err := s.client.PlaceMarketOrder(ctx, exchange.MarketOrderRequest{
		Symbol:     p.Symbol,
		Side:       side,
		Qty:        qty,
		StopLoss:   p.StopLoss,
		TakeProfit: p.TakeProfit,
	})
	if err != nil {
		return err
	}
	if result.RetCode != 0 {
		log.Warnf("order rejected for %s: retCode=%d retMsg=%s", p.Symbol, result.RetCode, result.RetMsg)
		return nil // leave active; the 5-minute TTL is the backstop
	}

	telemetry.ExecutorOrdersPlacedTotal.Inc()

	ok, err := s.db.TryExecute(p.Symbol, p.SignalTimestamp, result.OrderID, time.Now().Unix())
	if err != nil {
		return err
	}
	if !ok {
		log.Warnf("lost the active->executing race for %s; an order may have been double-placed", p.Symbol)
	}
	return nil
}

// passesEntryGates implements spec.md §4.6 step 3's five required
// conditions, all of which must hold.
func passesEntryGates(p storage.PositionProposal, t exchange.Ticker, cfg config.Trading) (string, bool) {
	if p.Confidence < float64(cfg.MinConfidence) {
		return "confidence below minimum", false
	}
	priceDeltaPct := absf(t.LastPrice-p.EntryPrice) / p.EntryPrice
	if priceDeltaPct > cfg.PriceTolerance {
		return "price moved outside tolerance", false
	}
	if p.PositionType == "LONG" && t.LastPrice > p.EntryPrice*1.002 {
		return "chasing a long entry", false
	}
	if p.PositionType == "SHORT" && t.LastPrice < p.EntryPrice*0.998 {
		return "chasing a short entry", false
	}
	if t.BidPrice <= 0 {
		return "no bid", false
	}
	spreadPct := (t.AskPrice - t.BidPrice) / t.BidPrice
	if spreadPct > 0.001 {
		return "spread too wide", false
	}
	if t.Volume24h < minVolume24h {
		return "24h volume too thin", false
	}
	return "", true
}

// availableMargin implements spec.md §4.6 step 4: available wallet
// balance minus the margin already committed to open positions.
func (s *Service) availableMargin(ctx context.Context) (float64, error) {
	wallet, err := s.client.GetWalletBalance(ctx)
	if err != nil {
		return 0, err
	}
	open, err := s.client.GetOpenPositions(ctx, "")
	if err != nil {
		return 0, err
	}
	var usedMargin float64
	for _, pos := range open {
		if pos.Leverage <= 0 {
			continue
		}
		usedMargin += pos.Size * pos.AvgPrice / float64(pos.Leverage)
	}
	return wallet.AvailableBalance - usedMargin, nil
}

// orderQty implements spec.md §4.6 step 6.
func orderQty(p storage.PositionProposal, rules symbol.InstrumentRules) float64 {
	if p.EntryPrice <= 0 || p.Leverage <= 0 {
		return 0
	}
	raw := p.PositionSize * float64(p.Leverage) / p.EntryPrice
	return rules.SnapQty(raw)
}

// toInstrumentRules narrows an exchange.InstrumentInfo to the
// quantisation subset sizing needs, the same projection
// internal/analyzer and internal/finder apply.
func toInstrumentRules(info exchange.InstrumentInfo) symbol.InstrumentRules {
	return symbol.InstrumentRules{
		PriceTick:     info.PriceTick,
		MinPrice:      info.MinPrice,
		QtyStep:       info.QtyStep,
		MinQty:        info.MinQty,
		MaxQty:        info.MaxQty,
		PriceDecimals: info.PriceDecimals,
		QtyDecimals:   info.QtyDecimals,
	}
}

func absf(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
