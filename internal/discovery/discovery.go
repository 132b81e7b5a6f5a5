// Package discovery implements the periodic symbol-universe survey of
// spec.md §4.1: fetch every linear-perpetual ticker, apply the five
// inclusion rules, rank and keep the top 75, publish to KV.
package discovery

import (
	"context"
	"sort"
	"time"

	"PerpMesh/internal/config"
	"PerpMesh/internal/exchange"
	"PerpMesh/internal/ids"
	"PerpMesh/internal/kv"
	"PerpMesh/internal/logger"
	"PerpMesh/internal/symbol"
	"PerpMesh/internal/telemetry"
)

const topN = 75

var log = logger.With("discovery")

// Service runs the Discovery loop. The run-loop shape (ticker-driven
// cycle, immediate first cycle, per-cycle error containment, clean
// stop) follows the teacher's AutoTrader.Run/Stop.
type Service struct {
	client exchange.Client
	store  *kv.Store
	cfg    config.Trading

	id      string
	running bool
	stopCh  chan struct{}
}

// New builds a Discovery service. id tags this instance in logs only;
// Discovery itself has no liveness set (that's Scanner's concern).
func New(client exchange.Client, store *kv.Store, cfg config.Trading) *Service {
	return &Service{client: client, store: store, cfg: cfg, id: ids.New()}
}

// Run executes cycles every cfg.DiscoveryInterval until ctx is
// cancelled or Stop is called, running one cycle immediately on entry.
func (s *Service) Run(ctx context.Context) error {
	s.running = true
	s.stopCh = make(chan struct{})

	log.Infof("discovery service %s started, interval=%s", s.id, s.cfg.DiscoveryInterval)

	if err := s.runCycle(ctx); err != nil {
		log.Errorf("discovery cycle failed: %v", err)
	}

	ticker := time.NewTicker(s.cfg.DiscoveryInterval)
	defer ticker.Stop()

	for s.running {
		select {
		case <-ticker.C:
			if err := s.runCycle(ctx); err != nil {
				log.Errorf("discovery cycle failed: %v", err)
			}
		case <-ctx.Done():
			return nil
		case <-s.stopCh:
			log.Infof("discovery service %s stopping", s.id)
			return nil
		}
	}
	return nil
}

// Stop requests a clean shutdown; Run returns once the current cycle finishes.
func (s *Service) Stop() {
	if !s.running {
		return
	}
	s.running = false
	close(s.stopCh)
}

// runCycle fetches tickers, filters/ranks them, and publishes the
// result. Any fetch error aborts the cycle with no partial write
// (spec.md §4.1 "Failure semantics").
func (s *Service) runCycle(ctx context.Context) (err error) {
	defer telemetry.ObserveCycle("discovery", time.Now())(&err)

	tickers, err := s.client.ListLinearTickers(ctx)
	if err != nil {
		return err
	}

	type ranked struct {
		detail kv.SymbolDetail
		score  float64
	}
	var included []ranked
	for _, t := range tickers {
		sym := symbol.Symbol{
			Name:         t.Symbol,
			LastPrice:    t.LastPrice,
			Turnover24h:  t.Turnover24h,
			PctChange24h: t.PctChange24h,
			High24h:      t.High24h,
			Low24h:       t.Low24h,
			FundingRate:  t.FundingRate,
		}
		verdict := symbol.Evaluate(sym, s.cfg.MinVolume24h, s.cfg.MinVolatilityPct)
		if !verdict.Included {
			continue
		}
		included = append(included, ranked{
			detail: kv.SymbolDetail{
				Symbol:       t.Symbol,
				Score:        verdict.Score,
				Turnover24h:  t.Turnover24h,
				PctChange24h: t.PctChange24h,
			},
			score: verdict.Score,
		})
	}

	sort.Slice(included, func(i, j int) bool { return included[i].score > included[j].score })
	if len(included) > topN {
		included = included[:topN]
	}

	symbols := make([]string, 0, len(included))
	details := make([]kv.SymbolDetail, 0, len(included))
	for _, r := range included {
		symbols = append(symbols, r.detail.Symbol)
		details = append(details, r.detail)
	}

	prev, _, err := s.store.LatestDiscovery(ctx)
	if err != nil {
		return err
	}

	set := kv.DiscoverySet{
		Version:   prev.Version + 1,
		Timestamp: time.Now().Unix(),
		Symbols:   symbols,
		Details:   details,
	}
	if err := s.store.PublishDiscovery(ctx, set); err != nil {
		return err
	}
	telemetry.DiscoverySymbolsGauge.Set(float64(len(symbols)))

	live, err := s.store.ActiveScanners(ctx)
	if err != nil {
		log.Warnf("scanner liveness gc failed: %v", err)
	} else {
		log.Infof("discovery cycle: %d tickers fetched, %d included, %d scanners live", len(tickers), len(symbols), len(live))
	}
	return nil
}
