// Package finder implements the Position-Finder of spec.md §4.5: a
// single-consumer loop (broker prefetch=1) that turns one
// trading-signal into at most one active PositionProposal, running the
// entry engine on only the most recent bar rather than replaying
// history the way Analyzer does.
package finder

import (
	"context"
	"time"

	"PerpMesh/internal/broker/amqp"
	"PerpMesh/internal/candle"
	"PerpMesh/internal/entryengine"
	"PerpMesh/internal/exchange"
	"PerpMesh/internal/fib"
	"PerpMesh/internal/ids"
	"PerpMesh/internal/logger"
	"PerpMesh/internal/messages"
	"PerpMesh/internal/storage"
	"PerpMesh/internal/symbol"
	"PerpMesh/internal/telemetry"
)

var log = logger.With("finder")

// btc1mBars covers the 60-bar BTC trend window with margin, the same
// lookback internal/analyzer uses for the same indicator.
const btc1mBars = 120

// maxLookbackCandles is spec.md §4.5 step 1's "truncated to the most
// recent 1000".
const maxLookbackCandles = 1000

// Service consumes trading-signals and writes at most one active
// PositionProposal per signal.
type Service struct {
	client exchange.Client
	conn   *amqp.Conn
	db     *storage.DB
	cfg    entryengine.Config
	queue  string
}

// New builds a Finder bound to queue (spec.md §6 "trading-signals").
func New(client exchange.Client, conn *amqp.Conn, db *storage.DB, cfg entryengine.Config, queue string) *Service {
	return &Service{client: client, conn: conn, db: db, cfg: cfg, queue: queue}
}

// Run blocks consuming trading-signals until ctx is cancelled.
func (s *Service) Run(ctx context.Context) error {
	if err := s.conn.DeclareQueue(s.queue); err != nil {
		return err
	}
	log.Infof("finder consuming %s", s.queue)
	return s.conn.Consume(ctx, s.queue, func(d amqp.Delivery) {
		s.handle(ctx, d)
	})
}

func (s *Service) handle(ctx context.Context, d amqp.Delivery) {
	var signal messages.TradingSignal
	if err := d.Decode(&signal); err != nil {
		log.Errorf("decode trading signal: %v", err)
		_ = d.Nack()
		return
	}
	if err := signal.Validate(); err != nil {
		log.Errorf("invalid trading signal: %v", err)
		_ = d.Nack()
		return
	}

	dropped, err := s.process(ctx, signal)
	if err != nil {
		log.Errorf("process signal %s %s: %v", signal.Symbol, signal.Timeframe, err)
		_ = d.Nack()
		return
	}
	if dropped != "" {
		log.Infof("dropped signal %s %s: %s", signal.Symbol, signal.Timeframe, dropped)
	}
	_ = d.Ack()
}

// process implements spec.md §4.5 steps 1-5. A non-empty drop reason
// means the signal was acked without writing a proposal; err is only
// ever set for failures that must instead be nacked and retried.
func (s *Service) process(ctx context.Context, signal messages.TradingSignal) (dropped string, err error) {
	defer telemetry.ObserveCycle("finder", time.Now())(&err)
	defer func() {
		if dropped != "" {
			telemetry.FinderProposalsDroppedTotal.WithLabelValues(dropped).Inc()
		}
	}()

	tf := candle.Timeframe(signal.Timeframe)
	fetcher := exchange.CandleFetcher(s.client)

	bars, err := candle.Fetch(ctx, fetcher, signal.Symbol, tf, lookbackCandles(tf))
	if err != nil {
		return "", err
	}
	if len(bars) < s.cfg.MinCandles() {
		return "insufficient history", nil
	}

	btcBars, err := candle.Fetch(ctx, fetcher, "BTCUSDT", candle.TF1, btc1mBars)
	if err != nil {
		return "", err
	}

	instrument, err := s.client.GetInstrumentInfo(ctx, signal.Symbol)
	if err != nil {
		return "", err
	}
	mtf, err := fib.BuildMultiTimeframe(ctx, fetcher, signal.Symbol)
	if err != nil {
		return "", err
	}
	fundingRate, err := s.latestFundingRate(ctx, signal.Symbol)
	if err != nil {
		return "", err
	}

	sig := entryengine.Evaluate(buildContext(bars, btcBars, instrument, mtf, fundingRate), s.cfg)
	if sig == nil {
		return "no signal above threshold", nil
	}

	proposal := toProposal(signal, sig, s.cfg)

	drop, err := s.checkExchange(ctx, signal.Symbol)
	if err != nil {
		return "", err
	}
	if drop != "" {
		return drop, nil
	}

	drop, proposal, err = s.dedupAgainstRecent(signal.Symbol, proposal)
	if err != nil {
		return "", err
	}
	if drop != "" {
		return drop, nil
	}

	if err := s.db.WriteProposal(proposal); err != nil {
		return "", err
	}
	telemetry.FinderProposalsWrittenTotal.Inc()
	return "", nil
}

// lookbackCandles implements spec.md §4.5 step 1's timeframe-tiered
// history window, in bars rather than days.
func lookbackCandles(tf candle.Timeframe) int {
	minutes := tf.Minutes()
	if minutes <= 0 {
		minutes = 1
	}
	var days int64
	switch {
	case minutes <= 5:
		days = 4
	case minutes <= 15:
		days = 11
	case minutes <= 60:
		days = 21
	default:
		days = 42
	}
	want := days * 1440 / minutes
	if want > maxLookbackCandles {
		want = maxLookbackCandles
	}
	return int(want)
}

func buildContext(bars, btcBars []candle.Candle, instrument exchange.InstrumentInfo, mtf fib.MultiTimeframe, fundingRate float64) entryengine.Context {
	closes := candle.Closes(bars)
	opens := make([]float64, len(bars))
	highs := make([]float64, len(bars))
	lows := make([]float64, len(bars))
	for i, b := range bars {
		opens[i], highs[i], lows[i] = b.Open, b.High, b.Low
	}
	return entryengine.Context{
		Rules:       toInstrumentRules(instrument),
		CoinCloses:  closes,
		CoinOpens:   opens,
		CoinHighs:   highs,
		CoinLows:    lows,
		CoinVolumes: candle.Volumes(bars),
		BTC1mCloses: candle.Closes(btcBars),
		FundingRate: fundingRate,
		Fib:         mtf,
	}
}

// toInstrumentRules narrows an exchange.InstrumentInfo to the
// quantisation subset the entry engine needs, the same projection
// internal/analyzer applies before replaying history.
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

// latestFundingRate mirrors internal/analyzer's helper of the same
// name: the trading-signal message carries no funding field, so Finder
// re-surveys tickers for this one value (spec.md §4.2).
func (s *Service) latestFundingRate(ctx context.Context, sym string) (float64, error) {
	tickers, err := s.client.ListLinearTickers(ctx)
	if err != nil {
		return 0, err
	}
	for _, t := range tickers {
		if t.Symbol == sym {
			return t.FundingRate, nil
		}
	}
	return 0, nil
}

// checkExchange implements spec.md §4.5 step 5's first half: drop with
// ack if the venue already shows an open position or open order on
// this symbol.
func (s *Service) checkExchange(ctx context.Context, sym string) (string, error) {
	positions, err := s.client.GetOpenPositions(ctx, sym)
	if err != nil {
		return "", err
	}
	if len(positions) > 0 {
		return "open position already exists on exchange", nil
	}
	orders, err := s.client.GetOpenOrders(ctx, sym)
	if err != nil {
		return "", err
	}
	if len(orders) > 0 {
		return "open order already exists on exchange", nil
	}
	return "", nil
}

// dedupAgainstRecent implements spec.md §4.5 step 5's second half
// against the Positions table. An `executing` record always wins
// (drop). An `active` record wins if the new proposal is "similar"
// (drop); otherwise the new proposal overwrites it by reusing its
// signal_timestamp, so the write lands on the same (symbol,
// signal_timestamp) primary key instead of leaving both rows to
// coexist until the stale one's TTL sweep.
func (s *Service) dedupAgainstRecent(sym string, proposal storage.PositionProposal) (string, storage.PositionProposal, error) {
	recent, ok, err := s.db.RecentPosition(sym, proposal.SignalTimestamp)
	if err != nil {
		return "", proposal, err
	}
	if !ok {
		return "", proposal, nil
	}
	switch recent.Status {
	case storage.PositionExecuting:
		return "recent position already executing", proposal, nil
	case storage.PositionActive:
		if proposal.IsSimilarTo(recent) {
			return "similar to recent active position", proposal, nil
		}
		proposal.SignalTimestamp = recent.SignalTimestamp
		return "", proposal, nil
	default:
		return "", proposal, nil
	}
}

// toProposal implements spec.md §4.5 step 4: a fired Signal carries
// every supporting value a PositionProposal row needs.
func toProposal(signal messages.TradingSignal, sig *entryengine.Signal, cfg entryengine.Config) storage.PositionProposal {
	riskReward := 0.0
	if sig.ExpectedLoss != 0 {
		riskReward = sig.ExpectedProfit / sig.ExpectedLoss
	}
	return storage.PositionProposal{
		Symbol:            signal.Symbol,
		SignalTimestamp:   time.Now().Unix(),
		Status:            storage.PositionActive,
		Strategy:          string(sig.Strategy),
		Timeframe:         signal.Timeframe,
		Confidence:        sig.Confidence,
		PositionType:      string(sig.Side),
		EntryPrice:        sig.EntryPrice,
		StopLoss:          sig.StopLoss,
		TakeProfit:        sig.TakeProfit,
		PositionSize:      cfg.PositionSize,
		Leverage:          cfg.Leverage,
		RSI:               sig.RSI,
		BBPosition:        sig.BBPosition,
		BBWidth:           sig.BBWidth,
		CoinTrend:         sig.CoinTrend,
		BTCTrend:          sig.BTCTrend,
		FundingSentiment:  sig.Funding,
		FundingRate:       sig.FundingRate,
		NearestSupport:    sig.NearestSupport,
		NearestResistance: sig.NearestResistance,
		ExpectedProfit:    sig.ExpectedProfit,
		ExpectedLoss:      sig.ExpectedLoss,
		RiskRewardRatio:   riskReward,
		SignalID:          ids.New(),
		ScanID:            signal.ScanID,
		Version:           1,
	}
}
