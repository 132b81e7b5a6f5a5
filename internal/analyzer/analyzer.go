// Package analyzer implements the Backtest-Analyzer of spec.md §4.3: a
// single-consumer loop (broker prefetch=1) that replays the entry
// engine bar-by-bar over historical candles and upserts the aggregate
// scorecard into Results.
package analyzer

import (
	"context"
	"sort"
	"time"

	"PerpMesh/internal/broker/amqp"
	"PerpMesh/internal/candle"
	"PerpMesh/internal/entryengine"
	"PerpMesh/internal/exchange"
	"PerpMesh/internal/fib"
	"PerpMesh/internal/logger"
	"PerpMesh/internal/messages"
	"PerpMesh/internal/storage"
	"PerpMesh/internal/symbol"
	"PerpMesh/internal/telemetry"
)

var log = logger.With("analyzer")

// candlesPerTask is spec.md §4.3 step 1's "1000 candles at the given
// timeframe"; btc1mBars covers the 60-bar BTC trend window with margin.
const (
	candlesPerTask = 1000
	btc1mBars      = 120
)

// Service consumes backtest-tasks and writes TimeframeResult rows.
type Service struct {
	client exchange.Client
	conn   *amqp.Conn
	db     *storage.DB
	cfg    entryengine.Config
	queue  string
}

// New builds an Analyzer bound to queue (spec.md §6 "backtest-tasks").
func New(client exchange.Client, conn *amqp.Conn, db *storage.DB, cfg entryengine.Config, queue string) *Service {
	return &Service{client: client, conn: conn, db: db, cfg: cfg, queue: queue}
}

// Run blocks consuming backtest-tasks until ctx is cancelled.
func (s *Service) Run(ctx context.Context) error {
	if err := s.conn.DeclareQueue(s.queue); err != nil {
		return err
	}
	log.Infof("analyzer consuming %s", s.queue)
	return s.conn.Consume(ctx, s.queue, func(d amqp.Delivery) {
		s.handle(ctx, d)
	})
}

func (s *Service) handle(ctx context.Context, d amqp.Delivery) {
	var task messages.BacktestTask
	if err := d.Decode(&task); err != nil {
		log.Errorf("decode backtest task: %v", err)
		_ = d.Nack()
		return
	}
	if err := task.Validate(); err != nil {
		log.Errorf("invalid backtest task: %v", err)
		_ = d.Nack()
		return
	}

	if err := s.process(ctx, task); err != nil {
		log.Errorf("analyze %s %s: %v", task.Symbol, task.Timeframe, err)
		_ = d.Nack()
		return
	}
	_ = d.Ack()
}

// process implements spec.md §4.3 steps 1-5 for one task.
func (s *Service) process(ctx context.Context, task messages.BacktestTask) (err error) {
	defer telemetry.ObserveCycle("analyzer", time.Now())(&err)

	result, err := Analyze(ctx, s.client, s.cfg, task.Symbol, task.Timeframe)
	if err != nil {
		return err
	}
	telemetry.AnalyzerTradesSimulatedTotal.Add(float64(result.TotalTrades))

	ticker := storage.TickerSnapshot{
		LastPrice:    task.Price,
		Turnover24h:  task.Turnover,
		PctChange24h: task.PriceChange24h,
	}
	return s.db.UpsertResult(task.Symbol, task.Timestamp, ticker, task.Timeframe, result)
}

// Analyze runs spec.md §4.3 steps 1-4 for one (symbol, timeframe) pair
// against live exchange data, independent of any Service/queue/db. It
// is the entry point cmd/backtest uses to drive the same engine
// outside the broker-consumer pipeline.
func Analyze(ctx context.Context, client exchange.Client, cfg entryengine.Config, sym, timeframe string) (storage.TimeframeResult, error) {
	tf := candle.Timeframe(timeframe)
	fetcher := exchange.CandleFetcher(client)

	bars, err := candle.Fetch(ctx, fetcher, sym, tf, candlesPerTask)
	if err != nil {
		return storage.TimeframeResult{}, err
	}

	btcBars, err := candle.Fetch(ctx, fetcher, "BTCUSDT", candle.TF1, btc1mBars)
	if err != nil {
		return storage.TimeframeResult{}, err
	}

	instrument, err := client.GetInstrumentInfo(ctx, sym)
	if err != nil {
		return storage.TimeframeResult{}, err
	}
	mtf, err := fib.BuildMultiTimeframe(ctx, fetcher, sym)
	if err != nil {
		return storage.TimeframeResult{}, err
	}

	fundingRate, err := latestFundingRate(ctx, client, sym)
	if err != nil {
		return storage.TimeframeResult{}, err
	}

	s := &Service{cfg: cfg}
	return s.simulate(bars, btcBars, instrument, mtf, fundingRate), nil
}

// latestFundingRate finds task.Symbol's current ticker among the full
// linear-perpetual sweep (spec.md §4.2: "latest funding rate from the
// ticker" — the backtest-tasks message itself carries no funding
// field, so Analyzer re-surveys tickers for this one value).
func latestFundingRate(ctx context.Context, client exchange.Client, sym string) (float64, error) {
	tickers, err := client.ListLinearTickers(ctx)
	if err != nil {
		return 0, err
	}
	for _, t := range tickers {
		if t.Symbol == sym {
			return t.FundingRate, nil
		}
	}
	return 0, nil // spec.md §9: funding-rate-only symbols with no ticker -> NEUTRAL/0.0
}

// trade is one simulated round-trip (spec.md §4.3 step 4/§8).
type trade struct {
	netPnL     float64
	confidence float64
	category   string // storage.BestBasic / storage.BestAdvanced
}

// simulate walks bars from the precondition index to the end, invoking
// the entry engine per bar and, on a fired signal, replaying forward
// until stop_loss or take_profit is touched (spec.md §4.3 steps 3-4).
func (s *Service) simulate(bars, btcBars []candle.Candle, instrument exchange.InstrumentInfo, mtf fib.MultiTimeframe, fundingRate float64) storage.TimeframeResult {
	rules := toInstrumentRules(instrument)
	closes := candle.Closes(bars)
	opens := make([]float64, len(bars))
	highs := make([]float64, len(bars))
	lows := make([]float64, len(bars))
	for i, b := range bars {
		opens[i], highs[i], lows[i] = b.Open, b.High, b.Low
	}
	volumes := candle.Volumes(bars)
	btcCloses := candle.Closes(btcBars)

	minCandles := s.cfg.MinCandles()
	var trades []trade

	for i := minCandles - 1; i < len(bars)-1; i++ {
		ectx := entryengine.Context{
			Rules:       rules,
			CoinCloses:  closes[:i+1],
			CoinOpens:   opens[:i+1],
			CoinHighs:   highs[:i+1],
			CoinLows:    lows[:i+1],
			CoinVolumes: volumes[:i+1],
			BTC1mCloses: btcCloses,
			FundingRate: fundingRate,
			Fib:         mtf,
		}
		sig := entryengine.Evaluate(ectx, s.cfg)
		if sig == nil {
			continue
		}

		exitIdx := simulateForward(bars, i+1, sig)
		if exitIdx < 0 {
			continue // ran off the end of history without a touch
		}
		netPnL := priceTrade(sig, bars[exitIdx].Close, s.cfg)
		trades = append(trades, trade{netPnL: netPnL, confidence: sig.Confidence, category: sig.Strategy.Category()})
	}

	return aggregate(trades)
}

// simulateForward walks bars[from:] looking for the first bar whose
// high/low touches stop_loss or take_profit, applying the pessimistic
// tie-break of spec.md §4.3 ("if stop_loss is touched in the bar,
// treat the stop as the exit; otherwise if take_profit is touched, use
// take_profit"). Returns exitIdx=-1 if history runs out untouched.
func simulateForward(bars []candle.Candle, from int, sig *entryengine.Signal) int {
	for i := from; i < len(bars); i++ {
		b := bars[i]
		if sig.Side == entryengine.Long {
			if b.Low <= sig.StopLoss {
				return i
			}
			if b.High >= sig.TakeProfit {
				return i
			}
		} else {
			if b.High >= sig.StopLoss {
				return i
			}
			if b.Low <= sig.TakeProfit {
				return i
			}
		}
	}
	return -1
}

// priceTrade prices one simulated trade's net_pnl (spec.md §8):
// gross_pnl = position_size*leverage*(exit-entry)/entry for LONG,
// sign-flipped for SHORT; net_pnl = gross_pnl - round-trip taker fee.
func priceTrade(sig *entryengine.Signal, exitPrice float64, cfg entryengine.Config) float64 {
	notionalMove := (exitPrice - sig.EntryPrice) / sig.EntryPrice
	if sig.Side == entryengine.Short {
		notionalMove = -notionalMove
	}
	grossPnL := cfg.PositionSize * float64(cfg.Leverage) * notionalMove
	fee := 2 * cfg.PositionSize * float64(cfg.Leverage) * cfg.TakerFee
	return grossPnL - fee
}

// aggregate implements spec.md §4.3 step 5's TimeframeResult rollup.
func aggregate(trades []trade) storage.TimeframeResult {
	if len(trades) == 0 {
		return storage.TimeframeResult{Status: storage.AnalysisNoTrades, BestStrategy: storage.BestNone}
	}

	var totalPnL, winSum, lossSum, confidenceSum float64
	var wins, losses int
	counts := map[string]int{}
	for _, t := range trades {
		totalPnL += t.netPnL
		confidenceSum += t.confidence
		counts[t.category]++
		if t.netPnL > 0 {
			wins++
			winSum += t.netPnL
		} else {
			losses++
			lossSum += t.netPnL
		}
	}

	var avgWin, avgLoss float64
	if wins > 0 {
		avgWin = winSum / float64(wins)
	}
	if losses > 0 {
		avgLoss = lossSum / float64(losses)
	}

	return storage.TimeframeResult{
		TotalTrades:   len(trades),
		WinRate:       float64(wins) / float64(len(trades)) * 100,
		TotalPnL:      totalPnL,
		AvgWin:        avgWin,
		AvgLoss:       avgLoss,
		ConfidenceAvg: confidenceSum / float64(len(trades)),
		BestStrategy:  modalCategory(counts),
		Status:        storage.AnalysisCompleted,
	}
}

// modalCategory returns the most frequent strategy category (spec.md
// §9: "ties are undefined in the source" — this picks the
// lexicographically-first category among ties for determinism).
func modalCategory(counts map[string]int) string {
	if len(counts) == 0 {
		return storage.BestNone
	}
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	best, bestN := keys[0], counts[keys[0]]
	for _, k := range keys[1:] {
		if counts[k] > bestN {
			best, bestN = k, counts[k]
		}
	}
	return best
}

// toInstrumentRules narrows an exchange.InstrumentInfo to the
// quantisation subset the entry engine and symbol snapping need.
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
