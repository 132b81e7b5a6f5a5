// Package entryengine is the shared multi-factor signal kernel of
// spec.md §4.2, used bar-by-bar by both the Backtest-Analyzer (replay
// over history) and Position-Finder (current bar only). It returns a
// polymorphic "signal or none" modeled as a nilable *Signal rather
// than a boolean-plus-struct pair, per spec.md §9.
package entryengine

import (
	"PerpMesh/internal/config"
	"PerpMesh/internal/fib"
	"PerpMesh/internal/indicator"
	"PerpMesh/internal/symbol"
)

// Side is the position direction a Signal proposes.
type Side string

const (
	Long  Side = "LONG"
	Short Side = "SHORT"
)

// StrategyName identifies which of the five strategies (spec.md §4.2
// A-E) produced a Signal.
type StrategyName string

const (
	DowntrendShort StrategyName = "DOWNTREND_SHORT"
	UptrendLong    StrategyName = "UPTREND_LONG"
	SupportBounce  StrategyName = "SUPPORT_BOUNCE"
	BasicLong      StrategyName = "BASIC_LONG"
	BasicShort     StrategyName = "BASIC_SHORT"
)

// Category collapses a StrategyName into the BASIC/ADVANCED/NONE tag
// that TimeframeResult.best_strategy stores (spec.md §3).
func (s StrategyName) Category() string {
	switch s {
	case DowntrendShort, UptrendLong, SupportBounce:
		return "ADVANCED"
	case BasicLong, BasicShort:
		return "BASIC"
	default:
		return "NONE"
	}
}

// Gate returns the confidence gate a strategy must clear to win
// (spec.md §4.2: "The gates are 80/80/85 for the three advanced
// strategies and 60 for the basic fallback").
func (s StrategyName) Gate() float64 {
	switch s {
	case DowntrendShort, UptrendLong:
		return 80
	case SupportBounce:
		return 85
	default:
		return 60
	}
}

// Signal is the engine's output for one bar: present/absent plus,
// when present, every supporting value the Analyzer/Finder need to
// build a TimeframeResult row or a PositionProposal without
// recomputing trend/funding/fib (spec.md §9: "pass them explicitly
// rather than re-fetching... a single context struct").
type Signal struct {
	Side       Side
	Strategy   StrategyName
	Confidence float64

	EntryPrice float64
	StopLoss   float64
	TakeProfit float64

	ExpectedProfit float64
	ExpectedLoss   float64
	Fees           float64
	NetProfit      float64

	RSI       float64
	BBWidth   float64
	BBPosition float64

	CoinTrend indicator.Snapshot
	BTCTrend  indicator.Snapshot
	Funding   indicator.FundingSentiment
	FundingRate float64

	NearestSupport            *fib.Level
	NearestSupportDistPct     float64
	NearestResistance         *fib.Level
	NearestResistanceDistPct  float64
}

// Context is everything the engine needs for one bar, assembled once
// per (symbol, timeframe) invocation by the caller (spec.md §4.2
// "Input"). The Coin* series share an index: element len-1 is the
// current bar, len-2 the prior bar (needed by the hammer/bounce candle
// checks in strategies D/E).
type Context struct {
	Rules       symbol.InstrumentRules
	CoinCloses  []float64
	CoinOpens   []float64
	CoinHighs   []float64
	CoinLows    []float64
	CoinVolumes []float64

	BTC1mCloses []float64 // last >=60 1-minute BTC closes, for BTC trend

	FundingRate float64

	Fib fib.MultiTimeframe
}

// Config holds the engine's tunable defaults (spec.md §4.2 "Defaults").
type Config struct {
	BBPeriod      int
	BBK           float64
	RSIPeriod     int
	StopLossPct   float64
	TakeProfitPct float64
	TakerFee      float64
	Leverage      int
	PositionSize  float64
	MinProfitTarget float64
	FibTolerance  float64
}

// DefaultConfig returns spec.md §4.2's defaults.
func DefaultConfig() Config {
	return Config{
		BBPeriod:        indicator.DefaultBBPeriod,
		BBK:             indicator.DefaultBBK,
		RSIPeriod:       14,
		StopLossPct:     0.01,
		TakeProfitPct:   0.02,
		TakerFee:        0.0006,
		Leverage:        10,
		PositionSize:    100,
		MinProfitTarget: 7,
		FibTolerance:    0.02,
	}
}

// ConfigFromTrading narrows the pipeline-wide Trading knobs (shared
// across Analyzer, Finder, Selector, Executor) down to the engine's
// own tunables, starting from DefaultConfig for the fields Trading
// doesn't expose (BBPeriod, BBK, RSIPeriod, FibTolerance).
func ConfigFromTrading(t config.Trading) Config {
	cfg := DefaultConfig()
	cfg.StopLossPct = t.StopLossPct
	cfg.TakeProfitPct = t.TakeProfitPct
	cfg.TakerFee = t.TakerFee
	cfg.Leverage = t.Leverage
	cfg.PositionSize = t.PositionSize
	cfg.MinProfitTarget = t.MinProfitTarget
	return cfg
}

// MinCandles is the precondition of spec.md §4.2 ("at least BB_PERIOD
// + 10 candles") and §8 ("BB_PERIOD + 9: engine must return None with
// no indicator computation").
func (c Config) MinCandles() int {
	return c.BBPeriod + 10
}
