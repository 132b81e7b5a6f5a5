// Package messages defines the explicit, versioned message structs
// carried on each broker queue (spec.md §6, §9: "Dynamic dict-based
// messages -> explicit, versioned message structs per queue. Treat
// unknown fields as forward-compatible extensions; required fields
// validated at the consumer boundary").
package messages

import "PerpMesh/internal/xerr"

// SchemaVersion is bumped whenever a required field is added or
// removed from any message in this package.
const SchemaVersion = 1

// Queue names (spec.md §6), shared by every cmd/* main that wires a
// producer or consumer so the literal only appears once.
const (
	QueueBacktestTasks  = "backtest-tasks"
	QueueTradingSignals = "trading-signals"
	QueueEntrySignal    = "entry-signal"
)

// BacktestTask is published to the `backtest-tasks` queue by Scanner,
// consumed by Analyzers (spec.md §6).
type BacktestTask struct {
	Version        int     `json:"version"`
	ScanID         string  `json:"scan_id"`
	Symbol         string  `json:"symbol"`
	Timeframe      string  `json:"timeframe"` // one of 1,3,5,15,30
	Volatility24h  float64 `json:"volatility_24h"`
	Turnover       float64 `json:"turnover"`
	Price          float64 `json:"price"`
	PriceChange24h float64 `json:"price_change_24h"`
	Timestamp      int64   `json:"timestamp"`
}

// Validate checks the required fields a consumer depends on.
func (m BacktestTask) Validate() error {
	if m.ScanID == "" || m.Symbol == "" || m.Timeframe == "" {
		return xerr.Wrap(xerr.ContractViolation, "backtest task missing required field: %+v", m)
	}
	return nil
}

// TradingSignal is published to the `trading-signals` queue by
// Selector, consumed by Finders (spec.md §6).
type TradingSignal struct {
	Version       int     `json:"version"`
	SelectorID    string  `json:"selector_id"`
	Symbol        string  `json:"symbol"`
	Timeframe     string  `json:"timeframe"` // Results label, e.g. "5"
	Strategy      string  `json:"strategy"`
	WinRate       float64 `json:"win_rate"`
	TotalPnL      float64 `json:"total_pnl"`
	ConfidenceAvg float64 `json:"confidence_avg"`
	ScanID        string  `json:"scan_id"`
	Volatility24h float64 `json:"volatility_24h"`
	Price         float64 `json:"price"`
	Timestamp     int64   `json:"timestamp"`
}

func (m TradingSignal) Validate() error {
	if m.Symbol == "" || m.Timeframe == "" || m.ScanID == "" {
		return xerr.Wrap(xerr.ContractViolation, "trading signal missing required field: %+v", m)
	}
	return nil
}

// EntrySignal is the optional live-scanner path message on
// `entry-signal`/`opportunity-queue` (spec.md §6): published by
// internal/broker/wsrelay (the live Scanner v2 variant); no service in
// this module consumes it. Not part of the minimum pipeline.
type EntrySignal struct {
	Version    int     `json:"version"`
	Symbol     string  `json:"symbol"`
	Direction  string  `json:"direction"` // LONG or SHORT
	Confidence float64 `json:"confidence"`
	Timestamp  int64   `json:"timestamp"`
}

func (m EntrySignal) Validate() error {
	if m.Symbol == "" || (m.Direction != "LONG" && m.Direction != "SHORT") {
		return xerr.Wrap(xerr.ContractViolation, "entry signal missing required field: %+v", m)
	}
	return nil
}
