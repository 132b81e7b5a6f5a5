package storage

import (
	"PerpMesh/internal/fib"
	"PerpMesh/internal/indicator"
)

// Status values shared by Results and Positions (spec.md §3).
const (
	StatusActive   = "active"
	StatusInactive = "inactive"

	PositionActive    = "active"
	PositionExecuting = "executing"
	PositionFilled    = "filled"
	PositionRejected  = "rejected"
	PositionExpired   = "expired"
)

// Best-strategy classification a TimeframeResult carries (spec.md §3).
const (
	BestBasic    = "BASIC"
	BestAdvanced = "ADVANCED"
	BestNone     = "NONE"
	BestError    = "ERROR"
)

// TimeframeResult analysis outcome status (spec.md §3).
const (
	AnalysisCompleted = "completed"
	AnalysisNoTrades  = "no_trades"
	AnalysisFailed    = "failed"
)

// TimeframeResult is one (symbol, timeframe) backtest scorecard
// (spec.md §3). Monetary/percentage fields are float64 in memory; only
// the sqlite row representation is fixed-precision text.
type TimeframeResult struct {
	TotalTrades   int
	WinRate       float64
	TotalPnL      float64
	AvgWin        float64
	AvgLoss       float64
	ConfidenceAvg float64
	BestStrategy  string
	AnalysisTime  int64
	Status        string
}

// ScanRecord is one Results-table row (spec.md §3).
type ScanRecord struct {
	Symbol          string
	ScanTimestamp   int64
	Status          string
	TTL             int64
	LastPrice       float64
	Turnover24h     float64
	PctChange24h    float64
	OptimalTimeframe string
	OptimalPnL      float64
	OptimalWinRate  float64
	Timeframes      map[string]TimeframeResult
}

// ScanHistory is one Scanner-cycle record (spec.md §3).
type ScanHistory struct {
	ScanID        string
	ScanTimestamp int64
	TTL           int64
	Selected      []string
	Removed       []string
}

// PositionProposal is one Positions-table row (spec.md §3).
type PositionProposal struct {
	Symbol           string
	SignalTimestamp  int64
	Status           string
	TTL              int64
	Strategy         string
	Timeframe        string
	Confidence       float64
	PositionType     string
	EntryPrice       float64
	StopLoss         float64
	TakeProfit       float64
	PositionSize     float64
	Leverage         int
	RSI              float64
	BBPosition       float64
	BBWidth          float64
	CoinTrend        indicator.Snapshot
	BTCTrend         indicator.Snapshot
	FundingSentiment indicator.FundingSentiment
	FundingRate      float64
	NearestSupport     *fib.Level
	NearestResistance  *fib.Level
	ExpectedProfit   float64
	ExpectedLoss     float64
	RiskRewardRatio  float64
	SignalID         string
	ScanID           string
	Version          int
	OrderID          string
	ExecutedAt       int64
}

// IsSimilarTo implements the Finder's double-book-prevention rule
// (spec.md §4.5: "|entry_price delta|/entry < 0.5%, same
// position_type, |confidence delta| <= 5").
func (p PositionProposal) IsSimilarTo(other PositionProposal) bool {
	if p.PositionType != other.PositionType {
		return false
	}
	if other.EntryPrice == 0 {
		return false
	}
	entryDeltaPct := absf(p.EntryPrice-other.EntryPrice) / other.EntryPrice
	if entryDeltaPct >= 0.005 {
		return false
	}
	return absf(p.Confidence-other.Confidence) <= 5
}

func absf(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
