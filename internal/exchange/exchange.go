// Package exchange defines the venue-agnostic capability set the core
// pipeline depends on (spec.md §6: "Exchange-client capability set the
// core depends on (black-box)"). The concrete venue integration lives
// in the bybit subpackage; everything upstream of it only ever talks
// to this interface.
package exchange

import (
	"context"
	"time"
)

// Ticker is one linear-perpetual's market snapshot.
type Ticker struct {
	Symbol       string
	LastPrice    float64
	BidPrice     float64
	AskPrice     float64
	Turnover24h  float64
	PctChange24h float64
	High24h      float64
	Low24h       float64
	FundingRate  float64
	Volume24h    float64
}

// InstrumentInfo is the quantisation contract for one symbol.
type InstrumentInfo struct {
	Symbol        string
	PriceTick     float64
	MinPrice      float64
	QtyStep       float64
	MinQty        float64
	MaxQty        float64
	PriceDecimals int
	QtyDecimals   int
}

// Kline is one OHLCV bar as returned by the venue.
type Kline struct {
	OpenTime int64
	Open, High, Low, Close, Volume, Turnover float64
}

// Position is an open exchange position.
type Position struct {
	Symbol   string
	Side     string // Buy or Sell
	Size     float64
	AvgPrice float64
	Leverage int
}

// Order is an open (unfilled) exchange order.
type Order struct {
	Symbol   string
	OrderID  string
	Side     string
	Qty      float64
	Price    float64
}

// WalletBalance is the unified-account snapshot Executor needs to size
// positions (spec.md §4.6 step 4).
type WalletBalance struct {
	AvailableBalance float64
}

// OrderSide mirrors the venue's Buy/Sell enum.
type OrderSide string

const (
	Buy  OrderSide = "Buy"
	Sell OrderSide = "Sell"
)

// MarketOrderRequest is a bracket market order (spec.md §4.6 step 7).
type MarketOrderRequest struct {
	Symbol     string
	Side       OrderSide
	Qty        float64
	StopLoss   float64
	TakeProfit float64
}

// OrderResult is the venue's ack for a placed order.
type OrderResult struct {
	RetCode int
	RetMsg  string
	OrderID string
}

// Client is the minimum surface spec.md §6 names; any venue adapter
// satisfies it. Every method is context-bound since all exchange I/O
// is potentially blocking (spec.md §5).
type Client interface {
	ListLinearTickers(ctx context.Context) ([]Ticker, error)
	GetKlines(ctx context.Context, symbol string, intervalMinutes int, limit int, endTime int64) ([]Kline, error)
	GetInstrumentInfo(ctx context.Context, symbol string) (InstrumentInfo, error)
	GetWalletBalance(ctx context.Context) (WalletBalance, error)
	GetOpenPositions(ctx context.Context, symbol string) ([]Position, error)
	GetOpenOrders(ctx context.Context, symbol string) ([]Order, error)
	SetLeverage(ctx context.Context, symbol string, leverage int) error
	PlaceMarketOrder(ctx context.Context, req MarketOrderRequest) (OrderResult, error)
}

// DefaultHTTPTimeout is the bounded client timeout spec.md §5 names.
const DefaultHTTPTimeout = 10 * time.Second
