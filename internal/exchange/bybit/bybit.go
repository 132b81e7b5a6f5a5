// Package bybit adapts github.com/bybit-exchange/bybit.go.api (the
// teacher's own declared but previously-unwired exchange dependency)
// to the exchange.Client capability set (spec.md §6). The upstream
// client exposes its v5 REST surface as generic params-in /
// ServerResponse-out service calls rather than fully typed request
// structs; this adapter is the one place that shape is translated
// into the pipeline's domain types.
package bybit

import (
	"context"
	"encoding/json"
	"strconv"

	"PerpMesh/internal/config"
	"PerpMesh/internal/exchange"
	"PerpMesh/internal/logger"
	"PerpMesh/internal/xerr"

	bybitapi "github.com/bybit-exchange/bybit.go.api"
)

var log = logger.With("exchange.bybit")

// Client wraps the upstream HTTP client for the linear-perpetual
// category this system trades exclusively.
type Client struct {
	api *bybitapi.Client
}

// New builds a Client from credentials (spec.md §6: BYBIT_API_KEY,
// BYBIT_API_SECRET, BYBIT_TESTNET).
func New(cred config.Credentials) *Client {
	baseURL := bybitapi.MAINNET
	if cred.BybitTestnet {
		baseURL = bybitapi.TESTNET
	}
	api := bybitapi.NewBybitHttpClient(cred.BybitAPIKey, cred.BybitAPISecret,
		bybitapi.WithBaseURL(baseURL),
		bybitapi.WithTimeout(exchange.DefaultHTTPTimeout),
	)
	return &Client{api: api}
}

const categoryLinear = "linear"

func (c *Client) do(ctx context.Context, svc interface {
	Do(context.Context) (*bybitapi.ServerResponse, error)
}) (*bybitapi.ServerResponse, error) {
	resp, err := svc.Do(ctx)
	if err != nil {
		return nil, xerr.Wrap(xerr.TransientExchange, "bybit request: %v", err)
	}
	if resp.RetCode != 0 {
		return nil, xerr.Wrap(xerr.TransientExchange, "bybit retCode=%d retMsg=%s", resp.RetCode, resp.RetMsg)
	}
	return resp, nil
}

// ListLinearTickers implements exchange.Client.
func (c *Client) ListLinearTickers(ctx context.Context) ([]exchange.Ticker, error) {
	resp, err := c.do(ctx, bybitapi.NewMarketInfoService(c.api).
		GetMarketTickers(map[string]interface{}{"category": categoryLinear}))
	if err != nil {
		return nil, err
	}

	var parsed struct {
		List []struct {
			Symbol       string `json:"symbol"`
			LastPrice    string `json:"lastPrice"`
			Bid1Price    string `json:"bid1Price"`
			Ask1Price    string `json:"ask1Price"`
			Turnover24h  string `json:"turnover24h"`
			Price24hPcnt string `json:"price24hPcnt"`
			HighPrice24h string `json:"highPrice24h"`
			LowPrice24h  string `json:"lowPrice24h"`
			FundingRate  string `json:"fundingRate"`
			Volume24h    string `json:"volume24h"`
		} `json:"list"`
	}
	if err := decodeResult(resp, &parsed); err != nil {
		return nil, err
	}

	out := make([]exchange.Ticker, 0, len(parsed.List))
	for _, t := range parsed.List {
		out = append(out, exchange.Ticker{
			Symbol:       t.Symbol,
			LastPrice:    atof(t.LastPrice),
			BidPrice:     atof(t.Bid1Price),
			AskPrice:     atof(t.Ask1Price),
			Turnover24h:  atof(t.Turnover24h),
			PctChange24h: atof(t.Price24hPcnt) * 100,
			High24h:      atof(t.HighPrice24h),
			Low24h:       atof(t.LowPrice24h),
			FundingRate:  atof(t.FundingRate),
			Volume24h:    atof(t.Volume24h),
		})
	}
	return out, nil
}

// GetKlines implements exchange.Client.
func (c *Client) GetKlines(ctx context.Context, symbol string, intervalMinutes int, limit int, endTime int64) ([]exchange.Kline, error) {
	params := map[string]interface{}{
		"category": categoryLinear,
		"symbol":   symbol,
		"interval": klineInterval(intervalMinutes),
		"limit":    strconv.Itoa(limit),
	}
	if endTime > 0 {
		params["end"] = strconv.FormatInt(endTime, 10)
	}
	resp, err := c.do(ctx, bybitapi.NewMarketInfoService(c.api).GetKline(params))
	if err != nil {
		return nil, err
	}

	var parsed struct {
		List [][]string `json:"list"` // [startTime, open, high, low, close, volume, turnover], newest first
	}
	if err := decodeResult(resp, &parsed); err != nil {
		return nil, err
	}

	out := make([]exchange.Kline, 0, len(parsed.List))
	for _, row := range parsed.List {
		if len(row) < 7 {
			continue
		}
		ts, _ := strconv.ParseInt(row[0], 10, 64)
		out = append(out, exchange.Kline{
			OpenTime: ts,
			Open:     atof(row[1]),
			High:     atof(row[2]),
			Low:      atof(row[3]),
			Close:    atof(row[4]),
			Volume:   atof(row[5]),
			Turnover: atof(row[6]),
		})
	}
	return out, nil
}

func klineInterval(minutes int) string {
	if minutes == 1440 {
		return "D"
	}
	return strconv.Itoa(minutes)
}

// GetInstrumentInfo implements exchange.Client.
func (c *Client) GetInstrumentInfo(ctx context.Context, symbol string) (exchange.InstrumentInfo, error) {
	resp, err := c.do(ctx, bybitapi.NewMarketInfoService(c.api).
		GetInstrumentInfo(map[string]interface{}{"category": categoryLinear, "symbol": symbol}))
	if err != nil {
		return exchange.InstrumentInfo{}, err
	}

	var parsed struct {
		List []struct {
			Symbol     string `json:"symbol"`
			PriceFilter struct {
				TickSize string `json:"tickSize"`
				MinPrice string `json:"minPrice"`
			} `json:"priceFilter"`
			LotSizeFilter struct {
				QtyStep string `json:"qtyStep"`
				MinQty  string `json:"minOrderQty"`
				MaxQty  string `json:"maxOrderQty"`
			} `json:"lotSizeFilter"`
		} `json:"list"`
	}
	if err := decodeResult(resp, &parsed); err != nil {
		return exchange.InstrumentInfo{}, err
	}
	if len(parsed.List) == 0 {
		return exchange.InstrumentInfo{}, xerr.Wrap(xerr.DataGap, "no instrument info for %s", symbol)
	}
	inst := parsed.List[0]
	return exchange.InstrumentInfo{
		Symbol:        inst.Symbol,
		PriceTick:     atof(inst.PriceFilter.TickSize),
		MinPrice:      atof(inst.PriceFilter.MinPrice),
		QtyStep:       atof(inst.LotSizeFilter.QtyStep),
		MinQty:        atof(inst.LotSizeFilter.MinQty),
		MaxQty:        atof(inst.LotSizeFilter.MaxQty),
		PriceDecimals: decimalsOf(inst.PriceFilter.TickSize),
		QtyDecimals:   decimalsOf(inst.LotSizeFilter.QtyStep),
	}, nil
}

// GetWalletBalance implements exchange.Client.
func (c *Client) GetWalletBalance(ctx context.Context) (exchange.WalletBalance, error) {
	resp, err := c.do(ctx, bybitapi.NewAccountService(c.api).
		GetWalletBalance(map[string]interface{}{"accountType": "UNIFIED"}))
	if err != nil {
		return exchange.WalletBalance{}, err
	}
	var parsed struct {
		List []struct {
			Coin []struct {
				Coin              string `json:"coin"`
				AvailableToWithdraw string `json:"availableToWithdraw"`
			} `json:"coin"`
		} `json:"list"`
	}
	if err := decodeResult(resp, &parsed); err != nil {
		return exchange.WalletBalance{}, err
	}
	for _, acct := range parsed.List {
		for _, coin := range acct.Coin {
			if coin.Coin == "USDT" {
				return exchange.WalletBalance{AvailableBalance: atof(coin.AvailableToWithdraw)}, nil
			}
		}
	}
	return exchange.WalletBalance{}, nil
}

// GetOpenPositions implements exchange.Client.
func (c *Client) GetOpenPositions(ctx context.Context, symbol string) ([]exchange.Position, error) {
	params := map[string]interface{}{"category": categoryLinear}
	if symbol != "" {
		params["symbol"] = symbol
	} else {
		params["settleCoin"] = "USDT"
	}
	resp, err := c.do(ctx, bybitapi.NewPositionService(c.api).GetPositionInfo(params))
	if err != nil {
		return nil, err
	}
	var parsed struct {
		List []struct {
			Symbol   string `json:"symbol"`
			Side     string `json:"side"`
			Size     string `json:"size"`
			AvgPrice string `json:"avgPrice"`
			Leverage string `json:"leverage"`
		} `json:"list"`
	}
	if err := decodeResult(resp, &parsed); err != nil {
		return nil, err
	}
	out := make([]exchange.Position, 0, len(parsed.List))
	for _, p := range parsed.List {
		if atof(p.Size) == 0 {
			continue
		}
		lev, _ := strconv.Atoi(p.Leverage)
		out = append(out, exchange.Position{
			Symbol: p.Symbol, Side: p.Side,
			Size: atof(p.Size), AvgPrice: atof(p.AvgPrice), Leverage: lev,
		})
	}
	return out, nil
}

// GetOpenOrders implements exchange.Client.
func (c *Client) GetOpenOrders(ctx context.Context, symbol string) ([]exchange.Order, error) {
	resp, err := c.do(ctx, bybitapi.NewTradeService(c.api).
		GetOpenOrders(map[string]interface{}{"category": categoryLinear, "symbol": symbol}))
	if err != nil {
		return nil, err
	}
	var parsed struct {
		List []struct {
			Symbol  string `json:"symbol"`
			OrderID string `json:"orderId"`
			Side    string `json:"side"`
			Qty     string `json:"qty"`
			Price   string `json:"price"`
		} `json:"list"`
	}
	if err := decodeResult(resp, &parsed); err != nil {
		return nil, err
	}
	out := make([]exchange.Order, 0, len(parsed.List))
	for _, o := range parsed.List {
		out = append(out, exchange.Order{
			Symbol: o.Symbol, OrderID: o.OrderID, Side: o.Side,
			Qty: atof(o.Qty), Price: atof(o.Price),
		})
	}
	return out, nil
}

// SetLeverage implements exchange.Client. Bybit's "leverage not
// modified" error (retCode 110043) is treated as success per spec.md
// §4.6 step 5.
func (c *Client) SetLeverage(ctx context.Context, symbol string, leverage int) error {
	lev := strconv.Itoa(leverage)
	resp, err := bybitapi.NewPositionService(c.api).SetLeverage(map[string]interface{}{
		"category":     categoryLinear,
		"symbol":       symbol,
		"buyLeverage":  lev,
		"sellLeverage": lev,
	}).Do(ctx)
	if err != nil {
		return xerr.Wrap(xerr.TransientExchange, "set leverage: %v", err)
	}
	if resp.RetCode != 0 && resp.RetCode != 110043 {
		return xerr.Wrap(xerr.TransientExchange, "set leverage retCode=%d retMsg=%s", resp.RetCode, resp.RetMsg)
	}
	log.Debugf("leverage set symbol=%s leverage=%d retCode=%d", symbol, leverage, resp.RetCode)
	return nil
}

// PlaceMarketOrder implements exchange.Client.
func (c *Client) PlaceMarketOrder(ctx context.Context, req exchange.MarketOrderRequest) (exchange.OrderResult, error) {
	params := map[string]interface{}{
		"category":    categoryLinear,
		"symbol":      req.Symbol,
		"side":        string(req.Side),
		"orderType":   "Market",
		"qty":         strconv.FormatFloat(req.Qty, 'f', -1, 64),
		"stopLoss":    strconv.FormatFloat(req.StopLoss, 'f', -1, 64),
		"takeProfit":  strconv.FormatFloat(req.TakeProfit, 'f', -1, 64),
		"positionIdx": 0, // one-way mode
	}
	resp, err := bybitapi.NewTradeService(c.api).PlaceOrder(params).Do(ctx)
	if err != nil {
		return exchange.OrderResult{}, xerr.Wrap(xerr.TransientExchange, "place order: %v", err)
	}
	var parsed struct {
		OrderID string `json:"orderId"`
	}
	_ = decodeResult(resp, &parsed)
	return exchange.OrderResult{RetCode: resp.RetCode, RetMsg: resp.RetMsg, OrderID: parsed.OrderID}, nil
}

func decodeResult(resp *bybitapi.ServerResponse, out interface{}) error {
	raw, err := json.Marshal(resp.Result)
	if err != nil {
		return xerr.Wrap(xerr.DataGap, "re-marshal bybit result: %v", err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return xerr.Wrap(xerr.DataGap, "decode bybit result: %v", err)
	}
	return nil
}

func atof(s string) float64 {
	if s == "" {
		return 0
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return f
}

func decimalsOf(step string) int {
	for i, ch := range step {
		if ch == '.' {
			return len(step) - i - 1
		}
	}
	return 0
}
