package discovery

import (
	"context"
	"testing"
	"time"

	"PerpMesh/internal/config"
	"PerpMesh/internal/exchange"
	"PerpMesh/internal/kv"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClient stubs exchange.Client with a fixed ticker set; only
// ListLinearTickers is exercised by Discovery.
type fakeClient struct {
	tickers []exchange.Ticker
}

func (f *fakeClient) ListLinearTickers(ctx context.Context) ([]exchange.Ticker, error) {
	return f.tickers, nil
}
func (f *fakeClient) GetKlines(ctx context.Context, symbol string, intervalMinutes, limit int, endTime int64) ([]exchange.Kline, error) {
	return nil, nil
}
func (f *fakeClient) GetInstrumentInfo(ctx context.Context, symbol string) (exchange.InstrumentInfo, error) {
	return exchange.InstrumentInfo{}, nil
}
func (f *fakeClient) GetWalletBalance(ctx context.Context) (exchange.WalletBalance, error) {
	return exchange.WalletBalance{}, nil
}
func (f *fakeClient) GetOpenPositions(ctx context.Context, symbol string) ([]exchange.Position, error) {
	return nil, nil
}
func (f *fakeClient) GetOpenOrders(ctx context.Context, symbol string) ([]exchange.Order, error) {
	return nil, nil
}
func (f *fakeClient) SetLeverage(ctx context.Context, symbol string, leverage int) error { return nil }
func (f *fakeClient) PlaceMarketOrder(ctx context.Context, req exchange.MarketOrderRequest) (exchange.OrderResult, error) {
	return exchange.OrderResult{}, nil
}

func newTestStore(t *testing.T) *kv.Store {
	t.Helper()
	s := kv.New(config.LoadKV())
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if _, _, err := s.LatestDiscovery(ctx); err != nil {
		t.Skipf("redis not reachable: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestRunCycle_FiltersRanksAndPublishes(t *testing.T) {
	store := newTestStore(t)
	client := &fakeClient{tickers: []exchange.Ticker{
		{Symbol: "BTCUSDT", Turnover24h: 5_000_000, PctChange24h: 3.0},
		{Symbol: "ETHUSDT", Turnover24h: 10_000_000, PctChange24h: 1.0}, // below volatility floor
		{Symbol: "JUNKUSDC", Turnover24h: 5_000_000, PctChange24h: 5.0}, // stablecoin-quoted
		{Symbol: "DOGEUPUSDT", Turnover24h: 5_000_000, PctChange24h: 5.0}, // leveraged token
		{Symbol: "SOLUSDT", Turnover24h: 8_000_000, PctChange24h: 4.0},
	}}
	cfg := config.Trading{MinVolume24h: 1_000_000, MinVolatilityPct: 2.0, DiscoveryInterval: time.Hour}
	svc := New(client, store, cfg)

	require.NoError(t, svc.runCycle(context.Background()))

	got, ok, err := store.LatestDiscovery(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	assert.ElementsMatch(t, []string{"BTCUSDT", "SOLUSDT"}, got.Symbols)
	// Ranked by score descending: SOLUSDT (4.0*8e6/1e6=32) before BTCUSDT (3.0*5e6/1e6=15).
	assert.Equal(t, "SOLUSDT", got.Symbols[0])
}

func TestRunCycle_CapsAtTopN(t *testing.T) {
	store := newTestStore(t)
	var tickers []exchange.Ticker
	for i := 0; i < 90; i++ {
		tickers = append(tickers, exchange.Ticker{
			Symbol: string(rune('A'+i%26)) + "SYM" + string(rune(i)) + "USDT",
			Turnover24h: 2_000_000, PctChange24h: 3.0,
		})
	}
	client := &fakeClient{tickers: tickers}
	cfg := config.Trading{MinVolume24h: 1_000_000, MinVolatilityPct: 2.0, DiscoveryInterval: time.Hour}
	svc := New(client, store, cfg)

	require.NoError(t, svc.runCycle(context.Background()))

	got, _, err := store.LatestDiscovery(context.Background())
	require.NoError(t, err)
	assert.LessOrEqual(t, len(got.Symbols), 75)
}
