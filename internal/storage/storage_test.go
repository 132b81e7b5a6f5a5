package storage

import (
	"testing"

	"PerpMesh/internal/config"
	"PerpMesh/internal/fib"
	"PerpMesh/internal/indicator"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	d, err := Open(config.Persistence{DSN: "file::memory:?cache=shared"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = d.Close() })
	return d
}

func TestUpsertResult_InsertsThenMergesWithinHour(t *testing.T) {
	d := newTestDB(t)
	ticker := TickerSnapshot{LastPrice: 100, Turnover24h: 5_000_000, PctChange24h: 3.2}

	require.NoError(t, d.UpsertResult("BTCUSDT", 1_700_000_000, ticker, "5", TimeframeResult{
		TotalTrades: 10, WinRate: 50, TotalPnL: 80, BestStrategy: BestAdvanced, Status: AnalysisCompleted,
	}))
	require.NoError(t, d.UpsertResult("BTCUSDT", 1_700_000_900, ticker, "15", TimeframeResult{
		TotalTrades: 22, WinRate: 60, TotalPnL: 150, BestStrategy: BestAdvanced, Status: AnalysisCompleted,
	}))

	active, err := d.ActiveResults()
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "15", active[0].OptimalTimeframe)
	assert.Equal(t, 150.0, active[0].OptimalPnL)
	assert.Equal(t, 22, active[0].Timeframe.TotalTrades)
}

func TestDeleteResultsNotIn(t *testing.T) {
	d := newTestDB(t)
	ticker := TickerSnapshot{LastPrice: 1}
	require.NoError(t, d.UpsertResult("AAAUSDT", 1000, ticker, "5", TimeframeResult{TotalPnL: 1}))
	require.NoError(t, d.UpsertResult("BBBUSDT", 1000, ticker, "5", TimeframeResult{TotalPnL: 1}))

	n, err := d.DeleteResultsNotIn([]string{"AAAUSDT"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	active, err := d.ActiveResults()
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "AAAUSDT", active[0].Symbol)
}

func TestWriteProposalAndRecentPosition(t *testing.T) {
	d := newTestDB(t)
	support := fib.Level{Timeframe: "15", Ratio: 0.618, Price: 95}
	p := PositionProposal{
		Symbol: "ETHUSDT", SignalTimestamp: 1_700_000_000, Strategy: "DowntrendShort",
		Timeframe: "5", Confidence: 82, PositionType: "SHORT",
		EntryPrice: 100, StopLoss: 101, TakeProfit: 98, PositionSize: 100, Leverage: 10,
		CoinTrend: indicator.Snapshot{Direction: indicator.Downtrend, Strength: 70},
		NearestSupport: &support,
		ExpectedProfit: 20, ExpectedLoss: 10, SignalID: "sig-1", ScanID: "scan-1",
	}
	require.NoError(t, d.WriteProposal(p))

	got, ok, err := d.RecentPosition("ETHUSDT", 1_700_000_100)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 100.0, got.EntryPrice)
	assert.Equal(t, "SHORT", got.PositionType)
	require.NotNil(t, got.NearestSupport)
	assert.Equal(t, 95.0, got.NearestSupport.Price)

	active, err := d.ActivePositions()
	require.NoError(t, err)
	require.Len(t, active, 1)
}

func TestTryExecute_ConditionalTransition(t *testing.T) {
	d := newTestDB(t)
	p := PositionProposal{Symbol: "SOLUSDT", SignalTimestamp: 1_700_000_000, PositionType: "LONG"}
	require.NoError(t, d.WriteProposal(p))

	ok, err := d.TryExecute("SOLUSDT", 1_700_000_000, "order-1", 1_700_000_050)
	require.NoError(t, err)
	assert.True(t, ok)

	// Second attempt loses the race: status is no longer active.
	ok, err = d.TryExecute("SOLUSDT", 1_700_000_000, "order-2", 1_700_000_051)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSweepExpiredPositions(t *testing.T) {
	d := newTestDB(t)
	p := PositionProposal{Symbol: "DOGEUSDT", SignalTimestamp: 1_700_000_000, PositionType: "LONG"}
	require.NoError(t, d.WriteProposal(p))

	n, err := d.SweepExpiredPositions(1_700_000_000 + 301)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	active, err := d.ActivePositions()
	require.NoError(t, err)
	assert.Empty(t, active)
}

func TestIsSimilarTo(t *testing.T) {
	a := PositionProposal{PositionType: "LONG", EntryPrice: 100, Confidence: 80}
	similar := PositionProposal{PositionType: "LONG", EntryPrice: 100.3, Confidence: 83}
	different := PositionProposal{PositionType: "LONG", EntryPrice: 103, Confidence: 83}

	assert.True(t, similar.IsSimilarTo(a))
	assert.False(t, different.IsSimilarTo(a))
}

func TestRecordScanAndPreviousScan(t *testing.T) {
	d := newTestDB(t)
	require.NoError(t, d.RecordScan(ScanHistory{ScanID: "s1", ScanTimestamp: 1000, Selected: []string{"BTCUSDT"}}))
	require.NoError(t, d.RecordScan(ScanHistory{ScanID: "s2", ScanTimestamp: 2000, Selected: []string{"BTCUSDT", "ETHUSDT"}, Removed: nil}))

	prev, ok, err := d.PreviousScan(2000)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "s1", prev.ScanID)
	assert.Equal(t, []string{"BTCUSDT"}, prev.Selected)
}
