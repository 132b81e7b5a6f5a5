package finder

import (
	"testing"

	"PerpMesh/internal/candle"
	"PerpMesh/internal/config"
	"PerpMesh/internal/entryengine"
	"PerpMesh/internal/messages"
	"PerpMesh/internal/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDB(t *testing.T) *storage.DB {
	t.Helper()
	d, err := storage.Open(config.Persistence{DSN: "file::memory:?cache=shared"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = d.Close() })
	return d
}

func TestLookbackCandles_TieredByTimeframe(t *testing.T) {
	assert.Equal(t, maxLookbackCandles, lookbackCandles(candle.TF5))  // 4d of 5m bars (1152) exceeds 1000
	assert.Equal(t, maxLookbackCandles, lookbackCandles(candle.TF15)) // 11d of 15m bars (1056) exceeds 1000
	assert.Equal(t, 21*1440/60, lookbackCandles(candle.TF60))
	assert.Equal(t, maxLookbackCandles, lookbackCandles(candle.TF1)) // 4d of 1m bars exceeds 1000
}

func TestLookbackCandles_DailyFallsIntoOtherwiseTier(t *testing.T) {
	assert.Equal(t, 42, lookbackCandles(candle.TFDay)) // 42d of daily bars
}

func proposalFixture(symbol string, entry, confidence float64) storage.PositionProposal {
	return storage.PositionProposal{
		Symbol:          symbol,
		SignalTimestamp: 1_700_000_000,
		PositionType:    "LONG",
		EntryPrice:      entry,
		Confidence:      confidence,
	}
}

func TestDedupAgainstRecent_NoRecordPasses(t *testing.T) {
	s := &Service{db: newTestDB(t)}
	drop, p, err := s.dedupAgainstRecent("NORECUSDT", proposalFixture("NORECUSDT", 100, 80))
	require.NoError(t, err)
	assert.Empty(t, drop)
	assert.Equal(t, int64(1_700_000_000), p.SignalTimestamp)
}

func TestDedupAgainstRecent_ExecutingAlwaysDrops(t *testing.T) {
	db := newTestDB(t)
	const sym = "EXECUSDT"
	existing := proposalFixture(sym, 100, 80)
	require.NoError(t, db.WriteProposal(existing))
	require.NoError(t, db.SetStatus(sym, existing.SignalTimestamp, storage.PositionExecuting))

	s := &Service{db: db}
	fresh := proposalFixture(sym, 100, 80)
	fresh.SignalTimestamp = 1_700_000_100
	drop, _, err := s.dedupAgainstRecent(sym, fresh)
	require.NoError(t, err)
	assert.Equal(t, "recent position already executing", drop)
}

func TestDedupAgainstRecent_SimilarActiveDrops(t *testing.T) {
	db := newTestDB(t)
	const sym = "SIMUSDT"
	existing := proposalFixture(sym, 100, 80)
	require.NoError(t, db.WriteProposal(existing))

	s := &Service{db: db}
	fresh := proposalFixture(sym, 100.2, 82) // within 0.5% entry, within 5 confidence
	fresh.SignalTimestamp = 1_700_000_100
	drop, _, err := s.dedupAgainstRecent(sym, fresh)
	require.NoError(t, err)
	assert.Equal(t, "similar to recent active position", drop)
}

func TestDedupAgainstRecent_DissimilarActiveOverwritesSameRow(t *testing.T) {
	db := newTestDB(t)
	const sym = "DISSIMUSDT"
	existing := proposalFixture(sym, 100, 80)
	require.NoError(t, db.WriteProposal(existing))

	s := &Service{db: db}
	fresh := proposalFixture(sym, 120, 80) // 20% away: not similar
	fresh.SignalTimestamp = 1_700_000_100
	drop, written, err := s.dedupAgainstRecent(sym, fresh)
	require.NoError(t, err)
	assert.Empty(t, drop)
	assert.Equal(t, existing.SignalTimestamp, written.SignalTimestamp)

	require.NoError(t, db.WriteProposal(written))
	got, ok, err := db.RecentPosition(sym, 1_700_000_100)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, existing.SignalTimestamp, got.SignalTimestamp)
	assert.Equal(t, 120.0, got.EntryPrice)
}

func TestToProposal_MapsSignalFields(t *testing.T) {
	signal := messages.TradingSignal{Symbol: "AAAUSDT", Timeframe: "5", ScanID: "scan-1"}
	sig := &entryengine.Signal{
		Side: entryengine.Long, Strategy: entryengine.BasicLong, Confidence: 61,
		EntryPrice: 100, StopLoss: 99, TakeProfit: 102,
		ExpectedProfit: 20, ExpectedLoss: 10,
	}
	cfg := entryengine.Config{PositionSize: 50, Leverage: 5}

	p := toProposal(signal, sig, cfg)
	assert.Equal(t, "AAAUSDT", p.Symbol)
	assert.Equal(t, storage.PositionActive, p.Status)
	assert.Equal(t, "LONG", p.PositionType)
	assert.Equal(t, 50.0, p.PositionSize)
	assert.Equal(t, 5, p.Leverage)
	assert.Equal(t, 2.0, p.RiskRewardRatio)
	assert.Equal(t, "scan-1", p.ScanID)
	assert.NotEmpty(t, p.SignalID)
}

func TestToProposal_ZeroExpectedLossYieldsZeroRiskReward(t *testing.T) {
	signal := messages.TradingSignal{Symbol: "AAAUSDT", Timeframe: "5", ScanID: "scan-1"}
	sig := &entryengine.Signal{ExpectedProfit: 20, ExpectedLoss: 0}
	p := toProposal(signal, sig, entryengine.Config{})
	assert.Equal(t, 0.0, p.RiskRewardRatio)
}
