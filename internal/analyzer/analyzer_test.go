package analyzer

import (
	"testing"

	"PerpMesh/internal/candle"
	"PerpMesh/internal/entryengine"
	"PerpMesh/internal/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSimulateForward_LongStopTakesPriorityOverTakeInSameBar(t *testing.T) {
	sig := &entryengine.Signal{Side: entryengine.Long, StopLoss: 99, TakeProfit: 101}
	bars := []candle.Candle{
		{High: 100.5, Low: 99.5}, // neither touched
		{High: 101.5, Low: 98.5}, // both touched -> pessimistic stop wins
	}
	assert.Equal(t, 1, simulateForward(bars, 0, sig))
}

func TestSimulateForward_ShortTakeProfitWins(t *testing.T) {
	sig := &entryengine.Signal{Side: entryengine.Short, StopLoss: 101, TakeProfit: 99}
	bars := []candle.Candle{
		{High: 99.5, Low: 98.8}, // take touched, stop not
	}
	assert.Equal(t, 0, simulateForward(bars, 0, sig))
}

func TestSimulateForward_NoTouchRunsOffEnd(t *testing.T) {
	sig := &entryengine.Signal{Side: entryengine.Long, StopLoss: 90, TakeProfit: 110}
	bars := []candle.Candle{{High: 100.1, Low: 99.9}}
	assert.Equal(t, -1, simulateForward(bars, 0, sig))
}

func TestPriceTrade_LongAndShortPnL(t *testing.T) {
	cfg := entryengine.Config{PositionSize: 100, Leverage: 10, TakerFee: 0.0006}
	longSig := &entryengine.Signal{Side: entryengine.Long, EntryPrice: 100}
	gross := 100.0 * 10 * (102.0 - 100) / 100 // 20
	fee := 2 * 100.0 * 10 * 0.0006            // 1.2
	assert.InDelta(t, gross-fee, priceTrade(longSig, 102, cfg), 1e-9)

	shortSig := &entryengine.Signal{Side: entryengine.Short, EntryPrice: 100}
	grossShort := 100.0 * 10 * (100.0 - 98) / 100 // 20
	assert.InDelta(t, grossShort-fee, priceTrade(shortSig, 98, cfg), 1e-9)
}

func TestAggregate_EmptyYieldsNoTrades(t *testing.T) {
	result := aggregate(nil)
	assert.Equal(t, storage.AnalysisNoTrades, result.Status)
	assert.Equal(t, storage.BestNone, result.BestStrategy)
}

func TestAggregate_WinRateAndModalStrategy(t *testing.T) {
	trades := []trade{
		{netPnL: 20, confidence: 80, category: storage.BestAdvanced},
		{netPnL: -10, confidence: 65, category: storage.BestAdvanced},
		{netPnL: 15, confidence: 70, category: storage.BestBasic},
	}
	result := aggregate(trades)
	require.Equal(t, 3, result.TotalTrades)
	assert.InDelta(t, 200.0/3, result.WinRate, 1e-9)
	assert.InDelta(t, 25, result.TotalPnL, 1e-9)
	assert.Equal(t, storage.BestAdvanced, result.BestStrategy)
	assert.Equal(t, storage.AnalysisCompleted, result.Status)
}

func TestModalCategory_TieBreaksLexicographically(t *testing.T) {
	counts := map[string]int{storage.BestBasic: 2, storage.BestAdvanced: 2}
	assert.Equal(t, storage.BestAdvanced, modalCategory(counts))
}
