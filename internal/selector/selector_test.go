package selector

import (
	"testing"

	"PerpMesh/internal/config"
	"PerpMesh/internal/storage"

	"github.com/stretchr/testify/assert"
)

func baseCfg() config.Trading {
	return config.Trading{MinWinRate: 45, MinPnL: 100, MinTrades: 20}
}

func TestEligible_AllThresholdsMet(t *testing.T) {
	r := storage.ActiveResult{OptimalWinRate: 45, OptimalPnL: 100, Timeframe: storage.TimeframeResult{TotalTrades: 20}}
	assert.True(t, eligible(r, baseCfg()))
}

func TestEligible_ExactlyAtWinRateBoundaryPasses(t *testing.T) {
	r := storage.ActiveResult{OptimalWinRate: 45, OptimalPnL: 150, Timeframe: storage.TimeframeResult{TotalTrades: 30}}
	assert.True(t, eligible(r, baseCfg()))
}

func TestEligible_BelowAnyThresholdFails(t *testing.T) {
	cfg := baseCfg()
	assert.False(t, eligible(storage.ActiveResult{OptimalWinRate: 44.9, OptimalPnL: 200, Timeframe: storage.TimeframeResult{TotalTrades: 30}}, cfg))
	assert.False(t, eligible(storage.ActiveResult{OptimalWinRate: 50, OptimalPnL: 99, Timeframe: storage.TimeframeResult{TotalTrades: 30}}, cfg))
	assert.False(t, eligible(storage.ActiveResult{OptimalWinRate: 50, OptimalPnL: 200, Timeframe: storage.TimeframeResult{TotalTrades: 19}}, cfg))
}

func TestScanIDFromTimestamp_Deterministic(t *testing.T) {
	assert.Equal(t, scanIDFromTimestamp(1_700_000_000), scanIDFromTimestamp(1_700_000_000))
	assert.NotEqual(t, scanIDFromTimestamp(1_700_000_000), scanIDFromTimestamp(1_700_000_001))
}
