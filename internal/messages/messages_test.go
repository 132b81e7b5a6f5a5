package messages

import (
	"errors"
	"testing"

	"PerpMesh/internal/xerr"

	"github.com/stretchr/testify/assert"
)

func TestBacktestTask_Validate(t *testing.T) {
	assert.NoError(t, BacktestTask{ScanID: "s1", Symbol: "BTCUSDT", Timeframe: "5"}.Validate())
	err := BacktestTask{Symbol: "BTCUSDT"}.Validate()
	assert.True(t, errors.Is(err, xerr.ContractViolation))
}

func TestTradingSignal_Validate(t *testing.T) {
	assert.NoError(t, TradingSignal{Symbol: "BTCUSDT", Timeframe: "1m", ScanID: "s1"}.Validate())
	assert.Error(t, TradingSignal{Symbol: "BTCUSDT"}.Validate())
}

func TestEntrySignal_Validate(t *testing.T) {
	assert.NoError(t, EntrySignal{Symbol: "BTCUSDT", Direction: "LONG"}.Validate())
	assert.Error(t, EntrySignal{Symbol: "BTCUSDT", Direction: "SIDEWAYS"}.Validate())
}
