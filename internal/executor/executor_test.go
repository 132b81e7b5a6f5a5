package executor

import (
	"testing"

	"PerpMesh/internal/config"
	"PerpMesh/internal/exchange"
	"PerpMesh/internal/storage"
	"PerpMesh/internal/symbol"

	"github.com/stretchr/testify/assert"
)

func baseCfg() config.Trading {
	return config.Trading{MinConfidence: 60, PriceTolerance: 0.005}
}

func baseProposal() storage.PositionProposal {
	return storage.PositionProposal{
		Symbol: "AAAUSDT", PositionType: "LONG", Confidence: 70,
		EntryPrice: 100, StopLoss: 99, TakeProfit: 102,
		PositionSize: 100, Leverage: 10,
	}
}

func baseTicker() exchange.Ticker {
	return exchange.Ticker{Symbol: "AAAUSDT", LastPrice: 100, BidPrice: 99.95, AskPrice: 100.0, Volume24h: 5000}
}

func TestPassesEntryGates_AllConditionsMet(t *testing.T) {
	_, ok := passesEntryGates(baseProposal(), baseTicker(), baseCfg())
	assert.True(t, ok)
}

func TestPassesEntryGates_LowConfidenceFails(t *testing.T) {
	p := baseProposal()
	p.Confidence = 59
	_, ok := passesEntryGates(p, baseTicker(), baseCfg())
	assert.False(t, ok)
}

func TestPassesEntryGates_PriceOutsideToleranceFails(t *testing.T) {
	ticker := baseTicker()
	ticker.LastPrice = 101 // 1% away, tolerance is 0.5%
	_, ok := passesEntryGates(baseProposal(), ticker, baseCfg())
	assert.False(t, ok)
}

func TestPassesEntryGates_ChasingLongFails(t *testing.T) {
	ticker := baseTicker()
	ticker.LastPrice = 100.3 // > entry*1.002 = 100.2
	_, ok := passesEntryGates(baseProposal(), ticker, baseCfg())
	assert.False(t, ok)
}

func TestPassesEntryGates_ChasingShortFails(t *testing.T) {
	p := baseProposal()
	p.PositionType = "SHORT"
	ticker := baseTicker()
	ticker.LastPrice = 99.7 // < entry*0.998 = 99.8
	_, ok := passesEntryGates(p, ticker, baseCfg())
	assert.False(t, ok)
}

func TestPassesEntryGates_WideSpreadFails(t *testing.T) {
	ticker := baseTicker()
	ticker.BidPrice, ticker.AskPrice = 99.0, 100.0 // >0.1%
	_, ok := passesEntryGates(baseProposal(), ticker, baseCfg())
	assert.False(t, ok)
}

func TestPassesEntryGates_ThinVolumeFails(t *testing.T) {
	ticker := baseTicker()
	ticker.Volume24h = 999
	_, ok := passesEntryGates(baseProposal(), ticker, baseCfg())
	assert.False(t, ok)
}

func TestOrderQty_SizesAndSnaps(t *testing.T) {
	p := baseProposal() // size 100, leverage 10, entry 100 -> raw qty 10
	rules := symbol.InstrumentRules{QtyStep: 0.1, MinQty: 0.1, MaxQty: 1000, QtyDecimals: 1}
	assert.Equal(t, 10.0, orderQty(p, rules))
}

func TestOrderQty_ZeroEntryPriceYieldsZero(t *testing.T) {
	p := baseProposal()
	p.EntryPrice = 0
	rules := symbol.InstrumentRules{QtyStep: 0.1, QtyDecimals: 1}
	assert.Equal(t, 0.0, orderQty(p, rules))
}
