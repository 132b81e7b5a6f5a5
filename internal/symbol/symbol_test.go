package symbol

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSnapPriceDown(t *testing.T) {
	r := InstrumentRules{PriceTick: 0.1, PriceDecimals: 1}
	assert.Equal(t, 100.4, r.SnapPriceDown(100.47))
	assert.Equal(t, 0.0, r.SnapPriceDown(0.02)) // below tick/2
}

func TestSnapQty_ClampsAndSteps(t *testing.T) {
	r := InstrumentRules{QtyStep: 0.001, MinQty: 0.001, MaxQty: 100, QtyDecimals: 3}
	assert.Equal(t, 1.234, r.SnapQty(1.2345))
	assert.Equal(t, 0.001, r.SnapQty(0.0001))
	assert.Equal(t, 100.0, r.SnapQty(500))
}

func TestIsPriceOnTick(t *testing.T) {
	r := InstrumentRules{PriceTick: 0.5}
	assert.True(t, r.IsPriceOnTick(100.5))
	assert.False(t, r.IsPriceOnTick(100.3))
}

func TestEvaluate_InclusionRules(t *testing.T) {
	tests := []struct {
		name     string
		sym      Symbol
		included bool
		reason   string
	}{
		{"not usdt", Symbol{Name: "BTCUSD"}, false, "not USDT-quoted"},
		{"stablecoin", Symbol{Name: "USDCUSDT", Turnover24h: 2e6, PctChange24h: 5}, false, "stablecoin-quoted pair: USDC"},
		{"leveraged", Symbol{Name: "BTCUPUSDT", Turnover24h: 2e6, PctChange24h: 5}, false, "leveraged token: UP"},
		{"low turnover", Symbol{Name: "XYZUSDT", Turnover24h: 100, PctChange24h: 5}, false, "turnover below minimum"},
		{"low volatility", Symbol{Name: "XYZUSDT", Turnover24h: 2e6, PctChange24h: 0.1}, false, "volatility below minimum"},
		{"included", Symbol{Name: "XYZUSDT", Turnover24h: 2e6, PctChange24h: 5}, true, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Evaluate(tt.sym, 1_000_000, 2.0)
			assert.Equal(t, tt.included, got.Included)
			if !tt.included {
				assert.Equal(t, tt.reason, got.Reason)
			}
		})
	}
}

func TestEvaluate_ScoreFormula(t *testing.T) {
	got := Evaluate(Symbol{Name: "XYZUSDT", Turnover24h: 2_000_000, PctChange24h: -5}, 1_000_000, 2.0)
	assert.True(t, got.Included)
	assert.InDelta(t, 10.0, got.Score, 1e-9) // 5 * 2_000_000 / 1e6
}
