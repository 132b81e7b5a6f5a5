package fib

import (
	"testing"

	"PerpMesh/internal/candle"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func bars(highs, lows []float64) []candle.Candle {
	out := make([]candle.Candle, len(highs))
	for i := range highs {
		out[i] = candle.Candle{High: highs[i], Low: lows[i], OpenTime: int64(i)}
	}
	return out
}

func TestCompute_HighLowRange(t *testing.T) {
	lv, ok := Compute(bars([]float64{110, 120, 105}, []float64{90, 95, 100}))
	require.True(t, ok)
	assert.Equal(t, 120.0, lv.High)
	assert.Equal(t, 90.0, lv.Low)
	assert.Equal(t, 30.0, lv.Range)
	assert.InDelta(t, 120.0, lv.Prices[0.0], 1e-9)
	assert.InDelta(t, 90.0, lv.Prices[1.0], 1e-9)
	assert.InDelta(t, 105.0, lv.Prices[0.5], 1e-9)
}

func TestCompute_Empty(t *testing.T) {
	_, ok := Compute(nil)
	assert.False(t, ok)
}

func TestNearestSupportResistance(t *testing.T) {
	lv, _ := Compute(bars([]float64{120}, []float64{90}))
	mtf := MultiTimeframe{candle.TF5: lv}

	sup, dist, ok := mtf.NearestSupport(100)
	require.True(t, ok)
	assert.Less(t, sup.Price, 100.0)
	assert.Greater(t, dist, 0.0)

	res, dist2, ok := mtf.NearestResistance(100)
	require.True(t, ok)
	assert.Greater(t, res.Price, 100.0)
	assert.Greater(t, dist2, 0.0)
}

func TestNearestSupport_NoneBelow(t *testing.T) {
	lv, _ := Compute(bars([]float64{120}, []float64{90}))
	mtf := MultiTimeframe{candle.TF5: lv}
	_, _, ok := mtf.NearestSupport(50)
	assert.False(t, ok)
}

func TestNearFibLevel(t *testing.T) {
	lv, _ := Compute(bars([]float64{120}, []float64{90}))
	mtf := MultiTimeframe{candle.TF5: lv}
	// 0.5 level = 105
	assert.True(t, mtf.NearFibLevel(106, 0.02))
	assert.False(t, mtf.NearFibLevel(200, 0.02))
}

func TestBarsForLookback(t *testing.T) {
	assert.Equal(t, 288, BarsForLookback(candle.TF5))  // 1 day / 5min
	assert.Equal(t, 30, BarsForLookback(candle.TFDay)) // 30 days / 1 day
}
