package indicator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSMA(t *testing.T) {
	_, ok := SMA([]float64{1, 2}, 3)
	assert.False(t, ok)
	v, ok := SMA([]float64{1, 2, 3, 4, 5}, 5)
	require.True(t, ok)
	assert.Equal(t, 3.0, v)
}

func TestComputeBollinger(t *testing.T) {
	closes := make([]float64, 20)
	for i := range closes {
		closes[i] = 100
	}
	bb, ok := ComputeBollinger(closes, DefaultBBPeriod, DefaultBBK)
	require.True(t, ok)
	assert.Equal(t, 100.0, bb.Middle)
	assert.Equal(t, 100.0, bb.Upper) // zero stdev with constant closes
	assert.Equal(t, 0.5, bb.Position(100))
}

func TestRSI_AllGains(t *testing.T) {
	closes := []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15}
	v, ok := RSI(closes, 14)
	require.True(t, ok)
	assert.Equal(t, 100.0, v)
}

func TestRSI_InsufficientData(t *testing.T) {
	_, ok := RSI([]float64{1, 2, 3}, 14)
	assert.False(t, ok)
}

func TestRSIRising(t *testing.T) {
	closes := []float64{10, 9, 8, 7, 6, 5, 4, 3, 2, 1, 2, 3, 4, 5, 6, 7}
	_, rising, ok := RSIRising(closes, 14)
	require.True(t, ok)
	assert.True(t, rising)
}

func TestBTCTrend_Uptrend(t *testing.T) {
	closes := make([]float64, 60)
	for i := range closes {
		closes[i] = 100 + float64(i)*0.02 // drifts up ~1.2% over window
	}
	snap, ok := BTCTrend(closes)
	require.True(t, ok)
	assert.Equal(t, Uptrend, snap.Direction)
	assert.GreaterOrEqual(t, snap.Strength, 0.0)
	assert.LessOrEqual(t, snap.Strength, 100.0)
}

func TestCoinTrend_SidewaysAndVolume(t *testing.T) {
	closes := make([]float64, 30)
	volumes := make([]float64, 30)
	for i := range closes {
		closes[i] = 100 // flat -> sideways
		if i < 15 {
			volumes[i] = 10
		} else {
			volumes[i] = 20 // second half higher -> increasing
		}
	}
	snap, ok := CoinTrend(closes, volumes)
	require.True(t, ok)
	assert.Equal(t, Sideways, snap.Direction)
	assert.Equal(t, VolumeIncreasing, snap.Volume)
}

func TestClassifyFunding(t *testing.T) {
	assert.Equal(t, LongHeavy, ClassifyFunding(0.0002))
	assert.Equal(t, ShortHeavy, ClassifyFunding(-0.0002))
	assert.Equal(t, Neutral, ClassifyFunding(0))
	assert.Equal(t, Neutral, ClassifyFunding(0.00005))
}
