package indicator

import "math"

// Direction is the three-way trend classification of spec.md §4.2.
type Direction string

const (
	Uptrend  Direction = "UPTREND"
	Downtrend Direction = "DOWNTREND"
	Sideways Direction = "SIDEWAYS"
)

// VolumeDirection is the coin-trend volume classifier (spec.md §4.2:
// "volume-trend INCREASING/DECREASING").
type VolumeDirection string

const (
	VolumeIncreasing VolumeDirection = "INCREASING"
	VolumeDecreasing VolumeDirection = "DECREASING"
)

// Snapshot is a trend classification with its strength (spec.md §4.2:
// "Strength ∈ [0,100] combines the MA gap and the price change").
type Snapshot struct {
	Direction Direction
	Strength  float64
	Volume    VolumeDirection // only populated for coin-trend snapshots
}

// classify applies the shared BTC/coin trend rule: sign of MA5-MA20
// decides direction, gated by whether the absolute first->last percent
// change exceeds thresholdPct; strength blends the MA gap (relative to
// MA20) and that same price-change percentage. The weighting (10x the
// MA-gap percent, 5x the price-change percent, clamped to [0,100]) is
// this implementation's resolution of an otherwise source-ambiguous
// formula — spec.md §4.2 names the two inputs but not their weights.
func classify(closes []float64, thresholdPct float64) (Snapshot, bool) {
	ma5, ok := SMA(closes, 5)
	if !ok {
		return Snapshot{}, false
	}
	ma20, ok := SMA(closes, 20)
	if !ok {
		return Snapshot{}, false
	}

	first := closes[0]
	last := closes[len(closes)-1]
	if first == 0 {
		return Snapshot{}, false
	}
	pctChange := (last - first) / first * 100
	absPctChange := math.Abs(pctChange)

	maGapPct := 0.0
	if ma20 != 0 {
		maGapPct = math.Abs(ma5-ma20) / ma20 * 100
	}
	strength := maGapPct*10 + absPctChange*5
	strength = math.Max(0, math.Min(100, strength))

	direction := Sideways
	if absPctChange > thresholdPct {
		if ma5 > ma20 {
			direction = Uptrend
		} else if ma5 < ma20 {
			direction = Downtrend
		}
	}

	return Snapshot{Direction: direction, Strength: strength}, true
}

// BTCTrendThresholdPct is the 0.3% gate spec.md §4.2 names for BTC trend.
const BTCTrendThresholdPct = 0.3

// CoinTrendThresholdPct is the 0.5% gate spec.md §4.2 names for coin trend.
const CoinTrendThresholdPct = 0.5

// BTCTrend classifies BTC's short-term trend from its last 60 1-minute
// closes (spec.md §4.2).
func BTCTrend(closes []float64) (Snapshot, bool) {
	if len(closes) > 60 {
		closes = closes[len(closes)-60:]
	}
	return classify(closes, BTCTrendThresholdPct)
}

// CoinTrend classifies the traded symbol's trend from its last 30 bars
// at the strategy's timeframe, plus the volume trend over the same
// window (spec.md §4.2).
func CoinTrend(closes, volumes []float64) (Snapshot, bool) {
	if len(closes) > 30 {
		closes = closes[len(closes)-30:]
	}
	if len(volumes) > 30 {
		volumes = volumes[len(volumes)-30:]
	}

	snap, ok := classify(closes, CoinTrendThresholdPct)
	if !ok {
		return Snapshot{}, false
	}
	snap.Volume = volumeTrend(volumes)
	return snap, true
}

func volumeTrend(volumes []float64) VolumeDirection {
	if len(volumes) < 2 {
		return VolumeDecreasing
	}
	half := len(volumes) / 2
	firstHalf := mean(volumes[:half])
	secondHalf := mean(volumes[half:])
	if secondHalf >= firstHalf {
		return VolumeIncreasing
	}
	return VolumeDecreasing
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}
