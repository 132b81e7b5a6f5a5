package indicator

// Bollinger is the Bollinger Band envelope of spec.md §4.2: SMA(close,
// period) ± k*stdev(close, period), with width expressed as a
// percentage of the middle band.
type Bollinger struct {
	Middle   float64
	Upper    float64
	Lower    float64
	WidthPct float64
}

// DefaultBBPeriod is BB_PERIOD from spec.md §4.2.
const DefaultBBPeriod = 20

// DefaultBBK is the Bollinger standard-deviation multiplier (spec.md
// §4.2: "±2×stdev").
const DefaultBBK = 2.0

// ComputeBollinger derives the Bollinger envelope from the last
// `period` closes. Returns false if there is insufficient history.
func ComputeBollinger(closes []float64, period int, k float64) (Bollinger, bool) {
	mid, ok := SMA(closes, period)
	if !ok {
		return Bollinger{}, false
	}
	dev, ok := Stdev(closes, period)
	if !ok {
		return Bollinger{}, false
	}

	upper := mid + k*dev
	lower := mid - k*dev
	widthPct := 0.0
	if mid != 0 {
		widthPct = (upper - lower) / mid * 100
	}
	return Bollinger{Middle: mid, Upper: upper, Lower: lower, WidthPct: widthPct}, true
}

// Position returns (close - lower) / (upper - lower), the "where in
// the envelope is price" metric used by the support-bounce strategy
// (spec.md §4.2 C) and the basic strategies. Returns 0.5 (neutral) if
// the band has zero width.
func (b Bollinger) Position(close float64) float64 {
	width := b.Upper - b.Lower
	if width == 0 {
		return 0.5
	}
	return (close - b.Lower) / width
}
