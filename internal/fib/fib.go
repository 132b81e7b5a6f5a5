// Package fib computes the multi-timeframe Fibonacci retracement
// levels of spec.md §3 and the nearest-support/resistance confluence
// lookup used by the entry engine and Position-Finder (spec.md §4.2,
// §4.5).
package fib

import (
	"context"
	"math"
	"sort"

	"PerpMesh/internal/candle"
)

// Ratios are the retracement levels spec.md §3 names.
var Ratios = []float64{0.0, 0.236, 0.382, 0.5, 0.618, 0.786, 1.0}

// Levels is one timeframe's Fibonacci range, immutable once computed.
type Levels struct {
	High   float64
	Low    float64
	Range  float64
	Prices map[float64]float64 // ratio -> absolute price
}

// LookbackDays maps each timeframe to its configured lookback window
// (spec.md §3): 5m:1d, 15m:2d, 30m:5d, 240m:7d, D:30d. 1m/3m/60m share
// the nearest neighbor's window since the spec does not name them
// explicitly.
var LookbackDays = map[candle.Timeframe]float64{
	candle.TF1:   1,
	candle.TF3:   1,
	candle.TF5:   1,
	candle.TF15:  2,
	candle.TF30:  5,
	candle.TF60:  5,
	candle.TF240: 7,
	candle.TFDay: 30,
}

// BarsForLookback returns how many bars of tf cover its configured
// lookback window.
func BarsForLookback(tf candle.Timeframe) int {
	days, ok := LookbackDays[tf]
	if !ok {
		days = 7
	}
	minutes := tf.Minutes()
	if minutes <= 0 {
		return 0
	}
	return int(math.Ceil(days * 1440 / float64(minutes)))
}

// Compute derives Levels from a window of candles: high/low across the
// window, and one absolute price per ratio. Returns the zero value and
// false if candles is empty (a data gap, not an error).
func Compute(candles []candle.Candle) (Levels, bool) {
	if len(candles) == 0 {
		return Levels{}, false
	}

	high := candles[0].High
	low := candles[0].Low
	for _, c := range candles {
		if c.High > high {
			high = c.High
		}
		if c.Low < low {
			low = c.Low
		}
	}
	rng := high - low

	prices := make(map[float64]float64, len(Ratios))
	for _, ratio := range Ratios {
		prices[ratio] = high - rng*ratio
	}
	return Levels{High: high, Low: low, Range: rng, Prices: prices}, true
}

// MultiTimeframe is the union of Levels across timeframes for one symbol.
type MultiTimeframe map[candle.Timeframe]Levels

// StandardTimeframes are the timeframes BuildMultiTimeframe assembles
// confluence from (spec.md §3's MTF fibonacci; GLOSSARY "union of
// levels computed at multiple timeframes").
var StandardTimeframes = []candle.Timeframe{
	candle.TF5, candle.TF15, candle.TF30, candle.TF240, candle.TFDay,
}

// BuildMultiTimeframe fetches each of StandardTimeframes' lookback
// window for symbol and computes its Levels, skipping any timeframe
// whose fetch fails or returns no candles (a partial MTF fib is a
// data gap for that timeframe only, not a fatal error for the whole
// lookup — NearestSupport/NearestResistance simply see fewer levels).
func BuildMultiTimeframe(ctx context.Context, fetch candle.Fetcher, symbol string) (MultiTimeframe, error) {
	out := make(MultiTimeframe, len(StandardTimeframes))
	for _, tf := range StandardTimeframes {
		bars, err := candle.Fetch(ctx, fetch, symbol, tf, BarsForLookback(tf))
		if err != nil {
			continue
		}
		if lv, ok := Compute(bars); ok {
			out[tf] = lv
		}
	}
	return out, nil
}

// Level is one absolute price drawn from the union, tagged with its
// originating timeframe and ratio (used to report "confluence" hits).
type Level struct {
	Timeframe candle.Timeframe
	Ratio     float64
	Price     float64
}

// allLevels flattens the MultiTimeframe map into a sorted slice.
func (m MultiTimeframe) allLevels() []Level {
	var out []Level
	for tf, lv := range m {
		for ratio, price := range lv.Prices {
			out = append(out, Level{Timeframe: tf, Ratio: ratio, Price: price})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Price < out[j].Price })
	return out
}

// NearestSupport returns the highest level strictly below price (the
// tightest support), and its distance from price as a fraction
// (e.g. 0.01 == 1%). ok is false if no level lies below price.
func (m MultiTimeframe) NearestSupport(price float64) (level Level, distancePct float64, ok bool) {
	best := Level{Price: math.Inf(-1)}
	found := false
	for _, l := range m.allLevels() {
		if l.Price < price && l.Price > best.Price {
			best = l
			found = true
		}
	}
	if !found {
		return Level{}, 0, false
	}
	return best, (price - best.Price) / price, true
}

// NearestResistance returns the lowest level strictly above price (the
// tightest resistance), and its distance from price as a fraction.
func (m MultiTimeframe) NearestResistance(price float64) (level Level, distancePct float64, ok bool) {
	best := Level{Price: math.Inf(1)}
	found := false
	for _, l := range m.allLevels() {
		if l.Price > price && l.Price < best.Price {
			best = l
			found = true
		}
	}
	if !found {
		return Level{}, 0, false
	}
	return best, (best.Price - price) / price, true
}

// NearFibLevel reports whether price sits within tolerance (a
// fraction, e.g. 0.02 for FIB_TOLERANCE=2%) of any level in the union
// — used by the basic long/short strategies (spec.md §4.2 D/E).
func (m MultiTimeframe) NearFibLevel(price, tolerance float64) bool {
	for _, l := range m.allLevels() {
		if l.Price <= 0 {
			continue
		}
		if math.Abs(price-l.Price)/price <= tolerance {
			return true
		}
	}
	return false
}
