// Package indicator implements the technical indicators and trend/
// funding classifiers of spec.md §4.2: Bollinger Bands, RSI, SMA,
// BTC/coin trend snapshots, and funding sentiment.
package indicator

import "math"

// SMA returns the simple moving average of the last `period` values
// in values, and false if there are fewer than `period` values.
func SMA(values []float64, period int) (float64, bool) {
	if period <= 0 || len(values) < period {
		return 0, false
	}
	window := values[len(values)-period:]
	sum := 0.0
	for _, v := range window {
		sum += v
	}
	return sum / float64(period), true
}

// Stdev returns the population standard deviation of the last
// `period` values, using the same window SMA would use.
func Stdev(values []float64, period int) (float64, bool) {
	mean, ok := SMA(values, period)
	if !ok {
		return 0, false
	}
	window := values[len(values)-period:]
	var sumSq float64
	for _, v := range window {
		d := v - mean
		sumSq += d * d
	}
	variance := sumSq / float64(period)
	return math.Sqrt(variance), true
}
