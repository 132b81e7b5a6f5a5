// Package candle defines the append-only OHLCV series of spec.md §3:
// ordered by open-time UTC, deduplicated, fetched in bounded chunks.
package candle

import "sort"

// Candle is one OHLCV bar keyed by its open time (unix milliseconds, UTC).
type Candle struct {
	OpenTime int64
	Open     float64
	High     float64
	Low      float64
	Close    float64
	Volume   float64
	Turnover float64
}

// Timeframe is the minute-count label from spec.md §3 ("1","3","5",
// "15","30","60","240") plus the daily label "D".
type Timeframe string

const (
	TF1   Timeframe = "1"
	TF3   Timeframe = "3"
	TF5   Timeframe = "5"
	TF15  Timeframe = "15"
	TF30  Timeframe = "30"
	TF60  Timeframe = "60"
	TF240 Timeframe = "240"
	TFDay Timeframe = "D"
)

// Minutes returns the timeframe's bar length in minutes, or 1440 for "D".
func (tf Timeframe) Minutes() int64 {
	switch tf {
	case TFDay:
		return 1440
	default:
		n := int64(0)
		for _, c := range tf {
			if c < '0' || c > '9' {
				return 0
			}
			n = n*10 + int64(c-'0')
		}
		return n
	}
}

// Valid reports whether tf is one of the timeframes spec.md §3 names.
func (tf Timeframe) Valid() bool {
	switch tf {
	case TF1, TF3, TF5, TF15, TF30, TF60, TF240, TFDay:
		return true
	default:
		return false
	}
}

// MaxChunk is the largest number of rows requested per history call
// (spec.md §3: "history is requested in chunks of up to 200 rows").
const MaxChunk = 200

// Dedup sorts by OpenTime ascending and removes duplicate open times,
// keeping the first occurrence seen (the authoritative one, since
// append-only history never revises a closed bar).
func Dedup(candles []Candle) []Candle {
	if len(candles) == 0 {
		return candles
	}
	sorted := make([]Candle, len(candles))
	copy(sorted, candles)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].OpenTime < sorted[j].OpenTime })

	out := make([]Candle, 0, len(sorted))
	var lastTime int64
	first := true
	for _, c := range sorted {
		if first || c.OpenTime != lastTime {
			out = append(out, c)
			lastTime = c.OpenTime
			first = false
		}
	}
	return out
}

// Closes extracts the close-price series, oldest first.
func Closes(candles []Candle) []float64 {
	out := make([]float64, len(candles))
	for i, c := range candles {
		out[i] = c.Close
	}
	return out
}

// Volumes extracts the volume series, oldest first.
func Volumes(candles []Candle) []float64 {
	out := make([]float64, len(candles))
	for i, c := range candles {
		out[i] = c.Volume
	}
	return out
}
