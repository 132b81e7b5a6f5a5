// Package symbol defines the tradable-instrument data model of
// spec.md §3: ticker attributes and the tick/step quantisation rules
// enforced everywhere a price or quantity is written (invariant I3).
package symbol

import "math"

// Symbol is one linear-perpetual instrument as surveyed by Discovery.
type Symbol struct {
	Name            string
	LastPrice       float64
	Turnover24h     float64
	PctChange24h    float64 // signed
	High24h         float64
	Low24h          float64
	FundingRate     float64
	Rules           InstrumentRules
}

// InstrumentRules are the exchange-imposed quantisation constraints
// for a symbol (spec.md §3).
type InstrumentRules struct {
	PriceTick      float64
	MinPrice       float64
	QtyStep        float64
	MinQty         float64
	MaxQty         float64
	PriceDecimals  int
	QtyDecimals    int
}

// SnapPriceDown rounds price down to the nearest multiple of the
// price tick, per spec.md §4.2 ("entry_price = close, snapped down to
// nearest price tick"). Returns 0 if the tick is non-positive or price
// rounds below tick/2 (spec.md §8 boundary: snaps to 0 when close <
// tick_size/2, suppressing the signal upstream).
func (r InstrumentRules) SnapPriceDown(price float64) float64 {
	if r.PriceTick <= 0 {
		return 0
	}
	if price < r.PriceTick/2 {
		return 0
	}
	ticks := math.Floor(price/r.PriceTick + 1e-9)
	return round(ticks*r.PriceTick, r.PriceDecimals)
}

// SnapPrice rounds price to the nearest multiple of the price tick
// (used for stop-loss/take-profit, which may round either direction).
func (r InstrumentRules) SnapPrice(price float64) float64 {
	if r.PriceTick <= 0 {
		return 0
	}
	ticks := math.Round(price / r.PriceTick)
	return round(ticks*r.PriceTick, r.PriceDecimals)
}

// SnapQty rounds qty down to a multiple of the quantity step and
// clamps to [MinQty, MaxQty] (spec.md §4.6 step 6).
func (r InstrumentRules) SnapQty(qty float64) float64 {
	if r.QtyStep <= 0 {
		return 0
	}
	steps := math.Floor(qty/r.QtyStep + 1e-9)
	snapped := round(steps*r.QtyStep, r.QtyDecimals)
	if r.MinQty > 0 && snapped < r.MinQty {
		snapped = r.MinQty
	}
	if r.MaxQty > 0 && snapped > r.MaxQty {
		snapped = r.MaxQty
	}
	return round(snapped, r.QtyDecimals)
}

// IsPriceOnTick reports whether price is an integer multiple of the
// tick within floating-point tolerance (used by invariant checks/tests).
func (r InstrumentRules) IsPriceOnTick(price float64) bool {
	if r.PriceTick <= 0 {
		return false
	}
	ratio := price / r.PriceTick
	return math.Abs(ratio-math.Round(ratio)) < 1e-6
}

// IsQtyOnStep reports whether qty is an integer multiple of the step.
func (r InstrumentRules) IsQtyOnStep(qty float64) bool {
	if r.QtyStep <= 0 {
		return false
	}
	ratio := qty / r.QtyStep
	return math.Abs(ratio-math.Round(ratio)) < 1e-6
}

func round(v float64, decimals int) float64 {
	if decimals < 0 {
		decimals = 0
	}
	p := math.Pow(10, float64(decimals))
	return math.Round(v*p) / p
}

// InclusionResult is the per-symbol verdict of Discovery's five
// inclusion rules (spec.md §4.1), kept for logging/testability.
type InclusionResult struct {
	Included bool
	Reason   string
	Score    float64
}

var stablecoinMarkers = []string{"USDC", "BUSD", "DAI", "TUSD"}
var leveragedMarkers = []string{"UP", "DOWN", "BEAR", "BULL"}

// Evaluate applies spec.md §4.1's five inclusion rules to s and
// computes its rank score if included.
func Evaluate(s Symbol, minVolume24h, minVolatilityPct float64) InclusionResult {
	if len(s.Name) < 4 || s.Name[len(s.Name)-4:] != "USDT" {
		return InclusionResult{Reason: "not USDT-quoted"}
	}
	for _, marker := range stablecoinMarkers {
		if contains(s.Name, marker) {
			return InclusionResult{Reason: "stablecoin-quoted pair: " + marker}
		}
	}
	for _, marker := range leveragedMarkers {
		if contains(s.Name, marker) {
			return InclusionResult{Reason: "leveraged token: " + marker}
		}
	}
	if s.Turnover24h < minVolume24h {
		return InclusionResult{Reason: "turnover below minimum"}
	}
	if math.Abs(s.PctChange24h) < minVolatilityPct {
		return InclusionResult{Reason: "volatility below minimum"}
	}

	score := math.Abs(s.PctChange24h) * s.Turnover24h / 1e6
	return InclusionResult{Included: true, Score: score}
}

func contains(s, substr string) bool {
	for i := 0; i+len(substr) <= len(s); i++ {
		if s[i:i+len(substr)] == substr {
			return true
		}
	}
	return false
}
