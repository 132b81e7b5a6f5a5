package entryengine

// hammer reports the lower-shadow-dominant candle shape spec.md §4.2
// names for strategy D: lower shadow more than 2x the body, upper
// shadow less than 0.5x the body.
func hammer(open, high, low, close float64) bool {
	body := absf(close - open)
	if body == 0 {
		return false
	}
	lowerShadow := minf(open, close) - low
	upperShadow := high - maxf(open, close)
	return lowerShadow > 2*body && upperShadow < 0.5*body
}

// shootingStar is the mirror shape for strategy E.
func shootingStar(open, high, low, close float64) bool {
	body := absf(close - open)
	if body == 0 {
		return false
	}
	upperShadow := high - maxf(open, close)
	lowerShadow := minf(open, close) - low
	return upperShadow > 2*body && lowerShadow < 0.5*body
}

// strongBounce is strategy D's other qualifying shape: close above the
// prior bar's low with a green body of at least 0.2%.
func strongBounce(prevLow, open, close float64) bool {
	if close <= prevLow {
		return false
	}
	if open == 0 {
		return false
	}
	return (close-open)/open >= 0.002
}

// strongDrop mirrors strongBounce for strategy E.
func strongDrop(prevHigh, open, close float64) bool {
	if close >= prevHigh {
		return false
	}
	if open == 0 {
		return false
	}
	return (open-close)/open >= 0.002
}

func absf(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

func minf(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

func maxf(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}
