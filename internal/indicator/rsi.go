package indicator

// RSISeries computes Wilder's RSI(period) over closes, returning one
// value per index from `period` onward (RSISeries(closes,14)[0]
// corresponds to closes[period]). Returns nil if there are not enough
// closes.
func RSISeries(closes []float64, period int) []float64 {
	if period <= 0 || len(closes) < period+1 {
		return nil
	}

	gains := make([]float64, 0, len(closes)-1)
	losses := make([]float64, 0, len(closes)-1)
	for i := 1; i < len(closes); i++ {
		delta := closes[i] - closes[i-1]
		if delta > 0 {
			gains = append(gains, delta)
			losses = append(losses, 0)
		} else {
			gains = append(gains, 0)
			losses = append(losses, -delta)
		}
	}

	var avgGain, avgLoss float64
	for i := 0; i < period; i++ {
		avgGain += gains[i]
		avgLoss += losses[i]
	}
	avgGain /= float64(period)
	avgLoss /= float64(period)

	out := make([]float64, 0, len(gains)-period+1)
	out = append(out, rsiFromAvg(avgGain, avgLoss))

	for i := period; i < len(gains); i++ {
		avgGain = (avgGain*float64(period-1) + gains[i]) / float64(period)
		avgLoss = (avgLoss*float64(period-1) + losses[i]) / float64(period)
		out = append(out, rsiFromAvg(avgGain, avgLoss))
	}
	return out
}

func rsiFromAvg(avgGain, avgLoss float64) float64 {
	if avgLoss == 0 {
		if avgGain == 0 {
			return 50
		}
		return 100
	}
	rs := avgGain / avgLoss
	return 100 - 100/(1+rs)
}

// RSI returns the latest RSI(period) value, and false if there's
// insufficient history.
func RSI(closes []float64, period int) (float64, bool) {
	series := RSISeries(closes, period)
	if len(series) == 0 {
		return 0, false
	}
	return series[len(series)-1], true
}

// RSIRising reports whether the latest RSI value is greater than the
// previous one; used by the basic long/short strategies (spec.md
// §4.2 D/E: "RSI < 35 and rising").
func RSIRising(closes []float64, period int) (current float64, rising bool, ok bool) {
	series := RSISeries(closes, period)
	if len(series) < 2 {
		return 0, false, false
	}
	last := series[len(series)-1]
	prev := series[len(series)-2]
	return last, last > prev, true
}
