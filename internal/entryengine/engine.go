package entryengine

import (
	"PerpMesh/internal/fib"
	"PerpMesh/internal/indicator"
)

// btcStrongThreshold is the "strength ≤ 60" / "strength > 60" cutoff
// spec.md §4.2 names for strategy A's BTC-not-in-strong-X gate. D and
// E reuse the same cutoff since the spec names no other value for
// their own "BTC not in strong DOWNTREND/UPTREND" gates.
const btcStrongThreshold = 60

// btcVeryStrongThreshold is the "strength > 70" cutoff strategy C uses
// for its looser BTC-not-in-downtrend gate.
const btcVeryStrongThreshold = 70

// computed bundles the per-bar indicator values every strategy reads,
// so Evaluate derives them exactly once (spec.md §4.2 "Trend snapshots
// (computed once per symbol per bar)").
type computed struct {
	open, high, low, close float64
	prevOpen, prevHigh, prevLow, prevClose float64

	bb        indicator.Bollinger
	rsi       float64
	rsiRising bool
	ma5, ma20 float64

	coinTrend indicator.Snapshot
	btcTrend  indicator.Snapshot
	funding   indicator.FundingSentiment

	supportLevel      *fib.Level
	supportDistPct    float64
	resistanceLevel   *fib.Level
	resistanceDistPct float64
	nearFib           bool
}

// Evaluate runs the three advanced strategies then the basic fallback
// of spec.md §4.2, in priority order, and returns the first signal
// whose confidence clears its strategy's gate, fully priced. Returns
// nil if no strategy fires, history is insufficient, or the fired
// signal fails the net-profit/zero-entry suppression rule.
func Evaluate(ctx Context, cfg Config) *Signal {
	if len(ctx.CoinCloses) < cfg.MinCandles() {
		return nil
	}

	c, ok := precompute(ctx, cfg)
	if !ok {
		return nil
	}

	type attempt struct {
		name StrategyName
		side Side
		eval func() (float64, bool)
	}
	attempts := []attempt{
		{DowntrendShort, Short, func() (float64, bool) { return scoreDowntrendShort(c) }},
		{UptrendLong, Long, func() (float64, bool) { return scoreUptrendLong(c) }},
		{SupportBounce, Long, func() (float64, bool) { return scoreSupportBounce(c) }},
		{BasicLong, Long, func() (float64, bool) { return scoreBasicLong(c) }},
		{BasicShort, Short, func() (float64, bool) { return scoreBasicShort(c) }},
	}

	for _, a := range attempts {
		confidence, fired := a.eval()
		if !fired || confidence < a.name.Gate() {
			continue
		}
		sig := buildSignal(ctx, cfg, c, a.name, a.side, confidence)
		if sig == nil {
			// Gate cleared but the priced signal was suppressed
			// (zero entry or below MIN_PROFIT_TARGET) — spec.md §4.2
			// treats this as no signal, not a fallthrough.
			return nil
		}
		return sig
	}
	return nil
}

func precompute(ctx Context, cfg Config) (computed, bool) {
	closes := ctx.CoinCloses
	price := closes[len(closes)-1]

	bb, ok := indicator.ComputeBollinger(closes, cfg.BBPeriod, cfg.BBK)
	if !ok {
		return computed{}, false
	}
	rsi, rising, ok := indicator.RSIRising(closes, cfg.RSIPeriod)
	if !ok {
		return computed{}, false
	}
	ma5, ok := indicator.SMA(closes, 5)
	if !ok {
		return computed{}, false
	}
	ma20, ok := indicator.SMA(closes, 20)
	if !ok {
		return computed{}, false
	}

	coinTrend, ok := indicator.CoinTrend(closes, ctx.CoinVolumes)
	if !ok {
		return computed{}, false
	}
	btcTrend, btcOk := indicator.BTCTrend(ctx.BTC1mCloses)
	if !btcOk {
		btcTrend = indicator.Snapshot{Direction: indicator.Sideways}
	}

	c := computed{
		close: price,
		bb:    bb,
		rsi:   rsi, rsiRising: rising,
		ma5: ma5, ma20: ma20,
		coinTrend: coinTrend,
		btcTrend:  btcTrend,
		funding:   indicator.ClassifyFunding(ctx.FundingRate),
		nearFib:   ctx.Fib.NearFibLevel(price, cfg.FibTolerance),
	}
	c.open, c.high, c.low = lastOf(ctx.CoinOpens), lastOf(ctx.CoinHighs), lastOf(ctx.CoinLows)
	c.prevOpen, c.prevHigh, c.prevLow, c.prevClose = prevOf(ctx.CoinOpens), prevOf(ctx.CoinHighs), prevOf(ctx.CoinLows), prevOf(closes)

	if lvl, dist, ok := ctx.Fib.NearestSupport(price); ok {
		l := lvl
		c.supportLevel, c.supportDistPct = &l, dist
	}
	if lvl, dist, ok := ctx.Fib.NearestResistance(price); ok {
		l := lvl
		c.resistanceLevel, c.resistanceDistPct = &l, dist
	}

	return c, true
}

func lastOf(s []float64) float64 {
	if len(s) == 0 {
		return 0
	}
	return s[len(s)-1]
}

func prevOf(s []float64) float64 {
	if len(s) < 2 {
		return 0
	}
	return s[len(s)-2]
}

// scoreDowntrendShort implements strategy A (spec.md §4.2): coin trend
// downtrend, room to fall below the nearest fib support, BTC not in a
// strong uptrend, RSI not oversold. Contributions: coin trend 30, room
// 25, BTC downtrend 20 / sideways 10, funding LONG_HEAVY +15 /
// SHORT_HEAVY -10, RSI>50 +10. The strategy's own "returned" floor is
// 60; Evaluate then applies the stricter 80 engine gate on top.
func scoreDowntrendShort(c computed) (float64, bool) {
	if c.coinTrend.Direction != indicator.Downtrend {
		return 0, false
	}
	if c.supportLevel == nil || c.supportDistPct <= 0.01 {
		return 0, false
	}
	if c.btcTrend.Direction == indicator.Uptrend && c.btcTrend.Strength > btcStrongThreshold {
		return 0, false
	}
	if c.rsi < 30 {
		return 0, false
	}

	score := 30.0 + 25.0
	switch c.btcTrend.Direction {
	case indicator.Downtrend:
		score += 20
	case indicator.Sideways:
		score += 10
	}
	switch c.funding {
	case indicator.LongHeavy:
		score += 15
	case indicator.ShortHeavy:
		score -= 10
	}
	if c.rsi > 50 {
		score += 10
	}
	score = clamp100(score)
	return score, score >= 60
}

// scoreUptrendLong implements strategy B, the documented mirror of A:
// coin trend uptrend, room to rise to the nearest resistance, BTC not
// in a strong downtrend, RSI not overbought (≤70). Contributions
// mirror A: coin trend 30, room 25, BTC uptrend 20 / sideways 10,
// funding SHORT_HEAVY +15 / LONG_HEAVY -10, RSI<50 +10.
func scoreUptrendLong(c computed) (float64, bool) {
	if c.coinTrend.Direction != indicator.Uptrend {
		return 0, false
	}
	if c.resistanceLevel == nil || c.resistanceDistPct <= 0.01 {
		return 0, false
	}
	if c.btcTrend.Direction == indicator.Downtrend && c.btcTrend.Strength > btcStrongThreshold {
		return 0, false
	}
	if c.rsi > 70 {
		return 0, false
	}

	score := 30.0 + 25.0
	switch c.btcTrend.Direction {
	case indicator.Uptrend:
		score += 20
	case indicator.Sideways:
		score += 10
	}
	switch c.funding {
	case indicator.ShortHeavy:
		score += 15
	case indicator.LongHeavy:
		score -= 10
	}
	if c.rsi < 50 {
		score += 10
	}
	score = clamp100(score)
	return score, score >= 60
}

// scoreSupportBounce implements strategy C (spec.md §4.2): nearest fib
// support within 1% below price, RSI oversold (≤35), Bollinger
// position in the bottom fifth of the band, BTC not in a downtrend
// stronger than 70. The four required conditions (fib 30, RSI 25, BB
// position 20, BTC-not-hostile 10) sum to exactly 85 — the strategy's
// own gate — so a bare qualifying bar always clears it; funding then
// tilts the score ±5 around that baseline (SHORT_HEAVY favors the
// long thesis, LONG_HEAVY works against it). This reproduces the
// named worked example (support 0.84% below, RSI 28, bb_position
// 0.10, BTC SIDEWAYS, funding SHORT_HEAVY → confidence 90).
func scoreSupportBounce(c computed) (float64, bool) {
	if c.supportLevel == nil || c.supportDistPct > 0.01 {
		return 0, false
	}
	if c.rsi > 35 {
		return 0, false
	}
	if c.bb.Position(c.close) > 0.2 {
		return 0, false
	}
	if c.btcTrend.Direction == indicator.Downtrend && c.btcTrend.Strength > btcVeryStrongThreshold {
		return 0, false
	}

	score := 30.0 + 25.0 + 20.0 + 10.0
	switch c.funding {
	case indicator.ShortHeavy:
		score += 5
	case indicator.LongHeavy:
		score -= 5
	}
	return clamp100(score), true
}

// scoreBasicLong implements strategy D (spec.md §4.2): price pressed
// against the lower band with volatility present, an oversold-and-
// rising RSI or a fib touch, the short moving average recovering above
// the long one, and a bullish candle shape (strong bounce or hammer),
// gated by the coin/BTC trend not being hostile. It is a binary
// trigger rather than a graded score, so confidence is fixed at the
// basic gate (60).
func scoreBasicLong(c computed) (float64, bool) {
	if c.close > c.bb.Lower*1.015 {
		return 0, false
	}
	if c.bb.WidthPct <= 1.5 {
		return 0, false
	}
	if !((c.rsi < 35 && c.rsiRising) || c.nearFib) {
		return 0, false
	}
	if c.ma5 <= c.ma20 {
		return 0, false
	}
	if !(strongBounce(c.prevLow, c.open, c.close) || hammer(c.open, c.high, c.low, c.close)) {
		return 0, false
	}
	if c.coinTrend.Direction == indicator.Downtrend {
		return 0, false
	}
	if c.btcTrend.Direction == indicator.Downtrend && c.btcTrend.Strength > btcStrongThreshold {
		return 0, false
	}
	return 60, true
}

// scoreBasicShort mirrors scoreBasicLong around the upper band.
func scoreBasicShort(c computed) (float64, bool) {
	if c.close < c.bb.Upper*0.985 {
		return 0, false
	}
	if c.bb.WidthPct <= 1.5 {
		return 0, false
	}
	if !((c.rsi > 65 && !c.rsiRising) || c.nearFib) {
		return 0, false
	}
	if c.ma5 >= c.ma20 {
		return 0, false
	}
	if !(strongDrop(c.prevHigh, c.open, c.close) || shootingStar(c.open, c.high, c.low, c.close)) {
		return 0, false
	}
	if c.coinTrend.Direction == indicator.Uptrend {
		return 0, false
	}
	if c.btcTrend.Direction == indicator.Uptrend && c.btcTrend.Strength > btcStrongThreshold {
		return 0, false
	}
	return 60, true
}

func clamp100(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

// buildSignal prices a fired strategy into a fully-formed Signal
// (spec.md §4.2 "For any emitted signal the engine computes") and
// applies its suppression rule. Returns nil when suppressed.
func buildSignal(ctx Context, cfg Config, c computed, name StrategyName, side Side, confidence float64) *Signal {
	entry := ctx.Rules.SnapPriceDown(c.close)
	if entry <= 0 {
		return nil
	}

	var stop, target float64
	if side == Long {
		stop = ctx.Rules.SnapPrice(entry * (1 - cfg.StopLossPct))
		target = ctx.Rules.SnapPrice(entry * (1 + cfg.TakeProfitPct))
	} else {
		stop = ctx.Rules.SnapPrice(entry * (1 + cfg.StopLossPct))
		target = ctx.Rules.SnapPrice(entry * (1 - cfg.TakeProfitPct))
	}

	expectedProfit := cfg.PositionSize * cfg.TakeProfitPct * float64(cfg.Leverage)
	expectedLoss := cfg.PositionSize * cfg.StopLossPct * float64(cfg.Leverage)
	fees := 2 * cfg.PositionSize * float64(cfg.Leverage) * cfg.TakerFee
	netProfit := expectedProfit - fees

	if netProfit < cfg.MinProfitTarget {
		return nil
	}

	sig := &Signal{
		Side:       side,
		Strategy:   name,
		Confidence: confidence,

		EntryPrice: entry,
		StopLoss:   stop,
		TakeProfit: target,

		ExpectedProfit: expectedProfit,
		ExpectedLoss:   expectedLoss,
		Fees:           fees,
		NetProfit:      netProfit,

		RSI:        c.rsi,
		BBWidth:    c.bb.WidthPct,
		BBPosition: c.bb.Position(c.close),

		CoinTrend:   c.coinTrend,
		BTCTrend:    c.btcTrend,
		Funding:     c.funding,
		FundingRate: ctx.FundingRate,
	}
	if c.supportLevel != nil {
		lvl := *c.supportLevel
		sig.NearestSupport = &lvl
		sig.NearestSupportDistPct = c.supportDistPct
	}
	if c.resistanceLevel != nil {
		lvl := *c.resistanceLevel
		sig.NearestResistance = &lvl
		sig.NearestResistanceDistPct = c.resistanceDistPct
	}
	return sig
}
