package storage

import (
	"database/sql"
	"encoding/json"
	"errors"

	"PerpMesh/internal/fib"
	"PerpMesh/internal/money"
	"PerpMesh/internal/xerr"
)

const positionTTLSeconds = 5 * 60

// RecentPosition returns the most recent PositionProposal for symbol
// with signal_timestamp within the last 5 minutes of nowUnix (spec.md
// §4.5 step 5), or ok=false if none exists.
func (d *DB) RecentPosition(symbol string, nowUnix int64) (PositionProposal, bool, error) {
	row := d.sql.QueryRow(`
		SELECT symbol, signal_timestamp, status, ttl, strategy, timeframe, confidence, position_type,
		       entry_price, stop_loss, take_profit, position_size, leverage, rsi, bb_position, bb_width,
		       coin_trend_json, btc_trend_json, funding_sentiment, funding_rate,
		       nearest_support_json, nearest_resistance_json, expected_profit, expected_loss,
		       risk_reward_ratio, signal_id, scan_id, version, order_id, executed_at
		  FROM positions
		 WHERE symbol = ? AND signal_timestamp >= ?
		 ORDER BY signal_timestamp DESC LIMIT 1`, symbol, nowUnix-300)

	p, err := scanPosition(row)
	if errors.Is(err, sql.ErrNoRows) {
		return PositionProposal{}, false, nil
	}
	if err != nil {
		return PositionProposal{}, false, xerr.Wrap(xerr.PersistenceConflict, "query recent position %s: %v", symbol, err)
	}
	return p, true, nil
}

func scanPosition(row *sql.Row) (PositionProposal, error) {
	var p PositionProposal
	var confidenceS, entryS, stopS, takeS, sizeS, rsiS, bbPosS, bbWidthS string
	var coinTrendJSON, btcTrendJSON, supportJSON, resistanceJSON string
	var expectedProfitS, expectedLossS, rrS, fundingRateS string

	err := row.Scan(&p.Symbol, &p.SignalTimestamp, &p.Status, &p.TTL, &p.Strategy, &p.Timeframe,
		&confidenceS, &p.PositionType, &entryS, &stopS, &takeS, &sizeS, &p.Leverage,
		&rsiS, &bbPosS, &bbWidthS, &coinTrendJSON, &btcTrendJSON, &p.FundingSentiment, &fundingRateS,
		&supportJSON, &resistanceJSON, &expectedProfitS, &expectedLossS, &rrS,
		&p.SignalID, &p.ScanID, &p.Version, &p.OrderID, &p.ExecutedAt)
	if err != nil {
		return PositionProposal{}, err
	}

	p.Confidence = money.FromString(confidenceS)
	p.EntryPrice = money.FromString(entryS)
	p.StopLoss = money.FromString(stopS)
	p.TakeProfit = money.FromString(takeS)
	p.PositionSize = money.FromString(sizeS)
	p.RSI = money.FromString(rsiS)
	p.BBPosition = money.FromString(bbPosS)
	p.BBWidth = money.FromString(bbWidthS)
	p.FundingRate = money.FromString(fundingRateS)
	p.ExpectedProfit = money.FromString(expectedProfitS)
	p.ExpectedLoss = money.FromString(expectedLossS)
	p.RiskRewardRatio = money.FromString(rrS)
	_ = json.Unmarshal([]byte(coinTrendJSON), &p.CoinTrend)
	_ = json.Unmarshal([]byte(btcTrendJSON), &p.BTCTrend)

	var support, resistance fib.Level
	if json.Unmarshal([]byte(supportJSON), &support) == nil && support.Price != 0 {
		p.NearestSupport = &support
	}
	if json.Unmarshal([]byte(resistanceJSON), &resistance) == nil && resistance.Price != 0 {
		p.NearestResistance = &resistance
	}
	return p, nil
}

// WriteProposal inserts a new active PositionProposal, or overwrites
// an existing row at the same (symbol, signal_timestamp) key (spec.md
// §4.5 step 5: "if 'similar', drop; otherwise overwrite").
func (d *DB) WriteProposal(p PositionProposal) error {
	coinTrendJSON, _ := json.Marshal(p.CoinTrend)
	btcTrendJSON, _ := json.Marshal(p.BTCTrend)
	supportJSON, _ := json.Marshal(levelOrZero(p.NearestSupport))
	resistanceJSON, _ := json.Marshal(levelOrZero(p.NearestResistance))

	_, err := d.sql.Exec(`
		INSERT INTO positions (symbol, signal_timestamp, status, ttl, strategy, timeframe, confidence,
		                        position_type, entry_price, stop_loss, take_profit, position_size, leverage,
		                        rsi, bb_position, bb_width, coin_trend_json, btc_trend_json,
		                        funding_sentiment, funding_rate, nearest_support_json, nearest_resistance_json,
		                        expected_profit, expected_loss, risk_reward_ratio, signal_id, scan_id, version)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(symbol, signal_timestamp) DO UPDATE SET
			status = excluded.status, strategy = excluded.strategy, timeframe = excluded.timeframe,
			confidence = excluded.confidence, position_type = excluded.position_type,
			entry_price = excluded.entry_price, stop_loss = excluded.stop_loss, take_profit = excluded.take_profit,
			position_size = excluded.position_size, leverage = excluded.leverage, rsi = excluded.rsi,
			bb_position = excluded.bb_position, bb_width = excluded.bb_width,
			coin_trend_json = excluded.coin_trend_json, btc_trend_json = excluded.btc_trend_json,
			funding_sentiment = excluded.funding_sentiment, funding_rate = excluded.funding_rate,
			nearest_support_json = excluded.nearest_support_json, nearest_resistance_json = excluded.nearest_resistance_json,
			expected_profit = excluded.expected_profit, expected_loss = excluded.expected_loss,
			risk_reward_ratio = excluded.risk_reward_ratio, version = positions.version + 1`,
		p.Symbol, p.SignalTimestamp, PositionActive, p.SignalTimestamp+positionTTLSeconds, p.Strategy, p.Timeframe,
		money.ToString(p.Confidence), p.PositionType, money.ToString(p.EntryPrice), money.ToString(p.StopLoss),
		money.ToString(p.TakeProfit), money.ToString(p.PositionSize), p.Leverage, money.ToString(p.RSI),
		money.ToString(p.BBPosition), money.ToString(p.BBWidth), string(coinTrendJSON), string(btcTrendJSON),
		string(p.FundingSentiment), money.ToString(p.FundingRate), string(supportJSON), string(resistanceJSON),
		money.ToString(p.ExpectedProfit), money.ToString(p.ExpectedLoss), money.ToString(p.RiskRewardRatio),
		p.SignalID, p.ScanID, 1)
	if err != nil {
		return xerr.Wrap(xerr.PersistenceConflict, "write proposal %s: %v", p.Symbol, err)
	}
	return nil
}

func levelOrZero(l *fib.Level) fib.Level {
	if l == nil {
		return fib.Level{}
	}
	return *l
}

// ActivePositions returns every position currently in status=active,
// the set the Executor scans each cycle (spec.md §4.6).
func (d *DB) ActivePositions() ([]PositionProposal, error) {
	rows, err := d.sql.Query(`
		SELECT symbol, signal_timestamp, status, ttl, strategy, timeframe, confidence, position_type,
		       entry_price, stop_loss, take_profit, position_size, leverage, rsi, bb_position, bb_width,
		       coin_trend_json, btc_trend_json, funding_sentiment, funding_rate,
		       nearest_support_json, nearest_resistance_json, expected_profit, expected_loss,
		       risk_reward_ratio, signal_id, scan_id, version, order_id, executed_at
		  FROM positions WHERE status = ?`, PositionActive)
	if err != nil {
		return nil, xerr.Wrap(xerr.PersistenceConflict, "scan active positions: %v", err)
	}
	defer rows.Close()

	var out []PositionProposal
	for rows.Next() {
		var p PositionProposal
		var confidenceS, entryS, stopS, takeS, sizeS, rsiS, bbPosS, bbWidthS string
		var coinTrendJSON, btcTrendJSON, supportJSON, resistanceJSON string
		var expectedProfitS, expectedLossS, rrS, fundingRateS string

		if err := rows.Scan(&p.Symbol, &p.SignalTimestamp, &p.Status, &p.TTL, &p.Strategy, &p.Timeframe,
			&confidenceS, &p.PositionType, &entryS, &stopS, &takeS, &sizeS, &p.Leverage,
			&rsiS, &bbPosS, &bbWidthS, &coinTrendJSON, &btcTrendJSON, &p.FundingSentiment, &fundingRateS,
			&supportJSON, &resistanceJSON, &expectedProfitS, &expectedLossS, &rrS,
			&p.SignalID, &p.ScanID, &p.Version, &p.OrderID, &p.ExecutedAt); err != nil {
			return nil, xerr.Wrap(xerr.PersistenceConflict, "scan active position row: %v", err)
		}
		p.Confidence = money.FromString(confidenceS)
		p.EntryPrice = money.FromString(entryS)
		p.StopLoss = money.FromString(stopS)
		p.TakeProfit = money.FromString(takeS)
		p.PositionSize = money.FromString(sizeS)
		p.RSI = money.FromString(rsiS)
		p.BBPosition = money.FromString(bbPosS)
		p.BBWidth = money.FromString(bbWidthS)
		p.FundingRate = money.FromString(fundingRateS)
		p.ExpectedProfit = money.FromString(expectedProfitS)
		p.ExpectedLoss = money.FromString(expectedLossS)
		p.RiskRewardRatio = money.FromString(rrS)
		_ = json.Unmarshal([]byte(coinTrendJSON), &p.CoinTrend)
		_ = json.Unmarshal([]byte(btcTrendJSON), &p.BTCTrend)
		var support, resistance fib.Level
		if json.Unmarshal([]byte(supportJSON), &support) == nil && support.Price != 0 {
			p.NearestSupport = &support
		}
		if json.Unmarshal([]byte(resistanceJSON), &resistance) == nil && resistance.Price != 0 {
			p.NearestResistance = &resistance
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// TryExecute performs the conditional active->executing transition
// (spec.md §4.6 "Ordering guarantees": "must be done with a
// conditional update (update only if current status = active) to
// prevent double execution"). ok is false if another Executor already
// won the race.
func (d *DB) TryExecute(symbol string, signalTimestamp int64, orderID string, executedAt int64) (bool, error) {
	res, err := d.sql.Exec(`
		UPDATE positions SET status = ?, order_id = ?, executed_at = ?
		 WHERE symbol = ? AND signal_timestamp = ? AND status = ?`,
		PositionExecuting, orderID, executedAt, symbol, signalTimestamp, PositionActive)
	if err != nil {
		return false, xerr.Wrap(xerr.PersistenceConflict, "transition %s to executing: %v", symbol, err)
	}
	n, _ := res.RowsAffected()
	return n == 1, nil
}

// SetStatus sets a position's status unconditionally, without the
// current-status check TryExecute applies.
func (d *DB) SetStatus(symbol string, signalTimestamp int64, status string) error {
	_, err := d.sql.Exec(`UPDATE positions SET status = ? WHERE symbol = ? AND signal_timestamp = ?`,
		status, symbol, signalTimestamp)
	if err != nil {
		return xerr.Wrap(xerr.PersistenceConflict, "set position status %s: %v", symbol, err)
	}
	return nil
}

// SweepExpiredPositions transitions stale active/executing rows to
// expired (spec.md §3: "TTL 5 minutes from creation"; §4.6 step 8
// names the TTL as "the backstop").
func (d *DB) SweepExpiredPositions(nowUnix int64) (int64, error) {
	res, err := d.sql.Exec(`
		UPDATE positions SET status = ?
		 WHERE ttl < ? AND status IN (?, ?)`,
		PositionExpired, nowUnix, PositionActive, PositionExecuting)
	if err != nil {
		return 0, xerr.Wrap(xerr.PersistenceConflict, "sweep expired positions: %v", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}
