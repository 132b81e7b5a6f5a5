package storage

import (
	"database/sql"
	"encoding/json"
	"errors"

	"PerpMesh/internal/candle"
	"PerpMesh/internal/money"
	"PerpMesh/internal/xerr"
)

const resultsTTLSeconds = 24 * 60 * 60

// hourBucket truncates a unix timestamp to its containing hour, the
// key Analyzer's upsert matches on (spec.md §4.3: "query for any
// record (symbol, scan_timestamp within the last hour)").
func hourBucket(unixSeconds int64) int64 {
	return unixSeconds - (unixSeconds % 3600)
}

// UpsertResult implements spec.md §4.3's Analyzer upsert: find an
// existing row for symbol within the same hour bucket, merge tf's
// TimeframeResult into it and recompute optimal_*; otherwise insert a
// new row carrying the ticker snapshot and this one timeframe.
func (d *DB) UpsertResult(symbol string, scanTimestamp int64, ticker TickerSnapshot, tfLabel string, tf TimeframeResult) error {
	bucket := hourBucket(scanTimestamp)

	tx, err := d.sql.Begin()
	if err != nil {
		return xerr.Wrap(xerr.PersistenceConflict, "begin upsert result: %v", err)
	}
	defer tx.Rollback()

	row := tx.QueryRow(`
		SELECT scan_timestamp, last_price, turnover_24h, pct_change_24h,
		       optimal_timeframe, optimal_pnl, optimal_win_rate, timeframes_json
		  FROM results
		 WHERE symbol = ? AND scan_timestamp >= ?
		 ORDER BY scan_timestamp DESC LIMIT 1`, symbol, bucket)

	var existingTS int64
	var lastPriceS, turnoverS, pctS, optimalTFS, optimalPnlS, optimalWinS, tfJSON string
	err = row.Scan(&existingTS, &lastPriceS, &turnoverS, &pctS, &optimalTFS, &optimalPnlS, &optimalWinS, &tfJSON)

	timeframes := map[string]TimeframeResult{}
	rowTimestamp := scanTimestamp
	insert := true
	if err == nil {
		insert = false
		rowTimestamp = existingTS
		if uerr := json.Unmarshal([]byte(tfJSON), &timeframes); uerr != nil {
			return xerr.Wrap(xerr.DataGap, "decode timeframes_json for %s: %v", symbol, uerr)
		}
	} else if !errors.Is(err, sql.ErrNoRows) {
		return xerr.Wrap(xerr.PersistenceConflict, "query existing result for %s: %v", symbol, err)
	}

	timeframes[tfLabel] = tf

	optimalTF, optimalPnL, optimalWinRate := pickOptimal(timeframes)

	newTFJSON, merr := json.Marshal(timeframes)
	if merr != nil {
		return xerr.Wrap(xerr.Fatal, "marshal timeframes for %s: %v", symbol, merr)
	}

	if insert {
		_, err = tx.Exec(`
			INSERT INTO results (symbol, scan_timestamp, status, ttl, last_price, turnover_24h,
			                      pct_change_24h, optimal_timeframe, optimal_pnl, optimal_win_rate, timeframes_json)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			symbol, rowTimestamp, StatusActive, scanTimestamp+resultsTTLSeconds,
			money.ToString(ticker.LastPrice), money.ToString(ticker.Turnover24h), money.ToString(ticker.PctChange24h),
			optimalTF, money.ToString(optimalPnL), money.ToString(optimalWinRate), string(newTFJSON))
	} else {
		_, err = tx.Exec(`
			UPDATE results
			   SET optimal_timeframe = ?, optimal_pnl = ?, optimal_win_rate = ?, timeframes_json = ?, status = ?
			 WHERE symbol = ? AND scan_timestamp = ?`,
			optimalTF, money.ToString(optimalPnL), money.ToString(optimalWinRate), string(newTFJSON), StatusActive,
			symbol, rowTimestamp)
	}
	if err != nil {
		return xerr.Wrap(xerr.PersistenceConflict, "write result for %s: %v", symbol, err)
	}
	if err := tx.Commit(); err != nil {
		return xerr.Wrap(xerr.PersistenceConflict, "commit result for %s: %v", symbol, err)
	}
	return nil
}

// pickOptimal recomputes optimal_timeframe/pnl/win_rate as the
// timeframe with the largest total_pnl (spec.md §4.3); on equal
// total_pnl the shorter timeframe wins.
func pickOptimal(timeframes map[string]TimeframeResult) (string, float64, float64) {
	var bestLabel string
	var best TimeframeResult
	first := true
	for label, tf := range timeframes {
		if first || tf.TotalPnL > best.TotalPnL ||
			(tf.TotalPnL == best.TotalPnL && candle.Timeframe(label).Minutes() < candle.Timeframe(bestLabel).Minutes()) {
			bestLabel, best, first = label, tf, false
		}
	}
	return bestLabel, best.TotalPnL, best.WinRate
}

// TickerSnapshot is the subset of a ticker's metrics a Results row
// carries (spec.md §3 "Holds ticker metrics at scan time").
type TickerSnapshot struct {
	LastPrice    float64
	Turnover24h  float64
	PctChange24h float64
}

// ActiveResult is the StatusIndex-scan projection Selector needs
// (spec.md §4.4). ScanTimestamp doubles as the correlation id Selector
// threads into TradingSignal.ScanID: Results carries no separate
// scan_id column (its PK is symbol+scan_timestamp, per spec.md §6),
// so scan_timestamp is the closest available link back to the
// originating Scanner cycle.
type ActiveResult struct {
	Symbol           string
	ScanTimestamp    int64
	LastPrice        float64
	PctChange24h     float64
	OptimalTimeframe string
	OptimalPnL       float64
	OptimalWinRate   float64
	Timeframe        TimeframeResult
}

// ActiveResults scans results where status=active, standing in for
// spec.md §3's "StatusIndex supports range scans".
func (d *DB) ActiveResults() ([]ActiveResult, error) {
	rows, err := d.sql.Query(`
		SELECT symbol, scan_timestamp, last_price, pct_change_24h,
		       optimal_timeframe, optimal_pnl, optimal_win_rate, timeframes_json
		  FROM results WHERE status = ?`, StatusActive)
	if err != nil {
		return nil, xerr.Wrap(xerr.PersistenceConflict, "scan active results: %v", err)
	}
	defer rows.Close()

	var out []ActiveResult
	for rows.Next() {
		var symbol string
		var scanTS int64
		var lastPriceS, pctS, optimalTF, optimalPnlS, optimalWinS, tfJSON string
		if err := rows.Scan(&symbol, &scanTS, &lastPriceS, &pctS, &optimalTF, &optimalPnlS, &optimalWinS, &tfJSON); err != nil {
			return nil, xerr.Wrap(xerr.PersistenceConflict, "scan active result row: %v", err)
		}
		timeframes := map[string]TimeframeResult{}
		if err := json.Unmarshal([]byte(tfJSON), &timeframes); err != nil {
			continue
		}
		tf, ok := timeframes[optimalTF]
		if !ok {
			continue
		}
		out = append(out, ActiveResult{
			Symbol:           symbol,
			ScanTimestamp:    scanTS,
			LastPrice:        money.FromString(lastPriceS),
			PctChange24h:     money.FromString(pctS),
			OptimalTimeframe: optimalTF,
			OptimalPnL:       money.FromString(optimalPnlS),
			OptimalWinRate:   money.FromString(optimalWinS),
			Timeframe:        tf,
		})
	}
	return out, rows.Err()
}

// DeleteResultsNotIn implements spec.md I6: remove every Results row
// for a symbol absent from the latest Discovery set. Scanner owns
// this call.
func (d *DB) DeleteResultsNotIn(keepSymbols []string) (int64, error) {
	if len(keepSymbols) == 0 {
		res, err := d.sql.Exec(`DELETE FROM results`)
		if err != nil {
			return 0, xerr.Wrap(xerr.PersistenceConflict, "delete all stale results: %v", err)
		}
		n, _ := res.RowsAffected()
		return n, nil
	}
	placeholders := make([]byte, 0, len(keepSymbols)*2)
	args := make([]any, 0, len(keepSymbols))
	for i, s := range keepSymbols {
		if i > 0 {
			placeholders = append(placeholders, ',')
		}
		placeholders = append(placeholders, '?')
		args = append(args, s)
	}
	res, err := d.sql.Exec(`DELETE FROM results WHERE symbol NOT IN (`+string(placeholders)+`)`, args...)
	if err != nil {
		return 0, xerr.Wrap(xerr.PersistenceConflict, "delete stale results: %v", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// SweepExpiredResults deletes rows past their TTL (spec.md §9:
// "PERSISTENCE BINDING" names this the Scanner's sweeper duty).
func (d *DB) SweepExpiredResults(nowUnix int64) (int64, error) {
	res, err := d.sql.Exec(`DELETE FROM results WHERE ttl < ?`, nowUnix)
	if err != nil {
		return 0, xerr.Wrap(xerr.PersistenceConflict, "sweep expired results: %v", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}
