// Package storage binds the abstract Results/ScanHistory/Positions
// tables of spec.md §3/§6 to `modernc.org/sqlite`. Each table's
// "TTL"/"StatusIndex" language is resolved here to a plain column plus
// index and a periodic sweeper, since sqlite has neither primitive
// natively.
package storage

import (
	"database/sql"
	"fmt"

	"PerpMesh/internal/config"
	"PerpMesh/internal/logger"

	_ "modernc.org/sqlite"
)

var log = logger.With("storage")

// DB wraps the shared sqlite connection backing all three tables.
type DB struct {
	sql *sql.DB
}

// Open opens (or creates) the sqlite database at cfg.DSN and applies
// the schema.
func Open(cfg config.Persistence) (*DB, error) {
	sqlDB, err := sql.Open("sqlite", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}
	d := &DB{sql: sqlDB}
	if err := d.migrate(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("migrate db: %w", err)
	}
	log.Infof("opened storage dsn=%s", cfg.DSN)
	return d, nil
}

func (d *DB) Close() error { return d.sql.Close() }

// SqlDB exposes the underlying handle for callers that need raw
// access (sweeper goroutines, tests).
func (d *DB) SqlDB() *sql.DB { return d.sql }

func (d *DB) migrate() error {
	_, err := d.sql.Exec(`
		CREATE TABLE IF NOT EXISTS results (
			symbol           TEXT NOT NULL,
			scan_timestamp   INTEGER NOT NULL,
			status           TEXT NOT NULL DEFAULT 'active',
			ttl              INTEGER NOT NULL,
			last_price       TEXT NOT NULL DEFAULT '0',
			turnover_24h     TEXT NOT NULL DEFAULT '0',
			pct_change_24h   TEXT NOT NULL DEFAULT '0',
			optimal_timeframe TEXT NOT NULL DEFAULT '',
			optimal_pnl      TEXT NOT NULL DEFAULT '0',
			optimal_win_rate TEXT NOT NULL DEFAULT '0',
			timeframes_json  TEXT NOT NULL DEFAULT '{}',
			PRIMARY KEY (symbol, scan_timestamp)
		);
		CREATE INDEX IF NOT EXISTS idx_results_status ON results(status);
		CREATE INDEX IF NOT EXISTS idx_results_symbol_ts ON results(symbol, scan_timestamp DESC);

		CREATE TABLE IF NOT EXISTS scan_history (
			scan_id          TEXT NOT NULL,
			scan_timestamp   INTEGER NOT NULL,
			ttl              INTEGER NOT NULL,
			selected_json    TEXT NOT NULL DEFAULT '[]',
			removed_json     TEXT NOT NULL DEFAULT '[]',
			PRIMARY KEY (scan_id, scan_timestamp)
		);
		CREATE INDEX IF NOT EXISTS idx_scan_history_ts ON scan_history(scan_timestamp DESC);

		CREATE TABLE IF NOT EXISTS positions (
			symbol            TEXT NOT NULL,
			signal_timestamp  INTEGER NOT NULL,
			status            TEXT NOT NULL DEFAULT 'active',
			ttl               INTEGER NOT NULL,
			strategy          TEXT NOT NULL DEFAULT '',
			timeframe         TEXT NOT NULL DEFAULT '',
			confidence        TEXT NOT NULL DEFAULT '0',
			position_type     TEXT NOT NULL DEFAULT '',
			entry_price       TEXT NOT NULL DEFAULT '0',
			stop_loss         TEXT NOT NULL DEFAULT '0',
			take_profit       TEXT NOT NULL DEFAULT '0',
			position_size     TEXT NOT NULL DEFAULT '0',
			leverage          INTEGER NOT NULL DEFAULT 0,
			rsi               TEXT NOT NULL DEFAULT '0',
			bb_position       TEXT NOT NULL DEFAULT '0',
			bb_width          TEXT NOT NULL DEFAULT '0',
			coin_trend_json   TEXT NOT NULL DEFAULT '{}',
			btc_trend_json    TEXT NOT NULL DEFAULT '{}',
			funding_sentiment TEXT NOT NULL DEFAULT 'NEUTRAL',
			funding_rate      TEXT NOT NULL DEFAULT '0',
			nearest_support_json    TEXT NOT NULL DEFAULT '{}',
			nearest_resistance_json TEXT NOT NULL DEFAULT '{}',
			expected_profit   TEXT NOT NULL DEFAULT '0',
			expected_loss     TEXT NOT NULL DEFAULT '0',
			risk_reward_ratio TEXT NOT NULL DEFAULT '0',
			signal_id         TEXT NOT NULL DEFAULT '',
			scan_id           TEXT NOT NULL DEFAULT '',
			version           INTEGER NOT NULL DEFAULT 1,
			order_id          TEXT NOT NULL DEFAULT '',
			executed_at       INTEGER NOT NULL DEFAULT 0,
			PRIMARY KEY (symbol, signal_timestamp)
		);
		CREATE INDEX IF NOT EXISTS idx_positions_status ON positions(status);
	`)
	return err
}
