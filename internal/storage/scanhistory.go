package storage

import (
	"encoding/json"

	"PerpMesh/internal/xerr"
)

const scanHistoryTTLSeconds = 7 * 24 * 60 * 60

// RecordScan writes one Scanner-cycle record (spec.md §3: "Lists
// selected symbols this cycle and those removed vs previous cycle;
// drives garbage collection of Results").
func (d *DB) RecordScan(h ScanHistory) error {
	selected, err := json.Marshal(h.Selected)
	if err != nil {
		return xerr.Wrap(xerr.Fatal, "marshal selected symbols: %v", err)
	}
	removed, err := json.Marshal(h.Removed)
	if err != nil {
		return xerr.Wrap(xerr.Fatal, "marshal removed symbols: %v", err)
	}
	_, err = d.sql.Exec(`
		INSERT INTO scan_history (scan_id, scan_timestamp, ttl, selected_json, removed_json)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(scan_id, scan_timestamp) DO UPDATE SET
			selected_json = excluded.selected_json,
			removed_json  = excluded.removed_json`,
		h.ScanID, h.ScanTimestamp, h.ScanTimestamp+scanHistoryTTLSeconds, string(selected), string(removed))
	if err != nil {
		return xerr.Wrap(xerr.PersistenceConflict, "record scan history %s: %v", h.ScanID, err)
	}
	return nil
}

// PreviousScan returns the most recent scan_history row strictly
// before before (the Scanner's "removed vs previous cycle" diff
// input), or ok=false if none exists.
func (d *DB) PreviousScan(before int64) (ScanHistory, bool, error) {
	row := d.sql.QueryRow(`
		SELECT scan_id, scan_timestamp, ttl, selected_json, removed_json
		  FROM scan_history WHERE scan_timestamp < ?
		 ORDER BY scan_timestamp DESC LIMIT 1`, before)

	var h ScanHistory
	var selectedJSON, removedJSON string
	if err := row.Scan(&h.ScanID, &h.ScanTimestamp, &h.TTL, &selectedJSON, &removedJSON); err != nil {
		return ScanHistory{}, false, nil
	}
	_ = json.Unmarshal([]byte(selectedJSON), &h.Selected)
	_ = json.Unmarshal([]byte(removedJSON), &h.Removed)
	return h, true, nil
}

// SweepExpiredScanHistory deletes rows past their TTL.
func (d *DB) SweepExpiredScanHistory(nowUnix int64) (int64, error) {
	res, err := d.sql.Exec(`DELETE FROM scan_history WHERE ttl < ?`, nowUnix)
	if err != nil {
		return 0, xerr.Wrap(xerr.PersistenceConflict, "sweep expired scan history: %v", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}
