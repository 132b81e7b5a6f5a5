package scanner

import (
	"testing"

	"PerpMesh/internal/config"
	"PerpMesh/internal/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDB(t *testing.T) *storage.DB {
	t.Helper()
	d, err := storage.Open(config.Persistence{DSN: "file::memory:?cache=shared"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = d.Close() })
	return d
}

func TestDiffRemoved_NoPriorScanYieldsEmpty(t *testing.T) {
	db := newTestDB(t)
	removed := diffRemoved(db, 1_800_000_000, []string{"BTCUSDT"})
	assert.Empty(t, removed)
}

func TestDiffRemoved_SymbolsDroppedFromCurrentSetAreReported(t *testing.T) {
	db := newTestDB(t)
	require.NoError(t, db.RecordScan(storage.ScanHistory{
		ScanID: "scan-prev", ScanTimestamp: 1_800_000_000,
		Selected: []string{"BTCUSDT", "ETHUSDT", "SOLUSDT"},
	}))

	removed := diffRemoved(db, 1_800_000_300, []string{"BTCUSDT", "SOLUSDT"})
	assert.ElementsMatch(t, []string{"ETHUSDT"}, removed)
}

func TestDiffRemoved_NoSymbolsDroppedYieldsEmpty(t *testing.T) {
	db := newTestDB(t)
	require.NoError(t, db.RecordScan(storage.ScanHistory{
		ScanID: "scan-prev2", ScanTimestamp: 1_800_000_600,
		Selected: []string{"BTCUSDT"},
	}))

	removed := diffRemoved(db, 1_800_000_900, []string{"BTCUSDT", "ETHUSDT"})
	assert.Empty(t, removed)
}
