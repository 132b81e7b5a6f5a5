package kv

import (
	"context"
	"testing"
	"time"

	"PerpMesh/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestStore connects to a local Redis and skips the test if none is
// reachable, matching the integration-test convention used throughout
// the pack for services that need a live dependency.
func newTestStore(t *testing.T) *Store {
	t.Helper()
	s := New(config.LoadKV())
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := s.rdb.Ping(ctx).Err(); err != nil {
		t.Skipf("redis not reachable: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestAddrFormat(t *testing.T) {
	assert.Equal(t, "localhost:6379", config.KV{Host: "localhost", Port: 6379}.Addr())
}

func TestPublishAndReadDiscovery(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	set := DiscoverySet{
		Version:   1,
		Timestamp: time.Now().Unix(),
		Symbols:   []string{"BTCUSDT", "ETHUSDT"},
		Details:   []SymbolDetail{{Symbol: "BTCUSDT", Score: 12.5}},
	}
	require.NoError(t, s.PublishDiscovery(ctx, set))

	got, ok, err := s.LatestDiscovery(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, set.Symbols, got.Symbols)
}

func TestHeartbeatAndActiveScanners(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Heartbeat(ctx, "scanner-test-1"))
	active, err := s.ActiveScanners(ctx)
	require.NoError(t, err)
	assert.Contains(t, active, "scanner-test-1")
}

func TestLockExclusivity(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	key := "test:leader-lock"
	s.rdb.Del(ctx, key)

	lock1, ok, err := s.AcquireLock(ctx, key, "holder-1", time.Second)
	require.NoError(t, err)
	require.True(t, ok)

	_, ok, err = s.AcquireLock(ctx, key, "holder-2", time.Second)
	require.NoError(t, err)
	assert.False(t, ok)

	renewed, err := lock1.Renew(ctx, time.Second)
	require.NoError(t, err)
	assert.True(t, renewed)

	require.NoError(t, lock1.Release(ctx))
	_, ok, err = s.AcquireLock(ctx, key, "holder-3", time.Second)
	require.NoError(t, err)
	assert.True(t, ok)
}
