// Package kv wraps the shared Redis state of spec.md §5 "Shared
// resources": the Discovery symbol set, Scanner-instance liveness, and
// the Order-Executor leader lock.
package kv

import (
	"context"
	"encoding/json"
	"time"

	"PerpMesh/internal/config"
	"PerpMesh/internal/xerr"

	"github.com/redis/go-redis/v9"
)

const (
	discoveryLatestKey = "discovery:latest"
	discoveryVersionKey = "discovery:version"
	scannerActiveSet    = "scanner:active"
	discoveryLatestTTL  = 5 * time.Minute
	scannerHeartbeatTTL = 60 * time.Second
)

// Store is a thin Redis client wrapper scoped to the keys this system
// actually touches.
type Store struct {
	rdb *redis.Client
}

// New connects to Redis per cfg (spec.md §6: REDIS_HOST/REDIS_PORT).
func New(cfg config.KV) *Store {
	return &Store{rdb: redis.NewClient(&redis.Options{
		Addr: cfg.Addr(),
	})}
}

func (s *Store) Close() error { return s.rdb.Close() }

// DiscoverySet is the versioned record Discovery publishes (spec.md §4.1).
type DiscoverySet struct {
	Version   int64              `json:"version"`
	Timestamp int64              `json:"timestamp"`
	Symbols   []string           `json:"symbols"`
	Details   []SymbolDetail     `json:"details"`
}

// SymbolDetail is one ranked symbol's surfaced metrics.
type SymbolDetail struct {
	Symbol      string  `json:"symbol"`
	Score       float64 `json:"score"`
	Turnover24h float64 `json:"turnover_24h"`
	PctChange24h float64 `json:"pct_change_24h"`
}

// PublishDiscovery bumps discovery:version and then atomically writes
// discovery:latest (5-minute TTL) (spec.md §4.1). The version bump and the
// SET are not wrapped in a Redis transaction since a reader racing
// between them only ever observes a version that is equal to or ahead
// of the set it reads — never behind — which is the property callers
// depend on.
func (s *Store) PublishDiscovery(ctx context.Context, set DiscoverySet) error {
	payload, err := json.Marshal(set)
	if err != nil {
		return xerr.Wrap(xerr.Fatal, "marshal discovery set: %v", err)
	}
	if err := s.rdb.Incr(ctx, discoveryVersionKey).Err(); err != nil {
		return xerr.Wrap(xerr.TransientExchange, "incr discovery:version: %v", err)
	}
	if err := s.rdb.Set(ctx, discoveryLatestKey, payload, discoveryLatestTTL).Err(); err != nil {
		return xerr.Wrap(xerr.TransientExchange, "publish discovery:latest: %v", err)
	}
	return nil
}

// LatestDiscovery reads discovery:latest. ok is false if the key has
// expired or was never written (a data gap, not an error).
func (s *Store) LatestDiscovery(ctx context.Context) (DiscoverySet, bool, error) {
	raw, err := s.rdb.Get(ctx, discoveryLatestKey).Bytes()
	if err == redis.Nil {
		return DiscoverySet{}, false, nil
	}
	if err != nil {
		return DiscoverySet{}, false, xerr.Wrap(xerr.TransientExchange, "get discovery:latest: %v", err)
	}
	var set DiscoverySet
	if err := json.Unmarshal(raw, &set); err != nil {
		return DiscoverySet{}, false, xerr.Wrap(xerr.DataGap, "decode discovery:latest: %v", err)
	}
	return set, true, nil
}

// Heartbeat registers this scanner instance as live (spec.md §9:
// "SADD scanner:active id; SET scanner:{id}:heartbeat now EX 60").
func (s *Store) Heartbeat(ctx context.Context, scannerID string) error {
	if err := s.rdb.SAdd(ctx, scannerActiveSet, scannerID).Err(); err != nil {
		return xerr.Wrap(xerr.TransientExchange, "sadd scanner:active: %v", err)
	}
	key := "scanner:" + scannerID + ":heartbeat"
	if err := s.rdb.Set(ctx, key, time.Now().Unix(), scannerHeartbeatTTL).Err(); err != nil {
		return xerr.Wrap(xerr.TransientExchange, "set scanner heartbeat: %v", err)
	}
	return nil
}

// ActiveScanners returns the scanner IDs currently registered, pruning
// any whose heartbeat key has expired (Discovery's GC duty, spec.md §9).
func (s *Store) ActiveScanners(ctx context.Context) ([]string, error) {
	ids, err := s.rdb.SMembers(ctx, scannerActiveSet).Result()
	if err != nil {
		return nil, xerr.Wrap(xerr.TransientExchange, "smembers scanner:active: %v", err)
	}
	live := make([]string, 0, len(ids))
	for _, id := range ids {
		exists, err := s.rdb.Exists(ctx, "scanner:"+id+":heartbeat").Result()
		if err != nil {
			return nil, xerr.Wrap(xerr.TransientExchange, "exists scanner heartbeat: %v", err)
		}
		if exists == 1 {
			live = append(live, id)
			continue
		}
		s.rdb.SRem(ctx, scannerActiveSet, id)
	}
	return live, nil
}

// Lock is a renewable leader lock, acquired with SET NX EX (spec.md
// §9: enforces the Order-Executor singleton constraint).
type Lock struct {
	store *Store
	key   string
	token string
}

// AcquireLock attempts to become leader under key for ttl. ok is false
// if another holder currently owns it.
func (s *Store) AcquireLock(ctx context.Context, key, token string, ttl time.Duration) (*Lock, bool, error) {
	ok, err := s.rdb.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, false, xerr.Wrap(xerr.TransientExchange, "acquire lock %s: %v", key, err)
	}
	if !ok {
		return nil, false, nil
	}
	return &Lock{store: s, key: key, token: token}, true, nil
}

// Renew extends the lock's TTL if this holder's token is still
// current; returns false if the lock was lost (e.g. to a GC sweep).
func (l *Lock) Renew(ctx context.Context, ttl time.Duration) (bool, error) {
	current, err := l.store.rdb.Get(ctx, l.key).Result()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, xerr.Wrap(xerr.TransientExchange, "renew lock %s: %v", l.key, err)
	}
	if current != l.token {
		return false, nil
	}
	if err := l.store.rdb.Expire(ctx, l.key, ttl).Err(); err != nil {
		return false, xerr.Wrap(xerr.TransientExchange, "expire lock %s: %v", l.key, err)
	}
	return true, nil
}

// Release gives up the lock, but only if this holder still owns it.
func (l *Lock) Release(ctx context.Context) error {
	current, err := l.store.rdb.Get(ctx, l.key).Result()
	if err == redis.Nil {
		return nil
	}
	if err != nil {
		return xerr.Wrap(xerr.TransientExchange, "release lock %s: %v", l.key, err)
	}
	if current != l.token {
		return nil
	}
	return l.store.rdb.Del(ctx, l.key).Err()
}
