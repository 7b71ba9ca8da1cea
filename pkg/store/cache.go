package store

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache wraps a Redis-compatible client with the key-building and
// confidence-based TTL-tiering rules §4.F and §6 specify, and with
// fail-open semantics on every read and write (§4.F "fail-open on all
// reads and writes"). Grounded in the kubernaut pack's direct use of
// github.com/redis/go-redis/v9.
type Cache struct {
	rdb *redis.Client
}

// NewCache constructs a Cache over an already-configured redis.Client (a
// miniredis-backed client in tests, mined from the kubernaut pack).
func NewCache(rdb *redis.Client) *Cache {
	return &Cache{rdb: rdb}
}

// IOCKey builds the tenant-scoped IOC cache key (§6
// "ioc:{tenant}:{type}:{value}"). Every cross-tenant interface carries
// tenant_id (§3 invariant 6); this key shape is how that invariant is
// enforced for the IOC cache specifically.
func IOCKey(tenantID, iocType, value string) string {
	return fmt.Sprintf("ioc:%s:%s:%s", tenantID, iocType, value)
}

// FPKey builds the FP pattern cache key (§6 "fp:{pattern_id}"). FP
// patterns are intentionally globally scoped, not tenant-scoped -- a
// pattern's own `tenant_id` field (empty = any tenant) carries the scope
// instead (§3 invariant 6 "or is globally scoped (for FP)").
func FPKey(patternID string) string {
	return fmt.Sprintf("fp:%s", patternID)
}

// KillSwitchKey builds a kill-switch cache key (§6
// "kill_switch:{dimension}:{value}").
func KillSwitchKey(dimension, value string) string {
	return fmt.Sprintf("kill_switch:%s:%s", dimension, value)
}

// IOCConfidenceTTL maps an IOC's confidence score (0-100) to its cache TTL
// tier (§4.F, §8 boundary behaviors: "conf=81 -> 30d, conf=65 -> 7d,
// conf=30 -> 24h").
func IOCConfidenceTTL(confidence int) time.Duration {
	switch {
	case confidence > 80:
		return 30 * 24 * time.Hour
	case confidence >= 50:
		return 7 * 24 * time.Hour
	default:
		return 24 * time.Hour
	}
}

// SetIOC writes an IOC cache entry with the confidence-derived TTL,
// fail-open on error (logged, not returned, since a cache write failure
// must never block the investigation pipeline).
func (c *Cache) SetIOC(ctx context.Context, tenantID, iocType, value string, confidence int, payload []byte) {
	key := IOCKey(tenantID, iocType, value)
	if err := c.rdb.Set(ctx, key, payload, IOCConfidenceTTL(confidence)).Err(); err != nil {
		slog.Warn("store: IOC cache write failed (fail-open)", "key", key, "error", err)
	}
}

// GetIOC reads an IOC cache entry, fail-open: a Redis error is treated
// identically to a cache miss.
func (c *Cache) GetIOC(ctx context.Context, tenantID, iocType, value string) ([]byte, bool) {
	key := IOCKey(tenantID, iocType, value)
	v, err := c.rdb.Get(ctx, key).Bytes()
	if err != nil {
		if err != redis.Nil {
			slog.Warn("store: IOC cache read failed (fail-open, treated as miss)", "key", key, "error", err)
		}
		return nil, false
	}
	return v, true
}

// SetFPPattern caches a compiled FP pattern payload, no TTL (governance
// drives pattern lifecycle, not cache expiry).
func (c *Cache) SetFPPattern(ctx context.Context, patternID string, payload []byte) {
	key := FPKey(patternID)
	if err := c.rdb.Set(ctx, key, payload, 0).Err(); err != nil {
		slog.Warn("store: FP pattern cache write failed (fail-open)", "key", key, "error", err)
	}
}

// GetFPPattern reads a cached FP pattern, fail-open.
func (c *Cache) GetFPPattern(ctx context.Context, patternID string) ([]byte, bool) {
	v, err := c.rdb.Get(ctx, FPKey(patternID)).Bytes()
	if err != nil {
		return nil, false
	}
	return v, true
}

// InvalidateFPPattern overwrites the cache key so the next read fetches
// the latest governance state (§5 "updates invalidate via cache key
// overwrite").
func (c *Cache) InvalidateFPPattern(ctx context.Context, patternID string, payload []byte) {
	c.SetFPPattern(ctx, patternID, payload)
}

// SetKillSwitch writes a kill-switch state keyed by dimension+value.
func (c *Cache) SetKillSwitch(ctx context.Context, dimension, value string, payload []byte) error {
	if err := c.rdb.Set(ctx, KillSwitchKey(dimension, value), payload, 0).Err(); err != nil {
		return fmt.Errorf("store: kill switch write: %w", err)
	}
	return nil
}

// GetKillSwitch reads a kill-switch state, fail-open (absence of a
// reachable cache must never silently suppress the safety control it's
// asking about -- callers that can't reach the cache should treat it as
// "unknown" and let FP governance's own in-memory fallback decide, not as
// "switch is off").
func (c *Cache) GetKillSwitch(ctx context.Context, dimension, value string) ([]byte, bool) {
	v, err := c.rdb.Get(ctx, KillSwitchKey(dimension, value)).Bytes()
	if err != nil {
		return nil, false
	}
	return v, true
}

// ScanKillSwitches enumerates all active kill switches for a dimension,
// used to rebuild in-memory state after a restart (§4.F "a cache with TTL
// and key-scan").
func (c *Cache) ScanKillSwitches(ctx context.Context, dimension string) ([]string, error) {
	var keys []string
	iter := c.rdb.Scan(ctx, 0, fmt.Sprintf("kill_switch:%s:*", dimension), 100).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("store: scan kill switches: %w", err)
	}
	return keys, nil
}
