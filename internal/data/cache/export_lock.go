// Package cache holds the Redis-backed coordination primitives.
package cache

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/ledger-integrity-pipeline/internal/domain/export"
)

const exportLockPrefix = "export-lock:"

// releaseScript deletes the key only while it still holds our token, so an
// expired lock taken over by another export is never released by us.
const releaseScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`

// lockClient is the subset of *redis.Client the lock needs
type lockClient interface {
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
	Eval(ctx context.Context, script string, keys []string, args ...interface{}) *redis.Cmd
}

// ExportLock is an advisory lock that keeps two exports of the same tenant
// and range from running at once. Without a Redis client every Acquire
// succeeds.
type ExportLock struct {
	client lockClient
	ttl    time.Duration
	logger *slog.Logger
}

// NewExportLock creates the lock. client may be nil.
func NewExportLock(logger *slog.Logger, client *redis.Client, ttl time.Duration) *ExportLock {
	l := &ExportLock{ttl: ttl, logger: logger}
	if client != nil {
		l.client = client
	}
	return l
}

// ExportLockKey builds "export-lock:{tenant}:{from}:{to}" with dates as YYYYMMDD
func ExportLockKey(tenantID string, r export.DateRange) string {
	return fmt.Sprintf("%s%s:%s:%s", exportLockPrefix, tenantID, r.From.Format("20060102"), r.To.Format("20060102"))
}

// Acquire takes the lock for tenant and range. acquired is false when another
// export holds it. The returned release func is never nil.
func (l *ExportLock) Acquire(ctx context.Context, tenantID string, r export.DateRange) (func(context.Context) error, bool, error) {
	noop := func(context.Context) error { return nil }
	if l.client == nil {
		return noop, true, nil
	}

	key := ExportLockKey(tenantID, r)
	token := uuid.NewString()

	ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		l.logger.Error("Failed to acquire export lock", "key", key, "error", err)
		return noop, false, fmt.Errorf("failed to acquire export lock: %w", err)
	}
	if !ok {
		l.logger.Info("Export lock held elsewhere", "key", key)
		return noop, false, nil
	}

	release := func(ctx context.Context) error {
		if err := l.client.Eval(ctx, releaseScript, []string{key}, token).Err(); err != nil {
			l.logger.Warn("Failed to release export lock, it will expire", "key", key, "ttl", l.ttl, "error", err)
			return fmt.Errorf("failed to release export lock: %w", err)
		}
		return nil
	}
	return release, true, nil
}
