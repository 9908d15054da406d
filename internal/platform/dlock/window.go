// Copyright (c) 2026 Tessera. All rights reserved.
// Author: tessera.reads@gmail.com

package dlock

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/tessera-app/tessera/internal/platform/constants"
)

// Window is a fixed-window counter limiter shared across all workers.
//
// # Semantics
//
// Each (key, window bucket) pair maps to one Redis counter. The first
// increment arms the expiry; the caller is allowed while the post-increment
// count stays within the ceiling. Fixed windows admit up to 2× the ceiling
// across a boundary, which is acceptable for politeness limits and
// notification caps.
type Window struct {
	client    *redis.Client
	namespace string

	// now is injectable for tests; defaults to time.Now.
	now func() time.Time
}

// NewWindow creates a limiter whose keys are scoped to the given environment.
func NewWindow(client *redis.Client, environment string) *Window {
	return &Window{
		client:    client,
		namespace: "tessera:" + environment + ":" + constants.RedisPrefixWindow,
		now:       time.Now,
	}
}

// countScript increments the bucket and arms its expiry in one round trip,
// so a crash can never leave a counter without a TTL.
var countScript = redis.NewScript(`
local count = redis.call("INCR", KEYS[1])
if count == 1 then
	redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return count
`)

// Allow counts one event against the (key, window) bucket and reports
// whether the caller is within the limit.
func (w *Window) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	bucket := w.now().UnixMilli() / window.Milliseconds()
	redisKey := fmt.Sprintf("%s%s:%d", w.namespace, key, bucket)

	// A little slack past the window keeps the boundary race harmless.
	expiry := (window + time.Second).Milliseconds()
	count, err := countScript.Run(ctx, w.client, []string{redisKey}, expiry).Int64()
	if err != nil {
		return false, fmt.Errorf("dlock: window count %q: %w", key, err)
	}

	return count <= int64(limit), nil
}

// Peek reports the current count for the (key, window) bucket without
// incrementing it. Missing buckets count as zero.
func (w *Window) Peek(ctx context.Context, key string, window time.Duration) (int64, error) {
	bucket := w.now().UnixMilli() / window.Milliseconds()
	redisKey := fmt.Sprintf("%s%s:%d", w.namespace, key, bucket)

	count, err := w.client.Get(ctx, redisKey).Int64()
	if err != nil {
		if err == redis.Nil {
			return 0, nil
		}
		return 0, fmt.Errorf("dlock: window peek %q: %w", key, err)
	}
	return count, nil
}
