// Copyright (c) 2026 Tessera. All rights reserved.
// Author: tessera.reads@gmail.com

/*
Package dlock provides the shared-store coordination primitives used by every
pipeline component: mutual-exclusion leases and fixed-window rate limiters,
keyed by resource name.

Architecture:

  - Leases: atomic SET-NX with a TTL and a random owner token. Release and
    renewal only act when the stored token still matches the caller's, so a
    lock inherited by a new holder after expiry is never released by the old
    one.
  - Windows: a single script increments the bucket and arms its expiry; the
    caller is allowed if the post-increment count is within the ceiling.
  - Namespacing: all keys are scoped "tessera:{environment}:" to avoid
    cross-deployment collisions.

A lock that cannot be acquired means someone else is handling the resource;
callers treat [ErrNotAcquired] as "do not proceed", not as a failure.
*/
package dlock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/tessera-app/tessera/internal/platform/constants"
	"github.com/tessera-app/tessera/pkg/uuidv7"
)

// ErrNotAcquired is returned when the lock is currently held elsewhere.
var ErrNotAcquired = errors.New("dlock: lock not acquired")

// releaseScript deletes the lock only if the caller still owns it.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// renewScript extends the lease only if the caller still owns it.
var renewScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

// Locker hands out expiring mutual-exclusion leases.
type Locker struct {
	client    *redis.Client
	namespace string
}

// NewLocker creates a Locker whose keys are scoped to the given environment.
func NewLocker(client *redis.Client, environment string) *Locker {
	return &Locker{
		client:    client,
		namespace: "tessera:" + environment + ":" + constants.RedisPrefixLock,
	}
}

// Acquire attempts to take the named lock for at most ttl.
//
// It returns [ErrNotAcquired] when another holder owns the key. The TTL
// guarantees crash-safety: a dead holder's lease simply expires.
func (locker *Locker) Acquire(ctx context.Context, key string, ttl time.Duration) (*Lease, error) {
	token := uuidv7.New()
	redisKey := locker.namespace + key

	acquired, err := locker.client.SetNX(ctx, redisKey, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("dlock: acquire %q: %w", key, err)
	}
	if !acquired {
		return nil, ErrNotAcquired
	}

	return &Lease{
		client: locker.client,
		key:    redisKey,
		token:  token,
		ttl:    ttl,
	}, nil
}

// Lease is an owned, expiring lock. It must be released by its holder.
type Lease struct {
	client *redis.Client
	key    string
	token  string
	ttl    time.Duration
}

// Release frees the lock if — and only if — this lease still owns it.
//
// Releasing an expired lease that has since been re-acquired by another
// holder is a silent no-op.
func (lease *Lease) Release(ctx context.Context) error {
	if err := releaseScript.Run(ctx, lease.client, []string{lease.key}, lease.token).Err(); err != nil {
		return fmt.Errorf("dlock: release %q: %w", lease.key, err)
	}
	return nil
}

// Extend pushes the lease expiry out by the original TTL, failing silently
// if ownership was lost.
func (lease *Lease) Extend(ctx context.Context) error {
	renewed, err := renewScript.Run(ctx, lease.client, []string{lease.key}, lease.token, lease.ttl.Milliseconds()).Int()
	if err != nil {
		return fmt.Errorf("dlock: extend %q: %w", lease.key, err)
	}
	if renewed == 0 {
		return ErrNotAcquired
	}
	return nil
}

// KeepAlive starts a periodic renewal task owned by this lease.
//
// The returned stop function cancels renewal deterministically; it must be
// called (or ctx cancelled) before Release. Renewal stops on its own if
// ownership is lost.
func (lease *Lease) KeepAlive(ctx context.Context, interval time.Duration) (stop func()) {
	renewCtx, cancel := context.WithCancel(ctx)

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-renewCtx.Done():
				return
			case <-ticker.C:
				if err := lease.Extend(renewCtx); err != nil {
					// Lost ownership or store unreachable; either way the
					// holder must not assume exclusivity past the last TTL.
					return
				}
			}
		}
	}()

	return cancel
}
