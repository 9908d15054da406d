// Copyright (c) 2026 Tessera. All rights reserved.
// Author: tessera.reads@gmail.com

/*
Package constants provides centralized, immutable values for the entire platform.

It defines default timeouts, queue names, lock scopes, and cross-cutting keys
that are shared between different layers of the system.

Categories:

  - Server Timing: Read/Write/Idle timeouts for the ops HTTP server.
  - Queues: asynq queue names and per-type retry budgets.
  - Coordination: lock TTLs and Redis key taxonomy.

Using this package ensures Magic Strings and Magic Numbers are eliminated
from the business logic.
*/
package constants

import "time"

// # Metadata

const (
	AppName    = "tessera-worker"
	AppVersion = "0.3.0-dev"
)

// # Server Timing (ops endpoints)

const (
	// DefaultReadTimeout is the maximum duration for reading the entire request.
	DefaultReadTimeout = 5 * time.Second

	// DefaultWriteTimeout is the maximum duration before timing out writes of the response.
	DefaultWriteTimeout = 10 * time.Second

	// DefaultIdleTimeout is the maximum amount of time to wait for the next request.
	DefaultIdleTimeout = 120 * time.Second

	// DefaultReadHeaderTimeout is the amount of time allowed to read request headers.
	DefaultReadHeaderTimeout = 2 * time.Second

	// GlobalRequestTimeout is the deadline for the entire request lifecycle,
	// and the per-connection statement timeout baseline for PostgreSQL.
	GlobalRequestTimeout = 30 * time.Second

	// ShutdownTimeout is how long we wait for in-flight work during shutdown.
	ShutdownTimeout = 30 * time.Second
)

// # Queues
//
// The premium delivery lane is a separate queue consumed by its own pool so
// premium throughput is never starved by standard fan-out.

const (
	QueuePoll           = "poll"
	QueuePollLow        = "poll_low"
	QueueCanonicalize   = "canonicalize"
	QueueIngest         = "ingest"
	QueueGap            = "gap"
	QueueDispatch       = "dispatch"
	QueueDeliver        = "deliver"
	QueueDeliverPremium = "deliver_premium"
)

// # Retry Budgets

const (
	MaxRetryPoll     = 3
	MaxRetryIngest   = 5
	MaxRetryDispatch = 5
	MaxRetryDeliver  = 5
)

// # Coordination (locks, claims, windows)

const (
	// TitleLockTTL bounds canonicalization critical sections.
	TitleLockTTL = 15 * time.Second

	// ChapterLockTTL bounds one chapter ingest transaction.
	ChapterLockTTL = 15 * time.Second

	// LeaderLockTTL bounds one scheduler re-prioritization pass.
	LeaderLockTTL = 45 * time.Second

	// TitleLockKeyMax bounds lock keys derived from scraped titles.
	TitleLockKeyMax = 96

	// DispatchClaimTTL is the "already notified" marker lifetime for one
	// (series, chapter). Triggers inside the window collapse to a no-op.
	DispatchClaimTTL = 72 * time.Hour

	// DispatchBucket coarsens dispatch idempotency keys so retry bursts for
	// the same release collapse into one job.
	DispatchBucket = 10 * time.Minute

	// FeedWindow is the aggregation window for release feed entries.
	FeedWindow = 24 * time.Hour
)

// # Sync Priority Tiers

const (
	PriorityHot  = "hot"
	PriorityCold = "cold"
)

// # Notification

const (
	NotificationTypeNewChapter = "NEW_CHAPTER"

	// Notification priority is ordinal: 0 is the most important and replaces
	// any numerically higher (less important) row for the same chapter.
	NotifyPriorityHigh   = 0
	NotifyPriorityNormal = 1
	NotifyPriorityLow    = 2
)

// # Redis Key Taxonomy
//
// All keys are namespaced "tessera:{environment}:" by their owning component
// to avoid cross-deployment collisions.

const (
	RedisPrefixLock      = "lock:"
	RedisPrefixWindow    = "rl:"
	RedisPrefixClaim     = "claim:notified:"
	RedisPrefixThrottle  = "throttle:"
	RedisPrefixHeartbeat = "heartbeat:"

	// EventChannelSeries carries series-available events for the client
	// realtime layer.
	EventChannelSeries = "events:series"
)
