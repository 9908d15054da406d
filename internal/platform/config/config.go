// Copyright (c) 2026 Tessera. All rights reserved.
// Author: tessera.reads@gmail.com

/*
Package config handles application-wide settings and environment parsing.

It leverages 'caarlos0/env' to map OS environment variables into a strongly-typed
Go struct, providing early validation and default values.

Usage:

	cfg, err := config.Load()
	if err != nil {
	    log.Fatal(err)
	}

Architecture:

  - Immutability: Once loaded, configuration is read-only.
  - DI-Friendly: Passed to core components (DB, Redis, queues) via constructors.
  - Zero Hidden State: No global variables are used to store config.

This ensures the worker is Twelve-Factor compliant by storing config in the env.
*/
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// # Configuration Schema

// Config holds all runtime configuration for the Tessera worker.
type Config struct {

	// Process settings
	OpsPort     string `env:"OPS_PORT"     envDefault:"8081"`
	Environment string `env:"ENVIRONMENT"  envDefault:"development"`
	Debug       bool   `env:"DEBUG"        envDefault:"false"`

	// Relational Database (PostgreSQL)
	DatabaseURL string `env:"DATABASE_URL,required"`

	// MigrationPath is the filesystem path to the SQL migrations directory.
	MigrationPath string `env:"MIGRATION_PATH" envDefault:"./data/migrations"`

	// Key-Value Store (Redis) — locks, limiters, dedup claims, job queues
	RedisURL string `env:"REDIS_URL,required"`

	// Queue lane concurrency. The premium delivery lane runs its own consumer
	// pool with a much higher ceiling than everything else.
	StandardConcurrency int `env:"STANDARD_CONCURRENCY" envDefault:"20"`
	PremiumConcurrency  int `env:"PREMIUM_CONCURRENCY"  envDefault:"50"`

	// Source polling
	PollPerSourcePerMinute int           `env:"POLL_PER_SOURCE_PER_MINUTE" envDefault:"10"`
	SourceFailureThreshold int           `env:"SOURCE_FAILURE_THRESHOLD"   envDefault:"5"`
	SourceCooldown         time.Duration `env:"SOURCE_COOLDOWN"            envDefault:"6h"`
	SourceBlockCooldown    time.Duration `env:"SOURCE_BLOCK_COOLDOWN"      envDefault:"24h"`
	HotCheckInterval       time.Duration `env:"HOT_CHECK_INTERVAL"         envDefault:"15m"`
	ColdCheckInterval      time.Duration `env:"COLD_CHECK_INTERVAL"        envDefault:"6h"`
	HotIdleWindow          time.Duration `env:"HOT_IDLE_WINDOW"            envDefault:"48h"`

	// Scheduler / heartbeat
	SchedulerInterval time.Duration `env:"SCHEDULER_INTERVAL" envDefault:"1m"`
	SchedulerBatch    int           `env:"SCHEDULER_BATCH"    envDefault:"50"`
	HeartbeatTTL      time.Duration `env:"HEARTBEAT_TTL"      envDefault:"30s"`

	// Notification throttling ceilings
	NotifyHourlyCap     int `env:"NOTIFY_HOURLY_CAP"      envDefault:"10"`
	NotifyDailyCap      int `env:"NOTIFY_DAILY_CAP"       envDefault:"20"`
	NotifyDailyCapPrime int `env:"NOTIFY_DAILY_CAP_PRIME" envDefault:"200"`

	// Delivery backlog degradation ceilings (pending deliver jobs).
	// soft < critical < hard: soft adds delay, critical switches to lite
	// mode, hard rejects non-premium batches outright.
	BacklogSoftCeiling     int           `env:"BACKLOG_SOFT_CEILING"     envDefault:"1000"`
	BacklogCriticalCeiling int           `env:"BACKLOG_CRITICAL_CEILING" envDefault:"5000"`
	BacklogHardCeiling     int           `env:"BACKLOG_HARD_CEILING"     envDefault:"10000"`
	BacklogSoftDelay       time.Duration `env:"BACKLOG_SOFT_DELAY"       envDefault:"2s"`

	// Recipient fan-out chunking
	DeliverChunkSize    int `env:"DELIVER_CHUNK_SIZE"    envDefault:"50"`
	DeliverChunkWorkers int `env:"DELIVER_CHUNK_WORKERS" envDefault:"4"`
}

// # Configuration Loading

// Load parses environment variables into a [Config] struct.
func Load() (*Config, error) {

	// Initialize an empty config struct
	cfg := &Config{}

	// Use the 'env' package to map environment variables to struct fields.
	// This will fail if any field marked with 'required' is missing.
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("config: failed to parse environment variables: %w", err)
	}

	return cfg, nil
}

// IsDevelopment reports whether the worker is running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// IsProduction reports whether the worker is running in production mode.
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}
