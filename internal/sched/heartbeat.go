// Copyright (c) 2026 Tessera. All rights reserved.
// Author: tessera.reads@gmail.com

package sched

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/tessera-app/tessera/internal/platform/constants"
)

// Heartbeat publishes this worker's liveness into the shared store with a
// TTL, so ops tooling can see which instances are alive without any
// registry.
type Heartbeat struct {
	client   *redis.Client
	key      string
	instance string
	ttl      time.Duration
}

// NewHeartbeat creates the heartbeat for one worker instance.
func NewHeartbeat(client *redis.Client, environment, instance string, ttl time.Duration) *Heartbeat {
	return &Heartbeat{
		client:   client,
		key:      "tessera:" + environment + ":" + constants.RedisPrefixHeartbeat + instance,
		instance: instance,
		ttl:      ttl,
	}
}

type heartbeatPayload struct {
	Timestamp time.Time `json:"timestamp"`
	Instance  string    `json:"instance"`
	Hostname  string    `json:"hostname"`
	PID       int       `json:"pid"`
}

// Beat refreshes the liveness record. A worker that stops beating simply
// disappears after the TTL.
func (heartbeat *Heartbeat) Beat(ctx context.Context) error {
	hostname, _ := os.Hostname()
	payload, err := json.Marshal(heartbeatPayload{
		Timestamp: time.Now().UTC(),
		Instance:  heartbeat.instance,
		Hostname:  hostname,
		PID:       os.Getpid(),
	})
	if err != nil {
		return fmt.Errorf("sched: encode heartbeat: %w", err)
	}

	if err := heartbeat.client.Set(ctx, heartbeat.key, payload, heartbeat.ttl).Err(); err != nil {
		return fmt.Errorf("sched: write heartbeat: %w", err)
	}
	return nil
}
