// Copyright (c) 2026 Tessera. All rights reserved.
// Author: tessera.reads@gmail.com

package canonical

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/tessera-app/tessera/internal/catalog"
	"github.com/tessera-app/tessera/internal/platform/constants"
)

// RedisEventPublisher pushes series-available events onto a Redis pub/sub
// channel consumed by the client realtime layer.
type RedisEventPublisher struct {
	client    *redis.Client
	channel   string
	publisher string
}

// NewRedisEventPublisher creates the publisher for one environment.
func NewRedisEventPublisher(client *redis.Client, environment, instance string) *RedisEventPublisher {
	return &RedisEventPublisher{
		client:    client,
		channel:   "tessera:" + environment + ":" + constants.EventChannelSeries,
		publisher: instance,
	}
}

// seriesAvailableEvent is the wire shape of one event.
type seriesAvailableEvent struct {
	Event      string    `json:"event"`
	SeriesID   string    `json:"series_id"`
	Title      string    `json:"title"`
	SourceName string    `json:"source_name"`
	SourceURL  string    `json:"source_url"`
	Publisher  string    `json:"publisher"`
	At         time.Time `json:"at"`
}

// SeriesAvailable implements [EventPublisher].
func (p *RedisEventPublisher) SeriesAvailable(ctx context.Context, series *catalog.Series, source *catalog.SeriesSource) error {
	payload, err := json.Marshal(seriesAvailableEvent{
		Event:      "series_available",
		SeriesID:   series.ID,
		Title:      series.Title,
		SourceName: source.SourceName,
		SourceURL:  source.SourceURL,
		Publisher:  p.publisher,
		At:         time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("canonical: encode series event: %w", err)
	}

	if err := p.client.Publish(ctx, p.channel, payload).Err(); err != nil {
		return fmt.Errorf("canonical: publish series event: %w", err)
	}
	return nil
}
