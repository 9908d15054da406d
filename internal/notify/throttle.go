// Copyright (c) 2026 Tessera. All rights reserved.
// Author: tessera.reads@gmail.com

package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/tessera-app/tessera/internal/platform/constants"
	"github.com/tessera-app/tessera/internal/platform/dlock"
)

// Throttle reasons, also used as suppression metric labels.
const (
	ReasonSeriesHour = "series_hour"
	ReasonHourlyCap  = "hourly_cap"
	ReasonDailyCap   = "daily_cap"
)

// admitMarkerTTL covers the longest window an admit consumes, so a replayed
// delivery attempt stays admitted for as long as its counts linger.
const admitMarkerTTL = 24 * time.Hour

// Throttler enforces the per-user notification ceilings on the shared
// fixed-window limiter, so the caps hold across all workers.
//
// Admits are idempotent per (user, series, chapter): the first admission
// consumes the windows and leaves a marker, and a retry of the same chapter
// after a failed persist is waved through instead of counted again.
type Throttler struct {
	client          *redis.Client
	window          *dlock.Window
	namespace       string
	hourlyCap       int
	dailyCap        int
	dailyCapPremium int
}

// NewThrottler wires the throttler with the configured ceilings.
func NewThrottler(client *redis.Client, environment string, window *dlock.Window,
	hourlyCap, dailyCap, dailyCapPremium int) *Throttler {
	return &Throttler{
		client:          client,
		window:          window,
		namespace:       "tessera:" + environment + ":" + constants.RedisPrefixThrottle,
		hourlyCap:       hourlyCap,
		dailyCap:        dailyCap,
		dailyCapPremium: dailyCapPremium,
	}
}

// Admit checks one candidate notification against the ceilings, tightest
// scope first. The empty reason means admitted.
func (throttler *Throttler) Admit(ctx context.Context, userID, seriesID, chapterKey string, isPremium bool) (string, error) {
	marker := throttler.namespace + userID + ":" + seriesID + ":" + chapterKey

	seen, err := throttler.client.Exists(ctx, marker).Result()
	if err != nil {
		return "", fmt.Errorf("notify: admit marker check: %w", err)
	}
	if seen > 0 {
		// A previous attempt for this exact chapter already consumed the
		// windows; the persist must have failed. Let the retry through.
		return "", nil
	}

	// At most one notification per (user, series) per hour: binge drops and
	// multi-source races collapse to one ping.
	ok, err := throttler.window.Allow(ctx, "notify:series:"+userID+":"+seriesID, 1, time.Hour)
	if err != nil {
		return "", err
	}
	if !ok {
		return ReasonSeriesHour, nil
	}

	ok, err = throttler.window.Allow(ctx, "notify:hour:"+userID, throttler.hourlyCap, time.Hour)
	if err != nil {
		return "", err
	}
	if !ok {
		return ReasonHourlyCap, nil
	}

	dailyCap := throttler.dailyCap
	if isPremium {
		dailyCap = throttler.dailyCapPremium
	}
	ok, err = throttler.window.Allow(ctx, "notify:day:"+userID, dailyCap, 24*time.Hour)
	if err != nil {
		return "", err
	}
	if !ok {
		return ReasonDailyCap, nil
	}

	if err := throttler.client.Set(ctx, marker, "1", admitMarkerTTL).Err(); err != nil {
		return "", fmt.Errorf("notify: admit marker set: %w", err)
	}
	return "", nil
}
