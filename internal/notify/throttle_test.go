// Copyright (c) 2026 Tessera. All rights reserved.
// Author: tessera.reads@gmail.com

package notify_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tessera-app/tessera/internal/notify"
	"github.com/tessera-app/tessera/internal/platform/dlock"
)

func newTestThrottler(t *testing.T, hourly, daily, dailyPremium int) *notify.Throttler {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return notify.NewThrottler(client, "test", dlock.NewWindow(client, "test"),
		hourly, daily, dailyPremium)
}

/*
TestThrottler_SeriesHourWindow verifies at most one notification per
(user, series) per hour, independent across series.
*/
func TestThrottler_SeriesHourWindow(t *testing.T) {
	throttler := newTestThrottler(t, 10, 100, 100)
	ctx := context.Background()

	reason, err := throttler.Admit(ctx, "u1", "s1", "10", false)
	require.NoError(t, err)
	assert.Empty(t, reason)

	// The next chapter of the same series within the hour stays quiet.
	reason, err = throttler.Admit(ctx, "u1", "s1", "11", false)
	require.NoError(t, err)
	assert.Equal(t, notify.ReasonSeriesHour, reason)

	// A different series for the same user is unaffected.
	reason, err = throttler.Admit(ctx, "u1", "s2", "1", false)
	require.NoError(t, err)
	assert.Empty(t, reason)
}

/*
TestThrottler_ReplayedChapterStaysAdmitted verifies an admit is idempotent
per (user, series, chapter): a delivery retry after a failed persist is let
through instead of consumed against the windows again.
*/
func TestThrottler_ReplayedChapterStaysAdmitted(t *testing.T) {
	throttler := newTestThrottler(t, 10, 100, 100)
	ctx := context.Background()

	reason, err := throttler.Admit(ctx, "u1", "s1", "10", false)
	require.NoError(t, err)
	require.Empty(t, reason)

	// Same chapter again: admitted, not series_hour suppressed.
	reason, err = throttler.Admit(ctx, "u1", "s1", "10", false)
	require.NoError(t, err)
	assert.Empty(t, reason)

	// A genuinely new chapter still hits the series-hour ceiling.
	reason, err = throttler.Admit(ctx, "u1", "s1", "11", false)
	require.NoError(t, err)
	assert.Equal(t, notify.ReasonSeriesHour, reason)
}

/*
TestThrottler_HourlyCap verifies the per-user hourly ceiling across
distinct series.
*/
func TestThrottler_HourlyCap(t *testing.T) {
	throttler := newTestThrottler(t, 2, 100, 100)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		reason, err := throttler.Admit(ctx, "u1", fmt.Sprintf("s%d", i), "1", false)
		require.NoError(t, err)
		require.Empty(t, reason)
	}

	reason, err := throttler.Admit(ctx, "u1", "s9", "1", false)
	require.NoError(t, err)
	assert.Equal(t, notify.ReasonHourlyCap, reason)

	// Another user is unaffected.
	reason, err = throttler.Admit(ctx, "u2", "s9", "1", false)
	require.NoError(t, err)
	assert.Empty(t, reason)
}

/*
TestThrottler_DailyCapPremium verifies premium accounts run against the
higher daily ceiling.
*/
func TestThrottler_DailyCapPremium(t *testing.T) {
	throttler := newTestThrottler(t, 100, 2, 5)
	ctx := context.Background()

	// Standard user hits the daily cap after two.
	for i := 0; i < 2; i++ {
		reason, err := throttler.Admit(ctx, "std", fmt.Sprintf("s%d", i), "1", false)
		require.NoError(t, err)
		require.Empty(t, reason)
	}
	reason, err := throttler.Admit(ctx, "std", "s9", "1", false)
	require.NoError(t, err)
	assert.Equal(t, notify.ReasonDailyCap, reason)

	// A premium user still has headroom at the same volume.
	for i := 0; i < 3; i++ {
		reason, err := throttler.Admit(ctx, "prime", fmt.Sprintf("s%d", i), "1", true)
		require.NoError(t, err)
		require.Empty(t, reason, "premium admit %d", i+1)
	}
}
