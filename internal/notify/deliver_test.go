// Copyright (c) 2026 Tessera. All rights reserved.
// Author: tessera.reads@gmail.com

package notify_test

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tessera-app/tessera/internal/catalog"
	"github.com/tessera-app/tessera/internal/jobs"
	"github.com/tessera-app/tessera/internal/notify"
	"github.com/tessera-app/tessera/internal/platform/apperr"
	"github.com/tessera-app/tessera/internal/platform/config"
	"github.com/tessera-app/tessera/internal/platform/dlock"
	"github.com/tessera-app/tessera/pkg/pointer"
)

// fakeStore is an in-memory notify.Store recording writes. Setting
// insertFailures makes that many BatchInsert calls fail transiently.
type fakeStore struct {
	existing       map[string]notify.Existing
	inserted       []notify.Notification
	deleted        []string
	insertFailures int
}

func (f *fakeStore) ListForChapter(context.Context, []string, string, float64) (map[string]notify.Existing, error) {
	if f.existing == nil {
		return map[string]notify.Existing{}, nil
	}
	return f.existing, nil
}

func (f *fakeStore) BatchInsert(_ context.Context, notifications []notify.Notification) error {
	if f.insertFailures > 0 {
		f.insertFailures--
		return errors.New("connection reset")
	}
	f.inserted = append(f.inserted, notifications...)
	return nil
}

func (f *fakeStore) BatchDelete(_ context.Context, ids []string) error {
	f.deleted = append(f.deleted, ids...)
	return nil
}

// fakeBacklog reports a fixed pending depth.
type fakeBacklog struct {
	pending int
}

func (f *fakeBacklog) PendingDeliveries(context.Context) (int, error) {
	return f.pending, nil
}

// fakeSeries serves one series.
type fakeSeries struct {
	series catalog.Series
}

func (f *fakeSeries) GetSeriesByID(context.Context, string) (*catalog.Series, error) {
	series := f.series
	return &series, nil
}

func testConfig() *config.Config {
	return &config.Config{
		NotifyHourlyCap:        10,
		NotifyDailyCap:         20,
		NotifyDailyCapPrime:    200,
		BacklogSoftCeiling:     1000,
		BacklogCriticalCeiling: 5000,
		BacklogHardCeiling:     10000,
		BacklogSoftDelay:       time.Millisecond,
		DeliverChunkSize:       2,
		DeliverChunkWorkers:    2,
	}
}

func newTestDeliverer(t *testing.T, store *fakeStore, backlog *fakeBacklog) *notify.Deliverer {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	cfg := testConfig()
	throttler := notify.NewThrottler(client, "test", dlock.NewWindow(client, "test"),
		cfg.NotifyHourlyCap, cfg.NotifyDailyCap, cfg.NotifyDailyCapPrime)
	series := &fakeSeries{series: catalog.Series{ID: "series-1", Title: "Solo Leveling"}}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	return notify.NewDeliverer(store, throttler, backlog, series, cfg, logger)
}

func deliverPayload(userIDs ...string) jobs.DeliverPayload {
	return jobs.DeliverPayload{
		SeriesID:        "series-1",
		SourceID:        "src-1",
		SourceName:      pointer.To("MangaDex"),
		ChapterNumber:   12,
		NewChapterCount: 1,
		RecipientIDs:    userIDs,
		Priority:        1,
	}
}

/*
TestDeliver_CreatesNotifications verifies the happy path produces one row
per recipient with full content.
*/
func TestDeliver_CreatesNotifications(t *testing.T) {
	store := &fakeStore{}
	deliverer := newTestDeliverer(t, store, &fakeBacklog{})

	require.NoError(t, deliverer.Deliver(context.Background(), deliverPayload("u1", "u2", "u3")))

	require.Len(t, store.inserted, 3)
	assert.Empty(t, store.deleted)

	row := store.inserted[0]
	assert.Equal(t, "Solo Leveling", row.Title)
	assert.Contains(t, row.Body, "Chapter 12")
	assert.Contains(t, row.Body, "MangaDex")
	assert.Equal(t, "12", row.Metadata["chapter_number"])
	assert.Equal(t, "src-1", row.Metadata["source_id"])
}

/*
TestDeliver_PriorityDedup verifies an existing equal-or-better notification
suppresses the new one, while a worse one is superseded.
*/
func TestDeliver_PriorityDedup(t *testing.T) {
	store := &fakeStore{existing: map[string]notify.Existing{
		"kept":     {ID: "n-kept", Priority: 0},
		"replaced": {ID: "n-old", Priority: 2},
	}}
	deliverer := newTestDeliverer(t, store, &fakeBacklog{})

	require.NoError(t, deliverer.Deliver(context.Background(), deliverPayload("kept", "replaced")))

	require.Len(t, store.inserted, 1, "only the superseded recipient gets a new row")
	assert.Equal(t, "replaced", store.inserted[0].UserID)
	assert.Equal(t, []string{"n-old"}, store.deleted)
}

/*
TestDeliver_SeriesHourThrottle verifies a second chapter within the hour is
suppressed for recipients already notified about the series.
*/
func TestDeliver_SeriesHourThrottle(t *testing.T) {
	store := &fakeStore{}
	deliverer := newTestDeliverer(t, store, &fakeBacklog{})
	ctx := context.Background()

	require.NoError(t, deliverer.Deliver(ctx, deliverPayload("u1")))
	require.Len(t, store.inserted, 1)

	next := deliverPayload("u1")
	next.ChapterNumber = 13
	require.NoError(t, deliverer.Deliver(ctx, next))
	assert.Len(t, store.inserted, 1, "same series within the hour stays quiet")
}

/*
TestDeliver_RetryAfterInsertFailure verifies a transient storage failure
does not drop the batch: the queue's retry is re-admitted through the
throttle and the notification still lands.
*/
func TestDeliver_RetryAfterInsertFailure(t *testing.T) {
	store := &fakeStore{insertFailures: 1}
	deliverer := newTestDeliverer(t, store, &fakeBacklog{})
	ctx := context.Background()

	require.Error(t, deliverer.Deliver(ctx, deliverPayload("u1")), "first attempt hits the storage blip")
	require.Empty(t, store.inserted)

	require.NoError(t, deliverer.Deliver(ctx, deliverPayload("u1")))
	assert.Len(t, store.inserted, 1, "retry converges instead of being throttled away")
}

/*
TestDeliver_LiteMode verifies a critical backlog strips notifications down
to generic content while keeping the dedup key.
*/
func TestDeliver_LiteMode(t *testing.T) {
	store := &fakeStore{}
	deliverer := newTestDeliverer(t, store, &fakeBacklog{pending: 5001})

	require.NoError(t, deliverer.Deliver(context.Background(), deliverPayload("u1")))

	require.Len(t, store.inserted, 1)
	row := store.inserted[0]
	assert.Equal(t, "New chapter available", row.Title)
	assert.NotContains(t, row.Body, "Solo Leveling")
	assert.Equal(t, "12", row.Metadata["chapter_number"])
	assert.NotContains(t, row.Metadata, "source_id", "lite payloads carry no source detail")
}

/*
TestDeliver_HardShed verifies standard batches are rejected retryably over
the hard ceiling while premium batches still land.
*/
func TestDeliver_HardShed(t *testing.T) {
	store := &fakeStore{}
	deliverer := newTestDeliverer(t, store, &fakeBacklog{pending: 10001})
	ctx := context.Background()

	err := deliverer.Deliver(ctx, deliverPayload("u1"))
	require.Error(t, err)
	ae := apperr.As(err)
	require.NotNil(t, ae)
	assert.Equal(t, "OVERLOADED", ae.Code)
	assert.True(t, ae.Retryable)
	assert.Empty(t, store.inserted)

	premium := deliverPayload("p1")
	premium.IsPremium = true
	require.NoError(t, deliverer.Deliver(ctx, premium))
	assert.Len(t, store.inserted, 1, "premium is never shed")
}
