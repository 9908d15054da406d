// Copyright (c) 2026 Tessera. All rights reserved.
// Author: tessera.reads@gmail.com

package crawler_test

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
	"github.com/tessera-app/tessera/internal/crawler"
	"github.com/tessera-app/tessera/internal/jobs"
	"github.com/tessera-app/tessera/internal/platform/apperr"
	"github.com/tessera-app/tessera/internal/platform/config"
	"github.com/tessera-app/tessera/internal/platform/constants"
	"github.com/tessera-app/tessera/internal/platform/dlock"
)

// fakeAdapter returns a canned result or error and counts fetches.
type fakeAdapter struct {
	name    string
	result  *crawler.Result
	err     error
	fetches int
}

func (f *fakeAdapter) Name() string { return f.name }

func (f *fakeAdapter) Fetch(context.Context, catalog.SeriesSource) (*crawler.Result, error) {
	f.fetches++
	return f.result, f.err
}

// fakeSourceStore records poll bookkeeping in memory.
type fakeSourceStore struct {
	source    *catalog.SeriesSource
	failures  int
	demotedAt []time.Time
	successAt []time.Time
	nextAt    []time.Time
}

func (f *fakeSourceStore) GetSourceByID(context.Context, string) (*catalog.SeriesSource, error) {
	source := *f.source
	return &source, nil
}

func (f *fakeSourceStore) RecordPollSuccess(_ context.Context, _ string, polledAt, nextCheckAt time.Time) error {
	f.successAt = append(f.successAt, polledAt)
	f.nextAt = append(f.nextAt, nextCheckAt)
	return nil
}

func (f *fakeSourceStore) IncrementFailure(context.Context, string) (int, error) {
	f.failures++
	return f.failures, nil
}

func (f *fakeSourceStore) DemoteSource(_ context.Context, _ string, nextCheckAt time.Time) error {
	f.demotedAt = append(f.demotedAt, nextCheckAt)
	return nil
}

// fakeCrawlQueue records scheduled follow-up jobs.
type fakeCrawlQueue struct {
	ingests      []jobs.IngestPayload
	canonicalize []jobs.CanonicalizePayload
}

func (f *fakeCrawlQueue) EnqueueIngest(_ context.Context, payload jobs.IngestPayload) (bool, error) {
	f.ingests = append(f.ingests, payload)
	return true, nil
}

func (f *fakeCrawlQueue) EnqueueCanonicalize(_ context.Context, payload jobs.CanonicalizePayload) (bool, error) {
	f.canonicalize = append(f.canonicalize, payload)
	return true, nil
}

func pollerConfig() *config.Config {
	return &config.Config{
		// A tight token interval keeps repeated polls in one test fast.
		PollPerSourcePerMinute: 6000,
		SourceFailureThreshold: 2,
		SourceCooldown:         6 * time.Hour,
		SourceBlockCooldown:    24 * time.Hour,
		HotCheckInterval:       15 * time.Minute,
		ColdCheckInterval:      6 * time.Hour,
	}
}

func newTestPoller(t *testing.T, store *fakeSourceStore, adapter *fakeAdapter,
	cfg *config.Config) (*crawler.Poller, *fakeCrawlQueue, *dlock.Window) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	queue := &fakeCrawlQueue{}
	window := dlock.NewWindow(client, "test")
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	poller := crawler.NewPoller(store, []crawler.Adapter{adapter}, window, queue, cfg, logger)
	return poller, queue, window
}

func hotSource() *catalog.SeriesSource {
	return &catalog.SeriesSource{
		ID:         "src-1",
		SeriesID:   "series-1",
		SourceName: "mangadex",
		SourceID:   "md-1",
		IsActive:   true,
		Priority:   constants.PriorityHot,
	}
}

/*
TestPoll_SuccessFansOut verifies a successful fetch enqueues one ingest per
chapter, folds refreshed metadata into canonicalization, and reschedules the
source on its hot interval.
*/
func TestPoll_SuccessFansOut(t *testing.T) {
	adapter := &fakeAdapter{name: "mangadex", result: &crawler.Result{
		Series: &crawler.ScrapedSeries{Title: "Solo Leveling"},
		Chapters: []crawler.ScrapedChapter{
			{Number: 11, URL: "https://example.test/11"},
			{Number: 12, URL: "https://example.test/12"},
		},
	}}
	store := &fakeSourceStore{source: hotSource()}
	poller, queue, _ := newTestPoller(t, store, adapter, pollerConfig())

	require.NoError(t, poller.Poll(context.Background(), jobs.PollPayload{SeriesSourceID: "src-1"}))

	require.Len(t, queue.ingests, 2)
	assert.Equal(t, "series-1", queue.ingests[0].SeriesID)
	assert.Equal(t, 11.0, queue.ingests[0].ChapterNumber)
	assert.False(t, queue.ingests[0].IsRecovery)

	require.Len(t, queue.canonicalize, 1)
	assert.Equal(t, "Solo Leveling", queue.canonicalize[0].Title)

	require.Len(t, store.nextAt, 1)
	assert.WithinDuration(t, time.Now().Add(15*time.Minute), store.nextAt[0], time.Minute,
		"hot sources come back on the short interval")
}

/*
TestPoll_RecoveryFlagPropagates verifies recovery polls mark their ingests
so the gap check is not re-entered downstream.
*/
func TestPoll_RecoveryFlagPropagates(t *testing.T) {
	adapter := &fakeAdapter{name: "mangadex", result: &crawler.Result{
		Chapters: []crawler.ScrapedChapter{{Number: 3, URL: "https://example.test/3"}},
	}}
	store := &fakeSourceStore{source: hotSource()}
	poller, queue, _ := newTestPoller(t, store, adapter, pollerConfig())

	require.NoError(t, poller.Poll(context.Background(),
		jobs.PollPayload{SeriesSourceID: "src-1", IsRecovery: true}))

	require.Len(t, queue.ingests, 1)
	assert.True(t, queue.ingests[0].IsRecovery)
}

/*
TestPoll_BlockedSourceParksLong verifies an anti-bot response demotes the
source for the block cooldown and surfaces the error.
*/
func TestPoll_BlockedSourceParksLong(t *testing.T) {
	adapter := &fakeAdapter{name: "mangadex", err: apperr.SourceBlocked("mangadex", errors.New("unexpected status 403"))}
	store := &fakeSourceStore{source: hotSource()}
	poller, _, _ := newTestPoller(t, store, adapter, pollerConfig())

	err := poller.Poll(context.Background(), jobs.PollPayload{SeriesSourceID: "src-1"})
	require.Error(t, err)

	require.Len(t, store.demotedAt, 1)
	assert.WithinDuration(t, time.Now().Add(24*time.Hour), store.demotedAt[0], time.Minute)
	assert.Zero(t, store.failures, "blocks bypass the failure counter")
}

/*
TestPoll_FailureThresholdDemotes verifies consecutive transient failures
demote the source once the threshold is reached.
*/
func TestPoll_FailureThresholdDemotes(t *testing.T) {
	adapter := &fakeAdapter{name: "mangadex", err: apperr.SourceUnavailable("mangadex", errors.New("timeout"))}
	store := &fakeSourceStore{source: hotSource()}
	poller, _, _ := newTestPoller(t, store, adapter, pollerConfig())
	ctx := context.Background()

	require.Error(t, poller.Poll(ctx, jobs.PollPayload{SeriesSourceID: "src-1"}))
	assert.Empty(t, store.demotedAt, "first failure only counts")

	require.Error(t, poller.Poll(ctx, jobs.PollPayload{SeriesSourceID: "src-1"}))
	require.Len(t, store.demotedAt, 1)
	assert.WithinDuration(t, time.Now().Add(6*time.Hour), store.demotedAt[0], time.Minute)
}

/*
TestPoll_BreakerShedsAfterTrip verifies the circuit opens at the failure
threshold and subsequent polls drop without touching the adapter.
*/
func TestPoll_BreakerShedsAfterTrip(t *testing.T) {
	adapter := &fakeAdapter{name: "mangadex", err: apperr.SourceUnavailable("mangadex", errors.New("timeout"))}
	store := &fakeSourceStore{source: hotSource()}
	poller, _, _ := newTestPoller(t, store, adapter, pollerConfig())
	ctx := context.Background()

	require.Error(t, poller.Poll(ctx, jobs.PollPayload{SeriesSourceID: "src-1"}))
	require.Error(t, poller.Poll(ctx, jobs.PollPayload{SeriesSourceID: "src-1"}))
	require.Equal(t, 2, adapter.fetches)

	// Third attempt finds the circuit open: dropped quietly, no fetch.
	require.NoError(t, poller.Poll(ctx, jobs.PollPayload{SeriesSourceID: "src-1"}))
	assert.Equal(t, 2, adapter.fetches)
}

/*
TestPoll_SharedBudgetExhausted verifies the fleet-wide per-source ceiling
turns extra polls into a retryable overload.
*/
func TestPoll_SharedBudgetExhausted(t *testing.T) {
	adapter := &fakeAdapter{name: "mangadex", result: &crawler.Result{}}
	store := &fakeSourceStore{source: hotSource()}
	cfg := pollerConfig()
	cfg.PollPerSourcePerMinute = 1
	poller, _, window := newTestPoller(t, store, adapter, cfg)
	ctx := context.Background()

	// Another worker already spent this minute's budget.
	ok, err := window.Allow(ctx, "poll:mangadex", 1, time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	err = poller.Poll(ctx, jobs.PollPayload{SeriesSourceID: "src-1"})
	require.Error(t, err)
	ae := apperr.As(err)
	require.NotNil(t, ae)
	assert.Equal(t, "OVERLOADED", ae.Code)
	assert.Zero(t, adapter.fetches)
}

/*
TestPoll_InactiveSourceSkipped verifies a demoted source is dropped without
a fetch.
*/
func TestPoll_InactiveSourceSkipped(t *testing.T) {
	source := hotSource()
	source.IsActive = false
	adapter := &fakeAdapter{name: "mangadex", result: &crawler.Result{}}
	store := &fakeSourceStore{source: source}
	poller, queue, _ := newTestPoller(t, store, adapter, pollerConfig())

	require.NoError(t, poller.Poll(context.Background(), jobs.PollPayload{SeriesSourceID: "src-1"}))
	assert.Zero(t, adapter.fetches)
	assert.Empty(t, queue.ingests)
}
