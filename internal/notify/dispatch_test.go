// Copyright (c) 2026 Tessera. All rights reserved.
// Author: tessera.reads@gmail.com

package notify_test

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tessera-app/tessera/internal/jobs"
	"github.com/tessera-app/tessera/internal/notify"
	"github.com/tessera-app/tessera/internal/platform/constants"
)

// fakeResolver returns a fixed audience and counts calls.
type fakeResolver struct {
	recipients notify.Recipients
	calls      int
}

func (f *fakeResolver) Resolve(context.Context, string) (*notify.Recipients, error) {
	f.calls++
	recipients := f.recipients
	return &recipients, nil
}

// fakeDeliverQueue records deliver payloads and can fail on demand.
type fakeDeliverQueue struct {
	payloads []jobs.DeliverPayload
	fail     bool
}

func (f *fakeDeliverQueue) EnqueueDeliver(_ context.Context, payload jobs.DeliverPayload) (bool, error) {
	if f.fail {
		return false, errors.New("queue down")
	}
	f.payloads = append(f.payloads, payload)
	return true, nil
}

func newTestDispatcher(t *testing.T, resolver *fakeResolver, queue *fakeDeliverQueue) *notify.Dispatcher {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	return notify.NewDispatcher(client, resolver, queue, "test", logger)
}

func dispatchPayload(sourceID string) jobs.DispatchPayload {
	return jobs.DispatchPayload{
		SeriesID:           "series-1",
		TriggeringSourceID: sourceID,
		ChapterNumber:      12,
		NewChapterCount:    1,
	}
}

/*
TestDispatch_TriggersCollapseToOne verifies that multiple sources reporting
the same chapter produce exactly one fan-out.
*/
func TestDispatch_TriggersCollapseToOne(t *testing.T) {
	resolver := &fakeResolver{recipients: notify.Recipients{
		Standard: []string{"u1", "u2"},
		Premium:  []string{"p1"},
	}}
	queue := &fakeDeliverQueue{}
	dispatcher := newTestDispatcher(t, resolver, queue)
	ctx := context.Background()

	require.NoError(t, dispatcher.Dispatch(ctx, dispatchPayload("src-a")))
	require.NoError(t, dispatcher.Dispatch(ctx, dispatchPayload("src-b")))
	require.NoError(t, dispatcher.Dispatch(ctx, dispatchPayload("src-c")))

	assert.Equal(t, 1, resolver.calls, "only the claiming trigger resolves recipients")
	require.Len(t, queue.payloads, 2, "one batch per lane")

	premium, standard := queue.payloads[0], queue.payloads[1]
	assert.True(t, premium.IsPremium)
	assert.Equal(t, []string{"p1"}, premium.RecipientIDs)
	assert.False(t, standard.IsPremium)
	assert.Equal(t, []string{"u1", "u2"}, standard.RecipientIDs)
}

/*
TestDispatch_PriorityFromBurstSize verifies the release ranking: single
chapter high, small batch normal, binge drop low.
*/
func TestDispatch_PriorityFromBurstSize(t *testing.T) {
	cases := []struct {
		count    int
		expected int
	}{
		{1, constants.NotifyPriorityHigh},
		{2, constants.NotifyPriorityNormal},
		{3, constants.NotifyPriorityNormal},
		{4, constants.NotifyPriorityLow},
		{20, constants.NotifyPriorityLow},
	}

	for _, tc := range cases {
		resolver := &fakeResolver{recipients: notify.Recipients{Standard: []string{"u1"}}}
		queue := &fakeDeliverQueue{}
		dispatcher := newTestDispatcher(t, resolver, queue)

		payload := dispatchPayload("src-a")
		payload.NewChapterCount = tc.count
		require.NoError(t, dispatcher.Dispatch(context.Background(), payload))
		require.Len(t, queue.payloads, 1)
		assert.Equal(t, tc.expected, queue.payloads[0].Priority, "count %d", tc.count)
	}
}

/*
TestDispatch_ClaimReleasedOnEnqueueFailure verifies a failed fan-out gives
the claim back so a retry can notify.
*/
func TestDispatch_ClaimReleasedOnEnqueueFailure(t *testing.T) {
	resolver := &fakeResolver{recipients: notify.Recipients{Standard: []string{"u1"}}}
	queue := &fakeDeliverQueue{fail: true}
	dispatcher := newTestDispatcher(t, resolver, queue)
	ctx := context.Background()

	require.Error(t, dispatcher.Dispatch(ctx, dispatchPayload("src-a")))

	// The retry finds the claim free and completes the fan-out.
	queue.fail = false
	require.NoError(t, dispatcher.Dispatch(ctx, dispatchPayload("src-a")))
	assert.Len(t, queue.payloads, 1)
}

/*
TestDispatch_EmptyAudienceKeepsClaim verifies that a chapter nobody follows
is still marked notified, so later triggers stay quiet.
*/
func TestDispatch_EmptyAudienceKeepsClaim(t *testing.T) {
	resolver := &fakeResolver{}
	queue := &fakeDeliverQueue{}
	dispatcher := newTestDispatcher(t, resolver, queue)
	ctx := context.Background()

	require.NoError(t, dispatcher.Dispatch(ctx, dispatchPayload("src-a")))
	require.NoError(t, dispatcher.Dispatch(ctx, dispatchPayload("src-b")))

	assert.Equal(t, 1, resolver.calls)
	assert.Empty(t, queue.payloads)
}
