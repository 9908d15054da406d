// Copyright (c) 2026 Tessera. All rights reserved.
// Author: tessera.reads@gmail.com

package jobs_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/tessera-app/tessera/internal/jobs"
)

/*
TestFormatChapterNumber verifies the shared number rendering that all
idempotency keys depend on.
*/
func TestFormatChapterNumber(t *testing.T) {
	assert.Equal(t, "10", jobs.FormatChapterNumber(10))
	assert.Equal(t, "10", jobs.FormatChapterNumber(10.0))
	assert.Equal(t, "10.5", jobs.FormatChapterNumber(10.5))
	assert.Equal(t, "0.5", jobs.FormatChapterNumber(0.5))
}

/*
TestTaskIDs verifies key determinism: equal inputs collapse, distinct
inputs do not.
*/
func TestTaskIDs(t *testing.T) {
	// 1. Poll keys separate live and recovery work.
	assert.Equal(t, jobs.PollTaskID("src", false), jobs.PollTaskID("src", false))
	assert.NotEqual(t, jobs.PollTaskID("src", false), jobs.PollTaskID("src", true))

	// 2. Ingest keys collapse 10 and 10.0.
	assert.Equal(t, jobs.IngestTaskID("src", 10), jobs.IngestTaskID("src", 10.0))
	assert.NotEqual(t, jobs.IngestTaskID("src", 10), jobs.IngestTaskID("src", 10.5))

	// 3. One gap job per series.
	assert.Equal(t, jobs.GapTaskID("series"), jobs.GapTaskID("series"))
}

/*
TestDispatchTaskID_Bucketing verifies that dispatch keys collapse within
one bucket and roll over across bucket boundaries.
*/
func TestDispatchTaskID_Bucketing(t *testing.T) {
	base := time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)

	inside := jobs.DispatchTaskID("s", "src", 10, base)
	assert.Equal(t, inside, jobs.DispatchTaskID("s", "src", 10, base.Add(time.Minute)))
	assert.NotEqual(t, inside, jobs.DispatchTaskID("s", "src", 10, base.Add(time.Hour)))
	assert.NotEqual(t, inside, jobs.DispatchTaskID("s", "other", 10, base))
}

/*
TestPayloadValidation verifies the queue-boundary schema checks.
*/
func TestPayloadValidation(t *testing.T) {
	assert.Error(t, jobs.PollPayload{}.Validate())
	assert.NoError(t, jobs.PollPayload{SeriesSourceID: "src"}.Validate())

	assert.Error(t, jobs.CanonicalizePayload{Title: "t", SourceName: "s"}.Validate())
	assert.NoError(t, jobs.CanonicalizePayload{Title: "t", SourceName: "s", SourceID: "1"}.Validate())

	assert.Error(t, jobs.IngestPayload{SeriesSourceID: "src", SeriesID: "s", ChapterNumber: 0, ChapterURL: "u"}.Validate())
	assert.NoError(t, jobs.IngestPayload{SeriesSourceID: "src", SeriesID: "s", ChapterNumber: 1, ChapterURL: "u"}.Validate())

	assert.Error(t, jobs.GapRecoveryPayload{}.Validate())
	assert.NoError(t, jobs.GapRecoveryPayload{SeriesID: "s"}.Validate())

	assert.Error(t, jobs.DispatchPayload{SeriesID: "s", ChapterNumber: 1}.Validate())
	assert.NoError(t, jobs.DispatchPayload{SeriesID: "s", TriggeringSourceID: "src", ChapterNumber: 1}.Validate())

	assert.Error(t, jobs.DeliverPayload{SeriesID: "s", ChapterNumber: 1, RecipientIDs: []string{"u"}, Priority: 7}.Validate())
	assert.Error(t, jobs.DeliverPayload{SeriesID: "s", ChapterNumber: 1, Priority: 1}.Validate())
	assert.NoError(t, jobs.DeliverPayload{SeriesID: "s", ChapterNumber: 1, RecipientIDs: []string{"u"}, Priority: 1}.Validate())
}
