// Copyright (c) 2026 Tessera. All rights reserved.
// Author: tessera.reads@gmail.com

package worker

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tessera-app/tessera/internal/jobs"
)

/*
TestDecode_MalformedPayloadDropped verifies a payload that does not parse is
marked SkipRetry: it will never parse on a retry either.
*/
func TestDecode_MalformedPayloadDropped(t *testing.T) {
	task := asynq.NewTask(jobs.TypeIngest, []byte(`{"series_id":`))

	var payload jobs.IngestPayload
	err := decode(task, &payload)
	require.Error(t, err)
	assert.True(t, errors.Is(err, asynq.SkipRetry))
}

/*
TestDecode_InvalidPayloadDropped verifies a payload that parses but fails
schema validation is also dropped rather than retried.
*/
func TestDecode_InvalidPayloadDropped(t *testing.T) {
	// Parses fine, but every required field is missing.
	task := asynq.NewTask(jobs.TypeIngest, []byte(`{}`))

	var payload jobs.IngestPayload
	err := decode(task, &payload)
	require.Error(t, err)
	assert.True(t, errors.Is(err, asynq.SkipRetry))
}

/*
TestDecode_ValidPayload verifies a well-formed payload round-trips through
the queue boundary.
*/
func TestDecode_ValidPayload(t *testing.T) {
	body, err := json.Marshal(jobs.IngestPayload{
		SeriesSourceID: "src-1",
		SeriesID:       "series-1",
		ChapterNumber:  12,
		ChapterURL:     "https://example.test/12",
	})
	require.NoError(t, err)

	var payload jobs.IngestPayload
	require.NoError(t, decode(asynq.NewTask(jobs.TypeIngest, body), &payload))
	assert.Equal(t, "series-1", payload.SeriesID)
	assert.Equal(t, 12.0, payload.ChapterNumber)
}
