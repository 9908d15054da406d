// Copyright (c) 2026 Tessera. All rights reserved.
// Author: tessera.reads@gmail.com

package notify_test

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tessera-app/tessera/internal/notify"
)

/*
TestPendingDeliveries_MissingQueueIsEmpty verifies a deployment whose
delivery queue has never seen a task reads as an empty backlog, not an
error.
*/
func TestPendingDeliveries_MissingQueueIsEmpty(t *testing.T) {
	mr := miniredis.RunT(t)
	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: mr.Addr()})
	t.Cleanup(func() { _ = inspector.Close() })

	monitor := notify.NewInspectorMonitor(inspector)
	pending, err := monitor.PendingDeliveries(context.Background())
	require.NoError(t, err)
	assert.Zero(t, pending)
}
