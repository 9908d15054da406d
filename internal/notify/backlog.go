// Copyright (c) 2026 Tessera. All rights reserved.
// Author: tessera.reads@gmail.com

package notify

import (
	"context"
	"errors"
	"fmt"

	"github.com/hibiken/asynq"

	"github.com/tessera-app/tessera/internal/platform/constants"
)

// BacklogMonitor reports pending standard-lane delivery work. The deliverer
// degrades against it: delay, then lite mode, then shedding.
type BacklogMonitor interface {
	PendingDeliveries(ctx context.Context) (int, error)
}

// InspectorMonitor reads the backlog straight from the queue store.
type InspectorMonitor struct {
	inspector *asynq.Inspector
}

// NewInspectorMonitor wraps an asynq inspector.
func NewInspectorMonitor(inspector *asynq.Inspector) *InspectorMonitor {
	return &InspectorMonitor{inspector: inspector}
}

// PendingDeliveries implements [BacklogMonitor]. A queue that has never seen
// a task counts as empty.
func (monitor *InspectorMonitor) PendingDeliveries(context.Context) (int, error) {
	info, err := monitor.inspector.GetQueueInfo(constants.QueueDeliver)
	if err != nil {
		if errors.Is(err, asynq.ErrQueueNotFound) {
			return 0, nil
		}
		return 0, fmt.Errorf("notify: inspect delivery backlog: %w", err)
	}
	return info.Pending + info.Retry + info.Scheduled, nil
}
