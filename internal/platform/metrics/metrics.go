// Copyright (c) 2026 Tessera. All rights reserved.
// Author: tessera.reads@gmail.com

// Package metrics exposes Prometheus collectors for the ingestion and
// notification pipeline.
//
// # Architecture
//
// Collectors are registered on the default registry via promauto and served
// by the ops HTTP server at /metrics. Components record outcomes; nothing in
// here carries business logic.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// # Ingestion

var (
	// ChaptersIngested counts logical-chapter ingest outcomes,
	// labeled created|source_added|duplicate|contended.
	ChaptersIngested = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tessera",
		Subsystem: "ingest",
		Name:      "chapters_total",
		Help:      "Chapter ingest outcomes by result.",
	}, []string{"result"})

	// GapsDetected counts missing chapter numbers found by gap scans.
	GapsDetected = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "tessera",
		Subsystem: "ingest",
		Name:      "gaps_detected_total",
		Help:      "Missing chapter numbers detected during gap scans.",
	})

	// GapJobsScheduled counts gap-recovery jobs actually enqueued
	// (deduplicated per series).
	GapJobsScheduled = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "tessera",
		Subsystem: "ingest",
		Name:      "gap_jobs_total",
		Help:      "Gap recovery jobs enqueued.",
	})

	// SeriesCreated counts canonical series created on first sighting.
	SeriesCreated = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "tessera",
		Subsystem: "canonical",
		Name:      "series_created_total",
		Help:      "Canonical series created.",
	})

	// SeriesMerged counts discoveries resolved onto an existing series.
	SeriesMerged = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "tessera",
		Subsystem: "canonical",
		Name:      "series_merged_total",
		Help:      "Discoveries merged into existing canonical series.",
	})
)

// # Polling

var (
	// PollRuns counts poll executions, labeled ok|error|blocked|skipped.
	PollRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tessera",
		Subsystem: "poll",
		Name:      "runs_total",
		Help:      "Source poll executions by outcome.",
	}, []string{"outcome"})

	// BreakerState reports the per-source circuit breaker state
	// (0 closed, 1 half-open, 2 open).
	BreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "tessera",
		Subsystem: "poll",
		Name:      "breaker_state",
		Help:      "Circuit breaker state per source (0=closed,1=half-open,2=open).",
	}, []string{"source"})
)

// # Notification Delivery

var (
	// NotificationsCreated counts persisted notifications by lane.
	NotificationsCreated = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tessera",
		Subsystem: "notify",
		Name:      "created_total",
		Help:      "Notifications persisted by lane.",
	}, []string{"lane"})

	// NotificationsSuppressed counts recipients skipped, labeled by reason:
	// priority|series_hour|hourly_cap|daily_cap|shed.
	NotificationsSuppressed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tessera",
		Subsystem: "notify",
		Name:      "suppressed_total",
		Help:      "Recipients suppressed by reason.",
	}, []string{"reason"})

	// DeliveryBacklog reports pending delivery work observed at batch start.
	DeliveryBacklog = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "tessera",
		Subsystem: "notify",
		Name:      "backlog",
		Help:      "Pending delivery jobs at last health check.",
	})

	// LiteMode reports whether delivery is degraded to lite mode (0/1).
	LiteMode = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "tessera",
		Subsystem: "notify",
		Name:      "lite_mode",
		Help:      "1 when delivery is running in lite mode.",
	})
)
