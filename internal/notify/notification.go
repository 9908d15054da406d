// Copyright (c) 2026 Tessera. All rights reserved.
// Author: tessera.reads@gmail.com

/*
Package notify turns new-release triggers into per-user notifications.

Architecture:

  - Dispatch claims a (series, chapter) "already notified" marker in the
    shared store, so any number of source triggers collapse into exactly one
    fan-out, then resolves recipients and splits them into lanes.
  - Delivery runs per lane: the premium lane has its own queue and consumer
    pool so premium users are never stuck behind standard fan-out.
  - Per-user dedup is priority-ordered: a more important notification for
    the same chapter replaces a less important one, never the reverse.
  - Throttling and backlog degradation shed load gracefully: suppression is
    policy, not failure, and every suppressed recipient is accounted for.
*/
package notify

import "time"

// Notification is one persisted user notification.
type Notification struct {
	ID       string `json:"id"`
	UserID   string `json:"user_id"`
	SeriesID string `json:"series_id"`
	Type     string `json:"type"`
	// Priority is ordinal: 0 is the most important.
	Priority  int            `json:"priority"`
	Title     string         `json:"title"`
	Body      string         `json:"body"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
	ReadAt    *time.Time     `json:"read_at,omitempty"`
}

// Existing is the slice of a persisted notification that dedup decisions
// need.
type Existing struct {
	ID       string
	Priority int
}

// Recipients is the resolved audience for one series release, split by lane.
type Recipients struct {
	Standard []string
	Premium  []string
}

// Total returns the audience size across lanes.
func (r Recipients) Total() int { return len(r.Standard) + len(r.Premium) }
