// Copyright (c) 2026 Tessera. All rights reserved.
// Author: tessera.reads@gmail.com

package notify

import "context"

// Store is the storage contract for persisted notifications.
type Store interface {
	// ListForChapter returns the existing new-chapter notifications for the
	// given users and (series, chapter number), keyed by user id.
	ListForChapter(ctx context.Context, userIDs []string, seriesID string, chapterNumber float64) (map[string]Existing, error)
	BatchInsert(ctx context.Context, notifications []Notification) error
	BatchDelete(ctx context.Context, ids []string) error
}

// RecipientResolver resolves the notification audience for one series.
type RecipientResolver interface {
	// Resolve returns subscribers with notifications enabled, minus users
	// whose safe-browsing setting excludes the series' content rating,
	// split into delivery lanes.
	Resolve(ctx context.Context, seriesID string) (*Recipients, error)
}
