// Copyright (c) 2026 Tessera. All rights reserved.
// Author: tessera.reads@gmail.com

/*
Package catalog defines the canonical series/chapter data model owned by the
ingestion pipeline, together with its PostgreSQL repository.

Architecture:

  - Series is the single deduplicated record representing one work across
    all sources; SeriesSource binds a (source name, source-native id) pair
    to exactly one Series, permanently.
  - Chapter is the logical chapter identity keyed by (series, number);
    ChapterSource is one source's instance of it.
  - FeedEntry is the 24-hour release-feed aggregate of sources that reported
    the same (series, chapter number).

All chapter-ingest writes happen inside one transaction ([Repository.ApplyIngest])
so at-least-once job redelivery is safe to replay.
*/
package catalog

import "time"

// Series is the canonical work shared by all sources.
type Series struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	// NormalizedTitle is the slug form of Title, used for case-insensitive
	// exact matching during canonicalization.
	NormalizedTitle string   `json:"-"`
	AltTitles       []string `json:"alt_titles,omitempty"`
	Description     *string  `json:"description,omitempty"`
	Type            string   `json:"type"`
	Status          *string  `json:"status,omitempty"`
	ContentRating   *string  `json:"content_rating,omitempty"`
	Tags            []string `json:"tags,omitempty"`
	CoverURL        *string  `json:"cover_url,omitempty"`
	// ExternalID is the optional well-known registry id. At most one Series
	// exists per external id; it is the strongest matching key.
	ExternalID *string   `json:"external_id,omitempty"`
	CreatedAt  time.Time `json:"-"`
	UpdatedAt  time.Time `json:"-"`
}

// SeriesSource is a (source name, source-native id) pair bound to exactly
// one Series. Rebinding to a different Series is forbidden once created.
type SeriesSource struct {
	ID         string `json:"id"`
	SeriesID   string `json:"series_id"`
	SourceName string `json:"source_name"`
	SourceID   string `json:"source_id"`
	SourceURL  string `json:"source_url"`
	// TrustScore is the per-source reliability weight used as a tiebreaker
	// when no user preference applies.
	TrustScore int `json:"trust_score"`
	// FailureCount is the consecutive-failure counter driving the circuit
	// breaker demotion.
	FailureCount int `json:"-"`
	ChapterCount int `json:"chapter_count"`
	// Priority is the sync tier: hot sources poll frequently after a recent
	// release, cold sources on the slow cycle.
	Priority     string     `json:"priority"`
	NextCheckAt  time.Time  `json:"-"`
	LastPolledAt *time.Time `json:"-"`
	IsActive     bool       `json:"is_active"`
	// IsPrimary marks the preferred metadata source for cover merging.
	IsPrimary bool      `json:"is_primary"`
	CreatedAt time.Time `json:"-"`
	UpdatedAt time.Time `json:"-"`
}
