// Copyright (c) 2026 Tessera. All rights reserved.
// Author: tessera.reads@gmail.com

package catalog

import "time"

// Chapter is the logical chapter record, unique per (series, number).
// The number is a decimal ("10.5"-style chapters exist) and is immutable
// once the row is created.
type Chapter struct {
	ID          string     `json:"id"`
	SeriesID    string     `json:"series_id"`
	Number      float64    `json:"chapter_number"`
	Title       *string    `json:"title,omitempty"`
	PublishedAt *time.Time `json:"published_at,omitempty"`
	CreatedAt   time.Time  `json:"-"`
	UpdatedAt   time.Time  `json:"-"`
}

// ChapterSource is one source's instance of a logical chapter, unique per
// (series source, chapter).
type ChapterSource struct {
	ID             string    `json:"id"`
	ChapterID      string    `json:"chapter_id"`
	SeriesSourceID string    `json:"series_source_id"`
	URL            string    `json:"url"`
	IsAvailable    bool      `json:"is_available"`
	DiscoveredAt   time.Time `json:"discovered_at"`
	CreatedAt      time.Time `json:"-"`
}

// SourceOption is a chapter source joined with its series-source trust data,
// the input shape for source selection.
type SourceOption struct {
	ChapterSource
	SourceName string `json:"source_name"`
	TrustScore int    `json:"trust_score"`
}

// IngestApply is the parameter set for one transactional chapter ingest.
type IngestApply struct {
	SeriesID       string
	SeriesSourceID string
	// SourceName labels the source inside the feed-entry aggregate.
	SourceName  string
	Number      float64
	Title       *string
	URL         string
	PublishedAt *time.Time
	// DiscoveredAt is the chapter-source discovery timestamp. Gap-recovery
	// replays back-date it to just before the next known chapter so feed
	// chronology is preserved.
	DiscoveredAt time.Time
}

// IngestOutcome reports what one transactional ingest actually changed.
type IngestOutcome struct {
	ChapterID      string
	ChapterCreated bool
	// SourceCreated is true when the chapter source link was new (first
	// discovery by this source), which bumps the source's chapter counter
	// and promotes it to the hot poll tier.
	SourceCreated bool
}
