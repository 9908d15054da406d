// Copyright (c) 2026 Tessera. All rights reserved.
// Author: tessera.reads@gmail.com

package catalog

import (
	"context"
	"time"
)

// SeriesRepository is the storage contract for canonical series identity and
// source-subscription state.
type SeriesRepository interface {
	GetSeriesByID(ctx context.Context, id string) (*Series, error)
	GetSeriesByExternalID(ctx context.Context, externalID string) (*Series, error)
	GetSeriesByNormalizedTitle(ctx context.Context, normalized string) (*Series, error)
	CreateSeries(ctx context.Context, series *Series) error
	// UpdateSeriesMetadata writes back the merged metadata fields. It never
	// touches identity columns (id, externalid).
	UpdateSeriesMetadata(ctx context.Context, series *Series) error

	GetSourceByID(ctx context.Context, id string) (*SeriesSource, error)
	GetSourceByRef(ctx context.Context, sourceName, sourceID string) (*SeriesSource, error)
	// UpsertSource creates or refreshes the (source name, source id) link.
	// Rebinding an existing link to a different series returns a Conflict.
	UpsertSource(ctx context.Context, source *SeriesSource) (*SeriesSource, error)
	ListActiveSources(ctx context.Context, seriesID string) ([]SeriesSource, error)

	// Poll bookkeeping
	RecordPollSuccess(ctx context.Context, sourceID string, polledAt, nextCheckAt time.Time) error
	// IncrementFailure bumps the consecutive-failure counter and returns the
	// new value.
	IncrementFailure(ctx context.Context, sourceID string) (int, error)
	// DemoteSource drops a source to the cold tier with a long cool-down.
	DemoteSource(ctx context.Context, sourceID string, nextCheckAt time.Time) error

	// Scheduler queries
	ListDueSources(ctx context.Context, now time.Time, limit int) ([]SeriesSource, error)
	DemoteIdleHotSources(ctx context.Context, idleBefore time.Time) (int64, error)
}

// ChapterRepository is the storage contract for logical chapters, chapter
// sources, and the release feed window.
type ChapterRepository interface {
	HasChapter(ctx context.Context, seriesID string, number float64) (bool, error)
	// ListChapterNumbers returns all chapter numbers for a series, ascending.
	ListChapterNumbers(ctx context.Context, seriesID string) ([]float64, error)
	// NextChapterCreatedAfter returns the creation time of the next known
	// chapter strictly above number, or nil if none exists. Gap recovery
	// back-dates synthetic discoveries to just before it.
	NextChapterCreatedAfter(ctx context.Context, seriesID string, number float64) (*time.Time, error)
	// ListSourceOptions returns a chapter's sources joined with trust data
	// for source selection.
	ListSourceOptions(ctx context.Context, chapterID string) ([]SourceOption, error)
	// CountChaptersCreatedSince reports how many logical chapters appeared
	// for a series since the given instant. Dispatch uses it to rank a lone
	// release above a binge drop.
	CountChaptersCreatedSince(ctx context.Context, seriesID string, since time.Time) (int, error)

	// ApplyIngest runs one atomic ingest transaction: logical chapter
	// upsert, chapter-source upsert (with chapter-counter/hot-tier bump on
	// first discovery), and the 24h feed-entry window upsert.
	ApplyIngest(ctx context.Context, apply IngestApply) (*IngestOutcome, error)
}
