// Copyright (c) 2026 Tessera. All rights reserved.
// Author: tessera.reads@gmail.com

/*
Package crawler polls upstream sources for new chapters.

Architecture:

  - Adapters encapsulate one source family's wire format (JSON feed, HTML
    listing) behind a uniform Fetch. They classify transport failures into
    the blocked/unavailable taxonomy; they never touch storage.
  - The poller owns everything around the fetch: distributed politeness
    windows, in-process pacing, per-source circuit breakers, failure
    bookkeeping, and fan-out of scraped chapters into the ingest queue.
*/
package crawler

import (
	"context"
	"time"

	"github.com/tessera-app/tessera/internal/catalog"
)

// ScrapedChapter is one chapter row as reported by a source, before any
// canonicalization.
type ScrapedChapter struct {
	Number      float64
	Title       *string
	URL         string
	PublishedAt *time.Time
}

// ScrapedSeries is series metadata a source publishes alongside its chapter
// listing. Sources that only list chapters leave it out.
type ScrapedSeries struct {
	Title         string
	ExternalID    *string
	AltTitles     []string
	Description   *string
	CoverURL      *string
	Type          string
	Status        *string
	Genres        []string
	Tags          []string
	ContentRating *string
}

// Result is one successful fetch from a source.
type Result struct {
	// Series is non-nil when the source reported metadata worth folding into
	// the canonical record.
	Series   *ScrapedSeries
	Chapters []ScrapedChapter
}

// Adapter fetches one source subscription's current chapter listing.
//
// Implementations classify HTTP failures: rate-limit and anti-bot responses
// as blocked (fatal, long cooldown), everything else transient.
type Adapter interface {
	Name() string
	Fetch(ctx context.Context, source catalog.SeriesSource) (*Result, error)
}
