// Copyright (c) 2026 Tessera. All rights reserved.
// Author: tessera.reads@gmail.com

package catalog

import "time"

// FeedSource is one source's appearance inside a feed entry window.
type FeedSource struct {
	SeriesSourceID string    `json:"series_source_id"`
	SourceName     string    `json:"source_name"`
	URL            string    `json:"url"`
	DiscoveredAt   time.Time `json:"discovered_at"`
}

// FeedEntry is a time-windowed aggregate of sources that reported the same
// (series, chapter number). Sources accumulate inside the window without
// duplicating entries already present.
type FeedEntry struct {
	ID            string       `json:"id"`
	SeriesID      string       `json:"series_id"`
	ChapterNumber float64      `json:"chapter_number"`
	Sources       []FeedSource `json:"sources"`
	FirstSeenAt   time.Time    `json:"first_seen_at"`
	LastSeenAt    time.Time    `json:"last_seen_at"`
}

// HasSource reports whether the entry already lists the series source.
func (e *FeedEntry) HasSource(seriesSourceID string) bool {
	for _, s := range e.Sources {
		if s.SeriesSourceID == seriesSourceID {
			return true
		}
	}
	return false
}

// AppendSource merges one source sighting into an open window's source list.
// A source already listed is a no-op, so re-reports inside the window never
// duplicate; the flag reports whether the list changed.
func AppendSource(sources []FeedSource, source FeedSource) ([]FeedSource, bool) {
	entry := FeedEntry{Sources: sources}
	if entry.HasSource(source.SeriesSourceID) {
		return sources, false
	}
	return append(sources, source), true
}
