// Copyright (c) 2026 Tessera. All rights reserved.
// Author: tessera.reads@gmail.com

package sourceselect_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tessera-app/tessera/internal/catalog"
	"github.com/tessera-app/tessera/internal/sourceselect"
	"github.com/tessera-app/tessera/pkg/pointer"
)

func option(id, sourceName string, trust int, available bool, discovered time.Time) catalog.SourceOption {
	return catalog.SourceOption{
		ChapterSource: catalog.ChapterSource{
			ID:             "cs-" + id,
			SeriesSourceID: id,
			IsAvailable:    available,
			DiscoveredAt:   discovered,
		},
		SourceName: sourceName,
		TrustScore: trust,
	}
}

/*
TestSelect_SeriesPreferenceWins verifies that a matching series-level
preference beats both the global preference and trust scores.
*/
func TestSelect_SeriesPreferenceWins(t *testing.T) {
	now := time.Now()
	options := []catalog.SourceOption{
		option("a", "mangadex", 90, true, now),
		option("b", "comick", 10, true, now),
	}

	selection := sourceselect.Select(options, sourceselect.Preferences{
		SeriesSourceID:   pointer.To("b"),
		GlobalSourceName: pointer.To("mangadex"),
	})

	require.NotNil(t, selection.Chosen)
	assert.Equal(t, "b", selection.Chosen.SeriesSourceID)
	assert.False(t, selection.IsFallback)
}

/*
TestSelect_GlobalPreferenceFallback verifies the global preference is used
when the series preference misses, and that the miss is flagged.
*/
func TestSelect_GlobalPreferenceFallback(t *testing.T) {
	now := time.Now()
	options := []catalog.SourceOption{
		option("a", "mangadex", 10, true, now),
		option("b", "comick", 90, true, now),
	}

	// Series preference names a source that isn't among the options.
	selection := sourceselect.Select(options, sourceselect.Preferences{
		SeriesSourceID:   pointer.To("gone"),
		GlobalSourceName: pointer.To("mangadex"),
	})

	require.NotNil(t, selection.Chosen)
	assert.Equal(t, "mangadex", selection.Chosen.SourceName)
	assert.True(t, selection.IsFallback)

	// Without a series preference, the global match is not a fallback.
	selection = sourceselect.Select(options, sourceselect.Preferences{
		GlobalSourceName: pointer.To("mangadex"),
	})
	require.NotNil(t, selection.Chosen)
	assert.False(t, selection.IsFallback)
}

/*
TestSelect_TrustScore verifies the default ranking: highest trust wins,
most recent discovery breaks ties, and a missed preference flags fallback.
*/
func TestSelect_TrustScore(t *testing.T) {
	older := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	newer := older.Add(time.Hour)

	options := []catalog.SourceOption{
		option("a", "mangadex", 50, true, newer),
		option("b", "comick", 80, true, older),
		option("c", "asura", 80, true, newer),
	}

	selection := sourceselect.Select(options, sourceselect.Preferences{})
	require.NotNil(t, selection.Chosen)
	assert.Equal(t, "c", selection.Chosen.SeriesSourceID, "tie broken by recency")
	assert.False(t, selection.IsFallback)

	selection = sourceselect.Select(options, sourceselect.Preferences{
		GlobalSourceName: pointer.To("nonexistent"),
	})
	require.NotNil(t, selection.Chosen)
	assert.True(t, selection.IsFallback, "missed preference falls back to trust")
}

/*
TestSelect_Availability verifies unavailable sources are never chosen, even
when preferred, and that an empty field yields no selection.
*/
func TestSelect_Availability(t *testing.T) {
	now := time.Now()
	options := []catalog.SourceOption{
		option("a", "mangadex", 90, false, now),
		option("b", "comick", 10, true, now),
	}

	selection := sourceselect.Select(options, sourceselect.Preferences{
		SeriesSourceID: pointer.To("a"),
	})
	require.NotNil(t, selection.Chosen)
	assert.Equal(t, "b", selection.Chosen.SeriesSourceID)

	selection = sourceselect.Select([]catalog.SourceOption{
		option("a", "mangadex", 90, false, now),
	}, sourceselect.Preferences{})
	assert.Nil(t, selection.Chosen)
}
