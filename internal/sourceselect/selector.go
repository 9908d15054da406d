// Copyright (c) 2026 Tessera. All rights reserved.
// Author: tessera.reads@gmail.com

/*
Package sourceselect decides which source's link a reader should open (or
mark read) for one chapter.

It is a pure, synchronous decision function with no I/O: callers load the
chapter's source options and the user's preferences, and get back a single
choice plus a fallback flag for the UI.

Selection order:

 1. The series-level preferred source, if present among the available ones.
 2. The global preferred source (flagged as fallback when a series
    preference existed but didn't match).
 3. The highest trust score, tie-broken by most recent discovery (flagged
    as fallback when any preference existed but matched nothing).
*/
package sourceselect

import "github.com/tessera-app/tessera/internal/catalog"

// Preferences carries the caller's source preferences for one selection.
type Preferences struct {
	// SeriesSourceID is the per-series preferred source (a series-source id),
	// nil when the user has no preference for this series.
	SeriesSourceID *string
	// GlobalSourceName is the account-wide preferred source name, nil when
	// unset.
	GlobalSourceName *string
}

// Selection is the outcome of one source choice.
type Selection struct {
	// Chosen is nil when no source is available.
	Chosen *catalog.SourceOption
	// IsFallback is true when a preference existed but the choice fell
	// through to a less specific rule.
	IsFallback bool
}

// Select picks one source for a chapter. Unavailable sources are never
// chosen.
func Select(options []catalog.SourceOption, prefs Preferences) Selection {
	available := make([]catalog.SourceOption, 0, len(options))
	for _, option := range options {
		if option.IsAvailable {
			available = append(available, option)
		}
	}
	if len(available) == 0 {
		return Selection{}
	}

	hasSeriesPref := prefs.SeriesSourceID != nil
	hasGlobalPref := prefs.GlobalSourceName != nil

	// 1. Series-level preference wins outright.
	if hasSeriesPref {
		for i := range available {
			if available[i].SeriesSourceID == *prefs.SeriesSourceID {
				return Selection{Chosen: &available[i]}
			}
		}
	}

	// 2. Global preference; a fallback if a series preference missed.
	if hasGlobalPref {
		for i := range available {
			if available[i].SourceName == *prefs.GlobalSourceName {
				return Selection{Chosen: &available[i], IsFallback: hasSeriesPref}
			}
		}
	}

	// 3. Trust score, most recent discovery breaking ties.
	best := &available[0]
	for i := 1; i < len(available); i++ {
		candidate := &available[i]
		if candidate.TrustScore > best.TrustScore ||
			(candidate.TrustScore == best.TrustScore && candidate.DiscoveredAt.After(best.DiscoveredAt)) {
			best = candidate
		}
	}

	return Selection{Chosen: best, IsFallback: hasSeriesPref || hasGlobalPref}
}
