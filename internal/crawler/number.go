// Copyright (c) 2026 Tessera. All rights reserved.
// Author: tessera.reads@gmail.com

package crawler

import (
	"regexp"
	"strconv"
)

// Sources label chapters inconsistently ("Chapter 10", "Ch.10.5", "Episode
// 3", "#42 - The Fall"). A marker-prefixed number is the strongest signal;
// a bare leading number is the fallback.
var (
	markedNumberPattern = regexp.MustCompile(`(?i)(?:chapter|chap\.?|ch\.?|episode|ep\.?)\s*#?\s*(\d+(?:\.\d+)?)`)
	bareNumberPattern   = regexp.MustCompile(`(\d+(?:\.\d+)?)`)
)

// ParseChapterNumber extracts the chapter number from a source's chapter
// label. The second return is false when no usable number is present.
func ParseChapterNumber(label string) (float64, bool) {
	match := markedNumberPattern.FindStringSubmatch(label)
	if match == nil {
		match = bareNumberPattern.FindStringSubmatch(label)
	}
	if match == nil {
		return 0, false
	}

	number, err := strconv.ParseFloat(match[1], 64)
	if err != nil || number <= 0 {
		return 0, false
	}
	return number, true
}
