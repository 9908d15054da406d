// Copyright (c) 2026 Tessera. All rights reserved.
// Author: tessera.reads@gmail.com

package ingest

import (
	"math"
	"sort"
)

// FindGaps returns the whole chapter numbers missing from a series' known
// numbers, ascending. Only integer chapters are recoverable: fractional
// extras (10.5 specials) are legitimate and never treated as gaps, so for
// each adjacent pair the candidates are the integers strictly between them.
//
// [1, 2, 4, 7] yields [3, 5, 6]; [1, 1.5, 2] yields nothing.
func FindGaps(numbers []float64) []int {
	if len(numbers) < 2 {
		return nil
	}

	sorted := make([]float64, len(numbers))
	copy(sorted, numbers)
	sort.Float64s(sorted)

	var gaps []int
	for i := 1; i < len(sorted); i++ {
		low, high := sorted[i-1], sorted[i]
		if high-low <= 1 {
			continue
		}
		for n := int(math.Floor(low)) + 1; float64(n) < high; n++ {
			if float64(n) <= low {
				continue
			}
			gaps = append(gaps, n)
		}
	}
	return gaps
}

// precedingWhole returns the integer chapter expected immediately before
// number, or 0 when none is expected (chapter 1 and below). Fractional
// chapters look back to their own whole part: 10.5 expects 10.
func precedingWhole(number float64) int {
	floor := math.Floor(number)
	if number > floor {
		return int(floor)
	}
	return int(floor) - 1
}
