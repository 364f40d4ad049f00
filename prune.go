package paging

import "sort"

// pagesToPrune returns the pages to evict once more than maxPages+pruneSlack
// pages are stored. The pages farthest from current go first; on equal
// distance the lower page number goes first. The result leaves exactly
// maxPages pages behind.
func pagesToPrune(stored []int64, current int64, maxPages int) []int64 {
	if len(stored) <= maxPages+pruneSlack {
		return nil
	}

	ranked := make([]int64, len(stored))
	copy(ranked, stored)
	sort.SliceStable(ranked, func(i, j int) bool {
		di, dj := distance(ranked[i], current), distance(ranked[j], current)
		if di != dj {
			return di > dj
		}
		return ranked[i] < ranked[j]
	})

	return ranked[:len(stored)-maxPages]
}

func distance(page, current int64) int64 {
	if page > current {
		return page - current
	}
	return current - page
}
