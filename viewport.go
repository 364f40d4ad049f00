package paging

// PageOf returns the page containing a global index.
func PageOf(index, pageSize int) int {
	if pageSize <= 0 || index < 0 {
		return 0
	}
	return index / pageSize
}

// PageStart returns the global index of the first record of a page.
func PageStart(page, pageSize int) int {
	return page * pageSize
}

// PrefetchPage decides whether a viewport whose last visible item sits at
// lastVisibleIndex should prefetch. It triggers once the index reaches the
// last quarter of its page and returns that page, which is what OnPrefetch
// expects.
//
// Example:
//
//	if page, ok := paging.PrefetchPage(lastVisible, cfg.PageSize); ok {
//	    paginator.OnPrefetch(page)
//	}
func PrefetchPage(lastVisibleIndex, pageSize int) (int, bool) {
	if pageSize <= 0 || lastVisibleIndex < 0 {
		return 0, false
	}

	page := lastVisibleIndex / pageSize
	threshold := pageSize - pageSize/4
	if lastVisibleIndex%pageSize >= threshold {
		return page, true
	}
	return 0, false
}
