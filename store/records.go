package store

import (
	"time"

	"github.com/aarondl/null/v8"
)

// CachedItem is the durable copy of one record, keyed by ID across every query.
// Items are shared content: a listing only references them by ID.
type CachedItem struct {
	ID        int64     `boil:"id"`
	Payload   string    `boil:"payload"`
	UpdatedAt time.Time `boil:"updated_at"`
}

// ListingEntry places an item at a sequence position within one query's listing.
//
// Order is PageNumber*PageSize + position in the page. The entries of one page
// always come from a single successful load of that page.
type ListingEntry struct {
	QueryKey   string `boil:"query_key"`
	ItemID     int64  `boil:"item_id"`
	Order      int64  `boil:"item_order"`
	PageNumber int64  `boil:"page_number"`
}

// PageMetadata records the outcome of the last successful load of a page.
// An invalid NextPageKey means no page follows this one.
type PageMetadata struct {
	QueryKey    string      `boil:"query_key"`
	PageNumber  int64       `boil:"page_number"`
	NextPageKey null.String `boil:"next_page_key"`
	TotalCount  int64       `boil:"total_count"`
}

// HasNext reports whether more pages exist after this one.
func (m PageMetadata) HasNext() bool {
	return m.NextPageKey.Valid
}

// ListingRow is a listing entry joined with the payload of its item.
type ListingRow struct {
	ItemID     int64  `boil:"item_id"`
	Order      int64  `boil:"item_order"`
	PageNumber int64  `boil:"page_number"`
	Payload    string `boil:"payload"`
}
