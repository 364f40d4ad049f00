// Package store defines the durable cache contract used by paginators.
//
// A store keeps three tables:
//   - items: serialized records keyed by a global 64-bit id
//   - listing entries: the ordered position of an item within one query's listing
//   - page metadata: per (query, page) bookkeeping used to detect the end of data
//
// Everything a single page load writes goes through one InTx call, so a page is
// either fully present (entries and metadata) or not present at all.
//
// Implementations:
//   - memstore.Store: in-memory tables, suitable for embedding and tests
//   - sqlboiler.Store: PostgreSQL tables queried through SQLBoiler
package store

import "context"

// Store is the durable storage handle shared by every paginator of a process.
//
// Read methods observe committed state only. Mutations happen inside InTx.
type Store interface {
	// Listing returns all entries of queryKey ordered by Order ascending,
	// joined with the payload of the referenced item.
	Listing(ctx context.Context, queryKey string) ([]ListingRow, error)

	// PageNumbers returns the distinct page numbers stored for queryKey in
	// ascending order. A page counts as stored when it has listing entries or
	// a metadata row.
	PageNumbers(ctx context.Context, queryKey string) ([]int64, error)

	// LatestPage returns the metadata row with the greatest page number for
	// queryKey. It returns ErrNotFound when no page has been stored.
	LatestPage(ctx context.Context, queryKey string) (PageMetadata, error)

	// Item returns the cached item with the given id or ErrNotFound.
	Item(ctx context.Context, id int64) (CachedItem, error)

	// InTx runs fn inside a transaction. The transaction commits when fn
	// returns nil and rolls back otherwise. Subscribers are notified after a
	// successful commit.
	InTx(ctx context.Context, fn func(tx Tx) error) error

	// Subscribe registers interest in changes to queryKey's listing.
	Subscribe(queryKey string) *Subscription

	// Close releases the resources held by the store.
	Close() error
}

// Tx is the mutation surface of a store transaction.
type Tx interface {
	// UpsertItem inserts the item or replaces the payload of an existing one.
	UpsertItem(ctx context.Context, item CachedItem) error

	// InsertEntries inserts listing entries, skipping any whose
	// (QueryKey, ItemID, PageNumber) already exists.
	InsertEntries(ctx context.Context, entries []ListingEntry) error

	// UpsertPageMetadata inserts or replaces the metadata row of a page.
	UpsertPageMetadata(ctx context.Context, meta PageMetadata) error

	// DeletePageEntries removes every listing entry of a page.
	DeletePageEntries(ctx context.Context, queryKey string, page int64) error

	// DeletePageMetadata removes the metadata row of a page.
	DeletePageMetadata(ctx context.Context, queryKey string, page int64) error

	// PageNumbers is Store.PageNumbers evaluated against the transaction's
	// own uncommitted view.
	PageNumbers(ctx context.Context, queryKey string) ([]int64, error)
}
