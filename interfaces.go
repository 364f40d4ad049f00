package paging

import "context"

// Paginator is the public contract of a cached paginated listing.
//
// A paginator is bound to one query key and one store. Callers request pages
// with OnPrefetch and Reset; loaded pages land in the store, and the store's
// contents are projected into Items. Neither call blocks, and neither reports
// load failures directly: failures show up through State.
//
// Type parameter T is the record type being paginated (e.g., Post, User).
type Paginator[T any] interface {
	// OnPrefetch requests the given page and, when more data is believed to
	// exist, the next PrefetchDistance pages. It is ignored while the state is
	// INITIAL.
	OnPrefetch(page int)

	// Reset forces a reload starting at the page containing index, after
	// clearing in-flight bookkeeping and setting the state to INITIAL.
	Reset(index int)

	// Items returns the current global index to item projection.
	// The returned map must not be modified.
	Items() map[int]T

	// State returns the current coarse load state.
	State() LoadState

	// TotalCount returns the last total reported by the page source.
	TotalCount() int

	// GetItem returns the cached record with the given id.
	GetItem(ctx context.Context, id int64) (T, bool, error)

	// UpdateItem replaces the cached record with the given id.
	UpdateItem(ctx context.Context, id int64, item T) error

	// Close cancels outstanding loads and releases the store subscription.
	Close() error
}

// PageSource fetches one page from the remote data source.
// It abstracts the wire protocol so the paginator works with REST, GraphQL,
// gRPC or anything else that can return a page of records.
//
// Example implementation:
//
//	source := paging.PageSourceFunc[*Post](func(ctx context.Context, page int) (paging.Payload[*Post], error) {
//	    resp, err := client.ListPosts(ctx, page, pageSize)
//	    if err != nil {
//	        return paging.Payload[*Post]{}, err
//	    }
//	    return paging.Payload[*Post]{TotalCount: resp.Total, IsMore: resp.HasMore, Records: resp.Posts}, nil
//	})
type PageSource[T any] interface {
	// FetchPage returns the records of a zero-based page number.
	// Implementations should honor ctx cancellation.
	FetchPage(ctx context.Context, page int) (Payload[T], error)
}

// PageSourceFunc adapts a function to PageSource.
type PageSourceFunc[T any] func(ctx context.Context, page int) (Payload[T], error)

// FetchPage implements PageSource.
func (f PageSourceFunc[T]) FetchPage(ctx context.Context, page int) (Payload[T], error) {
	return f(ctx, page)
}

// Payload is one page returned by a PageSource.
type Payload[T any] struct {
	// TotalCount is the size of the whole listing as reported by the source.
	TotalCount int

	// IsMore reports that the source knows of more pages after this one.
	IsMore bool

	// Records are the records of the page in listing order.
	Records []T
}

// HasMore reports whether more data exists after the given page. The source's
// own flag wins; otherwise the total count is compared with what the pages up
// to and including this one cover.
func (p Payload[T]) HasMore(page, pageSize int) bool {
	return p.IsMore || p.TotalCount > page*pageSize+len(p.Records)
}

// Codec converts records to and from the payload kept in the store.
type Codec[T any] interface {
	// Encode serializes a record.
	Encode(item T) (string, error)

	// Decode reconstructs a record. It returns ErrPlaceholder for payloads
	// that stand for "no item".
	Decode(payload string) (T, error)
}

// IDFunc extracts the stable identifier of a record. It must be pure.
type IDFunc[T any] func(item T) int64
