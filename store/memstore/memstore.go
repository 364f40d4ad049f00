// Package memstore implements store.Store with in-memory tables.
//
// Transactions run against a private copy of the tables which replaces the
// committed state only when the transaction function succeeds, so a failed
// page load leaves nothing behind. Writers are serialized.
package memstore

import (
	"context"
	"sort"
	"sync"

	"github.com/friendsofgo/errors"

	"github.com/nrfta/paging-cache/store"
)

type pageKey struct {
	queryKey string
	page     int64
}

type entryKey struct {
	itemID int64
	page   int64
}

type tables struct {
	items   map[int64]store.CachedItem
	entries map[string]map[entryKey]store.ListingEntry
	meta    map[pageKey]store.PageMetadata
}

func newTables() *tables {
	return &tables{
		items:   make(map[int64]store.CachedItem),
		entries: make(map[string]map[entryKey]store.ListingEntry),
		meta:    make(map[pageKey]store.PageMetadata),
	}
}

func (t *tables) clone() *tables {
	c := &tables{
		items:   make(map[int64]store.CachedItem, len(t.items)),
		entries: make(map[string]map[entryKey]store.ListingEntry, len(t.entries)),
		meta:    make(map[pageKey]store.PageMetadata, len(t.meta)),
	}
	for k, v := range t.items {
		c.items[k] = v
	}
	for q, rows := range t.entries {
		m := make(map[entryKey]store.ListingEntry, len(rows))
		for k, v := range rows {
			m[k] = v
		}
		c.entries[q] = m
	}
	for k, v := range t.meta {
		c.meta[k] = v
	}
	return c
}

func (t *tables) pageNumbers(queryKey string) []int64 {
	seen := make(map[int64]struct{})
	for k := range t.entries[queryKey] {
		seen[k.page] = struct{}{}
	}
	for k := range t.meta {
		if k.queryKey == queryKey {
			seen[k.page] = struct{}{}
		}
	}

	pages := make([]int64, 0, len(seen))
	for p := range seen {
		pages = append(pages, p)
	}
	sort.Slice(pages, func(i, j int) bool { return pages[i] < pages[j] })
	return pages
}

// Store is an in-memory store.Store.
type Store struct {
	writeMu sync.Mutex
	mu      sync.RWMutex
	data    *tables
	closed  bool
	broker  store.Broker
}

var _ store.Store = (*Store)(nil)

// New creates an empty Store.
func New() *Store {
	return &Store{data: newTables()}
}

func (s *Store) snapshot() (*tables, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, store.ErrClosed
	}
	return s.data, nil
}

// Listing implements store.Store.
func (s *Store) Listing(ctx context.Context, queryKey string) ([]store.ListingRow, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := s.snapshot()
	if err != nil {
		return nil, err
	}

	rows := make([]store.ListingRow, 0, len(data.entries[queryKey]))
	for _, e := range data.entries[queryKey] {
		item, ok := data.items[e.ItemID]
		if !ok {
			continue
		}
		rows = append(rows, store.ListingRow{
			ItemID:     e.ItemID,
			Order:      e.Order,
			PageNumber: e.PageNumber,
			Payload:    item.Payload,
		})
	}
	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].Order != rows[j].Order {
			return rows[i].Order < rows[j].Order
		}
		return rows[i].ItemID < rows[j].ItemID
	})
	return rows, nil
}

// PageNumbers implements store.Store.
func (s *Store) PageNumbers(ctx context.Context, queryKey string) ([]int64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := s.snapshot()
	if err != nil {
		return nil, err
	}
	return data.pageNumbers(queryKey), nil
}

// LatestPage implements store.Store.
func (s *Store) LatestPage(ctx context.Context, queryKey string) (store.PageMetadata, error) {
	if err := ctx.Err(); err != nil {
		return store.PageMetadata{}, err
	}
	data, err := s.snapshot()
	if err != nil {
		return store.PageMetadata{}, err
	}

	var (
		latest store.PageMetadata
		found  bool
	)
	for k, m := range data.meta {
		if k.queryKey != queryKey {
			continue
		}
		if !found || m.PageNumber > latest.PageNumber {
			latest, found = m, true
		}
	}
	if !found {
		return store.PageMetadata{}, store.ErrNotFound
	}
	return latest, nil
}

// Item implements store.Store.
func (s *Store) Item(ctx context.Context, id int64) (store.CachedItem, error) {
	if err := ctx.Err(); err != nil {
		return store.CachedItem{}, err
	}
	data, err := s.snapshot()
	if err != nil {
		return store.CachedItem{}, err
	}
	item, ok := data.items[id]
	if !ok {
		return store.CachedItem{}, store.ErrNotFound
	}
	return item, nil
}

// InTx implements store.Store. Writers are serialized; readers keep seeing
// the last committed tables until the transaction commits.
func (s *Store) InTx(ctx context.Context, fn func(tx store.Tx) error) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	base, err := s.snapshot()
	if err != nil {
		return err
	}

	tx := &tx{data: base.clone()}
	if err := fn(tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return errors.Wrap(err, "memstore: transaction aborted")
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return store.ErrClosed
	}
	s.data = tx.data
	s.mu.Unlock()

	s.broker.Publish(tx.changes.Change())
	return nil
}

// Subscribe implements store.Store.
func (s *Store) Subscribe(queryKey string) *store.Subscription {
	return s.broker.Subscribe(queryKey)
}

// Close implements store.Store.
func (s *Store) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	s.broker.Close()
	return nil
}

// ItemCount returns the number of cached items.
func (s *Store) ItemCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data.items)
}

// PageEntryCount returns the number of listing entries stored for a page.
func (s *Store) PageEntryCount(queryKey string, page int64) int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for k := range s.data.entries[queryKey] {
		if k.page == page {
			n++
		}
	}
	return n
}

type tx struct {
	data    *tables
	changes store.ChangeSet
}

func (t *tx) UpsertItem(ctx context.Context, item store.CachedItem) error {
	t.data.items[item.ID] = item
	t.changes.TouchAll()
	return nil
}

func (t *tx) InsertEntries(ctx context.Context, entries []store.ListingEntry) error {
	for _, e := range entries {
		rows, ok := t.data.entries[e.QueryKey]
		if !ok {
			rows = make(map[entryKey]store.ListingEntry)
			t.data.entries[e.QueryKey] = rows
		}
		k := entryKey{itemID: e.ItemID, page: e.PageNumber}
		if _, exists := rows[k]; exists {
			continue
		}
		rows[k] = e
		t.changes.Touch(e.QueryKey)
	}
	return nil
}

func (t *tx) UpsertPageMetadata(ctx context.Context, meta store.PageMetadata) error {
	t.data.meta[pageKey{queryKey: meta.QueryKey, page: meta.PageNumber}] = meta
	return nil
}

func (t *tx) DeletePageEntries(ctx context.Context, queryKey string, page int64) error {
	rows := t.data.entries[queryKey]
	for k := range rows {
		if k.page == page {
			delete(rows, k)
			t.changes.Touch(queryKey)
		}
	}
	return nil
}

func (t *tx) DeletePageMetadata(ctx context.Context, queryKey string, page int64) error {
	delete(t.data.meta, pageKey{queryKey: queryKey, page: page})
	return nil
}

func (t *tx) PageNumbers(ctx context.Context, queryKey string) ([]int64, error) {
	return t.data.pageNumbers(queryKey), nil
}
