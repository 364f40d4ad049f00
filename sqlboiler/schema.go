package sqlboiler

import (
	"context"

	"github.com/friendsofgo/errors"
)

// Schema creates the cache tables. It is idempotent.
const Schema = `
CREATE TABLE IF NOT EXISTS paging_items (
	id BIGINT PRIMARY KEY,
	payload TEXT NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS paging_listing_entries (
	query_key TEXT NOT NULL,
	item_id BIGINT NOT NULL,
	item_order BIGINT NOT NULL,
	page_number BIGINT NOT NULL,
	PRIMARY KEY (query_key, item_id, page_number)
);

CREATE INDEX IF NOT EXISTS paging_listing_entries_order_idx
	ON paging_listing_entries (query_key, item_order);

CREATE INDEX IF NOT EXISTS paging_listing_entries_page_idx
	ON paging_listing_entries (query_key, page_number);

CREATE TABLE IF NOT EXISTS paging_page_metadata (
	query_key TEXT NOT NULL,
	page_number BIGINT NOT NULL,
	next_page_key TEXT,
	total_count BIGINT NOT NULL,
	PRIMARY KEY (query_key, page_number)
);
`

// Migrate creates the cache tables if they do not exist.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, Schema); err != nil {
		return errors.Wrap(err, "migrate paging cache schema")
	}
	return nil
}
