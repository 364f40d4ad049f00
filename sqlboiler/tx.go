package sqlboiler

import (
	"context"

	"github.com/aarondl/sqlboiler/v4/boil"
	"github.com/aarondl/sqlboiler/v4/queries"
	"github.com/friendsofgo/errors"

	"github.com/nrfta/paging-cache/store"
)

// boilExecutor is satisfied by both *sql.DB and *sql.Tx.
type boilExecutor = boil.ContextExecutor

// tx adapts a database transaction to store.Tx and records which listings
// it touched.
type tx struct {
	exec    boilExecutor
	changes store.ChangeSet
}

var _ store.Tx = (*tx)(nil)

func (t *tx) UpsertItem(ctx context.Context, item store.CachedItem) error {
	_, err := queries.Raw(upsertItemSQL, item.ID, item.Payload, item.UpdatedAt).ExecContext(ctx, t.exec)
	if err != nil {
		return errors.Wrapf(err, "upsert item %d", item.ID)
	}
	t.changes.TouchAll()
	return nil
}

func (t *tx) InsertEntries(ctx context.Context, entries []store.ListingEntry) error {
	for start := 0; start < len(entries); start += maxRowsPerInsert {
		end := min(start+maxRowsPerInsert, len(entries))
		chunk := entries[start:end]

		args := make([]interface{}, 0, len(chunk)*len(entryColumns))
		for _, e := range chunk {
			args = append(args, e.QueryKey, e.ItemID, e.Order, e.PageNumber)
		}

		if _, err := queries.Raw(insertEntriesSQL(len(chunk)), args...).ExecContext(ctx, t.exec); err != nil {
			return errors.Wrap(err, "insert listing entries")
		}
	}

	for _, e := range entries {
		t.changes.Touch(e.QueryKey)
	}
	return nil
}

func (t *tx) UpsertPageMetadata(ctx context.Context, meta store.PageMetadata) error {
	_, err := queries.Raw(upsertMetadataSQL,
		meta.QueryKey, meta.PageNumber, meta.NextPageKey, meta.TotalCount,
	).ExecContext(ctx, t.exec)
	if err != nil {
		return errors.Wrapf(err, "upsert metadata of page %d", meta.PageNumber)
	}
	t.changes.Touch(meta.QueryKey)
	return nil
}

func (t *tx) DeletePageEntries(ctx context.Context, queryKey string, page int64) error {
	res, err := queries.Raw(deleteEntriesSQL, queryKey, page).ExecContext(ctx, t.exec)
	if err != nil {
		return errors.Wrapf(err, "delete entries of page %d", page)
	}
	if n, err := res.RowsAffected(); err != nil || n > 0 {
		t.changes.Touch(queryKey)
	}
	return nil
}

func (t *tx) DeletePageMetadata(ctx context.Context, queryKey string, page int64) error {
	res, err := queries.Raw(deleteMetadataSQL, queryKey, page).ExecContext(ctx, t.exec)
	if err != nil {
		return errors.Wrapf(err, "delete metadata of page %d", page)
	}
	if n, err := res.RowsAffected(); err != nil || n > 0 {
		t.changes.Touch(queryKey)
	}
	return nil
}

func (t *tx) PageNumbers(ctx context.Context, queryKey string) ([]int64, error) {
	return pageNumbers(ctx, t.exec, queryKey)
}
