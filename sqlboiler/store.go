// Package sqlboiler implements store.Store on PostgreSQL.
//
// Reads are built from SQLBoiler query mods and bound into the store record
// types. Writes use raw statements generated with strmangle in the same
// dialect. Every committed transaction announces the listings it touched with
// pg_notify, so stores in other processes sharing the database can wake their
// subscribers once Listen is running.
//
// Example:
//
//	db, _ := sql.Open("postgres", connStr)
//	st := sqlboiler.New(db)
//	if err := st.Migrate(ctx); err != nil {
//	    return err
//	}
//	if err := st.Listen(connStr); err != nil {
//	    return err
//	}
//	defer st.Close()
package sqlboiler

import (
	"context"
	"database/sql"
	"sync"

	"github.com/aarondl/sqlboiler/v4/queries"
	"github.com/friendsofgo/errors"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/sirupsen/logrus"

	"github.com/nrfta/paging-cache/store"
)

var _ store.Store = (*Store)(nil)

// Store is a PostgreSQL-backed store.Store. The *sql.DB is owned by the
// caller and is not closed by Close.
type Store struct {
	db     *sql.DB
	opts   *options
	log    logrus.FieldLogger
	origin uuid.UUID
	broker store.Broker

	mu       sync.Mutex
	closed   bool
	listener *pq.Listener
	done     chan struct{}
	stopped  chan struct{}
}

// New wraps db in a store. Call Migrate before first use on a fresh database.
func New(db *sql.DB, opts ...Option) *Store {
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}

	origin := uuid.New()
	return &Store{
		db:     db,
		opts:   o,
		origin: origin,
		log: o.logger.WithFields(logrus.Fields{
			"store_origin": origin.String(),
			"channel":      o.channel,
		}),
		done: make(chan struct{}),
	}
}

// Origin identifies this store in change notifications.
func (s *Store) Origin() uuid.UUID {
	return s.origin
}

// Listing implements store.Store.
func (s *Store) Listing(ctx context.Context, queryKey string) ([]store.ListingRow, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	var rows []store.ListingRow
	if err := newQuery(ListingMods(queryKey)...).Bind(ctx, s.db, &rows); err != nil {
		return nil, errors.Wrapf(err, "read listing of %q", queryKey)
	}
	return rows, nil
}

// PageNumbers implements store.Store.
func (s *Store) PageNumbers(ctx context.Context, queryKey string) ([]int64, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	return pageNumbers(ctx, s.db, queryKey)
}

// LatestPage implements store.Store.
func (s *Store) LatestPage(ctx context.Context, queryKey string) (store.PageMetadata, error) {
	if err := s.checkOpen(); err != nil {
		return store.PageMetadata{}, err
	}

	var meta store.PageMetadata
	err := newQuery(LatestPageMods(queryKey)...).Bind(ctx, s.db, &meta)
	if errors.Is(err, sql.ErrNoRows) {
		return store.PageMetadata{}, store.ErrNotFound
	}
	if err != nil {
		return store.PageMetadata{}, errors.Wrapf(err, "read latest page of %q", queryKey)
	}
	return meta, nil
}

// Item implements store.Store.
func (s *Store) Item(ctx context.Context, id int64) (store.CachedItem, error) {
	if err := s.checkOpen(); err != nil {
		return store.CachedItem{}, err
	}

	var item store.CachedItem
	err := newQuery(ItemMods(id)...).Bind(ctx, s.db, &item)
	if errors.Is(err, sql.ErrNoRows) {
		return store.CachedItem{}, store.ErrNotFound
	}
	if err != nil {
		return store.CachedItem{}, errors.Wrapf(err, "read item %d", id)
	}
	return item, nil
}

// InTx implements store.Store.
func (s *Store) InTx(ctx context.Context, fn func(tx store.Tx) error) error {
	if err := s.checkOpen(); err != nil {
		return err
	}

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "begin transaction")
	}

	t := &tx{exec: sqlTx}
	if err := fn(t); err != nil {
		if rbErr := sqlTx.Rollback(); rbErr != nil {
			s.log.WithError(rbErr).Warn("rollback failed")
		}
		return err
	}

	change := t.changes.Change()
	if !change.Empty() {
		payload, err := encodeNotification(s.origin, change)
		if err != nil {
			_ = sqlTx.Rollback()
			return err
		}
		// NOTIFY is delivered on commit only, so listeners never see a
		// rolled back change.
		if _, err := queries.Raw("SELECT pg_notify($1, $2)", s.opts.channel, payload).ExecContext(ctx, sqlTx); err != nil {
			_ = sqlTx.Rollback()
			return errors.Wrap(err, "queue change notification")
		}
	}

	if err := sqlTx.Commit(); err != nil {
		return errors.Wrap(err, "commit transaction")
	}

	s.broker.Publish(change)
	return nil
}

// Subscribe implements store.Store.
func (s *Store) Subscribe(queryKey string) *store.Subscription {
	return s.broker.Subscribe(queryKey)
}

// Close stops the listener and closes every subscription.
func (s *Store) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	close(s.done)
	listener, stopped := s.listener, s.stopped
	s.mu.Unlock()

	var err error
	if listener != nil {
		if closeErr := listener.Close(); closeErr != nil {
			err = errors.Wrap(closeErr, "close listener")
		}
		<-stopped
	}

	s.broker.Close()
	return err
}

func (s *Store) checkOpen() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return store.ErrClosed
	}
	return nil
}

type pageNumberRow struct {
	PageNumber int64 `boil:"page_number"`
}

func pageNumbers(ctx context.Context, exec boilExecutor, queryKey string) ([]int64, error) {
	var rows []pageNumberRow
	if err := queries.Raw(pageNumbersSQL, queryKey).Bind(ctx, exec, &rows); err != nil {
		return nil, errors.Wrapf(err, "read page numbers of %q", queryKey)
	}

	pages := make([]int64, len(rows))
	for i, row := range rows {
		pages[i] = row.PageNumber
	}
	return pages, nil
}
