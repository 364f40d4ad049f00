package paging

import (
	"cmp"
	"context"
	"slices"
	"strconv"
	"sync"
	"time"

	"github.com/aarondl/null/v8"
	"github.com/friendsofgo/errors"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/nrfta/paging-cache/internal/flow"
	"github.com/nrfta/paging-cache/internal/workers"
	"github.com/nrfta/paging-cache/store"
)

// StablePaginator keeps a stable, store-backed projection of one paginated
// listing.
//
// Pages are fetched from a PageSource and written to the store in one
// transaction per page. A background goroutine watches the store and
// recomputes Items from the full listing whenever it changes, so the
// projection does not depend on the order in which pages commit.
//
// Load state transitions:
//   - INITIAL until the first load after construction or Reset drains
//   - NEXT while a non-forced load is in flight
//   - IDLE or END once every load has drained, END when the latest stored page
//     has no successor
//   - ERROR when a load fails while Items is empty; later loads never replace
//     ERROR when they drain, only a new load start or Reset does
type StablePaginator[T any] struct {
	queryKey string
	config   Config
	store    store.Store
	source   PageSource[T]
	codec    Codec[T]
	idOf     IDFunc[T]
	pool     *workers.Pool
	clock    func() time.Time
	id       uuid.UUID
	log      logrus.FieldLogger

	ctx    context.Context
	cancel context.CancelFunc
	tasks  sync.WaitGroup

	mu        sync.Mutex
	loads     *loadCoordinator
	epochCtx  context.Context
	epochStop context.CancelFunc
	closed    bool

	state *flow.Value[LoadState]
	total *flow.Value[int]
	items *flow.Value[map[int]T]

	sub           *store.Subscription
	projectorDone chan struct{}
	closeOnce     sync.Once
	onClose       func(id uuid.UUID)
}

var _ Paginator[any] = (*StablePaginator[any])(nil)

// New creates a paginator for queryKey and starts projecting the store's
// current contents. A nil codec selects JSONCodec.
//
// The paginator starts in the INITIAL state and ignores OnPrefetch until the
// first page has loaded; call Reset to load it.
//
// Example:
//
//	p, err := paging.New(st, "feed:home", source, nil, func(p *Post) int64 { return p.ID },
//	    paging.WithConfig(*paging.NewConfig().WithPageSize(25)),
//	)
//	if err != nil {
//	    return err
//	}
//	defer p.Close()
//	p.Reset(0)
func New[T any](
	st store.Store,
	queryKey string,
	source PageSource[T],
	codec Codec[T],
	idOf IDFunc[T],
	opts ...Option,
) (*StablePaginator[T], error) {
	switch {
	case st == nil:
		return nil, errors.New("paging: store is required")
	case source == nil:
		return nil, errors.New("paging: page source is required")
	case idOf == nil:
		return nil, errors.New("paging: id function is required")
	}
	if codec == nil {
		codec = JSONCodec[T]{}
	}

	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}
	if err := o.config.Validate(); err != nil {
		return nil, err
	}

	pool := o.pool
	if pool == nil {
		pool = workers.New(o.poolSize)
	}

	id := uuid.New()
	ctx, cancel := context.WithCancel(context.Background())

	p := &StablePaginator[T]{
		queryKey: queryKey,
		config:   o.config,
		store:    st,
		source:   source,
		codec:    codec,
		idOf:     idOf,
		pool:     pool,
		clock:    o.clock,
		id:       id,
		log: o.logger.WithFields(logrus.Fields{
			"query_key":    queryKey,
			"paginator_id": id.String(),
		}),
		ctx:           ctx,
		cancel:        cancel,
		loads:         newLoadCoordinator(),
		state:         flow.New(StateInitial, flow.Equal[LoadState]),
		total:         flow.New(0, flow.Equal[int]),
		items:         flow.New(map[int]T{}, nil),
		projectorDone: make(chan struct{}),
		onClose:       o.onClose,
	}
	p.epochCtx, p.epochStop = context.WithCancel(ctx)
	p.sub = st.Subscribe(queryKey)

	go p.runProjection()

	p.log.Debug("paginator created")
	return p, nil
}

// ID returns the instance id used in log entries.
func (p *StablePaginator[T]) ID() uuid.UUID {
	return p.id
}

// QueryKey returns the query this paginator is bound to.
func (p *StablePaginator[T]) QueryKey() string {
	return p.queryKey
}

// Config returns the paginator configuration.
func (p *StablePaginator[T]) Config() Config {
	return p.config
}

// Items implements Paginator.
func (p *StablePaginator[T]) Items() map[int]T {
	return p.items.Get()
}

// State implements Paginator.
func (p *StablePaginator[T]) State() LoadState {
	return p.state.Get()
}

// TotalCount implements Paginator. The value is taken from the latest fetch
// response before its page is committed, so it may run ahead of Items.
func (p *StablePaginator[T]) TotalCount() int {
	return p.total.Get()
}

// WatchItems streams projection updates, starting with the current one.
func (p *StablePaginator[T]) WatchItems() (<-chan map[int]T, func()) {
	return p.items.Watch()
}

// WatchState streams load state changes, starting with the current state.
func (p *StablePaginator[T]) WatchState() (<-chan LoadState, func()) {
	return p.state.Watch()
}

// WatchTotalCount streams total count changes, starting with the current count.
func (p *StablePaginator[T]) WatchTotalCount() (<-chan int, func()) {
	return p.total.Watch()
}

// Window returns the projection between start (inclusive) and end (exclusive).
func (p *StablePaginator[T]) Window(start, end int) Window[T] {
	return BuildWindow(p.Items(), start, end, p.TotalCount())
}

// OnPrefetch implements Paginator.
func (p *StablePaginator[T]) OnPrefetch(page int) {
	if p.State().Kind == Initial {
		return
	}
	p.loadPagesAround(page, false)
}

// Reset implements Paginator. Loads started before the reset are cancelled
// and their completion no longer affects the state.
func (p *StablePaginator[T]) Reset(index int) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.epochStop()
	epoch := p.loads.clear()
	p.epochCtx, p.epochStop = context.WithCancel(p.ctx)
	p.state.Set(StateInitial)
	p.mu.Unlock()

	target := max(index/p.config.PageSize, p.config.InitialPageKey)
	p.log.WithFields(logrus.Fields{"index": index, "page": target, "epoch": epoch}).Debug("reset")

	p.loadPagesAround(target, true)
}

// GetItem implements Paginator. It reports false when the item is not cached
// or its payload is a placeholder.
func (p *StablePaginator[T]) GetItem(ctx context.Context, id int64) (T, bool, error) {
	var zero T

	cached, err := p.store.Item(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return zero, false, nil
	}
	if err != nil {
		return zero, false, errors.Wrapf(err, "get item %d", id)
	}

	item, err := p.codec.Decode(cached.Payload)
	if errors.Is(err, ErrPlaceholder) {
		return zero, false, nil
	}
	if err != nil {
		return zero, false, errors.Wrapf(err, "get item %d", id)
	}
	return item, true, nil
}

// UpdateItem implements Paginator. Every listing showing the item picks up
// the new payload.
func (p *StablePaginator[T]) UpdateItem(ctx context.Context, id int64, item T) error {
	if p.isClosed() {
		return ErrClosed
	}

	payload, err := p.codec.Encode(item)
	if err != nil {
		return errors.Wrapf(err, "update item %d", id)
	}

	err = p.store.InTx(ctx, func(tx store.Tx) error {
		return tx.UpsertItem(ctx, store.CachedItem{ID: id, Payload: payload, UpdatedAt: p.clock()})
	})
	return errors.Wrapf(err, "update item %d", id)
}

// Close implements Paginator. It cancels in-flight loads, stops the
// projection and waits for every goroutine of the paginator to return.
func (p *StablePaginator[T]) Close() error {
	p.closeOnce.Do(func() {
		p.mu.Lock()
		p.closed = true
		p.epochStop()
		p.mu.Unlock()

		p.cancel()
		p.sub.Close()
		p.tasks.Wait()
		<-p.projectorDone

		p.state.Close()
		p.total.Close()
		p.items.Close()
		p.log.Debug("paginator closed")

		if p.onClose != nil {
			p.onClose(p.id)
		}
	})
	return nil
}

func (p *StablePaginator[T]) isClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

// loadPagesAround schedules target and the pages after it that fall within
// PrefetchDistance and, once the total is known, within the listing.
func (p *StablePaginator[T]) loadPagesAround(target int, force bool) {
	page := max(target, p.config.InitialPageKey)
	pages := []int{page}

	total := p.total.Get()
	for i := 1; i <= p.config.PrefetchDistance; i++ {
		next := page + i
		if total != 0 && next*p.config.PageSize >= total {
			break
		}
		pages = append(pages, next)
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	ctx, epoch := p.epochCtx, p.loads.epoch
	p.tasks.Add(len(pages))
	p.mu.Unlock()

	for _, pg := range pages {
		go func(pg int) {
			defer p.tasks.Done()
			err := p.pool.Run(ctx, func(ctx context.Context) {
				p.performPageLoad(ctx, pg, force, epoch)
			})
			if err != nil {
				p.log.WithError(err).WithField("page", pg).Debug("page load not started")
			}
		}(pg)
	}
}

func (p *StablePaginator[T]) performPageLoad(ctx context.Context, page int, force bool, epoch uint64) {
	p.mu.Lock()
	if !p.loads.acquire(page, epoch) {
		p.mu.Unlock()
		return
	}
	if p.state.Get().Kind != Initial && !force {
		p.state.Set(StateNext)
	}
	p.mu.Unlock()

	log := p.log.WithFields(logrus.Fields{"page": page, "epoch": epoch})
	defer p.finishLoad(page, epoch, log)

	err := p.loadPage(ctx, page)
	switch {
	case err == nil:
		log.Debug("page loaded")
	case isCancellation(ctx):
		log.WithError(err).Debug("page load cancelled")
	default:
		p.failLoad(err, epoch, log)
	}
}

// loadPage fetches a page and commits it with pruning in one transaction.
func (p *StablePaginator[T]) loadPage(ctx context.Context, page int) error {
	payload, err := p.source.FetchPage(ctx, page)
	if err != nil {
		return &FetchError{Page: page, Err: err}
	}
	p.total.Set(payload.TotalCount)

	now := p.clock()
	items := make([]store.CachedItem, 0, len(payload.Records))
	entries := make([]store.ListingEntry, 0, len(payload.Records))
	for i, record := range payload.Records {
		encoded, err := p.codec.Encode(record)
		if err != nil {
			return errors.Wrapf(err, "encode record %d of page %d", i, page)
		}
		id := p.idOf(record)
		items = append(items, store.CachedItem{ID: id, Payload: encoded, UpdatedAt: now})
		entries = append(entries, store.ListingEntry{
			QueryKey:   p.queryKey,
			ItemID:     id,
			Order:      int64(page*p.config.PageSize + i),
			PageNumber: int64(page),
		})
	}

	// Concurrent page loads lock item rows in the same order.
	slices.SortFunc(items, func(a, b store.CachedItem) int {
		return cmp.Compare(a.ID, b.ID)
	})

	meta := store.PageMetadata{
		QueryKey:   p.queryKey,
		PageNumber: int64(page),
		TotalCount: int64(payload.TotalCount),
	}
	if payload.HasMore(page, p.config.PageSize) {
		meta.NextPageKey = null.StringFrom(strconv.Itoa(page + 1))
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	err = p.store.InTx(ctx, func(tx store.Tx) error {
		for _, item := range items {
			if err := tx.UpsertItem(ctx, item); err != nil {
				return err
			}
		}
		if err := tx.DeletePageEntries(ctx, p.queryKey, int64(page)); err != nil {
			return err
		}
		if err := tx.InsertEntries(ctx, entries); err != nil {
			return err
		}
		if err := tx.UpsertPageMetadata(ctx, meta); err != nil {
			return err
		}
		return p.prune(ctx, tx, page)
	})
	return errors.Wrapf(err, "store page %d", page)
}

func (p *StablePaginator[T]) prune(ctx context.Context, tx store.Tx, current int) error {
	stored, err := tx.PageNumbers(ctx, p.queryKey)
	if err != nil {
		return errors.Wrap(err, "list stored pages")
	}

	evict := pagesToPrune(stored, int64(current), p.config.MaxPagesInDB)
	// Ascending order keeps concurrent prunes from locking pages in
	// opposite orders.
	slices.Sort(evict)
	for _, page := range evict {
		if err := tx.DeletePageEntries(ctx, p.queryKey, page); err != nil {
			return err
		}
		if err := tx.DeletePageMetadata(ctx, p.queryKey, page); err != nil {
			return err
		}
	}
	if len(evict) > 0 {
		p.log.WithFields(logrus.Fields{"page": current, "pruned": evict}).Debug("pruned pages")
	}
	return nil
}

func (p *StablePaginator[T]) failLoad(err error, epoch uint64, log logrus.FieldLogger) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if epoch != p.loads.epoch {
		return
	}
	if len(p.items.Get()) > 0 {
		log.WithError(err).Warn("page load failed, keeping cached items")
		return
	}
	p.state.Set(StateError(err.Error()))
	log.WithError(err).Error("page load failed")
}

// finishLoad releases the page and, when it was the last load in flight,
// settles the state on IDLE or END from the stored metadata.
func (p *StablePaginator[T]) finishLoad(page int, epoch uint64, log logrus.FieldLogger) {
	p.mu.Lock()
	drained := p.loads.release(page, epoch)
	gen := p.loads.gen
	failed := p.state.Get().IsError()
	p.mu.Unlock()

	if !drained || failed || p.ctx.Err() != nil {
		return
	}

	next := StateIdle
	latest, err := p.store.LatestPage(p.ctx, p.queryKey)
	switch {
	case err == nil:
		if !latest.HasNext() {
			next = StateEnd
		}
	case errors.Is(err, store.ErrNotFound):
	default:
		log.WithError(err).Warn("read latest page metadata")
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.loads.gen != gen || !p.loads.idle() || p.state.Get().IsError() {
		return
	}
	p.state.Set(next)
}

func (p *StablePaginator[T]) runProjection() {
	defer close(p.projectorDone)

	var (
		last []store.ListingRow
		read bool
	)
	refresh := func() {
		rows, err := p.store.Listing(p.ctx, p.queryKey)
		if err != nil {
			if p.ctx.Err() == nil {
				p.log.WithError(err).Error("read listing")
			}
			return
		}
		if read && slices.Equal(rows, last) {
			return
		}
		last, read = rows, true
		p.items.Set(project(rows, p.config.PageSize, p.codec))
	}

	refresh()
	for {
		select {
		case <-p.ctx.Done():
			return
		case _, ok := <-p.sub.C:
			if !ok {
				return
			}
			refresh()
		}
	}
}
