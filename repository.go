package paging

import (
	"sync"

	"github.com/friendsofgo/errors"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/nrfta/paging-cache/internal/workers"
	"github.com/nrfta/paging-cache/store"
)

// Repository creates paginators that share one store, one logger and one
// bound on concurrent page loads.
//
// Example usage:
//
//	repo := paging.NewRepository(st, paging.WithRepositoryLogger(log))
//	defer repo.Close()
//
//	posts, err := paging.Paginate(repo, "feed:home", postSource, func(p *Post) int64 { return p.ID })
type Repository struct {
	store  store.Store
	pool   *workers.Pool
	logger logrus.FieldLogger

	mu         sync.Mutex
	paginators map[uuid.UUID]interface{ Close() error }
	closed     bool
}

// RepositoryOption configures a Repository.
type RepositoryOption func(*Repository)

// WithRepositoryLogger sets the logger handed to every paginator.
func WithRepositoryLogger(logger logrus.FieldLogger) RepositoryOption {
	return func(r *Repository) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithMaxLoads bounds the page loads running at once across all paginators
// of the repository.
func WithMaxLoads(n int) RepositoryOption {
	return func(r *Repository) {
		r.pool = workers.New(n)
	}
}

// NewRepository creates a repository over st. The caller keeps ownership of
// st and closes it after the repository.
func NewRepository(st store.Store, opts ...RepositoryOption) *Repository {
	r := &Repository{
		store:      st,
		logger:     logrus.StandardLogger(),
		paginators: make(map[uuid.UUID]interface{ Close() error }),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.pool == nil {
		r.pool = workers.New(0)
	}
	return r
}

// Store returns the shared store.
func (r *Repository) Store() store.Store {
	return r.store
}

// Paginate creates a paginator for queryKey bound to the repository's store
// and worker pool, using the JSON codec. Options are applied after the
// repository defaults.
func Paginate[T any](r *Repository, queryKey string, source PageSource[T], idOf IDFunc[T], opts ...Option) (*StablePaginator[T], error) {
	return PaginateWithCodec(r, queryKey, source, nil, idOf, opts...)
}

// PaginateWithCodec is Paginate with an explicit codec.
func PaginateWithCodec[T any](
	r *Repository,
	queryKey string,
	source PageSource[T],
	codec Codec[T],
	idOf IDFunc[T],
	opts ...Option,
) (*StablePaginator[T], error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil, errors.New("paging: repository closed")
	}

	all := append([]Option{WithLogger(r.logger), withPool(r.pool)}, opts...)
	all = append(all, withCloseHook(r.forget))
	p, err := New(r.store, queryKey, source, codec, idOf, all...)
	if err != nil {
		return nil, err
	}
	r.paginators[p.ID()] = p
	return p, nil
}

// Open returns the number of paginators created by the repository that have
// not been closed.
func (r *Repository) Open() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.paginators)
}

func (r *Repository) forget(id uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.paginators, id)
}

// Close closes every open paginator created by the repository.
func (r *Repository) Close() error {
	r.mu.Lock()
	paginators := r.paginators
	r.paginators = nil
	r.closed = true
	r.mu.Unlock()

	for _, p := range paginators {
		_ = p.Close()
	}
	return nil
}
