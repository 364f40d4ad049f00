package paging

import (
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/nrfta/paging-cache/internal/workers"
)

// Option configures a paginator.
type Option func(*options)

type options struct {
	config   Config
	logger   logrus.FieldLogger
	pool     *workers.Pool
	poolSize int
	clock    func() time.Time
	onClose  func(id uuid.UUID)
}

func defaultOptions() *options {
	return &options{
		config: DefaultConfig(),
		logger: logrus.StandardLogger(),
		clock:  time.Now,
	}
}

// WithConfig sets the paginator configuration.
// Default: DefaultConfig()
func WithConfig(cfg Config) Option {
	return func(o *options) {
		o.config = cfg
	}
}

// WithLogger sets the logger. Entries carry query_key and paginator_id fields.
// Default: logrus.StandardLogger()
func WithLogger(logger logrus.FieldLogger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithMaxConcurrentLoads bounds how many page loads of this paginator run at
// once. Paginators created through a Repository share the repository's limit
// instead.
// Default: GOMAXPROCS*4
func WithMaxConcurrentLoads(n int) Option {
	return func(o *options) {
		o.poolSize = n
	}
}

// WithClock sets the time source used for item UpdatedAt stamps.
// Default: time.Now
func WithClock(clock func() time.Time) Option {
	return func(o *options) {
		if clock != nil {
			o.clock = clock
		}
	}
}

func withPool(pool *workers.Pool) Option {
	return func(o *options) {
		o.pool = pool
	}
}

// withCloseHook registers fn to run once the paginator has closed.
func withCloseHook(fn func(id uuid.UUID)) Option {
	return func(o *options) {
		o.onClose = fn
	}
}
