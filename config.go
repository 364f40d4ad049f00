package paging

import (
	"fmt"
	"os"

	"github.com/friendsofgo/errors"
	"gopkg.in/yaml.v3"
)

const (
	// DefaultPageSize is the number of records per page when not configured.
	DefaultPageSize = 60

	// DefaultPrefetchDistance is how many pages after the requested one are
	// loaded ahead of time.
	DefaultPrefetchDistance = 1

	// DefaultInitialPageKey is the first page number of a listing.
	DefaultInitialPageKey = 0

	// DefaultMaxPagesInDB is the number of pages kept per query after pruning.
	DefaultMaxPagesInDB = 3

	// pruneSlack is how far the stored page count may exceed MaxPagesInDB
	// before pruning starts.
	pruneSlack = 2
)

// Config holds the paginator configuration. It is fixed for the lifetime of a
// paginator.
//
// Use NewConfig() to create a config with defaults, then customize using the
// With* methods.
//
// Example:
//
//	cfg := paging.NewConfig().WithPageSize(25).WithMaxPagesInDB(5)
type Config struct {
	// PageSize is the number of records per page.
	PageSize int `yaml:"page_size"`

	// PrefetchDistance is the number of pages loaded after a requested page.
	// Zero disables prefetching.
	PrefetchDistance int `yaml:"prefetch_distance"`

	// InitialPageKey is the lowest page number ever requested.
	InitialPageKey int `yaml:"initial_page_key"`

	// MaxPagesInDB bounds how many pages of one query stay in the store.
	MaxPagesInDB int `yaml:"max_pages_in_db"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		PageSize:         DefaultPageSize,
		PrefetchDistance: DefaultPrefetchDistance,
		InitialPageKey:   DefaultInitialPageKey,
		MaxPagesInDB:     DefaultMaxPagesInDB,
	}
}

// NewConfig creates a Config with defaults:
// - PageSize: 60
// - PrefetchDistance: 1
// - InitialPageKey: 0
// - MaxPagesInDB: 3
func NewConfig() *Config {
	cfg := DefaultConfig()
	return &cfg
}

// WithPageSize sets the page size and returns the config for chaining.
func (c *Config) WithPageSize(size int) *Config {
	if size > 0 {
		c.PageSize = size
	}
	return c
}

// WithPrefetchDistance sets the prefetch distance and returns the config for chaining.
func (c *Config) WithPrefetchDistance(distance int) *Config {
	if distance >= 0 {
		c.PrefetchDistance = distance
	}
	return c
}

// WithInitialPageKey sets the initial page and returns the config for chaining.
func (c *Config) WithInitialPageKey(page int) *Config {
	if page >= 0 {
		c.InitialPageKey = page
	}
	return c
}

// WithMaxPagesInDB sets the page budget and returns the config for chaining.
func (c *Config) WithMaxPagesInDB(pages int) *Config {
	if pages > 0 {
		c.MaxPagesInDB = pages
	}
	return c
}

// Validate checks every field and returns a *ConfigError for the first
// invalid one.
func (c Config) Validate() error {
	switch {
	case c.PageSize < 1:
		return &ConfigError{Field: "page_size", Value: c.PageSize, Reason: "must be at least 1"}
	case c.PrefetchDistance < 0:
		return &ConfigError{Field: "prefetch_distance", Value: c.PrefetchDistance, Reason: "must not be negative"}
	case c.InitialPageKey < 0:
		return &ConfigError{Field: "initial_page_key", Value: c.InitialPageKey, Reason: "must not be negative"}
	case c.MaxPagesInDB < 1:
		return &ConfigError{Field: "max_pages_in_db", Value: c.MaxPagesInDB, Reason: "must be at least 1"}
	}
	return nil
}

// ParseConfig decodes YAML into a Config. Keys missing from data keep their
// default values.
//
// Example:
//
//	page_size: 25
//	max_pages_in_db: 6
func ParseConfig(data []byte) (Config, error) {
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, errors.Wrap(err, "parse paginator config")
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadConfig reads and parses a YAML config file.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, errors.Wrapf(err, "read paginator config %s", path)
	}
	return ParseConfig(data)
}

// ConfigError is returned when a configuration value is out of range.
type ConfigError struct {
	Field  string
	Value  int
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid paginator config: %s=%d %s", e.Field, e.Value, e.Reason)
}
