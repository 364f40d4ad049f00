package sqlboiler

import (
	"time"

	"github.com/sirupsen/logrus"
)

// DefaultChannel is the LISTEN/NOTIFY channel change notifications travel on.
const DefaultChannel = "paging_cache_changes"

// Option configures a Store.
type Option func(*options)

type options struct {
	channel      string
	logger       logrus.FieldLogger
	minReconnect time.Duration
	maxReconnect time.Duration
}

func defaultOptions() *options {
	return &options{
		channel:      DefaultChannel,
		logger:       logrus.StandardLogger(),
		minReconnect: 10 * time.Second,
		maxReconnect: time.Minute,
	}
}

// WithChannel sets the notification channel. Stores sharing a database must
// use the same channel to see each other's writes.
// Default: DefaultChannel
func WithChannel(channel string) Option {
	return func(o *options) {
		if channel != "" {
			o.channel = channel
		}
	}
}

// WithLogger sets the logger.
// Default: logrus.StandardLogger()
func WithLogger(logger logrus.FieldLogger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithReconnect sets the listener reconnect backoff bounds.
// Default: 10s and 1m
func WithReconnect(min, max time.Duration) Option {
	return func(o *options) {
		if min > 0 && max >= min {
			o.minReconnect = min
			o.maxReconnect = max
		}
	}
}
