package store

import (
	"sort"
	"sync"
)

// Change describes which listings a committed transaction touched.
type Change struct {
	// QueryKeys lists the queries whose listing entries changed.
	QueryKeys []string

	// AllQueries is set when item payloads changed. Every listing joins item
	// payloads, so every subscriber has to re-read.
	AllQueries bool
}

// Empty reports whether the change touches nothing.
func (c Change) Empty() bool {
	return !c.AllQueries && len(c.QueryKeys) == 0
}

// ChangeSet accumulates the effects of one transaction.
type ChangeSet struct {
	keys map[string]struct{}
	all  bool
}

// Touch marks queryKey's listing as changed.
func (s *ChangeSet) Touch(queryKey string) {
	if s.keys == nil {
		s.keys = make(map[string]struct{})
	}
	s.keys[queryKey] = struct{}{}
}

// TouchAll marks every listing as changed.
func (s *ChangeSet) TouchAll() {
	s.all = true
}

// Change returns the accumulated change with query keys sorted.
func (s *ChangeSet) Change() Change {
	keys := make([]string, 0, len(s.keys))
	for k := range s.keys {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return Change{QueryKeys: keys, AllQueries: s.all}
}

// Subscription delivers change signals for one query key.
//
// Signals are coalesced: C has a buffer of one, and a signal sent while one is
// already pending is dropped. A receiver re-reads full state on every signal,
// so no information is lost.
type Subscription struct {
	C <-chan struct{}

	c        chan struct{}
	queryKey string
	broker   *Broker
	once     sync.Once
}

// Close unregisters the subscription. C is closed afterwards.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.broker.remove(s)
	})
}

func (s *Subscription) signal() {
	select {
	case s.c <- struct{}{}:
	default:
	}
}

// Broker fans committed changes out to subscriptions.
// The zero value is ready to use.
type Broker struct {
	mu     sync.Mutex
	subs   map[*Subscription]struct{}
	closed bool
}

// Subscribe returns a subscription for queryKey. Subscribing to a closed
// broker returns a subscription whose channel is already closed.
func (b *Broker) Subscribe(queryKey string) *Subscription {
	c := make(chan struct{}, 1)
	sub := &Subscription{C: c, c: c, queryKey: queryKey, broker: b}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		close(c)
		sub.once.Do(func() {})
		return sub
	}
	if b.subs == nil {
		b.subs = make(map[*Subscription]struct{})
	}
	b.subs[sub] = struct{}{}
	return sub
}

// Publish signals every subscription affected by change.
func (b *Broker) Publish(change Change) {
	if change.Empty() {
		return
	}

	keys := make(map[string]struct{}, len(change.QueryKeys))
	for _, k := range change.QueryKeys {
		keys[k] = struct{}{}
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	for sub := range b.subs {
		if _, ok := keys[sub.queryKey]; ok || change.AllQueries {
			sub.signal()
		}
	}
}

// Close closes every subscription and rejects new ones.
func (b *Broker) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	for sub := range b.subs {
		close(sub.c)
		delete(b.subs, sub)
	}
}

func (b *Broker) remove(sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.subs[sub]; !ok {
		return
	}
	delete(b.subs, sub)
	close(sub.c)
}
