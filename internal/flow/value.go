// Package flow holds observable values: a current value plus conflated
// change notifications for any number of watchers.
package flow

import "sync"

// Value holds the latest value of T and notifies watchers when it changes.
//
// Watchers see the most recent value only. A slow watcher misses
// intermediate values but never blocks Set.
type Value[T any] struct {
	mu       sync.RWMutex
	current  T
	equal    func(a, b T) bool
	watchers map[chan T]struct{}
}

// New creates a Value holding initial. equal decides whether a Set is a change;
// a nil equal treats every Set as a change.
func New[T any](initial T, equal func(a, b T) bool) *Value[T] {
	return &Value[T]{
		current:  initial,
		equal:    equal,
		watchers: make(map[chan T]struct{}),
	}
}

// Equal is an equality function for comparable types.
func Equal[T comparable](a, b T) bool {
	return a == b
}

// Get returns the current value.
func (v *Value[T]) Get() T {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.current
}

// Set stores next and notifies watchers. It reports whether the value changed.
func (v *Value[T]) Set(next T) bool {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.equal != nil && v.equal(v.current, next) {
		return false
	}
	v.current = next
	for w := range v.watchers {
		offer(w, next)
	}
	return true
}

// Watch returns a channel receiving the current value immediately and every
// later change. The returned function stops the watch and closes the channel.
func (v *Value[T]) Watch() (<-chan T, func()) {
	w := make(chan T, 1)

	v.mu.Lock()
	w <- v.current
	v.watchers[w] = struct{}{}
	v.mu.Unlock()

	var once sync.Once
	return w, func() {
		once.Do(func() {
			v.mu.Lock()
			defer v.mu.Unlock()
			if _, ok := v.watchers[w]; ok {
				delete(v.watchers, w)
				close(w)
			}
		})
	}
}

// Close closes every watcher channel.
func (v *Value[T]) Close() {
	v.mu.Lock()
	defer v.mu.Unlock()
	for w := range v.watchers {
		delete(v.watchers, w)
		close(w)
	}
}

// offer replaces any pending value in w with next. Callers hold v.mu, so
// there is a single sender per channel.
func offer[T any](w chan T, next T) {
	select {
	case <-w:
	default:
	}
	w <- next
}
