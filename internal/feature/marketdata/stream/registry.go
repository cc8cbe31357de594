// Package stream distributes live candle updates: it tracks which connections want which
// (symbol, interval) series and runs one upstream feed per series that has subscribers.
package stream

import (
	"errors"
	"sync"

	"market_backend/internal/feature/marketdata/domain/entity"
)

// ErrUndeliverable marks an update the subscriber could not encode. The subscriber itself
// is still healthy and stays registered.
var ErrUndeliverable = errors.New("update cannot be delivered")

// Subscriber is a handle to one live client connection. Identity is the handle itself.
type Subscriber interface {
	ID() string
	// Send must not block on the network. An error marks the subscriber as dead unless it
	// wraps ErrUndeliverable.
	Send(update entity.PriceUpdate) error
	Close() error
}

// Registry is a bidirectional index between subscribers and subscription keys.
// It never starts or stops feeds; callers act on the "first" and "orphaned" results.
type Registry struct {
	mu    sync.RWMutex
	conns map[Subscriber]map[entity.SubscriptionKey]struct{}
	subs  map[entity.SubscriptionKey]map[Subscriber]struct{}
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		conns: make(map[Subscriber]map[entity.SubscriptionKey]struct{}),
		subs:  make(map[entity.SubscriptionKey]map[Subscriber]struct{}),
	}
}

// Connect registers a subscriber with no subscriptions. Reconnecting a known handle is a no-op.
func (r *Registry) Connect(s Subscriber) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.conns[s]; !ok {
		r.conns[s] = make(map[entity.SubscriptionKey]struct{})
	}
}

// Disconnect removes s and every subscription it held. It returns the keys left without subscribers.
func (r *Registry) Disconnect(s Subscriber) []entity.SubscriptionKey {
	r.mu.Lock()
	defer r.mu.Unlock()

	keys, ok := r.conns[s]
	if !ok {
		return nil
	}
	delete(r.conns, s)

	var orphaned []entity.SubscriptionKey
	for k := range keys {
		if r.removeLocked(s, k) {
			orphaned = append(orphaned, k)
		}
	}
	return orphaned
}

// Subscribe records interest of s in key. It reports true when s is the key's first subscriber.
// An unknown subscriber is connected implicitly.
func (r *Registry) Subscribe(s Subscriber, key entity.SubscriptionKey) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	keys, ok := r.conns[s]
	if !ok {
		keys = make(map[entity.SubscriptionKey]struct{})
		r.conns[s] = keys
	}
	keys[key] = struct{}{}

	set, ok := r.subs[key]
	if !ok {
		set = make(map[Subscriber]struct{})
		r.subs[key] = set
	}
	first := len(set) == 0
	set[s] = struct{}{}
	return first
}

// Unsubscribe drops interest of s in key. It reports true when key has no subscribers left
// as a result of this call.
func (r *Registry) Unsubscribe(s Subscriber, key entity.SubscriptionKey) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if keys, ok := r.conns[s]; ok {
		delete(keys, key)
	}
	return r.removeLocked(s, key)
}

// removeLocked deletes s from key's set and drops the set once empty.
func (r *Registry) removeLocked(s Subscriber, key entity.SubscriptionKey) bool {
	set, ok := r.subs[key]
	if !ok {
		return false
	}
	if _, member := set[s]; !member {
		return false
	}
	delete(set, s)
	if len(set) == 0 {
		delete(r.subs, key)
		return true
	}
	return false
}

// SubscribersOf returns a snapshot of key's subscribers. Later mutations do not affect it.
func (r *Registry) SubscribersOf(key entity.SubscriptionKey) []Subscriber {
	r.mu.RLock()
	defer r.mu.RUnlock()

	set := r.subs[key]
	out := make([]Subscriber, 0, len(set))
	for s := range set {
		out = append(out, s)
	}
	return out
}

// HasSubscribers reports whether key has at least one subscriber.
func (r *Registry) HasSubscribers(key entity.SubscriptionKey) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.subs[key]) > 0
}

// IsConnected reports whether s is currently registered.
func (r *Registry) IsConnected(s Subscriber) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.conns[s]
	return ok
}

// Keys returns every key that currently has subscribers.
func (r *Registry) Keys() []entity.SubscriptionKey {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]entity.SubscriptionKey, 0, len(r.subs))
	for k := range r.subs {
		out = append(out, k)
	}
	return out
}

// Count returns the number of connected subscribers.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.conns)
}
