package stream

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"

	"market_backend/internal/feature/marketdata/domain/entity"
)

// FeedState is the lifecycle phase of one upstream feed.
type FeedState int32

const (
	FeedStopped FeedState = iota
	FeedConnecting
	FeedStreaming
	FeedReconnecting
)

func (s FeedState) String() string {
	switch s {
	case FeedConnecting:
		return "connecting"
	case FeedStreaming:
		return "streaming"
	case FeedReconnecting:
		return "reconnecting"
	default:
		return "stopped"
	}
}

// Sink receives the output of a running feed.
type Sink interface {
	Emit(update entity.PriceUpdate)
	SetState(state FeedState)
}

// Feed is an upstream strategy. Run blocks until ctx is cancelled and must release
// every network handle before returning.
type Feed interface {
	Run(ctx context.Context, key entity.SubscriptionKey, sink Sink)
}

// Supervisor owns at most one running feed per subscription key and fans feed output
// out to the key's subscribers.
type Supervisor struct {
	registry *Registry
	feeds    map[entity.AssetClass]Feed
	classify func(symbol string) entity.AssetClass

	base   context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	running map[entity.SubscriptionKey]*feedHandle
	closed  bool
}

type feedHandle struct {
	key    entity.SubscriptionKey
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
	state  atomic.Int32
	sup    *Supervisor
}

// NewSupervisor wires a supervisor to registry. feeds maps each asset class to its strategy;
// classify decides the class of a symbol and defaults to entity.ClassifySymbol.
func NewSupervisor(registry *Registry, feeds map[entity.AssetClass]Feed, classify func(string) entity.AssetClass) *Supervisor {
	if classify == nil {
		classify = entity.ClassifySymbol
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Supervisor{
		registry: registry,
		feeds:    feeds,
		classify: classify,
		base:     ctx,
		cancel:   cancel,
		running:  make(map[entity.SubscriptionKey]*feedHandle),
	}
}

// Registry returns the subscription index the supervisor fans out from.
func (s *Supervisor) Registry() *Registry {
	return s.registry
}

// Start launches a feed for key. It is a no-op when one is already running.
func (s *Supervisor) Start(key entity.SubscriptionKey) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.startLocked(key)
}

// Stop cancels and forgets the feed for key, if any. It does not wait for the feed to exit.
func (s *Supervisor) Stop(key entity.SubscriptionKey) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopLocked(key)
}

// Connect registers a new subscriber.
func (s *Supervisor) Connect(sub Subscriber) {
	s.registry.Connect(sub)
}

// Subscribe records interest and starts the key's feed for its first subscriber.
func (s *Supervisor) Subscribe(sub Subscriber, key entity.SubscriptionKey) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	first := s.registry.Subscribe(sub, key)
	if first {
		s.startLocked(key)
	}
	return first
}

// Unsubscribe drops interest and stops the key's feed once it is orphaned.
func (s *Supervisor) Unsubscribe(sub Subscriber, key entity.SubscriptionKey) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	orphaned := s.registry.Unsubscribe(sub, key)
	if orphaned {
		s.stopLocked(key)
	}
	return orphaned
}

// Disconnect removes sub entirely and stops every feed it orphaned.
func (s *Supervisor) Disconnect(sub Subscriber) []entity.SubscriptionKey {
	s.mu.Lock()
	defer s.mu.Unlock()

	orphaned := s.registry.Disconnect(sub)
	for _, k := range orphaned {
		s.stopLocked(k)
	}
	return orphaned
}

func (s *Supervisor) startLocked(key entity.SubscriptionKey) {
	if s.closed {
		return
	}
	if _, ok := s.running[key]; ok {
		return
	}
	feed, ok := s.feeds[s.classify(key.Symbol)]
	if !ok {
		slog.Warn("no feed strategy for symbol", "key", key.String(), "asset_class", s.classify(key.Symbol))
		return
	}

	ctx, cancel := context.WithCancel(s.base)
	h := &feedHandle{key: key, ctx: ctx, cancel: cancel, done: make(chan struct{}), sup: s}
	h.state.Store(int32(FeedConnecting))
	s.running[key] = h

	go func() {
		defer close(h.done)
		defer h.state.Store(int32(FeedStopped))
		defer s.forget(h)
		feed.Run(ctx, key, h)
	}()
	slog.Info("feed started", "key", key.String())
}

func (s *Supervisor) stopLocked(key entity.SubscriptionKey) {
	h, ok := s.running[key]
	if !ok {
		return
	}
	delete(s.running, key)
	h.cancel()
	slog.Info("feed stopped", "key", key.String())
}

// forget drops h from the running table unless a newer feed already replaced it.
func (s *Supervisor) forget(h *feedHandle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cur, ok := s.running[h.key]; ok && cur == h {
		delete(s.running, h.key)
		h.cancel()
	}
}

// Active lists keys with a running feed.
func (s *Supervisor) Active() []entity.SubscriptionKey {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]entity.SubscriptionKey, 0, len(s.running))
	for k := range s.running {
		out = append(out, k)
	}
	return out
}

// State reports the lifecycle phase of key's feed.
func (s *Supervisor) State(key entity.SubscriptionKey) FeedState {
	s.mu.Lock()
	h, ok := s.running[key]
	s.mu.Unlock()
	if !ok {
		return FeedStopped
	}
	return FeedState(h.state.Load())
}

// Shutdown cancels every feed and waits for them to exit or for ctx to end.
// Later Start calls are ignored.
func (s *Supervisor) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	handles := make([]*feedHandle, 0, len(s.running))
	for k, h := range s.running {
		handles = append(handles, h)
		delete(s.running, k)
	}
	s.mu.Unlock()

	s.cancel()
	for _, h := range handles {
		select {
		case <-h.done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// fanOut delivers update to a snapshot of the key's subscribers. Subscribers whose delivery
// fails are disconnected and closed; it returns the keys orphaned by that cleanup.
func (s *Supervisor) fanOut(update entity.PriceUpdate) []entity.SubscriptionKey {
	var dead []Subscriber
	for _, sub := range s.registry.SubscribersOf(update.Key) {
		err := sub.Send(update)
		if errors.Is(err, ErrUndeliverable) {
			slog.Warn("skipping undeliverable update", "subscriber", sub.ID(), "key", update.Key.String(), "error", err)
			continue
		}
		if err != nil {
			slog.Warn("dropping subscriber after failed delivery", "subscriber", sub.ID(), "key", update.Key.String(), "error", err)
			dead = append(dead, sub)
		}
	}

	var orphaned []entity.SubscriptionKey
	for _, sub := range dead {
		orphaned = append(orphaned, s.Disconnect(sub)...)
		if err := sub.Close(); err != nil {
			slog.Debug("close dead subscriber", "subscriber", sub.ID(), "error", err)
		}
	}
	return orphaned
}

// Emit forwards a feed update unless the feed has been cancelled or the candle is invalid.
func (h *feedHandle) Emit(update entity.PriceUpdate) {
	if h.ctx.Err() != nil {
		return
	}
	if err := update.Candle.Validate(); err != nil {
		slog.Warn("dropping invalid candle", "key", update.Key.String(), "error", err)
		return
	}
	h.sup.fanOut(update)
}

func (h *feedHandle) SetState(state FeedState) {
	h.state.Store(int32(state))
}

// Connections returns the number of connected subscribers.
func (s *Supervisor) Connections() int {
	return s.registry.Count()
}

// ActiveFeeds returns the number of running feeds.
func (s *Supervisor) ActiveFeeds() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.running)
}
