package stream

import (
	"sync"

	"market_backend/internal/feature/marketdata/domain/entity"
)

// fakeSubscriber records delivered updates. A non-nil sendErr makes every Send fail.
type fakeSubscriber struct {
	id      string
	sendErr error

	mu     sync.Mutex
	got    []entity.PriceUpdate
	closed bool
}

func newFakeSubscriber(id string) *fakeSubscriber {
	return &fakeSubscriber{id: id}
}

func (f *fakeSubscriber) ID() string { return f.id }

func (f *fakeSubscriber) Send(u entity.PriceUpdate) error {
	if f.sendErr != nil {
		return f.sendErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.got = append(f.got, u)
	return nil
}

func (f *fakeSubscriber) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeSubscriber) updates() []entity.PriceUpdate {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]entity.PriceUpdate(nil), f.got...)
}

func (f *fakeSubscriber) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}
