package stream

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"market_backend/internal/feature/marketdata/domain/entity"
)

// scriptedFeed counts Run calls and forwards updates written to in until cancelled.
type scriptedFeed struct {
	in     chan entity.PriceUpdate
	exited chan entity.SubscriptionKey

	mu   sync.Mutex
	runs map[entity.SubscriptionKey]int
}

func newScriptedFeed() *scriptedFeed {
	return &scriptedFeed{
		in:     make(chan entity.PriceUpdate),
		exited: make(chan entity.SubscriptionKey, 16),
		runs:   map[entity.SubscriptionKey]int{},
	}
}

func (f *scriptedFeed) Run(ctx context.Context, key entity.SubscriptionKey, sink Sink) {
	f.mu.Lock()
	f.runs[key]++
	f.mu.Unlock()
	sink.SetState(FeedStreaming)
	defer func() { f.exited <- key }()

	for {
		select {
		case <-ctx.Done():
			return
		case u := <-f.in:
			sink.Emit(u)
		}
	}
}

func (f *scriptedFeed) runCount(key entity.SubscriptionKey) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.runs[key]
}

func waitExited(t *testing.T, f *scriptedFeed, want entity.SubscriptionKey) {
	t.Helper()
	select {
	case got := <-f.exited:
		assert.Equal(t, want, got)
	case <-time.After(2 * time.Second):
		t.Fatalf("feed for %s did not exit", want)
	}
}

func newTestSupervisor(feed Feed) *Supervisor {
	return NewSupervisor(NewRegistry(), map[entity.AssetClass]Feed{
		entity.AssetClassCrypto: feed,
		entity.AssetClassForex:  feed,
	}, nil)
}

func TestSupervisor_StartIsIdempotent(t *testing.T) {
	t.Parallel()

	feed := newScriptedFeed()
	sup := newTestSupervisor(feed)
	t.Cleanup(func() { _ = sup.Shutdown(context.Background()) })

	sup.Start(keyBTC)
	sup.Start(keyBTC)

	require.Eventually(t, func() bool { return sup.State(keyBTC) == FeedStreaming }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, feed.runCount(keyBTC))
	assert.Equal(t, []entity.SubscriptionKey{keyBTC}, sup.Active())

	sup.Stop(keyBTC)
	waitExited(t, feed, keyBTC)
	assert.Equal(t, FeedStopped, sup.State(keyBTC))
	assert.Empty(t, sup.Active())

	sup.Stop(keyBTC) // no-op

	sup.Start(keyBTC)
	require.Eventually(t, func() bool { return feed.runCount(keyBTC) == 2 }, time.Second, 5*time.Millisecond)
}

func TestSupervisor_SubscribeLifecycle(t *testing.T) {
	t.Parallel()

	feed := newScriptedFeed()
	sup := newTestSupervisor(feed)
	t.Cleanup(func() { _ = sup.Shutdown(context.Background()) })
	a, b := newFakeSubscriber("a"), newFakeSubscriber("b")
	sup.Connect(a)
	sup.Connect(b)

	assert.True(t, sup.Subscribe(a, keyEUR))
	assert.False(t, sup.Subscribe(b, keyEUR))
	require.Eventually(t, func() bool { return feed.runCount(keyEUR) == 1 }, time.Second, 5*time.Millisecond)

	assert.False(t, sup.Unsubscribe(a, keyEUR))
	assert.Contains(t, sup.Active(), keyEUR)

	assert.Equal(t, []entity.SubscriptionKey{keyEUR}, sup.Disconnect(b))
	waitExited(t, feed, keyEUR)
	assert.Empty(t, sup.Active())
	assert.Equal(t, 1, feed.runCount(keyEUR))
}

func TestSupervisor_FanOutDeadPeerCleanup(t *testing.T) {
	t.Parallel()

	sup := newTestSupervisor(newScriptedFeed())
	t.Cleanup(func() { _ = sup.Shutdown(context.Background()) })
	a := newFakeSubscriber("a")
	b := newFakeSubscriber("b")
	b.sendErr = errors.New("broken pipe")

	sup.Subscribe(a, keyBTC)
	sup.Subscribe(b, keyBTC)
	sup.Subscribe(b, keyETH)

	update := entity.PriceUpdate{Key: keyBTC, Candle: entity.Candle{Time: 60, Close: 1}}
	orphaned := sup.fanOut(update)

	assert.Equal(t, []entity.PriceUpdate{update}, a.updates())
	assert.ElementsMatch(t, []entity.SubscriptionKey{keyETH}, orphaned)
	assert.False(t, sup.Registry().IsConnected(b))
	assert.True(t, b.isClosed())
	assert.Len(t, sup.Registry().SubscribersOf(keyBTC), 1)
	assert.NotContains(t, sup.Active(), keyETH)
	assert.Contains(t, sup.Active(), keyBTC)
}

func TestSupervisor_FanOutKeepsUndeliverableSubscriber(t *testing.T) {
	t.Parallel()

	sup := newTestSupervisor(newScriptedFeed())
	t.Cleanup(func() { _ = sup.Shutdown(context.Background()) })
	a := newFakeSubscriber("a")
	b := newFakeSubscriber("b")
	b.sendErr = fmt.Errorf("%w: json: unsupported value: NaN", ErrUndeliverable)

	sup.Subscribe(a, keyBTC)
	sup.Subscribe(b, keyBTC)

	update := entity.PriceUpdate{Key: keyBTC, Candle: entity.Candle{Time: 60, Close: 1}}
	orphaned := sup.fanOut(update)

	// エンコードできない更新は接続断として扱わない
	assert.Empty(t, orphaned)
	assert.Equal(t, []entity.PriceUpdate{update}, a.updates())
	assert.True(t, sup.Registry().IsConnected(b))
	assert.False(t, b.isClosed())
	assert.Len(t, sup.Registry().SubscribersOf(keyBTC), 2)
	assert.Contains(t, sup.Active(), keyBTC)
}

func TestSupervisor_EmitDropsInvalidCandle(t *testing.T) {
	t.Parallel()

	feed := newScriptedFeed()
	sup := newTestSupervisor(feed)
	t.Cleanup(func() { _ = sup.Shutdown(context.Background()) })
	a := newFakeSubscriber("a")
	sup.Subscribe(a, keyBTC)
	require.Eventually(t, func() bool { return feed.runCount(keyBTC) == 1 }, time.Second, 5*time.Millisecond)

	feed.in <- entity.PriceUpdate{Key: keyBTC, Candle: entity.Candle{Time: 60, Open: math.NaN()}}
	feed.in <- entity.PriceUpdate{Key: keyBTC, Candle: entity.Candle{Time: 120, Close: -1}}
	feed.in <- entity.PriceUpdate{Key: keyBTC, Candle: entity.Candle{Time: 180, Close: 2}}

	require.Eventually(t, func() bool { return len(a.updates()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, int64(180), a.updates()[0].Candle.Time)
	assert.True(t, sup.Registry().IsConnected(a))
	assert.Contains(t, sup.Active(), keyBTC)
}

func TestSupervisor_FanOutLastSubscriberOrphans(t *testing.T) {
	t.Parallel()

	feed := newScriptedFeed()
	sup := newTestSupervisor(feed)
	t.Cleanup(func() { _ = sup.Shutdown(context.Background()) })
	b := newFakeSubscriber("b")
	b.sendErr = errors.New("closed")
	sup.Subscribe(b, keyBTC)
	require.Eventually(t, func() bool { return feed.runCount(keyBTC) == 1 }, time.Second, 5*time.Millisecond)

	// Route through the running feed so cleanup happens on the feed's own goroutine.
	feed.in <- entity.PriceUpdate{Key: keyBTC}

	waitExited(t, feed, keyBTC)
	assert.False(t, sup.Registry().HasSubscribers(keyBTC))
	assert.Empty(t, sup.Active())
}

func TestSupervisor_PreservesUpdateOrder(t *testing.T) {
	t.Parallel()

	feed := newScriptedFeed()
	sup := newTestSupervisor(feed)
	t.Cleanup(func() { _ = sup.Shutdown(context.Background()) })
	a := newFakeSubscriber("a")
	sup.Subscribe(a, keyBTC)

	for i := 0; i < 50; i++ {
		feed.in <- entity.PriceUpdate{Key: keyBTC, Candle: entity.Candle{Time: int64(i * 60)}}
	}

	require.Eventually(t, func() bool { return len(a.updates()) == 50 }, time.Second, 5*time.Millisecond)
	for i, u := range a.updates() {
		assert.Equal(t, int64(i*60), u.Candle.Time)
	}
}

func TestSupervisor_UnknownAssetClassIsIgnored(t *testing.T) {
	t.Parallel()

	sup := NewSupervisor(NewRegistry(), map[entity.AssetClass]Feed{}, nil)
	sup.Start(keyBTC)

	assert.Empty(t, sup.Active())
	assert.Equal(t, FeedStopped, sup.State(keyBTC))
}

func TestSupervisor_Shutdown(t *testing.T) {
	t.Parallel()

	feed := newScriptedFeed()
	sup := newTestSupervisor(feed)
	sup.Start(keyBTC)
	sup.Start(keyEUR)
	require.Eventually(t, func() bool {
		return feed.runCount(keyBTC) == 1 && feed.runCount(keyEUR) == 1
	}, time.Second, 5*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, sup.Shutdown(ctx))
	assert.Empty(t, sup.Active())

	sup.Start(keyETH)
	assert.Empty(t, sup.Active(), "start after shutdown is ignored")
}
