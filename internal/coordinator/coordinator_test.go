package coordinator

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"habitTrackerAPI/internal/cache"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func newTestCoordinator(opts ...Option) (*Coordinator, *fakeClock) {
	clock := &fakeClock{t: time.Date(2024, 1, 10, 9, 0, 0, 0, time.UTC)}
	store := cache.New(cache.WithClock(clock.Now))
	opts = append([]Option{WithClock(clock.Now)}, opts...)
	return New(store, opts...), clock
}

type fakeRemote struct {
	calls     atomic.Int32
	payload   any
	etag      string
	err       error
	gotETags  []string
	mu        sync.Mutex
	notModify bool
}

func (f *fakeRemote) fetch(_ context.Context, etag string) (Response, error) {
	f.calls.Add(1)
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gotETags = append(f.gotETags, etag)
	if f.err != nil {
		return Response{}, f.err
	}
	if f.notModify && etag != "" && etag == f.etag {
		return Response{NotModified: true}, nil
	}
	return Response{Payload: f.payload, ETag: f.etag}, nil
}

var habitsKey = cache.NewKey(cache.ResourceHabits)

func TestFetchThenCacheHit(t *testing.T) {
	c, clock := newTestCoordinator(WithTTL(time.Minute), WithCooldown(0))
	remote := &fakeRemote{payload: []string{"read"}}

	res, err := c.Fetch(context.Background(), habitsKey, remote.fetch)
	require.NoError(t, err)
	assert.Equal(t, MustFetch, res.Decision)
	assert.Equal(t, []string{"read"}, res.Payload)

	clock.Advance(30 * time.Second)
	res, err = c.Fetch(context.Background(), habitsKey, remote.fetch)
	require.NoError(t, err)
	assert.Equal(t, CacheHit, res.Decision)
	assert.EqualValues(t, 1, remote.calls.Load())
}

func TestCooldownBlocksEvenWithEmptyCache(t *testing.T) {
	c, clock := newTestCoordinator(WithCooldown(5 * time.Minute))
	remote := &fakeRemote{err: errors.New("offline")}

	res, err := c.Fetch(context.Background(), habitsKey, remote.fetch)
	require.Error(t, err)
	assert.False(t, res.Found)

	clock.Advance(time.Minute)
	assert.Equal(t, CooldownBlock, c.ShouldFetch(habitsKey))

	res, err = c.Fetch(context.Background(), habitsKey, remote.fetch)
	require.NoError(t, err, "a cooldown block never surfaces an error")
	assert.Equal(t, CooldownBlock, res.Decision)
	assert.False(t, res.Found)
	assert.EqualValues(t, 1, remote.calls.Load())

	clock.Advance(5 * time.Minute)
	assert.Equal(t, MustFetch, c.ShouldFetch(habitsKey))
}

func TestCooldownServesStalePayload(t *testing.T) {
	c, clock := newTestCoordinator(WithTTL(time.Minute), WithCooldown(5*time.Minute))
	remote := &fakeRemote{payload: "v1"}

	_, err := c.Fetch(context.Background(), habitsKey, remote.fetch)
	require.NoError(t, err)

	clock.Advance(2 * time.Minute)
	res, err := c.Fetch(context.Background(), habitsKey, remote.fetch)
	require.NoError(t, err)
	assert.Equal(t, CooldownBlock, res.Decision)
	assert.True(t, res.Found)
	assert.Equal(t, "v1", res.Payload)
	assert.EqualValues(t, 1, remote.calls.Load())
}

func TestNotModifiedRefreshesTimestamp(t *testing.T) {
	c, clock := newTestCoordinator(WithTTL(time.Minute), WithCooldown(0))
	remote := &fakeRemote{payload: "v1", etag: `"abc"`, notModify: true}

	_, err := c.Fetch(context.Background(), habitsKey, remote.fetch)
	require.NoError(t, err)

	clock.Advance(2 * time.Minute)
	remote.payload = "ignored"
	res, err := c.Fetch(context.Background(), habitsKey, remote.fetch)
	require.NoError(t, err)
	assert.True(t, res.NotModified)
	assert.Equal(t, "v1", res.Payload, "payload is kept on 304")
	assert.Equal(t, []string{"", `"abc"`}, remote.gotETags)

	assert.Equal(t, CacheHit, c.ShouldFetch(habitsKey), "304 resets the entry timestamp")
}

func TestFailedRevalidationFallsBackToStale(t *testing.T) {
	c, clock := newTestCoordinator(WithTTL(time.Minute), WithCooldown(0))
	remote := &fakeRemote{payload: "v1"}

	_, err := c.Fetch(context.Background(), habitsKey, remote.fetch)
	require.NoError(t, err)

	clock.Advance(2 * time.Minute)
	remote.err = errors.New("500")

	res, err := c.Fetch(context.Background(), habitsKey, remote.fetch)
	require.Error(t, err)
	assert.True(t, res.Found)
	assert.Equal(t, "v1", res.Payload)

	e, ok := c.Store().Peek(habitsKey)
	require.True(t, ok, "a failed revalidation never clears the cache")
	assert.Equal(t, "v1", e.Payload)
}

func TestConcurrentFetchesCollapse(t *testing.T) {
	c, _ := newTestCoordinator(WithCooldown(0))

	release := make(chan struct{})
	started := make(chan struct{}, 2)
	var calls atomic.Int32
	fn := func(_ context.Context, _ string) (Response, error) {
		calls.Add(1)
		started <- struct{}{}
		<-release
		return Response{Payload: "shared"}, nil
	}

	var wg sync.WaitGroup
	results := make([]Result, 2)
	wg.Add(1)
	go func() {
		defer wg.Done()
		results[0], _ = c.Fetch(context.Background(), habitsKey, fn)
	}()
	<-started

	wg.Add(1)
	go func() {
		defer wg.Done()
		results[1], _ = c.Revalidate(context.Background(), habitsKey, fn)
	}()
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.EqualValues(t, 1, calls.Load())
	assert.Equal(t, "shared", results[0].Payload)
	assert.Equal(t, "shared", results[1].Payload)
}

func TestInvalidateSupersedesInFlightFetch(t *testing.T) {
	c, _ := newTestCoordinator(WithCooldown(5 * time.Minute))

	release := make(chan struct{})
	started := make(chan struct{})
	fn := func(_ context.Context, _ string) (Response, error) {
		close(started)
		<-release
		return Response{Payload: "old"}, nil
	}

	done := make(chan Result)
	go func() {
		res, _ := c.Fetch(context.Background(), habitsKey, fn)
		done <- res
	}()
	<-started
	c.Invalidate(cache.ResourceHabits)
	close(release)

	res := <-done
	assert.True(t, res.Superseded)
	_, ok := c.Store().Peek(habitsKey)
	assert.False(t, ok, "superseded payload is not cached")

	assert.Equal(t, MustFetch, c.ShouldFetch(habitsKey), "invalidation resets the cooldown")
}

func TestInvalidateForcesRevalidation(t *testing.T) {
	c, _ := newTestCoordinator()
	remote := &fakeRemote{payload: "v1", etag: "e1"}

	_, err := c.Fetch(context.Background(), habitsKey, remote.fetch)
	require.NoError(t, err)
	require.Equal(t, CacheHit, c.ShouldFetch(habitsKey))

	c.Invalidate(cache.ResourceHabits, cache.ResourceEntries)
	assert.Equal(t, MustFetch, c.ShouldFetch(habitsKey))

	remote.payload = "v2"
	res, err := c.Fetch(context.Background(), habitsKey, remote.fetch)
	require.NoError(t, err)
	assert.Equal(t, "v2", res.Payload)
	assert.Equal(t, []string{"", ""}, remote.gotETags, "invalidation drops the validator")
}

func TestDecisionMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	c, _ := newTestCoordinator(WithRegisterer(reg))
	remote := &fakeRemote{payload: 1}

	_, _ = c.Fetch(context.Background(), habitsKey, remote.fetch)
	_, _ = c.Fetch(context.Background(), habitsKey, remote.fetch)

	assert.Equal(t, 1.0, testutil.ToFloat64(c.decisions.WithLabelValues("habits", "must_fetch")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.decisions.WithLabelValues("habits", "cache_hit")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.outcomes.WithLabelValues("habits", "ok")))
}

func TestTypedHelpers(t *testing.T) {
	c, _ := newTestCoordinator()
	fn := Typed(func(_ context.Context, etag string) ([]int, string, bool, error) {
		return []int{1, 2}, "e", false, nil
	})

	res, err := c.Fetch(context.Background(), habitsKey, fn)
	require.NoError(t, err)

	got, ok := Payload[[]int](res)
	require.True(t, ok)
	assert.Equal(t, []int{1, 2}, got)

	_, ok = Payload[string](res)
	assert.False(t, ok)
}

func TestResetClearsEverything(t *testing.T) {
	c, _ := newTestCoordinator()
	remote := &fakeRemote{payload: 1}
	_, _ = c.Fetch(context.Background(), habitsKey, remote.fetch)

	c.Reset()
	assert.Zero(t, c.Store().Len())
	assert.Equal(t, MustFetch, c.ShouldFetch(habitsKey))
}
