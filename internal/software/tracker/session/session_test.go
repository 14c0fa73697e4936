package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"pet-tracker/internal/domain/geo"
	"pet-tracker/internal/domain/history"
	"pet-tracker/internal/domain/tracking"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ----- stubs -----

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

type pollResult struct {
	fix tracking.Fix
	ok  bool
	err error
}

type stubFeed struct {
	mu      sync.Mutex
	next    pollResult
	calls   int
	block   chan struct{} // when set, PollLatest waits on it and ignores ctx
	entered chan struct{}
}

func (f *stubFeed) set(r pollResult) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.next = r
}

func (f *stubFeed) PollLatest(_ context.Context, _ string) (tracking.Fix, bool, error) {
	f.mu.Lock()
	f.calls++
	block, entered := f.block, f.entered
	f.mu.Unlock()

	if block != nil {
		if entered != nil {
			entered <- struct{}{}
		}
		<-block
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	return f.next.fix, f.next.ok, f.next.err
}

type stubStore struct {
	mu      sync.Mutex
	entries []history.Entry
	err     error
}

func (s *stubStore) Append(_ context.Context, _, _ string, entry history.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.entries = append(s.entries, entry)
	return nil
}

func (s *stubStore) ListAll(context.Context, string, string) ([]history.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]history.Entry(nil), s.entries...), nil
}

func (s *stubStore) Latest(context.Context, string, string) (history.Entry, bool, error) {
	return history.Entry{}, false, nil
}

func (s *stubStore) DeleteOne(context.Context, string, string, string) error { return nil }

func (s *stubStore) DeleteAll(context.Context, string, string) (int64, error) { return 0, nil }

func (s *stubStore) snapshot() []history.Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]history.Entry(nil), s.entries...)
}

var (
	base   = time.UnixMilli(1_700_000_000_000)
	pointA = geo.Coordinate{Latitude: 14.6037, Longitude: 121.3084}
	pointB = geo.Coordinate{Latitude: 14.6100, Longitude: 121.3084}
)

func fixAt(c geo.Coordinate) pollResult {
	return pollResult{fix: tracking.Fix{Coordinate: c}, ok: true}
}

func newTestSession(t *testing.T, feed *stubFeed, store *stubStore, clock *fakeClock) *Session {
	t.Helper()
	return newTestSessionEvery(t, time.Hour, feed, store, clock) // ticks never fire during a test
}

func newTestSessionEvery(t *testing.T, interval time.Duration, feed *stubFeed, store *stubStore, clock *fakeClock) *Session {
	t.Helper()
	ids := 0
	return New(Config{
		OwnerID:         "owner-1",
		PetID:           "pet-1",
		TrackedEntityID: "collar-1",
		Interval:        interval,
		Now:             clock.Now,
		NewID: func() string {
			ids++
			return "entry-" + string(rune('a'+ids-1))
		},
	}, feed, store, nil)
}

// ----- tests -----

func TestSession_PersistsOnlyMeaningfulMovement(t *testing.T) {
	clock := &fakeClock{now: base}
	feed := &stubFeed{}
	store := &stubStore{}
	s := newTestSession(t, feed, store, clock)

	feed.set(fixAt(pointA))
	require.NoError(t, s.Start(context.Background()))
	t.Cleanup(s.Stop)

	clock.Set(base.Add(10 * time.Second))
	require.True(t, s.PollNow(context.Background()))

	feed.set(fixAt(pointB))
	clock.Set(base.Add(40 * time.Second))
	require.True(t, s.PollNow(context.Background()))

	entries := store.snapshot()
	require.Len(t, entries, 2)
	assert.Equal(t, pointA, entries[0].Coordinate)
	assert.Equal(t, base.UnixMilli(), entries[0].CapturedAtMillis)
	assert.Equal(t, pointB, entries[1].Coordinate)
	assert.Equal(t, base.Add(40*time.Second).UnixMilli(), entries[1].CapturedAtMillis)

	snap := s.Snapshot()
	assert.Equal(t, tracking.LifecycleRunning, snap.Lifecycle)
	require.NotNil(t, snap.State.LastPersisted)
	assert.Equal(t, pointB, *snap.State.LastPersisted)
	assert.True(t, snap.State.DeviceOnline)
}

func TestSession_ThinsFromTheEpoch(t *testing.T) {
	clock := &fakeClock{now: time.UnixMilli(0)}
	feed := &stubFeed{}
	store := &stubStore{}
	s := newTestSession(t, feed, store, clock)

	feed.set(fixAt(pointA))
	require.NoError(t, s.Start(context.Background()))
	t.Cleanup(s.Stop)
	assert.Empty(t, s.Snapshot().State.LastError)

	clock.Set(time.UnixMilli(10_000))
	require.True(t, s.PollNow(context.Background()))

	feed.set(fixAt(pointB))
	clock.Set(time.UnixMilli(40_000))
	require.True(t, s.PollNow(context.Background()))

	entries := store.snapshot()
	require.Len(t, entries, 2)
	assert.Equal(t, pointA, entries[0].Coordinate)
	assert.Equal(t, int64(0), entries[0].CapturedAtMillis)
	assert.Equal(t, pointB, entries[1].Coordinate)
	assert.Equal(t, int64(40_000), entries[1].CapturedAtMillis)
}

func TestSession_PollsOnEveryInterval(t *testing.T) {
	feed := &stubFeed{}
	s := newTestSessionEvery(t, 20*time.Millisecond, feed, &stubStore{}, &fakeClock{now: base})

	feed.set(fixAt(pointA))
	require.NoError(t, s.Start(context.Background()))
	t.Cleanup(s.Stop)

	// the first poll is synchronous
	feed.mu.Lock()
	assert.GreaterOrEqual(t, feed.calls, 1)
	feed.mu.Unlock()

	require.Eventually(t, func() bool {
		feed.mu.Lock()
		defer feed.mu.Unlock()
		return feed.calls >= 4
	}, 2*time.Second, 5*time.Millisecond, "ticker should keep polling")

	s.Stop()
	<-s.Done()
	feed.mu.Lock()
	stopped := feed.calls
	feed.mu.Unlock()

	time.Sleep(60 * time.Millisecond)
	feed.mu.Lock()
	assert.Equal(t, stopped, feed.calls, "no polls after Stop")
	feed.mu.Unlock()
}

func TestSession_StartTwiceFails(t *testing.T) {
	feed := &stubFeed{}
	s := newTestSession(t, feed, &stubStore{}, &fakeClock{now: base})

	require.NoError(t, s.Start(context.Background()))
	assert.ErrorIs(t, s.Start(context.Background()), ErrSessionNotIdle)

	s.Stop()
	assert.ErrorIs(t, s.Start(context.Background()), ErrSessionNotIdle)
	assert.Equal(t, tracking.LifecycleStopped, s.Lifecycle())
}

func TestSession_StopFromIdleIsNoop(t *testing.T) {
	s := newTestSession(t, &stubFeed{}, &stubStore{}, &fakeClock{now: base})
	s.Stop()
	assert.Equal(t, tracking.LifecycleIdle, s.Lifecycle())
	assert.False(t, s.PollNow(context.Background()))
}

func TestSession_LoopExitsAfterStop(t *testing.T) {
	s := newTestSession(t, &stubFeed{}, &stubStore{}, &fakeClock{now: base})
	require.NoError(t, s.Start(context.Background()))
	s.Stop()

	select {
	case <-s.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("polling loop did not exit after Stop")
	}
}

func TestSession_FeedFailureKeepsRunning(t *testing.T) {
	clock := &fakeClock{now: base}
	feed := &stubFeed{}
	store := &stubStore{}
	s := newTestSession(t, feed, store, clock)

	feed.set(fixAt(pointA))
	require.NoError(t, s.Start(context.Background()))
	t.Cleanup(s.Stop)

	feed.set(pollResult{err: errors.Join(tracking.ErrFeedUnavailable, errors.New("connection refused"))})
	clock.Set(base.Add(time.Minute))
	require.True(t, s.PollNow(context.Background()))

	snap := s.Snapshot()
	assert.Equal(t, tracking.LifecycleRunning, snap.Lifecycle)
	assert.False(t, snap.State.DeviceOnline)
	assert.Contains(t, snap.State.LastError, "connection refused")
	require.NotNil(t, snap.State.LastReported)
	assert.Equal(t, pointA, *snap.State.LastReported, "last known position is kept")
	assert.Len(t, store.snapshot(), 1)

	// not-available is not an error but still flags the device offline
	feed.set(pollResult{})
	require.True(t, s.PollNow(context.Background()))
	assert.False(t, s.Snapshot().State.DeviceOnline)
}

func TestSession_StoreFailureIsRetriedOnNextFix(t *testing.T) {
	clock := &fakeClock{now: base}
	feed := &stubFeed{}
	store := &stubStore{err: errors.New("disk full")}
	s := newTestSession(t, feed, store, clock)

	feed.set(fixAt(pointA))
	require.NoError(t, s.Start(context.Background()))
	t.Cleanup(s.Stop)

	snap := s.Snapshot()
	assert.Nil(t, snap.State.LastPersisted)
	assert.Contains(t, snap.State.LastError, "disk full")

	store.mu.Lock()
	store.err = nil
	store.mu.Unlock()

	// the same point is still "new" because nothing was persisted
	clock.Set(base.Add(time.Second))
	require.True(t, s.PollNow(context.Background()))
	assert.Len(t, store.snapshot(), 1)
	assert.Empty(t, s.Snapshot().State.LastError)
}

func TestSession_SeedSuppressesDuplicateTail(t *testing.T) {
	clock := &fakeClock{now: base}
	feed := &stubFeed{}
	store := &stubStore{}
	seed := history.Entry{ID: "old", PetID: "pet-1", Coordinate: pointA, CapturedAtMillis: base.Add(-5 * time.Second).UnixMilli()}

	s := New(Config{
		OwnerID:         "owner-1",
		PetID:           "pet-1",
		TrackedEntityID: "collar-1",
		Interval:        time.Hour,
		Now:             clock.Now,
		Seed:            &seed,
	}, feed, store, nil)

	feed.set(fixAt(pointA))
	require.NoError(t, s.Start(context.Background()))
	t.Cleanup(s.Stop)

	assert.Empty(t, store.snapshot())
}

func TestSession_LatePollAfterStopIsDiscarded(t *testing.T) {
	clock := &fakeClock{now: base}
	feed := &stubFeed{}
	store := &stubStore{}
	s := newTestSession(t, feed, store, clock)

	feed.set(fixAt(pointA))
	require.NoError(t, s.Start(context.Background()))
	before := s.Snapshot()
	require.Len(t, store.snapshot(), 1)

	release := make(chan struct{})
	entered := make(chan struct{}, 1)
	feed.mu.Lock()
	feed.block = release
	feed.entered = entered
	feed.mu.Unlock()
	feed.set(fixAt(pointB))
	clock.Set(base.Add(time.Minute))

	polled := make(chan bool, 1)
	go func() { polled <- s.PollNow(context.Background()) }()
	<-entered

	s.Stop()
	close(release)
	require.True(t, <-polled)

	assert.Len(t, store.snapshot(), 1, "no history write after stop")
	after := s.Snapshot()
	assert.Equal(t, tracking.LifecycleStopped, after.Lifecycle)
	assert.Equal(t, before.State, after.State)
}

func TestSession_OverlappingPollIsSkipped(t *testing.T) {
	clock := &fakeClock{now: base}
	feed := &stubFeed{}
	s := newTestSession(t, feed, &stubStore{}, clock)

	feed.set(fixAt(pointA))
	require.NoError(t, s.Start(context.Background()))
	t.Cleanup(s.Stop)

	release := make(chan struct{})
	entered := make(chan struct{}, 1)
	feed.mu.Lock()
	feed.block = release
	feed.entered = entered
	feed.mu.Unlock()

	first := make(chan bool, 1)
	go func() { first <- s.PollNow(context.Background()) }()
	<-entered

	assert.False(t, s.PollNow(context.Background()), "second poll must not start while one is in flight")

	close(release)
	assert.True(t, <-first)

	feed.mu.Lock()
	calls := feed.calls
	feed.mu.Unlock()
	assert.Equal(t, 2, calls)
}

func TestSession_SubscribeDeliversLatestAndClosesOnStop(t *testing.T) {
	clock := &fakeClock{now: base}
	feed := &stubFeed{}
	s := newTestSession(t, feed, &stubStore{}, clock)

	ch, cancel := s.Subscribe()
	defer cancel()

	first := <-ch
	assert.Equal(t, tracking.LifecycleIdle, first.Lifecycle)

	feed.set(fixAt(pointA))
	require.NoError(t, s.Start(context.Background()))

	got := <-ch
	assert.Equal(t, tracking.LifecycleRunning, got.Lifecycle)
	assert.True(t, got.Persisted)

	s.Stop()

	var last tracking.Snapshot
	for snap := range ch {
		last = snap
	}
	assert.Equal(t, tracking.LifecycleStopped, last.Lifecycle)

	late, lateCancel := s.Subscribe()
	defer lateCancel()
	snap, ok := <-late
	require.True(t, ok)
	assert.Equal(t, tracking.LifecycleStopped, snap.Lifecycle)
	_, ok = <-late
	assert.False(t, ok)
}
