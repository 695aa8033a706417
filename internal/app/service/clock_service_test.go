package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"challenge_gateway/internal/domain/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock(t time.Time) *fakeClock { return &fakeClock{now: t} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type fakeTimeSource struct {
	clock   *fakeClock
	skew    time.Duration
	latency time.Duration
	err     error
	calls   atomic.Int32
	block   chan struct{}
}

func (s *fakeTimeSource) ServerTime(ctx context.Context) (time.Time, error) {
	s.calls.Add(1)
	if s.block != nil {
		<-s.block
	}
	if s.err != nil {
		return time.Time{}, s.err
	}
	s.clock.Advance(s.latency / 2)
	server := s.clock.Now().Add(s.skew)
	s.clock.Advance(s.latency / 2)
	return server, nil
}

var clockBase = time.Date(2026, 3, 12, 10, 0, 0, 0, time.UTC)

func newTestClock(src *fakeTimeSource, clock *fakeClock) *ClockService {
	c := NewClockService(src, 5*time.Minute, model.StatusOptions{PublishedAsUpcoming: true}, discardLogger())
	c.local = clock.Now
	return c
}

func TestClockSyncHalfRoundTrip(t *testing.T) {
	clock := newFakeClock(clockBase)
	src := &fakeTimeSource{clock: clock, skew: 90 * time.Second, latency: 400 * time.Millisecond}
	c := newTestClock(src, clock)

	require.NoError(t, c.Sync(context.Background()))
	assert.Equal(t, 90*time.Second, c.Offset())
	assert.True(t, c.Now().Equal(clock.Now().Add(90*time.Second)))
}

func TestClockSyncSkipsWhileFresh(t *testing.T) {
	clock := newFakeClock(clockBase)
	src := &fakeTimeSource{clock: clock, skew: time.Second}
	c := newTestClock(src, clock)
	ctx := context.Background()

	require.NoError(t, c.Sync(ctx))
	clock.Advance(4 * time.Minute)
	require.NoError(t, c.Sync(ctx))
	assert.EqualValues(t, 1, src.calls.Load())

	clock.Advance(time.Minute)
	require.NoError(t, c.Sync(ctx))
	assert.EqualValues(t, 2, src.calls.Load())

	require.NoError(t, c.Refresh(ctx))
	assert.EqualValues(t, 3, src.calls.Load())
}

func TestClockSyncFailureKeepsOffset(t *testing.T) {
	clock := newFakeClock(clockBase)
	src := &fakeTimeSource{clock: clock, err: errors.New("boom")}
	c := newTestClock(src, clock)

	assert.Error(t, c.Sync(context.Background()))
	assert.Zero(t, c.Offset(), "falls back to the local clock")

	src.err = nil
	src.skew = -3 * time.Second
	require.NoError(t, c.Sync(context.Background()))
	assert.Equal(t, -3*time.Second, c.Offset())

	src.err = errors.New("boom again")
	assert.Error(t, c.Refresh(context.Background()))
	assert.Equal(t, -3*time.Second, c.Offset())
}

func TestClockSyncCoalescesConcurrentCallers(t *testing.T) {
	clock := newFakeClock(clockBase)
	src := &fakeTimeSource{clock: clock, skew: time.Second, block: make(chan struct{})}
	c := newTestClock(src, clock)

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, c.Sync(context.Background()))
		}()
	}
	require.Eventually(t, func() bool { return src.calls.Load() == 1 }, time.Second, time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	close(src.block)
	wg.Wait()

	assert.EqualValues(t, 1, src.calls.Load())
	assert.Equal(t, time.Second, c.Offset())
}

func TestClockStatusAndCountdown(t *testing.T) {
	clock := newFakeClock(clockBase)
	src := &fakeTimeSource{clock: clock, skew: 10 * time.Minute}
	c := newTestClock(src, clock)
	require.NoError(t, c.Sync(context.Background()))

	start := clockBase.Add(5 * time.Minute)
	end := clockBase.Add(time.Hour)
	ch := model.Challenge{ChallengeStartAt: &start, ChallengeEndAt: &end}

	assert.Equal(t, model.StatusOngoing, c.Status(ch), "server clock is already past the start")
	assert.Equal(t, model.Countdown{Minutes: 50}, c.Countdown(end))
}
