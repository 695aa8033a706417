package worker

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"challenge_gateway/internal/app/service"
	"challenge_gateway/internal/domain/model"
	"challenge_gateway/internal/platform/realtime"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeSessions struct {
	mu        sync.Mutex
	ticks     []service.SessionTick
	tickedAt  []time.Time
	idle      int
	grantRuns int
	grantErr  error
}

func (f *fakeSessions) Tick(now time.Time) []service.SessionTick {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tickedAt = append(f.tickedAt, now)
	return f.ticks
}

func (f *fakeSessions) SweepIdle(ctx context.Context, now time.Time) int {
	return f.idle
}

func (f *fakeSessions) SweepGrants(ctx context.Context) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.grantRuns++
	return 1, f.grantErr
}

func (f *fakeSessions) sweeps() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.grantRuns
}

type fakePruner struct{ calls int }

func (f *fakePruner) PruneLimiters() int {
	f.calls++
	return 0
}

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

type published struct {
	sessionID string
	msg       realtime.Message
}

type fakeHub struct {
	mu   sync.Mutex
	sent []published
}

func (f *fakeHub) Broadcast(sessionID string, msg realtime.Message) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, published{sessionID, msg})
	return 1
}

func (f *fakeHub) messages() []published {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]published(nil), f.sent...)
}

var workerNow = time.Date(2026, 3, 12, 10, 0, 0, 0, time.UTC)

func newTestWorker(sessions *fakeSessions, hub *fakeHub, rdb *redis.Client) *SessionWorker {
	return NewSessionWorker(sessions, &fakePruner{}, fixedClock{workerNow}, hub, rdb, SessionWorkerConfig{
		TickInterval:  10 * time.Millisecond,
		SweepInterval: time.Hour,
		LockKey:       "gateway:sweep_lock",
		LockTTL:       time.Minute,
	}, discardLogger())
}

func TestTickPublishesCountdownAndEnd(t *testing.T) {
	sessions := &fakeSessions{ticks: []service.SessionTick{
		{SessionID: "a", Countdown: model.Countdown{Minutes: 4, Seconds: 59}},
		{SessionID: "b", Ended: true},
	}}
	hub := &fakeHub{}
	w := newTestWorker(sessions, hub, nil)

	w.Tick()

	sent := hub.messages()
	require.Len(t, sent, 2)
	assert.Equal(t, "a", sent[0].sessionID)
	assert.Equal(t, realtime.MessageCountdown, sent[0].msg.Type)
	assert.Equal(t, realtime.Countdown{SessionID: "a", Minutes: 4, Seconds: 59}, sent[0].msg.Data)
	assert.Equal(t, "b", sent[1].sessionID)
	assert.Equal(t, realtime.MessageSessionEnded, sent[1].msg.Type)
	assert.Equal(t, []time.Time{workerNow}, sessions.tickedAt, "ticks use the synchronised clock")
}

func TestSweepWithoutRedisAlwaysRuns(t *testing.T) {
	sessions := &fakeSessions{}
	pruner := &fakePruner{}
	w := NewSessionWorker(sessions, pruner, fixedClock{workerNow}, &fakeHub{}, nil, SessionWorkerConfig{}, discardLogger())

	w.Sweep(context.Background())
	w.Sweep(context.Background())
	assert.Equal(t, 2, sessions.sweeps())
	assert.Equal(t, 2, pruner.calls)
}

func TestSweepSkipsWhileLockHeld(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	sessions := &fakeSessions{}
	w := newTestWorker(sessions, &fakeHub{}, rdb)

	require.NoError(t, mr.Set("gateway:sweep_lock", "other-replica"))
	w.Sweep(context.Background())
	assert.Zero(t, sessions.sweeps())

	mr.Del("gateway:sweep_lock")
	w.Sweep(context.Background())
	assert.Equal(t, 1, sessions.sweeps())
	assert.False(t, mr.Exists("gateway:sweep_lock"), "lock is released after the sweep")
}

func TestSweepReleasesLockOnError(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	sessions := &fakeSessions{grantErr: errors.New("redis down")}
	w := newTestWorker(sessions, &fakeHub{}, rdb)

	w.Sweep(context.Background())
	assert.False(t, mr.Exists("gateway:sweep_lock"))
}

func TestStartStopsOnCancel(t *testing.T) {
	sessions := &fakeSessions{ticks: []service.SessionTick{{SessionID: "a", Countdown: model.Countdown{Seconds: 3}}}}
	hub := &fakeHub{}
	w := newTestWorker(sessions, hub, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Start(ctx) }()

	require.Eventually(t, func() bool { return len(hub.messages()) >= 2 }, time.Second, 5*time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("worker did not stop")
	}
}

type countingClock struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (c *countingClock) Refresh(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	return c.err
}

func (c *countingClock) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

func TestClockWorkerResyncs(t *testing.T) {
	clock := &countingClock{err: errors.New("backend down")}
	w := NewClockWorker(clock, 10*time.Millisecond, time.Second, discardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Start(ctx) }()

	require.Eventually(t, func() bool { return clock.count() >= 3 }, time.Second, 5*time.Millisecond)
	cancel()
	assert.NoError(t, <-done)
}
