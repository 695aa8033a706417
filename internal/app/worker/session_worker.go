package worker

import (
	"context"
	"log/slog"
	"time"

	"challenge_gateway/internal/app/service"
	"challenge_gateway/internal/platform/realtime"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

type Sessions interface {
	Tick(now time.Time) []service.SessionTick
	SweepIdle(ctx context.Context, now time.Time) int
	SweepGrants(ctx context.Context) (int, error)
}

type LimiterPruner interface {
	PruneLimiters() int
}

type Clock interface {
	Now() time.Time
}

type Publisher interface {
	Broadcast(sessionID string, msg realtime.Message) int
}

type SessionWorkerConfig struct {
	TickInterval  time.Duration
	SweepInterval time.Duration
	LockKey       string
	LockTTL       time.Duration
}

// SessionWorker drives every live session off the synchronised clock and
// streams the result to connected browsers.
type SessionWorker struct {
	sessions Sessions
	limiters LimiterPruner
	clock    Clock
	hub      Publisher
	rdb      *redis.Client
	cfg      SessionWorkerConfig
	logger   *slog.Logger
}

func NewSessionWorker(sessions Sessions, limiters LimiterPruner, clock Clock, hub Publisher, rdb *redis.Client, cfg SessionWorkerConfig, logger *slog.Logger) *SessionWorker {
	return &SessionWorker{
		sessions: sessions,
		limiters: limiters,
		clock:    clock,
		hub:      hub,
		rdb:      rdb,
		cfg:      cfg,
		logger:   logger,
	}
}

func (w *SessionWorker) Start(ctx context.Context) error {
	w.logger.Info("session worker started", "tick", w.cfg.TickInterval, "sweep", w.cfg.SweepInterval)
	tick := time.NewTicker(w.cfg.TickInterval)
	defer tick.Stop()
	sweep := time.NewTicker(w.cfg.SweepInterval)
	defer sweep.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("session worker stopping")
			return nil
		case <-tick.C:
			w.Tick()
		case <-sweep.C:
			w.Sweep(ctx)
		}
	}
}

// Tick publishes one countdown per running session and a single
// session_ended for each session that ended on this tick.
func (w *SessionWorker) Tick() {
	for _, t := range w.sessions.Tick(w.clock.Now()) {
		if t.Ended {
			w.hub.Broadcast(t.SessionID, realtime.Message{
				Type: realtime.MessageSessionEnded,
				Data: realtime.SessionEnded{SessionID: t.SessionID, Message: "The challenge has ended."},
			})
			w.logger.Info("session ended", "session_id", t.SessionID)
			continue
		}
		w.hub.Broadcast(t.SessionID, realtime.Message{
			Type: realtime.MessageCountdown,
			Data: realtime.Countdown{
				SessionID: t.SessionID,
				Hours:     t.Countdown.Hours,
				Minutes:   t.Countdown.Minutes,
				Seconds:   t.Countdown.Seconds,
			},
		})
	}
}

// Sweep closes idle sessions, prunes OTP limiters and, under the shared
// lock, deletes expired verification grants.
func (w *SessionWorker) Sweep(ctx context.Context) {
	if n := w.sessions.SweepIdle(ctx, w.clock.Now()); n > 0 {
		w.logger.Info("closed idle sessions", "count", n)
	}
	if n := w.limiters.PruneLimiters(); n > 0 {
		w.logger.Debug("pruned otp limiters", "count", n)
	}

	release, ok := w.acquire(ctx)
	if !ok {
		return
	}
	defer release()

	n, err := w.sessions.SweepGrants(ctx)
	if err != nil {
		w.logger.Error("grant sweep failed", "removed", n, "error", err)
		return
	}
	if n > 0 {
		w.logger.Info("removed expired grants", "count", n)
	}
}

var releaseScript = redis.NewScript(`
	if redis.call("get", KEYS[1]) == ARGV[1] then
		return redis.call("del", KEYS[1])
	else
		return 0
	end
`)

// acquire takes the sweep lock. Without redis the sweep always runs.
func (w *SessionWorker) acquire(ctx context.Context) (func(), bool) {
	if w.rdb == nil {
		return func() {}, true
	}
	value := uuid.NewString()
	ok, err := w.rdb.SetNX(ctx, w.cfg.LockKey, value, w.cfg.LockTTL).Result()
	if err != nil {
		w.logger.Error("failed to acquire sweep lock", "key", w.cfg.LockKey, "error", err)
		return nil, false
	}
	if !ok {
		w.logger.Debug("sweep lock held by another replica", "key", w.cfg.LockKey)
		return nil, false
	}
	return func() {
		deleted, err := releaseScript.Run(context.WithoutCancel(ctx), w.rdb, []string{w.cfg.LockKey}, value).Int64()
		if err != nil {
			w.logger.Error("failed to release sweep lock", "key", w.cfg.LockKey, "error", err)
		} else if deleted == 0 {
			w.logger.Warn("sweep lock expired before release", "key", w.cfg.LockKey)
		}
	}, true
}
