package service

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"challenge_gateway/internal/domain/model"

	"golang.org/x/sync/singleflight"
)

// ClockService keeps one offset between the backend clock and ours.
type ClockService struct {
	source   TimeSource
	interval time.Duration
	opts     model.StatusOptions
	logger   *slog.Logger
	local    func() time.Time

	group singleflight.Group

	mu       sync.RWMutex
	offset   time.Duration
	lastSync time.Time
	synced   bool
}

func NewClockService(source TimeSource, interval time.Duration, opts model.StatusOptions, logger *slog.Logger) *ClockService {
	return &ClockService{
		source:   source,
		interval: interval,
		opts:     opts,
		logger:   logger,
		local:    time.Now,
	}
}

// Sync measures the offset unless the last successful sync is younger than
// the resync interval. Concurrent callers share one request. On failure the
// previous offset stays in place and the error is returned for logging only.
func (c *ClockService) Sync(ctx context.Context) error {
	c.mu.RLock()
	fresh := c.synced && c.local().Sub(c.lastSync) < c.interval
	c.mu.RUnlock()
	if fresh {
		return nil
	}
	return c.measure(ctx)
}

// Refresh measures the offset regardless of its age.
func (c *ClockService) Refresh(ctx context.Context) error {
	return c.measure(ctx)
}

func (c *ClockService) measure(ctx context.Context) error {
	_, err, _ := c.group.Do("sync", func() (interface{}, error) {
		t0 := c.local()
		server, err := c.source.ServerTime(ctx)
		t1 := c.local()
		if err != nil {
			c.logger.Warn("clock sync failed, keeping previous offset", "offset", c.Offset(), "error", err)
			return nil, err
		}

		rtt := t1.Sub(t0)
		offset := server.Sub(t1.Add(-rtt / 2))

		c.mu.Lock()
		c.offset = offset
		c.lastSync = t1
		c.synced = true
		c.mu.Unlock()

		c.logger.Debug("clock synced", "offset", offset, "rtt", rtt)
		return nil, nil
	})
	return err
}

func (c *ClockService) Offset() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.offset
}

// Now is the local clock corrected by the last measured offset.
func (c *ClockService) Now() time.Time {
	return c.local().Add(c.Offset())
}

func (c *ClockService) Status(ch model.Challenge) model.ChallengeStatus {
	return model.DeriveStatus(ch, c.Now(), c.opts)
}

func (c *ClockService) Countdown(end time.Time) model.Countdown {
	return model.CountdownUntil(end, c.Now())
}
