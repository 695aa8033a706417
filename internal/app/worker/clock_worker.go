package worker

import (
	"context"
	"log/slog"
	"time"
)

type Refresher interface {
	Refresh(ctx context.Context) error
}

// ClockWorker re-measures the server clock offset on a fixed interval.
type ClockWorker struct {
	clock    Refresher
	interval time.Duration
	timeout  time.Duration
	logger   *slog.Logger
}

func NewClockWorker(clock Refresher, interval, timeout time.Duration, logger *slog.Logger) *ClockWorker {
	return &ClockWorker{clock: clock, interval: interval, timeout: timeout, logger: logger}
}

func (w *ClockWorker) Start(ctx context.Context) error {
	w.logger.Info("clock worker started", "interval", w.interval)
	w.sync(ctx)

	t := time.NewTicker(w.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			w.logger.Info("clock worker stopping")
			return nil
		case <-t.C:
			w.sync(ctx)
		}
	}
}

// sync failures keep the previous offset and are logged by the clock itself.
func (w *ClockWorker) sync(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()
	_ = w.clock.Refresh(ctx)
}
