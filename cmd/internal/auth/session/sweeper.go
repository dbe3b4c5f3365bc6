package session

import (
	"context"
	"io"
	"log/slog"
	"time"
)

// Sweeper periodically deletes expired sessions.
type Sweeper struct {
	engine   *Engine
	interval time.Duration
	log      *slog.Logger
	metrics  *Metrics
}

// NewSweeper returns a Sweeper that runs every interval (10m when <= 0).
func NewSweeper(engine *Engine, interval time.Duration, log *slog.Logger, m *Metrics) *Sweeper {
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Sweeper{engine: engine, interval: interval, log: log, metrics: m}
}

// Run sweeps until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	t := time.NewTicker(s.interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			s.SweepOnce(ctx)
		}
	}
}

// SweepOnce runs a single sweep and returns the number of deleted records.
func (s *Sweeper) SweepOnce(ctx context.Context) int64 {
	n, err := s.engine.DeleteExpired(ctx)
	s.metrics.swept(n, err)
	if err != nil {
		s.log.Warn("session.sweep.fail", slog.Any("err", err))
		return 0
	}
	if n > 0 {
		s.log.Info("session.sweep.done", slog.Int64("deleted", n))
	}
	return n
}
