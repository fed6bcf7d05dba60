package usecase

import (
	"context"
	"errors"
	"sync"
	"time"

	applogger "FinCast/pkg/logger"
)

// Scheduler triggers a forecast run on a fixed interval.
type Scheduler struct {
	runner     *ForecastRunner
	interval   time.Duration
	runOnStart bool
	l          *applogger.Logger

	mu      sync.Mutex
	started bool
	cancel  context.CancelFunc
	done    chan struct{}
}

func NewScheduler(runner *ForecastRunner, interval time.Duration, runOnStart bool, l *applogger.Logger) *Scheduler {
	if l == nil {
		l = applogger.Nop()
	}
	return &Scheduler{runner: runner, interval: interval, runOnStart: runOnStart, l: l}
}

// Start launches the loop. A non-positive interval only honours runOnStart.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return
	}
	s.started = true
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})

	go func() {
		defer close(s.done)
		if s.runOnStart {
			s.tick(ctx)
		}
		if s.interval <= 0 {
			return
		}
		t := time.NewTicker(s.interval)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				s.tick(ctx)
			}
		}
	}()
	s.l.Info("forecast scheduler started", applogger.Duration("interval_ms", s.interval), applogger.Bool("run_on_start", s.runOnStart))
}

// Stop cancels the loop and waits for an in-flight run to return.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	s.started = false
	cancel, done := s.cancel, s.done
	s.mu.Unlock()
	cancel()
	<-done
}

func (s *Scheduler) tick(ctx context.Context) {
	_, err := s.runner.RunOnce(ctx, nil)
	switch {
	case err == nil:
	case errors.Is(err, ErrRunInProgress):
		s.l.Info("scheduled run skipped, another run holds the lock")
	case errors.Is(err, context.Canceled):
	default:
		s.l.Error("scheduled run failed", applogger.Error(err))
	}
}
