package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	"airfarm/internal/logger"
	"airfarm/internal/storage"
)

// ErrRunInProgress is returned when a cycle is requested while another one is
// still executing.
var ErrRunInProgress = errors.New("a cycle is already running")

// Runner executes one full cycle. Implemented by the farmer.
type Runner interface {
	RunCycle(ctx context.Context) (storage.RunSummary, error)
}

// Scheduler fires cycles on a fixed interval. At most one cycle runs at any
// time: a tick that arrives while a cycle is still executing is skipped and
// counted, never queued.
type Scheduler struct {
	runner   Runner
	interval time.Duration
	log      logger.Logger

	cron    *cron.Cron
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	skipped atomic.Int64

	mu      sync.Mutex
	running bool
}

// New creates a scheduler that fires the runner every interval.
func New(runner Runner, interval time.Duration, log logger.Logger) *Scheduler {
	return &Scheduler{runner: runner, interval: interval, log: log}
}

// Start arms the periodic trigger and returns. With runImmediately set, one
// cycle is fired right away instead of waiting out the first interval.
func (s *Scheduler) Start(ctx context.Context, runImmediately bool) error {
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	s.cron = cron.New()
	if _, err := s.cron.AddFunc(fmt.Sprintf("@every %s", s.interval), func() {
		s.tick(runCtx)
	}); err != nil {
		cancel()
		return fmt.Errorf("arming schedule failed: %w", err)
	}

	s.log.Info("Scheduler started", "interval", s.interval, "immediate", runImmediately)
	s.cron.Start()

	if runImmediately {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.tick(runCtx)
		}()
	}
	return nil
}

// tick attempts one scheduled cycle. A tick that finds a cycle in flight is
// dropped and counted.
func (s *Scheduler) tick(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	if !s.tryBegin() {
		n := s.skipped.Add(1)
		s.log.Warn("Previous cycle still running, skipping tick", "skipped_total", n)
		return
	}
	defer s.end()

	if _, err := s.runner.RunCycle(ctx); err != nil {
		s.log.Error("Cycle ended with error", "error", err)
	}
}

// RunOnce executes a single cycle through the same single-slot gate the
// periodic trigger uses. It returns ErrRunInProgress if a cycle is already
// executing.
func (s *Scheduler) RunOnce(ctx context.Context) (storage.RunSummary, error) {
	if !s.tryBegin() {
		return storage.RunSummary{}, ErrRunInProgress
	}
	defer s.end()
	return s.runner.RunCycle(ctx)
}

// SkippedTicks reports how many scheduled triggers were dropped because a
// cycle was still in flight.
func (s *Scheduler) SkippedTicks() int64 {
	return s.skipped.Load()
}

// Stop cancels the in-flight cycle context and waits up to grace for it to
// wind down. The cycle finishes its current attempt and persists its summary
// before exiting.
func (s *Scheduler) Stop(grace time.Duration) {
	if s.cancel != nil {
		s.cancel()
	}

	done := make(chan struct{})
	go func() {
		if s.cron != nil {
			<-s.cron.Stop().Done()
		}
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.log.Info("Scheduler stopped", "skipped_ticks", s.SkippedTicks())
	case <-time.After(grace):
		s.log.Warn("Scheduler stop timed out", "grace", grace)
	}
}

// tryBegin claims the single run slot and registers the cycle with the drain
// group. It returns false when a cycle already holds the slot.
func (s *Scheduler) tryBegin() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return false
	}
	s.running = true
	s.wg.Add(1)
	return true
}

func (s *Scheduler) end() {
	s.mu.Lock()
	s.running = false
	s.mu.Unlock()
	s.wg.Done()
}
