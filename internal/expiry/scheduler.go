// Package expiry zeroes the stock of expired packaged products on a daily
// schedule in the outlet's timezone.
package expiry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	jobmetrics "github.com/kasirku/kasir/internal/jobs"
)

// JobName labels sweep runs in metrics and logs.
const JobName = "expiry_sweep"

// DefaultSpec fires at 00:05 local time.
const DefaultSpec = "5 0 * * *"

// Sweeper zeroes expired stock and reports how many products changed.
type Sweeper interface {
	SweepExpiredStock(ctx context.Context) (int64, error)
}

// Config tunes a Scheduler.
type Config struct {
	Spec       string
	Location   *time.Location
	Logger     *slog.Logger
	Metrics    *jobmetrics.Metrics
	RunOnStart bool
	// Timeout bounds a single run.
	Timeout time.Duration
}

// Scheduler runs a Sweeper at start and then on a cron schedule.
type Scheduler struct {
	sweeper    Sweeper
	cron       *cron.Cron
	logger     *slog.Logger
	metrics    *jobmetrics.Metrics
	runOnStart bool
	timeout    time.Duration

	running sync.Mutex
	wg      sync.WaitGroup

	mu      sync.Mutex
	started bool
	ctx     context.Context
	cancel  context.CancelFunc
}

// NewScheduler validates the schedule and builds an idle Scheduler.
func NewScheduler(sweeper Sweeper, cfg Config) (*Scheduler, error) {
	if sweeper == nil {
		return nil, errors.New("expiry: sweeper required")
	}
	if cfg.Spec == "" {
		cfg.Spec = DefaultSpec
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Minute
	}
	s := &Scheduler{
		sweeper:    sweeper,
		logger:     cfg.Logger.With(slog.String("job", JobName)),
		metrics:    cfg.Metrics,
		runOnStart: cfg.RunOnStart,
		timeout:    cfg.Timeout,
	}
	s.cron = cron.New(cron.WithLocation(cfg.Location), cron.WithLogger(cronLogger{s.logger}))
	if _, err := s.cron.AddFunc(cfg.Spec, s.scheduledRun); err != nil {
		return nil, fmt.Errorf("expiry: schedule %q: %w", cfg.Spec, err)
	}
	return s, nil
}

// Start launches the schedule and, when configured, an immediate run.
// It returns without waiting for that run.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return errors.New("expiry: scheduler already started")
	}
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.ctx, s.cancel = runCtx, cancel
	s.started = true

	if s.runOnStart {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			_, _ = s.RunOnce(runCtx)
		}()
	}
	s.cron.Start()
	s.logger.Info("expiry scheduler started", slog.Time("next_run", s.Next()))
	return nil
}

// Stop halts the schedule, cancels an in-progress run and waits for it to
// return or for ctx to end. Runs already started by cron finish before
// cron reports stopped.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return nil
	}
	s.started = false
	cancel := s.cancel
	s.mu.Unlock()

	cancel()
	cronDone := s.cron.Stop()
	done := make(chan struct{})
	go func() {
		<-cronDone.Done()
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		s.logger.Info("expiry scheduler stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Next is the time of the next scheduled run, zero when idle.
func (s *Scheduler) Next() time.Time {
	entries := s.cron.Entries()
	if len(entries) == 0 {
		return time.Time{}
	}
	return entries[0].Next
}

func (s *Scheduler) scheduledRun() {
	s.mu.Lock()
	ctx := s.ctx
	s.mu.Unlock()
	if ctx == nil {
		return
	}
	_, _ = s.RunOnce(ctx)
}

// RunOnce performs one sweep. Errors are logged and counted; they are
// returned for callers that want them but never stop the schedule. A run
// that overlaps another is skipped.
func (s *Scheduler) RunOnce(ctx context.Context) (int64, error) {
	if !s.running.TryLock() {
		s.logger.Info("expiry sweep already running, skipping")
		return 0, nil
	}
	defer s.running.Unlock()

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	tracker := s.metrics.Track(JobName)
	start := time.Now()
	n, err := s.sweeper.SweepExpiredStock(ctx)
	if err = tracker.End(err); err != nil {
		s.logger.Error("expiry sweep failed", slog.Any("error", err))
		return 0, err
	}
	s.metrics.AddSwept(n)
	s.logger.Info("expiry sweep completed", slog.Int64("products_zeroed", n), slog.Duration("duration", time.Since(start)))
	return n, nil
}

type cronLogger struct{ logger *slog.Logger }

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error("cron: "+msg, append(keysAndValues, slog.Any("error", err))...)
}
