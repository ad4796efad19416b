package expiry

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	jobmetrics "github.com/kasirku/kasir/internal/jobs"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeSweeper struct {
	calls atomic.Int32
	ran   chan struct{}
	block bool
	err   error
	n     int64
}

func newFakeSweeper() *fakeSweeper {
	return &fakeSweeper{ran: make(chan struct{}, 16)}
}

func (f *fakeSweeper) SweepExpiredStock(ctx context.Context) (int64, error) {
	f.calls.Add(1)
	f.ran <- struct{}{}
	if f.block {
		<-ctx.Done()
		return 0, ctx.Err()
	}
	return f.n, f.err
}

func testConfig() Config {
	return Config{
		Location: time.FixedZone("WIB", 7*3600),
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		Metrics:  jobmetrics.NewMetrics(prometheus.NewRegistry()),
	}
}

func waitRun(t *testing.T, f *fakeSweeper) {
	t.Helper()
	select {
	case <-f.ran:
	case <-time.After(3 * time.Second):
		t.Fatal("sweep did not run")
	}
}

func stop(t *testing.T, s *Scheduler) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	require.NoError(t, s.Stop(ctx))
}

func TestSchedulerRunsOnStart(t *testing.T) {
	sweeper := newFakeSweeper()
	sweeper.n = 4
	cfg := testConfig()
	cfg.RunOnStart = true
	s, err := NewScheduler(sweeper, cfg)
	require.NoError(t, err)

	require.NoError(t, s.Start(context.Background()))
	waitRun(t, sweeper)
	stop(t, s)
	require.Equal(t, int32(1), sweeper.calls.Load())
}

func TestSchedulerWithoutStartupRunWaitsForSchedule(t *testing.T) {
	sweeper := newFakeSweeper()
	s, err := NewScheduler(sweeper, testConfig())
	require.NoError(t, err)

	require.NoError(t, s.Start(context.Background()))
	time.Sleep(20 * time.Millisecond)
	stop(t, s)
	require.Zero(t, sweeper.calls.Load())
}

func TestSchedulerNextRunIsLocalTime(t *testing.T) {
	cfg := testConfig()
	s, err := NewScheduler(newFakeSweeper(), cfg)
	require.NoError(t, err)
	require.NoError(t, s.Start(context.Background()))
	defer stop(t, s)

	next := s.Next().In(cfg.Location)
	require.Equal(t, 0, next.Hour())
	require.Equal(t, 5, next.Minute())
	require.True(t, next.After(time.Now()))
}

func TestSchedulerFiresOnSchedule(t *testing.T) {
	if testing.Short() {
		t.Skip("waits for a cron tick")
	}
	sweeper := newFakeSweeper()
	cfg := testConfig()
	cfg.Spec = "@every 1s"
	s, err := NewScheduler(sweeper, cfg)
	require.NoError(t, err)

	require.NoError(t, s.Start(context.Background()))
	waitRun(t, sweeper)
	stop(t, s)
}

func TestSchedulerSurvivesSweepErrors(t *testing.T) {
	sweeper := newFakeSweeper()
	sweeper.err = errors.New("connection refused")
	cfg := testConfig()
	cfg.RunOnStart = true
	s, err := NewScheduler(sweeper, cfg)
	require.NoError(t, err)

	require.NoError(t, s.Start(context.Background()))
	waitRun(t, sweeper)

	_, err = s.RunOnce(context.Background())
	require.ErrorIs(t, err, sweeper.err)
	require.False(t, s.Next().IsZero(), "schedule keeps running after a failed sweep")
	stop(t, s)
}

func TestSchedulerStopCancelsRunningSweep(t *testing.T) {
	sweeper := newFakeSweeper()
	sweeper.block = true
	cfg := testConfig()
	cfg.RunOnStart = true
	s, err := NewScheduler(sweeper, cfg)
	require.NoError(t, err)

	require.NoError(t, s.Start(context.Background()))
	waitRun(t, sweeper)
	stop(t, s)
}

func TestRunOnceSkipsOverlappingRuns(t *testing.T) {
	sweeper := newFakeSweeper()
	sweeper.block = true
	s, err := NewScheduler(sweeper, testConfig())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, _ = s.RunOnce(ctx)
	}()
	waitRun(t, sweeper)

	n, err := s.RunOnce(context.Background())
	require.NoError(t, err)
	require.Zero(t, n)
	require.Equal(t, int32(1), sweeper.calls.Load())

	cancel()
	wg.Wait()
}

func TestNewSchedulerRejectsBadSpec(t *testing.T) {
	cfg := testConfig()
	cfg.Spec = "every midnight"
	_, err := NewScheduler(newFakeSweeper(), cfg)
	require.Error(t, err)

	_, err = NewScheduler(nil, testConfig())
	require.Error(t, err)
}

func TestStartTwiceFails(t *testing.T) {
	s, err := NewScheduler(newFakeSweeper(), testConfig())
	require.NoError(t, err)
	require.NoError(t, s.Start(context.Background()))
	defer stop(t, s)
	require.Error(t, s.Start(context.Background()))
}
