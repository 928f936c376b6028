package scheduler_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fintrack/fintrack/internal/scheduler"
)

func TestScheduler_RunsJobsUntilStopped(t *testing.T) {
	s := scheduler.New(zerolog.Nop())
	var runs atomic.Int32
	require.NoError(t, s.Register(scheduler.Job{
		Name:     "tick",
		Interval: 10 * time.Millisecond,
		Run: func(context.Context) error {
			runs.Add(1)
			return nil
		},
	}))

	s.Start(context.Background())
	s.Start(context.Background())

	assert.Eventually(t, func() bool { return runs.Load() >= 3 }, time.Second, 5*time.Millisecond)

	s.Stop()
	stopped := runs.Load()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, stopped, runs.Load(), "no runs after Stop")

	s.Stop()
}

func TestScheduler_RunOnStart(t *testing.T) {
	s := scheduler.New(zerolog.Nop())
	ran := make(chan struct{}, 1)
	require.NoError(t, s.Register(scheduler.Job{
		Name:       "startup",
		Interval:   time.Hour,
		RunOnStart: true,
		Run: func(context.Context) error {
			ran <- struct{}{}
			return nil
		},
	}))

	s.Start(context.Background())
	defer s.Stop()

	select {
	case <-ran:
	case <-time.After(time.Second):
		t.Fatal("job did not run on start")
	}
}

func TestScheduler_RunNow(t *testing.T) {
	s := scheduler.New(zerolog.Nop())
	boom := errors.New("boom")
	require.NoError(t, s.Register(scheduler.Job{
		Name:     "fails",
		Interval: time.Hour,
		Run:      func(context.Context) error { return boom },
	}))
	require.NoError(t, s.Register(scheduler.Job{
		Name:     "panics",
		Interval: time.Hour,
		Run:      func(context.Context) error { panic("bad") },
	}))

	assert.ErrorIs(t, s.RunNow(context.Background(), "fails"), boom)
	assert.ErrorContains(t, s.RunNow(context.Background(), "panics"), "job panic")
	assert.ErrorIs(t, s.RunNow(context.Background(), "missing"), scheduler.ErrUnknownJob)
	assert.Equal(t, []string{"fails", "panics"}, s.Jobs())
}

func TestScheduler_RunIsBoundedByTimeout(t *testing.T) {
	s := scheduler.New(zerolog.Nop())
	require.NoError(t, s.Register(scheduler.Job{
		Name:     "slow",
		Interval: time.Hour,
		Timeout:  20 * time.Millisecond,
		Run: func(ctx context.Context) error {
			<-ctx.Done()
			return ctx.Err()
		},
	}))

	assert.ErrorIs(t, s.RunNow(context.Background(), "slow"), context.DeadlineExceeded)
}

func TestScheduler_RegisterValidation(t *testing.T) {
	s := scheduler.New(zerolog.Nop())
	noop := func(context.Context) error { return nil }

	assert.Error(t, s.Register(scheduler.Job{Name: "", Interval: time.Second, Run: noop}))
	assert.Error(t, s.Register(scheduler.Job{Name: "zero", Run: noop}))
	require.NoError(t, s.Register(scheduler.Job{Name: "ok", Interval: time.Second, Run: noop}))
	assert.Error(t, s.Register(scheduler.Job{Name: "ok", Interval: time.Second, Run: noop}))
}
