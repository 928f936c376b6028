// Package scheduler runs named jobs on fixed intervals.
//
// Runs are ticker based and approximate. A job that is still running when
// its next tick arrives skips that tick; nothing is persisted across
// restarts, so jobs must derive "is it due" from their own state.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// DefaultTimeout bounds a single job run.
const DefaultTimeout = 30 * time.Second

// ErrUnknownJob is returned by RunNow for a name that was never registered.
var ErrUnknownJob = errors.New("unknown job")

// Job is a unit of periodic work.
type Job struct {
	Name     string
	Interval time.Duration
	// Timeout bounds each run. Zero uses DefaultTimeout.
	Timeout time.Duration
	// RunOnStart runs the job once as soon as the scheduler starts.
	RunOnStart bool
	Run        func(ctx context.Context) error
}

// Scheduler runs registered jobs, each in its own loop.
type Scheduler struct {
	logger zerolog.Logger

	mu      sync.Mutex
	jobs    map[string]*Job
	order   []string
	running map[string]bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New creates an empty scheduler.
func New(logger zerolog.Logger) *Scheduler {
	return &Scheduler{
		logger:  logger.With().Str("component", "scheduler").Logger(),
		jobs:    make(map[string]*Job),
		running: make(map[string]bool),
	}
}

// Register adds a job. It must be called before Start.
func (s *Scheduler) Register(job Job) error {
	if job.Name == "" || job.Run == nil {
		return errors.New("job requires a name and a run function")
	}
	if job.Interval <= 0 {
		return fmt.Errorf("job %s: interval must be positive", job.Name)
	}
	if job.Timeout <= 0 {
		job.Timeout = DefaultTimeout
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.jobs[job.Name]; exists {
		return fmt.Errorf("job %s already registered", job.Name)
	}
	s.jobs[job.Name] = &job
	s.order = append(s.order, job.Name)
	return nil
}

// Jobs returns the registered job names in registration order.
func (s *Scheduler) Jobs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.order...)
}

// Start launches one loop per job. Calling Start on a running scheduler has no effect.
func (s *Scheduler) Start(parent context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(parent)
	s.cancel = cancel
	for _, name := range s.order {
		job := s.jobs[name]
		s.wg.Add(1)
		go s.loop(ctx, job)
	}
	s.logger.Info().Int("jobs", len(s.order)).Msg("scheduler started")
}

// Stop cancels every loop and waits for in-flight runs to return. It is idempotent.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	s.cancel = nil
	s.mu.Unlock()
	if cancel == nil {
		return
	}

	cancel()
	s.wg.Wait()
	s.logger.Info().Msg("scheduler stopped")
}

// RunNow runs the named job immediately in the caller's goroutine.
func (s *Scheduler) RunNow(ctx context.Context, name string) error {
	s.mu.Lock()
	job, ok := s.jobs[name]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownJob, name)
	}
	return s.run(ctx, job)
}

func (s *Scheduler) loop(ctx context.Context, job *Job) {
	defer s.wg.Done()

	if job.RunOnStart {
		_ = s.run(ctx, job)
	}

	ticker := time.NewTicker(job.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_ = s.run(ctx, job)
		}
	}
}

// run executes one bounded run of job, skipping it when a run is already in flight.
func (s *Scheduler) run(ctx context.Context, job *Job) error {
	s.mu.Lock()
	if s.running[job.Name] {
		s.mu.Unlock()
		s.logger.Debug().Str("job", job.Name).Msg("previous run still in flight, skipping")
		return nil
	}
	s.running[job.Name] = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.running, job.Name)
		s.mu.Unlock()
	}()

	runCtx, cancel := context.WithTimeout(ctx, job.Timeout)
	defer cancel()

	start := time.Now()
	err := safeRun(runCtx, job.Run)
	logEvent := s.logger.Debug()
	if err != nil {
		logEvent = s.logger.Error().Err(err)
	}
	logEvent.
		Str("job", job.Name).
		Dur("duration", time.Since(start)).
		Msg("job run finished")
	return err
}

func safeRun(ctx context.Context, fn func(context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job panic: %v", r)
		}
	}()
	return fn(ctx)
}
