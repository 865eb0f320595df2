// Package jobs runs the periodic background work: the due-task check that
// feeds notifications, and catalog resyncs.
package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
)

// Job is one unit of periodic work.
type Job func(ctx context.Context) error

// Scheduler runs Jobs on cron specs in one time zone. A run still in
// progress when its next tick fires is skipped rather than overlapped.
type Scheduler struct {
	log    *slog.Logger
	parser cron.Parser
	c      *cron.Cron

	mu     sync.Mutex
	ctx    context.Context
	cancel context.CancelFunc
}

func New(loc *time.Location, log *slog.Logger) *Scheduler {
	if loc == nil {
		loc = time.Local
	}
	if log == nil {
		log = slog.Default()
	}
	parser := cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		log:    log.With("component", "jobs"),
		parser: parser,
		c:      cron.New(cron.WithParser(parser), cron.WithLocation(loc)),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Add schedules job under name. An empty spec disables the job. Each run
// gets timeout (0 means none).
func (s *Scheduler) Add(name, spec string, timeout time.Duration, job Job) error {
	if spec == "" {
		s.log.Info("Job disabled", "job", name)
		return nil
	}
	if _, err := s.parser.Parse(spec); err != nil {
		return fmt.Errorf("invalid schedule %q for %s: %w", spec, name, err)
	}

	var running atomic.Bool
	_, err := s.c.AddFunc(spec, func() {
		if !running.CompareAndSwap(false, true) {
			s.log.Debug("Job skipped (previous run still running)", "job", name)
			return
		}
		defer running.Store(false)
		s.run(name, timeout, job)
	})
	if err != nil {
		return fmt.Errorf("failed to schedule %s: %w", name, err)
	}
	s.log.Info("Job scheduled", "job", name, "spec", spec)
	return nil
}

// RunNow runs job once, synchronously, the way the scheduler would.
func (s *Scheduler) RunNow(name string, timeout time.Duration, job Job) {
	s.run(name, timeout, job)
}

func (s *Scheduler) run(name string, timeout time.Duration, job Job) {
	s.mu.Lock()
	ctx := s.ctx
	s.mu.Unlock()
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	defer func() {
		if r := recover(); r != nil {
			s.log.Error("panic in job", "job", name, "panic", r, "stack", string(debug.Stack()))
		}
	}()

	start := time.Now()
	if err := job(ctx); err != nil {
		s.log.Error("Job failed", "job", name, "duration", time.Since(start), "error", err)
		return
	}
	s.log.Debug("Job finished", "job", name, "duration", time.Since(start))
}

// Start begins firing schedules. Jobs see ctx, so cancelling it aborts
// in-flight runs.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	s.cancel()
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.mu.Unlock()
	s.c.Start()
}

// Stop halts scheduling and waits for running jobs, up to ctx's deadline.
// Jobs still running at the deadline are cancelled. The context handed to
// jobs is cancelled once Stop returns either way.
func (s *Scheduler) Stop(ctx context.Context) {
	done := s.c.Stop().Done()
	select {
	case <-done:
	case <-ctx.Done():
		s.cancelJobs()
		<-done
	}
	s.cancelJobs()
}

func (s *Scheduler) cancelJobs() {
	s.mu.Lock()
	s.cancel()
	s.mu.Unlock()
}
