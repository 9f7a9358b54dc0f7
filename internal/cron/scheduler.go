package cron

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

var parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// ParseSchedule validates a 5-field cron expression.
func ParseSchedule(expr string) (cron.Schedule, error) {
	return parser.Parse(expr)
}

// Scheduler runs registered jobs on their schedules. A job never overlaps
// with itself: a tick that finds the previous run still going is skipped.
type Scheduler struct {
	mu      sync.Mutex
	cron    *cron.Cron
	jobs    []*entry
	byName  map[string]*entry
	logger  *slog.Logger
	ctx     context.Context
	cancel  context.CancelFunc
	started bool
}

type entry struct {
	job  Job
	lock sync.Mutex
	id   cron.EntryID
}

// NewScheduler creates a scheduler. Jobs must be registered before Start.
func NewScheduler(logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		byName: make(map[string]*entry),
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
	}
}

// RegisterJob adds a job. Duplicate names and malformed schedules are
// rejected here rather than at Start.
func (s *Scheduler) RegisterJob(j Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	name := j.Name()
	if s.started {
		return fmt.Errorf("cron: cannot register %q after start", name)
	}
	if _, exists := s.byName[name]; exists {
		return fmt.Errorf("cron: duplicate job name %q", name)
	}
	if _, err := ParseSchedule(j.Schedule()); err != nil {
		return fmt.Errorf("cron: invalid schedule for job %q: %w", name, err)
	}

	e := &entry{job: j}
	s.byName[name] = e
	s.jobs = append(s.jobs, e)
	return nil
}

// Start begins executing registered jobs.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return nil
	}

	s.cron = cron.New(
		cron.WithParser(parser),
		cron.WithChain(cron.Recover(cronLogger{s.logger})),
	)
	for _, e := range s.jobs {
		e := e
		id, err := s.cron.AddFunc(e.job.Schedule(), func() { s.tick(e) })
		if err != nil {
			return fmt.Errorf("cron: schedule job %q: %w", e.job.Name(), err)
		}
		e.id = id
	}

	s.cron.Start()
	s.started = true
	s.logger.Info("cron: scheduler started", "jobs", len(s.jobs))
	return nil
}

func (s *Scheduler) tick(e *entry) {
	if err := s.run(s.ctx, e); errors.Is(err, ErrJobRunning) {
		s.logger.Warn("cron: job still running, skipping tick", "job", e.job.Name())
	}
}

// RunNow executes a job immediately in the calling goroutine. It fails with
// ErrJobRunning if a scheduled run is in progress.
func (s *Scheduler) RunNow(ctx context.Context, name string) error {
	s.mu.Lock()
	e, ok := s.byName[name]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownJob, name)
	}
	return s.run(ctx, e)
}

func (s *Scheduler) run(ctx context.Context, e *entry) error {
	if !e.lock.TryLock() {
		return ErrJobRunning
	}
	defer e.lock.Unlock()

	start := time.Now()
	err := e.job.Run(ctx)
	if err != nil {
		s.logger.Error("cron: job failed", "job", e.job.Name(), "error", err)
		return err
	}
	s.logger.Debug("cron: job completed", "job", e.job.Name(), "duration", time.Since(start))
	return nil
}

// Next returns the next scheduled run of a job. It is false before Start
// and for unknown jobs.
func (s *Scheduler) Next(name string) (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.byName[name]
	if !ok || !s.started {
		return time.Time{}, false
	}
	return s.cron.Entry(e.id).Next, true
}

// Stop cancels running jobs and waits for them to return.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	s.cancel()
	c := s.cron
	s.mu.Unlock()

	if c == nil {
		return nil
	}
	select {
	case <-c.Stop().Done():
		s.logger.Info("cron: scheduler stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("cron: stop: %w", ctx.Err())
	}
}

// cronLogger adapts slog to the logger the cron library reports panics to.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error("cron: "+msg, append([]any{"error", err}, keysAndValues...)...)
}
