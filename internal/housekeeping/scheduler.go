// Package housekeeping runs recurring maintenance tasks on fixed intervals.
package housekeeping

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
)

var (
	// ErrUnknownTask is returned by RunNow for a name that was never added
	ErrUnknownTask = errors.New("unknown task")

	// ErrStarted is returned when adding tasks or starting a running scheduler
	ErrStarted = errors.New("scheduler already started")
)

// TaskFunc is one run of a task
type TaskFunc func(ctx context.Context) error

type task struct {
	name     string
	interval time.Duration
	fn       TaskFunc

	// run serializes scheduled and manual runs
	run     sync.Mutex
	mu      sync.Mutex
	lastRun time.Time
	lastErr error
	runs    int
}

// TaskStatus reports the outcome of a task's latest run
type TaskStatus struct {
	Name     string
	Interval time.Duration
	LastRun  time.Time
	LastErr  error
	Runs     int
}

// Scheduler runs each task on its own ticker. A task never overlaps itself.
type Scheduler struct {
	mu      sync.Mutex
	tasks   map[string]*task
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	started bool
	logger  *zap.Logger
}

// NewScheduler creates an empty scheduler
func NewScheduler(logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{tasks: make(map[string]*task), logger: logger}
}

// AddTask registers fn to run every interval once the scheduler starts
func (s *Scheduler) AddTask(name string, interval time.Duration, fn TaskFunc) error {
	if name == "" {
		return errors.New("task name is required")
	}
	if interval <= 0 {
		return fmt.Errorf("task %s: interval must be positive", name)
	}
	if fn == nil {
		return fmt.Errorf("task %s: function is required", name)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return ErrStarted
	}
	if _, ok := s.tasks[name]; ok {
		return fmt.Errorf("task %s already added", name)
	}
	s.tasks[name] = &task{name: name, interval: interval, fn: fn}
	return nil
}

// Start launches every task. The first run of each task happens one interval
// after Start.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return ErrStarted
	}
	s.started = true

	ctx, s.cancel = context.WithCancel(ctx)
	for _, t := range s.tasks {
		s.wg.Add(1)
		go s.loop(ctx, t)
	}
	s.logger.Info("housekeeping started", zap.Int("tasks", len(s.tasks)))
	return nil
}

// Stop cancels running tasks and waits for them to return
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	s.wg.Wait()
	s.logger.Info("housekeeping stopped")
}

// RunNow runs the named task immediately in the caller's goroutine, waiting
// for any scheduled run of the same task to finish first
func (s *Scheduler) RunNow(ctx context.Context, name string) error {
	s.mu.Lock()
	t, ok := s.tasks[name]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownTask, name)
	}
	return s.execute(ctx, t)
}

// Status returns every task's latest outcome, sorted by name
func (s *Scheduler) Status() []TaskStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	statuses := make([]TaskStatus, 0, len(s.tasks))
	for _, t := range s.tasks {
		t.mu.Lock()
		statuses = append(statuses, TaskStatus{
			Name:     t.name,
			Interval: t.interval,
			LastRun:  t.lastRun,
			LastErr:  t.lastErr,
			Runs:     t.runs,
		})
		t.mu.Unlock()
	}
	sort.Slice(statuses, func(i, j int) bool { return statuses[i].Name < statuses[j].Name })
	return statuses
}

func (s *Scheduler) loop(ctx context.Context, t *task) {
	defer s.wg.Done()

	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_ = s.execute(ctx, t)
		}
	}
}

func (s *Scheduler) execute(ctx context.Context, t *task) (err error) {
	t.run.Lock()
	defer t.run.Unlock()

	start := time.Now()
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("task %s panicked: %v", t.name, p)
		}

		t.mu.Lock()
		t.lastRun = start
		t.lastErr = err
		t.runs++
		t.mu.Unlock()

		fields := []zap.Field{zap.String("task", t.name), zap.Duration("duration", time.Since(start))}
		if err != nil {
			s.logger.Error("housekeeping task failed", append(fields, zap.Error(err))...)
			return
		}
		s.logger.Debug("housekeeping task finished", fields...)
	}()

	return t.fn(ctx)
}
