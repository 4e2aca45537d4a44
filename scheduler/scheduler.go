// Package scheduler runs the periodic maintenance jobs of the server.
package scheduler

import (
	"context"
	"errors"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// TaskFn is a periodic job. ctx is cancelled when the task is removed or the
// scheduler stops.
type TaskFn func(ctx context.Context) error

// TaskInfo describes a registered task.
type TaskInfo struct {
	Name     string        `json:"name"`
	Interval time.Duration `json:"interval"`
	Runs     int64         `json:"runs"`
	Skipped  int64         `json:"skipped"`
	Failures int64         `json:"failures"`
	LastRun  time.Time     `json:"last_run,omitempty"`
	LastErr  string        `json:"last_error,omitempty"`
}

// Scheduler manages periodic tasks. A tick that arrives while the previous
// run of the same task is still busy is skipped.
type Scheduler struct {
	mu     sync.Mutex
	tasks  map[string]*task
	logger *zap.Logger
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

type task struct {
	name     string
	interval time.Duration
	fn       TaskFn
	cancel   context.CancelFunc
	busy     atomic.Bool

	mu       sync.Mutex
	runs     int64
	skipped  int64
	failures int64
	lastRun  time.Time
	lastErr  string
}

// New creates a new Scheduler.
func New(logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		tasks:  make(map[string]*task),
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
	}
}

// AddTicker registers a task to run on a fixed interval.
// If a task with the same name exists, it is replaced.
func (s *Scheduler) AddTicker(name string, interval time.Duration, fn TaskFn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ctx.Err() != nil {
		return
	}

	if old, ok := s.tasks[name]; ok {
		old.cancel()
		delete(s.tasks, name)
	}

	ctx, cancel := context.WithCancel(s.ctx)
	t := &task{name: name, interval: interval, fn: fn, cancel: cancel}
	s.tasks[name] = t

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				s.wg.Add(1)
				go func() {
					defer s.wg.Done()
					s.fire(ctx, t)
				}()
			case <-ctx.Done():
				return
			}
		}
	}()
	s.logger.Info("scheduler task registered", zap.String("name", name), zap.Duration("interval", interval))
}

// RunNow triggers name immediately, subject to the same overlap rule as a
// tick. It reports whether the task exists.
func (s *Scheduler) RunNow(name string) bool {
	s.mu.Lock()
	t, ok := s.tasks[name]
	if !ok || s.ctx.Err() != nil {
		s.mu.Unlock()
		return false
	}
	s.wg.Add(1)
	s.mu.Unlock()
	go func() {
		defer s.wg.Done()
		s.fire(s.ctx, t)
	}()
	return true
}

func (s *Scheduler) fire(ctx context.Context, t *task) {
	if !t.busy.CompareAndSwap(false, true) {
		t.mu.Lock()
		t.skipped++
		t.mu.Unlock()
		s.logger.Debug("scheduler task still running, tick skipped", zap.String("task", t.name))
		return
	}
	defer t.busy.Store(false)

	start := time.Now()
	err := s.run(ctx, t)

	t.mu.Lock()
	t.runs++
	t.lastRun = start
	t.lastErr = ""
	if err != nil {
		t.failures++
		t.lastErr = err.Error()
	}
	t.mu.Unlock()

	if err != nil && ctx.Err() == nil {
		s.logger.Warn("scheduler task failed", zap.String("task", t.name), zap.Error(err))
	}
}

func (s *Scheduler) run(ctx context.Context, t *task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("scheduler task panicked",
				zap.String("task", t.name),
				zap.Any("recover", r))
			err = errPanic
		}
	}()
	return t.fn(ctx)
}

// Remove stops and removes a task by name.
func (s *Scheduler) Remove(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.tasks[name]; ok {
		t.cancel()
		delete(s.tasks, name)
	}
}

// Stop cancels all tasks and waits for running ones to return.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	s.cancel()
	s.tasks = make(map[string]*task)
	s.mu.Unlock()
	s.wg.Wait()
}

// Tasks returns a snapshot of the registered tasks sorted by name.
func (s *Scheduler) Tasks() []TaskInfo {
	s.mu.Lock()
	out := make([]TaskInfo, 0, len(s.tasks))
	for _, t := range s.tasks {
		t.mu.Lock()
		out = append(out, TaskInfo{
			Name:     t.name,
			Interval: t.interval,
			Runs:     t.runs,
			Skipped:  t.skipped,
			Failures: t.failures,
			LastRun:  t.lastRun,
			LastErr:  t.lastErr,
		})
		t.mu.Unlock()
	}
	s.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

var errPanic = errors.New("task panicked")
