package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var (
	// ErrDone is returned by a task to stop being scheduled.
	ErrDone = errors.New("task done")

	// ErrStopTimeout is returned by Stop when tasks are still running after the timeout.
	ErrStopTimeout = errors.New("scheduler stop timed out")
)

// Logger interface for pluggable logging.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// TaskFunc is one execution of a periodic task.
type TaskFunc func(ctx context.Context) error

// Task is a periodic unit of work.
type Task struct {
	Name string
	// Every is the fixed interval between ticks.
	Every time.Duration
	// Cadence, when set, is consulted before each tick and overrides Every.
	Cadence func() time.Duration
	// Immediate runs the first tick on Start instead of one interval later.
	Immediate bool
	Run       TaskFunc
}

func (t Task) interval() time.Duration {
	if t.Cadence != nil {
		if d := t.Cadence(); d > 0 {
			return d
		}
	}
	return t.Every
}

// Scheduler runs tasks at a fixed rate on a shared worker pool sized to the
// number of tasks. A tick is skipped, never queued, when the previous run of the
// same task is still in flight or the pool has no free worker.
type Scheduler struct {
	tasks  []Task
	logger Logger
	pool   chan struct{}

	// OTEL metrics
	ran     metric.Int64Counter
	skipped metric.Int64Counter

	mu      sync.Mutex
	cancel  context.CancelFunc
	started bool
	stopped bool
	loops   sync.WaitGroup
	runs    sync.WaitGroup
}

// New creates a Scheduler for the given tasks.
// Uses the global OTel meter for metrics (no-op if not configured).
func New(logger Logger, tasks ...Task) (*Scheduler, error) {
	for _, t := range tasks {
		if t.Run == nil {
			return nil, fmt.Errorf("task %q has no run func", t.Name)
		}
		if t.interval() <= 0 {
			return nil, fmt.Errorf("task %q has no interval", t.Name)
		}
	}

	s := &Scheduler{
		tasks:  tasks,
		logger: logger,
		pool:   make(chan struct{}, max(len(tasks), 1)),
	}

	m := meter()

	var err error

	s.ran, err = m.Int64Counter(
		"scheduler.ticks.run",
		metric.WithDescription("Total task ticks executed"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating run counter: %w", err)
	}

	s.skipped, err = m.Int64Counter(
		"scheduler.ticks.skipped",
		metric.WithDescription("Total task ticks skipped because the task or pool was busy"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating skipped counter: %w", err)
	}

	return s, nil
}

// Start launches one timing loop per task. Calling Start twice has no effect.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started || s.stopped {
		return
	}
	s.started = true

	ctx, s.cancel = context.WithCancel(ctx)
	for _, t := range s.tasks {
		s.loops.Add(1)
		go s.loop(ctx, t)
	}
}

func (s *Scheduler) loop(ctx context.Context, t Task) {
	defer s.loops.Done()

	attrs := metric.WithAttributes(attribute.String("task", t.Name))
	done := make(chan struct{})
	var doneOnce sync.Once
	inFlight := make(chan struct{}, 1)

	next := time.Now()
	if !t.Immediate {
		next = next.Add(t.interval())
	}

	timer := time.NewTimer(time.Until(next))
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-done:
			s.logger.Debug("task finished", "task", t.Name)
			return
		case <-timer.C:
		}

		// context may have been cancelled, or the task finished, while the timer fired
		if ctx.Err() != nil {
			return
		}
		select {
		case <-done:
			s.logger.Debug("task finished", "task", t.Name)
			return
		default:
		}

		select {
		case inFlight <- struct{}{}:
			select {
			case s.pool <- struct{}{}:
				s.ran.Add(context.Background(), 1, attrs)
				s.runs.Add(1)
				go func() {
					defer s.runs.Done()
					defer func() { <-s.pool; <-inFlight }()

					err := t.Run(ctx)
					switch {
					case errors.Is(err, ErrDone):
						doneOnce.Do(func() { close(done) })
					case err != nil && ctx.Err() == nil:
						s.logger.Error("task failed", "task", t.Name, "error", err)
					}
				}()
			default:
				<-inFlight
				s.skipped.Add(context.Background(), 1, attrs)
				s.logger.Debug("tick skipped, pool busy", "task", t.Name)
			}
		default:
			s.skipped.Add(context.Background(), 1, attrs)
			s.logger.Debug("tick skipped, task still running", "task", t.Name)
		}

		// fixed rate: the next tick is relative to the scheduled one, skipping
		// ahead if we fell behind
		now := time.Now()
		next = next.Add(t.interval())
		if !next.After(now) {
			next = now.Add(t.interval())
		}
		timer.Reset(time.Until(next))
	}
}

// Stop cancels all tasks and waits up to timeout for running ones to return.
// It is safe to call more than once; later calls return nil.
func (s *Scheduler) Stop(timeout time.Duration) error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return nil
	}
	s.stopped = true
	cancel := s.cancel
	s.mu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()

	finished := make(chan struct{})
	go func() {
		s.loops.Wait()
		s.runs.Wait()
		close(finished)
	}()

	select {
	case <-finished:
		return nil
	case <-time.After(timeout):
		s.logger.Error("scheduler stop timed out", "timeout", timeout)
		return ErrStopTimeout
	}
}
