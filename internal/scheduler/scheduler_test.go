package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.opentelemetry.io/otel"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

// testLogger implements Logger for testing
type testLogger struct {
	mu       sync.Mutex
	messages []string
}

func (l *testLogger) Debug(msg string, keysAndValues ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.messages = append(l.messages, fmt.Sprintf("DEBUG: %s %v", msg, keysAndValues))
}

func (l *testLogger) Info(msg string, keysAndValues ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.messages = append(l.messages, fmt.Sprintf("INFO: %s %v", msg, keysAndValues))
}

func (l *testLogger) Error(msg string, keysAndValues ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.messages = append(l.messages, fmt.Sprintf("ERROR: %s %v", msg, keysAndValues))
}

func (l *testLogger) contains(substr string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, m := range l.messages {
		if strings.Contains(m, substr) {
			return true
		}
	}
	return false
}

func newTestScheduler(t *testing.T, tasks ...Task) (*Scheduler, *testLogger) {
	logger := &testLogger{}

	s, err := New(logger, tasks...)
	if err != nil {
		t.Fatalf("failed to create scheduler: %v", err)
	}

	return s, logger
}

func TestNew_RejectsInvalidTasks(t *testing.T) {
	if _, err := New(&testLogger{}, Task{Name: "norun", Every: time.Second}); err == nil {
		t.Error("expected error for task without run func")
	}
	noop := func(context.Context) error { return nil }
	if _, err := New(&testLogger{}, Task{Name: "nointerval", Run: noop}); err == nil {
		t.Error("expected error for task without interval")
	}
}

func TestScheduler_RunsAtFixedRate(t *testing.T) {
	var count atomic.Int32
	s, _ := newTestScheduler(t, Task{
		Name:  "tick",
		Every: 10 * time.Millisecond,
		Run: func(context.Context) error {
			count.Add(1)
			return nil
		},
	})

	s.Start(context.Background())
	time.Sleep(105 * time.Millisecond)
	if err := s.Stop(time.Second); err != nil {
		t.Fatalf("unexpected stop error: %v", err)
	}

	got := count.Load()
	if got < 5 || got > 11 {
		t.Errorf("expected about 10 runs, got %d", got)
	}
}

func TestScheduler_Immediate(t *testing.T) {
	ran := make(chan struct{}, 1)
	s, _ := newTestScheduler(t, Task{
		Name:      "poll",
		Every:     time.Hour,
		Immediate: true,
		Run: func(context.Context) error {
			ran <- struct{}{}
			return nil
		},
	})

	s.Start(context.Background())
	defer s.Stop(time.Second)

	select {
	case <-ran:
	case <-time.After(time.Second):
		t.Fatal("immediate task did not run")
	}
}

func TestScheduler_SkipsWhileInFlight(t *testing.T) {
	release := make(chan struct{})
	var count atomic.Int32
	s, logger := newTestScheduler(t, Task{
		Name:  "slow",
		Every: 5 * time.Millisecond,
		Run: func(ctx context.Context) error {
			count.Add(1)
			select {
			case <-release:
			case <-ctx.Done():
			}
			return nil
		},
	})

	s.Start(context.Background())
	time.Sleep(60 * time.Millisecond)
	close(release)
	if err := s.Stop(time.Second); err != nil {
		t.Fatalf("unexpected stop error: %v", err)
	}

	if got := count.Load(); got != 1 {
		t.Errorf("expected exactly 1 run while blocked, got %d", got)
	}
	if !logger.contains("task still running") {
		t.Error("expected skipped ticks to be logged")
	}
}

func TestScheduler_TaskDone(t *testing.T) {
	var count atomic.Int32
	s, logger := newTestScheduler(t, Task{
		Name:  "burst",
		Every: 5 * time.Millisecond,
		Run: func(context.Context) error {
			if count.Add(1) == 3 {
				return ErrDone
			}
			return nil
		},
	})

	s.Start(context.Background())
	time.Sleep(80 * time.Millisecond)
	s.Stop(time.Second)

	if got := count.Load(); got != 3 {
		t.Errorf("expected task to stop after 3 runs, got %d", got)
	}
	if !logger.contains("task finished") {
		t.Error("expected finish to be logged")
	}
}

func TestScheduler_LogsErrors(t *testing.T) {
	failed := make(chan struct{}, 10)
	s, logger := newTestScheduler(t, Task{
		Name:  "failing",
		Every: 5 * time.Millisecond,
		Run: func(context.Context) error {
			failed <- struct{}{}
			return errors.New("boom")
		},
	})

	s.Start(context.Background())
	<-failed
	<-failed
	s.Stop(time.Second)

	if !logger.contains("task failed") {
		t.Error("expected task error to be logged")
	}
}

func TestScheduler_DynamicCadence(t *testing.T) {
	var fast atomic.Bool
	var count atomic.Int32
	s, _ := newTestScheduler(t, Task{
		Name:  "monitor",
		Every: time.Hour,
		Cadence: func() time.Duration {
			if fast.Load() {
				return 5 * time.Millisecond
			}
			return 0
		},
		Immediate: true,
		Run: func(context.Context) error {
			count.Add(1)
			fast.Store(true)
			return nil
		},
	})

	s.Start(context.Background())
	time.Sleep(60 * time.Millisecond)
	s.Stop(time.Second)

	if got := count.Load(); got < 3 {
		t.Errorf("expected cadence change to speed up ticks, got %d runs", got)
	}
}

func TestScheduler_StopTimeout(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	defer close(release)

	s, logger := newTestScheduler(t, Task{
		Name:      "stuck",
		Every:     time.Hour,
		Immediate: true,
		Run: func(context.Context) error {
			close(started)
			<-release // ignores cancellation
			return nil
		},
	})

	s.Start(context.Background())
	<-started

	begin := time.Now()
	err := s.Stop(20 * time.Millisecond)
	if !errors.Is(err, ErrStopTimeout) {
		t.Fatalf("expected ErrStopTimeout, got %v", err)
	}
	if time.Since(begin) > 500*time.Millisecond {
		t.Error("stop did not honour its timeout")
	}
	if !logger.contains("stop timed out") {
		t.Error("expected timeout to be logged")
	}
}

func TestScheduler_StopIdempotent(t *testing.T) {
	s, _ := newTestScheduler(t, Task{
		Name:  "tick",
		Every: time.Millisecond,
		Run:   func(context.Context) error { return nil },
	})

	if err := s.Stop(time.Second); err != nil {
		t.Errorf("stop before start: %v", err)
	}

	s.Start(context.Background())
	if err := s.Stop(time.Second); err != nil {
		t.Errorf("first stop: %v", err)
	}
	if err := s.Stop(time.Second); err != nil {
		t.Errorf("second stop: %v", err)
	}
}

func TestScheduler_NoRunsAfterStop(t *testing.T) {
	var count atomic.Int32
	s, _ := newTestScheduler(t, Task{
		Name:  "tick",
		Every: 2 * time.Millisecond,
		Run: func(context.Context) error {
			count.Add(1)
			return nil
		},
	})

	s.Start(context.Background())
	time.Sleep(20 * time.Millisecond)
	s.Stop(time.Second)

	after := count.Load()
	time.Sleep(20 * time.Millisecond)
	if count.Load() != after {
		t.Error("task ran after stop returned")
	}
}

func TestScheduler_Metrics(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	otel.SetMeterProvider(provider)

	release := make(chan struct{})
	s, _ := newTestScheduler(t, Task{
		Name:      "slow",
		Every:     5 * time.Millisecond,
		Immediate: true,
		Run: func(context.Context) error {
			<-release
			return nil
		},
	})

	s.Start(context.Background())
	time.Sleep(40 * time.Millisecond)
	close(release)
	s.Stop(time.Second)

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("collect: %v", err)
	}

	totals := map[string]int64{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if sum, ok := m.Data.(metricdata.Sum[int64]); ok {
				for _, dp := range sum.DataPoints {
					totals[m.Name] += dp.Value
				}
			}
		}
	}

	if totals["scheduler.ticks.run"] != 1 {
		t.Errorf("expected 1 run, got %d", totals["scheduler.ticks.run"])
	}
	if totals["scheduler.ticks.skipped"] < 1 {
		t.Errorf("expected skipped ticks, got %d", totals["scheduler.ticks.skipped"])
	}
}
