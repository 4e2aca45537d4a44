package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newNop() *zap.Logger { l, _ := zap.NewDevelopment(); return l }

func TestAddTicker_Fires(t *testing.T) {
	s := New(newNop())
	defer s.Stop()

	var count int32
	s.AddTicker("tick", 20*time.Millisecond, func(context.Context) error {
		atomic.AddInt32(&count, 1)
		return nil
	})

	time.Sleep(120 * time.Millisecond)
	assert.GreaterOrEqual(t, atomic.LoadInt32(&count), int32(3))
}

func TestAddTicker_Replaces(t *testing.T) {
	s := New(newNop())
	defer s.Stop()

	var count1, count2 int32
	s.AddTicker("task", 20*time.Millisecond, func(context.Context) error { atomic.AddInt32(&count1, 1); return nil })
	time.Sleep(30 * time.Millisecond)
	s.AddTicker("task", 20*time.Millisecond, func(context.Context) error { atomic.AddInt32(&count2, 1); return nil })
	time.Sleep(80 * time.Millisecond)

	// Old ticker should have stopped, new one should be running
	snap1 := atomic.LoadInt32(&count1)
	time.Sleep(40 * time.Millisecond)
	assert.Equal(t, snap1, atomic.LoadInt32(&count1), "old ticker must stop after replacement")
	assert.Positive(t, atomic.LoadInt32(&count2))
}

func TestOverlappingRunIsSkipped(t *testing.T) {
	s := New(newNop())
	defer s.Stop()

	var running, maxRunning int32
	s.AddTicker("slow", 10*time.Millisecond, func(ctx context.Context) error {
		n := atomic.AddInt32(&running, 1)
		if n > atomic.LoadInt32(&maxRunning) {
			atomic.StoreInt32(&maxRunning, n)
		}
		select {
		case <-time.After(60 * time.Millisecond):
		case <-ctx.Done():
		}
		atomic.AddInt32(&running, -1)
		return nil
	})

	time.Sleep(150 * time.Millisecond)
	assert.Equal(t, int32(1), atomic.LoadInt32(&maxRunning))
	require.Len(t, s.Tasks(), 1)
	assert.Positive(t, s.Tasks()[0].Skipped)
}

func TestRemove_CancelsContext(t *testing.T) {
	s := New(newNop())
	defer s.Stop()

	started := make(chan struct{}, 1)
	done := make(chan struct{}, 1)
	s.AddTicker("task", 10*time.Millisecond, func(ctx context.Context) error {
		select {
		case started <- struct{}{}:
		default:
		}
		<-ctx.Done()
		select {
		case done <- struct{}{}:
		default:
		}
		return ctx.Err()
	})
	<-started
	s.Remove("task")

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("running task was not cancelled")
	}
	assert.Empty(t, s.Tasks())
}

func TestRemove_NonExistent(t *testing.T) {
	s := New(newNop())
	defer s.Stop()
	// Must not panic
	s.Remove("nope")
}

func TestStop_WaitsAndStops(t *testing.T) {
	s := New(newNop())

	var c1, c2 int32
	s.AddTicker("a", 20*time.Millisecond, func(context.Context) error { atomic.AddInt32(&c1, 1); return nil })
	s.AddTicker("b", 20*time.Millisecond, func(context.Context) error { atomic.AddInt32(&c2, 1); return nil })
	time.Sleep(50 * time.Millisecond)
	s.Stop()
	snap1, snap2 := atomic.LoadInt32(&c1), atomic.LoadInt32(&c2)
	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, snap1, atomic.LoadInt32(&c1))
	assert.Equal(t, snap2, atomic.LoadInt32(&c2))

	// registering after stop is ignored
	s.AddTicker("late", time.Millisecond, func(context.Context) error { return nil })
	assert.Empty(t, s.Tasks())
}

func TestStop_Idempotent(t *testing.T) {
	s := New(newNop())
	s.Stop()
	s.Stop() // must not panic on double-stop
}

func TestTasks_SortedWithStats(t *testing.T) {
	s := New(newNop())
	defer s.Stop()

	require.Empty(t, s.Tasks())
	s.AddTicker("beta", time.Hour, func(context.Context) error { return errors.New("db down") })
	s.AddTicker("alpha", time.Hour, func(context.Context) error { return nil })

	require.True(t, s.RunNow("beta"))
	assert.False(t, s.RunNow("gamma"))

	require.Eventually(t, func() bool {
		for _, ti := range s.Tasks() {
			if ti.Name == "beta" && ti.Runs == 1 {
				return true
			}
		}
		return false
	}, time.Second, 5*time.Millisecond)

	tasks := s.Tasks()
	require.Len(t, tasks, 2)
	assert.Equal(t, "alpha", tasks[0].Name)
	assert.Equal(t, "beta", tasks[1].Name)
	assert.Equal(t, int64(1), tasks[1].Failures)
	assert.Equal(t, "db down", tasks[1].LastErr)
	assert.False(t, tasks[1].LastRun.IsZero())
}

func TestTicker_PanicRecovery(t *testing.T) {
	s := New(newNop())
	defer s.Stop()

	var calls int32
	s.AddTicker("panic", 20*time.Millisecond, func(context.Context) error {
		atomic.AddInt32(&calls, 1)
		panic("oops")
	})
	// After the panic the ticker goroutine should keep running
	require.Eventually(t, func() bool { return atomic.LoadInt32(&calls) >= 2 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, "task panicked", s.Tasks()[0].LastErr)
}
