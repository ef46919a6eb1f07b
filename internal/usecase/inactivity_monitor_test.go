package usecase

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Anas43xq/EmployeeManagementSystem-sub000/internal/repository/memory"
)

func TestInactivityMonitor_RecordActivityFiltersEventTypes(t *testing.T) {
	clock := newFakeClock()
	health := NewSessionHealthStore(memory.NewKeyValueStore(), SessionHealthOptions{}).WithNow(clock.Now)
	monitor := NewInactivityMonitor(health, nil, InactivityMonitorOptions{})
	ctx := context.Background()

	require.False(t, monitor.RecordActivity(ctx, "resize"))
	_, ok, err := health.GetLastActivity(ctx)
	require.NoError(t, err)
	require.False(t, ok)

	for _, event := range []string{"mousedown", "mousemove", "keydown", "keypress", "scroll", "touchstart", "click", "wheel"} {
		require.True(t, monitor.RecordActivity(ctx, event), event)
	}
	last, ok, err := health.GetLastActivity(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	require.True(t, last.Equal(clock.Now()))
}

func TestInactivityMonitor_FiresOnceAfterThreshold(t *testing.T) {
	clock := newFakeClock()
	health := NewSessionHealthStore(memory.NewKeyValueStore(), SessionHealthOptions{}).WithNow(clock.Now)

	var fired atomic.Int32
	monitor := NewInactivityMonitor(health, func(context.Context) { fired.Add(1) }, InactivityMonitorOptions{})
	ctx := context.Background()

	require.True(t, monitor.RecordActivity(ctx, "keydown"))
	require.False(t, monitor.Check(ctx))

	clock.Advance(8 * time.Minute)

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			monitor.OnVisible(ctx)
		}()
	}
	wg.Wait()
	monitor.Check(ctx)

	require.Equal(t, int32(1), fired.Load())
}

func TestInactivityMonitor_RecurringCheck(t *testing.T) {
	clock := newFakeClock()
	health := NewSessionHealthStore(memory.NewKeyValueStore(), SessionHealthOptions{}).WithNow(clock.Now)

	idle := make(chan struct{}, 1)
	monitor := NewInactivityMonitor(health, func(context.Context) { idle <- struct{}{} }, InactivityMonitorOptions{CheckInterval: 5 * time.Millisecond})
	ctx := context.Background()

	require.True(t, monitor.RecordActivity(ctx, "click"))

	stop, err := monitor.Start(ctx)
	require.NoError(t, err)
	defer stop()

	select {
	case <-idle:
		t.Fatalf("monitor fired before the threshold")
	case <-time.After(30 * time.Millisecond):
	}

	clock.Advance(9 * time.Minute)

	select {
	case <-idle:
	case <-time.After(time.Second):
		t.Fatalf("expected recurring check to fire")
	}
}
