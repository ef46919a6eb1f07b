package usecase

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

const defaultIdleCheckInterval = 30 * time.Second

// activityEvents is the fixed set of interaction types that count as user activity.
var activityEvents = map[string]struct{}{
	"mousedown":  {},
	"mousemove":  {},
	"keydown":    {},
	"keypress":   {},
	"scroll":     {},
	"touchstart": {},
	"click":      {},
	"wheel":      {},
}

// IsActivityEvent reports whether eventType is one of the tracked interaction types.
func IsActivityEvent(eventType string) bool {
	_, ok := activityEvents[eventType]
	return ok
}

// activityStore is the part of SessionHealthStore the monitor needs.
type activityStore interface {
	UpdateLastActivity(ctx context.Context) error
	IsInactivityExceeded(ctx context.Context) (bool, error)
}

// InactivityMonitorOptions configures the idle check cadence.
type InactivityMonitorOptions struct {
	CheckInterval time.Duration
}

// InactivityMonitor logs the session out once the idle threshold elapses.
type InactivityMonitor struct {
	store  activityStore
	onIdle func(ctx context.Context)
	opts   InactivityMonitorOptions
	logger *zap.Logger

	fired atomic.Bool
}

// NewInactivityMonitor constructs a monitor that calls onIdle at most once.
func NewInactivityMonitor(store activityStore, onIdle func(ctx context.Context), opts InactivityMonitorOptions) *InactivityMonitor {
	if opts.CheckInterval <= 0 {
		opts.CheckInterval = defaultIdleCheckInterval
	}
	return &InactivityMonitor{
		store:  store,
		onIdle: onIdle,
		opts:   opts,
		logger: zap.NewNop(),
	}
}

// WithLogger attaches a structured logger.
func (m *InactivityMonitor) WithLogger(logger *zap.Logger) *InactivityMonitor {
	if logger != nil {
		m.logger = logger
	}
	return m
}

// Name identifies the watcher in supervisor logs.
func (m *InactivityMonitor) Name() string { return "inactivity" }

// RecordActivity stamps the last activity for tracked event types. Other types are ignored.
func (m *InactivityMonitor) RecordActivity(ctx context.Context, eventType string) bool {
	if !IsActivityEvent(eventType) {
		return false
	}
	if err := m.store.UpdateLastActivity(ctx); err != nil {
		m.logger.Warn("failed to record activity", zap.String("event", eventType), zap.Error(err))
		return false
	}
	return true
}

// Check compares idle time to the threshold and fires the logout once. It reports whether this
// call fired it.
func (m *InactivityMonitor) Check(ctx context.Context) bool {
	if m.fired.Load() {
		return false
	}

	exceeded, err := m.store.IsInactivityExceeded(ctx)
	if err != nil {
		m.logger.Warn("inactivity check failed", zap.Error(err))
		return false
	}
	if !exceeded {
		return false
	}

	if !m.fired.CompareAndSwap(false, true) {
		return false
	}

	m.logger.Info("idle threshold exceeded; logging out")
	if m.onIdle != nil {
		m.onIdle(ctx)
	}
	return true
}

// OnVisible runs the check immediately when the client regains visibility.
func (m *InactivityMonitor) OnVisible(ctx context.Context) bool {
	return m.Check(ctx)
}

// Start launches the recurring check.
func (m *InactivityMonitor) Start(ctx context.Context) (func(), error) {
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()

		ticker := time.NewTicker(m.opts.CheckInterval)
		defer ticker.Stop()

		for {
			select {
			case <-runCtx.Done():
				return
			case <-ticker.C:
				if m.Check(runCtx) {
					return
				}
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			cancel()
			wg.Wait()
		})
	}, nil
}
