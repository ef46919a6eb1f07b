package usecase

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// Watcher is a background loop with an explicit lifetime.
type Watcher interface {
	Name() string
	Start(ctx context.Context) (stop func(), err error)
}

type runningWatcher struct {
	name string
	stop func()
}

// Supervisor starts watchers in order and stops them in reverse order.
type Supervisor struct {
	logger *zap.Logger

	mu      sync.Mutex
	running []runningWatcher
}

// NewSupervisor constructs an idle supervisor.
func NewSupervisor(logger *zap.Logger) *Supervisor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Supervisor{logger: logger}
}

// Start launches every watcher. If one fails, the ones already started are stopped and the
// error is returned.
func (s *Supervisor) Start(ctx context.Context, watchers ...Watcher) error {
	started := make([]runningWatcher, 0, len(watchers))
	for _, w := range watchers {
		stop, err := w.Start(ctx)
		if err != nil {
			stopAll(s.logger, started)
			return fmt.Errorf("start %s: %w", w.Name(), err)
		}
		started = append(started, runningWatcher{name: w.Name(), stop: stop})
		s.logger.Debug("watcher started", zap.String("watcher", w.Name()))
	}

	s.mu.Lock()
	s.running = append(s.running, started...)
	s.mu.Unlock()
	return nil
}

// Stop stops every running watcher. Calling it with nothing running is a no-op.
func (s *Supervisor) Stop() {
	s.mu.Lock()
	running := s.running
	s.running = nil
	s.mu.Unlock()

	stopAll(s.logger, running)
}

// Running reports how many watchers are active.
func (s *Supervisor) Running() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.running)
}

func stopAll(logger *zap.Logger, running []runningWatcher) {
	for i := len(running) - 1; i >= 0; i-- {
		if running[i].stop != nil {
			running[i].stop()
		}
		logger.Debug("watcher stopped", zap.String("watcher", running[i].name))
	}
}
