package usecase

import (
	"context"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Anas43xq/EmployeeManagementSystem-sub000/internal/core/domain"
	"github.com/Anas43xq/EmployeeManagementSystem-sub000/internal/core/port"
)

const (
	defaultPollInterval = 60 * time.Second
	defaultQueueSize    = 16
)

// RevocationHandler reacts to revocation decisions. ForceLogout must tolerate repeated calls
// and must not wait for the watcher to stop, since it runs on the watcher's consumer goroutine.
type RevocationHandler interface {
	ForceLogout(ctx context.Context, reason domain.LogoutReason, remote bool) error
	MarkDeactivated(ctx context.Context, identityID string)
}

// RevocationWatcherOptions configures the poll fallback and the event queue.
type RevocationWatcherOptions struct {
	PollInterval time.Duration
	QueueSize    int
}

// RevocationWatcher detects ban, deactivation and supersession of the local session. A push
// producer (profile change feed) and a poll producer (periodic profile read) enqueue profile
// snapshots that a single consumer evaluates.
type RevocationWatcher struct {
	identityID string
	subscriber port.ProfileSubscriber
	profiles   port.ProfileRepository
	localToken func(ctx context.Context) (string, error)
	handler    RevocationHandler
	opts       RevocationWatcherOptions
	logger     *zap.Logger
	now        func() time.Time
	metrics    SessionMetrics
}

// NewRevocationWatcher constructs a watcher for one identity. subscriber may be nil, in which
// case only the poll producer runs.
func NewRevocationWatcher(
	identityID string,
	subscriber port.ProfileSubscriber,
	profiles port.ProfileRepository,
	localToken func(ctx context.Context) (string, error),
	handler RevocationHandler,
	opts RevocationWatcherOptions,
) *RevocationWatcher {
	if opts.PollInterval <= 0 {
		opts.PollInterval = defaultPollInterval
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = defaultQueueSize
	}
	return &RevocationWatcher{
		identityID: strings.TrimSpace(identityID),
		subscriber: subscriber,
		profiles:   profiles,
		localToken: localToken,
		handler:    handler,
		opts:       opts,
		logger:     zap.NewNop(),
		now:        time.Now,
	}
}

// WithLogger attaches a structured logger.
func (w *RevocationWatcher) WithLogger(logger *zap.Logger) *RevocationWatcher {
	if logger != nil {
		w.logger = logger.With(zap.String("identity_id", w.identityID))
	}
	return w
}

// WithNow overrides the clock, primarily for deterministic testing.
func (w *RevocationWatcher) WithNow(now func() time.Time) *RevocationWatcher {
	if now != nil {
		w.now = now
	}
	return w
}

// WithMetrics wires telemetry observers for revocation decisions.
func (w *RevocationWatcher) WithMetrics(metrics SessionMetrics) *RevocationWatcher {
	if metrics != nil {
		w.metrics = metrics
	}
	return w
}

// Name identifies the watcher in supervisor logs.
func (w *RevocationWatcher) Name() string { return "revocation" }

// Start subscribes to the push feed and launches the poller and the consumer. A failed
// subscription leaves the poll path running on its own.
func (w *RevocationWatcher) Start(ctx context.Context) (func(), error) {
	if w.identityID == "" {
		return nil, ErrIdentityRequired
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	queue := make(chan domain.RevocationEvent, w.opts.QueueSize)

	enqueue := func(source domain.RevocationSource, profile domain.Profile) {
		event := domain.RevocationEvent{Source: source, Profile: profile, ObservedAt: w.now()}
		select {
		case queue <- event:
		case <-runCtx.Done():
		}
	}

	var subscription port.Subscription
	if w.subscriber != nil {
		sub, err := w.subscriber.Subscribe(runCtx, w.identityID, func(profile domain.Profile) {
			enqueue(domain.RevocationSourcePush, profile)
		})
		if err != nil {
			w.logger.Warn("profile change feed unavailable; relying on polling", zap.Error(err))
		} else {
			subscription = sub
		}
	}

	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		w.poll(runCtx, enqueue)
	}()

	go func() {
		defer wg.Done()
		for {
			select {
			case <-runCtx.Done():
				return
			case event := <-queue:
				w.Handle(runCtx, event)
			}
		}
	}()

	var once sync.Once
	stop := func() {
		once.Do(func() {
			cancel()
			if subscription != nil {
				if err := subscription.Close(); err != nil {
					w.logger.Warn("close profile subscription", zap.Error(err))
				}
			}
			wg.Wait()
		})
	}

	w.logger.Info("revocation watcher started",
		zap.Bool("push", subscription != nil),
		zap.Duration("poll_interval", w.opts.PollInterval),
	)

	return stop, nil
}

// Evaluate applies the three revocation checks to a profile snapshot. A ban outranks
// supersession because it requires the remote sign-out.
func (w *RevocationWatcher) Evaluate(ctx context.Context, profile domain.Profile) domain.RevocationDecision {
	if profile.IsBanned {
		return domain.RevocationDecisionBanned
	}

	if profile.SessionToken != nil && w.localToken != nil {
		local, err := w.localToken(ctx)
		if err != nil {
			w.logger.Warn("read local session token", zap.Error(err))
		} else if local != "" && *profile.SessionToken != local {
			return domain.RevocationDecisionSuperseded
		}
	}

	if !profile.IsActive {
		return domain.RevocationDecisionDeactivated
	}

	return domain.RevocationDecisionNone
}

// Handle evaluates one queued event and invokes the handler.
func (w *RevocationWatcher) Handle(ctx context.Context, event domain.RevocationEvent) domain.RevocationDecision {
	if event.Profile.IdentityID != w.identityID {
		return domain.RevocationDecisionNone
	}

	decision := w.Evaluate(ctx, event.Profile)
	if w.metrics != nil {
		w.metrics.IncRevocationEvent(event.Source, decision)
	}

	switch decision {
	case domain.RevocationDecisionSuperseded:
		w.logger.Info("session superseded by another login", zap.String("source", string(event.Source)))
		w.forceLogout(ctx, domain.LogoutReasonSuperseded, false)
	case domain.RevocationDecisionBanned:
		w.logger.Warn("identity banned", zap.String("source", string(event.Source)))
		w.forceLogout(ctx, domain.LogoutReasonBanned, true)
	case domain.RevocationDecisionDeactivated:
		w.logger.Info("identity deactivated", zap.String("source", string(event.Source)))
		w.handler.MarkDeactivated(ctx, w.identityID)
	}

	return decision
}

func (w *RevocationWatcher) forceLogout(ctx context.Context, reason domain.LogoutReason, remote bool) {
	if err := w.handler.ForceLogout(ctx, reason, remote); err != nil {
		w.logger.Error("forced logout failed", zap.String("reason", string(reason)), zap.Error(err))
	}
}

func (w *RevocationWatcher) poll(ctx context.Context, enqueue func(domain.RevocationSource, domain.Profile)) {
	if w.profiles == nil {
		return
	}

	ticker := time.NewTicker(w.opts.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			profile, err := w.profiles.GetProfile(ctx, w.identityID)
			if err != nil {
				if ctx.Err() == nil {
					w.logger.Warn("revocation poll failed", zap.Error(err))
				}
				continue
			}
			enqueue(domain.RevocationSourcePoll, *profile)
		}
	}
}
