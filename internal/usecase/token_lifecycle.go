package usecase

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/Anas43xq/EmployeeManagementSystem-sub000/internal/core/domain"
	"github.com/Anas43xq/EmployeeManagementSystem-sub000/internal/core/port"
)

const (
	defaultRefreshThreshold           = 5 * time.Minute
	defaultVisibilityRefreshThreshold = 2 * time.Minute
	defaultVisibilityDebounce         = 2 * time.Second

	refreshOutcomeSuccess       = "success"
	refreshOutcomeTransient     = "transient"
	refreshOutcomeAuthoritative = "authoritative"
	refreshOutcomeFailed        = "failed"
)

// TokenLifecycleOptions configures proactive refresh behaviour.
type TokenLifecycleOptions struct {
	RefreshThreshold           time.Duration
	VisibilityRefreshThreshold time.Duration
	VisibilityDebounce         time.Duration
}

// TokenLifecycleManager hands out access tokens and refreshes them ahead of expiry.
type TokenLifecycleManager struct {
	provider port.IdentityProvider
	opts     TokenLifecycleOptions
	logger   *zap.Logger
	now      func() time.Time
	metrics  TokenMetrics

	onSessionLost func(ctx context.Context, err error)

	refreshGroup singleflight.Group

	visibilityMu   sync.Mutex
	lastVisibility time.Time
	visibilityBusy atomic.Bool
}

// NewTokenLifecycleManager constructs the manager over the identity provider.
func NewTokenLifecycleManager(provider port.IdentityProvider, opts TokenLifecycleOptions) *TokenLifecycleManager {
	if opts.RefreshThreshold <= 0 {
		opts.RefreshThreshold = defaultRefreshThreshold
	}
	if opts.VisibilityRefreshThreshold <= 0 {
		opts.VisibilityRefreshThreshold = defaultVisibilityRefreshThreshold
	}
	if opts.VisibilityDebounce <= 0 {
		opts.VisibilityDebounce = defaultVisibilityDebounce
	}
	return &TokenLifecycleManager{
		provider: provider,
		opts:     opts,
		logger:   zap.NewNop(),
		now:      time.Now,
	}
}

// WithLogger attaches a structured logger.
func (m *TokenLifecycleManager) WithLogger(logger *zap.Logger) *TokenLifecycleManager {
	if logger != nil {
		m.logger = logger
	}
	return m
}

// WithNow overrides the clock, primarily for deterministic testing.
func (m *TokenLifecycleManager) WithNow(now func() time.Time) *TokenLifecycleManager {
	if now != nil {
		m.now = now
	}
	return m
}

// WithMetrics wires telemetry observers for refresh attempts.
func (m *TokenLifecycleManager) WithMetrics(metrics TokenMetrics) *TokenLifecycleManager {
	if metrics != nil {
		m.metrics = metrics
	}
	return m
}

// OnSessionLost registers the callback invoked when a refresh fails authoritatively.
func (m *TokenLifecycleManager) OnSessionLost(fn func(ctx context.Context, err error)) *TokenLifecycleManager {
	m.onSessionLost = fn
	return m
}

// CurrentSession returns the provider's current session, or nil.
func (m *TokenLifecycleManager) CurrentSession(ctx context.Context) (*domain.Session, error) {
	session, err := m.provider.GetSession(ctx)
	if err != nil {
		return nil, err
	}
	if !session.Valid() {
		return nil, nil
	}
	return session, nil
}

// GetValidAccessToken returns a usable access token, refreshing it when it expires within the
// refresh threshold. An empty token with a nil error means there is no session.
func (m *TokenLifecycleManager) GetValidAccessToken(ctx context.Context) (string, error) {
	session, err := m.CurrentSession(ctx)
	if err != nil || session == nil {
		return "", err
	}

	now := m.now()
	if !session.ExpiresWithin(m.opts.RefreshThreshold, now) {
		return session.AccessToken, nil
	}

	refreshed, err := m.refresh(ctx)
	if err == nil {
		return refreshed.AccessToken, nil
	}

	return m.fallback(session, err), nil
}

// GetFreshAccessToken always refreshes. It is used ahead of high-stakes writes.
func (m *TokenLifecycleManager) GetFreshAccessToken(ctx context.Context) (string, error) {
	session, err := m.CurrentSession(ctx)
	if err != nil || session == nil {
		return "", err
	}

	refreshed, err := m.refresh(ctx)
	if err == nil {
		return refreshed.AccessToken, nil
	}

	return m.fallback(session, err), nil
}

// OnVisible refreshes opportunistically when the client regains visibility and the token
// expires soon. Calls inside the debounce window and overlapping calls are ignored. It reports
// whether a refresh was attempted.
func (m *TokenLifecycleManager) OnVisible(ctx context.Context) bool {
	now := m.now()

	m.visibilityMu.Lock()
	if !m.lastVisibility.IsZero() && now.Sub(m.lastVisibility) < m.opts.VisibilityDebounce {
		m.visibilityMu.Unlock()
		return false
	}
	m.lastVisibility = now
	m.visibilityMu.Unlock()

	if !m.visibilityBusy.CompareAndSwap(false, true) {
		return false
	}
	defer m.visibilityBusy.Store(false)

	session, err := m.CurrentSession(ctx)
	if err != nil || session == nil {
		return false
	}
	if !session.ExpiresWithin(m.opts.VisibilityRefreshThreshold, now) {
		return false
	}

	if _, err := m.refresh(ctx); err != nil {
		m.logger.Warn("visibility refresh failed", zap.Error(err))
	}
	return true
}

// fallback keeps the existing token while it is unexpired, unless the refresh proved the
// session is gone.
func (m *TokenLifecycleManager) fallback(session *domain.Session, refreshErr error) string {
	if domain.IsAuthoritative(refreshErr) {
		return ""
	}
	if session.Expired(m.now()) {
		return ""
	}
	m.logger.Warn("refresh failed; using existing access token",
		zap.Time("expires_at", session.ExpiresAt),
		zap.Error(refreshErr),
	)
	return session.AccessToken
}

func (m *TokenLifecycleManager) refresh(ctx context.Context) (*domain.Session, error) {
	// Joined callers share the refresh, so it must not end with the caller that started it.
	refreshCtx := context.WithoutCancel(ctx)

	ch := m.refreshGroup.DoChan("refresh", func() (any, error) {
		started := m.now()
		session, err := m.provider.RefreshSession(refreshCtx)
		if m.metrics != nil {
			m.metrics.ObserveRefreshDuration(m.now().Sub(started))
		}
		if err == nil && !session.Valid() {
			err = domain.NewAuthError(domain.ErrorKindAuthoritative, "refresh", ErrNoSession)
		}
		m.observe(err)
		if err != nil {
			if domain.IsAuthoritative(err) && m.onSessionLost != nil {
				m.onSessionLost(refreshCtx, err)
			}
			return nil, err
		}
		return session, nil
	})

	var res singleflight.Result
	select {
	case res = <-ch:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	if res.Err != nil {
		return nil, res.Err
	}
	return res.Val.(*domain.Session), nil
}

func (m *TokenLifecycleManager) observe(err error) {
	outcome := refreshOutcomeSuccess
	switch {
	case err == nil:
	case domain.IsTransient(err):
		outcome = refreshOutcomeTransient
	case domain.IsAuthoritative(err):
		outcome = refreshOutcomeAuthoritative
	default:
		outcome = refreshOutcomeFailed
	}

	if err != nil {
		m.logger.Info("access token refresh failed", zap.String("outcome", outcome), zap.Error(err))
	} else {
		m.logger.Debug("access token refreshed")
	}
	if m.metrics != nil {
		m.metrics.IncRefresh(outcome)
	}
}
