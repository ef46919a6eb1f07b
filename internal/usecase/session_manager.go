package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/Anas43xq/EmployeeManagementSystem-sub000/internal/core/domain"
	"github.com/Anas43xq/EmployeeManagementSystem-sub000/internal/core/port"
	"github.com/Anas43xq/EmployeeManagementSystem-sub000/internal/infra/logger"
	"github.com/Anas43xq/EmployeeManagementSystem-sub000/internal/repository"
)

const (
	defaultBootstrapTimeout = 8 * time.Second
	tracerName              = "github.com/Anas43xq/EmployeeManagementSystem-sub000/internal/usecase"

	signInOutcomeSuccess     = "success"
	signInOutcomeInvalid     = "invalid_credentials"
	signInOutcomeLockedOut   = "locked_out"
	signInOutcomeBanned      = "banned"
	signInOutcomeTransient   = "transient"
	signInOutcomeUnavailable = "unavailable"
)

var errCorruptSession = errors.New("local session state is unreadable")

// SessionManagerDeps lists the collaborators of the session orchestrator.
type SessionManagerDeps struct {
	Provider    port.IdentityProvider
	Tokens      *TokenLifecycleManager
	Users       *UserRecordCache
	Health      *SessionHealthStore
	Cache       *RequestCache
	Store       port.KeyValueStore
	TokenWriter port.SessionTokenWriter
	Profiles    port.ProfileRepository
	Subscriber  port.ProfileSubscriber
	Events      port.EventPublisher
}

// SessionManagerOptions configures bootstrap and the per-session watchers.
type SessionManagerOptions struct {
	BootstrapTimeout time.Duration
	Revocation       RevocationWatcherOptions
	Inactivity       InactivityMonitorOptions
}

// SessionManager owns the local client's view of its identity. Every sign-in, bootstrap and
// logout starts a new lifecycle epoch; results that arrive for an older epoch are discarded.
type SessionManager struct {
	provider    port.IdentityProvider
	tokens      *TokenLifecycleManager
	users       *UserRecordCache
	health      *SessionHealthStore
	cache       *RequestCache
	store       port.KeyValueStore
	tokenWriter port.SessionTokenWriter
	profiles    port.ProfileRepository
	subscriber  port.ProfileSubscriber
	events      port.EventPublisher

	opts       SessionManagerOptions
	logger     *zap.Logger
	now        func() time.Time
	metrics    SessionMetrics
	tracer     trace.Tracer
	supervisor *Supervisor

	mu         sync.RWMutex
	identity   *domain.Identity
	loading    bool
	active     bool
	epoch      uint64
	inactivity *InactivityMonitor

	listenerMu   sync.Mutex
	listeners    map[uint64]func(*domain.Identity)
	nextListener uint64

	pending sync.WaitGroup
}

// NewSessionManager wires the orchestrator. It registers itself as the token manager's
// session-lost callback.
func NewSessionManager(deps SessionManagerDeps, opts SessionManagerOptions) *SessionManager {
	if opts.BootstrapTimeout <= 0 {
		opts.BootstrapTimeout = defaultBootstrapTimeout
	}

	m := &SessionManager{
		provider:    deps.Provider,
		tokens:      deps.Tokens,
		users:       deps.Users,
		health:      deps.Health,
		cache:       deps.Cache,
		store:       deps.Store,
		tokenWriter: deps.TokenWriter,
		profiles:    deps.Profiles,
		subscriber:  deps.Subscriber,
		events:      deps.Events,
		opts:        opts,
		logger:      zap.NewNop(),
		now:         time.Now,
		tracer:      otel.Tracer(tracerName),
		supervisor:  NewSupervisor(nil),
		loading:     true,
		listeners:   make(map[uint64]func(*domain.Identity)),
	}

	if m.tokens != nil {
		m.tokens.OnSessionLost(func(ctx context.Context, err error) {
			m.logger.Warn("refresh token rejected; clearing session", zap.Error(err))
			if logoutErr := m.ForceLogout(ctx, domain.LogoutReasonSessionLost, false); logoutErr != nil {
				m.logger.Error("clear lost session", zap.Error(logoutErr))
			}
		})
	}

	return m
}

// WithLogger attaches a structured logger.
func (m *SessionManager) WithLogger(logger *zap.Logger) *SessionManager {
	if logger != nil {
		m.logger = logger
		m.supervisor = NewSupervisor(logger)
	}
	return m
}

// WithNow overrides the clock, primarily for deterministic testing.
func (m *SessionManager) WithNow(now func() time.Time) *SessionManager {
	if now != nil {
		m.now = now
	}
	return m
}

// WithMetrics wires telemetry observers for lifecycle transitions.
func (m *SessionManager) WithMetrics(metrics SessionMetrics) *SessionManager {
	if metrics != nil {
		m.metrics = metrics
	}
	return m
}

// WithTracerProvider replaces the global tracer provider.
func (m *SessionManager) WithTracerProvider(provider trace.TracerProvider) *SessionManager {
	if provider != nil {
		m.tracer = provider.Tracer(tracerName)
	}
	return m
}

// Bootstrap restores an existing session at startup. When the provider does not answer within
// the bootstrap timeout the client is treated as logged out.
func (m *SessionManager) Bootstrap(ctx context.Context) error {
	ctx, span := m.tracer.Start(ctx, "session.bootstrap")
	defer span.End()

	epoch, _ := m.begin()

	bctx, cancel := context.WithTimeout(ctx, m.opts.BootstrapTimeout)
	defer cancel()

	type restored struct {
		identity *domain.Identity
		err      error
	}
	done := make(chan restored, 1)
	go func() {
		identity, err := m.restore(bctx)
		done <- restored{identity: identity, err: err}
	}()

	var result restored
	select {
	case result = <-done:
	case <-bctx.Done():
		result = restored{err: bctx.Err()}
	}

	if !m.isCurrent(epoch) {
		return ErrSuperseded
	}

	switch {
	case result.err == nil && result.identity == nil:
		m.logger.Info("no existing session")
		m.finish(epoch)
		return nil

	case result.err == nil:
		if err := m.activate(ctx, epoch, *result.identity); err != nil {
			return err
		}
		span.SetAttributes(attribute.String("identity.id", result.identity.IdentityID))
		m.logger.Info("session restored",
			zap.String("identity_id", result.identity.IdentityID),
			zap.String("role", string(result.identity.Role)),
			zap.Bool("degraded", result.identity.Degraded),
		)
		return nil

	case errors.Is(result.err, context.DeadlineExceeded):
		m.logger.Warn("session bootstrap timed out; assuming logged out", zap.Duration("timeout", m.opts.BootstrapTimeout))
		m.finish(epoch)
		return nil

	case errors.Is(result.err, errCorruptSession):
		m.logger.Warn("local session state corrupt; purging", zap.Error(result.err))
		m.finish(epoch)
		return m.health.RecoverAndClear(ctx)

	case errors.Is(result.err, ErrBanned):
		m.logger.Warn("restored identity is banned")
		m.purgeLocal(ctx)
		m.finish(epoch)
		m.observeForcedLogout(domain.LogoutReasonBanned)
		return ErrBanned

	case domain.IsAuthoritative(result.err):
		m.logger.Info("stored session no longer valid", zap.Error(result.err))
		m.purgeLocal(ctx)
		m.finish(epoch)
		return nil

	default:
		// Transient and unknown failures leave persisted state intact for the next attempt.
		span.RecordError(result.err)
		span.SetStatus(codes.Error, "bootstrap failed")
		m.logger.Warn("session bootstrap failed", zap.Error(result.err))
		m.finish(epoch)
		return result.err
	}
}

func (m *SessionManager) restore(ctx context.Context) (*domain.Identity, error) {
	session, err := m.tokens.CurrentSession(ctx)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, nil
	}

	token, err := m.tokens.GetValidAccessToken(ctx)
	if err != nil {
		return nil, err
	}
	if token == "" {
		return nil, domain.NewAuthError(domain.ErrorKindAuthoritative, "bootstrap", ErrNoSession)
	}

	claims, err := m.provider.Claims(token)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errCorruptSession, err)
	}

	identity, err := m.users.Resolve(ctx, *claims)
	if err != nil {
		return nil, err
	}
	return &identity, nil
}

// SignIn authenticates with the provider, claims the server-side session token and resolves
// the identity. Repeated failures surface ErrLockedOut instead of ErrInvalidCredentials.
func (m *SessionManager) SignIn(ctx context.Context, email, password string) (domain.Identity, error) {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return domain.Identity{}, ErrCredentialsRequired
	}

	ctx, span := m.tracer.Start(ctx, "session.sign_in")
	defer span.End()

	log := m.logger.With(logger.Email("email", email))
	epoch, previous := m.begin()

	session, err := m.provider.SignIn(ctx, email, password)
	if err != nil {
		m.abandon(ctx, previous, epoch-1)
		m.finish(epoch)
		err = m.signInFailure(ctx, err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "sign-in failed")
		log.Info("sign-in failed", zap.Error(err))
		return domain.Identity{}, err
	}
	if !m.isCurrent(epoch) {
		return domain.Identity{}, ErrSuperseded
	}

	claims, err := m.provider.Claims(session.AccessToken)
	if err != nil {
		m.abandon(ctx, previous, epoch-1)
		m.finish(epoch)
		m.observeSignIn(signInOutcomeUnavailable)
		return domain.Identity{}, fmt.Errorf("read access token claims: %w", err)
	}

	localToken := uuid.NewString()
	if err := m.store.Set(ctx, keyLocalSessionToken, localToken); err != nil {
		log.Warn("persist local session token", zap.Error(err))
	}
	if m.tokenWriter != nil {
		if err := m.tokenWriter.SetSessionToken(ctx, claims.Subject, &localToken); err != nil {
			log.Warn("claim server session token; supersession detection disabled", zap.Error(err))
		}
	}

	identity, err := m.users.Resolve(ctx, *claims)
	if err != nil {
		m.purgeLocal(ctx)
		m.finish(epoch)
		if errors.Is(err, ErrBanned) {
			m.observeSignIn(signInOutcomeBanned)
			log.Warn("banned identity attempted to sign in", zap.String("identity_id", claims.Subject))
			return domain.Identity{}, ErrBanned
		}
		if signOutErr := m.provider.SignOut(ctx); signOutErr != nil {
			log.Warn("provider sign-out after failed resolution", zap.Error(signOutErr))
		}
		m.observeSignIn(signInOutcomeUnavailable)
		return domain.Identity{}, fmt.Errorf("resolve identity: %w", err)
	}

	if !m.isCurrent(epoch) {
		return domain.Identity{}, ErrSuperseded
	}

	m.cache.Invalidate()
	if err := m.health.UpdateLastActivity(ctx); err != nil {
		log.Warn("stamp activity at sign-in", zap.Error(err))
	}

	if err := m.activate(ctx, epoch, identity); err != nil {
		return domain.Identity{}, err
	}

	m.observeSignIn(signInOutcomeSuccess)
	m.publish(ctx, domain.SessionLifecycleSignedIn, identity.IdentityID, "", epoch)
	span.SetAttributes(attribute.String("identity.id", identity.IdentityID))
	log.Info("signed in",
		zap.String("identity_id", identity.IdentityID),
		zap.String("role", string(identity.Role)),
		logger.Secret("local_session_token", localToken),
	)

	return identity, nil
}

func (m *SessionManager) signInFailure(ctx context.Context, err error) error {
	if domain.IsTransient(err) {
		m.observeSignIn(signInOutcomeTransient)
		return err
	}

	needsRecovery, healthErr := m.health.RecordFailure(ctx)
	if healthErr != nil {
		m.logger.Warn("record sign-in failure", zap.Error(healthErr))
	}
	if needsRecovery {
		m.observeSignIn(signInOutcomeLockedOut)
		return fmt.Errorf("%w: %w", ErrLockedOut, err)
	}

	m.observeSignIn(signInOutcomeInvalid)
	if domain.KindOf(err) == domain.ErrorKindCredentials {
		return fmt.Errorf("%w: %w", ErrInvalidCredentials, err)
	}
	return err
}

// SignOut ends the session locally and remotely and releases the server-side session token
// when this client still holds it.
func (m *SessionManager) SignOut(ctx context.Context) error {
	ctx, span := m.tracer.Start(ctx, "session.sign_out")
	defer span.End()

	identity, epoch := m.end()
	m.supervisor.Stop()

	if identity != nil {
		m.releaseServerToken(ctx, identity.IdentityID)
	}
	if err := m.provider.SignOut(ctx); err != nil {
		m.logger.Warn("provider sign-out failed", zap.Error(err))
	}

	err := m.purgeLocal(ctx)
	m.notify()

	if identity != nil {
		m.publish(ctx, domain.SessionLifecycleSignedOut, identity.IdentityID, domain.LogoutReasonSignOut, epoch)
		m.logger.Info("signed out", zap.String("identity_id", identity.IdentityID))
	}
	return err
}

// ResetSession is the manual recovery path for stuck states: it drops every local auth
// artifact without contacting the provider.
func (m *SessionManager) ResetSession(ctx context.Context) error {
	ctx, span := m.tracer.Start(ctx, "session.reset")
	defer span.End()

	identity, epoch := m.end()
	m.supervisor.Stop()

	err := m.health.RecoverAndClear(ctx)
	m.users.Clear()
	m.cache.Invalidate()
	m.notify()

	identityID := ""
	if identity != nil {
		identityID = identity.IdentityID
	}
	m.publish(ctx, domain.SessionLifecycleForcedLogout, identityID, domain.LogoutReasonReset, epoch)
	m.logger.Info("session reset", zap.String("identity_id", identityID))

	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("reset session: %w", err)
	}
	return nil
}

// ForceLogout ends the current lifecycle. A second call for the same lifecycle is a no-op.
// remote controls whether the provider's sign-out is called.
func (m *SessionManager) ForceLogout(ctx context.Context, reason domain.LogoutReason, remote bool) error {
	m.mu.RLock()
	epoch := m.epoch
	m.mu.RUnlock()
	return m.forceLogout(ctx, epoch, reason, remote)
}

func (m *SessionManager) forceLogout(ctx context.Context, epoch uint64, reason domain.LogoutReason, remote bool) error {
	m.mu.Lock()
	if !m.active || m.epoch != epoch {
		m.mu.Unlock()
		return nil
	}
	identity := m.identity
	m.identity = nil
	m.active = false
	m.loading = false
	m.inactivity = nil
	m.epoch++
	m.mu.Unlock()

	ctx, span := m.tracer.Start(ctx, "session.force_logout", trace.WithAttributes(
		attribute.String("session.reason", string(reason)),
		attribute.Bool("session.remote", remote),
	))
	defer span.End()

	m.supervisor.Stop()

	if remote {
		if identity != nil && reason != domain.LogoutReasonBanned {
			m.releaseServerToken(ctx, identity.IdentityID)
		}
		if err := m.provider.SignOut(ctx); err != nil {
			m.logger.Warn("provider sign-out during forced logout failed", zap.Error(err))
		}
	}

	err := m.purgeLocal(ctx)
	m.notify()
	m.observeForcedLogout(reason)

	identityID := ""
	if identity != nil {
		identityID = identity.IdentityID
	}
	m.publish(ctx, domain.SessionLifecycleForcedLogout, identityID, reason, epoch)
	m.logger.Info("forced logout",
		zap.String("identity_id", identityID),
		zap.String("reason", string(reason)),
		zap.Bool("remote", remote),
	)

	return err
}

// MarkDeactivated keeps the session but flags the identity inactive.
func (m *SessionManager) MarkDeactivated(ctx context.Context, identityID string) {
	m.mu.RLock()
	epoch := m.epoch
	m.mu.RUnlock()
	m.markDeactivated(epoch, identityID)
}

func (m *SessionManager) markDeactivated(epoch uint64, identityID string) {
	m.mu.Lock()
	if m.epoch != epoch || m.identity == nil || m.identity.IdentityID != identityID || !m.identity.IsActive {
		m.mu.Unlock()
		return
	}
	updated := *m.identity
	updated.IsActive = false
	m.identity = &updated
	m.mu.Unlock()

	m.users.MarkInactive(identityID)
	m.cache.InvalidateTable(ProfilesTable)
	m.notify()
	m.logger.Info("identity deactivated; session kept", zap.String("identity_id", identityID))
}

// CurrentIdentity returns a copy of the current identity, or nil when logged out.
func (m *SessionManager) CurrentIdentity() *domain.Identity {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return copyIdentity(m.identity)
}

// Loading reports whether a bootstrap or sign-in is in flight.
func (m *SessionManager) Loading() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.loading
}

// OnChange registers fn to be called with the new identity after every transition.
func (m *SessionManager) OnChange(fn func(*domain.Identity)) (unsubscribe func()) {
	m.listenerMu.Lock()
	id := m.nextListener
	m.nextListener++
	m.listeners[id] = fn
	m.listenerMu.Unlock()

	return func() {
		m.listenerMu.Lock()
		delete(m.listeners, id)
		m.listenerMu.Unlock()
	}
}

// AccessToken returns a usable access token. fresh forces a refresh first.
func (m *SessionManager) AccessToken(ctx context.Context, fresh bool) (string, error) {
	if !m.isActive() {
		return "", ErrNoSession
	}

	var (
		token string
		err   error
	)
	if fresh {
		token, err = m.tokens.GetFreshAccessToken(ctx)
	} else {
		token, err = m.tokens.GetValidAccessToken(ctx)
	}
	if err != nil {
		return "", err
	}
	if token == "" {
		return "", ErrNoSession
	}
	return token, nil
}

// OnVisible forwards a visibility regain to the token refresher and the inactivity check.
func (m *SessionManager) OnVisible(ctx context.Context) {
	if !m.isActive() {
		return
	}
	m.tokens.OnVisible(ctx)
	if monitor := m.currentInactivity(); monitor != nil {
		monitor.OnVisible(ctx)
	}
}

// RecordActivity stamps user activity for the current session.
func (m *SessionManager) RecordActivity(ctx context.Context, eventType string) bool {
	monitor := m.currentInactivity()
	if monitor == nil {
		return false
	}
	return monitor.RecordActivity(ctx, eventType)
}

// LocalSessionToken returns the token this client wrote at sign-in, or "" when absent.
func (m *SessionManager) LocalSessionToken(ctx context.Context) (string, error) {
	token, err := m.store.Get(ctx, keyLocalSessionToken)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return "", nil
		}
		return "", err
	}
	return token, nil
}

// Close stops the watchers and waits for in-flight forced logouts.
func (m *SessionManager) Close() {
	m.supervisor.Stop()
	m.pending.Wait()
}

// begin opens a new lifecycle in the loading state, tearing down any active one. It returns
// the identity of the lifecycle it replaced.
func (m *SessionManager) begin() (uint64, *domain.Identity) {
	m.mu.Lock()
	wasActive := m.active
	var previous *domain.Identity
	if wasActive {
		previous = m.identity
	}
	m.epoch++
	epoch := m.epoch
	m.loading = true
	m.active = false
	m.identity = nil
	m.inactivity = nil
	m.mu.Unlock()

	if wasActive {
		m.supervisor.Stop()
	}
	m.notify()
	return epoch, previous
}

// abandon ends the session a failed sign-in replaced, so no credentials outlive the identity.
func (m *SessionManager) abandon(ctx context.Context, previous *domain.Identity, epoch uint64) {
	if previous == nil {
		return
	}
	if m.metrics != nil {
		m.metrics.SetSignedIn(false)
	}
	m.releaseServerToken(ctx, previous.IdentityID)
	if err := m.provider.SignOut(ctx); err != nil {
		m.logger.Warn("provider sign-out of replaced session failed", zap.Error(err))
	}
	_ = m.purgeLocal(ctx)
	m.publish(ctx, domain.SessionLifecycleSignedOut, previous.IdentityID, domain.LogoutReasonSignOut, epoch)
	m.logger.Info("replaced session ended after failed sign-in", zap.String("identity_id", previous.IdentityID))
}

// end closes the current lifecycle and returns the identity it held.
func (m *SessionManager) end() (*domain.Identity, uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	identity := m.identity
	epoch := m.epoch
	m.identity = nil
	m.active = false
	m.loading = false
	m.inactivity = nil
	m.epoch++
	if m.metrics != nil {
		m.metrics.SetSignedIn(false)
	}
	return identity, epoch
}

// finish leaves epoch logged out.
func (m *SessionManager) finish(epoch uint64) {
	m.mu.Lock()
	if m.epoch != epoch {
		m.mu.Unlock()
		return
	}
	m.loading = false
	m.identity = nil
	m.active = false
	m.mu.Unlock()
	m.notify()
}

func (m *SessionManager) activate(ctx context.Context, epoch uint64, identity domain.Identity) error {
	m.mu.Lock()
	if m.epoch != epoch {
		m.mu.Unlock()
		return ErrSuperseded
	}
	m.identity = copyIdentity(&identity)
	m.loading = false
	m.active = true
	m.mu.Unlock()

	if err := m.supervisor.Start(context.WithoutCancel(ctx), m.watchers(epoch, identity.IdentityID)...); err != nil {
		m.logger.Error("start session watchers", zap.Error(err))
	}
	// A logout may have raced the watcher start.
	if !m.isCurrent(epoch) {
		m.supervisor.Stop()
	}

	if m.metrics != nil {
		m.metrics.SetSignedIn(true)
	}
	m.notify()
	return nil
}

func (m *SessionManager) watchers(epoch uint64, identityID string) []Watcher {
	handle := lifecycleHandle{m: m, epoch: epoch}

	revocation := NewRevocationWatcher(identityID, m.subscriber, m.profiles, m.LocalSessionToken, handle, m.opts.Revocation).
		WithLogger(m.logger).
		WithNow(m.now).
		WithMetrics(m.metrics)

	inactivity := NewInactivityMonitor(m.health, func(ctx context.Context) {
		_ = handle.ForceLogout(ctx, domain.LogoutReasonInactivity, true)
	}, m.opts.Inactivity).WithLogger(m.logger)

	m.mu.Lock()
	if m.epoch == epoch {
		m.inactivity = inactivity
	}
	m.mu.Unlock()

	return []Watcher{revocation, inactivity}
}

// purgeLocal drops the artifacts of one session. The health record survives so failure
// accounting is only reset by success or explicit recovery.
func (m *SessionManager) purgeLocal(ctx context.Context) error {
	var errs error
	if err := m.store.Delete(ctx, keyLocalSessionToken, keyLastActivity); err != nil {
		errs = errors.Join(errs, fmt.Errorf("delete local session keys: %w", err))
	}
	if _, err := m.store.DeletePrefix(ctx, ProviderNamespace); err != nil {
		errs = errors.Join(errs, fmt.Errorf("purge provider state: %w", err))
	}
	m.users.Clear()
	m.cache.Invalidate()

	if errs != nil {
		m.logger.Error("purge local session state", zap.Error(errs))
	}
	return errs
}

// releaseServerToken clears the server-side session token unless another login owns it.
func (m *SessionManager) releaseServerToken(ctx context.Context, identityID string) {
	if m.tokenWriter == nil || m.profiles == nil {
		return
	}

	local, err := m.LocalSessionToken(ctx)
	if err != nil || local == "" {
		return
	}

	profile, err := m.profiles.GetProfile(ctx, identityID)
	if err != nil {
		m.logger.Warn("read profile before releasing session token", zap.Error(err))
		return
	}
	if profile.SessionToken == nil || *profile.SessionToken != local {
		return
	}

	if err := m.tokenWriter.SetSessionToken(ctx, identityID, nil); err != nil {
		m.logger.Warn("release server session token", zap.Error(err))
	}
}

func (m *SessionManager) publish(ctx context.Context, kind domain.SessionLifecycleKind, identityID string, reason domain.LogoutReason, epoch uint64) {
	if m.events == nil {
		return
	}
	event := domain.SessionLifecycleEvent{
		EventID:    uuid.NewString(),
		Kind:       kind,
		IdentityID: identityID,
		Reason:     reason,
		At:         m.now().UTC(),
		Metadata: map[string]any{
			"epoch": epoch,
		},
	}
	if err := m.events.PublishSessionLifecycle(ctx, event); err != nil {
		m.logger.Warn("publish session lifecycle event", zap.String("kind", string(kind)), zap.Error(err))
	}
}

func (m *SessionManager) notify() {
	identity := m.CurrentIdentity()

	m.listenerMu.Lock()
	listeners := make([]func(*domain.Identity), 0, len(m.listeners))
	for _, fn := range m.listeners {
		listeners = append(listeners, fn)
	}
	m.listenerMu.Unlock()

	for _, fn := range listeners {
		fn(copyIdentity(identity))
	}
}

func (m *SessionManager) dispatch(ctx context.Context, fn func(ctx context.Context)) {
	m.pending.Add(1)
	go func() {
		defer m.pending.Done()
		fn(context.WithoutCancel(ctx))
	}()
}

func (m *SessionManager) isCurrent(epoch uint64) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.epoch == epoch
}

func (m *SessionManager) isActive() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.active
}

func (m *SessionManager) currentInactivity() *InactivityMonitor {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if !m.active {
		return nil
	}
	return m.inactivity
}

func (m *SessionManager) observeSignIn(outcome string) {
	if m.metrics != nil {
		m.metrics.IncSignIn(outcome)
	}
}

func (m *SessionManager) observeForcedLogout(reason domain.LogoutReason) {
	if m.metrics != nil {
		m.metrics.IncForcedLogout(reason)
		m.metrics.SetSignedIn(false)
	}
}

// lifecycleHandle binds watcher callbacks to the lifecycle that started them. Forced logouts
// run on their own goroutine because they stop the watcher that reported them.
type lifecycleHandle struct {
	m     *SessionManager
	epoch uint64
}

func (h lifecycleHandle) ForceLogout(ctx context.Context, reason domain.LogoutReason, remote bool) error {
	h.m.dispatch(ctx, func(ctx context.Context) {
		if err := h.m.forceLogout(ctx, h.epoch, reason, remote); err != nil {
			h.m.logger.Error("forced logout", zap.String("reason", string(reason)), zap.Error(err))
		}
	})
	return nil
}

func (h lifecycleHandle) MarkDeactivated(_ context.Context, identityID string) {
	h.m.markDeactivated(h.epoch, identityID)
}

func copyIdentity(identity *domain.Identity) *domain.Identity {
	if identity == nil {
		return nil
	}
	copied := *identity
	if identity.LinkedRecordID != nil {
		linked := *identity.LinkedRecordID
		copied.LinkedRecordID = &linked
	}
	return &copied
}
