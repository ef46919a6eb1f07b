package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Anas43xq/EmployeeManagementSystem-sub000/internal/core/domain"
	"github.com/Anas43xq/EmployeeManagementSystem-sub000/internal/core/port"
	"github.com/Anas43xq/EmployeeManagementSystem-sub000/internal/repository"
)

// Local store layout. Everything the session core persists lives under these two prefixes.
const (
	AuthNamespace     = "auth:"
	ProviderNamespace = "idp:"

	keySessionHealth     = AuthNamespace + "session_health"
	keyLastActivity      = AuthNamespace + "last_activity"
	keyLocalSessionToken = AuthNamespace + "local_session_token"
)

const (
	defaultFailureThreshold = 3
	defaultRecoveryCooldown = 5 * time.Second
	defaultIdleThreshold    = 8 * time.Minute
)

// SessionHealthOptions configures lockout and idle thresholds.
type SessionHealthOptions struct {
	FailureThreshold int
	RecoveryCooldown time.Duration
	IdleThreshold    time.Duration
}

// SessionHealthStore persists the sign-in failure counter and the last activity instant.
type SessionHealthStore struct {
	store  port.KeyValueStore
	opts   SessionHealthOptions
	logger *zap.Logger
	now    func() time.Time
	mu     sync.Mutex
}

// NewSessionHealthStore constructs the store over the local key-value store.
func NewSessionHealthStore(store port.KeyValueStore, opts SessionHealthOptions) *SessionHealthStore {
	if opts.FailureThreshold <= 0 {
		opts.FailureThreshold = defaultFailureThreshold
	}
	if opts.RecoveryCooldown <= 0 {
		opts.RecoveryCooldown = defaultRecoveryCooldown
	}
	if opts.IdleThreshold <= 0 {
		opts.IdleThreshold = defaultIdleThreshold
	}
	return &SessionHealthStore{
		store:  store,
		opts:   opts,
		logger: zap.NewNop(),
		now:    time.Now,
	}
}

// WithLogger attaches a structured logger.
func (s *SessionHealthStore) WithLogger(logger *zap.Logger) *SessionHealthStore {
	if logger != nil {
		s.logger = logger
	}
	return s
}

// WithNow overrides the clock, primarily for deterministic testing.
func (s *SessionHealthStore) WithNow(now func() time.Time) *SessionHealthStore {
	if now != nil {
		s.now = now
	}
	return s
}

// Health returns the persisted record. A missing or unreadable record is reported as zero.
func (s *SessionHealthStore) Health(ctx context.Context) (domain.SessionHealth, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load(ctx)
}

// RecordFailure counts a failed sign-in. It reports needsRecovery once the failure threshold is
// reached and the recovery cooldown has elapsed. The counter is only reset by RecordSuccess or
// RecoverAndClear, so every later failure keeps reporting true.
func (s *SessionHealthStore) RecordFailure(ctx context.Context) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	health, err := s.load(ctx)
	if err != nil {
		return false, err
	}

	now := s.now().UTC()
	health.FailedAttempts++
	health.LastAttempt = now

	if err := s.save(ctx, health); err != nil {
		return false, err
	}

	needsRecovery := health.FailedAttempts >= s.opts.FailureThreshold &&
		now.Sub(health.LastRecovery) > s.opts.RecoveryCooldown

	if needsRecovery {
		s.logger.Warn("sign-in failure threshold reached",
			zap.Int("failed_attempts", health.FailedAttempts),
			zap.Time("last_recovery", health.LastRecovery),
		)
	}

	return needsRecovery, nil
}

// RecordSuccess clears the entire health record.
func (s *SessionHealthStore) RecordSuccess(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.store.Delete(ctx, keySessionHealth); err != nil {
		return fmt.Errorf("clear session health: %w", err)
	}
	return nil
}

// RecoverAndClear is the hard reset path: it purges every locally persisted authentication
// artifact and leaves a fresh health record stamped with the recovery time.
func (s *SessionHealthStore) RecoverAndClear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var purgeErr error
	for _, prefix := range []string{AuthNamespace, ProviderNamespace} {
		removed, err := s.store.DeletePrefix(ctx, prefix)
		if err != nil {
			purgeErr = errors.Join(purgeErr, fmt.Errorf("purge %s: %w", prefix, err))
			continue
		}
		s.logger.Info("purged local auth state", zap.String("prefix", prefix), zap.Int("keys", removed))
	}

	health := domain.SessionHealth{LastRecovery: s.now().UTC()}
	if err := s.save(ctx, health); err != nil {
		return errors.Join(purgeErr, err)
	}

	return purgeErr
}

// UpdateLastActivity stamps the last user interaction.
func (s *SessionHealthStore) UpdateLastActivity(ctx context.Context) error {
	stamp := s.now().UTC().Format(time.RFC3339Nano)
	if err := s.store.Set(ctx, keyLastActivity, stamp); err != nil {
		return fmt.Errorf("persist last activity: %w", err)
	}
	return nil
}

// GetLastActivity returns the last recorded interaction and whether one exists.
func (s *SessionHealthStore) GetLastActivity(ctx context.Context) (time.Time, bool, error) {
	raw, err := s.store.Get(ctx, keyLastActivity)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return time.Time{}, false, nil
		}
		return time.Time{}, false, fmt.Errorf("load last activity: %w", err)
	}

	at, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		s.logger.Warn("discarding unreadable last activity", zap.String("value", raw), zap.Error(err))
		return time.Time{}, false, nil
	}
	return at, true, nil
}

// IsInactivityExceeded reports whether the idle threshold elapsed since the last interaction.
// With no recorded interaction there is nothing to compare against and it reports false.
func (s *SessionHealthStore) IsInactivityExceeded(ctx context.Context) (bool, error) {
	last, ok, err := s.GetLastActivity(ctx)
	if err != nil || !ok {
		return false, err
	}
	return s.now().Sub(last) >= s.opts.IdleThreshold, nil
}

// IdleThreshold returns the configured idle threshold.
func (s *SessionHealthStore) IdleThreshold() time.Duration {
	return s.opts.IdleThreshold
}

func (s *SessionHealthStore) load(ctx context.Context) (domain.SessionHealth, error) {
	raw, err := s.store.Get(ctx, keySessionHealth)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return domain.SessionHealth{}, nil
		}
		return domain.SessionHealth{}, fmt.Errorf("load session health: %w", err)
	}

	var health domain.SessionHealth
	if err := json.Unmarshal([]byte(raw), &health); err != nil {
		s.logger.Warn("discarding corrupt session health record", zap.Error(err))
		return domain.SessionHealth{}, nil
	}
	if health.FailedAttempts < 0 {
		health.FailedAttempts = 0
	}
	return health, nil
}

func (s *SessionHealthStore) save(ctx context.Context, health domain.SessionHealth) error {
	payload, err := json.Marshal(health)
	if err != nil {
		return fmt.Errorf("encode session health: %w", err)
	}
	if err := s.store.Set(ctx, keySessionHealth, string(payload)); err != nil {
		return fmt.Errorf("persist session health: %w", err)
	}
	return nil
}
