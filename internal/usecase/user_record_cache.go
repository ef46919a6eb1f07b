package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Anas43xq/EmployeeManagementSystem-sub000/internal/core/domain"
	"github.com/Anas43xq/EmployeeManagementSystem-sub000/internal/core/port"
	"github.com/Anas43xq/EmployeeManagementSystem-sub000/internal/infra/logger"
	"github.com/Anas43xq/EmployeeManagementSystem-sub000/internal/repository"
)

const (
	defaultUserRecordTTL   = 60 * time.Second
	defaultCooperativeWait = 500 * time.Millisecond
)

// UserRecordCacheOptions configures the identity cache.
type UserRecordCacheOptions struct {
	TTL             time.Duration
	CooperativeWait time.Duration
	Policy          domain.DegradationPolicy
}

// healthRecorder is the part of SessionHealthStore the cache needs.
type healthRecorder interface {
	RecordSuccess(ctx context.Context) error
}

// UserRecordCache resolves and caches the authenticated identity's profile. Concurrent
// resolutions of the same identity cooperate through a single in-progress marker: the second
// caller waits once and re-checks the cache instead of sharing the first caller's fetch.
type UserRecordCache struct {
	profiles port.ProfileRepository
	provider port.IdentityProvider
	health   healthRecorder
	opts     UserRecordCacheOptions
	logger   *zap.Logger
	now      func() time.Time

	mu         sync.Mutex
	records    map[string]domain.UserRecord
	inProgress string
	generation uint64
}

// NewUserRecordCache constructs the cache.
func NewUserRecordCache(profiles port.ProfileRepository, provider port.IdentityProvider, health healthRecorder, opts UserRecordCacheOptions) *UserRecordCache {
	if opts.TTL <= 0 {
		opts.TTL = defaultUserRecordTTL
	}
	if opts.CooperativeWait <= 0 {
		opts.CooperativeWait = defaultCooperativeWait
	}
	return &UserRecordCache{
		profiles: profiles,
		provider: provider,
		health:   health,
		opts:     opts,
		logger:   zap.NewNop(),
		now:      time.Now,
		records:  make(map[string]domain.UserRecord),
	}
}

// WithLogger attaches a structured logger.
func (c *UserRecordCache) WithLogger(logger *zap.Logger) *UserRecordCache {
	if logger != nil {
		c.logger = logger
	}
	return c
}

// WithNow overrides the clock, primarily for deterministic testing.
func (c *UserRecordCache) WithNow(now func() time.Time) *UserRecordCache {
	if now != nil {
		c.now = now
	}
	return c
}

// Resolve returns the identity's record, fetching the profile when the cached one is stale.
// A banned profile terminates the provider session and returns ErrBanned.
func (c *UserRecordCache) Resolve(ctx context.Context, claims domain.Claims) (domain.Identity, error) {
	identityID := strings.TrimSpace(claims.Subject)
	if identityID == "" {
		return domain.Identity{}, ErrIdentityRequired
	}

	if record, ok := c.Get(identityID); ok {
		c.recordSuccess(ctx)
		return domain.Identity{UserRecord: record}, nil
	}

	if !c.claim(identityID) {
		if err := c.wait(ctx); err != nil {
			return domain.Identity{}, err
		}
		if record, ok := c.Get(identityID); ok {
			c.recordSuccess(ctx)
			return domain.Identity{UserRecord: record}, nil
		}
		c.claim(identityID)
	}
	defer c.release(identityID)

	return c.fetch(ctx, identityID, claims)
}

// Get returns the cached record while it is within the TTL.
func (c *UserRecordCache) Get(identityID string) (domain.UserRecord, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	record, ok := c.records[identityID]
	if !ok || !record.FreshAt(c.now(), c.opts.TTL) {
		return domain.UserRecord{}, false
	}
	return record, true
}

// MarkInactive flips the cached record's active flag without evicting it.
func (c *UserRecordCache) MarkInactive(identityID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	record, ok := c.records[identityID]
	if !ok {
		return false
	}
	record.IsActive = false
	c.records[identityID] = record
	return true
}

// Clear drops every cached record. Reads still in flight are not stored when they complete.
func (c *UserRecordCache) Clear() {
	c.mu.Lock()
	c.records = make(map[string]domain.UserRecord)
	c.inProgress = ""
	c.generation++
	c.mu.Unlock()
}

func (c *UserRecordCache) fetch(ctx context.Context, identityID string, claims domain.Claims) (domain.Identity, error) {
	c.mu.Lock()
	generation := c.generation
	c.mu.Unlock()

	profile, err := c.profiles.GetProfile(ctx, identityID)
	if err != nil {
		return c.degrade(ctx, identityID, claims, err)
	}

	if profile.IsBanned {
		c.logger.Warn("banned identity detected during resolution", zap.String("identity_id", identityID))
		if signOutErr := c.provider.SignOut(ctx); signOutErr != nil {
			c.logger.Warn("provider sign-out for banned identity failed", zap.Error(signOutErr))
		}
		c.Clear()
		return domain.Identity{}, ErrBanned
	}

	record := domain.RecordFromProfile(*profile, c.now())
	if record.Email == "" {
		record.Email = claims.Email
	}

	c.mu.Lock()
	cleared := c.generation != generation
	if !cleared {
		c.records[identityID] = record
	}
	c.mu.Unlock()

	if cleared {
		c.logger.Debug("cache cleared during resolution; record not stored", zap.String("identity_id", identityID))
		return domain.Identity{UserRecord: record}, nil
	}

	c.recordSuccess(ctx)

	c.logger.Debug("identity resolved",
		zap.String("identity_id", identityID),
		zap.String("role", string(record.Role)),
		zap.Bool("is_active", record.IsActive),
	)

	return domain.Identity{UserRecord: record}, nil
}

// degrade builds a minimal inactive record from the token claims when the policy allows it.
// Degraded records are not cached so the next resolution retries the profile read.
func (c *UserRecordCache) degrade(ctx context.Context, identityID string, claims domain.Claims, cause error) (domain.Identity, error) {
	// The caller gave up; that says nothing about the profile store.
	if ctxErr := ctx.Err(); ctxErr != nil {
		return domain.Identity{}, ctxErr
	}

	reason := domain.DegradationReasonProfileUnavailable
	switch {
	case errors.Is(cause, repository.ErrPermissionDenied):
		reason = domain.DegradationReasonProfileDenied
	case errors.Is(cause, repository.ErrNotFound):
		reason = domain.DegradationReasonProfileMissing
	}

	if !c.opts.Policy.AllowsFallback(reason) {
		return domain.Identity{}, fmt.Errorf("resolve profile %s: %w", identityID, cause)
	}

	c.logger.Warn("profile read failed; using token claims",
		zap.String("identity_id", identityID),
		logger.Email("email", claims.Email),
		zap.String("reason", string(reason)),
		zap.Error(cause),
	)

	return domain.Identity{
		UserRecord: domain.UserRecord{
			IdentityID: identityID,
			Email:      claims.Email,
			Role:       claims.Role,
			IsActive:   false,
			CachedAt:   c.now(),
		},
		Degraded: true,
	}, nil
}

func (c *UserRecordCache) recordSuccess(ctx context.Context) {
	if c.health == nil {
		return
	}
	if err := c.health.RecordSuccess(ctx); err != nil {
		c.logger.Warn("failed to clear session health after resolution", zap.Error(err))
	}
}

func (c *UserRecordCache) claim(identityID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.inProgress == identityID {
		return false
	}
	c.inProgress = identityID
	return true
}

func (c *UserRecordCache) release(identityID string) {
	c.mu.Lock()
	if c.inProgress == identityID {
		c.inProgress = ""
	}
	c.mu.Unlock()
}

func (c *UserRecordCache) wait(ctx context.Context) error {
	timer := time.NewTimer(c.opts.CooperativeWait)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
