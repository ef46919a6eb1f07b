package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/Anas43xq/EmployeeManagementSystem-sub000/internal/core/domain"
	"github.com/Anas43xq/EmployeeManagementSystem-sub000/internal/repository"
	"github.com/Anas43xq/EmployeeManagementSystem-sub000/internal/repository/memory"
)

type countingHealth struct {
	mu        sync.Mutex
	successes int
}

func (h *countingHealth) RecordSuccess(context.Context) error {
	h.mu.Lock()
	h.successes++
	h.mu.Unlock()
	return nil
}

func (h *countingHealth) Successes() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.successes
}

func staffClaims(id string) domain.Claims {
	return domain.Claims{Subject: id, Email: id + "@example.com", Role: domain.RoleStaff}
}

func TestUserRecordCache_ResolveCachesForTTL(t *testing.T) {
	clock := newFakeClock()
	profiles := newFakeProfiles(domain.Profile{
		IdentityID:     "user-1",
		Email:          "jane@example.com",
		Role:           domain.RoleHR,
		LinkedRecordID: strPtr("emp-9"),
		IsActive:       true,
	})
	health := &countingHealth{}
	cache := NewUserRecordCache(profiles, &fakeProvider{}, health, UserRecordCacheOptions{}).WithNow(clock.Now)
	ctx := context.Background()

	identity, err := cache.Resolve(ctx, staffClaims("user-1"))
	if err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	if identity.Role != domain.RoleHR || identity.LinkedRecordID == nil || *identity.LinkedRecordID != "emp-9" {
		t.Fatalf("unexpected identity: %+v", identity)
	}
	if identity.Degraded {
		t.Fatalf("expected a full record")
	}
	if health.Successes() != 1 {
		t.Fatalf("expected RecordSuccess after resolution")
	}

	clock.Advance(59 * time.Second)
	if _, err := cache.Resolve(ctx, staffClaims("user-1")); err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	if profiles.Calls() != 1 {
		t.Fatalf("expected cached record within ttl, got %d reads", profiles.Calls())
	}

	clock.Advance(time.Second)
	if _, err := cache.Resolve(ctx, staffClaims("user-1")); err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	if profiles.Calls() != 2 {
		t.Fatalf("expected refetch after ttl, got %d reads", profiles.Calls())
	}
}

func TestUserRecordCache_BannedSignsOut(t *testing.T) {
	profiles := newFakeProfiles(domain.Profile{IdentityID: "user-1", IsActive: true, IsBanned: true})
	provider := &fakeProvider{}
	health := &countingHealth{}
	cache := NewUserRecordCache(profiles, provider, health, UserRecordCacheOptions{})

	_, err := cache.Resolve(context.Background(), staffClaims("user-1"))
	if !errors.Is(err, ErrBanned) {
		t.Fatalf("expected ErrBanned, got %v", err)
	}
	if provider.SignOutCalls() != 1 {
		t.Fatalf("expected provider sign-out for banned identity, got %d", provider.SignOutCalls())
	}
	if health.Successes() != 0 {
		t.Fatalf("banned resolution must not count as success")
	}
	if _, ok := cache.Get("user-1"); ok {
		t.Fatalf("banned identity must not be cached")
	}
}

func TestUserRecordCache_DegradesOnProfileFailure(t *testing.T) {
	profiles := newFakeProfiles()
	profiles.err = errors.New("permission denied for table profiles")
	health := &countingHealth{}
	cache := NewUserRecordCache(profiles, &fakeProvider{}, health, UserRecordCacheOptions{
		Policy: domain.NewDegradationPolicy(domain.DegradationPolicyModeLenient),
	})

	claims := domain.Claims{Subject: "user-1", Email: "jane@example.com", Role: domain.RoleAdmin}
	identity, err := cache.Resolve(context.Background(), claims)
	if err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	if !identity.Degraded || identity.IsActive {
		t.Fatalf("expected degraded inactive identity, got %+v", identity)
	}
	if identity.Role != domain.RoleAdmin || identity.Email != "jane@example.com" {
		t.Fatalf("expected role and email from claims, got %+v", identity)
	}
	if health.Successes() != 0 {
		t.Fatalf("degraded resolution must not count as success")
	}
	if _, ok := cache.Get("user-1"); ok {
		t.Fatalf("degraded record must not be cached")
	}
}

func TestUserRecordCache_StrictPolicyPropagatesFailure(t *testing.T) {
	profiles := newFakeProfiles()
	profiles.err = errors.New("timeout")
	cache := NewUserRecordCache(profiles, &fakeProvider{}, nil, UserRecordCacheOptions{
		Policy: domain.NewDegradationPolicy(domain.DegradationPolicyModeStrict),
	})

	if _, err := cache.Resolve(context.Background(), staffClaims("user-1")); err == nil {
		t.Fatalf("expected strict policy to fail resolution")
	}
}

func TestUserRecordCache_DeniedOnlyPolicy(t *testing.T) {
	profiles := newFakeProfiles()
	cache := NewUserRecordCache(profiles, &fakeProvider{}, nil, UserRecordCacheOptions{
		Policy: domain.NewDegradationPolicy(domain.DegradationPolicyModeDeniedOnly),
	})

	profiles.err = fmt.Errorf("scan profile: %w", repository.ErrPermissionDenied)
	identity, err := cache.Resolve(context.Background(), staffClaims("user-1"))
	if err != nil || !identity.Degraded {
		t.Fatalf("expected degraded identity on access denial, got %+v, %v", identity, err)
	}

	profiles.err = errors.New("connection reset")
	if _, err := cache.Resolve(context.Background(), staffClaims("user-1")); err == nil {
		t.Fatalf("expected outage to fail resolution under denied_only")
	}
}

func TestUserRecordCache_CooperativeWaitReusesFirstResult(t *testing.T) {
	profiles := newFakeProfiles(domain.Profile{IdentityID: "user-1", Role: domain.RoleStaff, IsActive: true})
	profiles.delay = 30 * time.Millisecond

	cache := NewUserRecordCache(profiles, &fakeProvider{}, nil, UserRecordCacheOptions{CooperativeWait: 100 * time.Millisecond})

	var wg sync.WaitGroup
	results := make([]domain.Identity, 2)
	errs := make([]error, 2)

	wg.Add(1)
	go func() {
		defer wg.Done()
		results[0], errs[0] = cache.Resolve(context.Background(), staffClaims("user-1"))
	}()

	deadline := time.Now().Add(time.Second)
	for profiles.Calls() == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		results[1], errs[1] = cache.Resolve(context.Background(), staffClaims("user-1"))
	}()
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Fatalf("caller %d returned error: %v", i, err)
		}
	}
	if profiles.Calls() != 1 {
		t.Fatalf("expected the waiting caller to reuse the cached record, got %d reads", profiles.Calls())
	}
	if results[1].IdentityID != "user-1" {
		t.Fatalf("unexpected second result: %+v", results[1])
	}
}

func TestUserRecordCache_WaiterFetchesWhenFirstIsSlow(t *testing.T) {
	profiles := newFakeProfiles(domain.Profile{IdentityID: "user-1", Role: domain.RoleStaff, IsActive: true})
	profiles.delay = 80 * time.Millisecond

	cache := NewUserRecordCache(profiles, &fakeProvider{}, nil, UserRecordCacheOptions{CooperativeWait: 10 * time.Millisecond})

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, _ = cache.Resolve(context.Background(), staffClaims("user-1"))
	}()

	deadline := time.Now().Add(time.Second)
	for profiles.Calls() == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}

	if _, err := cache.Resolve(context.Background(), staffClaims("user-1")); err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	wg.Wait()

	if profiles.Calls() != 2 {
		t.Fatalf("expected weak de-duplication to allow a second read, got %d", profiles.Calls())
	}
}

func TestUserRecordCache_MarkInactiveAndClear(t *testing.T) {
	profiles := newFakeProfiles(domain.Profile{IdentityID: "user-1", Role: domain.RoleStaff, IsActive: true})
	health := NewSessionHealthStore(memory.NewKeyValueStore(), SessionHealthOptions{})
	cache := NewUserRecordCache(profiles, &fakeProvider{}, health, UserRecordCacheOptions{})

	if _, err := cache.Resolve(context.Background(), staffClaims("user-1")); err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	if !cache.MarkInactive("user-1") {
		t.Fatalf("expected cached record to be marked inactive")
	}
	record, ok := cache.Get("user-1")
	if !ok || record.IsActive {
		t.Fatalf("expected inactive cached record, got %+v ok=%v", record, ok)
	}

	cache.Clear()
	if _, ok := cache.Get("user-1"); ok {
		t.Fatalf("expected cache to be empty after Clear")
	}
	if cache.MarkInactive("user-1") {
		t.Fatalf("expected MarkInactive on empty cache to report false")
	}
}

func TestUserRecordCache_RequiresSubject(t *testing.T) {
	cache := NewUserRecordCache(newFakeProfiles(), &fakeProvider{}, nil, UserRecordCacheOptions{})
	if _, err := cache.Resolve(context.Background(), domain.Claims{}); !errors.Is(err, ErrIdentityRequired) {
		t.Fatalf("expected ErrIdentityRequired, got %v", err)
	}
}

func TestUserRecordCache_CachedResolutionRecordsSuccess(t *testing.T) {
	profiles := newFakeProfiles(domain.Profile{IdentityID: "user-1", Role: domain.RoleStaff, IsActive: true})
	health := &countingHealth{}
	cache := NewUserRecordCache(profiles, &fakeProvider{}, health, UserRecordCacheOptions{})

	for i := 0; i < 2; i++ {
		if _, err := cache.Resolve(context.Background(), staffClaims("user-1")); err != nil {
			t.Fatalf("Resolve returned error: %v", err)
		}
	}
	if profiles.Calls() != 1 {
		t.Fatalf("expected second resolution from cache, got %d reads", profiles.Calls())
	}
	if health.Successes() != 2 {
		t.Fatalf("expected RecordSuccess on every resolution, got %d", health.Successes())
	}
}

func TestUserRecordCache_ClearDuringFetchDiscardsResult(t *testing.T) {
	profiles := newFakeProfiles(domain.Profile{IdentityID: "user-1", Role: domain.RoleStaff, IsActive: true})
	profiles.delay = 50 * time.Millisecond
	provider := &fakeProvider{}
	cache := NewUserRecordCache(profiles, provider, nil, UserRecordCacheOptions{})

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, _ = cache.Resolve(context.Background(), staffClaims("user-1"))
	}()

	deadline := time.Now().Add(time.Second)
	for profiles.Calls() == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	cache.Clear()
	wg.Wait()

	if _, ok := cache.Get("user-1"); ok {
		t.Fatalf("expected record fetched before Clear to be discarded")
	}

	profiles.Set(domain.Profile{IdentityID: "user-1", Role: domain.RoleStaff, IsActive: true, IsBanned: true})
	if _, err := cache.Resolve(context.Background(), staffClaims("user-1")); !errors.Is(err, ErrBanned) {
		t.Fatalf("expected ErrBanned from a fresh read, got %v", err)
	}
	if provider.SignOutCalls() != 1 {
		t.Fatalf("expected provider sign-out for banned identity")
	}
}
