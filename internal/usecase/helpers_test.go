package usecase

import (
	"context"
	"sync"
	"time"

	"github.com/Anas43xq/EmployeeManagementSystem-sub000/internal/core/domain"
	"github.com/Anas43xq/EmployeeManagementSystem-sub000/internal/core/port"
	"github.com/Anas43xq/EmployeeManagementSystem-sub000/internal/repository"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type fakeProvider struct {
	mu sync.Mutex

	session    *domain.Session
	sessionErr error

	signInSession *domain.Session
	signInErr     error

	refreshed  *domain.Session
	refreshErr error
	refreshHook func()

	claims    *domain.Claims
	claimsErr error

	signInCalls  int
	refreshCalls int
	signOutCalls int
}

var _ port.IdentityProvider = (*fakeProvider)(nil)

func (p *fakeProvider) SignIn(_ context.Context, _, _ string) (*domain.Session, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.signInCalls++
	if p.signInErr != nil {
		return nil, p.signInErr
	}
	p.session = p.signInSession
	return p.signInSession, nil
}

func (p *fakeProvider) GetSession(_ context.Context) (*domain.Session, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.sessionErr != nil {
		return nil, p.sessionErr
	}
	if p.session == nil {
		return nil, nil
	}
	copied := *p.session
	return &copied, nil
}

func (p *fakeProvider) RefreshSession(ctx context.Context) (*domain.Session, error) {
	p.mu.Lock()
	p.refreshCalls++
	hook := p.refreshHook
	p.mu.Unlock()

	if hook != nil {
		hook()
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.refreshErr != nil {
		return nil, p.refreshErr
	}
	p.session = p.refreshed
	return p.refreshed, nil
}

func (p *fakeProvider) SignOut(_ context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.signOutCalls++
	p.session = nil
	return nil
}

func (p *fakeProvider) Claims(_ string) (*domain.Claims, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.claimsErr != nil {
		return nil, p.claimsErr
	}
	if p.claims == nil {
		return nil, domain.NewAuthError(domain.ErrorKindAuthoritative, "claims", nil)
	}
	copied := *p.claims
	return &copied, nil
}

func (p *fakeProvider) SignOutCalls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.signOutCalls
}

func (p *fakeProvider) RefreshCalls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.refreshCalls
}

type fakeProfiles struct {
	mu       sync.Mutex
	profiles map[string]domain.Profile
	err      error
	delay    time.Duration
	calls    int
	tokens   map[string]*string
}

func newFakeProfiles(profiles ...domain.Profile) *fakeProfiles {
	f := &fakeProfiles{profiles: make(map[string]domain.Profile), tokens: make(map[string]*string)}
	for _, p := range profiles {
		f.profiles[p.IdentityID] = p
	}
	return f
}

func (f *fakeProfiles) GetProfile(ctx context.Context, identityID string) (*domain.Profile, error) {
	f.mu.Lock()
	f.calls++
	delay := f.delay
	f.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	profile, ok := f.profiles[identityID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	if token, ok := f.tokens[identityID]; ok {
		profile.SessionToken = token
	}
	return &profile, nil
}

func (f *fakeProfiles) SetSessionToken(_ context.Context, identityID string, token *string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if token == nil {
		f.tokens[identityID] = nil
		return nil
	}
	value := *token
	f.tokens[identityID] = &value
	return nil
}

func (f *fakeProfiles) Set(profile domain.Profile) {
	f.mu.Lock()
	f.profiles[profile.IdentityID] = profile
	if profile.SessionToken != nil {
		value := *profile.SessionToken
		f.tokens[profile.IdentityID] = &value
	}
	f.mu.Unlock()
}

func (f *fakeProfiles) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *fakeProfiles) Token(identityID string) *string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.tokens[identityID]
}

type fakeSubscription struct {
	mu     sync.Mutex
	closed bool
}

func (s *fakeSubscription) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

type fakeSubscriber struct {
	mu       sync.Mutex
	handlers map[string]func(domain.Profile)
	err      error
}

func newFakeSubscriber() *fakeSubscriber {
	return &fakeSubscriber{handlers: make(map[string]func(domain.Profile))}
}

func (s *fakeSubscriber) Subscribe(_ context.Context, identityID string, handler func(domain.Profile)) (port.Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	s.handlers[identityID] = handler
	return &fakeSubscription{}, nil
}

func (s *fakeSubscriber) Emit(profile domain.Profile) bool {
	s.mu.Lock()
	handler := s.handlers[profile.IdentityID]
	s.mu.Unlock()
	if handler == nil {
		return false
	}
	handler(profile)
	return true
}

func (s *fakeSubscriber) Subscribed(identityID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.handlers[identityID]
	return ok
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []domain.SessionLifecycleEvent
}

func (p *recordingPublisher) PublishSessionLifecycle(_ context.Context, event domain.SessionLifecycleEvent) error {
	p.mu.Lock()
	p.events = append(p.events, event)
	p.mu.Unlock()
	return nil
}

func (p *recordingPublisher) Kinds() []domain.SessionLifecycleKind {
	p.mu.Lock()
	defer p.mu.Unlock()
	kinds := make([]domain.SessionLifecycleKind, 0, len(p.events))
	for _, event := range p.events {
		kinds = append(kinds, event.Kind)
	}
	return kinds
}

func strPtr(s string) *string { return &s }
