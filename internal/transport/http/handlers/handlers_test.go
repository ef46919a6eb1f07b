package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/Anas43xq/EmployeeManagementSystem-sub000/internal/core/domain"
	"github.com/Anas43xq/EmployeeManagementSystem-sub000/internal/repository"
	"github.com/Anas43xq/EmployeeManagementSystem-sub000/internal/usecase"
)

type stubSessions struct {
	identity  *domain.Identity
	loading   bool
	signInErr error
	token     string
	tokenErr  error
	fresh     bool
	visible   int
	signOuts  int
	resets    int
}

func (s *stubSessions) CurrentIdentity() *domain.Identity { return s.identity }

func (s *stubSessions) Loading() bool { return s.loading }

func (s *stubSessions) SignIn(_ context.Context, email, _ string) (domain.Identity, error) {
	if s.signInErr != nil {
		return domain.Identity{}, s.signInErr
	}
	identity := domain.Identity{UserRecord: domain.UserRecord{IdentityID: "user-1", Email: email, Role: domain.RoleHR, IsActive: true}}
	s.identity = &identity
	return identity, nil
}

func (s *stubSessions) SignOut(context.Context) error {
	s.signOuts++
	s.identity = nil
	return nil
}

func (s *stubSessions) ResetSession(context.Context) error {
	s.resets++
	s.identity = nil
	return nil
}

func (s *stubSessions) AccessToken(_ context.Context, fresh bool) (string, error) {
	s.fresh = fresh
	return s.token, s.tokenErr
}

func (s *stubSessions) RecordActivity(_ context.Context, eventType string) bool {
	return usecase.IsActivityEvent(eventType)
}

func (s *stubSessions) OnVisible(context.Context) { s.visible++ }

func newSessionRouter(sessions SessionService) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	NewSessionHandler(sessions).RegisterRoutes(router.Group("/api/v1/session"))
	return router
}

func serve(router http.Handler, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

func TestSessionStateLoggedOut(t *testing.T) {
	router := newSessionRouter(&stubSessions{loading: true})

	rr := serve(router, http.MethodGet, "/api/v1/session", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}

	var body map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["loading"] != true {
		t.Fatalf("expected loading=true, got %v", body["loading"])
	}
	if identity, ok := body["identity"]; !ok || identity != nil {
		t.Fatalf("expected explicit null identity, got %v", body["identity"])
	}
}

func TestSignInSuccess(t *testing.T) {
	sessions := &stubSessions{}
	router := newSessionRouter(sessions)

	rr := serve(router, http.MethodPost, "/api/v1/session/sign-in", `{"email":"jane@example.com","password":"secret"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}

	var identity IdentityResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &identity); err != nil {
		t.Fatalf("decode identity: %v", err)
	}
	if identity.IdentityID != "user-1" || identity.Role != domain.RoleHR {
		t.Fatalf("unexpected identity: %+v", identity)
	}
}

func TestSignInErrorMapping(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
	}{
		{name: "invalid credentials", err: usecase.ErrInvalidCredentials, status: http.StatusUnauthorized},
		{name: "locked out", err: usecase.ErrLockedOut, status: http.StatusLocked},
		{name: "banned", err: usecase.ErrBanned, status: http.StatusForbidden},
		{name: "superseded", err: usecase.ErrSuperseded, status: http.StatusConflict},
		{name: "transient", err: domain.NewAuthError(domain.ErrorKindTransient, "sign_in", context.DeadlineExceeded), status: http.StatusServiceUnavailable},
		{name: "unexpected", err: errors.New("boom"), status: http.StatusInternalServerError},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			router := newSessionRouter(&stubSessions{signInErr: tc.err})
			rr := serve(router, http.MethodPost, "/api/v1/session/sign-in", `{"email":"jane@example.com","password":"x"}`)
			if rr.Code != tc.status {
				t.Fatalf("expected %d, got %d", tc.status, rr.Code)
			}
		})
	}
}

func TestSignInRequiresBody(t *testing.T) {
	router := newSessionRouter(&stubSessions{})

	rr := serve(router, http.MethodPost, "/api/v1/session/sign-in", `{"email":"jane@example.com"}`)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
}

func TestSignOutAndReset(t *testing.T) {
	sessions := &stubSessions{}
	router := newSessionRouter(sessions)

	if rr := serve(router, http.MethodPost, "/api/v1/session/sign-out", ""); rr.Code != http.StatusNoContent {
		t.Fatalf("expected 204 from sign-out, got %d", rr.Code)
	}
	if rr := serve(router, http.MethodPost, "/api/v1/session/reset", ""); rr.Code != http.StatusNoContent {
		t.Fatalf("expected 204 from reset, got %d", rr.Code)
	}
	if sessions.signOuts != 1 || sessions.resets != 1 {
		t.Fatalf("expected one sign-out and one reset, got %d/%d", sessions.signOuts, sessions.resets)
	}
}

func TestTokenEndpoint(t *testing.T) {
	sessions := &stubSessions{token: "access-1"}
	router := newSessionRouter(sessions)

	rr := serve(router, http.MethodGet, "/api/v1/session/token?fresh=true", "")
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), "access-1") {
		t.Fatalf("unexpected token response %d: %s", rr.Code, rr.Body.String())
	}
	if !sessions.fresh {
		t.Fatalf("expected fresh flag to be forwarded")
	}

	sessions.tokenErr = usecase.ErrNoSession
	rr = serve(router, http.MethodGet, "/api/v1/session/token", "")
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without session, got %d", rr.Code)
	}
}

func TestActivityAndVisibility(t *testing.T) {
	sessions := &stubSessions{}
	router := newSessionRouter(sessions)

	rr := serve(router, http.MethodPost, "/api/v1/session/activity", `{"event":"keydown"}`)
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), `"recorded":true`) {
		t.Fatalf("unexpected activity response %d: %s", rr.Code, rr.Body.String())
	}

	rr = serve(router, http.MethodPost, "/api/v1/session/activity", `{"event":"resize"}`)
	if !strings.Contains(rr.Body.String(), `"recorded":false`) {
		t.Fatalf("expected untracked event to be ignored: %s", rr.Body.String())
	}

	if rr := serve(router, http.MethodPost, "/api/v1/session/visibility", ""); rr.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", rr.Code)
	}
	if sessions.visible != 1 {
		t.Fatalf("expected visibility to be forwarded")
	}
}

type stubCache struct {
	table   string
	pattern string
}

func (s *stubCache) Invalidate() int { return 3 }

func (s *stubCache) InvalidateTable(table string) int {
	s.table = table
	return 2
}

func (s *stubCache) InvalidatePattern(pattern string) (int, error) {
	s.pattern = pattern
	if pattern == "(" {
		return 0, errors.New("bad pattern")
	}
	return 1, nil
}

func TestCacheInvalidate(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cache := &stubCache{}
	router := gin.New()
	NewCacheHandler(cache).RegisterRoutes(router.Group("/api/v1/cache"))

	cases := []struct {
		path   string
		status int
		body   string
	}{
		{path: "/api/v1/cache", status: http.StatusOK, body: `"removed":3`},
		{path: "/api/v1/cache?table=employees", status: http.StatusOK, body: `"removed":2`},
		{path: "/api/v1/cache?pattern=%5Eleave", status: http.StatusOK, body: `"removed":1`},
		{path: "/api/v1/cache?pattern=(", status: http.StatusBadRequest, body: "invalid pattern"},
		{path: "/api/v1/cache?table=a&pattern=b", status: http.StatusBadRequest, body: "mutually exclusive"},
	}

	for _, tc := range cases {
		rr := serve(router, http.MethodDelete, tc.path, "")
		if rr.Code != tc.status || !strings.Contains(rr.Body.String(), tc.body) {
			t.Fatalf("%s: unexpected response %d: %s", tc.path, rr.Code, rr.Body.String())
		}
	}

	if cache.table != "employees" || cache.pattern != "(" {
		t.Fatalf("unexpected forwarded arguments: %+v", cache)
	}
}

func TestReadiness(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	handler := NewHealthHandler(
		WithReadinessCheck("store", func(context.Context) error { return nil }),
		WithReadinessCheck("postgres", func(context.Context) error { return errors.New("connection refused") }),
	)
	router.GET("/readyz", handler.Readiness)

	rr := serve(router, http.MethodGet, "/readyz", "")
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "connection refused") {
		t.Fatalf("expected failing check in body: %s", rr.Body.String())
	}
}

type countingProfiles struct {
	mu      sync.Mutex
	profile domain.Profile
	calls   int
}

func (p *countingProfiles) GetProfile(_ context.Context, identityID string) (*domain.Profile, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	if identityID != p.profile.IdentityID {
		return nil, repository.ErrNotFound
	}
	copied := p.profile
	return &copied, nil
}

func (p *countingProfiles) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

func newProfileRouter(identity *domain.Identity, profiles *countingProfiles) *gin.Engine {
	gin.SetMode(gin.TestMode)
	cache := usecase.NewRequestCache(usecase.RequestCacheOptions{})
	router := gin.New()
	NewProfileHandler(&stubSessions{identity: identity}, usecase.NewProfileReader(profiles, cache)).RegisterRoutes(router.Group("/api/v1/profile"))
	NewCacheHandler(cache).RegisterRoutes(router.Group("/api/v1/cache"))
	return router
}

func TestProfileServedFromRequestCache(t *testing.T) {
	token := "server-token"
	profiles := &countingProfiles{profile: domain.Profile{
		IdentityID:   "user-1",
		Email:        "jane@example.com",
		Role:         domain.RoleHR,
		IsActive:     true,
		SessionToken: &token,
	}}
	identity := &domain.Identity{UserRecord: domain.UserRecord{IdentityID: "user-1"}}
	router := newProfileRouter(identity, profiles)

	for i := 0; i < 2; i++ {
		rr := serve(router, http.MethodGet, "/api/v1/profile", "")
		if rr.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
		}
		if strings.Contains(rr.Body.String(), token) {
			t.Fatalf("profile response leaked the server session token")
		}
		var profile ProfileResponse
		if err := json.Unmarshal(rr.Body.Bytes(), &profile); err != nil {
			t.Fatalf("decode profile: %v", err)
		}
		if profile.Role != domain.RoleHR || profile.Email != "jane@example.com" {
			t.Fatalf("unexpected profile: %+v", profile)
		}
	}
	if profiles.Calls() != 1 {
		t.Fatalf("expected second read from cache, got %d reads", profiles.Calls())
	}

	rr := serve(router, http.MethodDelete, "/api/v1/cache?table=profiles", "")
	var removed CacheInvalidateResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &removed); err != nil {
		t.Fatalf("decode invalidation: %v", err)
	}
	if removed.Removed != 1 {
		t.Fatalf("expected one cached profile removed, got %d", removed.Removed)
	}

	if rr := serve(router, http.MethodGet, "/api/v1/profile", ""); rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if profiles.Calls() != 2 {
		t.Fatalf("expected a fresh read after invalidation, got %d reads", profiles.Calls())
	}
}

func TestProfileErrorMapping(t *testing.T) {
	profiles := &countingProfiles{profile: domain.Profile{IdentityID: "user-1"}}

	router := newProfileRouter(nil, profiles)
	if rr := serve(router, http.MethodGet, "/api/v1/profile", ""); rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without a session, got %d", rr.Code)
	}

	router = newProfileRouter(&domain.Identity{UserRecord: domain.UserRecord{IdentityID: "user-2"}}, profiles)
	if rr := serve(router, http.MethodGet, "/api/v1/profile", ""); rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for a missing profile, got %d", rr.Code)
	}
}
