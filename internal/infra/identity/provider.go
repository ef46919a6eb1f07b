package identity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"github.com/Anas43xq/EmployeeManagementSystem-sub000/internal/core/domain"
	"github.com/Anas43xq/EmployeeManagementSystem-sub000/internal/core/port"
	"github.com/Anas43xq/EmployeeManagementSystem-sub000/internal/infra/config"
	"github.com/Anas43xq/EmployeeManagementSystem-sub000/internal/repository"
)

// TokenKey is where the provider's token blob lives in the local store. It sits under the
// provider namespace so a forced logout purges it.
const TokenKey = "idp:token"

const defaultRequestTimeout = 10 * time.Second

var errNoRefreshToken = errors.New("no refresh token stored")

// Provider talks OAuth2 to the remote identity service. The token blob is read from the store
// on every call so the store stays the single source of truth across restarts.
type Provider struct {
	oauth      *oauth2.Config
	signOutURL string
	client     *http.Client
	timeout    time.Duration
	store      port.KeyValueStore
	parser     *jwt.Parser
	logger     *zap.Logger

	// mu serialises read-modify-write cycles on the token blob.
	mu sync.Mutex
}

var _ port.IdentityProvider = (*Provider)(nil)

// ProviderOptions configures the identity adapter.
type ProviderOptions struct {
	HTTPClient *http.Client
}

// NewProvider constructs the adapter from identity settings. Empty token and sign-out URLs are
// derived from the base URL.
func NewProvider(cfg config.IdentitySettings, store port.KeyValueStore, opts ProviderOptions) *Provider {
	base := strings.TrimRight(cfg.BaseURL, "/")

	tokenURL := cfg.TokenURL
	if tokenURL == "" {
		tokenURL = base + "/token"
	}
	signOutURL := cfg.SignOutURL
	if signOutURL == "" {
		signOutURL = base + "/logout"
	}

	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}

	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: timeout}
	}

	return &Provider{
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Scopes:       cfg.Scopes,
			Endpoint: oauth2.Endpoint{
				TokenURL:  tokenURL,
				AuthStyle: oauth2.AuthStyleInHeader,
			},
		},
		signOutURL: signOutURL,
		client:     client,
		timeout:    timeout,
		store:      store,
		parser:     jwt.NewParser(),
		logger:     zap.NewNop(),
	}
}

// WithLogger attaches a structured logger.
func (p *Provider) WithLogger(logger *zap.Logger) *Provider {
	if logger != nil {
		p.logger = logger
	}
	return p
}

// SignIn runs the resource owner password grant and persists the issued tokens.
func (p *Provider) SignIn(ctx context.Context, email, password string) (*domain.Session, error) {
	ctx, cancel := p.requestContext(ctx)
	defer cancel()

	token, err := p.oauth.PasswordCredentialsToken(ctx, email, password)
	if err != nil {
		return nil, classify("sign_in", err, domain.ErrorKindCredentials)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.save(ctx, token); err != nil {
		return nil, domain.NewAuthError(domain.ErrorKindTransient, "sign_in", err)
	}
	return toSession(token), nil
}

// GetSession returns the stored session without contacting the provider.
func (p *Provider) GetSession(ctx context.Context) (*domain.Session, error) {
	token, err := p.load(ctx)
	if err != nil {
		return nil, err
	}
	if token == nil {
		return nil, nil
	}
	return toSession(token), nil
}

// RefreshSession exchanges the stored refresh token for a new token pair.
func (p *Provider) RefreshSession(ctx context.Context) (*domain.Session, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	stored, err := p.load(ctx)
	if err != nil {
		return nil, err
	}
	if stored == nil || stored.RefreshToken == "" {
		return nil, domain.NewAuthError(domain.ErrorKindAuthoritative, "refresh", errNoRefreshToken)
	}

	ctx, cancel := p.requestContext(ctx)
	defer cancel()

	// An empty access token forces the token source to hit the endpoint.
	source := p.oauth.TokenSource(ctx, &oauth2.Token{RefreshToken: stored.RefreshToken})
	token, err := source.Token()
	if err != nil {
		return nil, classify("refresh", err, domain.ErrorKindAuthoritative)
	}

	if err := p.save(ctx, token); err != nil {
		return nil, domain.NewAuthError(domain.ErrorKindTransient, "refresh", err)
	}
	return toSession(token), nil
}

// SignOut revokes the session remotely and drops the token blob. The blob is removed even
// when the remote call fails.
func (p *Provider) SignOut(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	stored, loadErr := p.load(ctx)

	var remoteErr error
	if loadErr == nil && stored != nil && stored.AccessToken != "" {
		remoteErr = p.remoteSignOut(ctx, stored.AccessToken)
	}

	if err := p.store.Delete(ctx, TokenKey); err != nil {
		return domain.NewAuthError(domain.ErrorKindTransient, "sign_out", fmt.Errorf("delete token blob: %w", err))
	}
	return remoteErr
}

func (p *Provider) remoteSignOut(ctx context.Context, accessToken string) error {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.signOutURL, nil)
	if err != nil {
		return domain.NewAuthError(domain.ErrorKindUnknown, "sign_out", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := p.client.Do(req)
	if err != nil {
		return classify("sign_out", err, domain.ErrorKindUnknown)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusNotFound:
		// The session is already gone remotely.
		p.logger.Debug("remote session already ended", zap.Int("status", resp.StatusCode))
		return nil
	case resp.StatusCode >= 500:
		return domain.NewAuthError(domain.ErrorKindTransient, "sign_out", fmt.Errorf("status %d", resp.StatusCode))
	default:
		return domain.NewAuthError(domain.ErrorKindUnknown, "sign_out", fmt.Errorf("status %d", resp.StatusCode))
	}
}

type accessClaims struct {
	Email string `json:"email"`
	Role  string `json:"role"`
	jwt.RegisteredClaims
}

// Claims decodes the access token payload. The signature is not checked: the token is only
// ever used against the provider that issued it.
func (p *Provider) Claims(accessToken string) (*domain.Claims, error) {
	var claims accessClaims
	if _, _, err := p.parser.ParseUnverified(accessToken, &claims); err != nil {
		return nil, domain.NewAuthError(domain.ErrorKindAuthoritative, "claims", err)
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return nil, domain.NewAuthError(domain.ErrorKindAuthoritative, "claims", errors.New("token has no subject"))
	}

	result := &domain.Claims{
		Subject: claims.Subject,
		Email:   claims.Email,
		Role:    domain.ParseRole(claims.Role),
	}
	if claims.ExpiresAt != nil {
		result.ExpiresAt = claims.ExpiresAt.Time
	}
	return result, nil
}

func (p *Provider) requestContext(ctx context.Context) (context.Context, context.CancelFunc) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, p.client)
	return context.WithTimeout(ctx, p.timeout)
}

func (p *Provider) load(ctx context.Context) (*oauth2.Token, error) {
	raw, err := p.store.Get(ctx, TokenKey)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, nil
		}
		return nil, domain.NewAuthError(domain.ErrorKindTransient, "load_token", err)
	}

	var token oauth2.Token
	if err := json.Unmarshal([]byte(raw), &token); err != nil {
		return nil, domain.NewAuthError(domain.ErrorKindAuthoritative, "load_token", fmt.Errorf("decode token blob: %w", err))
	}
	return &token, nil
}

func (p *Provider) save(ctx context.Context, token *oauth2.Token) error {
	raw, err := json.Marshal(token)
	if err != nil {
		return fmt.Errorf("encode token blob: %w", err)
	}
	if err := p.store.Set(ctx, TokenKey, string(raw)); err != nil {
		return fmt.Errorf("persist token blob: %w", err)
	}
	return nil
}

func toSession(token *oauth2.Token) *domain.Session {
	return &domain.Session{
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		TokenType:    token.Type(),
		ExpiresAt:    token.Expiry,
	}
}

// classify maps a transport or OAuth2 failure to an error kind. rejected is the kind used when
// the provider answers with a client error.
func classify(op string, err error, rejected domain.ErrorKind) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return domain.NewAuthError(domain.ErrorKindTransient, op, err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return domain.NewAuthError(domain.ErrorKindTransient, op, err)
	}

	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) && retrieveErr.Response != nil {
		status := retrieveErr.Response.StatusCode
		switch {
		case status >= 500 || status == http.StatusTooManyRequests:
			return domain.NewAuthError(domain.ErrorKindTransient, op, err)
		case status >= 400:
			return domain.NewAuthError(rejected, op, err)
		}
	}

	return domain.NewAuthError(domain.ErrorKindUnknown, op, err)
}
