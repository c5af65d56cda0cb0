package auth

import (
	"context"
	"crypto/subtle"
	"strings"
	"sync"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/golang-jwt/jwt/v5"
	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/mbs4/mbs4/pkg/config"
	"github.com/mbs4/mbs4/pkg/errcodes"
	"github.com/mbs4/mbs4/pkg/models"
	"github.com/mbs4/mbs4/pkg/users"
	"github.com/pkg/errors"
	"github.com/robinjoseph08/golib/logger"
	"golang.org/x/oauth2"
)

// ApiClaim is the payload of the bearer token used on API requests. The
// subject is the account email.
type ApiClaim struct {
	Roles []string `json:"roles"`
	jwt.RegisteredClaims
}

// HasAnyRole reports whether the claim carries at least one of the roles.
func (c *ApiClaim) HasAnyRole(roles ...models.Role) bool {
	for _, want := range roles {
		for _, have := range c.Roles {
			if have == string(want) {
				return true
			}
		}
	}
	return false
}

// UserClaim is the slice of an OIDC ID token the login flow reads. Email is
// the join key to the local user table.
type UserClaim struct {
	Subject           string `json:"sub"`
	Email             string `json:"email"`
	Name              string `json:"name"`
	PreferredUsername string `json:"preferred_username"`
}

// oidcClient pairs the discovered OAuth2 endpoints of a provider with its ID
// token verifier. Entries are immutable once built and shared by every
// request.
type oidcClient struct {
	config   oauth2.Config
	verifier *oidc.IDTokenVerifier
}

// Service implements session login (password and OIDC) and bearer token
// issuance for the API.
type Service struct {
	users    *users.Service
	store    Store
	secret   []byte
	validity time.Duration

	providers   map[string]config.OIDCProvider
	redirectURL string

	mu      sync.RWMutex
	clients map[string]*oidcClient
}

// NewService creates an auth service. The redirect URL for OIDC callbacks is
// derived from the backend base URL.
func NewService(userService *users.Service, store Store, secret []byte, cfg *config.Config, oidcCfg *config.OIDCConfig) *Service {
	providers := make(map[string]config.OIDCProvider, len(oidcCfg.Providers))
	for _, p := range oidcCfg.Providers {
		providers[p.Name] = p
	}

	return &Service{
		users:       userService,
		store:       store,
		secret:      secret,
		validity:    cfg.TokenValidity,
		providers:   providers,
		redirectURL: strings.TrimSuffix(cfg.BaseBackendURL, "/") + "/auth/callback",
		clients:     make(map[string]*oidcClient),
	}
}

// Sessions exposes the session store for handlers and tests.
func (s *Service) Sessions() Store {
	return s.store
}

// Validity is the lifetime of minted bearer tokens.
func (s *Service) Validity() time.Duration {
	return s.validity
}

// Providers lists the configured OIDC providers for login pages.
func (s *Service) Providers() []config.OIDCProvider {
	out := make([]config.OIDCProvider, 0, len(s.providers))
	for _, p := range s.providers {
		out = append(out, p)
	}
	return out
}

// GenerateToken mints a signed bearer token for the user with the service's
// validity window.
func (s *Service) GenerateToken(user *models.User) (string, time.Time, error) {
	now := time.Now()
	expires := now.Add(s.validity)

	claims := &ApiClaim{
		Roles: user.Roles.Strings(),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.Email,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, errors.WithStack(err)
	}
	return signed, expires, nil
}

// ValidateToken checks the signature and expiry of a bearer token and
// returns its claims. Every failure mode is the same 401.
func (s *Service) ValidateToken(token string) (*ApiClaim, error) {
	claims := &ApiClaim{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil || !parsed.Valid {
		return nil, errcodes.Unauthorized()
	}
	return claims, nil
}

// Login verifies the password and binds the user to a fresh session. Any
// previous session is dropped so a login never rides an id that existed
// before the credentials were checked.
func (s *Service) Login(ctx context.Context, old *Session, email, password string) (*Session, error) {
	user, err := s.users.Authenticate(ctx, email, password)
	if err != nil {
		return nil, err
	}
	return s.loginSession(ctx, old, user)
}

func (s *Service) loginSession(ctx context.Context, old *Session, user *models.User) (*Session, error) {
	if old != nil {
		if err := s.store.Delete(ctx, old.ID); err != nil {
			return nil, err
		}
	}

	session, err := s.store.Create(ctx)
	if err != nil {
		return nil, err
	}
	session.UserID = user.ID
	session.Email = user.Email
	if err := s.store.Save(ctx, session); err != nil {
		return nil, err
	}
	return session, nil
}

// Logout destroys the session.
func (s *Service) Logout(ctx context.Context, session *Session) error {
	return s.store.Delete(ctx, session.ID)
}

// TokenForSession re-reads the session's user and mints a bearer token. The
// fresh read means revoked roles stop flowing into new tokens immediately.
func (s *Service) TokenForSession(ctx context.Context, session *Session) (string, time.Time, error) {
	if session == nil || !session.LoggedIn() {
		return "", time.Time{}, errcodes.Unauthorized()
	}

	user, err := s.users.Retrieve(ctx, session.UserID)
	if err != nil {
		var ec *errcodes.Error
		if errors.As(err, &ec) && ec.HTTPCode == 404 {
			return "", time.Time{}, errcodes.Unauthorized()
		}
		return "", time.Time{}, err
	}

	return s.GenerateToken(user)
}

// BeginOIDC stores a pending flow in the session and returns the provider
// authorization URL to redirect to.
func (s *Service) BeginOIDC(ctx context.Context, session *Session, providerName string) (string, error) {
	client, err := s.oidcClient(ctx, providerName)
	if err != nil {
		return "", err
	}

	state, err := gonanoid.New()
	if err != nil {
		return "", errors.WithStack(err)
	}
	nonce, err := gonanoid.New()
	if err != nil {
		return "", errors.WithStack(err)
	}
	verifier := oauth2.GenerateVerifier()

	session.OIDC = &OIDCSecrets{
		Provider:     providerName,
		CSRFToken:    state,
		Nonce:        nonce,
		PKCEVerifier: verifier,
	}
	if err := s.store.Save(ctx, session); err != nil {
		return "", err
	}

	return client.config.AuthCodeURL(state, oidc.Nonce(nonce), oauth2.S256ChallengeOption(verifier)), nil
}

// CompleteOIDC finishes the callback leg: state check, code exchange with
// the PKCE verifier, ID token checks, and the email join against the local
// user table. The pending flow is consumed no matter what, so a failed
// callback cannot be replayed.
func (s *Service) CompleteOIDC(ctx context.Context, session *Session, state, code string) (*Session, error) {
	log := logger.FromContext(ctx)

	pending := session.OIDC
	session.OIDC = nil
	if err := s.store.Save(ctx, session); err != nil {
		return nil, err
	}
	if pending == nil {
		return nil, errcodes.BadRequest("No login in progress.")
	}

	if state == "" || subtle.ConstantTimeCompare([]byte(state), []byte(pending.CSRFToken)) != 1 {
		return nil, errcodes.BadRequest("State mismatch.")
	}

	client, err := s.oidcClient(ctx, pending.Provider)
	if err != nil {
		return nil, err
	}

	token, err := client.config.Exchange(ctx, code, oauth2.VerifierOption(pending.PKCEVerifier))
	if err != nil {
		log.Err(err).Warn("oidc code exchange failed", logger.Data{"provider": pending.Provider})
		return nil, errcodes.Unauthorized()
	}

	rawIDToken, ok := token.Extra("id_token").(string)
	if !ok {
		log.Warn("oidc token response carried no id_token", logger.Data{"provider": pending.Provider})
		return nil, errcodes.Unauthorized()
	}

	idToken, err := client.verifier.Verify(ctx, rawIDToken)
	if err != nil {
		log.Err(err).Warn("oidc id token rejected", logger.Data{"provider": pending.Provider})
		return nil, errcodes.Unauthorized()
	}
	if idToken.Nonce != pending.Nonce {
		log.Warn("oidc id token nonce mismatch", logger.Data{"provider": pending.Provider})
		return nil, errcodes.Unauthorized()
	}
	if idToken.AccessTokenHash != "" {
		if err := idToken.VerifyAccessToken(token.AccessToken); err != nil {
			log.Err(err).Warn("oidc access token hash mismatch", logger.Data{"provider": pending.Provider})
			return nil, errcodes.Unauthorized()
		}
	}

	claim := UserClaim{}
	if err := idToken.Claims(&claim); err != nil {
		return nil, errors.WithStack(err)
	}
	if claim.Email == "" {
		log.Warn("oidc id token carried no email", logger.Data{"provider": pending.Provider})
		return nil, errcodes.Unauthorized()
	}

	user, err := s.users.RetrieveByEmail(ctx, claim.Email)
	if err != nil {
		var ec *errcodes.Error
		if errors.As(err, &ec) && ec.HTTPCode == 404 {
			log.Warn("oidc login for unknown account", logger.Data{"provider": pending.Provider, "email": claim.Email})
			return nil, errcodes.Unauthorized()
		}
		return nil, err
	}

	return s.loginSession(ctx, session, user)
}

// oidcClient returns the cached client for the provider, running discovery
// on first use.
func (s *Service) oidcClient(ctx context.Context, name string) (*oidcClient, error) {
	s.mu.RLock()
	client, ok := s.clients[name]
	s.mu.RUnlock()
	if ok {
		return client, nil
	}

	provider, ok := s.providers[name]
	if !ok {
		return nil, errcodes.NotFound("OIDC provider")
	}

	issuer, err := oidc.NewProvider(ctx, provider.IssuerURL)
	if err != nil {
		return nil, errors.Wrapf(err, "oidc discovery failed for %q", name)
	}

	client = &oidcClient{
		config: oauth2.Config{
			ClientID:     provider.ClientID,
			ClientSecret: provider.ClientSecret,
			Endpoint:     issuer.Endpoint(),
			RedirectURL:  s.redirectURL,
			Scopes:       provider.Scopes,
		},
		verifier: issuer.Verifier(&oidc.Config{ClientID: provider.ClientID}),
	}

	s.mu.Lock()
	// A concurrent request may have finished discovery first; keep its entry
	// so every caller shares one verifier.
	if existing, ok := s.clients[name]; ok {
		client = existing
	} else {
		s.clients[name] = client
	}
	s.mu.Unlock()

	return client, nil
}
