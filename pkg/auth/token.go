package auth

import (
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/harborline/storefront/pkg/config"
)

// Claims are the token fields the client reads locally. Signature
// verification is the backend's job; the client only inspects expiry,
// issuer, and identity fields.
type Claims struct {
	Email string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

// TokenStore holds the session bearer token. It is the only client-side
// persisted auth state.
type TokenStore struct {
	mu     sync.RWMutex
	token  string
	cfg    config.JWTConfig
	now    func() time.Time
}

// NewTokenStore builds an empty store.
func NewTokenStore(cfg config.JWTConfig) *TokenStore {
	return &TokenStore{cfg: cfg, now: time.Now}
}

// Set replaces the stored token.
func (s *TokenStore) Set(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = strings.TrimSpace(token)
}

// Clear forgets the stored token.
func (s *TokenStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = ""
}

// Token returns the current token and whether it is usable for an
// authenticated call. An absent, malformed, expired, or wrong-issuer token
// reports false so callers can abort before any network I/O.
func (s *TokenStore) Token() (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.token == "" {
		return "", false
	}
	claims, err := s.inspect(s.token)
	if err != nil {
		return "", false
	}
	if claims.ExpiresAt != nil && s.now().After(claims.ExpiresAt.Time.Add(s.cfg.Leeway)) {
		return "", false
	}
	if s.cfg.Issuer != "" && claims.Issuer != s.cfg.Issuer {
		return "", false
	}
	return s.token, true
}

// Claims returns the parsed claims of the stored token, if any.
func (s *TokenStore) Claims() (*Claims, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.token == "" {
		return nil, false
	}
	claims, err := s.inspect(s.token)
	if err != nil {
		return nil, false
	}
	return claims, true
}

func (s *TokenStore) inspect(token string) (*Claims, error) {
	claims := &Claims{}
	parser := jwt.NewParser(jwt.WithoutClaimsValidation())
	if _, _, err := parser.ParseUnverified(token, claims); err != nil {
		return nil, err
	}
	return claims, nil
}
