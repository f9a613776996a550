package api

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/pquerna/otp/totp"
)

// Tokens is the token pair issued by /auth/login and /auth/refresh.
type Tokens struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
}

// TokenStore holds the current session tokens. Safe for concurrent use.
type TokenStore struct {
	mu     sync.RWMutex
	tokens Tokens
}

// NewTokenStore returns a store preloaded with t.
func NewTokenStore(t Tokens) *TokenStore {
	return &TokenStore{tokens: t}
}

// AccessToken returns the current bearer token, or "" when signed out.
func (s *TokenStore) AccessToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tokens.AccessToken
}

// RefreshToken returns the current refresh token.
func (s *TokenStore) RefreshToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tokens.RefreshToken
}

// Set replaces the stored tokens.
func (s *TokenStore) Set(t Tokens) {
	s.mu.Lock()
	s.tokens = t
	s.mu.Unlock()
}

// Clear signs the store out.
func (s *TokenStore) Clear() {
	s.Set(Tokens{})
}

var errNoRefreshToken = errors.New("no refresh token")

// Login exchanges credentials for tokens and stores them. When the client has
// a TOTP secret the current one-time code is sent along.
func (c *Client) Login(ctx context.Context, nickname, password string) (Tokens, error) {
	body := map[string]string{"nickname": nickname, "password": password}
	if c.totpSecret != "" {
		code, err := totp.GenerateCode(c.totpSecret, time.Now())
		if err != nil {
			return Tokens{}, fmt.Errorf("api: generate one-time code: %w", err)
		}
		body["otp_code"] = code
	}

	var t Tokens
	if err := c.do(ctx, request{method: http.MethodPost, path: "/auth/login", body: body}, &t); err != nil {
		return Tokens{}, err
	}
	c.tokens.Set(t)
	log.Printf("[api] logged in as %s", nickname)
	return t, nil
}

// Refresh trades the stored refresh token for a new pair. On failure the
// store is cleared.
func (c *Client) Refresh(ctx context.Context) (Tokens, error) {
	rt := c.tokens.RefreshToken()
	if rt == "" {
		return Tokens{}, errNoRefreshToken
	}
	var t Tokens
	err := c.do(ctx, request{
		method: http.MethodPost,
		path:   "/auth/refresh",
		body:   map[string]string{"refresh_token": rt},
	}, &t)
	if err == nil && t.AccessToken == "" {
		err = errors.New("refresh response without access token")
	}
	if err != nil {
		c.tokens.Clear()
		if c.OnRefresh != nil {
			c.OnRefresh(false)
		}
		return Tokens{}, err
	}
	if t.RefreshToken == "" {
		t.RefreshToken = rt
	}
	c.tokens.Set(t)
	if c.OnRefresh != nil {
		c.OnRefresh(true)
	}
	return t, nil
}

// refreshAfter returns a usable access token after stale was rejected.
// Concurrent callers that saw the same stale token share one refresh.
func (c *Client) refreshAfter(ctx context.Context, stale string) (string, error) {
	c.refreshMu.Lock()
	defer c.refreshMu.Unlock()

	if cur := c.tokens.AccessToken(); cur != "" && cur != stale {
		return cur, nil
	}
	t, err := c.Refresh(ctx)
	if err != nil {
		return "", err
	}
	return t.AccessToken, nil
}
