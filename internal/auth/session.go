// Package auth carries the caller's Drive credentials through the core.
// The access token is obtained elsewhere; this package only holds it,
// hands it to the Drive client and refreshes it on request.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/cwoolley/playbook/internal/domain"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	drive "google.golang.org/api/drive/v3"
)

// ErrRefreshUnavailable signals that a session cannot be refreshed.
var ErrRefreshUnavailable = errors.New("token refresh unavailable")

// RefreshTokenHeader optionally carries a refresh token alongside the bearer token.
const RefreshTokenHeader = "X-Refresh-Token"

// Refresher exchanges a refresh token for a new access token.
type Refresher interface {
	Refresh(ctx context.Context, refreshToken string) (*oauth2.Token, error)
}

// OAuthRefresher refreshes tokens against an OAuth2 token endpoint.
type OAuthRefresher struct {
	Config *oauth2.Config
}

// NewGoogleRefresher returns a refresher for Google-issued Drive tokens, or
// nil when no client credentials are configured.
func NewGoogleRefresher(clientID, clientSecret string) Refresher {
	if clientID == "" || clientSecret == "" {
		return nil
	}
	return &OAuthRefresher{Config: &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		Scopes:       []string{drive.DriveReadonlyScope},
		Endpoint:     google.Endpoint,
	}}
}

func (r *OAuthRefresher) Refresh(ctx context.Context, refreshToken string) (*oauth2.Token, error) {
	if refreshToken == "" {
		return nil, fmt.Errorf("%w: no refresh token", ErrRefreshUnavailable)
	}
	tok, err := r.Config.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken}).Token()
	if err != nil {
		return nil, fmt.Errorf("refresh access token: %w", err)
	}
	return tok, nil
}

// Session holds one caller's token. It is safe for concurrent use and
// implements oauth2.TokenSource so Drive requests always see the latest token.
type Session struct {
	mu        sync.RWMutex
	token     *oauth2.Token
	refresher Refresher
	onRefresh func(*oauth2.Token)
}

// NewSession wraps tok. refresher may be nil.
func NewSession(tok *oauth2.Token, refresher Refresher) *Session {
	if tok == nil {
		tok = &oauth2.Token{}
	}
	if tok.TokenType == "" {
		tok.TokenType = "Bearer"
	}
	return &Session{token: tok, refresher: refresher}
}

// FromRequest builds a session from the Authorization bearer header and the
// optional refresh token header.
func FromRequest(r *http.Request, refresher Refresher) (*Session, error) {
	h := r.Header.Get("Authorization")
	access := strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
	if h == "" || access == "" || access == h {
		return nil, domain.ErrNoToken
	}
	return NewSession(&oauth2.Token{
		AccessToken:  access,
		RefreshToken: r.Header.Get(RefreshTokenHeader),
	}, refresher), nil
}

// OnRefresh registers fn to run after every successful refresh.
func (s *Session) OnRefresh(fn func(*oauth2.Token)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onRefresh = fn
}

// Token implements oauth2.TokenSource.
func (s *Session) Token() (*oauth2.Token, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.token.AccessToken == "" {
		return nil, domain.ErrNoToken
	}
	tok := *s.token
	return &tok, nil
}

// AccessToken returns the current access token, possibly empty.
func (s *Session) AccessToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token.AccessToken
}

// Refresh replaces the access token using the refresh token.
func (s *Session) Refresh(ctx context.Context) error {
	s.mu.RLock()
	refresher := s.refresher
	refreshToken := s.token.RefreshToken
	s.mu.RUnlock()

	if refresher == nil {
		return ErrRefreshUnavailable
	}
	tok, err := refresher.Refresh(ctx, refreshToken)
	if err != nil {
		return err
	}
	if tok.RefreshToken == "" {
		tok.RefreshToken = refreshToken
	}

	s.mu.Lock()
	s.token = tok
	fn := s.onRefresh
	s.mu.Unlock()

	if fn != nil {
		fn(tok)
	}
	return nil
}
