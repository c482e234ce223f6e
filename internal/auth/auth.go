// Package auth manages the authenticated session against the hosted auth
// service and publishes auth state changes.
package auth

import (
	"context"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// EventType names an auth state change.
type EventType string

const (
	EventInitialSession EventType = "INITIAL_SESSION"
	EventSignedIn       EventType = "SIGNED_IN"
	EventSignedOut      EventType = "SIGNED_OUT"
	EventTokenRefreshed EventType = "TOKEN_REFRESHED"
	EventUserUpdated    EventType = "USER_UPDATED"
)

// Identity is the auth-side account, distinct from the `user` profile row.
type Identity struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// Session is an authenticated session.
type Session struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresAt    time.Time `json:"expires_at"`
	User         Identity  `json:"user"`
}

// Expired reports whether the access token expires within margin of now.
func (s *Session) Expired(now time.Time, margin time.Duration) bool {
	return !s.ExpiresAt.IsZero() && now.Add(margin).After(s.ExpiresAt)
}

// Event is delivered to subscribers. Session is nil for sign-out and for an
// initial state without a stored session.
type Event struct {
	Type    EventType
	Session *Session
}

// Provider is the auth surface the client depends on.
type Provider interface {
	SignIn(ctx context.Context, email, password string) (*Session, error)
	SignUp(ctx context.Context, email, password string) (*Identity, *Session, error)
	SignOut(ctx context.Context) error
	Restore(ctx context.Context) (*Session, error)
	UpdatePassword(ctx context.Context, password string) error
	Current() *Session
	AccessToken(ctx context.Context) (string, error)
	Subscribe(fn func(Event)) func()
}

// tokenExpiry reads the exp claim without verifying the signature; the
// token is only used as a bearer credential here.
func tokenExpiry(token string) (time.Time, bool) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return time.Time{}, false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}
	return exp.Time, true
}
