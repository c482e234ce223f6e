package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"mmuni/internal/models"
	"mmuni/internal/observability"
	"mmuni/internal/storage"
)

// SessionKey is the device storage key of the persisted session.
const SessionKey = "mmuni-auth"

// GoTrueClient implements Provider over the GoTrue REST API at
// {baseURL}/auth/v1.
type GoTrueClient struct {
	baseURL       string
	apiKey        string
	httpClient    *http.Client
	storage       storage.Storage
	now           func() time.Time
	refreshMargin time.Duration
	logger        *slog.Logger

	mu      sync.Mutex
	session *Session

	lmu       sync.Mutex
	listeners map[int]func(Event)
	nextID    int
}

// GoTrueOption configures a GoTrueClient.
type GoTrueOption func(*GoTrueClient)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(h *http.Client) GoTrueOption {
	return func(c *GoTrueClient) { c.httpClient = h }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) GoTrueOption {
	return func(c *GoTrueClient) { c.now = now }
}

// NewGoTrueClient creates a client persisting its session in st.
func NewGoTrueClient(baseURL, apiKey string, st storage.Storage, opts ...GoTrueOption) *GoTrueClient {
	c := &GoTrueClient{
		baseURL:       strings.TrimRight(baseURL, "/"),
		apiKey:        apiKey,
		httpClient:    &http.Client{Timeout: 30 * time.Second},
		storage:       st,
		now:           time.Now,
		refreshMargin: time.Minute,
		logger:        observability.Logger,
		listeners:     make(map[int]func(Event)),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type tokenResponse struct {
	AccessToken  string   `json:"access_token"`
	RefreshToken string   `json:"refresh_token"`
	ExpiresIn    int64    `json:"expires_in"`
	ExpiresAt    int64    `json:"expires_at"`
	User         Identity `json:"user"`

	// Sign-up without auto-confirmation returns the bare user.
	ID    string `json:"id"`
	Email string `json:"email"`
}

// ErrInvalidCredentials is wrapped by sign-in rejections for a wrong
// email or password, or an unconfirmed email.
var ErrInvalidCredentials = errors.New("invalid credentials")

type errorResponse struct {
	Error            string `json:"error"`
	ErrorCode        string `json:"error_code"`
	ErrorDescription string `json:"error_description"`
	Msg              string `json:"msg"`
	Message          string `json:"message"`
}

func (e errorResponse) text() string {
	for _, s := range []string{e.ErrorDescription, e.Msg, e.Message, e.Error} {
		if s != "" {
			return s
		}
	}
	return ""
}

// classify maps a GoTrue error reply onto an AppError. Older servers
// report bad credentials as error=invalid_grant, newer ones through
// error_code.
func classify(status int, e errorResponse, msg string) error {
	switch {
	case e.ErrorCode == "invalid_credentials" || e.ErrorCode == "email_not_confirmed" || e.Error == "invalid_grant":
		return &models.AppError{Code: models.CodeUnauth, Message: msg, Err: ErrInvalidCredentials}
	case status == http.StatusBadRequest || status == http.StatusUnauthorized || status == http.StatusForbidden:
		return models.NewUnauthorizedError(msg)
	case status == http.StatusUnprocessableEntity:
		return models.NewValidationError(msg)
	}
	return models.NewRemoteError(msg, fmt.Errorf("auth status %d", status))
}

func (c *GoTrueClient) call(ctx context.Context, method, path, bearer string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal auth request: %w", err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+"/auth/v1"+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("apikey", c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	if bearer == "" {
		bearer = c.apiKey
	}
	req.Header.Set("Authorization", "Bearer "+bearer)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return models.NewRemoteError("auth request failed", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return models.NewRemoteError("failed to read auth response", err)
	}

	if resp.StatusCode >= 300 {
		var e errorResponse
		_ = json.Unmarshal(raw, &e)
		msg := e.text()
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return classify(resp.StatusCode, e, msg)
	}

	if out != nil && len(raw) > 0 {
		if err := json.Unmarshal(raw, out); err != nil {
			return models.NewDecodeError("auth", err)
		}
	}
	return nil
}

func (c *GoTrueClient) toSession(tr tokenResponse) *Session {
	s := &Session{
		AccessToken:  tr.AccessToken,
		RefreshToken: tr.RefreshToken,
		User:         tr.User,
	}
	if exp, ok := tokenExpiry(tr.AccessToken); ok {
		s.ExpiresAt = exp
	} else if tr.ExpiresAt > 0 {
		s.ExpiresAt = time.Unix(tr.ExpiresAt, 0)
	} else if tr.ExpiresIn > 0 {
		s.ExpiresAt = c.now().Add(time.Duration(tr.ExpiresIn) * time.Second)
	}
	return s
}

// SignIn authenticates with email and password.
func (c *GoTrueClient) SignIn(ctx context.Context, email, password string) (*Session, error) {
	var tr tokenResponse
	body := map[string]string{"email": email, "password": password}
	if err := c.call(ctx, http.MethodPost, "/token?grant_type=password", "", body, &tr); err != nil {
		return nil, err
	}
	if tr.AccessToken == "" {
		return nil, models.NewUnauthorizedError("no session returned")
	}
	s := c.toSession(tr)
	c.setSession(ctx, s)
	c.emit(Event{Type: EventSignedIn, Session: s})
	return s, nil
}

// SignUp registers an account. The session is nil when the service
// requires email confirmation first.
func (c *GoTrueClient) SignUp(ctx context.Context, email, password string) (*Identity, *Session, error) {
	var tr tokenResponse
	body := map[string]string{"email": email, "password": password}
	if err := c.call(ctx, http.MethodPost, "/signup", "", body, &tr); err != nil {
		return nil, nil, err
	}

	ident := tr.User
	if ident.ID == "" {
		ident = Identity{ID: tr.ID, Email: tr.Email}
	}
	if ident.ID == "" {
		return nil, nil, models.NewDecodeError("auth", errors.New("sign-up returned no user id"))
	}
	if tr.AccessToken == "" {
		return &ident, nil, nil
	}

	tr.User = ident
	s := c.toSession(tr)
	c.setSession(ctx, s)
	c.emit(Event{Type: EventSignedIn, Session: s})
	return &ident, s, nil
}

// SignOut revokes the session remotely and always clears it locally.
func (c *GoTrueClient) SignOut(ctx context.Context) error {
	c.mu.Lock()
	s := c.session
	c.mu.Unlock()

	var err error
	if s != nil {
		err = c.call(ctx, http.MethodPost, "/logout", s.AccessToken, nil, nil)
		if err != nil {
			c.logger.WarnContext(ctx, "remote sign-out failed", slog.String("error", err.Error()))
		}
	}
	c.setSession(ctx, nil)
	c.emit(Event{Type: EventSignedOut})
	return err
}

// Restore loads the stored session, refreshing it when expired. It emits
// EventInitialSession either way and returns nil when there is none.
func (c *GoTrueClient) Restore(ctx context.Context) (*Session, error) {
	s := c.loadStored(ctx)
	if s != nil && s.Expired(c.now(), c.refreshMargin) {
		refreshed, err := c.refresh(ctx, s.RefreshToken)
		if err != nil {
			c.logger.WarnContext(ctx, "stored session could not be refreshed", slog.String("error", err.Error()))
			c.setSession(ctx, nil)
			s = nil
		} else {
			s = refreshed
		}
	}

	if s != nil {
		c.mu.Lock()
		c.session = s
		c.mu.Unlock()
	}
	c.emit(Event{Type: EventInitialSession, Session: s})
	return s, nil
}

func (c *GoTrueClient) loadStored(ctx context.Context) *Session {
	raw, ok, err := c.storage.Get(ctx, SessionKey)
	if err != nil {
		c.logger.WarnContext(ctx, "failed to read stored session", slog.String("error", err.Error()))
		return nil
	}
	if !ok {
		return nil
	}
	var s Session
	if err := json.Unmarshal([]byte(raw), &s); err != nil || s.AccessToken == "" {
		return nil
	}
	return &s
}

func (c *GoTrueClient) refresh(ctx context.Context, refreshToken string) (*Session, error) {
	if refreshToken == "" {
		return nil, models.NewUnauthorizedError("no refresh token")
	}
	var tr tokenResponse
	body := map[string]string{"refresh_token": refreshToken}
	if err := c.call(ctx, http.MethodPost, "/token?grant_type=refresh_token", "", body, &tr); err != nil {
		return nil, err
	}
	s := c.toSession(tr)
	c.setSession(ctx, s)
	return s, nil
}

// UpdatePassword changes the signed-in user's password.
func (c *GoTrueClient) UpdatePassword(ctx context.Context, password string) error {
	token, err := c.AccessToken(ctx)
	if err != nil {
		return err
	}
	if token == "" {
		return models.NewUnauthorizedError("not signed in")
	}
	if err := c.call(ctx, http.MethodPut, "/user", token, map[string]string{"password": password}, nil); err != nil {
		return err
	}
	c.emit(Event{Type: EventUserUpdated, Session: c.Current()})
	return nil
}

// Current returns the active session, or nil.
func (c *GoTrueClient) Current() *Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == nil {
		return nil
	}
	s := *c.session
	return &s
}

// AccessToken returns the bearer token, refreshing it when close to
// expiry. An empty token means no session.
func (c *GoTrueClient) AccessToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	s := c.session
	c.mu.Unlock()
	if s == nil {
		return "", nil
	}
	if !s.Expired(c.now(), c.refreshMargin) {
		return s.AccessToken, nil
	}

	refreshed, err := c.refresh(ctx, s.RefreshToken)
	if err != nil {
		c.setSession(ctx, nil)
		c.emit(Event{Type: EventSignedOut})
		return "", err
	}
	c.emit(Event{Type: EventTokenRefreshed, Session: refreshed})
	return refreshed.AccessToken, nil
}

func (c *GoTrueClient) setSession(ctx context.Context, s *Session) {
	c.mu.Lock()
	c.session = s
	c.mu.Unlock()

	if s == nil {
		if err := c.storage.Remove(ctx, SessionKey); err != nil {
			c.logger.WarnContext(ctx, "failed to remove stored session", slog.String("error", err.Error()))
		}
		return
	}
	raw, err := json.Marshal(s)
	if err != nil {
		return
	}
	if err := c.storage.Set(ctx, SessionKey, string(raw)); err != nil {
		c.logger.WarnContext(ctx, "failed to store session", slog.String("error", err.Error()))
	}
}

// Subscribe registers fn for auth events. The returned func unsubscribes.
func (c *GoTrueClient) Subscribe(fn func(Event)) func() {
	c.lmu.Lock()
	id := c.nextID
	c.nextID++
	c.listeners[id] = fn
	c.lmu.Unlock()

	return func() {
		c.lmu.Lock()
		delete(c.listeners, id)
		c.lmu.Unlock()
	}
}

func (c *GoTrueClient) emit(e Event) {
	c.lmu.Lock()
	fns := make([]func(Event), 0, len(c.listeners))
	for _, fn := range c.listeners {
		fns = append(fns, fn)
	}
	c.lmu.Unlock()

	for _, fn := range fns {
		fn(e)
	}
}
