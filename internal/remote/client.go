// Package remote is a typed client for the PostgREST endpoint of the
// backend-as-a-service.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"mmuni/internal/models"
	"mmuni/internal/observability"
)

// CodeNoRows is the PostgREST error code for a single-row read that matched
// nothing.
const CodeNoRows = "PGRST116"

// TokenSource yields the bearer token for the current session. An empty
// token means anonymous access with the API key.
type TokenSource interface {
	AccessToken(ctx context.Context) (string, error)
}

// TokenFunc adapts a function to TokenSource.
type TokenFunc func(ctx context.Context) (string, error)

func (f TokenFunc) AccessToken(ctx context.Context) (string, error) { return f(ctx) }

// APIError is the PostgREST error body.
type APIError struct {
	Status  int    `json:"-"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details"`
	Hint    string `json:"hint"`
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("postgrest %d %s: %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("postgrest %d: %s", e.Status, e.Message)
}

// Client talks to {baseURL}/rest/v1.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	tokens     TokenSource
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.httpClient = h }
}

// WithTokenSource attaches the session token source.
func WithTokenSource(ts TokenSource) Option {
	return func(c *Client) { c.tokens = ts }
}

// New creates a Client for the project at baseURL using apiKey.
func New(baseURL, apiKey string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type request struct {
	method  string
	table   string
	query   url.Values
	body    any
	headers map[string]string
}

func (c *Client) do(ctx context.Context, r request) ([]byte, error) {
	ctx, span := observability.StartClientSpan(ctx, "postgrest."+strings.ToLower(r.method),
		attribute.String("db.table", r.table))
	var err error
	defer func() { observability.EndSpan(span, err) }()

	var body io.Reader
	if r.body != nil {
		raw, merr := json.Marshal(r.body)
		if merr != nil {
			err = fmt.Errorf("failed to marshal %s payload: %w", r.table, merr)
			return nil, err
		}
		body = bytes.NewReader(raw)
	}

	endpoint := c.baseURL + "/rest/v1/" + url.PathEscape(r.table)
	if len(r.query) > 0 {
		endpoint += "?" + r.query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, r.method, endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("apikey", c.apiKey)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	token := c.apiKey
	if c.tokens != nil {
		t, terr := c.tokens.AccessToken(ctx)
		if terr != nil {
			err = models.NewUnauthorizedError("session token unavailable")
			return nil, err
		}
		if t != "" {
			token = t
		}
	}
	req.Header.Set("Authorization", "Bearer "+token)
	for k, v := range r.headers {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		err = models.NewRemoteError(fmt.Sprintf("%s %s failed", r.method, r.table), err)
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		err = models.NewRemoteError("failed to read response", err)
		return nil, err
	}

	if resp.StatusCode >= 300 {
		apiErr := &APIError{Status: resp.StatusCode}
		if jerr := json.Unmarshal(raw, apiErr); jerr != nil || apiErr.Message == "" {
			apiErr.Message = strings.TrimSpace(string(raw))
		}
		err = classify(r.table, apiErr)
		return nil, err
	}
	return raw, nil
}

func classify(table string, apiErr *APIError) error {
	switch {
	case apiErr.Code == CodeNoRows:
		return &models.AppError{Code: models.CodeNotFound, Message: table + " row not found", Err: apiErr}
	case apiErr.Status == http.StatusUnauthorized:
		return &models.AppError{Code: models.CodeUnauth, Message: "not authorized", Err: apiErr}
	case apiErr.Status == http.StatusForbidden:
		return &models.AppError{Code: models.CodeForbidden, Message: "row-level security rejected the request", Err: apiErr}
	default:
		return models.NewRemoteError(fmt.Sprintf("%s request failed", table), apiErr)
	}
}
