// Package apiclient calls the companion backend for weather, chat and
// privileged profile writes.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"mmuni/internal/models"
	"mmuni/internal/observability"
)

// Client talks to the backend at baseURL.
type Client struct {
	baseURL    string
	httpClient *http.Client
	tokens     func(ctx context.Context) (string, error)
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.httpClient = h }
}

// WithBearer attaches the session token to profile writes.
func WithBearer(fn func(ctx context.Context) (string, error)) Option {
	return func(c *Client) { c.tokens = fn }
}

// New creates a Client.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 70 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) (int, error) {
	ctx, span := observability.StartClientSpan(ctx, "backend "+path, attribute.String("http.method", method))
	var err error
	defer func() { observability.EndSpan(span, err) }()

	var reader io.Reader
	if body != nil {
		raw, merr := json.Marshal(body)
		if merr != nil {
			err = fmt.Errorf("failed to marshal request: %w", merr)
			return 0, err
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.tokens != nil {
		if token, terr := c.tokens(ctx); terr == nil && token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		err = models.NewRemoteError("backend unreachable", err)
		return 0, err
	}
	defer resp.Body.Close()

	if out != nil {
		if derr := json.NewDecoder(resp.Body).Decode(out); derr != nil && !errors.Is(derr, io.EOF) {
			err = models.NewDecodeError("backend", derr)
			return resp.StatusCode, err
		}
	}
	return resp.StatusCode, nil
}

// Weather returns current conditions at lat/lng.
func (c *Client) Weather(ctx context.Context, lat, lng float64) (*models.WeatherReport, error) {
	q := url.Values{}
	q.Set("lat", strconv.FormatFloat(lat, 'f', -1, 64))
	q.Set("lng", strconv.FormatFloat(lng, 'f', -1, 64))

	var raw json.RawMessage
	status, err := c.do(ctx, http.MethodGet, "/api/weather?"+q.Encode(), nil, &raw)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		var e models.ErrorResponse
		_ = json.Unmarshal(raw, &e)
		return nil, models.NewRemoteError("weather unavailable", fmt.Errorf("status %d: %s", status, e.Error))
	}

	var report models.WeatherReport
	if err := json.Unmarshal(raw, &report); err != nil {
		return nil, models.NewDecodeError("weather", err)
	}
	return &report, nil
}

// Chat sends one message. An upstream failure is returned as an error
// carrying the backend's message.
func (c *Client) Chat(ctx context.Context, req models.ChatRequest) (*models.ChatResponse, error) {
	var resp models.ChatResponse
	status, err := c.do(ctx, http.MethodPost, "/api/chat", req, &resp)
	if err != nil {
		return nil, err
	}
	if resp.Error != "" || status != http.StatusOK {
		msg := resp.Error
		if msg == "" {
			msg = http.StatusText(status)
		}
		return nil, models.NewRemoteError("chat failed", errors.New(msg))
	}
	return &resp, nil
}

// UpdateProfile performs a privileged profile write.
func (c *Client) UpdateProfile(ctx context.Context, update models.ProfileUpdate) error {
	var res models.ProfileResult
	if _, err := c.do(ctx, http.MethodPost, "/api/user/update-profile", update, &res); err != nil {
		return err
	}
	if !res.Success {
		return models.NewRemoteError("profile update failed", errors.New(res.Error))
	}
	return nil
}

// UserExists reports whether the profile row for id is visible.
func (c *Client) UserExists(ctx context.Context, id string) (bool, error) {
	var res models.ExistsResponse
	status, err := c.do(ctx, http.MethodGet, "/api/user/"+url.PathEscape(id)+"/exists", nil, &res)
	if err != nil {
		return false, err
	}
	if status != http.StatusOK {
		return false, models.NewRemoteError("existence check failed", fmt.Errorf("status %d", status))
	}
	return res.Exists, nil
}
