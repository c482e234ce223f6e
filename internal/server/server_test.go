package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mmuni/internal/apiclient"
	"mmuni/internal/config"
	"mmuni/internal/models"
	"mmuni/internal/upstream"
)

type fakeWeather struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (f *fakeWeather) Current(_ context.Context, lat, lng float64) (json.RawMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return json.RawMessage(`{"name":"Tver","main":{"temp":4.2,"feels_like":1.0,"humidity":80},"weather":[{"id":800,"main":"Clear","description":"clear sky","icon":"01d"}],"cod":200}`), nil
}

func (f *fakeWeather) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeChat struct {
	got models.ChatRequest
	err error
}

func (f *fakeChat) Send(_ context.Context, req models.ChatRequest) (json.RawMessage, error) {
	f.got = req
	if f.err != nil {
		return nil, f.err
	}
	return json.RawMessage(`{"answer":"re: ` + req.Query + `","conversation_id":"c1","message_id":"m1"}`), nil
}

type fakeProfiles struct {
	mu      sync.Mutex
	updates []models.ProfileUpdate
	rows    map[string]bool
	err     error
}

func (f *fakeProfiles) UpdateProfile(_ context.Context, u models.ProfileUpdate) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.updates = append(f.updates, u)
	return nil
}

func (f *fakeProfiles) UserExists(_ context.Context, id string) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	return f.rows[id], nil
}

type fixture struct {
	mr       *miniredis.Miniredis
	weather  *fakeWeather
	chat     *fakeChat
	profiles *fakeProfiles
	srv      *Server
}

func newFixture(t *testing.T, cfg *config.Config) *fixture {
	t.Helper()
	t.Setenv("APP_ENV", "test")

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	if cfg == nil {
		cfg = &config.Config{Port: "0", AllowedOrigins: "*"}
	}
	f := &fixture{
		mr:       mr,
		weather:  &fakeWeather{},
		chat:     &fakeChat{},
		profiles: &fakeProfiles{rows: map[string]bool{"u1": true}},
	}
	f.srv = NewServerWithDeps(cfg, Deps{
		Redis:    rdb,
		Weather:  f.weather,
		Chat:     f.chat,
		Profiles: f.profiles,
	})
	return f
}

func (f *fixture) do(t *testing.T, method, path, body string, header ...string) (*http.Response, map[string]any) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	resp, err := f.srv.App().Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]any
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if len(raw) > 0 {
		_ = json.Unmarshal(raw, &out)
	}
	return resp, out
}

func TestRoot(t *testing.T) {
	f := newFixture(t, nil)
	resp, body := f.do(t, http.MethodGet, "/api/", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "MMuni API", body["message"])
	assert.Equal(t, "ok", body["status"])
	assert.NotEmpty(t, resp.Header.Get(fiber.HeaderXRequestID))
}

func TestWeather_ValidatesCoordinates(t *testing.T) {
	f := newFixture(t, nil)
	for _, q := range []string{"", "?lat=1", "?lat=abc&lng=1", "?lat=91&lng=1", "?lat=1&lng=-181"} {
		resp, body := f.do(t, http.MethodGet, "/api/weather"+q, "")
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, q)
		assert.Equal(t, models.CodeValidation, body["code"], q)
	}
	assert.Zero(t, f.weather.Calls())
}

func TestWeather_ProxiesAndCaches(t *testing.T) {
	f := newFixture(t, nil)

	resp, body := f.do(t, http.MethodGet, "/api/weather?lat=56.8612&lng=35.9001", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Tver", body["name"])
	assert.EqualValues(t, 200, body["cod"], "payload is passed through")

	resp, _ = f.do(t, http.MethodGet, "/api/weather?lat=56.8598&lng=35.8999", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 1, f.weather.Calls(), "nearby coordinates share a cache entry")
	assert.True(t, f.mr.Exists("weather:56.86:35.90"))

	f.mr.FastForward(11 * time.Minute)
	f.do(t, http.MethodGet, "/api/weather?lat=56.86&lng=35.9", "")
	assert.Equal(t, 2, f.weather.Calls())
}

func TestWeather_UpstreamFailure(t *testing.T) {
	f := newFixture(t, nil)
	f.weather.err = &upstream.StatusError{Upstream: "weather", Status: 401, Body: "Invalid API key"}

	resp, body := f.do(t, http.MethodGet, "/api/weather?lat=1&lng=2", "")
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
	assert.Equal(t, "Weather unavailable", body["error"])
	assert.False(t, f.mr.Exists("weather:1.00:2.00"))
}

func TestChat(t *testing.T) {
	f := newFixture(t, nil)

	resp, body := f.do(t, http.MethodPost, "/api/chat", `{"query":"  hello ","conversation_id":"c0","user":"u1"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "re: hello", body["answer"])
	assert.Equal(t, "m1", body["message_id"])
	assert.Equal(t, models.ChatRequest{Query: "hello", ConversationID: "c0", User: "u1"}, f.chat.got)

	resp, body = f.do(t, http.MethodPost, "/api/chat", `{"query":"   "}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "query is required", body["error"])

	resp, _ = f.do(t, http.MethodPost, "/api/chat", `not json`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	f.chat.err = errors.New("chat unreachable")
	resp, body = f.do(t, http.MethodPost, "/api/chat", `{"query":"hi"}`)
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
	assert.Equal(t, "chat unreachable", body["error"])
}

func TestUpdateProfile(t *testing.T) {
	f := newFixture(t, nil)

	resp, body := f.do(t, http.MethodPost, "/api/user/update-profile", `{"user_id":"u1","user_mun":"m1","user_name":"Ann"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["success"])
	require.Len(t, f.profiles.updates, 1)
	got := f.profiles.updates[0]
	assert.Equal(t, "u1", got.UserID)
	require.NotNil(t, got.MunicipalityID)
	assert.Equal(t, "m1", *got.MunicipalityID)
	assert.Nil(t, got.Email)

	tests := []struct {
		name   string
		body   string
		status int
		errMsg string
	}{
		{name: "missing user id", body: `{"user_name":"Ann"}`, status: http.StatusBadRequest, errMsg: "user_id is required"},
		{name: "bad role", body: `{"user_id":"u1","user_role":"emperor"}`, status: http.StatusBadRequest, errMsg: "invalid user_role"},
		{name: "malformed body", body: `{`, status: http.StatusBadRequest, errMsg: "invalid request body"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := f.do(t, http.MethodPost, "/api/user/update-profile", tt.body)
			assert.Equal(t, tt.status, resp.StatusCode)
			assert.Equal(t, false, body["success"])
			assert.Equal(t, tt.errMsg, body["error"])
		})
	}
}

func TestUpdateProfile_WriterFailures(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		errMsg string
	}{
		{name: "not configured", err: upstream.ErrNotConfigured, errMsg: "Server configuration error"},
		{name: "rejected", err: &upstream.StatusError{Upstream: "profile", Status: 400, Body: `{"message":"bad enum"}`}, errMsg: `{"message":"bad enum"}`},
		{name: "other", err: errors.New("connection reset"), errMsg: "connection reset"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, nil)
			f.profiles.err = tt.err

			resp, body := f.do(t, http.MethodPost, "/api/user/update-profile", `{"user_id":"u1"}`)
			assert.Equal(t, http.StatusOK, resp.StatusCode)
			assert.Equal(t, false, body["success"])
			assert.Equal(t, tt.errMsg, body["error"])
		})
	}
}

func TestUpdateProfile_NoWriter(t *testing.T) {
	t.Setenv("APP_ENV", "test")
	srv := NewServerWithDeps(&config.Config{}, Deps{})

	req := httptest.NewRequest(http.MethodPost, "/api/user/update-profile", strings.NewReader(`{"user_id":"u1"}`))
	req.Header.Set("Content-Type", "application/json")
	resp, err := srv.App().Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var res models.ProfileResult
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&res))
	assert.False(t, res.Success)
	assert.Equal(t, "Server configuration error", res.Error)
}

func TestUpdateProfile_SessionBinding(t *testing.T) {
	const secret = "jwt-secret-for-tests-0123456789abcdef"
	f := newFixture(t, &config.Config{SupabaseJWTSecret: secret})

	token := func(sub string) string {
		s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
			"sub": sub,
			"exp": time.Now().Add(time.Hour).Unix(),
		}).SignedString([]byte(secret))
		require.NoError(t, err)
		return "Bearer " + s
	}

	resp, _ := f.do(t, http.MethodPost, "/api/user/update-profile", `{"user_id":"u1"}`, "Authorization", token("u1"))
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body := f.do(t, http.MethodPost, "/api/user/update-profile", `{"user_id":"u1"}`, "Authorization", token("u2"))
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Equal(t, false, body["success"])

	resp, _ = f.do(t, http.MethodPost, "/api/user/update-profile", `{"user_id":"u1"}`, "Authorization", "Bearer forged")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, _ = f.do(t, http.MethodPost, "/api/user/update-profile", `{"user_id":"u1"}`)
	assert.Equal(t, http.StatusOK, resp.StatusCode, "sign-up without a session is allowed")

	assert.Len(t, f.profiles.updates, 2)
}

func TestUpdateProfile_ElevatedGrantsNeedSession(t *testing.T) {
	const secret = "jwt-secret-for-tests-0123456789abcdef"
	f := newFixture(t, &config.Config{SupabaseJWTSecret: secret})

	tests := []struct {
		name   string
		body   string
		status int
	}{
		{name: "registered", body: `{"user_id":"u1","user_role":"registered","user_premium":false}`, status: http.StatusOK},
		{name: "activist", body: `{"user_id":"u1","user_role":"activist"}`, status: http.StatusOK},
		{name: "admin", body: `{"user_id":"u1","user_role":"admin"}`, status: http.StatusForbidden},
		{name: "superadmin", body: `{"user_id":"u1","user_role":"superadmin"}`, status: http.StatusForbidden},
		{name: "premium", body: `{"user_id":"u1","user_premium":true}`, status: http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := f.do(t, http.MethodPost, "/api/user/update-profile", tt.body)
			assert.Equal(t, tt.status, resp.StatusCode)
			assert.Equal(t, tt.status == http.StatusOK, body["success"])
		})
	}
	assert.Len(t, f.profiles.updates, 2)

	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "u1",
		"exp": time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte(secret))
	require.NoError(t, err)
	resp, _ := f.do(t, http.MethodPost, "/api/user/update-profile", `{"user_id":"u1","user_role":"admin"}`, "Authorization", "Bearer "+s)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestUserExists(t *testing.T) {
	f := newFixture(t, nil)

	resp, body := f.do(t, http.MethodGet, "/api/user/u1/exists", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["exists"])

	_, body = f.do(t, http.MethodGet, "/api/user/u9/exists", "")
	assert.Equal(t, false, body["exists"])

	f.profiles.err = upstream.ErrNotConfigured
	resp, _ = f.do(t, http.MethodGet, "/api/user/u1/exists", "")
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	f.profiles.err = errors.New("timeout")
	resp, _ = f.do(t, http.MethodGet, "/api/user/u1/exists", "")
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
}

func TestHealth(t *testing.T) {
	f := newFixture(t, nil)

	resp, body := f.do(t, http.MethodGet, "/health/live", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "up", body["status"])

	resp, body = f.do(t, http.MethodGet, "/health/ready", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	checks := body["checks"].(map[string]any)
	assert.Equal(t, "healthy", checks["redis"])
	assert.Equal(t, "disabled", checks["database"])
}

func TestHealth_RedisDown(t *testing.T) {
	t.Setenv("APP_ENV", "test")
	rdb := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", MaxRetries: -1, DialTimeout: 200 * time.Millisecond})
	t.Cleanup(func() { _ = rdb.Close() })
	srv := NewServerWithDeps(&config.Config{}, Deps{Redis: rdb})

	resp, err := srv.App().Test(httptest.NewRequest(http.MethodGet, "/health/ready", nil), -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Equal(t, "degraded", body["status"])
}

func TestMetricsEndpoint(t *testing.T) {
	f := newFixture(t, nil)
	f.do(t, http.MethodGet, "/api/", "")

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	resp, err := f.srv.App().Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	raw, _ := io.ReadAll(resp.Body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(raw), "http_requests_total")
}

func TestChat_RateLimitedInProduction(t *testing.T) {
	f := newFixture(t, nil)
	t.Setenv("APP_ENV", "production")

	var last int
	for i := 0; i < 21; i++ {
		resp, _ := f.do(t, http.MethodPost, "/api/chat", `{"query":"hi"}`)
		last = resp.StatusCode
	}
	assert.Equal(t, http.StatusTooManyRequests, last)
}

func TestClientRoundTrip(t *testing.T) {
	f := newFixture(t, nil)
	app := f.srv.App()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go func() { _ = app.Listener(ln) }()
	t.Cleanup(func() { _ = app.Shutdown() })

	client := apiclient.New("http://" + ln.Addr().String())
	ctx := context.Background()

	report, err := client.Weather(ctx, 56.86, 35.9)
	require.NoError(t, err)
	assert.Equal(t, 4.2, report.Temperature())
	_, desc := report.Condition()
	assert.Equal(t, "clear sky", desc)

	reply, err := client.Chat(ctx, models.ChatRequest{Query: "hello"})
	require.NoError(t, err)
	assert.Equal(t, "re: hello", reply.Answer)
	assert.Equal(t, "c1", reply.ConversationID)

	name := "Ann"
	require.NoError(t, client.UpdateProfile(ctx, models.ProfileUpdate{UserID: "u1", Name: &name}))

	ok, err := client.UserExists(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, ok)

	f.profiles.err = errors.New("row locked")
	err = client.UpdateProfile(ctx, models.ProfileUpdate{UserID: "u1"})
	assert.True(t, models.HasCode(err, models.CodeRemote))

	f.weather.err = errors.New("down")
	_, err = client.Weather(ctx, 10, 10)
	assert.True(t, models.HasCode(err, models.CodeRemote))
}
