package upstream

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"mmuni/internal/models"
)

const weatherTimeout = 15 * time.Second

// WeatherClient fetches current conditions from an OpenWeather-compatible
// API.
type WeatherClient struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

// NewWeatherClient creates a WeatherClient. baseURL ends with a slash.
func NewWeatherClient(baseURL, apiKey string, hc *http.Client) *WeatherClient {
	if hc == nil {
		hc = http.DefaultClient
	}
	return &WeatherClient{baseURL: baseURL, apiKey: apiKey, http: hc}
}

// Current returns the provider's payload for lat/lng in metric units.
func (c *WeatherClient) Current(ctx context.Context, lat, lng float64) (json.RawMessage, error) {
	q := url.Values{}
	q.Set("lat", strconv.FormatFloat(lat, 'f', -1, 64))
	q.Set("lon", strconv.FormatFloat(lng, 'f', -1, 64))
	q.Set("appid", c.apiKey)
	q.Set("units", "metric")

	raw, err := do(ctx, c.http, call{
		upstream: "weather",
		method:   http.MethodGet,
		url:      c.baseURL + "data/2.5/weather?" + q.Encode(),
		timeout:  weatherTimeout,
	})
	if err != nil {
		return nil, err
	}
	if !json.Valid(raw) {
		return nil, models.NewDecodeError("weather", errInvalidJSON)
	}
	return json.RawMessage(raw), nil
}
