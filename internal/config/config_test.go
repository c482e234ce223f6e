package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	return &Config{
		Port:                   "8001",
		Env:                    "development",
		QueryStaleTime:         5 * time.Minute,
		QueryRetry:             2,
		ProfileConfirmAttempts: 5,
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name        string
		mutate      func(*Config)
		expectError bool
	}{
		{"development defaults", func(*Config) {}, false},
		{"missing port", func(c *Config) { c.Port = "" }, true},
		{"negative retry", func(c *Config) { c.QueryRetry = -1 }, true},
		{"zero confirm attempts", func(c *Config) { c.ProfileConfirmAttempts = 0 }, true},
		{"production without privileged writer", func(c *Config) { c.Env = "production" }, true},
		{"production with service key", func(c *Config) {
			c.Env = "production"
			c.SupabaseURL = "https://x.supabase.co"
			c.SupabaseServiceKey = "service"
		}, false},
		{"prod with database url", func(c *Config) {
			c.Env = "prod"
			c.DatabaseURL = "postgres://localhost/mmuni"
		}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := validConfig()
			tt.mutate(c)

			err := c.Validate()
			if tt.expectError {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestLoadConfig_EnvironmentOverrides(t *testing.T) {
	defer viper.Reset()

	t.Setenv("APP_ENV", "test")
	t.Setenv("SUPABASE_URL", " https://demo.supabase.co/ ")
	t.Setenv("DEFAULT_LOCALE", "RU")
	t.Setenv("WEATHER_API_URL", "https://weather.example")

	c, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "https://demo.supabase.co", c.SupabaseURL)
	assert.Equal(t, "ru", c.DefaultLocale)
	assert.Equal(t, "https://weather.example/", c.WeatherAPIURL)
	assert.Equal(t, 5*time.Minute, c.QueryStaleTime)
	assert.Equal(t, 2, c.QueryRetry)
}
