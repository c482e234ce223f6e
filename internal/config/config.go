// Package config provides application configuration loading and management.
package config

import (
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds configuration values for the companion backend and the client
// core, loaded from file or environment variables.
type Config struct {
	Port           string `mapstructure:"PORT"`
	Env            string `mapstructure:"APP_ENV"`
	AllowedOrigins string `mapstructure:"ALLOWED_ORIGINS"`
	RedisURL       string `mapstructure:"REDIS_URL"`

	WeatherAPIURL string `mapstructure:"WEATHER_API_URL"`
	WeatherAPIKey string `mapstructure:"WEATHER_API_KEY"`
	AIAPIURL      string `mapstructure:"AI_API_URL"`
	AIAPIKey      string `mapstructure:"AI_API_KEY"`

	SupabaseURL        string `mapstructure:"SUPABASE_URL"`
	SupabaseAnonKey    string `mapstructure:"SUPABASE_ANON_KEY"`
	SupabaseServiceKey string `mapstructure:"SUPABASE_SERVICE_KEY"`
	SupabaseJWTSecret  string `mapstructure:"SUPABASE_JWT_SECRET"`
	DatabaseURL        string `mapstructure:"DATABASE_URL"`

	BackendURL             string        `mapstructure:"BACKEND_URL"`
	LocalStorePath         string        `mapstructure:"LOCAL_STORE_PATH"`
	DefaultLocale          string        `mapstructure:"DEFAULT_LOCALE"`
	QueryStaleTime         time.Duration `mapstructure:"QUERY_STALE_TIME"`
	QueryRetry             int           `mapstructure:"QUERY_RETRY"`
	ProfileConfirmAttempts int           `mapstructure:"PROFILE_CONFIRM_ATTEMPTS"`
	FeatureFlags           string        `mapstructure:"FEATURE_FLAGS"`

	TracingEnabled  bool    `mapstructure:"TRACING_ENABLED"`
	TracingExporter string  `mapstructure:"TRACING_EXPORTER"`
	OTLPEndpoint    string  `mapstructure:"OTLP_ENDPOINT"`
	TracingSampler  float64 `mapstructure:"TRACING_SAMPLER"`
}

// LoadConfig loads application configuration from .env, config files and
// environment variables.
func LoadConfig() (*Config, error) {
	// A missing .env file is the normal case outside local development.
	_ = godotenv.Load()

	viper.AddConfigPath(".")
	viper.AddConfigPath("..")
	viper.AddConfigPath("../..")
	viper.SetConfigName("config")
	viper.SetConfigType("yml")
	viper.AutomaticEnv()

	// We intentionally ignore this error as the config file may not exist yet
	_ = viper.ReadInConfig()

	env := viper.GetString("APP_ENV")
	if env == "" {
		env = "development"
	}

	if env != "development" && env != "test" {
		viper.SetConfigName("config." + env)
		if err := viper.MergeInConfig(); err != nil {
			return nil, fmt.Errorf("required profile-specific config 'config.%s.yml' not found: %w", env, err)
		}
		log.Printf("Loaded profile-specific configuration: config.%s.yml", env)
	}

	setDefaults()

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config into struct: %w", err)
	}
	config.normalize()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

func setDefaults() {
	viper.SetDefault("PORT", "8001")
	viper.SetDefault("APP_ENV", "development")
	viper.SetDefault("ALLOWED_ORIGINS", "*")
	viper.SetDefault("REDIS_URL", "localhost:6379")
	viper.SetDefault("WEATHER_API_URL", "https://api.openweathermap.org/")
	viper.SetDefault("WEATHER_API_KEY", "")
	viper.SetDefault("AI_API_URL", "")
	viper.SetDefault("AI_API_KEY", "")
	viper.SetDefault("SUPABASE_URL", "")
	viper.SetDefault("SUPABASE_ANON_KEY", "")
	viper.SetDefault("SUPABASE_SERVICE_KEY", "")
	viper.SetDefault("SUPABASE_JWT_SECRET", "")
	viper.SetDefault("DATABASE_URL", "")
	viper.SetDefault("BACKEND_URL", "http://localhost:8001")
	viper.SetDefault("LOCAL_STORE_PATH", "mmuni.db")
	viper.SetDefault("DEFAULT_LOCALE", "en")
	viper.SetDefault("QUERY_STALE_TIME", 5*time.Minute)
	viper.SetDefault("QUERY_RETRY", 2)
	viper.SetDefault("PROFILE_CONFIRM_ATTEMPTS", 5)
	viper.SetDefault("FEATURE_FLAGS", "")
	viper.SetDefault("TRACING_ENABLED", false)
	viper.SetDefault("TRACING_EXPORTER", "stdout")
	viper.SetDefault("OTLP_ENDPOINT", "localhost:4318")
	viper.SetDefault("TRACING_SAMPLER", 1.0)
}

func (c *Config) normalize() {
	c.Env = strings.ToLower(strings.TrimSpace(c.Env))
	c.SupabaseURL = strings.TrimRight(strings.TrimSpace(c.SupabaseURL), "/")
	c.AIAPIURL = strings.TrimRight(strings.TrimSpace(c.AIAPIURL), "/")
	c.BackendURL = strings.TrimRight(strings.TrimSpace(c.BackendURL), "/")
	c.DefaultLocale = strings.ToLower(strings.TrimSpace(c.DefaultLocale))
	if c.WeatherAPIURL != "" && !strings.HasSuffix(c.WeatherAPIURL, "/") {
		c.WeatherAPIURL += "/"
	}
}

// IsProduction reports whether APP_ENV names a production profile.
func (c *Config) IsProduction() bool {
	return c.Env == "production" || c.Env == "prod"
}

// HasPrivilegedWriter reports whether profile writes can bypass row-level
// security, either through the service key or a direct database connection.
func (c *Config) HasPrivilegedWriter() bool {
	return c.DatabaseURL != "" || (c.SupabaseURL != "" && c.SupabaseServiceKey != "")
}

// Validate ensures that required configuration values are present.
func (c *Config) Validate() error {
	if c.Port == "" {
		return errors.New("PORT is required")
	}
	if c.QueryRetry < 0 {
		return errors.New("QUERY_RETRY must not be negative")
	}
	if c.QueryStaleTime < 0 {
		return errors.New("QUERY_STALE_TIME must not be negative")
	}
	if c.ProfileConfirmAttempts < 1 {
		return errors.New("PROFILE_CONFIRM_ATTEMPTS must be at least 1")
	}

	if c.IsProduction() {
		if !c.HasPrivilegedWriter() {
			return errors.New("SUPABASE_SERVICE_KEY or DATABASE_URL is required in production")
		}
		if c.AllowedOrigins == "*" {
			log.Println("WARNING: ALLOWED_ORIGINS is set to '*' in production. This is insecure.")
		}
		if c.SupabaseJWTSecret == "" {
			log.Println("WARNING: SUPABASE_JWT_SECRET is empty; profile updates are not bound to a session.")
		}
	}

	return nil
}
