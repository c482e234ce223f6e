// Package server is the companion HTTP API: weather and chat proxies and
// privileged profile writes.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/ansrivas/fiberprometheus/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/helmet"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/monitor"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"mmuni/internal/cache"
	"mmuni/internal/config"
	"mmuni/internal/database"
	"mmuni/internal/middleware"
	"mmuni/internal/models"
	"mmuni/internal/observability"
	"mmuni/internal/upstream"
)

// WeatherSource returns the provider payload for a coordinate.
type WeatherSource interface {
	Current(ctx context.Context, lat, lng float64) (json.RawMessage, error)
}

// ChatSource sends one chat message upstream.
type ChatSource interface {
	Send(ctx context.Context, req models.ChatRequest) (json.RawMessage, error)
}

// Deps are the server's collaborators. Redis and DB may be nil.
type Deps struct {
	Redis    *redis.Client
	DB       *gorm.DB
	Weather  WeatherSource
	Chat     ChatSource
	Profiles upstream.ProfileWriter
}

// Server holds the API's dependencies.
type Server struct {
	config         *config.Config
	redis          *redis.Client
	db             *gorm.DB
	weather        WeatherSource
	chat           ChatSource
	profiles       upstream.ProfileWriter
	promMiddleware *fiberprometheus.FiberPrometheus
	app            *fiber.App
}

// NewServer connects Redis and, when DATABASE_URL is set, Postgres, and
// builds the upstream clients from cfg.
func NewServer(cfg *config.Config) (*Server, error) {
	cache.InitRedis(cfg.RedisURL)

	var db *gorm.DB
	if cfg.DatabaseURL != "" {
		var err error
		db, err = database.Connect(cfg)
		if err != nil {
			return nil, fmt.Errorf("database connection failed: %w", err)
		}
	}

	hc := &http.Client{Timeout: 90 * time.Second}
	deps := Deps{
		Redis:   cache.GetClient(),
		DB:      db,
		Weather: upstream.NewWeatherClient(cfg.WeatherAPIURL, cfg.WeatherAPIKey, hc),
		Chat:    upstream.NewChatClient(cfg.AIAPIURL, cfg.AIAPIKey, hc),
	}
	if db != nil {
		deps.Profiles = upstream.NewDBProfileWriter(db)
	} else {
		deps.Profiles = upstream.NewRESTProfileWriter(cfg.SupabaseURL, cfg.SupabaseServiceKey, hc)
	}
	return NewServerWithDeps(cfg, deps), nil
}

// NewServerWithDeps builds a Server from explicit collaborators.
func NewServerWithDeps(cfg *config.Config, deps Deps) *Server {
	return &Server{
		config:         cfg,
		redis:          deps.Redis,
		db:             deps.DB,
		weather:        deps.Weather,
		chat:           deps.Chat,
		profiles:       deps.Profiles,
		promMiddleware: middleware.InitMetrics("mmuni-api"),
	}
}

// App returns the Fiber app with middleware and routes installed, building
// it on first use.
func (s *Server) App() *fiber.App {
	if s.app != nil {
		return s.app
	}
	app := fiber.New(fiber.Config{
		AppName:   "MMuni API",
		BodyLimit: 1 << 20,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			var fe *fiber.Error
			if errors.As(err, &fe) {
				return c.Status(fe.Code).JSON(models.ErrorResponse{Error: fe.Message})
			}
			observability.Logger.ErrorContext(c.UserContext(), "unhandled error", slog.String("error", err.Error()))
			return models.RespondWithError(c, fiber.StatusInternalServerError, models.NewInternalError(err))
		},
	})
	s.SetupMiddleware(app)
	s.SetupRoutes(app)
	s.app = app
	return app
}

// SetupMiddleware installs the global middleware chain.
func (s *Server) SetupMiddleware(app *fiber.App) {
	app.Use(recover.New())
	app.Use(requestid.New())
	app.Use(middleware.TracingMiddleware())
	app.Use(middleware.ContextMiddleware())

	if s.promMiddleware != nil {
		app.Use(middleware.MetricsMiddleware(s.promMiddleware))
	}

	app.Use(helmet.New())
	app.Use(middleware.StructuredLogger())

	origins := s.config.AllowedOrigins
	if origins == "" {
		origins = "*"
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins: origins,
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
		AllowMethods: "GET,POST,OPTIONS",
		MaxAge:       86400,
	}))

	app.Use(limiter.New(limiter.Config{
		Max:        120,
		Expiration: time.Minute,
		Next: func(c *fiber.Ctx) bool {
			return c.Method() == fiber.MethodOptions
		},
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(models.ErrorResponse{
				Error: "Too many requests, please try again later.",
			})
		},
	}))
}

// SetupRoutes registers the API routes.
func (s *Server) SetupRoutes(app *fiber.App) {
	app.Get("/health/live", s.LivenessCheck)
	app.Get("/health/ready", s.ReadinessCheck)

	if s.promMiddleware != nil {
		s.promMiddleware.RegisterAt(app, "/metrics")
	}

	api := app.Group("/api")
	api.Get("/", s.Root)
	api.Get("/metrics/dashboard", monitor.New(monitor.Config{Title: "MMuni API Metrics"}))

	api.Get("/weather", s.GetWeather)
	api.Post("/chat", middleware.RateLimit(s.redis, 20, time.Minute, "chat"), s.Chat)

	user := api.Group("/user", middleware.SessionAuth(s.config.SupabaseJWTSecret))
	user.Post("/update-profile", middleware.RateLimit(s.redis, 10, time.Minute, "update_profile"), s.UpdateProfile)
	user.Get("/:id/exists", middleware.RateLimit(s.redis, 60, time.Minute, "user_exists"), s.UserExists)
}

// Start listens on the configured port until Shutdown.
func (s *Server) Start() error {
	observability.Logger.Info("server starting", slog.String("port", s.config.Port))
	return s.App().Listen(":" + s.config.Port)
}

// Shutdown stops the listener and releases Redis and the database.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.app != nil {
		if err := s.app.ShutdownWithContext(ctx); err != nil {
			observability.Logger.Error("error shutting down HTTP server", slog.String("error", err.Error()))
		}
	}
	if s.db != nil {
		if err := database.Close(s.db); err != nil {
			observability.Logger.Error("error closing database", slog.String("error", err.Error()))
		}
	}
	if s.redis != nil {
		if err := s.redis.Close(); err != nil {
			observability.Logger.Error("error closing redis", slog.String("error", err.Error()))
		}
	}
	observability.Logger.Info("server shutdown complete")
	return nil
}
