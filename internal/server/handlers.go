package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"mmuni/internal/cache"
	"mmuni/internal/middleware"
	"mmuni/internal/models"
	"mmuni/internal/observability"
	"mmuni/internal/upstream"
)

const configErrorMessage = "Server configuration error"

var errConfig = &models.AppError{Code: models.CodeInternal, Message: configErrorMessage}

// Root identifies the API.
func (s *Server) Root(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"message": "MMuni API", "status": "ok"})
}

// LivenessCheck reports that the process is serving.
func (s *Server) LivenessCheck(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "up", "time": time.Now()})
}

// ReadinessCheck pings Redis and the database when they are configured.
func (s *Server) ReadinessCheck(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), 5*time.Second)
	defer cancel()

	checks := fiber.Map{}
	healthy := true

	if s.redis != nil {
		checks["redis"] = "healthy"
		if err := s.redis.Ping(ctx).Err(); err != nil {
			checks["redis"] = "unhealthy"
			healthy = false
		}
	} else {
		checks["redis"] = "disabled"
	}

	if s.db != nil {
		checks["database"] = "healthy"
		sqlDB, err := s.db.DB()
		if err == nil {
			err = sqlDB.PingContext(ctx)
		}
		if err != nil {
			checks["database"] = "unhealthy"
			healthy = false
		}
	} else {
		checks["database"] = "disabled"
	}

	status, code := "ready", fiber.StatusOK
	if !healthy {
		status, code = "degraded", fiber.StatusServiceUnavailable
	}
	return c.Status(code).JSON(fiber.Map{"status": status, "checks": checks})
}

func parseCoordinate(c *fiber.Ctx, name string, limit float64) (float64, error) {
	raw := strings.TrimSpace(c.Query(name))
	if raw == "" {
		return 0, models.NewValidationError(name + " is required")
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || v < -limit || v > limit {
		return 0, models.NewValidationError("invalid " + name)
	}
	return v, nil
}

// GetWeather proxies current conditions for lat/lng, reusing a cached
// report for nearby coordinates.
func (s *Server) GetWeather(c *fiber.Ctx) error {
	lat, err := parseCoordinate(c, "lat", 90)
	if err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest, err)
	}
	lng, err := parseCoordinate(c, "lng", 180)
	if err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest, err)
	}

	ctx := c.UserContext()
	report, hit, err := cache.Aside(ctx, s.redis, cache.WeatherKey(lat, lng), cache.WeatherTTL,
		func(ctx context.Context) (json.RawMessage, error) {
			return s.weather.Current(ctx, lat, lng)
		})
	if err != nil {
		observability.Logger.ErrorContext(ctx, "weather upstream failed", slog.String("error", err.Error()))
		return models.RespondWithError(c, fiber.StatusBadGateway,
			models.NewRemoteError("Weather unavailable", err))
	}

	result := "miss"
	if hit {
		result = "hit"
	}
	observability.WeatherCacheLookups.WithLabelValues(result).Inc()

	c.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	return c.Send(report)
}

// Chat forwards one message to the chat provider and returns its reply.
func (s *Server) Chat(c *fiber.Ctx) error {
	var req models.ChatRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(models.ChatResponse{Error: "invalid request body"})
	}
	req.Query = strings.TrimSpace(req.Query)
	if req.Query == "" {
		return c.Status(fiber.StatusBadRequest).JSON(models.ChatResponse{Error: "query is required"})
	}

	raw, err := s.chat.Send(c.UserContext(), req)
	if err != nil {
		observability.Logger.ErrorContext(c.UserContext(), "chat upstream failed", slog.String("error", err.Error()))
		return c.Status(fiber.StatusBadGateway).JSON(models.ChatResponse{Error: err.Error()})
	}

	c.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	return c.Send(raw)
}

// UpdateProfile writes the non-null fields of the request to the caller's
// profile row, bypassing row-level security.
func (s *Server) UpdateProfile(c *fiber.Ctx) error {
	var req models.ProfileUpdate
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(models.ProfileResult{Error: "invalid request body"})
	}
	req.UserID = strings.TrimSpace(req.UserID)
	if req.UserID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(models.ProfileResult{Error: "user_id is required"})
	}
	if req.Role != nil && !req.Role.Valid() {
		return c.Status(fiber.StatusBadRequest).JSON(models.ProfileResult{Error: "invalid user_role"})
	}
	uid, authed := middleware.CurrentUserID(c)
	if authed && uid != req.UserID {
		return c.Status(fiber.StatusForbidden).JSON(models.ProfileResult{Error: "cannot update another user's profile"})
	}
	if !authed && !selfServiceGrant(req) {
		return c.Status(fiber.StatusForbidden).JSON(models.ProfileResult{Error: "role change requires a signed-in session"})
	}

	ctx := c.UserContext()
	if s.profiles == nil {
		observability.Logger.ErrorContext(ctx, "no privileged profile writer configured")
		return c.JSON(models.ProfileResult{Error: configErrorMessage})
	}

	observability.Logger.InfoContext(ctx, "updating user profile", slog.String("target_user", req.UserID))
	if err := s.profiles.UpdateProfile(ctx, req); err != nil {
		observability.Logger.ErrorContext(ctx, "profile update failed",
			slog.String("target_user", req.UserID),
			slog.String("error", err.Error()),
		)
		return c.JSON(models.ProfileResult{Error: profileError(err)})
	}
	return c.JSON(models.ProfileResult{Success: true})
}

// selfServiceGrant reports whether req only grants what sign-up may grant
// without a session: the registered or activist role and no premium.
func selfServiceGrant(req models.ProfileUpdate) bool {
	if req.Premium != nil && *req.Premium {
		return false
	}
	return req.Role == nil || *req.Role == models.RoleRegistered || *req.Role == models.RoleActivist
}

func profileError(err error) string {
	if errors.Is(err, upstream.ErrNotConfigured) {
		return configErrorMessage
	}
	var se *upstream.StatusError
	if errors.As(err, &se) && se.Body != "" {
		return se.Body
	}
	return err.Error()
}

// UserExists reports whether the profile row is visible to the privileged
// writer.
func (s *Server) UserExists(c *fiber.Ctx) error {
	id := strings.TrimSpace(c.Params("id"))
	if id == "" {
		return models.RespondWithError(c, fiber.StatusBadRequest, models.NewValidationError("id is required"))
	}
	if s.profiles == nil {
		return models.RespondWithError(c, fiber.StatusServiceUnavailable, errConfig)
	}

	ok, err := s.profiles.UserExists(c.UserContext(), id)
	if err != nil {
		if errors.Is(err, upstream.ErrNotConfigured) {
			return models.RespondWithError(c, fiber.StatusServiceUnavailable, errConfig)
		}
		return models.RespondWithError(c, fiber.StatusBadGateway, models.NewRemoteError("existence check failed", err))
	}
	return c.JSON(models.ExistsResponse{Exists: ok})
}
