package api

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/Checker-Finance/arango-auth/internal/token"
)

// Checker is a named dependency probe used by /health.
type Checker interface {
	HealthCheck(ctx context.Context) error
}

// CheckFunc adapts a function to Checker.
type CheckFunc func(ctx context.Context) error

func (f CheckFunc) HealthCheck(ctx context.Context) error { return f(ctx) }

// UsernameFunc names the account /api/v1/token/status reports on when no
// username query is given. It runs per request.
type UsernameFunc func(ctx context.Context) (string, error)

// StaticUsername always reports name.
func StaticUsername(name string) UsernameFunc {
	return func(context.Context) (string, error) { return name, nil }
}

// TokenReader exposes stored tokens to the status endpoint.
type TokenReader interface {
	Current(ctx context.Context, username string) (*token.Token, error)
	Skew() time.Duration
}

// Handler serves the ops API.
type Handler struct {
	logger   *zap.Logger
	tokens   TokenReader
	username UsernameFunc
	checks   map[string]Checker
	now      func() time.Time
}

// NewHandler creates a Handler reporting on the token of the account named by username.
func NewHandler(logger *zap.Logger, tokens TokenReader, username UsernameFunc, checks map[string]Checker) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		logger:   logger,
		tokens:   tokens,
		username: username,
		checks:   checks,
		now:      time.Now,
	}
}

// RegisterRoutes registers all HTTP routes on the Fiber app.
func RegisterRoutes(app *fiber.App, h *Handler) {
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))
	app.Get("/health", h.Health)

	v1 := app.Group("/api/v1")
	v1.Get("/token/status", h.TokenStatus)
}

// Health runs every registered check.
func (h *Handler) Health(c *fiber.Ctx) error {
	checks := make(map[string]string, len(h.checks))
	status := "ok"
	code := fiber.StatusOK

	ctx, cancel := context.WithTimeout(c.UserContext(), 2*time.Second)
	defer cancel()

	for name, chk := range h.checks {
		if err := chk.HealthCheck(ctx); err != nil {
			checks[name] = err.Error()
			status = "degraded"
			code = fiber.StatusServiceUnavailable
			continue
		}
		checks[name] = "ok"
	}

	return c.Status(code).JSON(fiber.Map{
		"status": status,
		"checks": checks,
	})
}

// TokenStatus reports the validity window of the current token. The token
// itself is never returned.
func (h *Handler) TokenStatus(c *fiber.Ctx) error {
	username := c.Query("username")
	if username == "" {
		var err error
		if username, err = h.username(c.UserContext()); err != nil || username == "" {
			h.logger.Warn("api.token_status_no_username", zap.Error(err))
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "username unavailable"})
		}
	}

	tok, err := h.tokens.Current(c.UserContext(), username)
	if err != nil {
		h.logger.Warn("api.token_status_failed", zap.String("user", username), zap.Error(err))
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "token store unavailable"})
	}
	if tok == nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"username": username,
			"error":    "no token issued",
		})
	}

	now := h.now()
	return c.JSON(fiber.Map{
		"username":          tok.Username,
		"issued_at":         tok.IssuedAt.UTC(),
		"expires_at":        tok.ExpiresAt.UTC(),
		"remaining_seconds": int64(tok.Remaining(now).Seconds()),
		"valid":             tok.ValidFor(now, h.tokens.Skew()),
	})
}
