package handlers

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	fiberws "github.com/gofiber/websocket/v2"
)

// RefreshLimit caps administrative refresh triggers per client IP
type RefreshLimit struct {
	Max        int
	Expiration time.Duration
}

// Register mounts the API under /api/v1 and, when a hub is configured, the /ws endpoint
func (h *LeaderboardHandler) Register(app *fiber.App, refreshLimit RefreshLimit) {
	if refreshLimit.Max <= 0 {
		refreshLimit.Max = 3
	}
	if refreshLimit.Expiration <= 0 {
		refreshLimit.Expiration = time.Minute
	}

	api := app.Group("/api/v1")

	api.Get("/leaderboard", h.GetLeaderboard)
	api.Get("/users/:username", h.GetUser)
	api.Get("/rank/:username", h.GetRank)
	api.Get("/cron-update", h.CronUpdate)
	api.Get("/health", h.HealthCheck)

	// Admin batches hit the provider hard, so they are throttled per IP
	api.Post("/refresh", limiter.New(limiter.Config{
		Max:        refreshLimit.Max,
		Expiration: refreshLimit.Expiration,
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error":   "Too many refresh requests",
				"message": "Try again later",
			})
		},
	}), h.RefreshAll)

	if h.hub == nil {
		return
	}

	app.Use("/ws", func(c *fiber.Ctx) error {
		if fiberws.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws", fiberws.New(h.HandleWebSocket))
}
