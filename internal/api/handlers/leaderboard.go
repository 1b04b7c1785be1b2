package handlers

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"codeboard/internal/logger"
	"codeboard/internal/models"
	"codeboard/internal/provider"
	"codeboard/internal/repository"
	"codeboard/internal/websocket"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	fiberws "github.com/gofiber/websocket/v2"
)

const (
	defaultPage           = 1
	defaultLimit          = 20
	maxLimit              = 100
	defaultCronLimit      = 5
	defaultAdminBatchSize = 132
)

// LeaderboardService is what the HTTP layer needs from the service
type LeaderboardService interface {
	GetUser(ctx context.Context, username string) (*models.SnapshotResponse, error)
	GetLeaderboard(ctx context.Context, q models.LeaderboardQuery) (*models.LeaderboardResponse, error)
	GetRank(ctx context.Context, username string) (*models.RankResponse, error)
	RefreshBatch(ctx context.Context, limit int) (*models.RefreshSummary, error)
	CronUpdate(ctx context.Context, limit int) (*models.CronUpdateResponse, error)
	RankedUsers(ctx context.Context) (int64, error)
	HealthCheck(ctx context.Context) error
}

// MetricsFunc reports the runtime metrics of one component for the health endpoint
type MetricsFunc func() map[string]interface{}

// LeaderboardHandler handles HTTP requests for the leaderboard
type LeaderboardHandler struct {
	service        LeaderboardService
	hub            *websocket.Hub
	validator      *validator.Validate
	adminBatchSize int
	metrics        map[string]MetricsFunc
}

// NewLeaderboardHandler creates a new leaderboard handler. hub may be nil when WebSockets are disabled.
func NewLeaderboardHandler(service LeaderboardService, hub *websocket.Hub, adminBatchSize int, metrics map[string]MetricsFunc) *LeaderboardHandler {
	if adminBatchSize <= 0 {
		adminBatchSize = defaultAdminBatchSize
	}
	return &LeaderboardHandler{
		service:        service,
		hub:            hub,
		validator:      validator.New(),
		adminBatchSize: adminBatchSize,
		metrics:        metrics,
	}
}

// GetLeaderboard handles GET /api/v1/leaderboard
// @Summary Get leaderboard
// @Description Registered users joined with their snapshots, paginated and sorted
// @Produce json
// @Param page query int false "Page number" default(1)
// @Param limit query int false "Page size" default(20)
// @Param sortBy query string false "total | yesterdaySubmissions | yesterdayQuestions | todayQuestions" default(total)
// @Param group query string false "Group filter, All for none"
// @Param search query string false "Case-insensitive match on name or profile id"
// @Success 200 {object} models.LeaderboardResponse
// @Failure 400 {object} models.ErrorResponse
// @Failure 500 {object} models.ErrorResponse
// @Router /api/v1/leaderboard [get]
func (h *LeaderboardHandler) GetLeaderboard(c *fiber.Ctx) error {
	q := models.LeaderboardQuery{
		Page:   queryInt(c, "page", defaultPage),
		Limit:  queryInt(c, "limit", defaultLimit),
		SortBy: c.Query("sortBy", models.SortTotal),
		Group:  c.Query("group", c.Query("college")),
		Search: strings.TrimSpace(c.Query("search")),
	}
	if q.Limit > maxLimit {
		q.Limit = maxLimit
	}

	if err := h.validator.Struct(&q); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(models.ErrorResponse{
			Error:   "Invalid query",
			Message: err.Error(),
		})
	}

	leaderboard, err := h.service.GetLeaderboard(c.UserContext(), q)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(models.ErrorResponse{
			Error:   "Failed to retrieve leaderboard",
			Message: err.Error(),
		})
	}

	return c.Status(fiber.StatusOK).JSON(leaderboard)
}

// GetUser handles GET /api/v1/users/:username
// @Summary Get a user's snapshot
// @Description Serves the stored snapshot, refreshing it from the provider when missing or empty
// @Produce json
// @Param username path string true "Provider username"
// @Success 200 {object} models.SnapshotResponse
// @Failure 404 {object} models.ErrorResponse
// @Failure 502 {object} models.ErrorResponse
// @Failure 500 {object} models.ErrorResponse
// @Router /api/v1/users/{username} [get]
func (h *LeaderboardHandler) GetUser(c *fiber.Ctx) error {
	username := strings.TrimSpace(c.Params("username"))
	if username == "" {
		return c.Status(fiber.StatusBadRequest).JSON(models.ErrorResponse{
			Error:   "Invalid username",
			Message: "Username cannot be empty",
		})
	}

	result, err := h.service.GetUser(c.UserContext(), username)
	if err != nil {
		logger.Warn().Err(err).Str("username", username).Msg("User lookup failed")
		return c.Status(statusFor(err)).JSON(models.ErrorResponse{
			Error:   "Failed to load user",
			Message: err.Error(),
		})
	}

	return c.Status(fiber.StatusOK).JSON(result)
}

// GetRank handles GET /api/v1/rank/:username
// @Summary Get a user's global rank
// @Produce json
// @Param username path string true "Provider username"
// @Success 200 {object} models.RankResponse
// @Failure 404 {object} models.ErrorResponse
// @Router /api/v1/rank/{username} [get]
func (h *LeaderboardHandler) GetRank(c *fiber.Ctx) error {
	username := strings.TrimSpace(c.Params("username"))
	if username == "" {
		return c.Status(fiber.StatusBadRequest).JSON(models.ErrorResponse{
			Error:   "Invalid username",
			Message: "Username cannot be empty",
		})
	}

	result, err := h.service.GetRank(c.UserContext(), username)
	if err != nil {
		return c.Status(fiber.StatusNotFound).JSON(models.ErrorResponse{
			Error:   "User not ranked",
			Message: err.Error(),
		})
	}

	return c.Status(fiber.StatusOK).JSON(result)
}

// RefreshAll handles POST /api/v1/refresh
// @Summary Refresh a large batch now
// @Description Administrative trigger; per-user failures are reported in the summary
// @Produce json
// @Param limit query int false "Batch size" default(132)
// @Success 200 {object} models.RefreshSummary
// @Failure 500 {object} models.ErrorResponse
// @Router /api/v1/refresh [post]
func (h *LeaderboardHandler) RefreshAll(c *fiber.Ctx) error {
	limit := queryInt(c, "limit", h.adminBatchSize)

	summary, err := h.service.RefreshBatch(c.UserContext(), limit)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(models.ErrorResponse{
			Error:   "Refresh failed",
			Message: err.Error(),
		})
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"message": "Manual batch update completed",
		"result":  summary,
	})
}

// CronUpdate handles GET /api/v1/cron-update
// @Summary Incremental refresh for an external cron
// @Produce json
// @Param limit query int false "Batch size" default(5)
// @Success 200 {object} models.CronUpdateResponse
// @Failure 500 {object} map[string]interface{}
// @Router /api/v1/cron-update [get]
func (h *LeaderboardHandler) CronUpdate(c *fiber.Ctx) error {
	limit := queryInt(c, "limit", defaultCronLimit)

	result, err := h.service.CronUpdate(c.UserContext(), limit)
	if err != nil {
		logger.Error().Err(err).Msg("[Cron] Incremental update failed")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"message": "Incremental update failed",
			"error":   err.Error(),
		})
	}

	return c.Status(fiber.StatusOK).JSON(result)
}

// HealthCheck handles GET /api/v1/health
// @Summary Health check
// @Description Checks the health of the service and its dependencies
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Failure 503 {object} models.ErrorResponse
// @Router /api/v1/health [get]
func (h *LeaderboardHandler) HealthCheck(c *fiber.Ctx) error {
	if err := h.service.HealthCheck(c.UserContext()); err != nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(models.ErrorResponse{
			Error:   "Health check failed",
			Message: err.Error(),
		})
	}

	body := fiber.Map{
		"status":  "healthy",
		"message": "All systems operational",
	}
	if ranked, err := h.service.RankedUsers(c.UserContext()); err == nil {
		body["ranked_users"] = ranked
	} else {
		logger.Warn().Err(err).Msg("Ranked user count unavailable")
	}
	for name, metrics := range h.metrics {
		body[name] = metrics()
	}
	if h.hub != nil {
		body["websocket_clients"] = h.hub.GetClientCount()
	}

	return c.Status(fiber.StatusOK).JSON(body)
}

// HandleWebSocket serves one /ws connection
func (h *LeaderboardHandler) HandleWebSocket(c *fiberws.Conn) {
	websocket.ServeWS(h.hub, c)
}

// statusFor maps pipeline errors onto HTTP statuses
func statusFor(err error) int {
	var notFound *provider.ProfileNotFoundError
	var fetchErr *provider.ProfileFetchError
	var persistErr *repository.PersistenceError

	switch {
	case errors.As(err, &notFound):
		return fiber.StatusNotFound
	case errors.As(err, &fetchErr):
		return fiber.StatusBadGateway
	case errors.As(err, &persistErr):
		return fiber.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return fiber.StatusGatewayTimeout
	}
	return fiber.StatusInternalServerError
}

// queryInt parses a positive integer query value, falling back to def
func queryInt(c *fiber.Ctx, key string, def int) int {
	value, err := strconv.Atoi(c.Query(key))
	if err != nil || value <= 0 {
		return def
	}
	return value
}
