package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"codeboard/internal/logger"
	"codeboard/internal/models"
	"codeboard/internal/reconcile"
	"codeboard/internal/repository"
)

// Messages reported with a single-user lookup
const (
	MessageFromCache     = "Data retrieved from cache"
	MessageFromDatabase  = "Data retrieved from database"
	MessageRefreshed     = "Data refreshed from provider"
	MessageFetched       = "Data fetched from provider"
	defaultCronBatchSize = 5
)

// SnapshotRepository is the relational side the service reads from
type SnapshotRepository interface {
	GetSnapshot(ctx context.Context, username string) (*models.Snapshot, error)
	GetAllSnapshots(ctx context.Context) ([]models.Snapshot, error)
	GetLeaderboard(ctx context.Context, q models.LeaderboardQuery) ([]models.LeaderboardEntry, int64, error)
	Ping(ctx context.Context) error
}

// SnapshotCache is the Redis projection of snapshots
type SnapshotCache interface {
	GetCachedSnapshot(ctx context.Context, username string) (*models.Snapshot, error)
	GetUserRank(ctx context.Context, username string) (int, int, error)
	GetTotalUsers(ctx context.Context) (int64, error)
	BulkSync(ctx context.Context, snapshots []models.Snapshot) error
	Ping(ctx context.Context) error
}

// Refresher runs refreshes through the provider pipeline
type Refresher interface {
	RefreshBatch(ctx context.Context, limit int) (*models.RefreshSummary, error)
	RefreshOne(ctx context.Context, username string) (*models.Snapshot, error)
}

// LeaderboardService handles business logic for the leaderboard
type LeaderboardService struct {
	repo      SnapshotRepository
	cache     SnapshotCache
	refresher Refresher
	interval  time.Duration
	now       func() time.Time
}

// NewLeaderboardService creates a new leaderboard service.
// interval is the periodic refresh interval used to estimate the rotation time.
func NewLeaderboardService(repo SnapshotRepository, cache SnapshotCache, refresher Refresher, interval time.Duration) *LeaderboardService {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &LeaderboardService{
		repo:      repo,
		cache:     cache,
		refresher: refresher,
		interval:  interval,
		now:       time.Now,
	}
}

// needsRefresh treats a snapshot without recent submissions as stale
func needsRefresh(s *models.Snapshot) bool {
	return s == nil || len(s.RecentSubmissions) == 0
}

// GetUser returns the snapshot of username, refreshing it from the provider
// when it is missing or has no recent submissions
func (s *LeaderboardService) GetUser(ctx context.Context, username string) (*models.SnapshotResponse, error) {
	if cached, err := s.cache.GetCachedSnapshot(ctx, username); err == nil && !needsRefresh(cached) {
		return &models.SnapshotResponse{Status: "success", Message: MessageFromCache, Data: cached}, nil
	} else if err != nil && !errors.Is(err, repository.ErrNotFound) {
		logger.Warn().Err(err).Str("username", username).Msg("Snapshot cache unavailable, reading database")
	}

	stored, err := s.repo.GetSnapshot(ctx, username)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("failed to read snapshot: %w", err)
	}
	if err == nil && !needsRefresh(stored) {
		return &models.SnapshotResponse{Status: "success", Message: MessageFromDatabase, Data: stored}, nil
	}

	fresh, err := s.refresher.RefreshOne(ctx, username)
	if err != nil {
		return nil, err
	}

	message := MessageFetched
	if stored != nil {
		message = MessageRefreshed
	}
	return &models.SnapshotResponse{Status: "success", Message: message, Data: fresh}, nil
}

// GetLeaderboard returns one page of registered users with their snapshot counts
func (s *LeaderboardService) GetLeaderboard(ctx context.Context, q models.LeaderboardQuery) (*models.LeaderboardResponse, error) {
	entries, total, err := s.repo.GetLeaderboard(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("failed to get leaderboard: %w", err)
	}

	window := reconcile.NewWindow(s.now())
	totalPages := 0
	if q.Limit > 0 {
		totalPages = int(math.Ceil(float64(total) / float64(q.Limit)))
	}

	return &models.LeaderboardResponse{
		Status:  "success",
		Message: "Leaderboard retrieved",
		Data:    entries,
		Meta: models.LeaderboardMeta{
			YesterdayDate:      time.Unix(window.YesterdayStart, 0).UTC().Format(time.DateOnly),
			YesterdayTimestamp: window.YesterdayStart,
			Pagination: models.Pagination{
				Page:       q.Page,
				Limit:      q.Limit,
				Total:      total,
				TotalPages: totalPages,
			},
		},
	}, nil
}

// GetRank returns the global position of username by total solved
func (s *LeaderboardService) GetRank(ctx context.Context, username string) (*models.RankResponse, error) {
	rank, solved, err := s.cache.GetUserRank(ctx, username)
	if err != nil {
		return nil, fmt.Errorf("failed to get user rank: %w", err)
	}

	return &models.RankResponse{
		GlobalRank:  rank,
		Username:    username,
		TotalSolved: solved,
	}, nil
}

// RankedUsers returns how many users the Redis ranking holds
func (s *LeaderboardService) RankedUsers(ctx context.Context) (int64, error) {
	return s.cache.GetTotalUsers(ctx)
}

// RefreshBatch refreshes the limit stalest users
func (s *LeaderboardService) RefreshBatch(ctx context.Context, limit int) (*models.RefreshSummary, error) {
	return s.refresher.RefreshBatch(ctx, limit)
}

// CronUpdate runs one batch for an external cron trigger and estimates
// how long a full rotation over all registered users takes
func (s *LeaderboardService) CronUpdate(ctx context.Context, limit int) (*models.CronUpdateResponse, error) {
	if limit <= 0 {
		limit = defaultCronBatchSize
	}

	summary, err := s.refresher.RefreshBatch(ctx, limit)
	if err != nil {
		return nil, err
	}

	logger.Info().
		Int("updated", summary.Updated).
		Int("failed", summary.Failed).
		Int64("total_users", summary.TotalUsers).
		Msg("[Cron] Incremental update finished")

	return &models.CronUpdateResponse{
		Success: true,
		Message: "Incremental update completed",
		Stats: models.CronStats{
			TotalUsers:         summary.TotalUsers,
			BatchSize:          limit,
			EstimatedCycleTime: EstimateCycleTime(summary.TotalUsers, limit, s.interval),
		},
		Data: summary,
	}, nil
}

// EstimateCycleTime is the time needed to refresh every user once at limit users per interval
func EstimateCycleTime(totalUsers int64, limit int, interval time.Duration) string {
	if totalUsers <= 0 || limit <= 0 || interval <= 0 {
		return "0 hours"
	}
	perHour := float64(limit) * float64(time.Hour) / float64(interval)
	return fmt.Sprintf("%.2f hours", float64(totalUsers)/perHour)
}

// SyncRedisFromPostgres rebuilds the Redis projection from stored snapshots.
// Useful for initialization or recovery.
func (s *LeaderboardService) SyncRedisFromPostgres(ctx context.Context) error {
	snapshots, err := s.repo.GetAllSnapshots(ctx)
	if err != nil {
		return fmt.Errorf("failed to get snapshots from PostgreSQL: %w", err)
	}

	if len(snapshots) == 0 {
		logger.Info().Msg("No snapshots to sync")
		return nil
	}

	if err := s.cache.BulkSync(ctx, snapshots); err != nil {
		return fmt.Errorf("failed to sync to Redis: %w", err)
	}

	logger.Info().Int("snapshots", len(snapshots)).Msg("✓ Synced snapshots to Redis")
	return nil
}

// HealthCheck checks the health of both Redis and PostgreSQL
func (s *LeaderboardService) HealthCheck(ctx context.Context) error {
	if err := s.cache.Ping(ctx); err != nil {
		return fmt.Errorf("redis health check failed: %w", err)
	}

	if err := s.repo.Ping(ctx); err != nil {
		return fmt.Errorf("postgres health check failed: %w", err)
	}

	return nil
}
