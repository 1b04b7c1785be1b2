package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"codeboard/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrNotFound is returned when a looked-up record does not exist
var ErrNotFound = errors.New("record not found")

// likeEscaper makes search text match literally inside a LIKE pattern
var likeEscaper = strings.NewReplacer(`\`, `\\`, "%", `\%`, "_", `\_`)

// PersistenceError means the store was unreachable or rejected an operation
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

func wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	return &PersistenceError{Op: op, Err: err}
}

// snapshotColumns are overwritten in full when a refreshed snapshot is upserted
var snapshotColumns = []string{
	"name", "real_name", "github_url", "user_avatar", "about_me", "country", "company", "school", "star_rating",
	"total_solved", "total_questions", "easy_solved", "total_easy", "medium_solved", "total_medium", "hard_solved", "total_hard",
	"total_submissions", "total_accepted_submissions", "acceptance_rate",
	"ranking", "reputation", "contribution_points", "points",
	"contest_participation", "contest_rating", "contest_global_ranking",
	"badges", "upcoming_badges", "active_badge", "submission_calendar", "recent_submissions",
	"yesterday_questions_solved", "today_questions_solved", "yesterday_submissions",
	"last_updated", "updated_at",
}

// sortColumns maps a leaderboard sort key to its ORDER BY expression
var sortColumns = map[string]string{
	models.SortTotal:                "COALESCE(s.total_solved, 0) DESC, COALESCE(s.ranking, 2147483647) ASC",
	models.SortYesterdaySubmissions: "COALESCE(s.yesterday_submissions, 0) DESC",
	models.SortYesterdayQuestions:   "COALESCE(s.yesterday_questions_solved, 0) DESC",
	models.SortTodayQuestions:       "COALESCE(s.today_questions_solved, 0) DESC",
}

const leaderboardSelect = `u.id AS id, u.display_name AS name, u.group_name AS group_name,
	u.external_profile_url AS profile_url, u.external_profile_id AS profile_id,
	COALESCE(s.user_avatar, '') AS user_avatar, COALESCE(s.country, '') AS country_name, COALESCE(s.school, '') AS school,
	COALESCE(s.total_solved, 0) AS total_solved, COALESCE(s.ranking, 2147483647) AS ranking,
	COALESCE(s.acceptance_rate, 0) AS acceptance_rate, COALESCE(s.easy_solved, 0) AS easy_solved,
	COALESCE(s.medium_solved, 0) AS medium_solved, COALESCE(s.hard_solved, 0) AS hard_solved,
	COALESCE(s.contest_rating, 0) AS contest_rating, COALESCE(s.reputation, 0) AS reputation,
	COALESCE(s.yesterday_questions_solved, 0) AS yesterday_questions_solved,
	COALESCE(s.today_questions_solved, 0) AS today_questions_solved,
	COALESCE(s.yesterday_submissions, 0) AS yesterday_submissions`

// PostgresRepository handles all relational storage: registrations, snapshots and metadata
type PostgresRepository struct {
	db *gorm.DB
}

// NewPostgresRepository creates a new Postgres repository
func NewPostgresRepository(db *gorm.DB) *PostgresRepository {
	return &PostgresRepository{
		db: db,
	}
}

// AutoMigrate runs database migrations
func (r *PostgresRepository) AutoMigrate() error {
	return r.db.AutoMigrate(&models.User{}, &models.Snapshot{}, &models.Metadata{})
}

// UpsertUserRecord creates or updates a registration keyed by its external profile id
func (r *PostgresRepository) UpsertUserRecord(ctx context.Context, user *models.User) error {
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "external_profile_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"display_name", "external_profile_url", "group_name", "updated_at"}),
	}).Create(user).Error
	return wrap("upsert user", err)
}

// CountRegistered returns the number of registered users
func (r *PostgresRepository) CountRegistered(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.User{}).Count(&count).Error
	return count, wrap("count users", err)
}

// SelectStale returns up to limit external ids ordered by snapshot age.
// Users without a snapshot sort first, as if last refreshed at the epoch.
func (r *PostgresRepository) SelectStale(ctx context.Context, limit int) ([]string, error) {
	ids := make([]string, 0, limit)
	err := r.db.WithContext(ctx).
		Table("users AS u").
		Joins("LEFT JOIN user_snapshots s ON s.username = u.external_profile_id").
		Order("CASE WHEN s.last_updated IS NULL THEN 0 ELSE 1 END, s.last_updated ASC, u.created_at ASC, u.external_profile_id ASC").
		Limit(limit).
		Pluck("u.external_profile_id", &ids).Error
	if err != nil {
		return nil, wrap("select stale", err)
	}
	return ids, nil
}

// GetSnapshot retrieves the snapshot of username
func (r *PostgresRepository) GetSnapshot(ctx context.Context, username string) (*models.Snapshot, error) {
	var snapshot models.Snapshot
	err := r.db.WithContext(ctx).Where("username = ?", username).First(&snapshot).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, wrap("get snapshot", err)
	}
	return &snapshot, nil
}

// GetAllSnapshots retrieves every snapshot (used for rebuilding Redis)
func (r *PostgresRepository) GetAllSnapshots(ctx context.Context) ([]models.Snapshot, error) {
	var snapshots []models.Snapshot
	err := r.db.WithContext(ctx).Order("total_solved DESC").Find(&snapshots).Error
	return snapshots, wrap("list snapshots", err)
}

// UpsertSnapshot inserts a snapshot or overwrites every refreshed column of the existing one
func (r *PostgresRepository) UpsertSnapshot(ctx context.Context, snapshot *models.Snapshot) error {
	snapshot.LastUpdated = snapshot.LastUpdated.UTC()

	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "username"}},
		DoUpdates: clause.AssignmentColumns(snapshotColumns),
	}).Create(snapshot).Error
	return wrap("upsert snapshot", err)
}

// TouchSnapshot advances last_updated of username without touching its statistics.
// A placeholder is created when no snapshot exists yet.
func (r *PostgresRepository) TouchSnapshot(ctx context.Context, username string, at time.Time) error {
	placeholder := models.NewPlaceholderSnapshot(username, at.UTC())

	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "username"}},
		DoUpdates: clause.AssignmentColumns([]string{"last_updated", "updated_at"}),
	}).Create(placeholder).Error
	return wrap("touch snapshot", err)
}

// GetLeaderboard returns one page of registered users joined with their snapshots, plus the filtered total
func (r *PostgresRepository) GetLeaderboard(ctx context.Context, q models.LeaderboardQuery) ([]models.LeaderboardEntry, int64, error) {
	base := func() *gorm.DB {
		tx := r.db.WithContext(ctx).
			Table("users AS u").
			Joins("LEFT JOIN user_snapshots s ON s.username = u.external_profile_id")
		if q.Group != "" && q.Group != models.AllGroups {
			tx = tx.Where("u.group_name = ?", q.Group)
		}
		if search := strings.TrimSpace(q.Search); search != "" {
			pattern := "%" + likeEscaper.Replace(strings.ToLower(search)) + "%"
			tx = tx.Where(`(LOWER(u.display_name) LIKE ? ESCAPE '\' OR LOWER(u.external_profile_id) LIKE ? ESCAPE '\')`, pattern, pattern)
		}
		return tx
	}

	var total int64
	if err := base().Count(&total).Error; err != nil {
		return nil, 0, wrap("count leaderboard", err)
	}

	order, ok := sortColumns[q.SortBy]
	if !ok {
		order = sortColumns[models.SortTotal]
	}

	entries := make([]models.LeaderboardEntry, 0, q.Limit)
	err := base().
		Select(leaderboardSelect).
		Order(order).
		Order("COALESCE(s.total_solved, 0) DESC").
		Order("u.display_name ASC").
		Order("u.id ASC").
		Offset((q.Page - 1) * q.Limit).
		Limit(q.Limit).
		Scan(&entries).Error
	if err != nil {
		return nil, 0, wrap("query leaderboard", err)
	}

	return entries, total, nil
}

// GetMetadata decodes the value stored under key into dest
func (r *PostgresRepository) GetMetadata(ctx context.Context, key string, dest any) (*models.Metadata, error) {
	var meta models.Metadata
	err := r.db.WithContext(ctx).Where("key = ?", key).First(&meta).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, wrap("get metadata", err)
	}
	if dest != nil {
		if err := json.Unmarshal(meta.Value, dest); err != nil {
			return nil, fmt.Errorf("decode metadata %s: %w", key, err)
		}
	}
	return &meta, nil
}

// SetMetadata stores value under key as JSON
func (r *PostgresRepository) SetMetadata(ctx context.Context, key string, value any) error {
	encoded, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode metadata %s: %w", key, err)
	}

	meta := models.Metadata{Key: key, Value: encoded, LastUpdated: time.Now().UTC()}
	err = r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "last_updated"}),
	}).Create(&meta).Error
	return wrap("set metadata", err)
}

// Ping checks if database is reachable
func (r *PostgresRepository) Ping(ctx context.Context) error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Close closes the database connection
func (r *PostgresRepository) Close() error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
