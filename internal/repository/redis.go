package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"codeboard/internal/models"

	"github.com/redis/go-redis/v9"
)

const (
	// LeaderboardKey is the Redis sorted set ranking usernames by total solved
	LeaderboardKey = "leaderboard:total_solved"

	// VersionKey tracks the global leaderboard version for efficient change detection
	VersionKey = "leaderboard:version"

	// SnapshotKeyPrefix prefixes the cached JSON snapshot of each user
	SnapshotKeyPrefix = "snapshot:"

	// TimestampDivisor keeps the refresh time in the fractional part of the composite score
	TimestampDivisor = 10_000_000_000
)

// RedisRepository is the read-side projection of snapshots: a per-user cache and a global ranking
type RedisRepository struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisRepository creates a new Redis repository; cached snapshots expire after ttl
func NewRedisRepository(client *redis.Client, ttl time.Duration) *RedisRepository {
	return &RedisRepository{
		client: client,
		ttl:    ttl,
	}
}

// ComputeCompositeScore calculates a composite score for consistent tie-breaking.
// Formula: solved + (1 - unixSeconds/10^10), so among equal counts the earlier refresh ranks higher.
func ComputeCompositeScore(solved int, unixSeconds int64) float64 {
	return float64(solved) + (1.0 - float64(unixSeconds)/TimestampDivisor)
}

// ExtractBaseScore extracts the integer score from a composite score
func ExtractBaseScore(compositeScore float64) int {
	return int(compositeScore)
}

func snapshotKey(username string) string {
	return SnapshotKeyPrefix + username
}

// ProjectSnapshot caches the snapshot, updates its ranking and bumps the version in one pipeline
func (r *RedisRepository) ProjectSnapshot(ctx context.Context, snapshot *models.Snapshot) error {
	encoded, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("encode snapshot %s: %w", snapshot.Username, err)
	}

	pipe := r.client.Pipeline()
	pipe.Set(ctx, snapshotKey(snapshot.Username), encoded, r.ttl)
	pipe.ZAdd(ctx, LeaderboardKey, redis.Z{
		Score:  ComputeCompositeScore(snapshot.TotalSolved, snapshot.LastUpdated.Unix()),
		Member: snapshot.Username,
	})
	pipe.Incr(ctx, VersionKey)

	_, err = pipe.Exec(ctx)
	return err
}

// GetCachedSnapshot returns the cached snapshot of username or ErrNotFound.
// An entry that no longer decodes is dropped and reported as a miss.
func (r *RedisRepository) GetCachedSnapshot(ctx context.Context, username string) (*models.Snapshot, error) {
	raw, err := r.client.Get(ctx, snapshotKey(username)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	var snapshot models.Snapshot
	if err := json.Unmarshal(raw, &snapshot); err != nil {
		if delErr := r.InvalidateSnapshot(ctx, username); delErr != nil {
			return nil, fmt.Errorf("drop undecodable snapshot %s: %w", username, delErr)
		}
		return nil, ErrNotFound
	}
	return &snapshot, nil
}

// InvalidateSnapshot drops the cached snapshot of username
func (r *RedisRepository) InvalidateSnapshot(ctx context.Context, username string) error {
	return r.client.Del(ctx, snapshotKey(username)).Err()
}

// GetUserRank returns the 1-indexed position of username by composite score
// together with the total solved count carried in that score
func (r *RedisRepository) GetUserRank(ctx context.Context, username string) (int, int, error) {
	compositeScore, err := r.client.ZScore(ctx, LeaderboardKey, username).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, 0, ErrNotFound
		}
		return 0, 0, err
	}

	// Rank = users with a strictly greater composite score + 1
	count, err := r.client.ZCount(ctx, LeaderboardKey, "("+strconv.FormatFloat(compositeScore, 'f', -1, 64), "+inf").Result()
	if err != nil {
		return 0, 0, err
	}
	return int(count) + 1, ExtractBaseScore(compositeScore), nil
}

// GetLeaderboardVersion returns the current global version number
func (r *RedisRepository) GetLeaderboardVersion(ctx context.Context) (int64, error) {
	version, err := r.client.Get(ctx, VersionKey).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, err
	}
	return version, nil
}

// GetTotalUsers returns the number of ranked users
func (r *RedisRepository) GetTotalUsers(ctx context.Context) (int64, error) {
	return r.client.ZCard(ctx, LeaderboardKey).Result()
}

// BulkSync rebuilds the ranking and cache from snapshots using one pipeline
func (r *RedisRepository) BulkSync(ctx context.Context, snapshots []models.Snapshot) error {
	pipe := r.client.Pipeline()

	for i := range snapshots {
		s := &snapshots[i]
		encoded, err := json.Marshal(s)
		if err != nil {
			return fmt.Errorf("encode snapshot %s: %w", s.Username, err)
		}

		pipe.Set(ctx, snapshotKey(s.Username), encoded, r.ttl)
		pipe.ZAdd(ctx, LeaderboardKey, redis.Z{
			Score:  ComputeCompositeScore(s.TotalSolved, s.LastUpdated.Unix()),
			Member: s.Username,
		})
	}

	// Increment version once for entire batch
	pipe.Incr(ctx, VersionKey)

	_, err := pipe.Exec(ctx)
	return err
}

// Ping checks if Redis is reachable
func (r *RedisRepository) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Close closes the Redis connection
func (r *RedisRepository) Close() error {
	return r.client.Close()
}
