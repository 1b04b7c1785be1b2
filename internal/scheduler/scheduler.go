package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"codeboard/internal/logger"
	"codeboard/internal/models"
)

// DefaultFetchTimeout bounds one user's fetch+reconcile+build
const DefaultFetchTimeout = 45 * time.Second

// RegistrationStore exposes registered identifiers ordered by staleness
type RegistrationStore interface {
	// SelectStale returns up to limit external ids, oldest snapshot first; users without a snapshot come first
	SelectStale(ctx context.Context, limit int) ([]string, error)
	CountRegistered(ctx context.Context) (int64, error)
}

// SnapshotStore persists snapshots
type SnapshotStore interface {
	UpsertSnapshot(ctx context.Context, snapshot *models.Snapshot) error
	// TouchSnapshot advances last_updated, creating a placeholder row if needed
	TouchSnapshot(ctx context.Context, username string, at time.Time) error
}

// Pipeline turns a username into a freshly built snapshot
type Pipeline interface {
	Fetch(ctx context.Context, username string, now time.Time) (*models.Snapshot, error)
}

// Projector receives every snapshot that was persisted successfully
type Projector interface {
	Project(snapshot *models.Snapshot) error
}

// Scheduler drives staleness-ordered refresh cycles.
// Users are refreshed one at a time so the provider sees a single caller.
type Scheduler struct {
	registrations RegistrationStore
	snapshots     SnapshotStore
	pipeline      Pipeline
	projector     Projector
	fetchTimeout  time.Duration
	now           func() time.Time
}

// Option configures a Scheduler
type Option func(*Scheduler)

// WithProjector forwards persisted snapshots to p
func WithProjector(p Projector) Option {
	return func(s *Scheduler) { s.projector = p }
}

// WithFetchTimeout overrides the per-user fetch bound
func WithFetchTimeout(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.fetchTimeout = d
		}
	}
}

// WithClock replaces time.Now
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) { s.now = now }
}

// New creates a scheduler
func New(registrations RegistrationStore, snapshots SnapshotStore, pipeline Pipeline, opts ...Option) *Scheduler {
	s := &Scheduler{
		registrations: registrations,
		snapshots:     snapshots,
		pipeline:      pipeline,
		fetchTimeout:  DefaultFetchTimeout,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SelectStale returns up to limit identifiers due for refresh
func (s *Scheduler) SelectStale(ctx context.Context, limit int) ([]string, error) {
	if limit <= 0 {
		return []string{}, nil
	}
	return s.registrations.SelectStale(ctx, limit)
}

// RefreshBatch refreshes the limit stalest users sequentially.
// Individual failures are recorded in the summary; only selection errors are returned.
func (s *Scheduler) RefreshBatch(ctx context.Context, limit int) (*models.RefreshSummary, error) {
	summary := &models.RefreshSummary{
		Users:     []string{},
		StartedAt: s.now().UTC(),
	}

	usernames, err := s.SelectStale(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("select stale users: %w", err)
	}

	if total, err := s.registrations.CountRegistered(ctx); err == nil {
		summary.TotalUsers = total
	} else {
		logger.Warn().Err(err).Msg("Failed to count registered users")
	}

	if len(usernames) == 0 {
		summary.Message = "No users need updating"
		summary.FinishedAt = s.now().UTC()
		return summary, nil
	}

	for _, username := range usernames {
		if err := ctx.Err(); err != nil {
			// Remaining users keep their staleness and lead the next batch
			logger.Warn().Err(err).Int("remaining", len(usernames)-len(summary.Users)).Msg("Refresh batch cancelled")
			break
		}

		summary.Users = append(summary.Users, username)

		if err := s.refresh(ctx, username); err != nil {
			summary.Failed++
			summary.Errors = append(summary.Errors, models.RefreshFailure{Username: username, Error: err.Error()})
			logger.Warn().Err(err).Str("username", username).Msg("Refresh failed")

			if err := s.snapshots.TouchSnapshot(ctx, username, s.now().UTC()); err != nil {
				logger.Error().Err(err).Str("username", username).Msg("Failed to advance last_updated")
			}
			continue
		}

		summary.Updated++
	}

	summary.Message = fmt.Sprintf("Updated %d users, %d failed", summary.Updated, summary.Failed)
	summary.FinishedAt = s.now().UTC()

	logger.Info().
		Int("updated", summary.Updated).
		Int("failed", summary.Failed).
		Dur("took", summary.FinishedAt.Sub(summary.StartedAt)).
		Msg("Refresh batch completed")

	return summary, nil
}

// RefreshOne refreshes a single user on demand and returns the persisted snapshot.
// Failures are returned to the caller and do not touch the stored record.
func (s *Scheduler) RefreshOne(ctx context.Context, username string) (*models.Snapshot, error) {
	snapshot, err := s.fetch(ctx, username)
	if err != nil {
		return nil, err
	}
	if err := s.persist(ctx, snapshot); err != nil {
		return nil, err
	}
	return snapshot, nil
}

func (s *Scheduler) refresh(ctx context.Context, username string) error {
	snapshot, err := s.fetch(ctx, username)
	if err != nil {
		return err
	}
	return s.persist(ctx, snapshot)
}

func (s *Scheduler) fetch(ctx context.Context, username string) (*models.Snapshot, error) {
	fetchCtx, cancel := context.WithTimeout(ctx, s.fetchTimeout)
	defer cancel()

	snapshot, err := s.pipeline.Fetch(fetchCtx, username, s.now())
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return nil, fmt.Errorf("fetch %s timed out after %v: %w", username, s.fetchTimeout, err)
		}
		return nil, err
	}
	return snapshot, nil
}

func (s *Scheduler) persist(ctx context.Context, snapshot *models.Snapshot) error {
	if err := s.snapshots.UpsertSnapshot(ctx, snapshot); err != nil {
		return err
	}
	if s.projector != nil {
		if err := s.projector.Project(snapshot); err != nil {
			logger.Warn().Err(err).Str("username", snapshot.Username).Msg("Snapshot projection skipped")
		}
	}
	return nil
}
