package jobs

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"codeboard/internal/logger"
	"codeboard/internal/models"
	"codeboard/internal/repository"
)

// LastCycleKey is the metadata key recording the most recent refresh cycle
const LastCycleKey = "last_refresh_cycle"

// BatchRefresher runs one staleness-ordered refresh batch
type BatchRefresher interface {
	RefreshBatch(ctx context.Context, limit int) (*models.RefreshSummary, error)
}

// MetadataStore persists small JSON bookkeeping values
type MetadataStore interface {
	GetMetadata(ctx context.Context, key string, dest any) (*models.Metadata, error)
	SetMetadata(ctx context.Context, key string, value any) error
}

// CycleRecord is stored under LastCycleKey after every cycle
type CycleRecord struct {
	At      time.Time `json:"at"`
	Updated int       `json:"updated"`
	Failed  int       `json:"failed"`
}

// RefresherConfig holds configuration for the periodic refresher
type RefresherConfig struct {
	Interval     time.Duration // Default: 5m
	BatchSize    int           // Default: 5
	RunOnStartup bool
}

// RefreshManager triggers refresh batches on a fixed interval.
// Cycles run on a single goroutine, so two periodic batches never overlap.
type RefreshManager struct {
	refresher BatchRefresher
	metadata  MetadataStore
	stopCh    chan struct{}
	wg        sync.WaitGroup
	running   atomic.Bool
	now       func() time.Time

	// Metrics
	cycles    atomic.Int64
	updated   atomic.Int64
	failed    atomic.Int64
	cycleErr  atomic.Int64
	lastCycle atomic.Int64 // unix seconds
	startTime time.Time

	interval     time.Duration
	batchSize    int
	runOnStartup bool
}

// NewRefreshManager creates a new refresh manager
func NewRefreshManager(refresher BatchRefresher, metadata MetadataStore, config RefresherConfig) *RefreshManager {
	if config.Interval <= 0 {
		config.Interval = 5 * time.Minute
	}
	if config.BatchSize <= 0 {
		config.BatchSize = 5
	}

	return &RefreshManager{
		refresher:    refresher,
		metadata:     metadata,
		stopCh:       make(chan struct{}),
		now:          time.Now,
		interval:     config.Interval,
		batchSize:    config.BatchSize,
		runOnStartup: config.RunOnStartup,
	}
}

// Start begins the refresh loop
func (rm *RefreshManager) Start(ctx context.Context) error {
	if !rm.running.CompareAndSwap(false, true) {
		return fmt.Errorf("refresh manager already running")
	}
	rm.startTime = rm.now()

	logger.Info().
		Dur("interval", rm.interval).
		Int("batch_size", rm.batchSize).
		Bool("run_on_startup", rm.runOnStartup).
		Msg("🚀 Refresh Manager Started")

	rm.wg.Add(1)
	go rm.loop(ctx)

	return nil
}

// Stop gracefully stops the refresh loop, waiting for an in-flight cycle
func (rm *RefreshManager) Stop() {
	if !rm.running.CompareAndSwap(true, false) {
		return
	}

	close(rm.stopCh)
	rm.wg.Wait()

	logger.Info().
		Int64("cycles", rm.cycles.Load()).
		Int64("updated", rm.updated.Load()).
		Int64("failed", rm.failed.Load()).
		Dur("uptime", rm.now().Sub(rm.startTime).Round(time.Second)).
		Msg("✅ Refresh Manager Stopped")
}

// IsRunning returns whether the refresh loop is active
func (rm *RefreshManager) IsRunning() bool {
	return rm.running.Load()
}

// GetMetrics returns current refresh metrics
func (rm *RefreshManager) GetMetrics() map[string]interface{} {
	var last string
	if ts := rm.lastCycle.Load(); ts > 0 {
		last = time.Unix(ts, 0).UTC().Format(time.RFC3339)
	}

	return map[string]interface{}{
		"running":      rm.IsRunning(),
		"cycles":       rm.cycles.Load(),
		"updated":      rm.updated.Load(),
		"failed":       rm.failed.Load(),
		"cycle_errors": rm.cycleErr.Load(),
		"last_cycle":   last,
		"interval":     rm.interval.String(),
		"batch_size":   rm.batchSize,
	}
}

func (rm *RefreshManager) loop(ctx context.Context) {
	defer rm.wg.Done()

	if rm.runOnStartup && rm.DueOnStartup(ctx) {
		rm.RunCycle(ctx)
	}

	ticker := time.NewTicker(rm.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info().Msg("🛑 Refresh context cancelled")
			return

		case <-rm.stopCh:
			return

		case <-ticker.C:
			rm.RunCycle(ctx)
		}
	}
}

// DueOnStartup reports whether the last recorded cycle is older than one interval.
// A missing record counts as due.
func (rm *RefreshManager) DueOnStartup(ctx context.Context) bool {
	var record CycleRecord
	if _, err := rm.metadata.GetMetadata(ctx, LastCycleKey, &record); err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			logger.Warn().Err(err).Msg("Failed to read last refresh cycle")
		}
		return true
	}
	return rm.now().Sub(record.At) >= rm.interval
}

// RunCycle runs one batch and records its outcome
func (rm *RefreshManager) RunCycle(ctx context.Context) {
	summary, err := rm.refresher.RefreshBatch(ctx, rm.batchSize)
	rm.cycles.Add(1)

	if err != nil {
		rm.cycleErr.Add(1)
		logger.Error().Err(err).Msg("❌ Refresh cycle failed")
		return
	}

	rm.updated.Add(int64(summary.Updated))
	rm.failed.Add(int64(summary.Failed))

	at := rm.now().UTC()
	rm.lastCycle.Store(at.Unix())

	record := CycleRecord{At: at, Updated: summary.Updated, Failed: summary.Failed}
	if err := rm.metadata.SetMetadata(ctx, LastCycleKey, record); err != nil {
		logger.Warn().Err(err).Msg("Failed to record refresh cycle")
	}

	logger.Info().
		Int("updated", summary.Updated).
		Int("failed", summary.Failed).
		Int64("total_users", summary.TotalUsers).
		Msg("📊 Refresh cycle finished")
}
