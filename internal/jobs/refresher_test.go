package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"codeboard/internal/models"
	"codeboard/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryMetadata struct {
	mu     sync.Mutex
	values map[string][]byte
	getErr error
}

func newMemoryMetadata() *memoryMetadata {
	return &memoryMetadata{values: make(map[string][]byte)}
}

func (m *memoryMetadata) GetMetadata(ctx context.Context, key string, dest any) (*models.Metadata, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.getErr != nil {
		return nil, m.getErr
	}
	raw, ok := m.values[key]
	if !ok {
		return nil, repository.ErrNotFound
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		return nil, err
	}
	return &models.Metadata{Key: key, Value: raw}, nil
}

func (m *memoryMetadata) SetMetadata(ctx context.Context, key string, value any) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	m.values[key] = raw
	return nil
}

type countingRefresher struct {
	mu     sync.Mutex
	limits []int
	err    error
	ran    chan struct{}
}

func (c *countingRefresher) RefreshBatch(ctx context.Context, limit int) (*models.RefreshSummary, error) {
	c.mu.Lock()
	c.limits = append(c.limits, limit)
	c.mu.Unlock()

	if c.ran != nil {
		select {
		case c.ran <- struct{}{}:
		default:
		}
	}
	if c.err != nil {
		return nil, c.err
	}
	return &models.RefreshSummary{Updated: limit - 1, Failed: 1, TotalUsers: 40}, nil
}

func (c *countingRefresher) calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.limits)
}

var now = time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)

func newManager(refresher BatchRefresher, metadata MetadataStore, cfg RefresherConfig) *RefreshManager {
	rm := NewRefreshManager(refresher, metadata, cfg)
	rm.now = func() time.Time { return now }
	return rm
}

func TestNewRefreshManager_Defaults(t *testing.T) {
	rm := NewRefreshManager(&countingRefresher{}, newMemoryMetadata(), RefresherConfig{})

	assert.Equal(t, 5*time.Minute, rm.interval)
	assert.Equal(t, 5, rm.batchSize)
}

func TestRunCycle_RecordsOutcome(t *testing.T) {
	refresher := &countingRefresher{}
	metadata := newMemoryMetadata()
	rm := newManager(refresher, metadata, RefresherConfig{BatchSize: 4})

	rm.RunCycle(context.Background())

	assert.Equal(t, []int{4}, refresher.limits)

	var record CycleRecord
	_, err := metadata.GetMetadata(context.Background(), LastCycleKey, &record)
	require.NoError(t, err)
	assert.True(t, record.At.Equal(now))
	assert.Equal(t, 3, record.Updated)
	assert.Equal(t, 1, record.Failed)

	metrics := rm.GetMetrics()
	assert.Equal(t, int64(1), metrics["cycles"])
	assert.Equal(t, int64(3), metrics["updated"])
	assert.Equal(t, int64(1), metrics["failed"])
	assert.Equal(t, "2024-03-10T12:00:00Z", metrics["last_cycle"])
}

func TestRunCycle_SelectionFailure(t *testing.T) {
	metadata := newMemoryMetadata()
	rm := newManager(&countingRefresher{err: errors.New("db down")}, metadata, RefresherConfig{})

	rm.RunCycle(context.Background())

	metrics := rm.GetMetrics()
	assert.Equal(t, int64(1), metrics["cycle_errors"])
	assert.Equal(t, "", metrics["last_cycle"])
	assert.Empty(t, metadata.values, "a failed cycle is not recorded")
}

func TestDueOnStartup(t *testing.T) {
	ctx := context.Background()

	t.Run("no record", func(t *testing.T) {
		rm := newManager(&countingRefresher{}, newMemoryMetadata(), RefresherConfig{Interval: time.Hour})
		assert.True(t, rm.DueOnStartup(ctx))
	})

	t.Run("store error", func(t *testing.T) {
		metadata := newMemoryMetadata()
		metadata.getErr = errors.New("connection reset")
		rm := newManager(&countingRefresher{}, metadata, RefresherConfig{Interval: time.Hour})
		assert.True(t, rm.DueOnStartup(ctx))
	})

	t.Run("recent cycle", func(t *testing.T) {
		metadata := newMemoryMetadata()
		require.NoError(t, metadata.SetMetadata(ctx, LastCycleKey, CycleRecord{At: now.Add(-10 * time.Minute)}))
		rm := newManager(&countingRefresher{}, metadata, RefresherConfig{Interval: time.Hour})
		assert.False(t, rm.DueOnStartup(ctx))
	})

	t.Run("old cycle", func(t *testing.T) {
		metadata := newMemoryMetadata()
		require.NoError(t, metadata.SetMetadata(ctx, LastCycleKey, CycleRecord{At: now.Add(-time.Hour)}))
		rm := newManager(&countingRefresher{}, metadata, RefresherConfig{Interval: time.Hour})
		assert.True(t, rm.DueOnStartup(ctx))
	})
}

func TestStartStop(t *testing.T) {
	refresher := &countingRefresher{ran: make(chan struct{}, 1)}
	rm := newManager(refresher, newMemoryMetadata(), RefresherConfig{Interval: time.Hour, RunOnStartup: true})

	require.NoError(t, rm.Start(context.Background()))
	assert.Error(t, rm.Start(context.Background()), "second start is rejected")
	assert.True(t, rm.IsRunning())
	assert.Equal(t, true, rm.GetMetrics()["running"])

	select {
	case <-refresher.ran:
	case <-time.After(2 * time.Second):
		t.Fatal("startup cycle did not run")
	}

	rm.Stop()
	rm.Stop()

	assert.False(t, rm.IsRunning())
	assert.Equal(t, false, rm.GetMetrics()["running"])
	assert.Equal(t, 1, refresher.calls())
}

func TestStart_SkipsStartupCycleWhenRecent(t *testing.T) {
	refresher := &countingRefresher{}
	metadata := newMemoryMetadata()
	require.NoError(t, metadata.SetMetadata(context.Background(), LastCycleKey, CycleRecord{At: now}))

	rm := newManager(refresher, metadata, RefresherConfig{Interval: time.Hour, RunOnStartup: true})
	require.NoError(t, rm.Start(context.Background()))
	rm.Stop()

	assert.Equal(t, 0, refresher.calls())
}

func TestLoop_ExitsOnContextCancel(t *testing.T) {
	rm := newManager(&countingRefresher{}, newMemoryMetadata(), RefresherConfig{Interval: time.Hour})

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, rm.Start(ctx))
	cancel()

	done := make(chan struct{})
	go func() {
		rm.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("loop did not exit after cancel")
	}
}
