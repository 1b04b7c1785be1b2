package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"codeboard/internal/logger"
	"codeboard/internal/models"
)

// ErrQueueFull is returned by Submit when the queue cannot take another task
var ErrQueueFull = errors.New("worker pool queue full (backpressure)")

const projectTimeout = 5 * time.Second

// SnapshotWriter is the read-side store a projection task is written to
type SnapshotWriter interface {
	ProjectSnapshot(ctx context.Context, snapshot *models.Snapshot) error
}

// ProjectionTask represents a persisted snapshot waiting to be projected into the cache
type ProjectionTask struct {
	Snapshot *models.Snapshot
}

// WorkerPool projects persisted snapshots into Redis off the refresh path
type WorkerPool struct {
	jobs        chan ProjectionTask
	workerCount int
	writer      SnapshotWriter
	wg          sync.WaitGroup
	ctx         context.Context
	cancel      context.CancelFunc
	metrics     *PoolMetrics
	closeOnce   sync.Once
	closed      atomic.Bool
}

// PoolMetrics tracks worker pool performance
type PoolMetrics struct {
	mu              sync.RWMutex
	processed       int64
	failed          int64
	backpressure    int64
	totalProcessing time.Duration
}

// NewWorkerPool creates a new worker pool
func NewWorkerPool(workerCount, queueSize int, writer SnapshotWriter) *WorkerPool {
	ctx, cancel := context.WithCancel(context.Background())

	return &WorkerPool{
		jobs:        make(chan ProjectionTask, queueSize),
		workerCount: workerCount,
		writer:      writer,
		ctx:         ctx,
		cancel:      cancel,
		metrics:     &PoolMetrics{},
	}
}

// Start initializes and starts all worker goroutines
func (wp *WorkerPool) Start() {
	for i := 1; i <= wp.workerCount; i++ {
		wp.wg.Add(1)
		go wp.worker(i)
	}

	logger.Info().Int("workers", wp.workerCount).Int("queue_size", cap(wp.jobs)).Msg("🚀 Projection worker pool started")
}

func (wp *WorkerPool) worker(id int) {
	defer wp.wg.Done()

	for {
		select {
		case <-wp.ctx.Done():
			return

		case task, ok := <-wp.jobs:
			if !ok {
				return
			}
			wp.processTask(id, task)
		}
	}
}

// processTask writes one snapshot, recovering from panics so the worker survives
func (wp *WorkerPool) processTask(workerID int, task ProjectionTask) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error().Int("worker", workerID).Interface("panic", r).Str("username", task.Snapshot.Username).Msg("⚠️ Projection worker panic recovered")
			wp.metrics.incrementFailed()
		}
	}()

	startTime := time.Now()

	ctx, cancel := context.WithTimeout(wp.ctx, projectTimeout)
	defer cancel()

	err := wp.writer.ProjectSnapshot(ctx, task.Snapshot)
	processingTime := time.Since(startTime)

	if err != nil {
		logger.Error().Err(err).Int("worker", workerID).Str("username", task.Snapshot.Username).Dur("took", processingTime).Msg("❌ Failed to project snapshot")
		wp.metrics.incrementFailed()
		return
	}

	logger.Debug().Int("worker", workerID).Str("username", task.Snapshot.Username).Dur("took", processingTime).Msg("✓ Snapshot projected")
	wp.metrics.recordSuccess(processingTime)
}

// Submit queues a task without blocking; a full queue drops it
func (wp *WorkerPool) Submit(task ProjectionTask) error {
	if task.Snapshot == nil {
		return errors.New("projection task has no snapshot")
	}
	if wp.closed.Load() {
		return errors.New("worker pool is shut down")
	}

	select {
	case wp.jobs <- task:
		return nil

	default:
		logger.Warn().Str("username", task.Snapshot.Username).Msg("⚠️ BACKPRESSURE: queue full, dropping projection")
		wp.metrics.incrementBackpressure()
		return ErrQueueFull
	}
}

// Project submits a persisted snapshot for projection
func (wp *WorkerPool) Project(snapshot *models.Snapshot) error {
	return wp.Submit(ProjectionTask{Snapshot: snapshot})
}

// Shutdown gracefully stops the worker pool, draining queued tasks until timeout
func (wp *WorkerPool) Shutdown(timeout time.Duration) error {
	wp.closeOnce.Do(func() {
		wp.closed.Store(true)
		close(wp.jobs)
	})

	done := make(chan struct{})
	go func() {
		wp.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		m := wp.GetMetrics()
		logger.Info().
			Interface("processed", m["processed"]).
			Interface("failed", m["failed"]).
			Interface("backpressure_events", m["backpressure_events"]).
			Msg("✓ Projection worker pool drained")
		return nil

	case <-time.After(timeout):
		wp.cancel()
		return fmt.Errorf("worker pool shutdown timed out after %v", timeout)
	}
}

// GetMetrics returns a snapshot of the pool metrics
func (wp *WorkerPool) GetMetrics() map[string]interface{} {
	wp.metrics.mu.RLock()
	defer wp.metrics.mu.RUnlock()

	avgProcessing := time.Duration(0)
	if wp.metrics.processed > 0 {
		avgProcessing = wp.metrics.totalProcessing / time.Duration(wp.metrics.processed)
	}

	return map[string]interface{}{
		"processed":           wp.metrics.processed,
		"failed":              wp.metrics.failed,
		"backpressure_events": wp.metrics.backpressure,
		"avg_processing_time": avgProcessing.String(),
		"queue_utilization":   fmt.Sprintf("%d/%d", len(wp.jobs), cap(wp.jobs)),
	}
}

func (pm *PoolMetrics) recordSuccess(duration time.Duration) {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	pm.processed++
	pm.totalProcessing += duration
}

func (pm *PoolMetrics) incrementFailed() {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	pm.failed++
}

func (pm *PoolMetrics) incrementBackpressure() {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	pm.backpressure++
}
