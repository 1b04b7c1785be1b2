package scheduler

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"codeboard/internal/models"
	"codeboard/internal/provider"
	"codeboard/internal/reconcile"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memoryStore keeps registrations in insertion order and snapshots by username
type memoryStore struct {
	mu        sync.Mutex
	order     []string
	snapshots map[string]*models.Snapshot
	touched   []string
	selectErr error
	upsertErr error
}

func newMemoryStore(usernames ...string) *memoryStore {
	return &memoryStore{order: usernames, snapshots: make(map[string]*models.Snapshot)}
}

func (m *memoryStore) SelectStale(ctx context.Context, limit int) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.selectErr != nil {
		return nil, m.selectErr
	}

	ids := append([]string(nil), m.order...)
	position := make(map[string]int, len(ids))
	for i, id := range ids {
		position[id] = i
	}

	sort.SliceStable(ids, func(i, j int) bool {
		a, aok := m.snapshots[ids[i]]
		b, bok := m.snapshots[ids[j]]
		switch {
		case !aok && !bok:
			return position[ids[i]] < position[ids[j]]
		case !aok:
			return true
		case !bok:
			return false
		case !a.LastUpdated.Equal(b.LastUpdated):
			return a.LastUpdated.Before(b.LastUpdated)
		}
		return position[ids[i]] < position[ids[j]]
	})

	if limit < len(ids) {
		ids = ids[:limit]
	}
	return ids, nil
}

func (m *memoryStore) CountRegistered(ctx context.Context) (int64, error) {
	return int64(len(m.order)), nil
}

func (m *memoryStore) UpsertSnapshot(ctx context.Context, s *models.Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.upsertErr != nil {
		return m.upsertErr
	}
	m.snapshots[s.Username] = s
	return nil
}

func (m *memoryStore) TouchSnapshot(ctx context.Context, username string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.touched = append(m.touched, username)
	if existing, ok := m.snapshots[username]; ok {
		existing.LastUpdated = at
		return nil
	}
	m.snapshots[username] = models.NewPlaceholderSnapshot(username, at)
	return nil
}

type fakePipeline struct {
	failing map[string]error
	calls   []string
}

func (f *fakePipeline) Fetch(ctx context.Context, username string, now time.Time) (*models.Snapshot, error) {
	f.calls = append(f.calls, username)
	if err := f.failing[username]; err != nil {
		return nil, err
	}
	return &models.Snapshot{Username: username, Name: username, TotalSolved: 10, LastUpdated: now.UTC()}, nil
}

type recordingProjector struct {
	projected []string
	err       error
}

func (r *recordingProjector) Project(s *models.Snapshot) error {
	r.projected = append(r.projected, s.Username)
	return r.err
}

// tickingClock advances one second on every read
type tickingClock struct {
	t time.Time
}

func (c *tickingClock) Now() time.Time {
	c.t = c.t.Add(time.Second)
	return c.t
}

func newClock() *tickingClock {
	return &tickingClock{t: time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC)}
}

func TestRefreshBatch_UpdatesAndProjects(t *testing.T) {
	store := newMemoryStore("a", "b", "c")
	pipeline := &fakePipeline{}
	projector := &recordingProjector{}

	s := New(store, store, pipeline, WithProjector(projector), WithClock(newClock().Now))

	summary, err := s.RefreshBatch(context.Background(), 2)
	require.NoError(t, err)

	assert.Equal(t, 2, summary.Updated)
	assert.Equal(t, 0, summary.Failed)
	assert.Equal(t, []string{"a", "b"}, summary.Users)
	assert.Equal(t, int64(3), summary.TotalUsers)
	assert.Equal(t, "Updated 2 users, 0 failed", summary.Message)
	assert.Equal(t, []string{"a", "b"}, projector.projected)
	assert.True(t, summary.FinishedAt.After(summary.StartedAt))
}

func TestRefreshBatch_FailureTouchesRecord(t *testing.T) {
	store := newMemoryStore("a", "b")
	pipeline := &fakePipeline{failing: map[string]error{"a": &provider.ProfileNotFoundError{Username: "a", Source: "user"}}}
	projector := &recordingProjector{}

	s := New(store, store, pipeline, WithProjector(projector), WithClock(newClock().Now))

	summary, err := s.RefreshBatch(context.Background(), 5)
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Updated)
	assert.Equal(t, 1, summary.Failed)
	require.Len(t, summary.Errors, 1)
	assert.Equal(t, "a", summary.Errors[0].Username)
	assert.Contains(t, summary.Errors[0].Error, "not found")
	assert.Equal(t, []string{"a"}, store.touched)
	assert.Equal(t, []string{"b"}, projector.projected)

	placeholder := store.snapshots["a"]
	require.NotNil(t, placeholder)
	assert.Equal(t, "a", placeholder.Name)
	assert.Empty(t, placeholder.RecentSubmissions)
}

func TestRefreshBatch_StalenessRotation(t *testing.T) {
	store := newMemoryStore("x", "y", "z")
	pipeline := &fakePipeline{failing: map[string]error{"x": errors.New("provider down")}}

	s := New(store, store, pipeline, WithClock(newClock().Now))

	var order []string
	for i := 0; i < 4; i++ {
		summary, err := s.RefreshBatch(context.Background(), 1)
		require.NoError(t, err)
		require.Len(t, summary.Users, 1)
		order = append(order, summary.Users[0])
	}

	assert.Equal(t, []string{"x", "y", "z", "x"}, order, "a failed user waits until every other user had a turn")
}

func TestRefreshBatch_SelectionErrorIsReturned(t *testing.T) {
	store := newMemoryStore("a")
	store.selectErr = errors.New("db unavailable")

	_, err := New(store, store, &fakePipeline{}).RefreshBatch(context.Background(), 5)

	require.Error(t, err)
	assert.ErrorIs(t, err, store.selectErr)
	assert.Contains(t, err.Error(), "select stale users")
}

func TestRefreshBatch_NothingToDo(t *testing.T) {
	store := newMemoryStore()

	summary, err := New(store, store, &fakePipeline{}).RefreshBatch(context.Background(), 5)
	require.NoError(t, err)

	assert.Equal(t, "No users need updating", summary.Message)
	assert.Empty(t, summary.Users)
}

func TestRefreshBatch_ZeroLimit(t *testing.T) {
	store := newMemoryStore("a")
	pipeline := &fakePipeline{}

	summary, err := New(store, store, pipeline).RefreshBatch(context.Background(), 0)
	require.NoError(t, err)

	assert.Equal(t, "No users need updating", summary.Message)
	assert.Empty(t, pipeline.calls)
}

func TestRefreshBatch_StopsWhenCancelled(t *testing.T) {
	store := newMemoryStore("a", "b")
	pipeline := &fakePipeline{}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	summary, err := New(store, store, pipeline).RefreshBatch(ctx, 5)
	require.NoError(t, err)

	assert.Empty(t, summary.Users)
	assert.Empty(t, pipeline.calls)
	assert.Empty(t, store.touched)
}

func TestRefreshBatch_PersistFailureCountsAsFailed(t *testing.T) {
	store := newMemoryStore("a")
	store.upsertErr = errors.New("disk full")

	summary, err := New(store, store, &fakePipeline{}).RefreshBatch(context.Background(), 1)
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, []string{"a"}, store.touched)
}

func TestRefreshBatch_ProjectionFailureIsNotARefreshFailure(t *testing.T) {
	store := newMemoryStore("a")
	projector := &recordingProjector{err: errors.New("queue full")}

	summary, err := New(store, store, &fakePipeline{}, WithProjector(projector)).RefreshBatch(context.Background(), 1)
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Updated)
	assert.Empty(t, store.touched)
}

func TestRefreshOne(t *testing.T) {
	t.Run("persists on success", func(t *testing.T) {
		store := newMemoryStore("a")
		snapshot, err := New(store, store, &fakePipeline{}).RefreshOne(context.Background(), "a")
		require.NoError(t, err)

		assert.Equal(t, "a", snapshot.Username)
		assert.Same(t, snapshot, store.snapshots["a"])
	})

	t.Run("returns failure without touching", func(t *testing.T) {
		store := newMemoryStore("a")
		cause := errors.New("provider down")
		_, err := New(store, store, &fakePipeline{failing: map[string]error{"a": cause}}).RefreshOne(context.Background(), "a")

		assert.ErrorIs(t, err, cause)
		assert.Empty(t, store.touched)
		assert.NotContains(t, store.snapshots, "a")
	})
}

type slowPipeline struct{}

func (slowPipeline) Fetch(ctx context.Context, username string, now time.Time) (*models.Snapshot, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestFetchTimeout(t *testing.T) {
	store := newMemoryStore("a")
	s := New(store, store, slowPipeline{}, WithFetchTimeout(10*time.Millisecond))

	_, err := s.RefreshOne(context.Background(), "a")

	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Contains(t, err.Error(), "timed out")
}

type stubFetcher struct {
	profile *provider.RawProfile
	err     error
}

func (f stubFetcher) Fetch(ctx context.Context, username string) (*provider.RawProfile, error) {
	return f.profile, f.err
}

func TestProviderPipeline_BuildsSnapshot(t *testing.T) {
	now := time.Date(2024, 3, 10, 9, 0, 0, 0, time.UTC)
	w := reconcile.NewWindow(now)

	profile := &provider.RawProfile{
		Username: "alice",
		SubmitStats: provider.Raw{"acSubmissionNum": []any{
			map[string]any{"difficulty": "All", "count": 3.0, "submissions": 4.0},
		}},
		RecentSubmissions: []provider.Raw{
			{"titleSlug": "two-sum", "timestamp": float64(w.TodayStart + 10), "statusDisplay": "Accepted"},
		},
	}

	s, err := NewProviderPipeline(stubFetcher{profile: profile}, reconcile.New()).Fetch(context.Background(), "alice", now)
	require.NoError(t, err)

	assert.Equal(t, 3, s.TotalSolved)
	assert.Equal(t, 1, s.TodayQuestionsSolved)
	assert.Len(t, s.RecentSubmissions, 1)
	assert.True(t, s.LastUpdated.Equal(now))
}

func TestProviderPipeline_PropagatesFetchError(t *testing.T) {
	cause := &provider.ProfileFetchError{Username: "alice"}
	_, err := NewProviderPipeline(stubFetcher{err: cause}, reconcile.New()).Fetch(context.Background(), "alice", time.Now())

	var fetchErr *provider.ProfileFetchError
	assert.ErrorAs(t, err, &fetchErr)
}
