package counter

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rescanvas/pkg/cache"
	"rescanvas/pkg/canvaserrors"
	"rescanvas/pkg/stroke"
)

type memLog struct {
	mu          sync.Mutex
	docs        map[string][]byte
	failCommits bool
	commits     int
}

func newMemLog() *memLog {
	return &memLog{docs: make(map[string][]byte)}
}

func (l *memLog) Commit(_ context.Context, id string, doc []byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.failCommits {
		return canvaserrors.ErrCommitFailed
	}
	l.commits++
	l.docs[id] = append([]byte(nil), doc...)
	return nil
}

func (l *memLog) Query(_ context.Context, id string) ([]byte, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	doc, ok := l.docs[id]
	return doc, ok, nil
}

func (l *memLog) loggedCount(t *testing.T) int64 {
	t.Helper()
	doc, ok, err := l.Query(context.Background(), stroke.CounterKey)
	require.NoError(t, err)
	require.True(t, ok)
	var rec stroke.CounterRecord
	require.NoError(t, json.Unmarshal(doc, &rec))
	return rec.Value
}

func TestBootstrapCommitsZero(t *testing.T) {
	store := cache.NewMemcache()
	log := newMemLog()
	alloc := New(store, log)

	require.NoError(t, alloc.Bootstrap(context.Background()))
	assert.Equal(t, int64(0), log.loggedCount(t))

	n, err := alloc.Current(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)
}

func TestBootstrapAdoptsExistingCount(t *testing.T) {
	store := cache.NewMemcache()
	log := newMemLog()
	doc, err := json.Marshal(stroke.CounterRecord{ID: stroke.CounterKey, Value: 7})
	require.NoError(t, err)
	require.NoError(t, log.Commit(context.Background(), stroke.CounterKey, doc))

	alloc := New(store, log)
	require.NoError(t, alloc.Bootstrap(context.Background()))

	// No extra commit beyond the seeded one.
	assert.Equal(t, 1, log.commits)

	n, err := alloc.Current(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(7), n)
}

func TestCurrentFallsBackToLogAndFillsCache(t *testing.T) {
	store := cache.NewMemcache()
	log := newMemLog()
	doc, err := json.Marshal(stroke.CounterRecord{ID: stroke.CounterKey, Value: 4})
	require.NoError(t, err)
	require.NoError(t, log.Commit(context.Background(), stroke.CounterKey, doc))

	alloc := New(store, log)
	n, err := alloc.Current(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(4), n)

	cached, ok, err := store.Get(stroke.CounterKey)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "4", cached)
}

func TestCurrentFailsWithoutAnySource(t *testing.T) {
	alloc := New(cache.NewMemcache(), newMemLog())
	_, err := alloc.Current(context.Background())
	assert.ErrorIs(t, err, canvaserrors.ErrUpstreamUnavailable)
}

func TestAllocateReturnsPreIncrementValue(t *testing.T) {
	store := cache.NewMemcache()
	log := newMemLog()
	alloc := New(store, log)
	require.NoError(t, alloc.Bootstrap(context.Background()))

	for want := int64(0); want < 5; want++ {
		got, err := alloc.Allocate(context.Background())
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	assert.Equal(t, int64(5), log.loggedCount(t))
}

func TestAllocateConcurrentUniqueness(t *testing.T) {
	store := cache.NewMemcache()
	log := newMemLog()
	alloc := New(store, log)
	require.NoError(t, alloc.Bootstrap(context.Background()))

	const n = 50
	var wg sync.WaitGroup
	results := make(chan int64, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, err := alloc.Allocate(context.Background())
			if err != nil {
				t.Error(err)
				return
			}
			results <- v
		}()
	}
	wg.Wait()
	close(results)

	seen := make(map[int64]bool)
	for v := range results {
		assert.False(t, seen[v], "duplicate index %d", v)
		seen[v] = true
	}
	assert.Len(t, seen, n)
	for i := int64(0); i < n; i++ {
		assert.True(t, seen[i], "missing index %d", i)
	}
}

func TestAllocateCommitFailureRollsCacheForward(t *testing.T) {
	store := cache.NewMemcache()
	log := newMemLog()
	alloc := New(store, log)
	require.NoError(t, alloc.Bootstrap(context.Background()))

	log.failCommits = true
	_, err := alloc.Allocate(context.Background())
	require.ErrorIs(t, err, canvaserrors.ErrCommitFailed)

	// The cache keeps the incremented value; a concurrent reader may
	// already have observed it.
	cached, ok, sErr := store.Get(stroke.CounterKey)
	require.NoError(t, sErr)
	require.True(t, ok)
	assert.Equal(t, "1", cached)

	// The leaked index is never handed out again.
	log.failCommits = false
	v, err := alloc.Allocate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), v)
}
