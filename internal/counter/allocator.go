// Package counter owns the shared stroke-index counter. All allocation
// goes through one critical section so concurrent writers can never
// observe the same pre-increment value.
package counter

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"

	"rescanvas/pkg/canvaserrors"
	"rescanvas/pkg/stroke"
)

type iCache interface {
	Get(key string) (string, bool, error)
	Set(key, value string) error
}

type iLog interface {
	Commit(ctx context.Context, id string, doc []byte) error
	Query(ctx context.Context, id string) ([]byte, bool, error)
}

// Locker guards the read-increment-commit critical section. The default
// spans one process; a zookeeper-backed one spans replicas sharing the
// same cache and backing log.
type Locker interface {
	Lock(ctx context.Context) error
	Unlock() error
}

type mutexLocker struct {
	mu sync.Mutex
}

func (m *mutexLocker) Lock(_ context.Context) error {
	m.mu.Lock()
	return nil
}

func (m *mutexLocker) Unlock() error {
	m.mu.Unlock()
	return nil
}

type Allocator struct {
	cache iCache
	log   iLog
	lock  Locker
}

func New(cache iCache, log iLog) *Allocator {
	return &Allocator{cache: cache, log: log, lock: &mutexLocker{}}
}

// NewWithLocker builds an allocator whose critical section is guarded by
// an external lock.
func NewWithLocker(cache iCache, log iLog, lock Locker) *Allocator {
	return &Allocator{cache: cache, log: log, lock: lock}
}

// Current returns the next index to allocate: cache first, backing log
// on a miss (filling the cache with the result).
func (a *Allocator) Current(ctx context.Context) (int64, error) {
	raw, ok, err := a.cache.Get(stroke.CounterKey)
	if err != nil {
		return 0, fmt.Errorf("read cached count: %w", err)
	}
	if ok {
		count, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("parse cached count %q: %w", raw, err)
		}
		return count, nil
	}

	doc, found, err := a.log.Query(ctx, stroke.CounterKey)
	if err != nil {
		return 0, fmt.Errorf("query count: %w", err)
	}
	if !found {
		return 0, fmt.Errorf("count record missing: %w", canvaserrors.ErrUpstreamUnavailable)
	}

	var rec stroke.CounterRecord
	if err := json.Unmarshal(doc, &rec); err != nil {
		return 0, fmt.Errorf("decode count record: %v: %w", err, canvaserrors.ErrUpstreamUnavailable)
	}
	if err := a.cache.Set(stroke.CounterKey, strconv.FormatInt(rec.Value, 10)); err != nil {
		return 0, fmt.Errorf("cache count: %w", err)
	}
	return rec.Value, nil
}

// Allocate reserves the next stroke index and returns it. The read,
// cache write, and backing-log commit happen as one atomic unit under
// the lock. On a failed commit the cache keeps the incremented value: a
// concurrent reader may already have seen it, so rolling back would be
// worse than the gap.
func (a *Allocator) Allocate(ctx context.Context) (int64, error) {
	if err := a.lock.Lock(ctx); err != nil {
		return 0, fmt.Errorf("acquire counter lock: %w", err)
	}
	defer func() { _ = a.lock.Unlock() }()

	count, err := a.Current(ctx)
	if err != nil {
		return 0, err
	}
	next := count + 1

	if err := a.cache.Set(stroke.CounterKey, strconv.FormatInt(next, 10)); err != nil {
		return 0, fmt.Errorf("cache incremented count: %w", err)
	}
	if err := a.commit(ctx, next); err != nil {
		return 0, err
	}
	return count, nil
}

// Bootstrap makes sure a count record exists before the first request:
// adopt the backing log's value if there is one, otherwise commit zero.
func (a *Allocator) Bootstrap(ctx context.Context) error {
	if _, ok, err := a.cache.Get(stroke.CounterKey); err != nil {
		return fmt.Errorf("read cached count: %w", err)
	} else if ok {
		return nil
	}

	doc, found, err := a.log.Query(ctx, stroke.CounterKey)
	if err != nil {
		return fmt.Errorf("query count: %w", err)
	}
	if found {
		var rec stroke.CounterRecord
		if err := json.Unmarshal(doc, &rec); err != nil {
			return fmt.Errorf("decode count record: %w", err)
		}
		return a.cache.Set(stroke.CounterKey, strconv.FormatInt(rec.Value, 10))
	}

	if err := a.commit(ctx, 0); err != nil {
		return err
	}
	return a.cache.Set(stroke.CounterKey, "0")
}

func (a *Allocator) commit(ctx context.Context, value int64) error {
	doc, err := json.Marshal(stroke.CounterRecord{ID: stroke.CounterKey, Value: value})
	if err != nil {
		return fmt.Errorf("encode count record: %w", err)
	}
	if err := a.log.Commit(ctx, stroke.CounterKey, doc); err != nil {
		return fmt.Errorf("commit count %d: %w", value, err)
	}
	return nil
}
