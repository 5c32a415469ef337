package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"rescanvas/pkg/canvaserrors"
	"rescanvas/pkg/stroke"
)

// RebuildCache repopulates the cache from the backing log after detected
// drift or a cold cache: counter, clear cutoff, and every stroke in
// [0, count). The backing log wins on conflict. Undo/redo stacks and
// markers are volatile history and are not reconstructed. Returns the
// number of stroke entries restored.
func (e *Engine) RebuildCache(ctx context.Context) (int, error) {
	doc, found, err := e.log.Query(ctx, stroke.CounterKey)
	if err != nil {
		return 0, fmt.Errorf("query count: %w", err)
	}
	if !found {
		return 0, fmt.Errorf("count record missing: %w", canvaserrors.ErrUpstreamUnavailable)
	}
	var counter stroke.CounterRecord
	if err := json.Unmarshal(doc, &counter); err != nil {
		return 0, fmt.Errorf("decode count record: %w", err)
	}
	if err := e.cache.Set(stroke.CounterKey, strconv.FormatInt(counter.Value, 10)); err != nil {
		return 0, fmt.Errorf("cache count: %w", err)
	}

	if doc, found, err = e.log.Query(ctx, stroke.ClearKey); err == nil && found {
		var clear stroke.ClearRecord
		if err := json.Unmarshal(doc, &clear); err == nil {
			if err := e.cache.Set(stroke.ClearKey, strconv.FormatInt(clear.TS, 10)); err != nil {
				return 0, fmt.Errorf("cache clear timestamp: %w", err)
			}
		}
	}

	restored := 0
	for i := int64(0); i < counter.Value; i++ {
		key := stroke.Key(i)
		doc, found, err := e.log.Query(ctx, key)
		if err != nil {
			return restored, fmt.Errorf("query %s: %w", key, err)
		}
		if !found {
			continue
		}
		if err := e.cache.Set(key, string(doc)); err != nil {
			return restored, fmt.Errorf("cache %s: %w", key, err)
		}
		restored++
	}
	return restored, nil
}
