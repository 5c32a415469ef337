package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"

	"rescanvas/pkg/stroke"
)

// VisibleStrokes reconstructs the ordered visible state from index from
// up to the current count: cache hits first, backing-log fallback on a
// miss (filling the cache), filtered by the undo markers and the clear
// cutoff, deduplicated latest-ts-wins per id, undone strokes dropped,
// sorted by allocation index. An index that neither store can produce
// contributes nothing.
func (e *Engine) VisibleStrokes(ctx context.Context, from int64) ([]stroke.Stroke, error) {
	count, err := e.alloc.Current(ctx)
	if err != nil {
		return nil, fmt.Errorf("resolve stroke count: %w", err)
	}
	clearTS := e.clearTimestamp(ctx)

	redone := e.markerStrokeIDs(stroke.RedoMarkerPattern, nil)
	undone := e.markerStrokeIDs(stroke.UndoMarkerPattern, redone)

	var candidates []stroke.Stroke
	for i := from; i < count; i++ {
		key := stroke.Key(i)

		raw, ok, err := e.cache.Get(key)
		if err != nil {
			return nil, fmt.Errorf("read cached stroke %s: %w", key, err)
		}
		if !ok {
			doc, found, qerr := e.log.Query(ctx, key)
			if qerr != nil {
				slog.Warn("Backing log fallback failed", "key", key, "error", qerr)
				continue
			}
			if !found {
				continue
			}
			raw = string(doc)
			// The stroke is already in hand; a failed refill only
			// costs the next reader another log round-trip.
			if err := e.cache.Set(key, raw); err != nil {
				slog.Warn("Failed to refill cache from backing log", "key", key, "error", err)
			}
		}

		s, err := stroke.Decode(raw)
		if err != nil {
			slog.Warn("Undecodable stroke record", "key", key, "error", err)
			continue
		}
		if undone[s.ID] {
			continue
		}
		if s.TS <= clearTS {
			continue
		}
		candidates = append(candidates, s)
	}

	// The log may hold several commits per id across its history; only
	// the most recent reflects current state.
	latest := make(map[string]stroke.Stroke, len(candidates))
	for _, s := range candidates {
		if prev, ok := latest[s.ID]; !ok || s.TS > prev.TS {
			latest[s.ID] = s
		}
	}

	visible := make([]stroke.Stroke, 0, len(latest))
	for _, s := range latest {
		if !s.Undone {
			visible = append(visible, s)
		}
	}

	sort.Slice(visible, func(i, j int) bool {
		a, _ := stroke.Index(visible[i].ID)
		b, _ := stroke.Index(visible[j].ID)
		return a < b
	})
	return visible, nil
}

// markerStrokeIDs scans cached markers matching pattern and returns the
// stroke ids they reference, skipping ids present in superseded. An undo
// marker is superseded by a redo marker for the same stroke.
func (e *Engine) markerStrokeIDs(pattern string, superseded map[string]bool) map[string]bool {
	ids := make(map[string]bool)

	keys, err := e.cache.Keys(pattern)
	if err != nil {
		slog.Warn("Marker scan failed", "pattern", pattern, "error", err)
		return ids
	}
	for _, key := range keys {
		raw, ok, err := e.cache.Get(key)
		if err != nil || !ok {
			continue
		}
		var m stroke.Marker
		if err := json.Unmarshal([]byte(raw), &m); err != nil {
			slog.Warn("Undecodable marker", "key", key, "error", err)
			continue
		}
		id := stroke.MarkerStrokeID(m.ID)
		if superseded[id] {
			continue
		}
		ids[id] = true
	}
	return ids
}
