package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"rescanvas/internal/notify"
	"rescanvas/pkg/stroke"
)

// Clear commits a new clear cutoff and, on success, caches it and wipes
// every user's undo/redo history and all transition markers. Strokes
// with ts at or below the cutoff stop being visible; the records
// themselves stay in the backing log. Last write wins on the timestamp.
func (e *Engine) Clear(ctx context.Context, ts int64) error {
	doc, err := json.Marshal(stroke.ClearRecord{ID: stroke.ClearKey, TS: ts})
	if err != nil {
		return fmt.Errorf("encode clear record: %w", err)
	}
	if err := e.log.Commit(ctx, stroke.ClearKey, doc); err != nil {
		return fmt.Errorf("commit clear timestamp: %w", err)
	}

	if err := e.cache.Set(stroke.ClearKey, strconv.FormatInt(ts, 10)); err != nil {
		return fmt.Errorf("cache clear timestamp: %w", err)
	}

	patterns := []string{
		stroke.UndoStackPattern,
		stroke.RedoStackPattern,
		stroke.UndoMarkerPattern,
		stroke.RedoMarkerPattern,
	}
	for _, pattern := range patterns {
		keys, err := e.cache.Keys(pattern)
		if err != nil {
			return fmt.Errorf("scan %s: %w", pattern, err)
		}
		for _, key := range keys {
			if err := e.cache.Delete(key); err != nil {
				return fmt.Errorf("delete %s: %w", key, err)
			}
		}
	}

	e.publish(notify.Event{Type: notify.EventClear, TS: ts})
	return nil
}
