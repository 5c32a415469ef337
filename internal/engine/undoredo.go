package engine

import (
	"context"
	"encoding/json"
	"fmt"

	"rescanvas/internal/notify"
	"rescanvas/pkg/canvaserrors"
	"rescanvas/pkg/stroke"
)

// Availability reports whether a user currently has anything to undo or
// redo. Cache-only; no backing-log fallback.
type Availability struct {
	UndoAvailable bool `json:"undoAvailable"`
	RedoAvailable bool `json:"redoAvailable"`
}

// Undo pops the user's most recent stroke onto the redo stack, rewrites
// it as undone in the backing log, and leaves an undo marker in the
// cache. The pop is not rolled back on a failed commit: the stacks are
// volatile history and the next view read takes the log's word anyway.
func (e *Engine) Undo(ctx context.Context, user string) error {
	return e.transition(ctx, user, true)
}

// Redo is the inverse transition.
func (e *Engine) Redo(ctx context.Context, user string) error {
	return e.transition(ctx, user, false)
}

func (e *Engine) transition(ctx context.Context, user string, undo bool) error {
	if user == "" {
		return fmt.Errorf("user id is required: %w", canvaserrors.ErrInvalidArgument)
	}

	lock := e.userLock(user)
	lock.Lock()
	defer lock.Unlock()

	fromKey, toKey := stroke.UndoStackKey(user), stroke.RedoStackKey(user)
	empty := canvaserrors.ErrNothingToUndo
	if !undo {
		fromKey, toKey = toKey, fromKey
		empty = canvaserrors.ErrNothingToRedo
	}

	popped, ok, err := e.cache.LPop(fromKey)
	if err != nil {
		return fmt.Errorf("pop %s: %w", fromKey, err)
	}
	if !ok {
		return empty
	}
	if err := e.cache.LPush(toKey, popped); err != nil {
		return fmt.Errorf("push %s: %w", toKey, err)
	}

	s, err := stroke.Decode(popped)
	if err != nil {
		return fmt.Errorf("decode popped stroke for %s: %w", user, err)
	}

	now := e.tp.Now().UnixMilli()
	s.Undone = undo
	s.TS = now
	rewritten, err := s.Encode()
	if err != nil {
		return err
	}
	if err := e.log.Commit(ctx, s.ID, []byte(rewritten)); err != nil {
		return fmt.Errorf("commit rewritten stroke %s: %w", s.ID, err)
	}
	// The cached entry must track the log's latest commit, or a view
	// after the markers are gone would resurrect the pre-transition
	// record.
	if err := e.cache.Set(s.ID, rewritten); err != nil {
		return fmt.Errorf("cache rewritten stroke %s: %w", s.ID, err)
	}

	// The marker records the most recent transition, so the opposite one
	// must not survive it.
	markerKey, staleKey := stroke.UndoMarkerKey(s.ID), stroke.RedoMarkerKey(s.ID)
	eventType := notify.EventUndo
	if !undo {
		markerKey, staleKey = staleKey, markerKey
		eventType = notify.EventRedo
	}
	marker := stroke.Marker{
		ID:     markerKey,
		TS:     now,
		User:   user,
		Undone: undo,
		Value:  popped,
	}
	doc, err := json.Marshal(marker)
	if err != nil {
		return fmt.Errorf("encode marker %s: %w", markerKey, err)
	}
	if err := e.cache.Set(markerKey, string(doc)); err != nil {
		return fmt.Errorf("cache marker %s: %w", markerKey, err)
	}
	if err := e.cache.Delete(staleKey); err != nil {
		return fmt.Errorf("drop stale marker %s: %w", staleKey, err)
	}

	e.publish(notify.Event{Type: eventType, Stroke: &s})
	return nil
}

// CheckAvailability reports stack depth per user from the cache alone.
func (e *Engine) CheckAvailability(user string) (Availability, error) {
	if user == "" {
		return Availability{}, fmt.Errorf("user id is required: %w", canvaserrors.ErrInvalidArgument)
	}

	undoLen, err := e.cache.LLen(stroke.UndoStackKey(user))
	if err != nil {
		return Availability{}, fmt.Errorf("undo stack length for %s: %w", user, err)
	}
	redoLen, err := e.cache.LLen(stroke.RedoStackKey(user))
	if err != nil {
		return Availability{}, fmt.Errorf("redo stack length for %s: %w", user, err)
	}
	return Availability{UndoAvailable: undoLen > 0, RedoAvailable: redoLen > 0}, nil
}
