package engine

import (
	"context"
	"encoding/json"
	"fmt"

	"rescanvas/internal/notify"
	"rescanvas/pkg/canvaserrors"
	"rescanvas/pkg/stroke"
)

// Submission is a not-yet-indexed stroke as submitted by a client. TS is
// a pointer so a missing field is distinguishable from an explicit zero.
type Submission struct {
	TS    *int64          `json:"ts"`
	User  string          `json:"user"`
	Value json.RawMessage `json:"value"`
}

// Submit assigns the next index to the stroke, commits it to the backing
// log, and on success mirrors it into the cache and the user's undo
// stack. A new stroke invalidates the user's redo history. The index is
// reserved before the stroke commit, so a failed commit leaves a gap in
// the id space rather than ever reusing an index.
func (e *Engine) Submit(ctx context.Context, sub Submission) (stroke.Stroke, error) {
	if sub.TS == nil || sub.User == "" || len(sub.Value) == 0 {
		return stroke.Stroke{}, fmt.Errorf("ts, value and user are required: %w", canvaserrors.ErrInvalidArgument)
	}

	n, err := e.alloc.Allocate(ctx)
	if err != nil {
		return stroke.Stroke{}, fmt.Errorf("allocate stroke index: %w", err)
	}

	s := stroke.Stroke{
		ID:     stroke.Key(n),
		TS:     *sub.TS,
		User:   sub.User,
		Value:  sub.Value,
		Undone: false,
	}
	encoded, err := s.Encode()
	if err != nil {
		return stroke.Stroke{}, err
	}

	if err := e.log.Commit(ctx, s.ID, []byte(encoded)); err != nil {
		return stroke.Stroke{}, fmt.Errorf("commit stroke %s: %w", s.ID, err)
	}

	if err := e.cache.Set(s.ID, encoded); err != nil {
		return stroke.Stroke{}, fmt.Errorf("cache stroke %s: %w", s.ID, err)
	}
	if err := e.cache.LPush(stroke.UndoStackKey(s.User), encoded); err != nil {
		return stroke.Stroke{}, fmt.Errorf("push undo stack for %s: %w", s.User, err)
	}
	if err := e.cache.Delete(stroke.RedoStackKey(s.User)); err != nil {
		return stroke.Stroke{}, fmt.Errorf("clear redo stack for %s: %w", s.User, err)
	}

	e.publish(notify.Event{Type: notify.EventStroke, Stroke: &s})
	return s, nil
}
