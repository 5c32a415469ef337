// Package stroke defines the records the canvas engine reads and writes
// and the key space they live under, in both the cache and the backing log.
package stroke

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

const (
	// CounterKey names the shared allocation counter in both stores.
	CounterKey = "res-canvas-draw-count"

	// ClearKey names the global clear-cutoff timestamp in both stores.
	ClearKey = "clear-canvas-timestamp"

	idPrefix   = "res-canvas-draw-"
	undoPrefix = "undo-"
	redoPrefix = "redo-"
	undoSuffix = ":undo"
	redoSuffix = ":redo"
)

// Stroke is one drawn line. The same id may be committed to the backing
// log multiple times as undo/redo rewrite Undone and TS in place; the
// latest commit per id is the current state.
type Stroke struct {
	ID     string          `json:"id"`
	TS     int64           `json:"ts"`
	User   string          `json:"user"`
	Value  json.RawMessage `json:"value"`
	Undone bool            `json:"undone"`
}

// Encode serializes the stroke the way it is stored in the cache and the
// per-user stacks.
func (s Stroke) Encode() (string, error) {
	b, err := json.Marshal(s)
	if err != nil {
		return "", fmt.Errorf("encode stroke %s: %w", s.ID, err)
	}
	return string(b), nil
}

// Decode parses a serialized stroke.
func Decode(data string) (Stroke, error) {
	var s Stroke
	if err := json.Unmarshal([]byte(data), &s); err != nil {
		return Stroke{}, fmt.Errorf("decode stroke: %w", err)
	}
	return s, nil
}

// Marker is a cache-resident hint recording a stroke's most recent
// undo/redo transition. Value holds the pre-rewrite serialized stroke.
type Marker struct {
	ID     string `json:"id"`
	TS     int64  `json:"ts"`
	User   string `json:"user"`
	Undone bool   `json:"undone"`
	Value  string `json:"value"`
}

// CounterRecord is the backing-log document for the allocation counter.
type CounterRecord struct {
	ID    string `json:"id"`
	Value int64  `json:"value"`
}

// ClearRecord is the backing-log document for the clear cutoff.
type ClearRecord struct {
	ID string `json:"id"`
	TS int64  `json:"ts"`
}

// Key returns the stroke id for allocation index n.
func Key(n int64) string {
	return idPrefix + strconv.FormatInt(n, 10)
}

// Index extracts the allocation index from a stroke id.
func Index(id string) (int64, error) {
	raw, ok := strings.CutPrefix(id, idPrefix)
	if !ok {
		return 0, fmt.Errorf("not a stroke id: %q", id)
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("bad stroke index in %q: %w", id, err)
	}
	return n, nil
}

// UndoMarkerKey returns the cache key of the undo marker for a stroke id.
func UndoMarkerKey(id string) string { return undoPrefix + id }

// RedoMarkerKey returns the cache key of the redo marker for a stroke id.
func RedoMarkerKey(id string) string { return redoPrefix + id }

// MarkerStrokeID strips the undo-/redo- prefix from a marker id.
func MarkerStrokeID(markerID string) string {
	if raw, ok := strings.CutPrefix(markerID, undoPrefix); ok {
		return raw
	}
	if raw, ok := strings.CutPrefix(markerID, redoPrefix); ok {
		return raw
	}
	return markerID
}

// UndoStackKey returns the cache key of a user's undo stack.
func UndoStackKey(user string) string { return user + undoSuffix }

// RedoStackKey returns the cache key of a user's redo stack.
func RedoStackKey(user string) string { return user + redoSuffix }

// Patterns matched during cache-wide scans.
const (
	UndoMarkerPattern = undoPrefix + "*"
	RedoMarkerPattern = redoPrefix + "*"
	UndoStackPattern  = "*" + undoSuffix
	RedoStackPattern  = "*" + redoSuffix
)
