package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"rescanvas/internal/counter"
	"rescanvas/internal/engine"
	"rescanvas/pkg/cache"
	"rescanvas/pkg/canvaserrors"
	"rescanvas/pkg/stroke"
)

// in-memory fake backing log, latest commit wins per id
type fakeLog struct {
	mu   sync.Mutex
	docs map[string][]byte
	fail bool
}

func newFakeLog() *fakeLog {
	return &fakeLog{docs: make(map[string][]byte)}
}

func (l *fakeLog) Commit(_ context.Context, id string, doc []byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.fail {
		return canvaserrors.ErrCommitFailed
	}
	l.docs[id] = append([]byte(nil), doc...)
	return nil
}

func (l *fakeLog) Query(_ context.Context, id string) ([]byte, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	doc, ok := l.docs[id]
	return doc, ok, nil
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func newTestServer(t *testing.T) (*Server, *fakeLog) {
	t.Helper()
	store := cache.NewMemcache()
	log := newFakeLog()
	alloc := counter.New(store, log)
	if err := alloc.Bootstrap(context.Background()); err != nil {
		t.Fatalf("bootstrap failed: %v", err)
	}
	eng := engine.New(store, log, alloc, nil, realClock{})
	return NewServer(eng, nil, ""), log
}

func doJSON(t *testing.T, s *Server, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", contentTypeJSON)
	}
	rr := httptest.NewRecorder()
	s.createRouter().ServeHTTP(rr, req)
	return rr
}

func decodeResp(t *testing.T, rr *httptest.ResponseRecorder) Response {
	t.Helper()
	var resp Response
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response JSON: %v, body=%s", err, rr.Body.String())
	}
	return resp
}

func canvasData(t *testing.T, s *Server, from string) []stroke.Stroke {
	t.Helper()
	rr := doJSON(t, s, http.MethodGet, "/getCanvasData?from="+from, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("getCanvasData: expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var resp struct {
		Status string          `json:"status"`
		Data   []stroke.Stroke `json:"data"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode canvas data: %v", err)
	}
	return resp.Data
}

func TestHealthHandler(t *testing.T) {
	s, _ := newTestServer(t)

	rr := doJSON(t, s, http.MethodGet, "/health", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	resp := decodeResp(t, rr)
	if resp.Status != StatusOK {
		t.Fatalf("expected status %s, got %s", StatusOK, resp.Status)
	}
}

func TestSubmitUndoRedoRoundTrip(t *testing.T) {
	s, _ := newTestServer(t)

	rr := doJSON(t, s, http.MethodPost, "/submitNewLine", `{"ts":1000,"value":"v1","user":"alice"}`)
	if rr.Code != http.StatusCreated {
		t.Fatalf("submit: expected 201, got %d: %s", rr.Code, rr.Body.String())
	}

	data := canvasData(t, s, "0")
	if len(data) != 1 {
		t.Fatalf("expected 1 stroke, got %d", len(data))
	}
	if data[0].ID != "res-canvas-draw-0" {
		t.Fatalf("expected id res-canvas-draw-0, got %s", data[0].ID)
	}
	if data[0].Undone {
		t.Fatal("fresh stroke must not be undone")
	}

	rr = doJSON(t, s, http.MethodPost, "/undo", `{"userId":"alice"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("undo: expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if data := canvasData(t, s, "0"); len(data) != 0 {
		t.Fatalf("expected empty canvas after undo, got %d strokes", len(data))
	}

	rr = doJSON(t, s, http.MethodPost, "/redo", `{"userId":"alice"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("redo: expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	data = canvasData(t, s, "0")
	if len(data) != 1 || data[0].ID != "res-canvas-draw-0" {
		t.Fatalf("expected the original stroke back, got %+v", data)
	}
}

func TestSubmitValidation(t *testing.T) {
	s, _ := newTestServer(t)

	cases := []string{
		`{}`,
		`{"ts":1000,"user":"alice"}`,
		`{"ts":1000,"value":"v"}`,
		`{"value":"v","user":"alice"}`,
	}
	for _, body := range cases {
		rr := doJSON(t, s, http.MethodPost, "/submitNewLine", body)
		if rr.Code != http.StatusBadRequest {
			t.Fatalf("body %s: expected 400, got %d", body, rr.Code)
		}
		resp := decodeResp(t, rr)
		if resp.Status != StatusError {
			t.Fatalf("body %s: expected error status, got %s", body, resp.Status)
		}
	}
}

func TestCanvasDataRequiresFrom(t *testing.T) {
	s, _ := newTestServer(t)

	rr := doJSON(t, s, http.MethodGet, "/getCanvasData", "")
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}

	rr = doJSON(t, s, http.MethodGet, "/getCanvasData?from=abc", "")
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for non-numeric from, got %d", rr.Code)
	}
}

func TestCheckUndoRedo(t *testing.T) {
	s, _ := newTestServer(t)

	rr := doJSON(t, s, http.MethodGet, "/checkUndoRedo", "")
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without userId, got %d", rr.Code)
	}

	rr = doJSON(t, s, http.MethodGet, "/checkUndoRedo?userId=alice", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var av engine.Availability
	if err := json.Unmarshal(rr.Body.Bytes(), &av); err != nil {
		t.Fatalf("failed to decode availability: %v", err)
	}
	if av.UndoAvailable || av.RedoAvailable {
		t.Fatal("expected nothing to undo or redo for a fresh user")
	}

	doJSON(t, s, http.MethodPost, "/submitNewLine", `{"ts":1000,"value":"v","user":"alice"}`)
	rr = doJSON(t, s, http.MethodGet, "/checkUndoRedo?userId=alice", "")
	_ = json.Unmarshal(rr.Body.Bytes(), &av)
	if !av.UndoAvailable {
		t.Fatal("expected undo to be available after a submission")
	}
}

func TestUndoNothingToUndo(t *testing.T) {
	s, _ := newTestServer(t)

	rr := doJSON(t, s, http.MethodPost, "/undo", `{"userId":"alice"}`)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
	resp := decodeResp(t, rr)
	if resp.Message != "Nothing to undo" {
		t.Fatalf("expected 'Nothing to undo', got %q", resp.Message)
	}

	rr = doJSON(t, s, http.MethodPost, "/undo", `{}`)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without userId, got %d", rr.Code)
	}
}

func TestClearTimestamp(t *testing.T) {
	s, _ := newTestServer(t)

	rr := doJSON(t, s, http.MethodPost, "/submitClearCanvasTimestamp", `{}`)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without ts, got %d", rr.Code)
	}

	doJSON(t, s, http.MethodPost, "/submitNewLine", `{"ts":1000,"value":"v","user":"alice"}`)

	rr = doJSON(t, s, http.MethodPost, "/submitClearCanvasTimestamp", `{"ts":2000}`)
	if rr.Code != http.StatusCreated {
		t.Fatalf("clear: expected 201, got %d: %s", rr.Code, rr.Body.String())
	}

	if data := canvasData(t, s, "0"); len(data) != 0 {
		t.Fatalf("expected empty canvas after clear, got %d strokes", len(data))
	}
}

func TestSubmitBackingLogFailure(t *testing.T) {
	s, log := newTestServer(t)

	log.fail = true
	rr := doJSON(t, s, http.MethodPost, "/submitNewLine", `{"ts":1000,"value":"v","user":"alice"}`)
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 when the backing log rejects writes, got %d", rr.Code)
	}
}

func TestRebuildCache(t *testing.T) {
	s, _ := newTestServer(t)

	doJSON(t, s, http.MethodPost, "/submitNewLine", `{"ts":1000,"value":"v","user":"alice"}`)

	rr := doJSON(t, s, http.MethodPost, "/admin/rebuildCache", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("rebuild: expected 200, got %d: %s", rr.Code, rr.Body.String())
	}

	if data := canvasData(t, s, "0"); len(data) != 1 {
		t.Fatalf("expected 1 stroke after rebuild, got %d", len(data))
	}
}

func TestCORSHeaders(t *testing.T) {
	s, _ := newTestServer(t)

	rr := doJSON(t, s, http.MethodGet, "/health", "")
	if got := rr.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Fatalf("expected wildcard CORS origin, got %q", got)
	}

	req := httptest.NewRequest(http.MethodOptions, "/submitNewLine", nil)
	pre := httptest.NewRecorder()
	s.createRouter().ServeHTTP(pre, req)
	if pre.Code != http.StatusNoContent {
		t.Fatalf("expected 204 for preflight, got %d", pre.Code)
	}
}
