// Package http exposes the canvas engine over the stable HTTP surface
// the frontend speaks: stroke submission, visible-state reads, per-user
// undo/redo, global clear, and a websocket event stream.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"rescanvas/internal/engine"
	"rescanvas/internal/notify"
	"rescanvas/pkg/canvaserrors"
	"rescanvas/pkg/stroke"
)

const (
	contentTypeJSON        = "application/json"
	defaultHTTPPort        = "8080"
	defaultShutdownTimeout = time.Second * 5
)

type iEngine interface {
	Submit(ctx context.Context, sub engine.Submission) (stroke.Stroke, error)
	Undo(ctx context.Context, user string) error
	Redo(ctx context.Context, user string) error
	CheckAvailability(user string) (engine.Availability, error)
	Clear(ctx context.Context, ts int64) error
	VisibleStrokes(ctx context.Context, from int64) ([]stroke.Stroke, error)
	RebuildCache(ctx context.Context) (int, error)
}

type iHub interface {
	Subscribe() (string, <-chan notify.Event)
	Unsubscribe(id string)
}

// Server represents the HTTP server over the canvas engine.
type Server struct {
	engine     iEngine
	hub        iHub
	httpServer *http.Server
	URL        string
	addr       string
}

// NewServer creates a new server instance. hub may be nil to disable the
// websocket stream.
func NewServer(eng iEngine, hub iHub, port string) *Server {
	if port == "" {
		port = defaultHTTPPort
	}
	return &Server{
		engine: eng,
		hub:    hub,
		URL:    "http://localhost:" + port,
		addr:   ":" + port,
	}
}

// Start starts the server
func (s *Server) Start() error {
	s.httpServer = &http.Server{
		Addr:              s.addr,
		Handler:           s.createRouter(),
		ReadHeaderTimeout: time.Second,
	}

	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server error", "error", err)
		}
	}()

	slog.Info("HTTP server started", "addr", s.URL)
	return nil
}

// Stop stops the server
func (s *Server) Stop() error {
	if s.httpServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), defaultShutdownTimeout)
		defer cancel()

		if err := s.httpServer.Shutdown(ctx); err != nil {
			return fmt.Errorf("failed to shutdown HTTP server: %w", err)
		}
	}
	return nil
}

// createRouter builds chi router
func (s *Server) createRouter() http.Handler {
	r := chi.NewRouter()
	r.Use(corsMiddleware)

	r.Get("/health", s.handleHealth)
	r.Post("/submitClearCanvasTimestamp", s.handleClearTimestamp)
	r.Post("/submitNewLine", s.handleNewLine)
	r.Get("/getCanvasData", s.handleCanvasData)
	r.Get("/checkUndoRedo", s.handleCheckUndoRedo)
	r.Post("/undo", s.handleUndo)
	r.Post("/redo", s.handleRedo)
	r.Post("/admin/rebuildCache", s.handleRebuildCache)

	if s.hub != nil {
		r.Get("/ws", s.handleWS)
	}

	return r
}

// The frontend is served from another origin, so every response carries
// permissive CORS headers, preflights included.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", contentTypeJSON)
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Warn("Error encoding response", "error", err)
	}
}

func (s *Server) writeEngineError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, canvaserrors.ErrNothingToUndo):
		s.writeJSON(w, http.StatusBadRequest, NewErrorResponse("Nothing to undo"))
	case errors.Is(err, canvaserrors.ErrNothingToRedo):
		s.writeJSON(w, http.StatusBadRequest, NewErrorResponse("Nothing to redo"))
	case errors.Is(err, canvaserrors.ErrInvalidArgument):
		s.writeJSON(w, http.StatusBadRequest, NewErrorResponse(err.Error()))
	default:
		s.writeJSON(w, http.StatusInternalServerError, NewErrorResponse(err.Error()))
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, NewOKResponse())
}

func (s *Server) handleClearTimestamp(w http.ResponseWriter, r *http.Request) {
	var body struct {
		TS *int64 `json:"ts"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.writeJSON(w, http.StatusBadRequest, NewErrorResponse("Invalid input"))
		return
	}
	if body.TS == nil {
		s.writeJSON(w, http.StatusBadRequest, NewErrorResponse("Missing required fields: ts"))
		return
	}

	if err := s.engine.Clear(r.Context(), *body.TS); err != nil {
		s.writeEngineError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, NewSuccessResponse("timestamp submitted successfully"))
}

func (s *Server) handleNewLine(w http.ResponseWriter, r *http.Request) {
	var sub engine.Submission
	if err := json.NewDecoder(r.Body).Decode(&sub); err != nil {
		s.writeJSON(w, http.StatusBadRequest, NewErrorResponse("Invalid input"))
		return
	}
	if sub.TS == nil || sub.User == "" || len(sub.Value) == 0 {
		s.writeJSON(w, http.StatusBadRequest, NewErrorResponse("Missing required fields: ts, value or user"))
		return
	}

	if _, err := s.engine.Submit(r.Context(), sub); err != nil {
		s.writeEngineError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, NewSuccessResponse("Line submitted successfully"))
}

func (s *Server) handleCanvasData(w http.ResponseWriter, r *http.Request) {
	rawFrom := r.URL.Query().Get("from")
	if rawFrom == "" {
		s.writeJSON(w, http.StatusBadRequest, NewErrorResponse("Missing required fields: from"))
		return
	}
	from, err := strconv.ParseInt(rawFrom, 10, 64)
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, NewErrorResponse("Invalid from value"))
		return
	}

	strokes, err := s.engine.VisibleStrokes(r.Context(), from)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, NewDataResponse(strokes))
}

func (s *Server) handleCheckUndoRedo(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("userId")
	if userID == "" {
		s.writeJSON(w, http.StatusBadRequest, NewErrorResponse("User ID required"))
		return
	}

	av, err := s.engine.CheckAvailability(userID)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, av)
}

func (s *Server) handleUndo(w http.ResponseWriter, r *http.Request) {
	s.handleTransition(w, r, s.engine.Undo, "Undo successful")
}

func (s *Server) handleRedo(w http.ResponseWriter, r *http.Request) {
	s.handleTransition(w, r, s.engine.Redo, "Redo successful")
}

func (s *Server) handleTransition(w http.ResponseWriter, r *http.Request, op func(context.Context, string) error, message string) {
	var body struct {
		UserID string `json:"userId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.writeJSON(w, http.StatusBadRequest, NewErrorResponse("Invalid input"))
		return
	}
	if body.UserID == "" {
		s.writeJSON(w, http.StatusBadRequest, NewErrorResponse("User ID required"))
		return
	}

	if err := op(r.Context(), body.UserID); err != nil {
		s.writeEngineError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, NewSuccessResponse(message))
}

func (s *Server) handleRebuildCache(w http.ResponseWriter, r *http.Request) {
	restored, err := s.engine.RebuildCache(r.Context())
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, NewSuccessResponse(fmt.Sprintf("restored %d strokes", restored)))
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(*http.Request) bool { return true },
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("Websocket upgrade failed", "error", err)
		return
	}

	id, events := s.hub.Subscribe()
	defer func() {
		s.hub.Unsubscribe(id)
		_ = conn.Close()
	}()

	go func() {
		for ev := range events {
			if err := conn.WriteJSON(ev); err != nil {
				return
			}
		}
	}()

	// Hold the connection until the client goes away.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
