package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"rescanvas/internal/config"
	"rescanvas/internal/coordination"
	"rescanvas/internal/counter"
	"rescanvas/internal/engine"
	canvashttp "rescanvas/internal/http"
	"rescanvas/internal/notify"
	"rescanvas/pkg/backlog"
	"rescanvas/pkg/cache"
)

type timeProvider struct{}

func (tp *timeProvider) Now() time.Time {
	return time.Now()
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	configPath := flag.String("config", os.Getenv("RESCANVAS_CONFIG"), "path to yaml config")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	setupLogger(cfg.Logger)

	log, err := buildBacklog(cfg.Backlog)
	if err != nil {
		slog.Error("Failed to build backing log", "error", err)
		os.Exit(1)
	}

	store := cache.NewMemcache()

	alloc, closeLock, err := buildAllocator(cfg.Coordination, store, log)
	if err != nil {
		slog.Error("Failed to build allocator", "error", err)
		os.Exit(1)
	}
	defer closeLock()

	if err := alloc.Bootstrap(ctx); err != nil {
		slog.Error("Failed to bootstrap stroke counter", "error", err)
		os.Exit(1)
	}

	hub := notify.NewHub()
	eng := engine.New(store, log, alloc, hub, &timeProvider{})

	server := canvashttp.NewServer(eng, hub, strconv.Itoa(cfg.Server.Port))
	if err := server.Start(); err != nil {
		slog.Error("Failed to start HTTP server", "error", err)
		os.Exit(1)
	}

	<-ctx.Done()
	slog.Info("Shutting down")
	if err := server.Stop(); err != nil {
		slog.Error("Shutdown error", "error", err)
	}
}

func setupLogger(cfg config.LoggerConfig) {
	var level slog.Level
	switch strings.ToUpper(cfg.Level) {
	case "DEBUG":
		level = slog.LevelDebug
	case "WARN":
		level = slog.LevelWarn
	case "ERROR":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.JSON {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))
}

func buildBacklog(cfg config.BacklogConfig) (backlog.Log, error) {
	switch cfg.Mode {
	case "http":
		if cfg.CommitURL == "" || cfg.QueryURL == "" {
			return nil, fmt.Errorf("backlog mode http needs commit_url and query_url")
		}
		return backlog.NewHTTPLog(cfg.CommitURL, cfg.QueryURL), nil
	case "file":
		return backlog.NewFileLog(cfg.Dir)
	default:
		return nil, fmt.Errorf("unknown backlog mode %q", cfg.Mode)
	}
}

func buildAllocator(cfg config.CoordinationConfig, store cache.Store, log backlog.Log) (*counter.Allocator, func(), error) {
	if len(cfg.ZKServers) == 0 {
		return counter.New(store, log), func() {}, nil
	}

	lock, err := coordination.NewZKLock(cfg.ZKServers, cfg.RootPath)
	if err != nil {
		return nil, nil, fmt.Errorf("zookeeper counter lock: %w", err)
	}
	slog.Info("Counter lock backed by zookeeper", "servers", cfg.ZKServers)
	return counter.NewWithLocker(store, log, lock), func() { _ = lock.Close() }, nil
}
