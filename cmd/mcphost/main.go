// Command mcphost runs the MCP host: it spawns the backend tool servers
// named in its backend configuration file, and exposes them to any number
// of AI clients over a small JSON-RPC-over-HTTP surface with an SSE
// notification stream (spec §1, §6).
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mcphost/mcphost/internal/bus"
	"github.com/mcphost/mcphost/internal/bus/memory"
	"github.com/mcphost/mcphost/internal/bus/redisbroker"
	"github.com/mcphost/mcphost/internal/config"
	"github.com/mcphost/mcphost/internal/dispatcher"
	"github.com/mcphost/mcphost/internal/httpapi"
	"github.com/mcphost/mcphost/internal/logctx"
	"github.com/mcphost/mcphost/internal/manager"
	"github.com/mcphost/mcphost/internal/tools"
)

const (
	exitOK            = 0
	exitConfigFailure = 1
	exitBindFailure   = 2
)

func main() {
	os.Exit(run())
}

func run() int {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "mcphost: failed to load configuration:", err)
		return exitConfigFailure
	}

	logger := newLogger(cfg)

	backendConfigs, err := config.LoadBackends(cfg.BackendConfigPath)
	if err != nil {
		logger.Error("failed to load backend configuration", slog.Any("error", err))
		return exitConfigFailure
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.WatchBackendConfig {
		if err := config.WatchBackendConfig(ctx, cfg.BackendConfigPath, logger); err != nil {
			logger.Warn("could not watch backend configuration file", slog.Any("error", err))
		}
	}

	notificationBus := newBus(cfg, logger)

	mgr := manager.New(logger)
	mgr.Start(ctx, backendConfigs)
	defer mgr.Shutdown(context.Background())

	builtin := tools.NewRegistry()
	d := dispatcher.New(mgr, notificationBus, builtin, logger)
	server := httpapi.New(d, notificationBus, mgr, logger)

	listener, err := net.Listen("tcp", cfg.ListenAddr)
	if err != nil {
		logger.Error("failed to bind listen address", slog.String("addr", cfg.ListenAddr), slog.Any("error", err))
		return exitBindFailure
	}

	httpServer := &http.Server{Handler: server}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("mcphost listening", slog.String("addr", cfg.ListenAddr))
		serveErr <- httpServer.Serve(listener)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err := <-serveErr:
		if err != nil && err != http.ErrServerClosed {
			logger.Error("http server failed", slog.Any("error", err))
			return exitBindFailure
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("error during graceful http shutdown", slog.Any("error", err))
	}

	return exitOK
}

func newLogger(cfg config.HostConfig) *slog.Logger {
	level := parseLevel(cfg.LogLevel)
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if cfg.LogFormat == "text" {
		handler = slog.NewTextHandler(os.Stderr, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	}
	return slog.New(logctx.Handler{Handler: handler})
}

func parseLevel(name string) slog.Level {
	switch name {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func newBus(cfg config.HostConfig, logger *slog.Logger) *bus.Bus {
	if cfg.BusRedisAddr == "" {
		return bus.New(memory.New(logger))
	}

	redisCfg, err := redisbroker.LoadConfig()
	if err != nil {
		logger.Warn("failed to decode redis bus configuration; falling back to in-memory bus", slog.Any("error", err))
		return bus.New(memory.New(logger))
	}
	if redisCfg.Addr == "" {
		redisCfg.Addr = cfg.BusRedisAddr
	}

	client := redis.NewClient(&redis.Options{Addr: redisCfg.Addr})
	logger.Info("notification bus backed by redis", slog.String("addr", redisCfg.Addr))
	return bus.New(redisbroker.New(client, redisCfg, logger))
}
