// Command dbusrestd serves the REST-to-D-Bus bridge: it loads
// configuration from the environment, connects to the system bus, and
// serves the `/xyz/...`, `/list/`, and `/bus/...` HTTP surfaces until
// interrupted.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hexbus/dbusrest/busclient"
	"github.com/hexbus/dbusrest/config"
	"github.com/hexbus/dbusrest/resolver"
	"github.com/hexbus/dbusrest/server"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel(cfg.LogLevel)}))
	slog.SetDefault(logger)

	resolver.SetMapperAddress(cfg.MapperService, busclient.ObjectPath(cfg.MapperPath))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	conn, err := busclient.Dial(ctx, cfg.BusSocketPath, logger)
	if err != nil {
		return fmt.Errorf("connecting to system bus at %s: %w", cfg.BusSocketPath, err)
	}
	defer conn.Close()

	httpServer := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: server.New(conn, logger),
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", cfg.ListenAddr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serveErr <- err
			return
		}
		serveErr <- nil
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("serving: %w", err)
		}
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down HTTP server: %w", err)
	}
	return <-serveErr
}

func logLevel(s string) slog.Level {
	switch s {
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
