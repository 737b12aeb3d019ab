package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/spf13/cobra"

	"github.com/zynqcloud/flatfs/internal/config"
	"github.com/zynqcloud/flatfs/internal/handler"
	"github.com/zynqcloud/flatfs/internal/store"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "run the HTTP server (default)",
	RunE:  runServe,
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "print the resolved configuration as TOML",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := config.Load(profile, configPath)
		if err != nil {
			return err
		}
		return toml.NewEncoder(cmd.OutOrStdout()).Encode(cfg)
	},
}

func newLogger(level string) *slog.Logger {
	var lv slog.Level
	if err := lv.UnmarshalText([]byte(strings.ToUpper(level))); err != nil {
		lv = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lv}))
}

func runServe(_ *cobra.Command, _ []string) error {
	cfg, err := config.Load(profile, configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := newLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	files, err := store.NewLocal(cfg.FilesDir)
	if err != nil {
		return fmt.Errorf("initialise files directory: %w", err)
	}
	public, err := store.NewLocal(cfg.PublicDir)
	if err != nil {
		return fmt.Errorf("initialise public directory: %w", err)
	}

	srv := &http.Server{
		Addr:    cfg.Addr(),
		Handler: handler.New(cfg, files, public, logger),
		// Bodies are not time-limited: slow uploads run until they finish,
		// disconnect or cross the size limit.
		ReadHeaderTimeout: 30 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}

	errc := make(chan error, 1)
	go func() {
		logger.Info("flatfs starting",
			"addr", srv.Addr,
			"files", files.Root(),
			"public", public.Root(),
			"max_file_size", cfg.MaxFileSize.String(),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
	}()

	// shutdownSignals is defined in signals.go (os.Interrupt) and extended by
	// signals_unix.go (+ SIGTERM) via build tags.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, shutdownSignals...)
	select {
	case err := <-errc:
		return fmt.Errorf("server error: %w", err)
	case <-quit:
	}

	logger.Info("shutdown signal received, draining connections")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("graceful shutdown failed", "err", err)
	}
	logger.Info("flatfs stopped")
	return nil
}
