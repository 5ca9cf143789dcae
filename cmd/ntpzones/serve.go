package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/ntpzones/ntpzones/internal/config"
	"github.com/ntpzones/ntpzones/internal/export"
	"github.com/ntpzones/ntpzones/internal/logger"
	"github.com/ntpzones/ntpzones/internal/web"
)

func newServeCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:         "serve",
		Short:       "Run the web console",
		Args:        cobra.NoArgs,
		Annotations: map[string]string{annotationLogStdout: "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.serve()
		},
	}
}

// newConsole wires the web console to app. Every snapshot app builds, for
// the console, the exporter or the startup build, grades the shared monitor.
func newConsole(cfg *config.Config, app *App, log *logger.Logger) *web.Server {
	return web.NewServer(web.ServerConfig{
		Addr:         cfg.GetWebAddr(),
		Password:     cfg.GetWebPassword(),
		PushInterval: cfg.GetPushInterval(),
		Snapshot:     app.Snapshot,
		Metrics:      app.metrics.Handler(),
		Health:       app.health,
		Logger:       log.With("component", "web"),
	})
}

func (c *cli) serve() error {
	log := c.log
	cfg := c.config

	log.Info("ntpzones starting",
		"version", Version,
		"commit", GitCommit,
		"pid", os.Getpid())

	app, err := NewApp(cfg, log)
	if err != nil {
		return err
	}

	server := newConsole(cfg, app, log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go app.warmUp(ctx)

	if cfg.ExportEnabled() {
		client, err := export.NewClientFromConfig(cfg.Export)
		if err != nil {
			return fmt.Errorf("export: %w", err)
		}
		exporter := export.NewExporter(client, app.Snapshot, log.With("component", "export"))
		go exporter.Run(ctx, cfg.Export.Interval())
		log.Info("Periodic export enabled",
			"host", cfg.Export.Host,
			"interval", cfg.Export.Interval())
	}

	// Start web server with panic recovery
	webErrChan := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				log.Error("Web server panicked", "panic", r, "stack", string(debug.Stack()))
				webErrChan <- fmt.Errorf("web server panic: %v", r)
			}
		}()

		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			webErrChan <- err
		}
	}()

	// Wait for shutdown signal or fatal error
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	var fatal error
	select {
	case <-sigChan:
		log.Info("Shutting down gracefully...")
	case fatal = <-webErrChan:
		log.Error("Fatal error - shutting down", "error", fatal)
	}

	cancel()

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer stopCancel()
	if err := server.Stop(stopCtx); err != nil {
		log.Error("Error stopping server", "error", err)
	}

	log.Info("Goodbye!")
	return fatal
}
