package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/m3rciful/timebot/core/bootstrap"
	"github.com/m3rciful/timebot/core/logger"
	"github.com/m3rciful/timebot/internal/api"
	"github.com/m3rciful/timebot/internal/storage"
)

const shutdownTimeout = 10 * time.Second

var serveSkipMigrations bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().BoolVar(&serveSkipMigrations, "skip-migrations", false, "Do not apply pending migrations on start")
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	infra, err := bootstrap.Run(bootstrap.Options{
		Config:         cfg.CoreConfig(),
		Database:       &cfg.Database,
		SkipMigrations: serveSkipMigrations,
	})
	if err != nil {
		return err
	}
	defer func() {
		_ = infra.Close()
		_ = logger.Shutdown()
	}()

	svc := api.New(storage.New(infra.DB), api.Options{
		DefaultCategories: cfg.Server.DefaultCategories,
		Logger:            logger.API,
	})
	srv := &http.Server{
		Addr:              cfg.Server.Listen,
		Handler:           svc,
		ReadTimeout:       time.Duration(cfg.Server.ReadTimeoutSeconds) * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      time.Duration(cfg.Server.WriteTimeoutSeconds) * time.Second,
	}

	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.API.Info("listening",
			slog.String("event", "ready"),
			slog.String("listen", cfg.Server.Listen),
		)
		svc.SetReady(true)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		svc.SetReady(false)
		logger.API.Info("shutting down...", slog.String("event", "shutdown"))
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
