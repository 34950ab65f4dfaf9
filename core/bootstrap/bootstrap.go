// Package bootstrap brings up the infrastructure a binary needs before it
// serves: the logger and, for the data-access service, PostgreSQL with its
// schema.
package bootstrap

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"

	coreconfig "github.com/m3rciful/timebot/core/config"
	coredatabase "github.com/m3rciful/timebot/core/database"
	"github.com/m3rciful/timebot/core/logger"
)

// Options control the generic bootstrap pipeline shared between binaries.
// A nil Database stops the pipeline after logger initialization. The
// function fields default to the core implementations.
type Options struct {
	Config   *coreconfig.Config
	Database *coredatabase.Config

	SkipMigrations bool

	LoggerInit func(*coreconfig.Config) error
	Connect    func(coredatabase.Config) (*sqlx.DB, error)
	Migrate    func(coredatabase.Config) error
}

func (o *Options) defaults() {
	if o.LoggerInit == nil {
		o.LoggerInit = logger.InitLogger
	}
	if o.Connect == nil {
		o.Connect = coredatabase.Connect
	}
	if o.Migrate == nil {
		o.Migrate = coredatabase.RunMigrations
	}
}

// Result exposes infrastructure initialized by the bootstrap pipeline.
type Result struct {
	DB *sqlx.DB
}

// Close releases the database handle, if any.
func (r *Result) Close() error {
	if r == nil || r.DB == nil {
		return nil
	}
	return r.DB.Close()
}

// Run initializes the logger, connects to the database and applies pending
// migrations. The handle is closed again when migrating fails.
func Run(opts Options) (*Result, error) {
	if opts.Config == nil {
		return nil, errors.New("bootstrap: nil config provided")
	}
	opts.defaults()

	if err := opts.LoggerInit(opts.Config); err != nil {
		return nil, fmt.Errorf("bootstrap: logger init failed: %w", err)
	}
	if opts.Database == nil {
		return &Result{}, nil
	}

	start := time.Now()
	db, err := opts.Connect(*opts.Database)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: database initialization failed: %w", err)
	}
	if !opts.SkipMigrations {
		if err := opts.Migrate(*opts.Database); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("bootstrap: migrations failed: %w", err)
		}
	}
	logger.Component("bootstrap").LogAttrs(logger.Background(), slog.LevelInfo, "bootstrap.done",
		slog.String("status", "ok"),
		slog.Bool("migrated", !opts.SkipMigrations),
		slog.Duration("duration", time.Since(start)),
	)
	return &Result{DB: db}, nil
}
