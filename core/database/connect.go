package database

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/m3rciful/timebot/core/logger"
)

const pingInterval = time.Second

// Connect opens the pool and waits until the server answers a ping. The
// service is usually started together with its database, so refused
// connections are retried until cfg.WaitSeconds runs out.
func Connect(cfg Config) (*sqlx.DB, error) {
	ctx, cancel := context.WithTimeout(context.Background(), cfg.wait())
	defer cancel()
	return connect(ctx, cfg)
}

func connect(ctx context.Context, cfg Config) (*sqlx.DB, error) {
	target := []slog.Attr{
		slog.String("host", cfg.Host),
		slog.String("port", cfg.Port),
		slog.String("db", cfg.Name),
	}

	db, err := sqlx.Open("postgres", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("db open: %w", err)
	}
	if cfg.MaxConnections > 0 {
		db.SetMaxOpenConns(cfg.MaxConnections)
		db.SetMaxIdleConns(cfg.MaxConnections)
	}

	start := time.Now()
	attempts := 0
	for {
		attempts++
		err = db.PingContext(ctx)
		if err == nil {
			break
		}
		logger.DB.LogAttrs(ctx, slog.LevelDebug, "db.ping",
			append(target, slog.Int("attempt", attempts), slog.String("err", err.Error()))...)

		select {
		case <-ctx.Done():
			_ = db.Close()
			logger.DB.LogAttrs(context.Background(), slog.LevelError, "db.connect",
				append(target,
					slog.String("status", "fail"),
					slog.Int("attempts", attempts),
					slog.Duration("duration", time.Since(start)),
					slog.String("err", err.Error()),
				)...)
			return nil, fmt.Errorf("db connect: %w", err)
		case <-time.After(pingInterval):
		}
	}

	logger.DB.LogAttrs(ctx, slog.LevelInfo, "db.connect",
		append(target,
			slog.String("status", "ok"),
			slog.Int("pool_open", cfg.MaxConnections),
			slog.Int("attempts", attempts),
			slog.Duration("duration", time.Since(start)),
		)...)
	return db, nil
}
