package database

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"

	"github.com/m3rciful/timebot/core/logger"
)

// previewFiles is how many migration names a log line lists.
const previewFiles = 6

type migrator struct {
	m     *migrate.Migrate
	dir   string
	files []string
}

func openMigrator(cfg Config) (*migrator, error) {
	dir, err := migrationsDir(cfg)
	if err != nil {
		return nil, err
	}
	m, err := migrate.New("file://"+dir, cfg.URL())
	if err != nil {
		return nil, fmt.Errorf("initialize migrations: %w", err)
	}
	return &migrator{m: m, dir: dir, files: listMigrationFiles(dir)}, nil
}

func (g *migrator) close() {
	_, _ = g.m.Close()
}

// version treats an empty schema as version 0.
func (g *migrator) version() (uint, bool, error) {
	v, dirty, err := g.m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("read migration version: %w", err)
	}
	return v, dirty, nil
}

// run applies fn and logs one summary line with the files it crossed.
func (g *migrator) run(op string, fn func() error) error {
	from, _, err := g.version()
	if err != nil {
		return err
	}

	start := time.Now()
	err = fn()
	took := time.Since(start)
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		logger.MIG.LogAttrs(logger.Background(), slog.LevelError, "db.migrate."+op,
			slog.String("status", "fail"),
			slog.Uint64("from_ver", uint64(from)),
			slog.Duration("duration", took),
			slog.String("err", err.Error()),
		)
		return fmt.Errorf("migrate %s: %w", op, err)
	}

	to, _, err := g.version()
	if err != nil {
		return err
	}
	crossed := filesBetween(g.files, uint64(min(from, to)), uint64(max(from, to)))
	attrs := []slog.Attr{
		slog.String("status", "ok"),
		slog.String("path", g.dir),
		slog.Uint64("from_ver", uint64(from)),
		slog.Uint64("to_ver", uint64(to)),
		slog.Int("files", len(crossed)),
		slog.Duration("duration", took),
	}
	if preview, truncated := logger.SummarizeStrings(crossed, previewFiles); preview != "" {
		attrs = append(attrs, slog.String("files_preview", preview), slog.Bool("files_truncated", truncated))
	}
	logger.MIG.LogAttrs(logger.Background(), slog.LevelInfo, "db.migrate."+op, attrs...)
	return nil
}

// RunMigrations applies every pending up migration.
func RunMigrations(cfg Config) error {
	g, err := openMigrator(cfg)
	if err != nil {
		return err
	}
	defer g.close()
	return g.run("up", g.m.Up)
}

// Rollback reverts the last steps migrations.
func Rollback(cfg Config, steps int) error {
	if steps <= 0 {
		return fmt.Errorf("rollback: steps must be positive, got %d", steps)
	}
	g, err := openMigrator(cfg)
	if err != nil {
		return err
	}
	defer g.close()
	return g.run("down", func() error { return g.m.Steps(-steps) })
}

// MigrationVersion reports the applied schema version and whether the last
// migration left the schema dirty.
func MigrationVersion(cfg Config) (uint, bool, error) {
	g, err := openMigrator(cfg)
	if err != nil {
		return 0, false, err
	}
	defer g.close()
	return g.version()
}

func migrationsDir(cfg Config) (string, error) {
	dir := cfg.MigrationsDir
	if dir == "" {
		dir = DefaultMigrationsDir
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("resolve migrations dir: %w", err)
	}
	return abs, nil
}

func listMigrationFiles(dir string) []string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".up.sql") {
			names = append(names, e.Name())
		}
	}
	slices.Sort(names)
	return names
}

func parseVersion(name string) uint64 {
	prefix, _, _ := strings.Cut(name, "_")
	v, _ := strconv.ParseUint(prefix, 10, 64)
	return v
}

// filesBetween lists the files with a version in (from, to].
func filesBetween(files []string, from, to uint64) []string {
	var out []string
	for _, f := range files {
		if v := parseVersion(f); v > from && v <= to {
			out = append(out, f)
		}
	}
	return out
}
