package database

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	gormsqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"

	"revbridge/internal/bootstrap/config"
	"revbridge/internal/bootstrap/logging"
	"revbridge/internal/errs"
)

// Open connects the configured database. Only sqlite is supported; the
// repositories go through GORM so another dialect is a driver swap here,
// not a code change elsewhere.
func Open(ctx context.Context, cfg config.DatabaseConfig) (*gorm.DB, error) {
	if ctx == nil {
		return nil, errors.New("context is required")
	}
	if err := ctx.Err(); err != nil {
		return nil, errs.Wrap(err, "check context")
	}

	logCtx := logging.WithAttrs(ctx, slog.String("component", "bootstrap.database"))

	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if driver != "sqlite" && driver != "sqlite3" {
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}

	if dir := sqliteDir(cfg.DSN); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, errs.Wrapf(err, "create sqlite directory %q", dir)
		}
	}

	db, err := gorm.Open(gormsqlite.Open(sqliteDSN(cfg.DSN)), &gorm.Config{})
	if err != nil {
		return nil, errs.Wrap(err, "open sqlite db")
	}

	logging.Info(logCtx, "database opened", slog.String("driver", "sqlite"), slog.String("dsn", cfg.DSN))
	return db, nil
}

// sqliteDSN appends a busy timeout unless the DSN already carries
// parameters. Sources, the admin API and the maintenance loop share one
// file; without it a held write lock surfaces as SQLITE_BUSY.
func sqliteDSN(dsn string) string {
	trimmed := strings.TrimSpace(dsn)
	if trimmed == "" || trimmed == ":memory:" || strings.Contains(trimmed, "?") {
		return trimmed
	}
	return trimmed + "?_pragma=busy_timeout(5000)"
}

// sqliteDir extracts the directory a file-backed DSN writes into, or ""
// when nothing needs to exist beforehand.
func sqliteDir(dsn string) string {
	path := strings.TrimSpace(dsn)
	if path == "" || path == ":memory:" {
		return ""
	}
	path = strings.TrimPrefix(path, "file:")
	if i := strings.Index(path, "?"); i >= 0 {
		path = path[:i]
	}
	if path == "" || strings.HasPrefix(path, ":") {
		return ""
	}
	if dir := filepath.Dir(path); dir != "." {
		return dir
	}
	return ""
}
