package database

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	coreconfig "github.com/m3rciful/pocketreg/core/config"
	"github.com/m3rciful/pocketreg/core/logger"
)

const (
	// DriverPostgres is the database/sql driver name registered by lib/pq.
	DriverPostgres = "postgres"
	// DriverSQLite is the database/sql driver name registered by go-sqlite3.
	DriverSQLite = "sqlite3"
)

// Target describes which database to open.
type Target struct {
	Driver   string
	DSN      string
	MaxConns int
	// Label is a credential-free description for logs.
	Label string
}

// TargetFor derives the SQL target from the storage settings.
func TargetFor(cfg *coreconfig.Config) (Target, error) {
	switch cfg.Storage.Driver {
	case coreconfig.StoragePostgres:
		db := cfg.Database
		return Target{
			Driver: DriverPostgres,
			DSN: fmt.Sprintf(
				"user=%s password=%s host=%s port=%s dbname=%s sslmode=%s",
				db.User, db.Password, db.Host, db.Port, db.Name, db.SSLMode,
			),
			MaxConns: db.MaxConnections,
			Label:    fmt.Sprintf("%s:%s/%s", db.Host, db.Port, db.Name),
		}, nil
	case coreconfig.StorageSQLite:
		return SQLiteTarget(cfg.Storage.Path), nil
	}
	return Target{}, fmt.Errorf("storage driver %q is not SQL backed", cfg.Storage.Driver)
}

// SQLiteTarget opens path with foreign keys and a busy timeout.
func SQLiteTarget(path string) Target {
	return Target{
		Driver: DriverSQLite,
		DSN:    fmt.Sprintf("file:%s?_foreign_keys=on&_busy_timeout=5000", path),
		// a single writer connection avoids "database is locked" under load
		MaxConns: 1,
		Label:    path,
	}
}

// Connect opens the database, configures the pool and waits until it answers pings.
func Connect(ctx context.Context, t Target) (*sqlx.DB, error) {
	if t.Driver == DriverSQLite {
		if dir := filepath.Dir(t.Label); dir != "" && dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("db create dir: %w", err)
			}
		}
	}

	start := time.Now()
	db, err := sqlx.Open(t.Driver, t.DSN)
	if err != nil {
		logger.DB.Error("db open failed",
			slog.String("event", "db.connect"),
			slog.String("driver", t.Driver),
			slog.String("db", t.Label),
			logger.Err(err),
		)
		return nil, fmt.Errorf("db open: %w", err)
	}

	if t.MaxConns > 0 {
		db.SetMaxOpenConns(t.MaxConns)
		db.SetMaxIdleConns(t.MaxConns)
	}

	if err := waitReady(ctx, db, 30*time.Second); err != nil {
		_ = db.Close()
		logger.DB.Error("db ping failed",
			slog.String("event", "db.ping"),
			slog.String("driver", t.Driver),
			slog.String("db", t.Label),
			slog.Duration("duration", logger.Took(start)),
			logger.Err(err),
		)
		return nil, fmt.Errorf("db ping: %w", err)
	}

	logger.DB.Info("db connected",
		slog.String("event", "db.connect"),
		slog.String("driver", t.Driver),
		slog.String("db", t.Label),
		slog.Int("pool_open", t.MaxConns),
		slog.Duration("duration", logger.Took(start)),
	)
	return db, nil
}

// waitReady pings until the server accepts connections or timeout elapses.
// Postgres containers often start after the app does.
func waitReady(ctx context.Context, db *sqlx.DB, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	for {
		pingCtx, pingCancel := context.WithTimeout(ctx, 5*time.Second)
		err := db.PingContext(pingCtx)
		pingCancel()
		if err == nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("timeout reached waiting for database: %w", err)
		case <-time.After(2 * time.Second):
		}
	}
}
