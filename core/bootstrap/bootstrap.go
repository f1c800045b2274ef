package bootstrap

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jmoiron/sqlx"

	coreconfig "github.com/m3rciful/pocketreg/core/config"
	coredatabase "github.com/m3rciful/pocketreg/core/database"
	"github.com/m3rciful/pocketreg/core/logger"
	"github.com/m3rciful/pocketreg/internal/registration"
	"github.com/m3rciful/pocketreg/internal/storage/filestore"
	"github.com/m3rciful/pocketreg/internal/storage/sqlstore"
)

// Options control the bootstrap pipeline. Nil hooks use the defaults.
type Options struct {
	Config *coreconfig.Config

	LoggerInit func(*coreconfig.Config) error
	Connect    func(context.Context, coredatabase.Target) (*sqlx.DB, error)
	Migrate    func(db *sqlx.DB, driver string) error
}

// Result exposes infrastructure initialized by the bootstrap pipeline.
type Result struct {
	Store registration.Store
	// DB is nil for the file backend.
	DB *sqlx.DB
}

// Close releases the database handle, if any.
func (r *Result) Close() error {
	if r == nil || r.DB == nil {
		return nil
	}
	return r.DB.Close()
}

// Run initializes the logger and opens the configured user record store,
// connecting and migrating the database for SQL backends.
func Run(ctx context.Context, opts Options) (*Result, error) {
	if opts.Config == nil {
		return nil, fmt.Errorf("bootstrap: nil config provided")
	}
	cfg := opts.Config

	loggerInit := opts.LoggerInit
	if loggerInit == nil {
		loggerInit = logger.InitLogger
	}
	if err := loggerInit(cfg); err != nil {
		return nil, fmt.Errorf("bootstrap: logger init failed: %w", err)
	}

	if cfg.Storage.Driver == coreconfig.StorageFile {
		logger.DB.Info("", slog.String("event", "store.open"), slog.String("status", "ok"),
			slog.String("driver", cfg.Storage.Driver), slog.String("path", cfg.Storage.Path))
		return &Result{Store: filestore.New(cfg.Storage.Path)}, nil
	}

	target, err := coredatabase.TargetFor(cfg)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: %w", err)
	}
	connect := opts.Connect
	if connect == nil {
		connect = coredatabase.Connect
	}
	db, err := connect(ctx, target)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: database initialization failed: %w", err)
	}

	migrate := opts.Migrate
	if migrate == nil {
		migrate = coredatabase.RunMigrations
	}
	if err := migrate(db, target.Driver); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("bootstrap: migrations failed: %w", err)
	}

	return &Result{Store: sqlstore.New(db, cfg.Storage.Driver), DB: db}, nil
}
