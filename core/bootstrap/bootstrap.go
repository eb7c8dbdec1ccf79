package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
	"golang.org/x/sync/errgroup"

	coreconfig "github.com/m3rciful/streambot/core/config"
	coredatabase "github.com/m3rciful/streambot/core/database"
	"github.com/m3rciful/streambot/core/logger"
	"github.com/m3rciful/streambot/core/storage"
	"github.com/m3rciful/streambot/locale"
)

// Options control the generic bootstrap pipeline shared between bots.
type Options struct {
	Config   *coreconfig.Config
	Database coredatabase.Config
	// LocalePath overlays the embedded messages; empty keeps the defaults.
	LocalePath string

	LoggerInit func(*coreconfig.Config) error
	Connect    func(coredatabase.Config) (*sqlx.DB, error)
	Migrate    func(coredatabase.Config) error
	// SkipDatabase leaves Result.DB nil.
	SkipDatabase bool
}

// Result exposes infrastructure initialized by the bootstrap pipeline.
type Result struct {
	DB      *sqlx.DB
	Storage *storage.Store
	Locale  *locale.Locale
}

// Close releases everything Run opened.
func (r *Result) Close() {
	if r == nil {
		return
	}
	if r.Storage != nil {
		r.Storage.Close()
	}
	if r.DB != nil {
		_ = r.DB.Close()
	}
}

// Run initializes the logger and then, concurrently, the database with its
// migrations, the key-value storage and the locale.
func Run(ctx context.Context, opts Options) (*Result, error) {
	if opts.Config == nil {
		return nil, fmt.Errorf("bootstrap: nil config provided")
	}

	loggerInit := opts.LoggerInit
	if loggerInit == nil {
		loggerInit = logger.InitLogger
	}
	if err := loggerInit(opts.Config); err != nil {
		return nil, fmt.Errorf("bootstrap: logger init failed: %w", err)
	}

	start := time.Now()
	res := &Result{}
	g, _ := errgroup.WithContext(ctx)

	if !opts.SkipDatabase {
		g.Go(func() error {
			connect := opts.Connect
			if connect == nil {
				connect = coredatabase.Connect
			}
			db, err := connect(opts.Database)
			if err != nil {
				return fmt.Errorf("bootstrap: database initialization failed: %w", err)
			}
			res.DB = db

			migrate := opts.Migrate
			if migrate == nil {
				migrate = coredatabase.RunMigrations
			}
			if err := migrate(opts.Database); err != nil {
				return fmt.Errorf("bootstrap: migrations failed: %w", err)
			}
			return nil
		})
	}

	g.Go(func() error {
		store, err := storage.Open(storage.Options{
			Dir:          opts.Config.Storage.Dir,
			AtomicWrites: opts.Config.Storage.AtomicWrites,
		})
		if err != nil {
			return fmt.Errorf("bootstrap: storage open failed: %w", err)
		}
		res.Storage = store
		return nil
	})

	g.Go(func() error {
		loc, err := locale.Load(opts.LocalePath)
		if err != nil {
			return fmt.Errorf("bootstrap: locale load failed: %w", err)
		}
		res.Locale = loc
		return nil
	})

	if err := g.Wait(); err != nil {
		res.Close()
		return nil, err
	}

	logger.Info(ctx, "app", "bootstrap.done",
		slog.Bool("db", res.DB != nil),
		slog.String("storage_dir", res.Storage.Dir()),
		slog.Duration("duration", logger.RoundMS(time.Since(start))),
	)
	return res, nil
}
