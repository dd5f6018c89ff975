// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file owns the database handle: a Store opens the
// connection lazily on first use, shares it afterwards, and retries the
// connect on the next call when a previous attempt failed.
package repo

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"gorm.io/plugin/opentelemetry/tracing"

	"github.com/tbourn/go-portfolio-backend/internal/config"
	"github.com/tbourn/go-portfolio-backend/internal/domain"
)

// ErrClosed is returned by Store.DB after Close.
var ErrClosed = errors.New("repo: store closed")

// Options tune how a Store opens its connection.
type Options struct {
	// Tracing installs the OpenTelemetry GORM plugin.
	Tracing bool
	// Migrate runs AutoMigrate right after connecting.
	Migrate bool
	// LogLevel for the GORM logger; zero means Silent.
	LogLevel logger.LogLevel
}

// Store is an explicitly constructed, injectable connection pool.
// It is safe for concurrent use.
type Store struct {
	cfg  config.DBConfig
	opts Options

	mu     sync.Mutex
	db     *gorm.DB
	closed bool

	// dial is swapped in tests.
	dial func(config.DBConfig) (gorm.Dialector, error)
}

// NewStore returns a Store that has not connected yet.
func NewStore(cfg config.DBConfig, opts Options) *Store {
	return &Store{cfg: cfg, opts: opts, dial: dialector}
}

// DB returns the shared handle, connecting on first use. Concurrent first
// callers wait for a single connect attempt. A failed attempt is not cached.
func (s *Store) DB(ctx context.Context) (*gorm.DB, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrClosed
	}
	if s.db != nil {
		return s.db, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	db, err := s.connect(ctx)
	if err != nil {
		return nil, err
	}
	s.db = db
	return db, nil
}

// Ping connects if needed and checks the connection is alive.
func (s *Store) Ping(ctx context.Context) error {
	db, err := s.DB(ctx)
	if err != nil {
		return err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Close releases the pool. Later calls to DB fail with ErrClosed.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	if s.db == nil {
		return nil
	}
	sqlDB, err := s.db.DB()
	s.db = nil
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *Store) connect(ctx context.Context) (*gorm.DB, error) {
	dial, err := s.dial(s.cfg)
	if err != nil {
		return nil, err
	}
	db, err := gorm.Open(dial, &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logLevel(s.opts.LogLevel)),
	})
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", s.cfg.Driver, err)
	}

	tunePool(db)

	if s.opts.Tracing {
		if err := db.Use(tracing.NewPlugin()); err != nil {
			return nil, fmt.Errorf("gorm tracing: %w", err)
		}
	}
	if s.opts.Migrate {
		if err := AutoMigrate(db.WithContext(ctx)); err != nil {
			return nil, fmt.Errorf("migrate: %w", err)
		}
	}
	return db, nil
}

func tunePool(db *gorm.DB) {
	if sqlDB, err := db.DB(); err == nil {
		sqlDB.SetMaxOpenConns(10)
		sqlDB.SetMaxIdleConns(10)
		sqlDB.SetConnMaxIdleTime(5 * time.Minute)
		sqlDB.SetConnMaxLifetime(30 * time.Minute)
	}
}

func logLevel(l logger.LogLevel) logger.LogLevel {
	if l == 0 {
		return logger.Silent
	}
	return l
}

// dialector picks the GORM driver for cfg.
func dialector(cfg config.DBConfig) (gorm.Dialector, error) {
	switch cfg.Driver {
	case "", "sqlite":
		dsn, err := sqliteDSN(cfg.Path)
		if err != nil {
			return nil, err
		}
		return sqlite.Open(dsn), nil
	case "postgres":
		return postgres.Open(cfg.DSN), nil
	default:
		return nil, fmt.Errorf("unsupported DB driver %q", cfg.Driver)
	}
}

// sqlitePragmas are applied on every pooled connection.
var sqlitePragmas = []string{
	"journal_mode(WAL)",
	"synchronous(NORMAL)",
	"foreign_keys(1)",
	"busy_timeout(5000)",
}

// sqliteDSN appends connection pragmas to path. It fails early when the
// parent directory of a file path does not exist.
func sqliteDSN(path string) (string, error) {
	if !strings.HasPrefix(path, "file:") && path != ":memory:" {
		if dir := filepath.Dir(path); dir != "." {
			if _, err := os.Stat(dir); err != nil {
				return "", err
			}
		}
	}
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	var b strings.Builder
	b.WriteString(path)
	for _, p := range sqlitePragmas {
		b.WriteString(sep)
		b.WriteString("_pragma=")
		b.WriteString(p)
		sep = "&"
	}
	return b.String(), nil
}

// OpenSQLite opens (or creates) a SQLite database with pragmas applied.
// It bypasses the lazy Store and is used by tools and tests.
func OpenSQLite(path string) (*gorm.DB, error) {
	dsn, err := sqliteDSN(path)
	if err != nil {
		return nil, err
	}
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, err
	}
	tunePool(db)
	return db, nil
}

// AutoMigrate creates or updates all tables.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&domain.User{},
		&domain.Session{},
		&domain.RateWindow{},
		&domain.Waifu{},
	)
}
