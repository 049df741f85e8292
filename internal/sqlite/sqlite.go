package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"time"

	"github.com/golang-migrate/migrate/v4"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"go.uber.org/multierr"
	_ "modernc.org/sqlite"

	"github.com/sirenhq/siren/internal/config"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// DB provides access to the SQLite database.
// It uses separate connections for reads and writes to optimize for SQLite's
// WAL mode which allows concurrent reads but only one writer at a time.
type DB struct {
	readDB  *sql.DB // Connection pool for read operations (multiple concurrent readers)
	writeDB *sql.DB // Single connection for write operations (serialized writes)
	log     *slog.Logger
}

// Options holds configuration for creating a new DB instance.
type Options struct {
	Logger *slog.Logger
	Config config.SQLiteConfig
}

// New establishes a connection to the SQLite database, configures it,
// runs migrations, and returns a DB instance ready for use.
func New(opts Options) (*DB, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	log := logger.With("component", "sqlite")

	// Run migrations first using a temporary connection.
	if err := setupAndRunMigrations(opts.Config.Path, log); err != nil {
		return nil, err
	}

	// Open read connection pool (concurrent readers allowed in WAL mode).
	readDB, err := sql.Open("sqlite", opts.Config.Path)
	if err != nil {
		log.Error("failed to open read database", "error", err, "path", opts.Config.Path)
		return nil, fmt.Errorf("error opening read database: %w", err)
	}

	readDB.SetMaxOpenConns(25)
	readDB.SetMaxIdleConns(10)
	readDB.SetConnMaxLifetime(30 * time.Minute)
	readDB.SetConnMaxIdleTime(5 * time.Minute)

	if err := setPragmas(readDB); err != nil {
		readDB.Close()
		log.Error("failed to set pragmas on read database", "error", err)
		return nil, fmt.Errorf("error setting pragmas on read database: %w", err)
	}

	// Open write connection with _txlock=immediate to acquire write lock early.
	writeDSN := opts.Config.Path + "?_txlock=immediate"
	writeDB, err := sql.Open("sqlite", writeDSN)
	if err != nil {
		readDB.Close()
		log.Error("failed to open write database", "error", err, "path", opts.Config.Path)
		return nil, fmt.Errorf("error opening write database: %w", err)
	}

	// Single connection enforces serialized writes (SQLite limitation).
	writeDB.SetMaxOpenConns(1)
	writeDB.SetMaxIdleConns(1)
	writeDB.SetConnMaxLifetime(0)

	if err := setPragmas(writeDB); err != nil {
		readDB.Close()
		writeDB.Close()
		log.Error("failed to set pragmas on write database", "error", err)
		return nil, fmt.Errorf("error setting pragmas on write database: %w", err)
	}

	log.Debug("sqlite initialized with read/write separation", "path", opts.Config.Path)

	return &DB{
		readDB:  readDB,
		writeDB: writeDB,
		log:     log,
	}, nil
}

// setupAndRunMigrations handles the setup and execution of database migrations.
func setupAndRunMigrations(dsn string, log *slog.Logger) error {
	migrationDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		log.Error("failed to open migration database", "error", err, "path", dsn)
		return fmt.Errorf("error opening migration database: %w", err)
	}
	defer func() {
		log.Debug("closing migration database connection")
		_ = migrationDB.Close()
	}()

	if _, err := migrationDB.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		log.Error("failed to set busy_timeout on migration database", "error", err)
		return fmt.Errorf("error setting busy_timeout on migration database: %w", err)
	}

	log.Debug("running database migrations")
	if err := runMigrations(migrationDB, log); err != nil {
		log.Error("migration failed", "error", err, "path", dsn)
		return fmt.Errorf("error running migrations: %w", err)
	}
	log.Debug("database migrations completed")
	return nil
}

// setPragmas applies the connection settings every pool relies on.
func setPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA busy_timeout = 5000",
		"PRAGMA journal_mode = WAL",
		"PRAGMA journal_size_limit = 5000000", // Limit WAL size to ~5MB
		"PRAGMA synchronous = NORMAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA temp_store = MEMORY",
		"PRAGMA cache_size = -16000", // Negative value is KiB.
		"PRAGMA mmap_size = 0",       // Memory-mapped I/O misbehaves with modernc.org/sqlite.
		"PRAGMA wal_autocheckpoint = 1000",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("error setting pragma %q: %w", pragma, err)
		}
	}
	return nil
}

// runMigrations applies the migrations embedded in migrationsFS.
func runMigrations(db *sql.DB, log *slog.Logger) error {
	migrationFS, err := fs.Sub(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("error creating migrations filesystem: %w", err)
	}

	sourceDriver, err := iofs.New(migrationFS, ".")
	if err != nil {
		return fmt.Errorf("error creating migration source driver: %w", err)
	}

	driver, err := migratesqlite.WithInstance(db, &migratesqlite.Config{
		MigrationsTable: "schema_migrations",
	})
	if err != nil {
		return fmt.Errorf("error creating sqlite migration driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("error creating migrate instance: %w", err)
	}
	defer func() {
		sourceErr, dbErr := m.Close()
		if sourceErr != nil {
			log.Warn("error closing migration source driver", "error", sourceErr)
		}
		if dbErr != nil {
			log.Warn("error closing migration database driver", "error", dbErr)
		}
	}()

	currentVersion, dirty, err := m.Version()
	switch {
	case errors.Is(err, migrate.ErrNilVersion):
		log.Debug("no previous migrations found")
	case err != nil:
		log.Error("failed to get current migration version", "error", err)
	default:
		log.Debug("current migration version", "version", currentVersion, "dirty", dirty)
		if dirty {
			log.Warn("database is in a dirty migration state. Manual intervention may be required if migrations fail.")
		}
	}

	if err := m.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			log.Debug("migrations up to date")
			return nil
		}
		return fmt.Errorf("error applying migrations: %w", err)
	}

	if finalVersion, dirty, err := m.Version(); err == nil {
		log.Debug("migrations applied", "new_version", finalVersion, "dirty", dirty)
	}
	return nil
}

// Ping verifies both connections are usable.
func (db *DB) Ping(ctx context.Context) error {
	if err := db.readDB.PingContext(ctx); err != nil {
		return fmt.Errorf("error pinging read database: %w", err)
	}
	if err := db.writeDB.PingContext(ctx); err != nil {
		return fmt.Errorf("error pinging write database: %w", err)
	}
	return nil
}

// Close gracefully shuts down both database connections.
func (db *DB) Close() error {
	db.log.Debug("closing database connections")
	err := multierr.Combine(db.writeDB.Close(), db.readDB.Close())
	if err != nil {
		db.log.Error("error closing database connections", "error", err)
		return fmt.Errorf("error closing database connections: %w", err)
	}
	return nil
}
