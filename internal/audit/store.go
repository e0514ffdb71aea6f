package audit

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/glebarez/sqlite"
	"github.com/golang-migrate/migrate/v4"
	migratepostgres "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" database/sql driver for golang-migrate
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/marmos91/dittofs/internal/audit/migrations"
	"github.com/marmos91/dittofs/internal/logger"
)

// Dialect selects the audit trail's backing database.
type Dialect string

const (
	// DialectPostgres is the production dialect: schema is versioned and
	// applied through golang-migrate against the embedded migrations.
	DialectPostgres Dialect = "postgres"

	// DialectSQLite is the single-node/dev dialect. golang-migrate's
	// sqlite3 driver requires a cgo sqlite binding; this tree's sqlite
	// usage (glebarez/sqlite, pure-Go modernc) deliberately avoids cgo, so
	// the sqlite path sets up schema via gorm AutoMigrate from the same
	// Event model instead of running the Postgres migration set.
	DialectSQLite Dialect = "sqlite"
)

// StoreConfig configures the gorm connection used by the audit writer.
type StoreConfig struct {
	Dialect Dialect

	// DSN is the Postgres connection string (ignored for sqlite).
	DSN string

	// SQLitePath is the database file path (ignored for postgres).
	SQLitePath string
}

// openDB opens a gorm connection for cfg.Dialect and ensures schema exists.
func openDB(cfg StoreConfig) (*gorm.DB, error) {
	switch cfg.Dialect {
	case DialectPostgres:
		if err := migratePostgres(cfg.DSN); err != nil {
			return nil, fmt.Errorf("apply audit migrations: %w", err)
		}
		db, err := gorm.Open(postgres.Open(cfg.DSN), &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Silent)})
		if err != nil {
			return nil, fmt.Errorf("open postgres audit store: %w", err)
		}
		return db, nil

	case DialectSQLite, "":
		if cfg.SQLitePath == "" {
			return nil, fmt.Errorf("sqlite audit path is required")
		}
		if err := os.MkdirAll(filepath.Dir(cfg.SQLitePath), 0o755); err != nil {
			return nil, fmt.Errorf("create audit database directory: %w", err)
		}
		dsn := cfg.SQLitePath + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
		db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Silent)})
		if err != nil {
			return nil, fmt.Errorf("open sqlite audit store: %w", err)
		}
		if err := db.AutoMigrate(&Event{}); err != nil {
			return nil, fmt.Errorf("automigrate audit schema: %w", err)
		}
		return db, nil

	default:
		return nil, fmt.Errorf("unsupported audit dialect: %s", cfg.Dialect)
	}
}

// migratePostgres applies the embedded migration set via golang-migrate,
// using database/sql with the pgx stdlib driver as golang-migrate requires.
func migratePostgres(dsn string) error {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return fmt.Errorf("open pgx connection: %w", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		return fmt.Errorf("ping postgres: %w", err)
	}

	driver, err := migratepostgres.WithInstance(db, &migratepostgres.Config{
		MigrationsTable: "audit_schema_migrations",
		DatabaseName:    "nlmd_audit",
	})
	if err != nil {
		return fmt.Errorf("create postgres migration driver: %w", err)
	}

	sourceDriver, err := iofs.New(migrations.FS, ".")
	if err != nil {
		return fmt.Errorf("open embedded migration source: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "postgres", driver)
	if err != nil {
		return fmt.Errorf("create migrate instance: %w", err)
	}

	upErr := m.Up()
	if upErr != nil && upErr != migrate.ErrNoChange {
		return fmt.Errorf("run migrations: %w", upErr)
	}
	if upErr == migrate.ErrNoChange {
		logger.Debug("audit schema already up to date")
	} else {
		logger.Info("audit schema migrated")
	}
	return nil
}

// querySince returns stored events newest first, capped at limit (no cap
// when limit <= 0).
func querySince(ctx context.Context, db *gorm.DB, limit int) ([]Event, error) {
	var events []Event
	q := db.WithContext(ctx).Order("occurred_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&events).Error; err != nil {
		return nil, err
	}
	return events, nil
}
