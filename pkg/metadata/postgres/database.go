// Package postgres implements metadata.Store on PostgreSQL using a pgx
// connection pool. Schema changes are embedded SQL migrations applied with
// golang-migrate.
package postgres

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	migratepg "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/lib/pq"

	"github.com/TheEntropyCollective/mediavault/pkg/common/vaulterr"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// DatabaseConfig holds configuration for the PostgreSQL metadata database
type DatabaseConfig struct {
	ConnectionString string
	MaxConnections   int32
	ConnectTimeout   time.Duration
}

// Database wraps the connection pool
type Database struct {
	pool   *pgxpool.Pool
	config *DatabaseConfig
}

// NewDatabase creates a new database connection pool and verifies it
func NewDatabase(ctx context.Context, config *DatabaseConfig) (*Database, error) {
	if config == nil {
		return nil, fmt.Errorf("database config is required")
	}

	if config.ConnectionString == "" {
		return nil, fmt.Errorf("connection string is required")
	}

	if config.MaxConnections == 0 {
		config.MaxConnections = 10
	}
	if config.ConnectTimeout == 0 {
		config.ConnectTimeout = 30 * time.Second
	}

	poolConfig, err := pgxpool.ParseConfig(config.ConnectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}

	poolConfig.MaxConns = config.MaxConnections
	poolConfig.MaxConnLifetime = 1 * time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute
	poolConfig.HealthCheckPeriod = 1 * time.Minute

	timeoutCtx, cancel := context.WithTimeout(ctx, config.ConnectTimeout)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(timeoutCtx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(timeoutCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w: %w", vaulterr.ErrStorageUnavailable, err)
	}

	return &Database{
		pool:   pool,
		config: config,
	}, nil
}

// Close closes the database connection pool
func (db *Database) Close() {
	if db.pool != nil {
		db.pool.Close()
	}
}

// MigrateToLatest applies all pending embedded migrations
func (db *Database) MigrateToLatest(ctx context.Context) error {
	m, err := db.migrator()
	if err != nil {
		return err
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}

	return nil
}

// MigrateDown rolls back every migration. Used by tooling and tests.
func (db *Database) MigrateDown(ctx context.Context) error {
	m, err := db.migrator()
	if err != nil {
		return err
	}
	defer m.Close()

	if err := m.Down(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to roll back migrations: %w", err)
	}

	return nil
}

// SchemaVersion returns the applied migration version and whether the last
// migration left the schema dirty.
func (db *Database) SchemaVersion() (uint, bool, error) {
	m, err := db.migrator()
	if err != nil {
		return 0, false, err
	}
	defer m.Close()

	version, dirty, err := m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	return version, dirty, err
}

func (db *Database) migrator() (*migrate.Migrate, error) {
	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return nil, fmt.Errorf("failed to open embedded migrations: %w", err)
	}

	// golang-migrate drives database/sql, so migrations use a dedicated lib/pq
	// connection rather than the pgx pool.
	migrationDB, err := sql.Open("postgres", db.config.ConnectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to open migration connection: %w", err)
	}

	driver, err := migratepg.WithInstance(migrationDB, &migratepg.Config{})
	if err != nil {
		migrationDB.Close()
		return nil, fmt.Errorf("failed to create migration driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, "postgres", driver)
	if err != nil {
		migrationDB.Close()
		return nil, fmt.Errorf("failed to create migrator: %w", err)
	}

	return m, nil
}

// HealthCheck runs a trivial query through the pool
func (db *Database) HealthCheck(ctx context.Context) error {
	var result int
	err := db.pool.QueryRow(ctx, "SELECT 1").Scan(&result)
	if err != nil {
		return fmt.Errorf("failed to execute test query: %w: %w", vaulterr.ErrStorageUnavailable, err)
	}

	if result != 1 {
		return fmt.Errorf("unexpected test query result: %d", result)
	}

	return nil
}

// WithTransaction runs fn inside a read-committed transaction, retrying on
// deadlocks and serialization failures.
func (db *Database) WithTransaction(ctx context.Context, fn func(tx pgx.Tx) error) error {
	return db.WithRetry(ctx, func(ctx context.Context) error {
		tx, err := db.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
		if err != nil {
			return fmt.Errorf("failed to begin transaction: %w", err)
		}
		defer tx.Rollback(ctx)

		if err := fn(tx); err != nil {
			return err
		}
		return tx.Commit(ctx)
	})
}

// WithRetry executes a function with retry logic for deadlock resolution
func (db *Database) WithRetry(ctx context.Context, fn func(context.Context) error) error {
	const maxRetries = 3
	const baseDelay = 100 * time.Millisecond

	var err error
	for attempt := 0; attempt < maxRetries; attempt++ {
		err = fn(ctx)
		if err == nil || !isRetryableError(err) {
			return err
		}

		delay := baseDelay * time.Duration(1<<attempt)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}

	return fmt.Errorf("operation failed after %d retries: %w", maxRetries, err)
}

// PostgreSQL error codes we react to
const (
	codeForeignKeyViolation  = "23503"
	codeUniqueViolation      = "23505"
	codeCheckViolation       = "23514"
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"
	codeLockNotAvailable     = "55P03"
)

// isRetryableError checks if an error is retryable (deadlock, serialization failure)
func isRetryableError(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	switch pgErr.Code {
	case codeSerializationFailure, codeDeadlockDetected, codeLockNotAvailable:
		return true
	}
	return false
}
