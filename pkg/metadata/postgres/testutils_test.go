package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// TestDatabase wraps a throwaway PostgreSQL container
type TestDatabase struct {
	Container        *tcpostgres.PostgresContainer
	ConnectionString string
}

// SetupTestDatabase starts a PostgreSQL container for integration tests
func SetupTestDatabase(t *testing.T) *TestDatabase {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping PostgreSQL integration test in short mode")
	}

	ctx := context.Background()

	container, err := tcpostgres.Run(ctx,
		"postgres:15-alpine",
		tcpostgres.WithDatabase("mediavault_test"),
		tcpostgres.WithUsername("test"),
		tcpostgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = container.Terminate(context.Background())
	})

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	return &TestDatabase{
		Container:        container,
		ConnectionString: connStr,
	}
}

// OpenStore opens a migrated store against the test database
func (tdb *TestDatabase) OpenStore(t *testing.T) *Store {
	t.Helper()

	logger := logrus.New()
	logger.SetLevel(logrus.WarnLevel)

	store, err := Open(context.Background(), &DatabaseConfig{
		ConnectionString: tdb.ConnectionString,
		MaxConnections:   5,
		ConnectTimeout:   10 * time.Second,
	}, logger)
	require.NoError(t, err)
	return store
}

// truncate empties every vault table
func (s *Store) truncate(t *testing.T) {
	t.Helper()
	_, err := s.db.pool.Exec(context.Background(),
		`TRUNCATE access_grants, encrypted_object_records, protected_resources`)
	require.NoError(t, err)
}
