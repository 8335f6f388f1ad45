//go:build itest && test_db_postgres

package sqldb

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/btcsuite/ckbtcwallet/ledger"
	"github.com/btcsuite/ckbtcwallet/ledger/ledgertest"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

var (
	// Shared container instance, reused across tests. Each test gets its
	// own database inside it.
	pgContainer *postgres.PostgresContainer

	// Ensure the container is created only once.
	pgContainerOnce sync.Once

	// Error of the container creation, returned to every later caller.
	pgContainerErr error

	// Timeout for waiting for the postgres container to start, including
	// the image download.
	pgInitTimeout = 2 * time.Minute

	// Timeout for terminating the postgres container after the suite.
	pgTerminateTimeout = 1 * time.Minute
)

// TestMain terminates the shared postgres container after the suite.
func TestMain(m *testing.M) {
	code := m.Run()

	if pgContainer != nil {
		ctx, cancel := context.WithTimeout(
			context.Background(), pgTerminateTimeout,
		)
		defer cancel()

		err := pgContainer.Terminate(ctx)
		if err != nil {
			fmt.Printf("failed to terminate postgres container: %v\n",
				err)
		}
	}

	os.Exit(code)
}

// getPostgresContainer returns the shared PostgreSQL container.
func getPostgresContainer(
	ctx context.Context) (*postgres.PostgresContainer, error) {

	pgContainerOnce.Do(func() {
		pgContainer, pgContainerErr = postgres.RunContainer(ctx,
			testcontainers.WithImage("postgres:18-alpine"),
			postgres.WithDatabase("postgres"),
			postgres.WithUsername("postgres"),
			postgres.WithPassword("postgres"),
			testcontainers.WithWaitStrategyAndDeadline(
				pgInitTimeout, wait.ForListeningPort("5432/tcp"),
			),
		)
	})

	return pgContainer, pgContainerErr
}

// sanitizedPgDBName converts a test name to a valid PostgreSQL database
// name.
func sanitizedPgDBName(t *testing.T) string {
	dbName := strings.ToLower(t.Name())

	reg := regexp.MustCompile(`[^a-z0-9_]`)
	dbName = reg.ReplaceAllString(dbName, "_")

	// PostgreSQL database names are limited to 63 characters.
	if len(dbName) > 63 {
		dbName = dbName[:63]
	}

	return dbName
}

// newPostgresStore creates a fresh database in the shared container and
// opens a migrated store on it.
func newPostgresStore(t *testing.T) ledger.Store {
	t.Helper()
	ctx := t.Context()

	container, err := getPostgresContainer(ctx)
	require.NoError(t, err, "failed to get postgres container")

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	adminDB, err := sql.Open("pgx", connStr)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = adminDB.Close()
	})

	dbName := sanitizedPgDBName(t)
	_, err = adminDB.ExecContext(ctx, "CREATE DATABASE "+dbName)
	require.NoError(t, err, "failed to create test database")

	testConnStr := strings.Replace(connStr, "/postgres?", "/"+dbName+"?", 1)

	store, err := OpenPostgres(testConnStr)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = store.Close()
	})

	return store
}

// TestPostgresStore runs the shared ledger behavior tests against the
// PostgreSQL store.
func TestPostgresStore(t *testing.T) {
	ledgertest.RunStoreTests(t, newPostgresStore)
}
