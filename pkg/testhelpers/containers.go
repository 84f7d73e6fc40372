package testhelpers

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap"

	"github.com/ticketsync/ticketsync/pkg/database"
)

// PostgresImage is the stock PostgreSQL image used for integration tests.
const PostgresImage = "postgres:16-alpine"

// TestDB holds a shared test database container.
type TestDB struct {
	Container testcontainers.Container
	ConnStr   string
}

var (
	sharedTestDB     *TestDB
	sharedTestDBOnce sync.Once
	sharedTestDBErr  error
)

// GetTestDB returns a shared PostgreSQL container for integration tests.
// The container is created once and reused across all tests in the run.
func GetTestDB(t *testing.T) *TestDB {
	t.Helper()

	if testing.Short() {
		t.Skip("Skipping integration test in short mode (requires Docker)")
	}

	sharedTestDBOnce.Do(func() {
		sharedTestDB, sharedTestDBErr = setupTestDB()
	})

	if sharedTestDBErr != nil {
		t.Fatalf("Failed to setup test database: %v", sharedTestDBErr)
	}

	return sharedTestDB
}

func setupTestDB() (*TestDB, error) {
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        PostgresImage,
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_DB":       "tickets_test",
			"POSTGRES_USER":     "tickets",
			"POSTGRES_PASSWORD": "test_password",
		},
		// The server logs readiness twice: once for the init pass, once for real.
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to start test container: %w", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get container host: %w", err)
	}

	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		return nil, fmt.Errorf("failed to get container port: %w", err)
	}

	connStr := fmt.Sprintf("postgres://tickets:test_password@%s:%s/tickets_test?sslmode=disable",
		host, port.Port())

	return &TestDB{
		Container: container,
		ConnStr:   connStr,
	}, nil
}

// StoreDB holds the record store database with migrations applied.
// Use this for testing repositories and services against a real database.
type StoreDB struct {
	DB      *database.DB
	ConnStr string
}

var (
	sharedStoreDB     *StoreDB
	sharedStoreDBOnce sync.Once
	sharedStoreDBErr  error
)

// GetStoreDB returns a shared store database for integration tests.
// The database has migrations applied and is reused across all tests.
func GetStoreDB(t *testing.T) *StoreDB {
	t.Helper()

	testDB := GetTestDB(t)

	sharedStoreDBOnce.Do(func() {
		sharedStoreDB, sharedStoreDBErr = setupStoreDB(testDB)
	})

	if sharedStoreDBErr != nil {
		t.Fatalf("Failed to setup store database: %v", sharedStoreDBErr)
	}

	return sharedStoreDB
}

func setupStoreDB(testDB *TestDB) (*StoreDB, error) {
	ctx := context.Background()

	db, err := database.Open(ctx, &database.Config{URL: testDB.ConnStr})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to store database: %w", err)
	}

	if err := db.EnsureSchema(ctx, zap.NewNop()); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &StoreDB{
		DB:      db,
		ConnStr: testDB.ConnStr,
	}, nil
}

// Reset empties both store tables.
func (s *StoreDB) Reset(t *testing.T) {
	t.Helper()
	ctx := context.Background()

	scope, err := s.DB.Acquire(ctx)
	if err != nil {
		t.Fatalf("failed to acquire connection for reset: %v", err)
	}
	defer scope.Close()

	if _, err := scope.Conn.Exec(ctx, "TRUNCATE products, tickets"); err != nil {
		t.Fatalf("failed to reset store tables: %v", err)
	}
}
