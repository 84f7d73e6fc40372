package database

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/ticketsync/ticketsync/pkg/retry"
)

// DB hands out one short-lived connection per logical operation.
// There is no pool: every Acquire dials, and every Scope.Close hangs up.
type DB struct {
	connConfig *pgx.ConnConfig

	schemaOnce sync.Once
	schemaErr  error
}

// Config holds database connection configuration.
type Config struct {
	URL            string
	ConnectTimeout time.Duration
	// Retry governs the reachability check in Open. Nil uses retry.DefaultConfig.
	Retry *retry.Config
}

// New parses cfg without dialing.
func New(cfg *Config) (*DB, error) {
	connConfig, err := pgx.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}

	connConfig.ConnectTimeout = cfg.ConnectTimeout
	if connConfig.ConnectTimeout == 0 {
		connConfig.ConnectTimeout = 10 * time.Second
	}

	return &DB{connConfig: connConfig}, nil
}

// Open parses cfg and verifies the database is reachable, retrying transient
// connectivity failures. An unreachable database is an error, not a warning.
func Open(ctx context.Context, cfg *Config) (*DB, error) {
	db, err := New(cfg)
	if err != nil {
		return nil, err
	}

	if err := retry.DoIfRetryable(ctx, cfg.Retry, func() error {
		return db.Ping(ctx)
	}); err != nil {
		return nil, fmt.Errorf("failed to reach database: %w", err)
	}

	return db, nil
}

// Scope is a single acquired connection.
// The returned Scope MUST be closed with defer scope.Close().
type Scope struct {
	Conn *pgx.Conn
}

// Close hangs up the connection.
func (s *Scope) Close() {
	if s.Conn == nil {
		return
	}
	_ = s.Conn.Close(context.Background())
	s.Conn = nil
}

// Acquire dials a new connection for one logical operation.
func (db *DB) Acquire(ctx context.Context) (*Scope, error) {
	conn, err := pgx.ConnectConfig(ctx, db.connConfig.Copy())
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return &Scope{Conn: conn}, nil
}

// Ping opens a connection, pings and closes it.
func (db *DB) Ping(ctx context.Context) error {
	scope, err := db.Acquire(ctx)
	if err != nil {
		return err
	}
	defer scope.Close()

	if err := scope.Conn.Ping(ctx); err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}
	return nil
}

// ConnConfig returns a copy of the parsed connection configuration.
func (db *DB) ConnConfig() *pgx.ConnConfig {
	return db.connConfig.Copy()
}
