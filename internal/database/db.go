package database

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"time"

	"github.com/cenkalti/backoff/v4"
	_ "github.com/lib/pq"
	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"
)

// Dialect names the SQL flavour behind a DB
type Dialect string

const (
	Postgres Dialect = "postgres"
	SQLite   Dialect = "sqlite"
)

// DB represents a database connection
type DB struct {
	*sql.DB
	Dialect Dialect
}

// ConnectionParams holds PostgreSQL connection parameters
type ConnectionParams struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// NewPostgres opens a PostgreSQL connection, retrying the first ping while the server comes up
func NewPostgres(ctx context.Context, params ConnectionParams) (*DB, error) {
	connStr := fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		params.Host, params.Port, params.User, params.Password, params.DBName, params.SSLMode,
	)

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, err
	}

	strategy := backoff.NewExponentialBackOff()
	strategy.MaxElapsedTime = 30 * time.Second
	ping := func() error { return db.PingContext(ctx) }
	notify := func(err error, wait time.Duration) {
		log.Warn().Err(err).Dur("retry_in", wait).Msg("Database not ready")
	}
	if err := backoff.RetryNotify(ping, backoff.WithContext(strategy, ctx), notify); err != nil {
		db.Close()
		return nil, fmt.Errorf("connecting to postgres: %w", err)
	}

	out := &DB{DB: db, Dialect: Postgres}
	if err := out.createTables(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return out, nil
}

// NewSQLite opens (or creates) a SQLite database file
func NewSQLite(ctx context.Context, path string) (*DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// one connection keeps writers serialised inside the process
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{"PRAGMA journal_mode=WAL", "PRAGMA busy_timeout=5000", "PRAGMA foreign_keys=ON"} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("%s: %w", pragma, err)
		}
	}

	out := &DB{DB: db, Dialect: SQLite}
	if err := out.createTables(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return out, nil
}

// createTables creates the necessary tables if they don't exist.
// Timestamps are stored as fixed-width UTC text so they sort the same on both dialects.
func (db *DB) createTables(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS predictions (
			match_id TEXT PRIMARY KEY,
			id TEXT NOT NULL,
			league TEXT NOT NULL,
			kickoff TEXT NOT NULL,
			predicted_winner TEXT NOT NULL,
			model_version TEXT NOT NULL,
			match_context TEXT NOT NULL,
			record TEXT NOT NULL,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS outcomes (
			match_id TEXT PRIMARY KEY,
			home_goals INTEGER NOT NULL,
			away_goals INTEGER NOT NULL,
			result TEXT NOT NULL,
			recorded_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_outcomes_recorded_at ON outcomes (recorded_at)`,
		`CREATE TABLE IF NOT EXISTS engine_state (
			name TEXT PRIMARY KEY,
			payload TEXT NOT NULL,
			updated_at TEXT NOT NULL
		)`,
	}
	for _, stmt := range statements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("creating tables: %w", err)
		}
	}
	return nil
}

var placeholder = regexp.MustCompile(`\$(\d+)`)

// Rebind rewrites $n placeholders for the connected dialect
func (db *DB) Rebind(query string) string {
	if db.Dialect == SQLite {
		return placeholder.ReplaceAllString(query, "?$1")
	}
	return query
}
