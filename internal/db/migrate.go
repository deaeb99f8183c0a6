package db

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/lib/pq"

	"github.com/amirphl/momentum-validator/internal/candle"
	"github.com/amirphl/momentum-validator/internal/utils"
)

// Migrate creates the database named in connStr if it doesn't exist and
// applies the schema file to it. connStr must be a postgres:// URL. The
// hypertable statement is skipped when TimescaleDB is not installed.
func Migrate(ctx context.Context, connStr, schemaPath string) error {
	logger := utils.Component("db")
	logger.Info().Msg("Migrate | running database migrations")

	u, err := url.Parse(connStr)
	if err != nil {
		return fmt.Errorf("failed to parse connection string: %w", err)
	}
	dbName := strings.TrimPrefix(u.Path, "/")
	if u.Scheme == "" || dbName == "" {
		return fmt.Errorf("database name not found in connection string")
	}

	admin := *u
	admin.Path = "/postgres"
	baseDB, err := sql.Open("postgres", admin.String())
	if err != nil {
		return fmt.Errorf("failed to connect to postgres: %w", err)
	}
	defer baseDB.Close()

	var exists bool
	err = baseDB.QueryRowContext(ctx, "SELECT EXISTS(SELECT 1 FROM pg_database WHERE datname = $1)", dbName).Scan(&exists)
	if err != nil {
		return fmt.Errorf("failed to check if database exists: %w", err)
	}
	if !exists {
		logger.Info().Msgf("Migrate | creating database %s", dbName)
		if _, err := baseDB.ExecContext(ctx, fmt.Sprintf("CREATE DATABASE %s", pq.QuoteIdentifier(dbName))); err != nil {
			return fmt.Errorf("failed to create database: %w", err)
		}
	}

	conn, err := sql.Open("postgres", connStr)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer conn.Close()

	schema, err := os.ReadFile(schemaPath)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", schemaPath, err)
	}

	timescale := false
	if err := conn.QueryRowContext(ctx,
		"SELECT EXISTS (SELECT 1 FROM pg_available_extensions WHERE name = 'timescaledb')").Scan(&timescale); err != nil {
		return fmt.Errorf("failed to check for timescaledb: %w", err)
	}
	if timescale {
		if _, err := conn.ExecContext(ctx, "CREATE EXTENSION IF NOT EXISTS timescaledb CASCADE"); err != nil {
			logger.Warn().Msgf("Migrate | timescaledb unavailable, keeping a plain table: %v", err)
			timescale = false
		}
	}

	for _, stmt := range statements(string(schema)) {
		if !timescale && strings.Contains(strings.ToLower(stmt), "create_hypertable") {
			continue
		}
		if _, err := conn.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to execute schema statement %q: %w", stmt, err)
		}
	}

	logger.Info().Msg("Migrate | database migrations completed successfully")
	return nil
}

// statements splits a schema script on semicolons and drops empty and
// comment-only pieces.
func statements(schema string) []string {
	var out []string
	for stmt := range strings.SplitSeq(schema, ";") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" || commentOnly(stmt) {
			continue
		}
		out = append(out, stmt)
	}
	return out
}

func commentOnly(stmt string) bool {
	for line := range strings.SplitSeq(stmt, "\n") {
		if l := strings.TrimSpace(line); l != "" && !strings.HasPrefix(l, "--") {
			return false
		}
	}
	return true
}

// Import upserts the candles of a CSV file into store under symbol and
// returns how many were written.
func Import(ctx context.Context, store CandleStore, symbol, path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	raw, err := ReadCSV(f)
	if err != nil {
		return 0, fmt.Errorf("read %s: %w", path, err)
	}
	cleaned, dropped := candle.Clean(raw)
	if dropped > 0 {
		logger := utils.Component("db")
		logger.Warn().Msgf("Import | dropped %d invalid or duplicate rows from %s", dropped, path)
	}
	if err := store.SaveCandles(ctx, symbol, cleaned); err != nil {
		return 0, err
	}
	return len(cleaned), nil
}
