// Package conf provisions throw-away PostgreSQL databases for tests.
package conf

import (
	"database/sql"
	"fmt"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strings"
	"testing"

	_ "github.com/lib/pq"
)

// Config holds test database connection and metadata
type Config struct {
	Name      string
	DB        *sql.DB
	ConnStr   string
	AdminDB   *sql.DB
	SchemaSQL string
}

func env(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// NewTestConfig creates a database with a random name and applies
// scripts/schema.sql to it. The test is skipped when PostgreSQL is not
// reachable. Connection settings come from MV_TEST_PG_HOST, _PORT, _USER
// and _PASSWORD.
func NewTestConfig(t *testing.T) (*Config, func()) {
	t.Helper()

	base := fmt.Sprintf("host=%s port=%s user=%s password=%s sslmode=disable",
		env("MV_TEST_PG_HOST", "localhost"), env("MV_TEST_PG_PORT", "5432"),
		env("MV_TEST_PG_USER", "postgres"), env("MV_TEST_PG_PASSWORD", "postgres"))

	adminDB, err := sql.Open("postgres", base+" dbname=postgres")
	if err != nil {
		t.Fatalf("Failed to connect to postgres: %v", err)
	}
	if err := adminDB.Ping(); err != nil {
		adminDB.Close()
		t.Skipf("Skipping test: PostgreSQL is not running or not accessible: %v", err)
		return nil, func() {}
	}

	dbName := fmt.Sprintf("mv_test_%d", rand.Uint32())
	if _, err := adminDB.Exec(fmt.Sprintf("CREATE DATABASE %s", dbName)); err != nil {
		adminDB.Close()
		t.Fatalf("Failed to create test database: %v", err)
	}

	schema, err := readSchema()
	if err != nil {
		adminDB.Close()
		t.Fatalf("Failed to read schema.sql: %v", err)
	}

	connStr := base + " dbname=" + dbName
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		adminDB.Close()
		t.Fatalf("Failed to connect to test database: %v", err)
	}

	var hasTimescaleDB bool
	if err := db.QueryRow("SELECT EXISTS (SELECT 1 FROM pg_available_extensions WHERE name = 'timescaledb')").Scan(&hasTimescaleDB); err != nil {
		t.Logf("Warning: Failed to check for TimescaleDB extension: %v", err)
	}
	if hasTimescaleDB {
		if _, err := db.Exec("CREATE EXTENSION IF NOT EXISTS timescaledb CASCADE"); err != nil {
			t.Logf("Warning: Failed to create TimescaleDB extension: %v", err)
			hasTimescaleDB = false
		}
	}

	for stmt := range strings.SplitSeq(schema, ";") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" || isComment(stmt) {
			continue
		}
		if !hasTimescaleDB && strings.Contains(strings.ToLower(stmt), "create_hypertable") {
			continue
		}
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			adminDB.Close()
			t.Fatalf("Failed to apply schema statement: %s\nError: %v", stmt, err)
		}
	}

	cleanup := func() {
		db.Close()
		if _, err := adminDB.Exec(fmt.Sprintf("DROP DATABASE %s WITH (FORCE)", dbName)); err != nil {
			t.Logf("Warning: Failed to drop test database %s: %v", dbName, err)
		}
		adminDB.Close()
	}
	return &Config{Name: dbName, DB: db, ConnStr: connStr, AdminDB: adminDB, SchemaSQL: schema}, cleanup
}

// readSchema looks for scripts/schema.sql in the working directory and up
// to three parents.
func readSchema() (string, error) {
	path := filepath.Join("scripts", "schema.sql")
	for range 3 {
		if _, err := os.Stat(path); err == nil {
			break
		}
		path = filepath.Join("..", path)
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func isComment(stmt string) bool {
	for line := range strings.SplitSeq(stmt, "\n") {
		if l := strings.TrimSpace(line); l != "" && !strings.HasPrefix(l, "--") {
			return false
		}
	}
	return true
}
