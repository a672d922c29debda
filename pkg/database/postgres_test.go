package database

import (
	"context"
	"errors"
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// testConfig reads TEST_POSTGRES_* over the local defaults
func testConfig() *PostgresConfig {
	cfg := DefaultPostgresConfig()
	if host := os.Getenv("TEST_POSTGRES_HOST"); host != "" {
		cfg.Host = host
	}
	if port, err := strconv.Atoi(os.Getenv("TEST_POSTGRES_PORT")); err == nil {
		cfg.Port = port
	}
	if name := os.Getenv("TEST_POSTGRES_DATABASE"); name != "" {
		cfg.Database = name
	}
	cfg.MaxRetries = 0
	return cfg
}

func skipIfNoIntegration(t *testing.T) *PostgresDB {
	t.Helper()
	if os.Getenv("INTEGRATION_TEST") != "true" {
		t.Skip("Skipping integration test. Set INTEGRATION_TEST=true to run")
	}
	db, err := NewPostgres(context.Background(), testConfig())
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(db.Close)
	return db
}

func TestDefaultPostgresConfig(t *testing.T) {
	cfg := DefaultPostgresConfig()
	if cfg.Database != "gym_platform" {
		t.Errorf("database = %q, want gym_platform", cfg.Database)
	}
	if cfg.MaxRetries != 3 || cfg.RetryInterval != 2*time.Second {
		t.Errorf("retry policy = %d x %v", cfg.MaxRetries, cfg.RetryInterval)
	}
}

func TestPostgresConfig_DSN(t *testing.T) {
	cfg := &PostgresConfig{Host: "db", Port: 6543, User: "gym", Password: "pw", Database: "core", SSLMode: "require"}
	want := "host=db port=6543 user=gym password=pw dbname=core sslmode=require"
	if got := cfg.DSN(); got != want {
		t.Errorf("DSN() = %q, want %q", got, want)
	}
}

func TestNewPostgres_GivesUpAfterRetries(t *testing.T) {
	cfg := &PostgresConfig{
		Host:           "invalid-host-that-does-not-exist",
		Port:           9999,
		User:           "invalid",
		Database:       "invalid",
		SSLMode:        "disable",
		MaxRetries:     1,
		RetryInterval:  10 * time.Millisecond,
		ConnectTimeout: time.Second,
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := NewPostgres(ctx, cfg); err == nil {
		t.Fatal("expected a connection error")
	}
}

func TestIsUniqueViolation(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "unique", err: &pgconn.PgError{Code: "23505"}, want: true},
		{name: "wrapped unique", err: errors.Join(errors.New("insert tenant"), &pgconn.PgError{Code: "23505"}), want: true},
		{name: "foreign key", err: &pgconn.PgError{Code: "23503"}},
		{name: "plain", err: errors.New("plain")},
		{name: "nil", err: nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsUniqueViolation(tt.err); got != tt.want {
				t.Errorf("IsUniqueViolation() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestPostgresDB_HealthCheck_Integration(t *testing.T) {
	db := skipIfNoIntegration(t)
	if err := db.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck: %v", err)
	}
}

func TestPostgresDB_WithTx_Integration(t *testing.T) {
	db := skipIfNoIntegration(t)
	ctx := context.Background()

	if err := db.Exec(ctx, "CREATE TABLE IF NOT EXISTS tx_slugs_test (slug TEXT PRIMARY KEY)"); err != nil {
		t.Fatalf("create table: %v", err)
	}
	t.Cleanup(func() { _ = db.Exec(ctx, "DROP TABLE tx_slugs_test") })

	count := func() int {
		var n int
		if err := db.QueryRow(ctx, "SELECT COUNT(*) FROM tx_slugs_test").Scan(&n); err != nil {
			t.Fatalf("count: %v", err)
		}
		return n
	}

	t.Run("commit", func(t *testing.T) {
		err := db.WithTx(ctx, func(tx pgx.Tx) error {
			_, err := tx.Exec(ctx, "INSERT INTO tx_slugs_test (slug) VALUES ('acme')")
			return err
		})
		if err != nil {
			t.Fatalf("WithTx: %v", err)
		}
		if n := count(); n != 1 {
			t.Errorf("rows = %d, want 1", n)
		}
	})

	t.Run("duplicate rolls back the whole transaction", func(t *testing.T) {
		err := db.WithTx(ctx, func(tx pgx.Tx) error {
			if _, err := tx.Exec(ctx, "INSERT INTO tx_slugs_test (slug) VALUES ('bravo')"); err != nil {
				return err
			}
			_, err := tx.Exec(ctx, "INSERT INTO tx_slugs_test (slug) VALUES ('acme')")
			return err
		})
		if !IsUniqueViolation(err) {
			t.Fatalf("WithTx error = %v, want unique violation", err)
		}
		if n := count(); n != 1 {
			t.Errorf("rows = %d, want 1 after rollback", n)
		}
	})
}
