package testutil

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// PGContainer starts a throwaway Postgres container, runs all migrations,
// and returns the *sql.DB plus a cleanup function that terminates the
// container. Used by integration tests that should not depend on a
// developer-provided POSTGRES_URL.
//
// If Docker is unavailable the test is skipped.
func PGContainer(t *testing.T) (*sql.DB, func()) {
	t.Helper()

	ctx := context.Background()

	pg, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("proptor_test"),
		tcpostgres.WithUsername("proptor"),
		tcpostgres.WithPassword("proptor"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	if err != nil {
		t.Skipf("pgcontainer: could not start postgres container (docker unavailable?): %v", err)
	}

	dbURL, err := pg.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		_ = pg.Terminate(ctx)
		t.Fatalf("pgcontainer: connection string: %v", err)
	}

	db, err := sql.Open("postgres", dbURL)
	if err != nil {
		_ = pg.Terminate(ctx)
		t.Fatalf("pgcontainer: open database: %v", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		_ = pg.Terminate(ctx)
		t.Fatalf("pgcontainer: connect to database: %v", err)
	}

	migrationsDir := findMigrationsDir(t)
	if err := runMigrations(ctx, db, migrationsDir); err != nil {
		_ = db.Close()
		_ = pg.Terminate(ctx)
		t.Fatalf("pgcontainer: run migrations: %v", err)
	}

	cleanup := func() {
		_ = db.Close()
		_ = pg.Terminate(ctx)
	}

	return db, cleanup
}
