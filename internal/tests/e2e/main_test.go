//go:build e2e

package e2e

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/lifelog/apiserver/config"
	"github.com/lifelog/apiserver/internal/server"
	"github.com/lifelog/apiserver/internal/store"
	"github.com/lifelog/apiserver/internal/testsupport"
	_ "github.com/lib/pq"
	"github.com/testcontainers/testcontainers-go"
	postgrescontainer "github.com/testcontainers/testcontainers-go/modules/postgres"
)

const migrationsURL = "file://../../db/migrations"

var baseURL string

func TestMain(m *testing.M) {
	os.Exit(run(m))
}

func run(m *testing.M) int {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	pg, err := postgrescontainer.Run(ctx, "postgres:16-alpine",
		postgrescontainer.WithDatabase("lifelog_db"),
		postgrescontainer.WithUsername("lifelog"),
		postgrescontainer.WithPassword("password"),
		postgrescontainer.BasicWaitStrategies(),
	)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to start postgres: %v\n", err)
		return 1
	}
	defer func() {
		if err := testcontainers.TerminateContainer(pg); err != nil {
			fmt.Fprintf(os.Stderr, "failed to terminate postgres: %v\n", err)
		}
	}()

	dsn, err := pg.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to read connection string: %v\n", err)
		return 1
	}

	if err := runMigrations(dsn); err != nil {
		fmt.Fprintf(os.Stderr, "failed to run migrations: %v\n", err)
		return 1
	}

	conn, err := sql.Open("postgres", dsn)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to open database: %v\n", err)
		return 1
	}
	defer conn.Close()

	cfg := config.Default()
	cfg.JWTSecret = "e2e-secret"
	cfg.RateLimit.RequestsPerSecond = 1000
	cfg.RateLimit.Burst = 1000

	srv := httptest.NewServer(server.NewRouter(ctx, cfg, server.Dependencies{
		Users:      store.NewUserRepository(conn),
		Activities: store.NewActivityRepository(conn),
		Analytics:  store.NewAnalyticsRepository(conn),
		Objects:    testsupport.NewObjects(),
	}))
	defer srv.Close()
	baseURL = srv.URL

	return m.Run()
}

func runMigrations(dsn string) error {
	migrator, err := migrate.New(migrationsURL, dsn)
	if err != nil {
		return err
	}
	defer func() {
		_, _ = migrator.Close()
	}()

	if err := migrator.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}
	return nil
}
