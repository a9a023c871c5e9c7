// Package containers manages throwaway infrastructure for integration tests.
package containers

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"fete/internal/db"
)

// Postgres is a disposable database with migrations applied.
type Postgres struct {
	container *tcpostgres.PostgresContainer

	DSN  string
	Pool *sql.DB
}

// StartPostgres launches a Postgres container and applies all embedded
// migrations so stores see the production schema.
func StartPostgres(ctx context.Context) (*Postgres, error) {
	container, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("fete_test"),
		tcpostgres.WithUsername("fete"),
		tcpostgres.WithPassword("fete"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("start postgres container: %w", err)
	}

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		_ = container.Terminate(ctx)
		return nil, fmt.Errorf("postgres connection string: %w", err)
	}

	pool, err := db.Open(dsn)
	if err != nil {
		_ = container.Terminate(ctx)
		return nil, err
	}
	if err := db.Migrate(pool); err != nil {
		_ = pool.Close()
		_ = container.Terminate(ctx)
		return nil, err
	}

	return &Postgres{container: container, DSN: dsn, Pool: pool}, nil
}

// Terminate closes the pool and removes the container.
func (p *Postgres) Terminate(ctx context.Context) error {
	if p.Pool != nil {
		_ = p.Pool.Close()
	}
	return p.container.Terminate(ctx)
}

// TruncateAll wipes every table between test cases while keeping the schema.
func (p *Postgres) TruncateAll(ctx context.Context) error {
	_, err := p.Pool.ExecContext(ctx, `TRUNCATE guests, invitations, orders CASCADE`)
	if err != nil {
		return fmt.Errorf("truncate tables: %w", err)
	}
	return nil
}
