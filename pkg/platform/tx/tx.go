// Package tx carries SQL transactions through context so multiple stores can
// join one atomic unit without coupling their interfaces to database/sql.
package tx

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
)

type ctxKey struct{}

var txKey = ctxKey{}

// WithTx stores a SQL transaction in context for downstream store usage.
func WithTx(ctx context.Context, tx *sql.Tx) context.Context {
	if tx == nil {
		return ctx
	}
	return context.WithValue(ctx, txKey, tx)
}

// From extracts a SQL transaction from context if present.
func From(ctx context.Context) (*sql.Tx, bool) {
	tx, ok := ctx.Value(txKey).(*sql.Tx)
	return tx, ok
}

// Querier is the subset of database/sql shared by *sql.DB and *sql.Tx.
// Stores resolve it per call so the same code runs inside or outside a
// transaction.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// QuerierFrom returns the context transaction when one is active, otherwise
// the provided pool.
func QuerierFrom(ctx context.Context, db *sql.DB) Querier {
	if tx, ok := From(ctx); ok {
		return tx
	}
	return db
}

// Runner executes a function inside one atomic unit. The SQL implementation
// opens a real transaction; the memory implementation serializes units with a
// mutex so in-memory stores see the same isolation in unit tests.
type Runner interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// SQLRunner runs units of work inside database transactions.
type SQLRunner struct {
	db *sql.DB
}

func NewSQLRunner(db *sql.DB) *SQLRunner {
	return &SQLRunner{db: db}
}

func (r *SQLRunner) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	dbTx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		_ = dbTx.Rollback()
	}()

	if err := fn(WithTx(ctx, dbTx)); err != nil {
		return err
	}
	if err := dbTx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// MemoryRunner serializes units of work with a single mutex. There is no
// rollback: callers must order reads before writes inside the unit so a
// failing unit leaves no partial state.
type MemoryRunner struct {
	mu sync.Mutex
}

func NewMemoryRunner() *MemoryRunner {
	return &MemoryRunner{}
}

func (r *MemoryRunner) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return fn(ctx)
}
