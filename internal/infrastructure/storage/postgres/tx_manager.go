package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"stockledger/internal/core/tx"
	"stockledger/pkg/logger"
)

var tracer = otel.Tracer("stockledger/tx")

var _ tx.ReadOnlyManager = (*TxManager)(nil)

// UnitOptions configures a top-level unit. Nested calls inherit the
// options of the unit they join.
type UnitOptions struct {
	Isolation pgx.TxIsoLevel
	ReadOnly  bool
	// StatementTimeout bounds every statement in the unit. Zero disables it.
	StatementTimeout time.Duration
}

// TxManager runs atomic units on PostgreSQL transactions.
//
// Balance rows are taken with SELECT ... FOR UPDATE, so READ COMMITTED is
// enough for the lost-update guarantees; lock waits and deadlocks come back
// as ConcurrencyConflict via classifyTxError.
type TxManager struct {
	pool     *pgxpool.Pool
	defaults UnitOptions
}

// NewTxManager creates a transaction manager over pool.
func NewTxManager(pool *Pool) *TxManager {
	return &TxManager{
		pool: pool.Pool,
		defaults: UnitOptions{
			Isolation:        pgx.ReadCommitted,
			StatementTimeout: 30 * time.Second,
		},
	}
}

// WithStatementTimeout overrides the per-unit statement timeout.
func (m *TxManager) WithStatementTimeout(d time.Duration) *TxManager {
	m.defaults.StatementTimeout = d
	return m
}

type unitKey struct{}

type unit struct {
	tx       pgx.Tx
	readOnly bool
}

// RunInTransaction implements tx.Manager.
func (m *TxManager) RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return m.run(ctx, m.defaults, fn)
}

// ReadOnly implements tx.ReadOnlyManager.
func (m *TxManager) ReadOnly(ctx context.Context, fn func(ctx context.Context) error) error {
	opts := m.defaults
	opts.ReadOnly = true
	return m.run(ctx, opts, fn)
}

func (m *TxManager) run(ctx context.Context, opts UnitOptions, fn func(ctx context.Context) error) error {
	if u, ok := ctx.Value(unitKey{}).(*unit); ok {
		if u.readOnly && !opts.ReadOnly {
			return classifyTxError(errors.New("write unit requested inside a read-only unit"))
		}
		return fn(ctx)
	}

	ctx, span := tracer.Start(ctx, "db.unit", trace.WithAttributes(
		attribute.String("db.isolation", string(opts.Isolation)),
		attribute.Bool("db.read_only", opts.ReadOnly),
	))
	defer span.End()

	if err := m.runTop(ctx, opts, fn); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "unit aborted")
		return classifyTxError(err)
	}
	return nil
}

func (m *TxManager) runTop(ctx context.Context, opts UnitOptions, fn func(ctx context.Context) error) (err error) {
	access := pgx.ReadWrite
	if opts.ReadOnly {
		access = pgx.ReadOnly
	}
	pgTx, err := m.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: opts.Isolation, AccessMode: access})
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	// Rollback after commit is a no-op, so this covers every early exit.
	defer func() {
		p := recover()
		if p != nil || err != nil {
			if rbErr := pgTx.Rollback(context.Background()); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
				logger.Error(ctx, "rollback failed", "error", rbErr)
			}
		}
		if p != nil {
			panic(p)
		}
	}()

	if opts.StatementTimeout > 0 {
		ms := fmt.Sprintf("%d", opts.StatementTimeout.Milliseconds())
		if _, err = pgTx.Exec(ctx, "SELECT set_config('statement_timeout', $1, true)", ms); err != nil {
			return fmt.Errorf("set statement_timeout: %w", err)
		}
	}

	if err = fn(context.WithValue(ctx, unitKey{}, &unit{tx: pgTx, readOnly: opts.ReadOnly})); err != nil {
		return err
	}

	// A caller that gave up must not see its writes land.
	if err = ctx.Err(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	if err = pgTx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// InTx returns the transaction of the unit carried by ctx, or nil.
func (m *TxManager) InTx(ctx context.Context) pgx.Tx {
	if u, ok := ctx.Value(unitKey{}).(*unit); ok {
		return u.tx
	}
	return nil
}

// Querier is satisfied by both the pool and an open transaction.
type Querier interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// GetQuerier returns the unit's transaction when ctx carries one and the
// pool otherwise.
func (m *TxManager) GetQuerier(ctx context.Context) Querier {
	if t := m.InTx(ctx); t != nil {
		return t
	}
	return m.pool
}
