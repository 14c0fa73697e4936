package postgres

import (
	"context"
	"errors"

	"pet-tracker/internal/ports"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNoTx is returned by pet repository methods called outside UnitOfWork.
var ErrNoTx = errors.New("no transaction in context: call the pet repository inside UnitOfWork")

type txKey struct{}

// querier is the part of pgx.Tx and *pgxpool.Pool the repositories use.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type unitOfWork struct {
	pool *pgxpool.Pool
}

// NewUnitOfWork returns a UnitOfWork that carries its pgx.Tx in the context.
func NewUnitOfWork(pool *pgxpool.Pool) ports.UnitOfWork {
	return &unitOfWork{pool: pool}
}

// WithinTx runs fn in a read-committed transaction. It commits when fn returns nil and rolls
// back otherwise, panics included. A call nested inside another transaction joins it.
func (uow *unitOfWork) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return uow.run(ctx, pgx.TxOptions{}, fn)
}

// WithinReadTx is WithinTx for pet reads. The transaction is read-only, so a repository
// bug that writes fails instead of committing.
func (uow *unitOfWork) WithinReadTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return uow.run(ctx, pgx.TxOptions{AccessMode: pgx.ReadOnly}, fn)
}

func (uow *unitOfWork) run(ctx context.Context, opts pgx.TxOptions, fn func(ctx context.Context) error) error {
	if _, ok := txFrom(ctx); ok {
		return fn(ctx)
	}
	return pgx.BeginTxFunc(ctx, uow.pool, opts, func(tx pgx.Tx) error {
		return fn(context.WithValue(ctx, txKey{}, tx))
	})
}

func txFrom(ctx context.Context) (pgx.Tx, bool) {
	tx, ok := ctx.Value(txKey{}).(pgx.Tx)
	return tx, ok
}

// requireTx is for pet rows, which are only ever touched inside a unit of work.
func requireTx(ctx context.Context) (pgx.Tx, error) {
	if tx, ok := txFrom(ctx); ok {
		return tx, nil
	}
	return nil, ErrNoTx
}

// connFrom prefers the transaction in ctx and falls back to the pool. History appends and
// device position upserts are single statements issued outside any unit of work.
func connFrom(ctx context.Context, pool *pgxpool.Pool) querier {
	if tx, ok := txFrom(ctx); ok {
		return tx
	}
	return pool
}
