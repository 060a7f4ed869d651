package database

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/lib/pq"
	"github.com/uptrace/bun"
)

type txKey struct{}

// TxRunner runs fn inside a single database transaction. Stores reached from
// fn through Conn see the same transaction.
type TxRunner struct {
	DB *bun.DB
}

func NewTxRunner(db *bun.DB) *TxRunner {
	return &TxRunner{DB: db}
}

// WithTx joins the transaction already carried by ctx, or starts a new one.
func (r *TxRunner) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(txKey{}).(bun.Tx); ok {
		return fn(ctx)
	}
	return r.DB.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		return fn(context.WithValue(ctx, txKey{}, tx))
	})
}

// Conn returns the transaction carried by ctx, falling back to db.
func Conn(ctx context.Context, db *bun.DB) bun.IDB {
	if tx, ok := ctx.Value(txKey{}).(bun.Tx); ok {
		return tx
	}
	return db
}

// InTx reports whether ctx carries a transaction.
func InTx(ctx context.Context) bool {
	_, ok := ctx.Value(txKey{}).(bun.Tx)
	return ok
}

// IsRetryable reports whether err is a transient concurrency conflict:
// a Postgres serialization failure or deadlock, or a busy SQLite database.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case "40001", "40P01", "55P03":
			return true
		}
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "database is locked") || strings.Contains(msg, "SQLITE_BUSY")
}

// IsNoRows maps sql.ErrNoRows for callers that translate it into ErrNotFound.
func IsNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
