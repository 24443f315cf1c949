package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/garyjia/repair-center/internal/application/port"
	domainwf "github.com/garyjia/repair-center/internal/domain/workflow"
	"go.uber.org/zap"
)

// txKey is unexported so only this package can place a transaction in a context
type txKey struct{}

// slowTx is the duration above which a committed transaction is logged
const slowTx = 500 * time.Millisecond

// DB is the TransactionManager over a SQLite handle. The transaction in
// flight travels in the context; repositories pick it up through Conn.
type DB struct {
	*sql.DB
	logger *zap.Logger
}

func NewDB(sqlDB *sql.DB, logger *zap.Logger) *DB {
	return &DB{DB: sqlDB, logger: logger}
}

// WithTransaction runs fn in a transaction, joining one already carried by ctx.
// A database still locked by another writer after the busy timeout surfaces
// as ErrConcurrentModification so callers can retry.
func (db *DB) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if txFrom(ctx) != nil {
		return fn(ctx)
	}

	started := time.Now()
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return db.txError("begin", err)
	}

	committed := false
	defer func() {
		if committed {
			return
		}
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			db.logger.Warn("Rollback failed", zap.Error(rbErr))
		}
		if p := recover(); p != nil {
			db.logger.Error("Panic inside transaction, rolled back", zap.Any("panic", p))
			panic(p)
		}
	}()

	if err := fn(context.WithValue(ctx, txKey{}, tx)); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return db.txError("commit", err)
	}
	committed = true

	if elapsed := time.Since(started); elapsed > slowTx {
		db.logger.Warn("Slow transaction", zap.Duration("elapsed", elapsed))
	}
	return nil
}

func (db *DB) txError(stage string, err error) error {
	if IsBusy(err) {
		db.logger.Warn("Database busy", zap.String("stage", stage), zap.Error(err))
		return fmt.Errorf("%s transaction: %v: %w", stage, err, domainwf.ErrConcurrentModification)
	}
	db.logger.Error("Transaction failed", zap.String("stage", stage), zap.Error(err))
	return fmt.Errorf("%s transaction: %w", stage, err)
}

func txFrom(ctx context.Context) *sql.Tx {
	tx, _ := ctx.Value(txKey{}).(*sql.Tx)
	return tx
}

// Executor covers both *sql.DB and *sql.Tx
type Executor interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// Conn returns the transaction carried by ctx, or db when there is none
func Conn(ctx context.Context, db *sql.DB) Executor {
	if tx := txFrom(ctx); tx != nil {
		return tx
	}
	return db
}

var _ port.TransactionManager = (*DB)(nil)
