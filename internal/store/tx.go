package store

import (
	"context"
	"database/sql"
	"fmt"

	"go.uber.org/multierr"
)

// Tx is one metadata transaction plus the side effects tied to its outcome.
type Tx struct {
	tx          *sql.Tx
	onRollback  []func() error
	afterCommit []func()
}

// OnRollback registers a compensation step. Steps run in reverse order
// before the transaction is rolled back.
func (t *Tx) OnRollback(fn func() error) {
	t.onRollback = append(t.onRollback, fn)
}

// AfterCommit registers a step that runs once the transaction has committed.
func (t *Tx) AfterCommit(fn func()) {
	t.afterCommit = append(t.afterCommit, fn)
}

// WithTx runs fn inside one transaction. Any error from fn, or from commit,
// rolls the whole unit back; compensation failures are appended to the cause.
func (s *Store) WithTx(ctx context.Context, fn func(*Tx) error) (err error) {
	if fn == nil {
		return fmt.Errorf("transaction body is required")
	}
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	tx := &Tx{tx: sqlTx}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.rollback()
			panic(p)
		}
		if err != nil {
			err = multierr.Append(err, tx.rollback())
		}
	}()

	if err = fn(tx); err != nil {
		return err
	}
	if err = sqlTx.Commit(); err != nil {
		return err
	}

	for _, hook := range tx.afterCommit {
		hook()
	}
	return nil
}

func (t *Tx) rollback() error {
	var errs error
	for i := len(t.onRollback) - 1; i >= 0; i-- {
		errs = multierr.Append(errs, t.onRollback[i]())
	}
	if rbErr := t.tx.Rollback(); rbErr != nil && rbErr != sql.ErrTxDone {
		errs = multierr.Append(errs, rbErr)
	}
	return errs
}
