package store

import (
	"context"
	"errors"
	"testing"
)

func TestWithTxCommitRunsAfterCommitHooks(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()

	var committed, compensated bool
	err := st.WithTx(ctx, func(tx *Tx) error {
		tx.OnRollback(func() error {
			compensated = true
			return nil
		})
		tx.AfterCommit(func() { committed = true })
		return tx.EnsureQuota(ctx, "alice", 100)
	})
	if err != nil {
		t.Fatalf("with tx: %v", err)
	}
	if !committed || compensated {
		t.Fatalf("expected commit hook only, committed=%v compensated=%v", committed, compensated)
	}

	quota, err := st.GetQuota(ctx, "alice")
	if err != nil {
		t.Fatalf("get quota: %v", err)
	}
	if quota == nil {
		t.Fatal("expected quota to be committed")
	}
}

func TestWithTxRollbackRunsCompensationInReverse(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()
	cause := errors.New("boom")

	var order []int
	var committed bool
	err := st.WithTx(ctx, func(tx *Tx) error {
		tx.OnRollback(func() error { order = append(order, 1); return nil })
		tx.OnRollback(func() error { order = append(order, 2); return nil })
		tx.AfterCommit(func() { committed = true })
		if err := tx.EnsureQuota(ctx, "alice", 100); err != nil {
			return err
		}
		return cause
	})
	if !errors.Is(err, cause) {
		t.Fatalf("expected cause, got %v", err)
	}
	if committed {
		t.Fatal("after-commit hook ran on rollback")
	}
	if len(order) != 2 || order[0] != 2 || order[1] != 1 {
		t.Fatalf("expected reverse order, got %v", order)
	}

	quota, err := st.GetQuota(ctx, "alice")
	if err != nil {
		t.Fatalf("get quota: %v", err)
	}
	if quota != nil {
		t.Fatalf("expected rollback to discard quota, got %#v", quota)
	}
}

func TestWithTxJoinsCompensationErrors(t *testing.T) {
	st := testStore(t)
	cause := errors.New("boom")
	compErr := errors.New("cleanup failed")

	err := st.WithTx(context.Background(), func(tx *Tx) error {
		tx.OnRollback(func() error { return compErr })
		return cause
	})
	if !errors.Is(err, cause) {
		t.Fatalf("expected cause in %v", err)
	}
	if !errors.Is(err, compErr) {
		t.Fatalf("expected compensation error in %v", err)
	}
}
