package db

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
)

type fakeTx struct {
	pgx.Tx
	committed  bool
	rolledBack bool
}

func (f *fakeTx) Commit(ctx context.Context) error {
	f.committed = true
	return nil
}

func (f *fakeTx) Rollback(ctx context.Context) error {
	if !f.committed {
		f.rolledBack = true
	}
	return nil
}

type fakeBeginner struct {
	tx    *fakeTx
	calls int
	err   error
}

func (f *fakeBeginner) Begin(ctx context.Context) (pgx.Tx, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.tx, nil
}

func TestTxFromContext_Empty(t *testing.T) {
	if tx := TxFromContext(context.Background()); tx != nil {
		t.Error("expected nil tx from empty context")
	}
}

func TestInTx_Commits(t *testing.T) {
	b := &fakeBeginner{tx: &fakeTx{}}
	var seen pgx.Tx
	err := InTx(context.Background(), b, func(ctx context.Context) error {
		seen = TxFromContext(ctx)
		return nil
	})
	if err != nil {
		t.Fatalf("InTx: %v", err)
	}
	if seen != b.tx {
		t.Error("expected fn to see the started transaction")
	}
	if !b.tx.committed || b.tx.rolledBack {
		t.Errorf("expected commit without rollback, got %+v", b.tx)
	}
}

func TestInTx_RollsBackOnError(t *testing.T) {
	b := &fakeBeginner{tx: &fakeTx{}}
	boom := errors.New("boom")
	err := InTx(context.Background(), b, func(ctx context.Context) error { return boom })
	if !errors.Is(err, boom) {
		t.Fatalf("expected fn error, got %v", err)
	}
	if b.tx.committed || !b.tx.rolledBack {
		t.Errorf("expected rollback, got %+v", b.tx)
	}
}

func TestInTx_JoinsOuterTransaction(t *testing.T) {
	outer := &fakeTx{}
	b := &fakeBeginner{tx: &fakeTx{}}
	ctx := WithTx(context.Background(), outer)

	err := InTx(ctx, b, func(ctx context.Context) error {
		if TxFromContext(ctx) != outer {
			t.Error("expected outer transaction")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("InTx: %v", err)
	}
	if b.calls != 0 {
		t.Errorf("expected no new transaction, got %d Begin calls", b.calls)
	}
	if outer.committed {
		t.Error("inner InTx must not commit the outer transaction")
	}
}

func TestInTx_BeginError(t *testing.T) {
	b := &fakeBeginner{err: errors.New("refused")}
	err := InTx(context.Background(), b, func(ctx context.Context) error {
		t.Error("fn should not run")
		return nil
	})
	if err == nil {
		t.Error("expected begin error")
	}
}

func TestInTx_NilBeginner(t *testing.T) {
	err := InTx(context.Background(), nil, func(ctx context.Context) error { return nil })
	if !errors.Is(err, ErrNoBeginner) {
		t.Errorf("expected ErrNoBeginner, got %v", err)
	}
}
