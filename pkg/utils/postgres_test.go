package utils

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"testing"
)

// Minimal driver recording transaction outcomes.
type txCounters struct {
	begins    int
	commits   int
	rollbacks int
}

var txState txCounters

type fakeTxDriver struct{}

func (fakeTxDriver) Open(name string) (driver.Conn, error) { return fakeTxConn{}, nil }

type fakeTxConn struct{}

func (fakeTxConn) Prepare(query string) (driver.Stmt, error) {
	return nil, errors.New("not implemented")
}
func (fakeTxConn) Close() error { return nil }
func (fakeTxConn) Begin() (driver.Tx, error) {
	txState.begins++
	return fakeTx{}, nil
}

type fakeTx struct{}

func (fakeTx) Commit() error {
	txState.commits++
	return nil
}
func (fakeTx) Rollback() error {
	txState.rollbacks++
	return nil
}

func init() { sql.Register("fake-tx", fakeTxDriver{}) }

func openFakeTxDB(t *testing.T) *sql.DB {
	t.Helper()
	txState = txCounters{}
	db, err := sql.Open("fake-tx", "")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestWithTx_CommitsOnSuccess(t *testing.T) {
	db := openFakeTxDB(t)

	err := WithTx(context.Background(), db, nil, func(ctx context.Context, tx *sql.Tx) error {
		return nil
	})
	if err != nil {
		t.Fatalf("with tx: %v", err)
	}
	if txState.begins != 1 || txState.commits != 1 || txState.rollbacks != 0 {
		t.Fatalf("expected begin+commit, got %+v", txState)
	}
}

func TestWithTx_RollbackOnError(t *testing.T) {
	db := openFakeTxDB(t)

	sentinel := errors.New("boom")
	err := WithTx(context.Background(), db, nil, func(ctx context.Context, tx *sql.Tx) error {
		return sentinel
	})
	if !errors.Is(err, sentinel) {
		t.Fatalf("expected sentinel error, got %v", err)
	}
	if txState.commits != 0 || txState.rollbacks != 1 {
		t.Fatalf("expected rollback without commit, got %+v", txState)
	}
}

func TestWithTx_RollbackOnPanic(t *testing.T) {
	db := openFakeTxDB(t)

	func() {
		defer func() {
			if recover() == nil {
				t.Fatalf("expected panic to propagate")
			}
		}()
		_ = WithTx(context.Background(), db, nil, func(ctx context.Context, tx *sql.Tx) error {
			panic("boom")
		})
	}()

	if txState.commits != 0 || txState.rollbacks != 1 {
		t.Fatalf("expected rollback on panic, got %+v", txState)
	}
}
