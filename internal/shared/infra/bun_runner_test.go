package infra_test

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"github.com/charadev96/dchat/internal/shared/infra"
)

func openCounter(t *testing.T) *bun.DB {
	t.Helper()
	ctx := context.Background()
	db, err := infra.OpenSQLite(ctx, infra.MemoryDSN(uuid.NewString()))
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if _, err := db.ExecContext(ctx, "CREATE TABLE counter (n INTEGER)"); err != nil {
		t.Fatalf("create table: %v", err)
	}
	return db
}

func insert(ctx context.Context, db *bun.DB, n int) error {
	_, err := infra.ExtractTx(ctx, db).ExecContext(ctx, "INSERT INTO counter (n) VALUES (?)", n)
	return err
}

func rows(t *testing.T, db *bun.DB) int {
	t.Helper()
	var n int
	if err := db.NewRaw("SELECT count(*) FROM counter").Scan(context.Background(), &n); err != nil {
		t.Fatalf("count: %v", err)
	}
	return n
}

func TestBunTransactionRunner_Commit(t *testing.T) {
	db := openCounter(t)
	runner := infra.NewBunTransactionRunner(db)

	err := runner.Exec(context.Background(), func(ctx context.Context) error {
		if _, ok := infra.ExtractTx(ctx, db).(bun.Tx); !ok {
			t.Error("no transaction in context")
		}
		return insert(ctx, db, 1)
	})
	if err != nil {
		t.Fatalf("Exec: %v", err)
	}
	if n := rows(t, db); n != 1 {
		t.Fatalf("want 1 row, got %d", n)
	}
}

func TestBunTransactionRunner_RollsBack(t *testing.T) {
	db := openCounter(t)
	runner := infra.NewBunTransactionRunner(db)
	boom := errors.New("boom")

	err := runner.Exec(context.Background(), func(ctx context.Context) error {
		if err := insert(ctx, db, 1); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("want boom, got %v", err)
	}
	if n := rows(t, db); n != 0 {
		t.Fatalf("want rollback, got %d rows", n)
	}
}

func TestBunTransactionRunner_NestedJoinsOuter(t *testing.T) {
	db := openCounter(t)
	runner := infra.NewBunTransactionRunner(db)
	boom := errors.New("boom")

	err := runner.Exec(context.Background(), func(ctx context.Context) error {
		outer := infra.ExtractTx(ctx, db)
		err := runner.Exec(ctx, func(ctx context.Context) error {
			if infra.ExtractTx(ctx, db) != outer {
				t.Error("nested call opened another transaction")
			}
			return insert(ctx, db, 1)
		})
		if err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("want boom, got %v", err)
	}
	if n := rows(t, db); n != 0 {
		t.Fatalf("nested write survived outer rollback, %d rows", n)
	}
}
