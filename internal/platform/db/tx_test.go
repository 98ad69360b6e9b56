package db

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
)

func TestTxFromContext_Empty(t *testing.T) {
	if tx := TxFromContext(context.Background()); tx != nil {
		t.Error("expected nil tx from empty context")
	}
}

func TestTxFromContext_WrongType(t *testing.T) {
	ctx := context.WithValue(context.Background(), txKey, "not a tx")
	if tx := TxFromContext(ctx); tx != nil {
		t.Error("expected nil tx for wrong value type")
	}
}

func TestWithTx_NoPool(t *testing.T) {
	called := false
	err := WithTx(context.Background(), nil, func(context.Context) error {
		called = true
		return nil
	})
	if err == nil {
		t.Fatal("expected error without a pool")
	}
	if called {
		t.Error("fn must not run without a transaction")
	}
}

func TestUniqueViolation(t *testing.T) {
	err := fmt.Errorf("insert profile: %w", &pgconn.PgError{Code: "23505", ConstraintName: "profiles_email_key"})
	name, ok := UniqueViolation(err)
	if !ok || name != "profiles_email_key" {
		t.Errorf("expected unique violation on profiles_email_key, got %q %v", name, ok)
	}

	if _, ok := UniqueViolation(errors.New("other")); ok {
		t.Error("plain error is not a unique violation")
	}
	if !ForeignKeyViolation(&pgconn.PgError{Code: "23503"}) {
		t.Error("expected foreign key violation")
	}
}
