package db

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

func TestTxFromContext_Empty(t *testing.T) {
	if tx := TxFromContext(context.Background()); tx != nil {
		t.Errorf("expected nil tx, got %v", tx)
	}
}

func TestIsConstraintViolation(t *testing.T) {
	pgErr := &pgconn.PgError{Code: UniqueViolation, ConstraintName: "appointments_active_slot_key"}
	wrapped := fmt.Errorf("insert appointment: %w", pgErr)

	if !IsConstraintViolation(wrapped, UniqueViolation, "") {
		t.Error("expected match on code alone")
	}
	if !IsConstraintViolation(wrapped, UniqueViolation, "appointments_active_slot_key") {
		t.Error("expected match on code and constraint")
	}
	if IsConstraintViolation(wrapped, UniqueViolation, "reviews_appointment_id_key") {
		t.Error("expected no match for another constraint")
	}
	if IsConstraintViolation(wrapped, ForeignKeyViolation, "") {
		t.Error("expected no match for another code")
	}
	if IsConstraintViolation(errors.New("boom"), UniqueViolation, "") {
		t.Error("plain errors never match")
	}
}

func TestIsNoRows(t *testing.T) {
	if !IsNoRows(fmt.Errorf("get doctor: %w", pgx.ErrNoRows)) {
		t.Error("expected wrapped ErrNoRows to match")
	}
	if IsNoRows(errors.New("other")) {
		t.Error("unexpected match")
	}
}
