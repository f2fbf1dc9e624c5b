package db

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/ehr/claimsdb/internal/platform/apperr"
)

func TestClassify_NoRows(t *testing.T) {
	err := Classify(fmt.Errorf("scan claim: %w", pgx.ErrNoRows), "claim", "c1")
	if !apperr.IsNotFound(err) {
		t.Fatalf("expected NotFound, got %v", err)
	}
}

func TestClassify_UniqueViolation(t *testing.T) {
	err := Classify(&pgconn.PgError{Code: "23505", ConstraintName: "claim_lines_claim_id_line_number_key"}, "claim line", "c1/1")
	if !apperr.IsConflict(err) {
		t.Fatalf("expected Conflict, got %v", err)
	}
}

func TestClassify_ForeignKeyViolation(t *testing.T) {
	err := Classify(&pgconn.PgError{Code: "23503", ConstraintName: "claims_payer_id_fkey"}, "claim", "c1")
	if !apperr.IsReferentialIntegrity(err) {
		t.Fatalf("expected ReferentialIntegrity, got %v", err)
	}
}

func TestClassify_CheckViolation(t *testing.T) {
	err := Classify(&pgconn.PgError{Code: "23514", ConstraintName: "claim_lines_units_check", Message: "violates check"}, "claim line", "")
	if !apperr.IsValidation(err) {
		t.Fatalf("expected Validation, got %v", err)
	}
}

func TestClassify_DataException(t *testing.T) {
	for _, code := range []string{"22001", "22003", "22P02"} {
		err := Classify(&pgconn.PgError{Code: code, Message: "value too long"}, "claim", "c1")
		if !apperr.IsValidation(err) {
			t.Fatalf("%s: expected Validation, got %v", code, err)
		}
		var ve *apperr.ValidationError
		if !errors.As(err, &ve) || ve.Fields[0].Field != "claim" {
			t.Errorf("%s: expected field to fall back to entity, got %v", code, err)
		}
	}
}

func TestClassify_PassThrough(t *testing.T) {
	base := errors.New("connection refused")
	if got := Classify(base, "claim", ""); got != base {
		t.Errorf("expected passthrough, got %v", got)
	}
	if Classify(nil, "claim", "") != nil {
		t.Error("expected nil for nil error")
	}
	other := &pgconn.PgError{Code: "40001"}
	if got := Classify(other, "claim", ""); got != error(other) {
		t.Errorf("expected serialization failure to pass through, got %v", got)
	}
}
