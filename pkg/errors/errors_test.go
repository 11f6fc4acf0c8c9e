package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

func TestMetadataForKnownCodes(t *testing.T) {
	tests := []struct {
		code      Code
		status    int
		publicMsg string
		retryable bool
		detailsOK bool
		exposed   bool
	}{
		{code: CodeValidation, status: http.StatusBadRequest, publicMsg: "validation failed", detailsOK: true, exposed: true},
		{code: CodeUnauthorized, status: http.StatusUnauthorized, publicMsg: "authentication required", exposed: true},
		{code: CodeForbidden, status: http.StatusForbidden, publicMsg: "access denied", exposed: true},
		{code: CodeNotFound, status: http.StatusNotFound, publicMsg: "resource not found", exposed: true},
		{code: CodeConflict, status: http.StatusConflict, publicMsg: "conflict detected", detailsOK: true, exposed: true},
		{code: CodeStateConflict, status: http.StatusUnprocessableEntity, publicMsg: "state transition disallowed", detailsOK: true, exposed: true},
		{code: CodeRateLimited, status: http.StatusTooManyRequests, publicMsg: "too many requests", retryable: true, exposed: true},
		{code: CodeInternal, status: http.StatusInternalServerError, publicMsg: "internal server error", retryable: true},
		{code: CodeDependency, status: http.StatusServiceUnavailable, publicMsg: "dependency unavailable", retryable: true, detailsOK: true},
	}

	for _, tt := range tests {
		meta := MetadataFor(tt.code)
		if meta.HTTPStatus != tt.status {
			t.Fatalf("code %s expected status %d got %d", tt.code, tt.status, meta.HTTPStatus)
		}
		if meta.PublicMessage != tt.publicMsg {
			t.Fatalf("code %s expected public message %q got %q", tt.code, tt.publicMsg, meta.PublicMessage)
		}
		if meta.Retryable != tt.retryable {
			t.Fatalf("code %s expected retryable %v got %v", tt.code, tt.retryable, meta.Retryable)
		}
		if meta.ExposeMessage != tt.exposed {
			t.Fatalf("code %s expected exposed message %v got %v", tt.code, tt.exposed, meta.ExposeMessage)
		}
		if meta.ClientFault() != (tt.status < http.StatusInternalServerError) {
			t.Fatalf("code %s client fault mismatch", tt.code)
		}
		if meta.DetailsAllowed != tt.detailsOK {
			t.Fatalf("code %s expected details allowed %v got %v", tt.code, tt.detailsOK, meta.DetailsAllowed)
		}
	}
}

func TestMetadataForUnknownCodeDefaultsToInternal(t *testing.T) {
	meta := MetadataFor("SOMETHING_UNKNOWN")
	if meta.HTTPStatus != http.StatusInternalServerError {
		t.Fatalf("expected internal status, got %d", meta.HTTPStatus)
	}
}

func TestAsFindsWrappedError(t *testing.T) {
	base := New(CodeConflict, "slot already locked").WithDetails(map[string]any{"slot": "10:00"})
	wrapped := fmt.Errorf("checkout: %w", base)

	typed := As(wrapped)
	if typed == nil {
		t.Fatal("expected typed error")
	}
	if typed.Code() != CodeConflict {
		t.Fatalf("unexpected code %s", typed.Code())
	}
	if !IsCode(wrapped, CodeConflict) {
		t.Fatal("expected IsCode to match")
	}
	if IsCode(stdErrors.New("plain"), CodeConflict) {
		t.Fatal("plain errors carry no code")
	}
}

func TestEnsureKeepsTypedErrors(t *testing.T) {
	typed := New(CodeValidation, "bad")
	if got := Ensure(typed, CodeDependency, "load"); got != typed {
		t.Fatalf("expected typed error to pass through, got %v", got)
	}
	plain := stdErrors.New("db down")
	got := Ensure(plain, CodeDependency, "load order")
	if !IsCode(got, CodeDependency) {
		t.Fatalf("expected dependency code, got %v", got)
	}
	if !stdErrors.Is(got, plain) {
		t.Fatal("expected cause to be preserved")
	}
	if Ensure(nil, CodeDependency, "noop") != nil {
		t.Fatal("nil stays nil")
	}
}

func TestDumpCollectsChain(t *testing.T) {
	err := Wrap(CodeDependency, stdErrors.New("connection reset"), "persist payout")
	dump := Dump(err)
	if dump.Code != CodeDependency {
		t.Fatalf("unexpected dump code %s", dump.Code)
	}
	if len(dump.Chain) != 2 {
		t.Fatalf("expected 2 chain entries, got %d", len(dump.Chain))
	}
}

func TestDumpCarriesPostgresFields(t *testing.T) {
	pgErr := &pgconn.PgError{Code: "23505", ConstraintName: "slot_locks_pkey", TableName: "slot_locks"}
	dump := Dump(fmt.Errorf("insert lock: %w", pgErr))
	if dump.PG == nil || dump.PG.Constraint != "slot_locks_pkey" || dump.PG.Table != "slot_locks" {
		t.Fatalf("unexpected pg dump %+v", dump.PG)
	}
	if Dump(stdErrors.New("plain")).PG != nil {
		t.Fatalf("plain errors carry no pg fields")
	}
}

func TestClassifyPostgresErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Code
	}{
		{"pgx unique", &pgconn.PgError{Code: "23505"}, CodeConflict},
		{"pq serialization", &pq.Error{Code: "40001"}, CodeConflict},
		{"pgx deadlock", &pgconn.PgError{Code: "40P01"}, CodeConflict},
		{"pq foreign key", &pq.Error{Code: "23503"}, CodeValidation},
		{"pgx syntax", &pgconn.PgError{Code: "42601"}, CodeInternal},
		{"plain", stdErrors.New("boom"), CodeInternal},
		{"typed wins", Wrap(CodeNotFound, &pgconn.PgError{Code: "23505"}, "missing"), CodeNotFound},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := Classify(fmt.Errorf("repo: %w", tc.err))
			if got.Code() != tc.want {
				t.Fatalf("expected %s, got %s", tc.want, got.Code())
			}
			if !stdErrors.Is(got, tc.err) {
				t.Fatalf("classified error must keep the cause")
			}
		})
	}
}
