package errors

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

// SQLSTATE classes the checkout paths race on.
const (
	sqlStateUniqueViolation     = "23505"
	sqlStateForeignKeyViolation = "23503"
	sqlStateCheckViolation      = "23514"
	sqlStateSerialization       = "40001"
	sqlStateDeadlock            = "40P01"
	sqlStateLockNotAvailable    = "55P03"
)

// PGError is the driver-independent view of a Postgres error.
type PGError struct {
	Code       string `json:"pg_code,omitempty"`
	Constraint string `json:"pg_constraint,omitempty"`
	Table      string `json:"pg_table,omitempty"`
	Column     string `json:"pg_column,omitempty"`
	Detail     string `json:"pg_detail,omitempty"`
	Message    string `json:"pg_message,omitempty"`
}

// Postgres finds a pgx or lib/pq error in err's chain.
func Postgres(err error) (PGError, bool) {
	var pgxErr *pgconn.PgError
	if errors.As(err, &pgxErr) {
		return PGError{
			Code:       pgxErr.Code,
			Constraint: pgxErr.ConstraintName,
			Table:      pgxErr.TableName,
			Column:     pgxErr.ColumnName,
			Detail:     pgxErr.Detail,
			Message:    pgxErr.Message,
		}, true
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return PGError{
			Code:       string(pqErr.Code),
			Constraint: pqErr.Constraint,
			Table:      pqErr.Table,
			Column:     pqErr.Column,
			Detail:     pqErr.Detail,
			Message:    pqErr.Message,
		}, true
	}
	return PGError{}, false
}

// Classify types an untyped error by its Postgres SQLSTATE. Lost races on
// unique keys and serialization failures become conflicts, constraint
// failures become validation errors, everything else is internal.
func Classify(err error) *Error {
	if typed := As(err); typed != nil {
		return typed
	}
	pg, ok := Postgres(err)
	if !ok {
		return Wrap(CodeInternal, err, "unexpected error")
	}
	switch pg.Code {
	case sqlStateUniqueViolation:
		return Wrap(CodeConflict, err, "resource already exists").WithDetails(map[string]any{"constraint": pg.Constraint})
	case sqlStateSerialization, sqlStateDeadlock, sqlStateLockNotAvailable:
		return Wrap(CodeConflict, err, "concurrent update, retry the request")
	case sqlStateForeignKeyViolation, sqlStateCheckViolation:
		return Wrap(CodeValidation, err, "request references invalid data").WithDetails(map[string]any{"constraint": pg.Constraint})
	default:
		return Wrap(CodeInternal, err, "unexpected error")
	}
}

// ErrorDump flattens an error chain for structured logs.
type ErrorDump struct {
	TopMessage string   `json:"top_message"`
	Code       Code     `json:"code,omitempty"`
	Details    any      `json:"details,omitempty"`
	Chain      []string `json:"chain,omitempty"`
	PG         *PGError `json:"pg,omitempty"`
}

func Dump(err error) ErrorDump {
	if err == nil {
		return ErrorDump{}
	}
	d := ErrorDump{TopMessage: err.Error()}
	if typed := As(err); typed != nil {
		d.Code = typed.Code()
		d.Details = typed.Details()
	}
	for e := err; e != nil; e = errors.Unwrap(e) {
		d.Chain = append(d.Chain, fmt.Sprintf("%T: %v", e, e))
	}
	if pg, ok := Postgres(err); ok {
		d.PG = &pg
	}
	return d
}
