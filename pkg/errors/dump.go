package errors

import (
	stdErrors "errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

// PGDetail is the server-side detail of a Postgres error, from either driver.
type PGDetail struct {
	Code       string
	Constraint string
	Table      string
	Column     string
	Detail     string
	Message    string
}

// Report flattens an error chain for structured logs.
type Report struct {
	Message string
	Code    Code
	Chain   []string
	PG      *PGDetail
}

func Dump(err error) Report {
	if err == nil {
		return Report{}
	}
	r := Report{Message: err.Error(), PG: postgresDetail(err)}
	if typed := As(err); typed != nil {
		r.Code = typed.Code()
	}
	for e := err; e != nil; e = stdErrors.Unwrap(e) {
		r.Chain = append(r.Chain, fmt.Sprintf("%T: %v", e, e))
	}
	return r
}

func postgresDetail(err error) *PGDetail {
	var pgxErr *pgconn.PgError
	if stdErrors.As(err, &pgxErr) {
		return &PGDetail{
			Code:       pgxErr.Code,
			Constraint: pgxErr.ConstraintName,
			Table:      pgxErr.TableName,
			Column:     pgxErr.ColumnName,
			Detail:     pgxErr.Detail,
			Message:    pgxErr.Message,
		}
	}
	var pqErr *pq.Error
	if stdErrors.As(err, &pqErr) {
		return &PGDetail{
			Code:       string(pqErr.Code),
			Constraint: pqErr.Constraint,
			Table:      pqErr.Table,
			Column:     pqErr.Column,
			Detail:     pqErr.Detail,
			Message:    pqErr.Message,
		}
	}
	return nil
}

// Fields returns the report as log fields. Postgres fields appear only when
// the chain holds a Postgres error.
func (r Report) Fields() map[string]any {
	f := map[string]any{
		"error":       r.Message,
		"error_chain": r.Chain,
	}
	if r.Code != "" {
		f["error_code"] = r.Code
	}
	if r.PG != nil {
		f["pg_code"] = r.PG.Code
		f["pg_constraint"] = r.PG.Constraint
		f["pg_table"] = r.PG.Table
		f["pg_column"] = r.PG.Column
		f["pg_detail"] = r.PG.Detail
		f["pg_message"] = r.PG.Message
	}
	return f
}
