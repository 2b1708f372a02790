package db

import (
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
)

// Violation is the kind of integrity constraint a statement tripped.
type Violation int

const (
	NoViolation Violation = iota
	UniqueViolation
	CheckViolation
)

// violations maps SQLSTATE codes and the sqlite message prefixes used by tests.
var violations = []struct {
	kind    Violation
	state   string
	markers []string
}{
	{UniqueViolation, "23505", []string{"duplicate key value", "UNIQUE constraint failed"}},
	{CheckViolation, "23514", []string{"violates check constraint", "CHECK constraint failed"}},
}

// Classify reports which constraint err violated and, when the driver says,
// the constraint name.
func Classify(err error) (Violation, string) {
	if err == nil {
		return NoViolation, ""
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		for _, v := range violations {
			if pgErr.Code == v.state {
				return v.kind, pgErr.ConstraintName
			}
		}
		return NoViolation, ""
	}
	msg := err.Error()
	for _, v := range violations {
		for _, m := range v.markers {
			if strings.Contains(msg, m) {
				return v.kind, ""
			}
		}
	}
	return NoViolation, ""
}

// IsUniqueViolation matches a unique violation, optionally on one constraint.
// Drivers that do not name the constraint match on the message text.
func IsUniqueViolation(err error, constraint string) bool {
	return matches(err, UniqueViolation, constraint)
}

// IsCheckViolation matches a CHECK failure, such as a quantity going negative.
func IsCheckViolation(err error, constraint string) bool {
	return matches(err, CheckViolation, constraint)
}

func matches(err error, want Violation, constraint string) bool {
	kind, name := Classify(err)
	if kind != want {
		return false
	}
	if constraint == "" || name == constraint {
		return true
	}
	return name == "" && strings.Contains(err.Error(), constraint)
}
