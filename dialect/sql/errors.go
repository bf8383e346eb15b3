package sql

import (
	"errors"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/lib/pq"
	"github.com/lib/pq/pqerror"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/KipianiNikoloz/blazeorm"
)

// MySQL error numbers for constraint violations.
const (
	mysqlDuplicateEntry         = 1062
	mysqlBadNull                = 1048
	mysqlForeignKeyParent       = 1451 // Cannot delete or update a parent row
	mysqlForeignKeyChild        = 1452 // Cannot add or update a child row
	mysqlCheckConstraintViolate = 3819
)

// Constraint kinds reported in blazeorm.ConstraintError.
const (
	UniqueConstraint     = "unique"
	ForeignKeyConstraint = "foreign key"
	CheckConstraint      = "check"
	NotNullConstraint    = "not null"
)

// IsConstraintError returns true if the error resulted from a database constraint violation.
func IsConstraintError(err error) bool {
	return blazeorm.IsConstraintError(err) || constraintKind(err) != ""
}

// IsUniqueConstraintError reports if the error resulted from a DB uniqueness constraint violation.
// e.g. duplicate value in unique index.
func IsUniqueConstraintError(err error) bool {
	return constraintKind(err) == UniqueConstraint
}

// IsForeignKeyConstraintError reports if the error resulted from a database foreign-key constraint violation.
// e.g. parent row does not exist.
func IsForeignKeyConstraintError(err error) bool {
	return constraintKind(err) == ForeignKeyConstraint
}

// IsCheckConstraintError reports if the error resulted from a database check constraint violation.
func IsCheckConstraintError(err error) bool {
	return constraintKind(err) == CheckConstraint
}

// IsNotNullConstraintError reports if the error resulted from writing NULL
// into a NOT NULL column.
func IsNotNullConstraintError(err error) bool {
	return constraintKind(err) == NotNullConstraint
}

// constraintKind classifies a driver error, or returns "".
func constraintKind(err error) string {
	if err == nil {
		return ""
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case pqerror.UniqueViolation:
			return UniqueConstraint
		case pqerror.ForeignKeyViolation:
			return ForeignKeyConstraint
		case pqerror.CheckViolation:
			return CheckConstraint
		case pqerror.NotNullViolation:
			return NotNullConstraint
		}
		return ""
	}
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		switch myErr.Number {
		case mysqlDuplicateEntry:
			return UniqueConstraint
		case mysqlForeignKeyParent, mysqlForeignKeyChild:
			return ForeignKeyConstraint
		case mysqlCheckConstraintViolate:
			return CheckConstraint
		case mysqlBadNull:
			return NotNullConstraint
		}
		return ""
	}
	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		switch liteErr.Code() {
		case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
			return UniqueConstraint
		case sqlite3.SQLITE_CONSTRAINT_FOREIGNKEY:
			return ForeignKeyConstraint
		case sqlite3.SQLITE_CONSTRAINT_CHECK:
			return CheckConstraint
		case sqlite3.SQLITE_CONSTRAINT_NOTNULL:
			return NotNullConstraint
		}
		return ""
	}
	// Fallback to string matching for drivers that don't expose codes. Every
	// error of the chain is checked: wrappers may not repeat the driver text.
	for ; err != nil; err = errors.Unwrap(err) {
		if kind := textKind(err.Error()); kind != "" {
			return kind
		}
	}
	return ""
}

// textKind classifies a driver error message, or returns "".
func textKind(msg string) string {
	switch {
	case containsAny(msg, "Error 1062", "violates unique constraint", "UNIQUE constraint failed"):
		return UniqueConstraint
	case containsAny(msg, "Error 1451", "Error 1452", "violates foreign key constraint", "FOREIGN KEY constraint failed"):
		return ForeignKeyConstraint
	case containsAny(msg, "Error 3819", "violates check constraint", "CHECK constraint failed"):
		return CheckConstraint
	case containsAny(msg, "Error 1048", "violates not-null constraint", "NOT NULL constraint failed"):
		return NotNullConstraint
	}
	return ""
}

// containsAny returns true if s contains any of the substrings.
func containsAny(s string, substrings ...string) bool {
	for _, sub := range substrings {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
