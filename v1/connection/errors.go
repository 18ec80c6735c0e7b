package connection

import (
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
	"gorm.io/gorm"
)

// Provider lifecycle errors.
var (
	// ErrNotOpen is returned by Conn before Open succeeded.
	ErrNotOpen = errors.New("connection: provider is not open")

	// ErrClosed is returned by Open and Conn after Close.
	ErrClosed = errors.New("connection: provider is closed")

	// ErrUnsupportedDialect is returned for an unknown Config.Dialect.
	ErrUnsupportedDialect = errors.New("connection: unsupported dialect")
)

// Standardized database errors. TranslateError maps driver specific failures
// onto these so callers can branch without importing any driver.
var (
	// ErrConnectionFailed is returned when a connection cannot be established or was lost.
	ErrConnectionFailed = errors.New("connection failed")

	// ErrRecordNotFound is returned when a query doesn't find any matching records.
	ErrRecordNotFound = errors.New("record not found")

	// ErrDuplicateKey is returned when an insert or update violates a unique constraint.
	ErrDuplicateKey = errors.New("duplicate key violation")

	// ErrForeignKey is returned when an operation violates a foreign key constraint.
	ErrForeignKey = errors.New("foreign key violation")

	// ErrInvalidData is returned for not-null, check and type conversion violations.
	ErrInvalidData = errors.New("invalid data")
)

// PostgreSQL SQLSTATE codes, shared by pgx and lib/pq.
const (
	pgUniqueViolation      = "23505"
	pgForeignKeyViolation  = "23503"
	pgNotNullViolation     = "23502"
	pgCheckViolation       = "23514"
	pgInvalidTextRepr      = "22P02"
	pgSerializationFailure = "40001"
	pgDeadlockDetected     = "40P01"
	pgConnectionClass      = "08"
)

// MySQL/MariaDB server error numbers.
const (
	myDuplicateEntry     = 1062
	myRowIsReferenced    = 1451
	myNoReferencedRow    = 1452
	myBadNull            = 1048
	myTruncatedWrongVal  = 1366
	myCheckConstraint    = 3819
	myLockWaitTimeout    = 1205
	myDeadlock           = 1213
	myServerGone         = 2006
	myServerLostDuringQ  = 2013
	myTooManyConnections = 1040
)

// TranslateError maps a driver or gorm error onto the standardized errors above.
//
// The result wraps both the standardized error and the original, so errors.Is
// matches either, and errors.As still reaches the driver error. Unknown errors
// are returned unchanged.
func TranslateError(err error) error {
	if err == nil {
		return nil
	}

	if std := classify(err); std != nil && !errors.Is(err, std) {
		return fmt.Errorf("%w: %w", std, err)
	}
	return err
}

func classify(err error) error {
	switch {
	case errors.Is(err, sql.ErrNoRows), errors.Is(err, gorm.ErrRecordNotFound):
		return ErrRecordNotFound
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return ErrDuplicateKey
	case errors.Is(err, gorm.ErrForeignKeyViolated):
		return ErrForeignKey
	case errors.Is(err, gorm.ErrInvalidData):
		return ErrInvalidData
	case errors.Is(err, driver.ErrBadConn), errors.Is(err, sql.ErrConnDone):
		return ErrConnectionFailed
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return classifySQLState(pgErr.Code)
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return classifySQLState(string(pqErr.Code))
	}

	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		switch myErr.Number {
		case myDuplicateEntry:
			return ErrDuplicateKey
		case myRowIsReferenced, myNoReferencedRow:
			return ErrForeignKey
		case myBadNull, myTruncatedWrongVal, myCheckConstraint:
			return ErrInvalidData
		case myServerGone, myServerLostDuringQ, myTooManyConnections:
			return ErrConnectionFailed
		}
		return nil
	}

	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		switch liteErr.ExtendedCode {
		case sqlite3.ErrConstraintUnique, sqlite3.ErrConstraintPrimaryKey:
			return ErrDuplicateKey
		case sqlite3.ErrConstraintForeignKey:
			return ErrForeignKey
		case sqlite3.ErrConstraintNotNull, sqlite3.ErrConstraintCheck:
			return ErrInvalidData
		}
		if liteErr.Code == sqlite3.ErrCantOpen {
			return ErrConnectionFailed
		}
	}

	return nil
}

func classifySQLState(code string) error {
	switch code {
	case pgUniqueViolation:
		return ErrDuplicateKey
	case pgForeignKeyViolation:
		return ErrForeignKey
	case pgNotNullViolation, pgCheckViolation, pgInvalidTextRepr:
		return ErrInvalidData
	}
	if len(code) >= 2 && code[:2] == pgConnectionClass {
		return ErrConnectionFailed
	}
	return nil
}

// IsRetryable reports whether err is transient: lost connections, serialization
// failures, deadlocks, lock timeouts and busy sqlite databases. The statement
// engine never retries by itself; this is for callers that choose to.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrConnectionFailed) || errors.Is(classify(err), ErrConnectionFailed) {
		return true
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgSerializationFailure || pgErr.Code == pgDeadlockDetected
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == pgSerializationFailure || pqErr.Code == pgDeadlockDetected
	}

	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		return myErr.Number == myDeadlock || myErr.Number == myLockWaitTimeout
	}

	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		return liteErr.Code == sqlite3.ErrBusy || liteErr.Code == sqlite3.ErrLocked
	}

	return false
}
