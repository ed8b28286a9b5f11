package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/go-sql-driver/mysql"
)

// querier is satisfied by both *sql.DB and *sql.Tx so read helpers can run
// inside or outside a transaction.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// lockClause returns the row-locking suffix for SELECTs inside
// transactions.  SQLite has no row locks: it serializes writers on the
// database file, and the pool is limited to one connection.
func lockClause(db *sql.DB) string {
	if db == nil {
		return ""
	}
	if _, ok := db.Driver().(*mysql.MySQLDriver); ok {
		return " FOR UPDATE"
	}
	return ""
}

// isDuplicate reports whether err is a unique-key violation.
func isDuplicate(err error) bool {
	if err == nil {
		return false
	}
	var me *mysql.MySQLError
	if errors.As(err, &me) {
		return me.Number == 1062
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint failed") || strings.Contains(msg, "1062")
}

// isDeadlock reports whether err is a lock wait timeout or deadlock that
// the caller may retry.
func isDeadlock(err error) bool {
	var me *mysql.MySQLError
	if errors.As(err, &me) {
		return me.Number == 1213 || me.Number == 1205
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "database is locked") || strings.Contains(msg, "sqlite_busy")
}

// TranslateTxError maps store-level race failures onto
// ErrTransactionConflict and leaves every other error untouched.
func TranslateTxError(err error) error {
	if err == nil {
		return nil
	}
	if isDeadlock(err) {
		return ErrTransactionConflict
	}
	return err
}

func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}
