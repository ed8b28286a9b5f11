package database

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"strings"

	"github.com/go-sql-driver/mysql"
)

//go:embed schema/*.sql
var schemaFS embed.FS

// Migrate creates every table that does not exist yet.  Statements are
// idempotent (CREATE ... IF NOT EXISTS) so Migrate runs on each start.
func Migrate(ctx context.Context, db *sql.DB) error {
	file := "schema/sqlite.sql"
	if _, ok := db.Driver().(*mysql.MySQLDriver); ok {
		file = "schema/mysql.sql"
	}
	raw, err := schemaFS.ReadFile(file)
	if err != nil {
		return fmt.Errorf("read %s: %w", file, err)
	}
	for _, stmt := range splitStatements(string(raw)) {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w (statement: %.60s)", err, stmt)
		}
	}
	return nil
}

// splitStatements splits a schema file on semicolons, dropping comment
// lines and empty statements.
func splitStatements(src string) []string {
	var b strings.Builder
	for _, line := range strings.Split(src, "\n") {
		if strings.HasPrefix(strings.TrimSpace(line), "--") {
			continue
		}
		b.WriteString(line)
		b.WriteByte('\n')
	}
	var out []string
	for _, part := range strings.Split(b.String(), ";") {
		if s := strings.TrimSpace(part); s != "" {
			out = append(out, s)
		}
	}
	return out
}
