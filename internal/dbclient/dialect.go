package dbclient

import (
	"errors"
	"fmt"
	"strings"

	"github.com/frankawp/data-pipeline-builder/internal/domain"
)

// ErrUpsertUnsupported is returned by dialects without an upsert clause.
var ErrUpsertUnsupported = errors.New("upsert is not supported by this database")

// Dialect hides the SQL differences between relational drivers.
type Dialect interface {
	Driver() domain.DatabaseDriver
	// DriverName is the database/sql driver name.
	DriverName() string
	DSN(conn *domain.DatabaseConnection, password string) (string, error)

	// Quote quotes a possibly schema-qualified identifier.
	Quote(ident string) string
	// Placeholder returns the bind marker of the n-th parameter, 1-based.
	Placeholder(n int) string
	// LimitOne wraps query so it yields at most one row.
	LimitOne(query string) string
	// Truncate empties a table inside the current transaction.
	Truncate(table string) string
	// UpsertClause returns the suffix that turns a multi-row INSERT into an
	// upsert on keys.
	UpsertClause(columns, keys []string) (string, error)
}

// InsertSQL builds a multi-row INSERT for rows rows of columns, with the
// optional suffix (e.g. an upsert clause) appended.
func InsertSQL(d Dialect, table string, columns []string, rows int, suffix string) string {
	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(d.Quote(table))
	b.WriteString(" (")
	for i, c := range columns {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(d.Quote(c))
	}
	b.WriteString(") VALUES ")
	n := 1
	for r := 0; r < rows; r++ {
		if r > 0 {
			b.WriteString(", ")
		}
		b.WriteByte('(')
		for i := range columns {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(d.Placeholder(n))
			n++
		}
		b.WriteByte(')')
	}
	if suffix != "" {
		b.WriteByte(' ')
		b.WriteString(suffix)
	}
	return b.String()
}

// SelectAll returns "SELECT * FROM table".
func SelectAll(d Dialect, table string) string {
	return "SELECT * FROM " + d.Quote(table)
}

// CountSQL counts the rows of query.
func CountSQL(query string) string {
	return "SELECT COUNT(*) FROM (" + trimQuery(query) + ") cnt_src"
}

func trimQuery(q string) string {
	return strings.TrimRight(strings.TrimSpace(q), "; \n\t")
}

func quoteWith(ident, left, right string) string {
	parts := strings.Split(ident, ".")
	for i, p := range parts {
		p = strings.ReplaceAll(p, right, right+right)
		parts[i] = left + p + right
	}
	return strings.Join(parts, ".")
}

func nonKeyColumns(columns, keys []string) []string {
	isKey := make(map[string]bool, len(keys))
	for _, k := range keys {
		isKey[k] = true
	}
	var out []string
	for _, c := range columns {
		if !isKey[c] {
			out = append(out, c)
		}
	}
	return out
}

// onConflict is the upsert clause shared by postgres and sqlite.
func onConflict(d Dialect, columns, keys []string) (string, error) {
	if len(keys) == 0 {
		return "", fmt.Errorf("upsert needs at least one key column")
	}
	quoted := make([]string, len(keys))
	for i, k := range keys {
		quoted[i] = d.Quote(k)
	}
	clause := "ON CONFLICT (" + strings.Join(quoted, ", ") + ") DO "
	rest := nonKeyColumns(columns, keys)
	if len(rest) == 0 {
		return clause + "NOTHING", nil
	}
	sets := make([]string, len(rest))
	for i, c := range rest {
		sets[i] = d.Quote(c) + " = EXCLUDED." + d.Quote(c)
	}
	return clause + "UPDATE SET " + strings.Join(sets, ", "), nil
}
