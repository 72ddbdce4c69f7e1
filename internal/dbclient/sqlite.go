package dbclient

import (
	"net/url"

	"github.com/frankawp/data-pipeline-builder/internal/domain"

	_ "modernc.org/sqlite"
)

type sqliteDialect struct{}

func (sqliteDialect) Driver() domain.DatabaseDriver { return domain.DatabaseDriverSQLite }
func (sqliteDialect) DriverName() string            { return "sqlite" }

// DSN opens the database file in WAL mode with a busy timeout for
// concurrent access. The path is taken from Database, falling back to Host.
func (sqliteDialect) DSN(conn *domain.DatabaseConnection, _ string) (string, error) {
	path := conn.Database
	if path == "" {
		path = conn.Host
	}
	q := url.Values{}
	q.Add("_pragma", "busy_timeout(5000)")
	q.Add("_pragma", "journal_mode(WAL)")
	return "file:" + path + "?" + q.Encode(), nil
}

func (sqliteDialect) Quote(ident string) string { return quoteWith(ident, `"`, `"`) }
func (sqliteDialect) Placeholder(int) string    { return "?" }

func (sqliteDialect) LimitOne(query string) string {
	return "SELECT * FROM (" + trimQuery(query) + ") AS schema_probe LIMIT 1"
}

func (d sqliteDialect) Truncate(table string) string {
	return "DELETE FROM " + d.Quote(table)
}

func (d sqliteDialect) UpsertClause(columns, keys []string) (string, error) {
	return onConflict(d, columns, keys)
}
