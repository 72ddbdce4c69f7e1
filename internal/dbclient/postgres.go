package dbclient

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/frankawp/data-pipeline-builder/internal/domain"

	_ "github.com/lib/pq"
)

type postgresDialect struct{}

func (postgresDialect) Driver() domain.DatabaseDriver { return domain.DatabaseDriverPostgres }
func (postgresDialect) DriverName() string            { return "postgres" }

// DSN builds a key=value connection string.
func (postgresDialect) DSN(conn *domain.DatabaseConnection, password string) (string, error) {
	sslMode := conn.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	pairs := []string{
		"host=" + pqQuote(conn.Host),
		"port=" + strconv.Itoa(portOrDefault(conn)),
		"user=" + pqQuote(conn.Username),
		"password=" + pqQuote(password),
		"dbname=" + pqQuote(conn.Database),
		"sslmode=" + pqQuote(sslMode),
	}
	keys := make([]string, 0, len(conn.Extra))
	for k := range conn.Extra {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		pairs = append(pairs, fmt.Sprintf("%s=%s", k, pqQuote(conn.Extra[k])))
	}
	return strings.Join(pairs, " "), nil
}

// pqQuote quotes a value for a libpq connection string.
func pqQuote(v string) string {
	v = strings.NewReplacer(`\`, `\\`, `'`, `\'`).Replace(v)
	return "'" + v + "'"
}

func (postgresDialect) Quote(ident string) string { return quoteWith(ident, `"`, `"`) }
func (postgresDialect) Placeholder(n int) string  { return "$" + strconv.Itoa(n) }

func (postgresDialect) LimitOne(query string) string {
	return "SELECT * FROM (" + trimQuery(query) + ") AS schema_probe LIMIT 1"
}

func (d postgresDialect) Truncate(table string) string {
	return "TRUNCATE TABLE " + d.Quote(table)
}

func (d postgresDialect) UpsertClause(columns, keys []string) (string, error) {
	return onConflict(d, columns, keys)
}
