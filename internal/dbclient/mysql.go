package dbclient

import (
	"fmt"
	"strings"

	"github.com/frankawp/data-pipeline-builder/internal/domain"

	"github.com/go-sql-driver/mysql"
)

type mysqlDialect struct{}

func (mysqlDialect) Driver() domain.DatabaseDriver { return domain.DatabaseDriverMySQL }
func (mysqlDialect) DriverName() string            { return "mysql" }

// DSN builds user:password@tcp(host:port)/dbname?parseTime=true.
func (mysqlDialect) DSN(conn *domain.DatabaseConnection, password string) (string, error) {
	cfg := mysql.NewConfig()
	cfg.User = conn.Username
	cfg.Passwd = password
	cfg.Net = "tcp"
	cfg.Addr = fmt.Sprintf("%s:%d", conn.Host, portOrDefault(conn))
	cfg.DBName = conn.Database
	cfg.ParseTime = true
	cfg.Params = map[string]string{"charset": "utf8mb4"}
	for k, v := range conn.Extra {
		cfg.Params[k] = v
	}
	if conn.SSLMode == "require" {
		cfg.TLSConfig = "true"
	}
	return cfg.FormatDSN(), nil
}

func (mysqlDialect) Quote(ident string) string { return quoteWith(ident, "`", "`") }
func (mysqlDialect) Placeholder(int) string    { return "?" }

func (mysqlDialect) LimitOne(query string) string {
	return "SELECT * FROM (" + trimQuery(query) + ") AS schema_probe LIMIT 1"
}

// Truncate uses DELETE: TRUNCATE would commit the transaction implicitly.
func (d mysqlDialect) Truncate(table string) string {
	return "DELETE FROM " + d.Quote(table)
}

func (d mysqlDialect) UpsertClause(columns, _ []string) (string, error) {
	sets := make([]string, len(columns))
	for i, c := range columns {
		q := d.Quote(c)
		sets[i] = q + " = VALUES(" + q + ")"
	}
	return "ON DUPLICATE KEY UPDATE " + strings.Join(sets, ", "), nil
}
