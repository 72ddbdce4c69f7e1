// Package dbclient opens connections to external databases and describes
// the SQL dialect differences the pipeline connectors care about.
package dbclient

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/frankawp/data-pipeline-builder/internal/domain"
)

// pingTimeout bounds connection probes.
const pingTimeout = 10 * time.Second

// OpenSQL opens a pooled handle for conn and verifies it with a ping.
// The password must be provided separately.
func OpenSQL(ctx context.Context, conn *domain.DatabaseConnection, password string) (*sql.DB, Dialect, error) {
	dialect, err := DialectFor(conn.Driver)
	if err != nil {
		return nil, nil, err
	}
	dsn, err := dialect.DSN(conn, password)
	if err != nil {
		return nil, nil, err
	}
	db, err := sql.Open(dialect.DriverName(), dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("open %s: %w", conn.Driver, err)
	}
	// A reader or writer session needs one connection; keep a little slack.
	db.SetMaxOpenConns(5)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(10 * time.Minute)

	if err := Ping(ctx, db); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("ping %s: %w", conn.Driver, err)
	}
	return db, dialect, nil
}

// Ping checks connectivity with a short timeout.
func Ping(ctx context.Context, db *sql.DB) error {
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	return db.PingContext(ctx)
}

// DialectFor returns the SQL dialect of a relational driver.
func DialectFor(driver domain.DatabaseDriver) (Dialect, error) {
	switch driver {
	case domain.DatabaseDriverMySQL:
		return mysqlDialect{}, nil
	case domain.DatabaseDriverPostgres:
		return postgresDialect{}, nil
	case domain.DatabaseDriverSQLite:
		return sqliteDialect{}, nil
	case domain.DatabaseDriverSQLServer:
		return sqlserverDialect{}, nil
	default:
		return nil, fmt.Errorf("unsupported driver: %s", driver)
	}
}

func portOrDefault(conn *domain.DatabaseConnection) int {
	if conn.Port > 0 {
		return conn.Port
	}
	return conn.Driver.DefaultPort()
}
