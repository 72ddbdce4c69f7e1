package domain

// DatabaseDriver represents the type of database engine.
type DatabaseDriver string

const (
	DatabaseDriverMySQL     DatabaseDriver = "mysql"
	DatabaseDriverPostgres  DatabaseDriver = "postgresql"
	DatabaseDriverSQLite    DatabaseDriver = "sqlite"
	DatabaseDriverSQLServer DatabaseDriver = "sqlserver"
	DatabaseDriverMongoDB   DatabaseDriver = "mongodb"
)

// DefaultPort returns the conventional port of the driver, or 0 for
// file-based engines.
func (d DatabaseDriver) DefaultPort() int {
	switch d {
	case DatabaseDriverMySQL:
		return 3306
	case DatabaseDriverPostgres:
		return 5432
	case DatabaseDriverSQLServer:
		return 1433
	case DatabaseDriverMongoDB:
		return 27017
	}
	return 0
}

// DatabaseConnection holds the metadata for connecting to an external database.
// The password travels separately so it never ends up in logs or stored
// pipeline documents by accident.
type DatabaseConnection struct {
	Driver   DatabaseDriver    `json:"driver"`
	Host     string            `json:"host"`     // hostname, connection URI (mongodb) or file path (sqlite)
	Port     int               `json:"port"`     // 0 uses the driver default
	Database string            `json:"database"` // db name, or file path for sqlite
	Username string            `json:"username"`
	SSLMode  string            `json:"sslMode"`
	Extra    map[string]string `json:"extra,omitempty"` // driver-specific options
}
