package database

import (
	"fmt"

	"github.com/Aleph-Alpha/sqlexec/v1/connection"
	"github.com/Aleph-Alpha/sqlexec/v1/workerpool"
)

// Config contains everything a Client needs: the database to connect to and the
// worker pool that runs asynchronous executions.
type Config struct {
	Connection connection.Config `yaml:"connection"`
	WorkerPool workerpool.Config `yaml:"worker_pool"`
}

// PostgresConfig creates a Config for PostgreSQL.
//
//	fx.Provide(func() database.Config {
//	    return database.PostgresConfig(connection.Connection{
//	        Host:   "localhost",
//	        Port:   "5432",
//	        User:   "app",
//	        DbName: "orders",
//	    })
//	})
func PostgresConfig(conn connection.Connection) Config {
	return Config{Connection: connection.Config{Dialect: connection.DialectPostgres, Connection: conn}}
}

// MariaDBConfig creates a Config for MariaDB or MySQL.
func MariaDBConfig(conn connection.Connection) Config {
	return Config{Connection: connection.Config{Dialect: connection.DialectMariaDB, Connection: conn}}
}

// SQLiteConfig creates a Config for the SQLite file at path. An empty path opens
// an in-memory database.
func SQLiteConfig(path string) Config {
	return Config{Connection: connection.Config{
		Dialect:    connection.DialectSQLite,
		Connection: connection.Connection{Path: path},
	}}
}

// DuckDBConfig creates a Config for the DuckDB file at path. An empty path opens
// an in-memory database.
func DuckDBConfig(path string) Config {
	return Config{Connection: connection.Config{
		Dialect:    connection.DialectDuckDB,
		Connection: connection.Connection{Path: path},
	}}
}

func (c Config) validate() error {
	switch c.Connection.Dialect {
	case connection.DialectPostgres, connection.DialectMySQL, connection.DialectMariaDB,
		connection.DialectSQLite, connection.DialectDuckDB:
	default:
		return fmt.Errorf("%w: %q", connection.ErrUnsupportedDialect, c.Connection.Dialect)
	}

	switch c.WorkerPool.Policy {
	case "", workerpool.PolicyBlock, workerpool.PolicyReject:
		return nil
	default:
		return fmt.Errorf("unsupported worker pool policy: %q", c.WorkerPool.Policy)
	}
}
