// Package connection provides the connection provider the statement package
// borrows connections from.
//
// A Provider wraps one database/sql pool for a configured dialect (postgres,
// mysql, mariadb, sqlite or duckdb). The network dialects and sqlite are opened
// through gorm so applications can use the ORM on the same pool; duckdb is
// opened directly through database/sql.
//
// Basic usage:
//
//	p := connection.NewProvider(connection.Config{
//		Dialect: connection.DialectPostgres,
//		Connection: connection.Connection{
//			Host:     "localhost",
//			Port:     "5432",
//			User:     "postgres",
//			Password: "secret",
//			DbName:   "app",
//		},
//	})
//	if err := p.Open(ctx); err != nil {
//		return err
//	}
//	defer p.Close()
//
//	conn, err := p.Conn(ctx) // exclusive; Close returns it to the pool
//
// Health monitoring:
//
// MonitorConnection pings the pool periodically and RetryConnection rebuilds it
// after a failed ping. FXModule runs both for the lifetime of the application.
//
// Errors:
//
// TranslateError maps driver errors from pgx, lib/pq, go-sql-driver/mysql,
// sqlite3 and gorm onto ErrRecordNotFound, ErrDuplicateKey, ErrForeignKey,
// ErrInvalidData and ErrConnectionFailed. IsRetryable reports transient failures.
package connection
