package connection

import (
	"fmt"
	"maps"
	"slices"
	"strings"
)

// dataSourceName builds the driver DSN for cfg.Dialect.
func dataSourceName(cfg Config) (string, error) {
	conn := cfg.Connection

	switch cfg.Dialect {
	case DialectPostgres:
		sslMode := conn.SSLMode
		if sslMode == "" {
			sslMode = "disable"
		}
		dsn := fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
			conn.Host,
			conn.Port,
			conn.User,
			conn.Password,
			conn.DbName,
			sslMode)
		for _, k := range slices.Sorted(maps.Keys(conn.Params)) {
			dsn += fmt.Sprintf(" %s=%s", k, conn.Params[k])
		}
		return dsn, nil

	case DialectMySQL, DialectMariaDB:
		charset := conn.Charset
		if charset == "" {
			charset = "utf8mb4"
		}
		loc := conn.Loc
		if loc == "" {
			loc = "Local"
		}

		// username:password@tcp(host:port)/dbname?param=value
		dsn := fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=%s&parseTime=True&loc=%s",
			conn.User,
			conn.Password,
			conn.Host,
			conn.Port,
			conn.DbName,
			charset,
			loc,
		)
		if conn.TLS != "" {
			dsn += "&tls=" + conn.TLS
		}
		if conn.Timeout != "" {
			dsn += "&timeout=" + conn.Timeout
		}
		if conn.ReadTimeout != "" {
			dsn += "&readTimeout=" + conn.ReadTimeout
		}
		if conn.WriteTimeout != "" {
			dsn += "&writeTimeout=" + conn.WriteTimeout
		}
		for _, k := range slices.Sorted(maps.Keys(conn.Params)) {
			dsn += "&" + k + "=" + conn.Params[k]
		}
		return dsn, nil

	case DialectSQLite, DialectDuckDB:
		path := conn.Path
		if path == "" && cfg.Dialect == DialectSQLite {
			path = ":memory:"
		}
		if len(conn.Params) == 0 {
			return path, nil
		}
		pairs := make([]string, 0, len(conn.Params))
		for _, k := range slices.Sorted(maps.Keys(conn.Params)) {
			pairs = append(pairs, k+"="+conn.Params[k])
		}
		return path + "?" + strings.Join(pairs, "&"), nil

	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedDialect, cfg.Dialect)
	}
}
