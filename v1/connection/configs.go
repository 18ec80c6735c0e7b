package connection

import "time"

// Supported dialects.
const (
	DialectPostgres = "postgres"
	DialectMySQL    = "mysql"
	DialectMariaDB  = "mariadb"
	DialectSQLite   = "sqlite"
	DialectDuckDB   = "duckdb"
)

// Pool and health-check defaults, applied when the matching field is zero.
const (
	DefaultMaxOpenConns        = 50
	DefaultMaxIdleConns        = 25
	DefaultConnMaxLifetime     = time.Minute
	DefaultHealthCheckInterval = 10 * time.Second
	DefaultHealthCheckTimeout  = 5 * time.Second
	DefaultRetryBackoff        = time.Second
)

// Config describes the database a Provider hands out connections to.
type Config struct {
	// Dialect selects the driver: postgres, mysql, mariadb, sqlite or duckdb.
	Dialect string `yaml:"dialect" envconfig:"DB_DIALECT"`

	Connection        Connection        `yaml:"connection"`
	ConnectionDetails ConnectionDetails `yaml:"connection_details"`
	HealthCheck       HealthCheck       `yaml:"health_check"`
}

// Connection holds the target and credentials.
//
// Host, Port, User, Password and DbName are used by the network dialects.
// Path is used by sqlite and duckdb (empty means an in-memory database).
type Connection struct {
	Host     string `yaml:"host" envconfig:"DB_HOST"`
	Port     string `yaml:"port" envconfig:"DB_PORT"`
	User     string `yaml:"user" envconfig:"DB_USER"`
	Password string `yaml:"password" envconfig:"DB_PASSWORD"`
	DbName   string `yaml:"db_name" envconfig:"DB_NAME"`

	// SSLMode is the postgres sslmode. Default "disable".
	SSLMode string `yaml:"ssl_mode" envconfig:"DB_SSL_MODE"`

	// Charset is the mysql/mariadb charset. Default "utf8mb4".
	Charset string `yaml:"charset" envconfig:"DB_CHARSET"`

	// Loc is the mysql/mariadb time zone for parsed times. Default "Local".
	Loc string `yaml:"loc" envconfig:"DB_LOC"`

	// TLS is the mysql/mariadb tls parameter, e.g. "true" or a registered config name.
	TLS string `yaml:"tls" envconfig:"DB_TLS"`

	// Timeout, ReadTimeout and WriteTimeout are mysql/mariadb DSN durations such as "5s".
	Timeout      string `yaml:"timeout" envconfig:"DB_TIMEOUT"`
	ReadTimeout  string `yaml:"read_timeout" envconfig:"DB_READ_TIMEOUT"`
	WriteTimeout string `yaml:"write_timeout" envconfig:"DB_WRITE_TIMEOUT"`

	// Path is the database file for sqlite and duckdb.
	Path string `yaml:"path" envconfig:"DB_PATH"`

	// Params are extra driver parameters appended to the DSN.
	Params map[string]string `yaml:"params"`
}

// ConnectionDetails tunes the database/sql connection pool.
type ConnectionDetails struct {
	MaxOpenConns    int           `yaml:"max_open_conns" envconfig:"DB_MAX_OPEN_CONNS"`
	MaxIdleConns    int           `yaml:"max_idle_conns" envconfig:"DB_MAX_IDLE_CONNS"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" envconfig:"DB_CONN_MAX_LIFETIME"`
	ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time" envconfig:"DB_CONN_MAX_IDLE_TIME"`
}

// HealthCheck tunes MonitorConnection and RetryConnection.
type HealthCheck struct {
	Interval     time.Duration `yaml:"interval" envconfig:"DB_HEALTH_CHECK_INTERVAL"`
	Timeout      time.Duration `yaml:"timeout" envconfig:"DB_HEALTH_CHECK_TIMEOUT"`
	RetryBackoff time.Duration `yaml:"retry_backoff" envconfig:"DB_RETRY_BACKOFF"`
}

func (c Config) withDefaults() Config {
	if c.ConnectionDetails.MaxOpenConns <= 0 {
		c.ConnectionDetails.MaxOpenConns = DefaultMaxOpenConns
	}
	if c.ConnectionDetails.MaxIdleConns <= 0 {
		c.ConnectionDetails.MaxIdleConns = DefaultMaxIdleConns
	}
	if c.ConnectionDetails.ConnMaxLifetime <= 0 {
		c.ConnectionDetails.ConnMaxLifetime = DefaultConnMaxLifetime
	}
	if c.HealthCheck.Interval <= 0 {
		c.HealthCheck.Interval = DefaultHealthCheckInterval
	}
	if c.HealthCheck.Timeout <= 0 {
		c.HealthCheck.Timeout = DefaultHealthCheckTimeout
	}
	if c.HealthCheck.RetryBackoff <= 0 {
		c.HealthCheck.RetryBackoff = DefaultRetryBackoff
	}
	return c
}
