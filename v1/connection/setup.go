package connection

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	_ "github.com/duckdb/duckdb-go/v2"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/Aleph-Alpha/sqlexec/v1/observability"
)

// Logger is the logging contract used by this package.
type Logger interface {
	Info(msg string, err error, fields ...map[string]interface{})
	Debug(msg string, err error, fields ...map[string]interface{})
	Warn(msg string, err error, fields ...map[string]interface{})
	Error(msg string, err error, fields ...map[string]interface{})
	Fatal(msg string, err error, fields ...map[string]interface{})
}

// handles is one opened generation of the underlying pool. It is replaced as a
// whole on reconnect.
type handles struct {
	db   *sql.DB
	gorm *gorm.DB
}

// Provider hands out connections from a database/sql pool.
//
// It is created closed; Open establishes the pool, Conn borrows one connection
// (the borrower must Close it to give it back), Close releases everything.
// MonitorConnection and RetryConnection keep the pool healthy in the background.
//
// Concurrency: the active pool is held in an atomic pointer and may be swapped by
// RetryConnection without blocking borrowers. Provider is safe for concurrent use.
type Provider struct {
	cfg     Config
	current atomic.Pointer[handles]

	mu     sync.Mutex
	closed bool

	shutdownSignal  chan struct{}
	retryChanSignal chan error

	closeShutdownOnce sync.Once

	logger   Logger
	observer observability.Observer
}

// NewProvider creates a closed provider for cfg. Zero pool and health-check
// settings take the package defaults.
func NewProvider(cfg Config) *Provider {
	return &Provider{
		cfg:             cfg.withDefaults(),
		shutdownSignal:  make(chan struct{}),
		retryChanSignal: make(chan error, 1),
	}
}

// WithLogger sets the logger and returns p for chaining.
func (p *Provider) WithLogger(logger Logger) *Provider {
	p.logger = logger
	return p
}

// WithObserver sets the observer notified of connection acquisitions and
// returns p for chaining.
func (p *Provider) WithObserver(observer observability.Observer) *Provider {
	p.observer = observer
	return p
}

// Dialect returns the configured dialect.
func (p *Provider) Dialect() string {
	return p.cfg.Dialect
}

// Open connects to the database and configures the pool. Calling Open on an
// already open provider is a no-op. Open after Close returns ErrClosed.
func (p *Provider) Open(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return ErrClosed
	}
	if p.current.Load() != nil {
		return nil
	}

	h, err := connect(ctx, p.cfg)
	if err != nil {
		p.logError("Failed to open database connection pool", err)
		return err
	}
	p.current.Store(h)
	p.logInfo("Successfully connected to database")
	return nil
}

// IsOpen reports whether connections can currently be borrowed.
func (p *Provider) IsOpen() bool {
	return p.current.Load() != nil
}

// Conn borrows one connection from the pool. The caller owns it exclusively and
// must Close it, which returns it to the pool.
func (p *Provider) Conn(ctx context.Context) (*sql.Conn, error) {
	h := p.current.Load()
	if h == nil {
		p.mu.Lock()
		closed := p.closed
		p.mu.Unlock()
		if closed {
			return nil, ErrClosed
		}
		return nil, ErrNotOpen
	}

	start := time.Now()
	conn, err := h.db.Conn(ctx)
	if err != nil {
		err = fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}
	p.observe("acquire", time.Since(start), err)
	return conn, err
}

// DB returns the current *sql.DB, or nil when the provider is not open.
func (p *Provider) DB() *sql.DB {
	if h := p.current.Load(); h != nil {
		return h.db
	}
	return nil
}

// Gorm returns the gorm handle sharing the same pool, for code that wants an ORM
// next to raw statements. It is nil when the provider is not open and for duckdb,
// which has no gorm dialector.
func (p *Provider) Gorm() *gorm.DB {
	if h := p.current.Load(); h != nil {
		return h.gorm
	}
	return nil
}

// Close stops the background loops and closes the pool. Connections still
// borrowed are closed by database/sql once returned. Close is idempotent.
func (p *Provider) Close() error {
	p.closeShutdownOnce.Do(func() {
		close(p.shutdownSignal)
	})

	p.mu.Lock()
	p.closed = true
	h := p.current.Swap(nil)
	p.mu.Unlock()

	if h == nil {
		return nil
	}
	p.logInfo("Closing database connection pool")
	if err := h.db.Close(); err != nil {
		return fmt.Errorf("failed to close database connection pool: %w", err)
	}
	return nil
}

// connect opens the pool for cfg and verifies it with a ping.
func connect(ctx context.Context, cfg Config) (*handles, error) {
	dsn, err := dataSourceName(cfg)
	if err != nil {
		return nil, err
	}

	var h handles
	switch cfg.Dialect {
	case DialectDuckDB:
		h.db, err = sql.Open("duckdb", dsn)
		if err != nil {
			return nil, fmt.Errorf("failed to open duckdb database: %w", err)
		}

	default:
		var dialector gorm.Dialector
		switch cfg.Dialect {
		case DialectPostgres:
			dialector = postgres.Open(dsn)
		case DialectMySQL, DialectMariaDB:
			dialector = mysql.Open(dsn)
		case DialectSQLite:
			dialector = sqlite.Open(dsn)
		}

		h.gorm, err = gorm.Open(dialector, &gorm.Config{
			TranslateError: true,
			Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
		})
		if err != nil {
			closeGormPool(h.gorm)
			return nil, fmt.Errorf("%w: failed to connect to %s database: %w", ErrConnectionFailed, cfg.Dialect, err)
		}
		h.db, err = h.gorm.DB()
		if err != nil {
			closeGormPool(h.gorm)
			return nil, fmt.Errorf("failed to get %s database instance: %w", cfg.Dialect, err)
		}
	}

	h.db.SetMaxOpenConns(cfg.ConnectionDetails.MaxOpenConns)
	h.db.SetMaxIdleConns(cfg.ConnectionDetails.MaxIdleConns)
	h.db.SetConnMaxLifetime(cfg.ConnectionDetails.ConnMaxLifetime)
	if cfg.ConnectionDetails.ConnMaxIdleTime > 0 {
		h.db.SetConnMaxIdleTime(cfg.ConnectionDetails.ConnMaxIdleTime)
	}

	if err := h.db.PingContext(ctx); err != nil {
		_ = h.db.Close()
		return nil, fmt.Errorf("%w: ping %s database: %w", ErrConnectionFailed, cfg.Dialect, err)
	}
	return &h, nil
}

// closeGormPool closes whatever pool gorm opened before failing. gorm.Open
// returns the half-built DB when its initial ping fails.
func closeGormPool(g *gorm.DB) {
	if g == nil {
		return
	}
	if sqlDB, err := g.DB(); err == nil {
		_ = sqlDB.Close()
		return
	}
	if c, ok := g.ConnPool.(io.Closer); ok {
		_ = c.Close()
	}
}

func (p *Provider) observe(operation string, duration time.Duration, err error) {
	if p.observer == nil {
		return
	}
	p.observer.ObserveOperation(observability.OperationContext{
		Component:   "connection",
		Operation:   operation,
		SubResource: p.cfg.Dialect,
		Duration:    duration,
		Error:       err,
	})
}

func (p *Provider) logInfo(msg string) {
	if p.logger != nil {
		p.logger.Info(msg, nil, map[string]interface{}{"dialect": p.cfg.Dialect})
	}
}

func (p *Provider) logError(msg string, err error) {
	if p.logger != nil {
		p.logger.Error(msg, err, map[string]interface{}{"dialect": p.cfg.Dialect})
	}
}
