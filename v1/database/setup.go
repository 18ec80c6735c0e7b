package database

import (
	"context"
	"database/sql"
	"errors"
	"sync"

	"github.com/Aleph-Alpha/sqlexec/v1/connection"
	"github.com/Aleph-Alpha/sqlexec/v1/logger"
	"github.com/Aleph-Alpha/sqlexec/v1/observability"
	"github.com/Aleph-Alpha/sqlexec/v1/statement"
	"github.com/Aleph-Alpha/sqlexec/v1/workerpool"
)

// Client owns a connection provider and a worker pool and prepares statement
// handles wired to both. It is safe for concurrent use.
type Client struct {
	cfg      Config
	provider *connection.Provider
	pool     *workerpool.Pool

	logger    Logger
	observer  observability.Observer
	tracer    statement.Tracer
	sink      statement.DiagnosticSink
	txOptions *sql.TxOptions

	disconnectOnce sync.Once
}

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the logger passed to the provider, the pool and every handle.
func WithLogger(l Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithObserver sets the observer notified by the provider, the pool and every handle.
func WithObserver(o observability.Observer) Option {
	return func(c *Client) {
		c.observer = o
	}
}

// WithTracer makes every handle open a span per execution.
func WithTracer(t statement.Tracer) Option {
	return func(c *Client) {
		c.tracer = t
	}
}

// WithSink adds a sink for failures of async executions submitted without a
// callback. Failures are always logged as well.
func WithSink(s statement.DiagnosticSink) Option {
	return func(c *Client) {
		c.sink = s
	}
}

// WithTxOptions sets the options of the transaction every batch runs in.
func WithTxOptions(o *sql.TxOptions) Option {
	return func(c *Client) {
		c.txOptions = o
	}
}

// New builds a Client for cfg. Nothing is connected until Connect.
func New(cfg Config, opts ...Option) (*Client, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	c := &Client{
		cfg:    cfg,
		logger: logger.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}

	c.provider = connection.NewProvider(cfg.Connection).
		WithLogger(c.logger).
		WithObserver(c.observer)
	c.pool = workerpool.New(cfg.WorkerPool).
		WithLogger(c.logger).
		WithObserver(c.observer)

	return c, nil
}

// Connect opens the connection pool. It is a no-op when already connected.
func (c *Client) Connect(ctx context.Context) error {
	return c.provider.Open(ctx)
}

// Prepare borrows a connection and prepares sqlText on it. The returned handle
// owns the connection until it executes, fails or is closed.
func (c *Client) Prepare(ctx context.Context, sqlText string) (*statement.Handle, error) {
	return statement.New(ctx, c.provider, sqlText, c.statementOptions()...)
}

func (c *Client) statementOptions() []statement.Option {
	opts := []statement.Option{
		statement.WithLogger(c.logger),
		statement.WithDispatcher(c.pool),
		statement.WithSink(c.diagnosticSink()),
		statement.WithErrorTranslator(connection.TranslateError),
	}
	if c.observer != nil {
		opts = append(opts, statement.WithObserver(c.observer))
	}
	if c.tracer != nil {
		opts = append(opts, statement.WithTracer(c.tracer))
	}
	if c.txOptions != nil {
		opts = append(opts, statement.WithTxOptions(c.txOptions))
	}
	return opts
}

func (c *Client) diagnosticSink() statement.DiagnosticSink {
	logSink := statement.NewLogSink(c.logger)
	if c.sink == nil {
		return logSink
	}
	return statement.MultiSink{logSink, c.sink}
}

// Disconnect stops accepting async work, waits for running executions and closes
// the connection pool. Snapshots already returned stay readable. Only the first
// call does anything and reports its failures; later calls return nil.
func (c *Client) Disconnect(ctx context.Context) error {
	var err error
	c.disconnectOnce.Do(func() {
		poolErr := c.pool.Shutdown(ctx)
		if poolErr != nil {
			c.logger.Warn("Worker pool did not drain before disconnect", poolErr)
		}
		err = errors.Join(poolErr, c.provider.Close())
		if err == nil {
			c.logger.Info("Disconnected from database", nil, map[string]interface{}{
				"dialect": c.provider.Dialect(),
			})
		}
	})
	return err
}

// Provider returns the underlying connection provider.
func (c *Client) Provider() *connection.Provider {
	return c.provider
}

// Pool returns the worker pool async executions run on.
func (c *Client) Pool() *workerpool.Pool {
	return c.pool
}
