package database

import (
	"context"
	"sync"

	"go.uber.org/fx"

	"github.com/Aleph-Alpha/sqlexec/v1/logger"
	"github.com/Aleph-Alpha/sqlexec/v1/metrics"
	"github.com/Aleph-Alpha/sqlexec/v1/observability"
	"github.com/Aleph-Alpha/sqlexec/v1/statement"
	"github.com/Aleph-Alpha/sqlexec/v1/tracer"
)

// FXModule provides *Client (also as Preparer) from a database.Config. It picks
// up *logger.Logger, *metrics.Metrics, *tracer.Tracer and a
// statement.DiagnosticSink when the container has them.
//
//	app := fx.New(
//	    logger.FXModule,
//	    metrics.FXModule,
//	    database.FXModule,
//	    fx.Supply(logger.Config{Level: logger.Info, ServiceName: "orders"}),
//	    fx.Supply(metrics.Config{Address: ":9090", ServiceName: "orders"}),
//	    fx.Provide(func() database.Config {
//	        return database.PostgresConfig(connection.Connection{...})
//	    }),
//	    fx.Invoke(func(db database.Preparer) {
//	        // db.Prepare(ctx, "INSERT ...")
//	    }),
//	)
var FXModule = fx.Module("database",
	fx.Provide(
		NewClientWithDI,
		fx.Annotate(
			ProvidePreparer,
			fx.As(new(Preparer)),
		),
	),
	fx.Invoke(RegisterClientLifecycle),
)

// ProvidePreparer returns client as a Preparer.
func ProvidePreparer(client *Client) Preparer {
	return client
}

// ClientParams groups the dependencies of NewClientWithDI.
type ClientParams struct {
	fx.In

	Config   Config
	Logger   *logger.Logger           `optional:"true"`
	Metrics  *metrics.Metrics         `optional:"true"`
	Observer observability.Observer   `optional:"true"`
	Tracer   *tracer.Tracer           `optional:"true"`
	Sink     statement.DiagnosticSink `optional:"true"`
}

// NewClientWithDI builds a Client from injected dependencies. An explicit
// Observer takes precedence over Metrics.
func NewClientWithDI(params ClientParams) (*Client, error) {
	var opts []Option
	if params.Logger != nil {
		opts = append(opts, WithLogger(params.Logger))
	}
	switch {
	case params.Observer != nil:
		opts = append(opts, WithObserver(params.Observer))
	case params.Metrics != nil:
		opts = append(opts, WithObserver(params.Metrics))
	}
	if params.Tracer != nil {
		opts = append(opts, WithTracer(params.Tracer))
	}
	if params.Sink != nil {
		opts = append(opts, WithSink(params.Sink))
	}
	return New(params.Config, opts...)
}

// ClientLifecycleParams groups the dependencies of RegisterClientLifecycle.
type ClientLifecycleParams struct {
	fx.In

	Lifecycle fx.Lifecycle
	Client    *Client
}

// RegisterClientLifecycle registers hooks that:
//  1. connect and start the provider's MonitorConnection and RetryConnection loops on start
//  2. stop the loops and Disconnect on stop
func RegisterClientLifecycle(params ClientLifecycleParams) {
	wg := &sync.WaitGroup{}
	loopCtx, cancel := context.WithCancel(context.Background())
	provider := params.Client.Provider()

	params.Lifecycle.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if err := params.Client.Connect(ctx); err != nil {
				cancel()
				return err
			}

			wg.Add(2)
			go func() {
				defer wg.Done()
				provider.MonitorConnection(loopCtx)
			}()
			go func() {
				defer wg.Done()
				provider.RetryConnection(loopCtx)
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			cancel()
			wg.Wait()
			return params.Client.Disconnect(ctx)
		},
	})
}
