package connection

import (
	"context"
	"sync"

	"go.uber.org/fx"

	"github.com/Aleph-Alpha/sqlexec/v1/observability"
)

// FXModule provides an opened *Provider from a connection.Config and runs its
// health loops for the lifetime of the application.
var FXModule = fx.Module("connection",
	fx.Provide(NewProviderWithDI),
	fx.Invoke(RegisterProviderLifecycle),
)

// ProviderParams groups the dependencies of NewProviderWithDI.
type ProviderParams struct {
	fx.In

	Config   Config
	Logger   Logger                 `optional:"true"`
	Observer observability.Observer `optional:"true"`
}

// NewProviderWithDI builds a closed Provider; RegisterProviderLifecycle opens it.
func NewProviderWithDI(params ProviderParams) *Provider {
	return NewProvider(params.Config).WithLogger(params.Logger).WithObserver(params.Observer)
}

// ProviderLifecycleParams groups the dependencies of RegisterProviderLifecycle.
type ProviderLifecycleParams struct {
	fx.In

	Lifecycle fx.Lifecycle
	Provider  *Provider
}

// RegisterProviderLifecycle registers hooks that:
//  1. open the provider and start MonitorConnection and RetryConnection on start
//  2. stop both loops and close the pool on stop
func RegisterProviderLifecycle(params ProviderLifecycleParams) {
	wg := &sync.WaitGroup{}
	loopCtx, cancel := context.WithCancel(context.Background())

	params.Lifecycle.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if err := params.Provider.Open(ctx); err != nil {
				cancel()
				return err
			}

			wg.Add(2)
			go func() {
				defer wg.Done()
				params.Provider.MonitorConnection(loopCtx)
			}()
			go func() {
				defer wg.Done()
				params.Provider.RetryConnection(loopCtx)
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			cancel()
			wg.Wait()
			return params.Provider.Close()
		},
	})
}
