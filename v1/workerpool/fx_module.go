package workerpool

import (
	"context"

	"go.uber.org/fx"

	"github.com/Aleph-Alpha/sqlexec/v1/observability"
)

// FXModule provides *Pool from a workerpool.Config and shuts it down on stop.
// The database module builds its own pool; use this module when an application
// wants a standalone pool in the container.
var FXModule = fx.Module("workerpool",
	fx.Provide(NewPoolWithDI),
	fx.Invoke(RegisterPoolLifecycle),
)

// PoolParams groups the dependencies of NewPoolWithDI.
type PoolParams struct {
	fx.In

	Config   Config
	Logger   Logger                 `optional:"true"`
	Observer observability.Observer `optional:"true"`
}

// NewPoolWithDI builds a Pool from injected dependencies.
func NewPoolWithDI(params PoolParams) *Pool {
	return New(params.Config).WithLogger(params.Logger).WithObserver(params.Observer)
}

// RegisterPoolLifecycle shuts the pool down when the application stops.
func RegisterPoolLifecycle(lc fx.Lifecycle, pool *Pool) {
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return pool.Shutdown(ctx)
		},
	})
}
