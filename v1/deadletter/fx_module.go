package deadletter

import (
	"context"

	"go.uber.org/fx"

	"github.com/Aleph-Alpha/sqlexec/v1/observability"
	"github.com/Aleph-Alpha/sqlexec/v1/statement"
)

// FXModule provides *KafkaSink and exposes it as statement.DiagnosticSink, so the
// database module picks it up as the sink for unobserved async failures.
var FXModule = fx.Module("deadletter",
	fx.Provide(
		NewKafkaSinkWithDI,
		fx.Annotate(
			ProvideDiagnosticSink,
			fx.As(new(statement.DiagnosticSink)),
		),
	),
	fx.Invoke(RegisterKafkaSinkLifecycle),
)

// ProvideDiagnosticSink returns sink as a statement.DiagnosticSink.
func ProvideDiagnosticSink(sink *KafkaSink) statement.DiagnosticSink {
	return sink
}

// KafkaSinkParams groups the dependencies of NewKafkaSinkWithDI.
type KafkaSinkParams struct {
	fx.In

	Config   Config
	Logger   Logger                 `optional:"true"`
	Observer observability.Observer `optional:"true"`
}

// NewKafkaSinkWithDI builds a KafkaSink from injected dependencies.
func NewKafkaSinkWithDI(params KafkaSinkParams) (*KafkaSink, error) {
	sink, err := NewKafkaSink(params.Config)
	if err != nil {
		return nil, err
	}
	return sink.WithLogger(params.Logger).WithObserver(params.Observer), nil
}

// RegisterKafkaSinkLifecycle flushes and closes the writer when the application stops.
func RegisterKafkaSinkLifecycle(lc fx.Lifecycle, sink *KafkaSink) {
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return sink.Close()
		},
	})
}
