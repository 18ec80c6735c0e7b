package statement

import (
	"context"
	"database/sql"

	"go.opentelemetry.io/otel/trace"

	"github.com/Aleph-Alpha/sqlexec/v1/observability"
	"github.com/Aleph-Alpha/sqlexec/v1/workerpool"
)

// Tracer opens one span per execution. *tracer.Tracer implements it.
type Tracer interface {
	StartSpan(ctx context.Context, name string) (context.Context, trace.Span)
	RecordErrorOnSpan(span trace.Span, err error)
	SetAttributes(span trace.Span, attrs map[string]interface{})
}

// Dispatcher runs asynchronous executions. *workerpool.Pool implements it.
type Dispatcher interface {
	Submit(ctx context.Context, task workerpool.Task) error
}

// ConnSource hands out exclusive connections. *sql.DB and
// *connection.Provider implement it.
type ConnSource interface {
	Conn(ctx context.Context) (*sql.Conn, error)
}

// Option configures a Handle.
type Option func(*options)

type options struct {
	logger     Logger
	observer   observability.Observer
	tracer     Tracer
	dispatcher Dispatcher
	sink       DiagnosticSink
	txOptions  *sql.TxOptions
	translate  func(error) error
}

// WithLogger sets the logger for cleanup warnings, recovered callback panics and
// the default diagnostic sink.
func WithLogger(logger Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithObserver reports every execution to observer.
func WithObserver(observer observability.Observer) Option {
	return func(o *options) { o.observer = observer }
}

// WithTracer opens a span for every execution.
func WithTracer(tracer Tracer) Option {
	return func(o *options) { o.tracer = tracer }
}

// WithDispatcher enables the Async methods.
func WithDispatcher(dispatcher Dispatcher) Option {
	return func(o *options) { o.dispatcher = dispatcher }
}

// WithSink sets where failures of fire-and-forget executions are reported.
// The default logs them at error level.
func WithSink(sink DiagnosticSink) Option {
	return func(o *options) { o.sink = sink }
}

// WithTxOptions sets the isolation level and read-only flag of batch transactions.
func WithTxOptions(txOptions *sql.TxOptions) Option {
	return func(o *options) { o.txOptions = txOptions }
}

// WithErrorTranslator maps driver errors of failed preparations, executions and
// transactions before they are wrapped in an *Error. The translated error should
// wrap the original so errors.As still reaches the driver type.
// connection.TranslateError is the usual choice.
func WithErrorTranslator(translate func(error) error) Option {
	return func(o *options) { o.translate = translate }
}
