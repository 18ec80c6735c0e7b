package statement

import (
	"context"
	"errors"
	"time"
)

// Diagnostic describes a fire-and-forget execution that failed with nobody
// waiting for the outcome.
type Diagnostic struct {
	OperationID string
	Operation   string
	SQL         string
	Err         error
	OccurredAt  time.Time
}

// DiagnosticSink receives failures of asynchronous executions submitted without
// a callback. Report must be safe for concurrent use.
type DiagnosticSink interface {
	Report(ctx context.Context, d Diagnostic) error
}

// LogSink reports diagnostics through a Logger at error level.
type LogSink struct {
	logger Logger
}

// NewLogSink returns a sink writing to logger.
func NewLogSink(logger Logger) *LogSink {
	return &LogSink{logger: logger}
}

func (s *LogSink) Report(_ context.Context, d Diagnostic) error {
	s.logger.Error("Asynchronous statement execution failed", d.Err, map[string]interface{}{
		"operation_id": d.OperationID,
		"operation":    d.Operation,
		"sql":          d.SQL,
		"occurred_at":  d.OccurredAt,
	})
	return nil
}

// MultiSink reports to every sink in order and joins their errors.
type MultiSink []DiagnosticSink

func (m MultiSink) Report(ctx context.Context, d Diagnostic) error {
	var errs []error
	for _, sink := range m {
		if sink == nil {
			continue
		}
		if err := sink.Report(ctx, d); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
