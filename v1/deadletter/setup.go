package deadletter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/Aleph-Alpha/sqlexec/v1/observability"
	"github.com/Aleph-Alpha/sqlexec/v1/statement"
)

// Logger is the logging contract used by this package.
type Logger interface {
	Info(msg string, err error, fields ...map[string]interface{})
	Debug(msg string, err error, fields ...map[string]interface{})
	Warn(msg string, err error, fields ...map[string]interface{})
	Error(msg string, err error, fields ...map[string]interface{})
	Fatal(msg string, err error, fields ...map[string]interface{})
}

// ErrInvalidConfig is returned by NewKafkaSink when brokers or topic are missing.
var ErrInvalidConfig = errors.New("deadletter: invalid configuration")

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Event is the JSON body of a dead-letter message.
type Event struct {
	OperationID string    `json:"operation_id"`
	Operation   string    `json:"operation"`
	SQL         string    `json:"sql"`
	Kind        string    `json:"kind,omitempty"`
	Error       string    `json:"error"`
	Service     string    `json:"service,omitempty"`
	OccurredAt  time.Time `json:"occurred_at"`
}

// KafkaSink is a statement.DiagnosticSink that publishes every report to a
// Kafka topic, keyed by operation id. It is safe for concurrent use.
type KafkaSink struct {
	cfg      Config
	writer   messageWriter
	logger   Logger
	observer observability.Observer

	closeOnce sync.Once
	closeErr  error
}

var _ statement.DiagnosticSink = (*KafkaSink)(nil)

// NewKafkaSink creates the Kafka writer for cfg. No connection is made until the
// first report.
func NewKafkaSink(cfg Config) (*KafkaSink, error) {
	if len(cfg.Brokers) == 0 || cfg.Topic == "" {
		return nil, fmt.Errorf("%w: brokers and topic are required", ErrInvalidConfig)
	}
	cfg = cfg.withDefaults()

	s := &KafkaSink{cfg: cfg}
	writer, err := createWriter(cfg, loggerFunc(func() Logger { return s.logger }))
	if err != nil {
		return nil, err
	}
	s.writer = writer
	return s, nil
}

// WithLogger sets the logger for writer errors and returns s for chaining.
func (s *KafkaSink) WithLogger(logger Logger) *KafkaSink {
	s.logger = logger
	return s
}

// WithObserver sets the observer notified of every publish and returns s for chaining.
func (s *KafkaSink) WithObserver(observer observability.Observer) *KafkaSink {
	s.observer = observer
	return s
}

// Report publishes d. With Config.Async it returns once the message is queued.
func (s *KafkaSink) Report(ctx context.Context, d statement.Diagnostic) error {
	start := time.Now()

	msg, err := s.message(d)
	if err == nil {
		err = s.writer.WriteMessages(ctx, msg)
		if err != nil {
			err = fmt.Errorf("failed to publish dead-letter message: %w", err)
		}
	}

	s.observe(time.Since(start), int64(len(msg.Value)), err)
	return err
}

func (s *KafkaSink) message(d statement.Diagnostic) (kafka.Message, error) {
	event := Event{
		OperationID: d.OperationID,
		Operation:   d.Operation,
		SQL:         d.SQL,
		Service:     s.cfg.Service,
		OccurredAt:  d.OccurredAt.UTC(),
	}
	if d.Err != nil {
		event.Error = d.Err.Error()
		var stmtErr *statement.Error
		if errors.As(d.Err, &stmtErr) && stmtErr.Kind != nil {
			event.Kind = stmtErr.Kind.Error()
		}
	}

	body, err := json.Marshal(event)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("failed to encode dead-letter event: %w", err)
	}

	return kafka.Message{
		Key:   []byte(d.OperationID),
		Value: body,
		Time:  event.OccurredAt,
		Headers: []kafka.Header{
			{Key: "content-type", Value: []byte("application/json")},
			{Key: "operation", Value: []byte(d.Operation)},
		},
	}, nil
}

// Close flushes pending messages and closes the writer. It is idempotent.
func (s *KafkaSink) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = s.writer.Close()
	})
	return s.closeErr
}

func (s *KafkaSink) observe(duration time.Duration, size int64, err error) {
	if s.observer == nil {
		return
	}
	s.observer.ObserveOperation(observability.OperationContext{
		Component: "deadletter",
		Operation: "publish",
		Resource:  s.cfg.Topic,
		Duration:  duration,
		Error:     err,
		Size:      size,
	})
}

// loggerFunc resolves the logger lazily so WithLogger also reaches the writer's
// error logger, which is built in NewKafkaSink.
type loggerFunc func() Logger

func (f loggerFunc) Info(msg string, err error, fields ...map[string]interface{}) {
	if l := f(); l != nil {
		l.Info(msg, err, fields...)
	}
}

func (f loggerFunc) Debug(msg string, err error, fields ...map[string]interface{}) {
	if l := f(); l != nil {
		l.Debug(msg, err, fields...)
	}
}

func (f loggerFunc) Warn(msg string, err error, fields ...map[string]interface{}) {
	if l := f(); l != nil {
		l.Warn(msg, err, fields...)
	}
}

func (f loggerFunc) Error(msg string, err error, fields ...map[string]interface{}) {
	if l := f(); l != nil {
		l.Error(msg, err, fields...)
	}
}

func (f loggerFunc) Fatal(msg string, err error, fields ...map[string]interface{}) {
	if l := f(); l != nil {
		l.Fatal(msg, err, fields...)
	}
}
