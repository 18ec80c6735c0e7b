// Package logger provides the structured logger used across sqlexec.
//
// It wraps Uber's zap with a small, uniform API: every method takes a message, an
// optional error and optional field maps.
//
//	log := logger.NewLoggerClient(logger.Config{
//		Level:         logger.Info,
//		ServiceName:   "orders",
//		EnableTracing: true,
//	})
//
//	log.Info("Batch committed", nil, map[string]interface{}{
//		"entries": 3,
//	})
//
//	// With tracing enabled, trace_id and span_id are taken from ctx.
//	log.ErrorWithContext(ctx, "Statement failed", err, nil)
//
// # Decoupling
//
// Packages that log (statement, connection, workerpool, database, deadletter) do
// not import this package. Each declares a local Logger interface with the five
// level methods, which *Logger satisfies. NewNop returns a logger that discards
// everything and is the default wherever no logger is configured.
//
// # FX
//
// FXModule provides *Logger from a Config and syncs it on application stop.
//
// # Configuration
//
//	ZAP_LOGGER_LEVEL=debug        # debug, info, warning, error
//	LOGGER_SERVICE_NAME=orders
//	LOGGER_ENABLE_TRACING=true
//
// All methods are safe for concurrent use.
package logger
