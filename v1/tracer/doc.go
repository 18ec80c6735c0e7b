// Package tracer configures OpenTelemetry tracing for sqlexec.
//
// The statement engine opens one span per execution (statement.executeUpdate,
// statement.executeQuery, statement.executeBatch) carrying the SQL text and the
// row count, and records failures on the span.
//
//	t, err := tracer.NewClient(tracer.Config{
//		ServiceName:  "orders",
//		AppEnv:       "production",
//		EnableExport: true,
//	}, log)
//	if err != nil {
//		return err
//	}
//	defer t.Shutdown(ctx)
//
//	client, err := database.New(cfg, database.WithTracer(t))
//
// Export uses OTLP over HTTP; the endpoint and headers come from the standard
// OTEL_EXPORTER_OTLP_* environment variables.
package tracer
