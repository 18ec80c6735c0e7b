// Package deadletter publishes failures of fire-and-forget statement executions
// to Kafka.
//
// An asynchronous execution submitted without a callback has nobody to return
// its error to. The statement package hands such failures to a
// statement.DiagnosticSink; KafkaSink is a sink that writes one JSON message per
// failure, keyed by the operation id:
//
//	{
//	  "operation_id": "5f0c...",
//	  "operation": "executeUpdate",
//	  "sql": "INSERT INTO t(x) VALUES (?)",
//	  "kind": "execution failed",
//	  "error": "statement executeUpdate: execution failed: ...",
//	  "service": "orders",
//	  "occurred_at": "2026-01-02T15:04:05Z"
//	}
//
// Basic usage:
//
//	sink, err := deadletter.NewKafkaSink(deadletter.Config{
//		Brokers: []string{"localhost:9092"},
//		Topic:   "sqlexec.deadletter",
//		Service: "orders",
//	})
//	if err != nil {
//		return err
//	}
//	defer sink.Close()
//
//	db := database.New(cfg, database.WithSink(sink))
//
// With fx, include deadletter.FXModule next to database.FXModule and supply a
// deadletter.Config.
//
// TLS and SASL (PLAIN, SCRAM-SHA-256, SCRAM-SHA-512) are configured through
// Config.TLS and Config.SASL.
package deadletter
