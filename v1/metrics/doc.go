// Package metrics exposes sqlexec operations as Prometheus metrics.
//
// NewMetrics creates an isolated registry (every metric carries a constant
// service label) and an HTTP server for /metrics. *Metrics implements
// observability.Observer, so the same value is passed to every component:
//
//	m := metrics.NewMetrics(metrics.Config{
//		Address:                 ":9090",
//		ServiceName:             "orders",
//		EnableDefaultCollectors: true,
//	})
//	client, err := database.New(cfg, database.WithObserver(m))
//
// Exposed series (namespace "sqlexec" unless configured):
//
//	sqlexec_operations_total{component,operation,status}
//	sqlexec_operation_duration_seconds{component,operation}
//	sqlexec_rows_total{component,operation}
//	sqlexec_workerpool_in_flight
//
// With FX, FXModule provides *Metrics and runs the server between start and stop.
package metrics
