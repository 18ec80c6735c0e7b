// Package observability defines the hook through which sqlexec components report
// the operations they perform.
//
// Components such as the statement engine, the connection provider and the worker
// pool accept an optional Observer. When set, every operation is reported with a
// component name, operation name, duration and outcome, which lets applications feed
// metrics, traces or audit logs without the components depending on any of them.
//
// The metrics package ships an Observer backed by Prometheus:
//
//	m := metrics.NewMetrics(metrics.Config{ServiceName: "orders"})
//	client, err := database.New(cfg, database.WithObserver(m))
//
// A nil Observer is always valid and disables reporting.
package observability
