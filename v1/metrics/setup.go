package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics owns a dedicated Prometheus registry, the sqlexec collectors and the
// HTTP server exposing them.
//
// *Metrics implements observability.Observer, so it can be handed directly to the
// statement engine, the connection provider and the worker pool.
type Metrics struct {
	// Server serves the registry on /metrics.
	Server *http.Server

	// Registry holds every collector of this service.
	Registry *prometheus.Registry

	registerer prometheus.Registerer
	namespace  string

	operationsTotal   *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec
	rowsTotal         *prometheus.CounterVec
	poolInFlight      prometheus.Gauge
}

// NewMetrics creates the registry and registers the sqlexec collectors under a
// constant service label.
//
// Collectors:
//   - <ns>_operations_total{component,operation,status}
//   - <ns>_operation_duration_seconds{component,operation}
//   - <ns>_rows_total{component,operation}
//   - <ns>_workerpool_in_flight
//
// Example:
//
//	m := metrics.NewMetrics(metrics.Config{ServiceName: "orders"})
//	go m.Server.ListenAndServe()
func NewMetrics(cfg Config) *Metrics {
	if cfg.Address == "" {
		cfg.Address = DefaultMetricsAddress
	}
	if cfg.Namespace == "" {
		cfg.Namespace = DefaultNamespace
	}

	registry := prometheus.NewRegistry()
	wrappedRegistry := prometheus.WrapRegistererWith(
		prometheus.Labels{"service": cfg.ServiceName},
		registry,
	)

	m := &Metrics{
		Registry:   registry,
		registerer: wrappedRegistry,
		namespace:  cfg.Namespace,
	}

	m.operationsTotal = createCounterVec(cfg.Namespace, "operations_total",
		"Total number of operations by component, operation and status", []string{"component", "operation", "status"})
	m.operationDuration = createHistogramVec(cfg.Namespace, "operation_duration_seconds",
		"Duration of operations in seconds", []string{"component", "operation"}, prometheus.DefBuckets)
	m.rowsTotal = createCounterVec(cfg.Namespace, "rows_total",
		"Rows affected or returned by statement operations", []string{"component", "operation"})
	m.poolInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: cfg.Namespace,
		Name:      "workerpool_in_flight",
		Help:      "Number of worker pool slots currently running a task",
	})

	wrappedRegistry.MustRegister(
		m.operationsTotal,
		m.operationDuration,
		m.rowsTotal,
		m.poolInFlight,
	)

	if cfg.EnableDefaultCollectors {
		wrappedRegistry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
			collectors.NewBuildInfoCollector(),
		)
	}

	m.Server = &http.Server{
		Addr:    cfg.Address,
		Handler: promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
	}
	return m
}
