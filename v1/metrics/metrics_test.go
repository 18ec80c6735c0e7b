package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aleph-Alpha/sqlexec/v1/observability"
)

func TestObserveOperationCountsByStatus(t *testing.T) {
	m := NewMetrics(Config{ServiceName: "test"})

	m.ObserveOperation(observability.OperationContext{
		Component: "statement",
		Operation: "execute_update",
		Duration:  5 * time.Millisecond,
		Size:      3,
	})
	m.ObserveOperation(observability.OperationContext{
		Component: "statement",
		Operation: "execute_update",
		Duration:  time.Millisecond,
		Error:     errors.New("duplicate key"),
	})

	assert.Equal(t, 1.0, testutil.ToFloat64(m.operationsTotal.WithLabelValues("statement", "execute_update", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.operationsTotal.WithLabelValues("statement", "execute_update", "error")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.rowsTotal.WithLabelValues("statement", "execute_update")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.operationDuration))
}

func TestObserveOperationInFlightGauge(t *testing.T) {
	m := NewMetrics(Config{ServiceName: "test"})

	m.ObserveOperation(observability.OperationContext{
		Component: "workerpool",
		Operation: "run",
		Metadata:  map[string]interface{}{"in_flight": 4},
	})
	assert.Equal(t, 4.0, testutil.ToFloat64(m.poolInFlight))

	m.SetWorkerPoolInFlight(0)
	assert.Equal(t, 0.0, testutil.ToFloat64(m.poolInFlight))
}

func TestNewMetricsDefaults(t *testing.T) {
	m := NewMetrics(Config{ServiceName: "test", EnableDefaultCollectors: true})
	assert.Equal(t, DefaultMetricsAddress, m.Server.Addr)

	families, err := m.Registry.Gather()
	require.NoError(t, err)
	var names []string
	for _, f := range families {
		names = append(names, f.GetName())
	}
	assert.Contains(t, names, "sqlexec_workerpool_in_flight")
	assert.Contains(t, names, "go_goroutines")
}

func TestCreateCounterUsesNamespace(t *testing.T) {
	m := NewMetrics(Config{ServiceName: "test", Namespace: "orders"})
	c := m.CreateCounter("retries_total", "retries", []string{"kind"})
	c.WithLabelValues("x").Inc()

	families, err := m.Registry.Gather()
	require.NoError(t, err)
	found := false
	for _, f := range families {
		if f.GetName() == "orders_retries_total" {
			found = true
		}
	}
	assert.True(t, found)
}
