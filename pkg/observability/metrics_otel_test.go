package observability

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

// setupTestMeterProvider creates a test meter provider with a manual reader
func setupTestMeterProvider(t *testing.T) *metric.ManualReader {
	t.Helper()
	reader := metric.NewManualReader()
	provider := metric.NewMeterProvider(metric.WithReader(reader))
	otel.SetMeterProvider(provider)
	t.Cleanup(func() {
		_ = provider.Shutdown(context.Background())
	})
	return reader
}

func collect(t *testing.T, reader *metric.ManualReader) map[string]metricdata.Metrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	out := make(map[string]metricdata.Metrics)
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			out[m.Name] = m
		}
	}
	return out
}

func sumInt64(t *testing.T, m metricdata.Metrics) int64 {
	t.Helper()
	sum, ok := m.Data.(metricdata.Sum[int64])
	require.True(t, ok, "expected int64 sum for %s", m.Name)
	var total int64
	for _, dp := range sum.DataPoints {
		total += dp.Value
	}
	return total
}

func TestOTelMetrics_ObserveCheck(t *testing.T) {
	reader := setupTestMeterProvider(t)

	m, err := NewOTelMetrics()
	require.NoError(t, err)

	m.ObserveCheck("has_permission", true, nil, time.Millisecond)
	m.ObserveCheck("has_permission", false, nil, time.Millisecond)
	m.ObserveCheck("has_any_permission", false, errors.New("boom"), time.Millisecond)

	metrics := collect(t, reader)
	require.Contains(t, metrics, "rbac.checks")
	require.Contains(t, metrics, "rbac.check.duration")

	assert.Equal(t, int64(3), sumInt64(t, metrics["rbac.checks"]))
	sum := metrics["rbac.checks"].Data.(metricdata.Sum[int64])
	assert.Len(t, sum.DataPoints, 3)
}

func TestOTelMetrics_ObserveStorageOperation(t *testing.T) {
	reader := setupTestMeterProvider(t)

	m, err := NewOTelMetrics()
	require.NoError(t, err)

	m.ObserveStorageOperation("find_role_by_name", "redis", "", time.Millisecond)
	m.ObserveStorageOperation("find_role_by_name", "redis", "not_found", time.Millisecond)

	metrics := collect(t, reader)
	require.Contains(t, metrics, "storage.operations.total")
	assert.Equal(t, int64(2), sumInt64(t, metrics["storage.operations.total"]))
}

type countingObserver struct {
	checks  int
	storage int
}

func (c *countingObserver) ObserveCheck(string, bool, error, time.Duration) { c.checks++ }

func (c *countingObserver) ObserveStorageOperation(string, string, string, time.Duration) {
	c.storage++
}

func TestObserverFanOut(t *testing.T) {
	a, b := &countingObserver{}, &countingObserver{}

	CheckObservers{a, b}.ObserveCheck("has_permission", true, nil, 0)
	StorageObservers{a, b}.ObserveStorageOperation("ping", "memory", "", 0)

	assert.Equal(t, 1, a.checks)
	assert.Equal(t, 1, b.checks)
	assert.Equal(t, 1, a.storage)
	assert.Equal(t, 1, b.storage)
}
