package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// OTelMetrics holds OpenTelemetry metric instruments. It mirrors the
// Prometheus Metrics for deployments that export over OTLP instead.
type OTelMetrics struct {
	checksTotal   metric.Int64Counter
	checkDuration metric.Float64Histogram

	storageOperations metric.Int64Counter
	storageDuration   metric.Float64Histogram
}

// NewOTelMetrics creates instruments on the global meter provider
func NewOTelMetrics() (*OTelMetrics, error) {
	meter := otel.Meter("github.com/platinummonkey/gatekeeper")

	m := &OTelMetrics{}
	var err error

	m.checksTotal, err = meter.Int64Counter(
		"rbac.checks",
		metric.WithDescription("Total number of permission checks"),
		metric.WithUnit("{check}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create rbac.checks counter: %w", err)
	}

	m.checkDuration, err = meter.Float64Histogram(
		"rbac.check.duration",
		metric.WithDescription("Permission check duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create rbac.check.duration histogram: %w", err)
	}

	m.storageOperations, err = meter.Int64Counter(
		"storage.operations.total",
		metric.WithDescription("Total number of storage operations"),
		metric.WithUnit("{operation}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage_operations counter: %w", err)
	}

	m.storageDuration, err = meter.Float64Histogram(
		"storage.operation.duration",
		metric.WithDescription("Storage operation duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage_duration histogram: %w", err)
	}

	return m, nil
}

// ObserveCheck records a permission check
func (m *OTelMetrics) ObserveCheck(op string, allowed bool, err error, duration time.Duration) {
	decision := DecisionDeny
	switch {
	case err != nil:
		decision = DecisionError
	case allowed:
		decision = DecisionAllow
	}
	attrs := metric.WithAttributes(
		attribute.String("rbac.operation", op),
		attribute.String("rbac.decision", decision),
	)

	ctx := context.Background()
	m.checksTotal.Add(ctx, 1, attrs)
	m.checkDuration.Record(ctx, duration.Seconds(), attrs)
}

// ObserveStorageOperation records a storage operation. errorType is empty on success.
func (m *OTelMetrics) ObserveStorageOperation(op, backend, errorType string, duration time.Duration) {
	attrs := []attribute.KeyValue{
		attribute.String("storage.operation", op),
		attribute.String("storage.type", backend),
	}
	if errorType != "" {
		attrs = append(attrs, attribute.String("error.type", errorType))
	}

	ctx := context.Background()
	m.storageOperations.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.storageDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
}

// CheckObserver is satisfied by Metrics and OTelMetrics
type CheckObserver interface {
	ObserveCheck(op string, allowed bool, err error, duration time.Duration)
}

// CheckObservers fans a check out to several observers
type CheckObservers []CheckObserver

// ObserveCheck forwards to every observer
func (o CheckObservers) ObserveCheck(op string, allowed bool, err error, duration time.Duration) {
	for _, obs := range o {
		obs.ObserveCheck(op, allowed, err, duration)
	}
}

// StorageObserver is satisfied by Metrics and OTelMetrics
type StorageObserver interface {
	ObserveStorageOperation(op, backend, errorType string, duration time.Duration)
}

// StorageObservers fans a storage operation out to several observers
type StorageObservers []StorageObserver

// ObserveStorageOperation forwards to every observer
func (o StorageObservers) ObserveStorageOperation(op, backend, errorType string, duration time.Duration) {
	for _, obs := range o {
		obs.ObserveStorageOperation(op, backend, errorType, duration)
	}
}
