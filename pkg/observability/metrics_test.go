package observability

import (
	"database/sql"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNewMetrics(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := NewMetrics(registry)

	if metrics == nil {
		t.Fatal("NewMetrics returned nil")
	}
	if metrics.ChecksTotal == nil || metrics.CheckDuration == nil {
		t.Error("check metrics not initialized")
	}
	if metrics.StorageOperationsTotal == nil || metrics.StorageErrorsTotal == nil {
		t.Error("storage metrics not initialized")
	}

	// Registering twice on the same registry must panic
	defer func() {
		if recover() == nil {
			t.Error("expected duplicate registration to panic")
		}
	}()
	NewMetrics(registry)
}

func TestMetrics_ObserveCheck(t *testing.T) {
	metrics := NewMetrics(prometheus.NewRegistry())

	metrics.ObserveCheck("has_permission", true, nil, time.Millisecond)
	metrics.ObserveCheck("has_permission", false, nil, time.Millisecond)
	metrics.ObserveCheck("has_permission", false, nil, time.Millisecond)
	metrics.ObserveCheck("has_all_permissions", false, errors.New("store down"), time.Millisecond)

	expected := `
# HELP gatekeeper_checks_total Total number of permission checks by outcome
# TYPE gatekeeper_checks_total counter
gatekeeper_checks_total{decision="allow",operation="has_permission"} 1
gatekeeper_checks_total{decision="deny",operation="has_permission"} 2
gatekeeper_checks_total{decision="error",operation="has_all_permissions"} 1
`
	if err := testutil.CollectAndCompare(metrics.ChecksTotal, strings.NewReader(expected)); err != nil {
		t.Errorf("unexpected counter value: %v", err)
	}
	if count := testutil.CollectAndCount(metrics.CheckDuration); count != 2 {
		t.Errorf("expected 2 duration series, got %d", count)
	}
}

func TestMetrics_ObserveStorageOperation(t *testing.T) {
	metrics := NewMetrics(prometheus.NewRegistry())

	metrics.ObserveStorageOperation("save_role", "sqlite3", "", 2*time.Millisecond)
	metrics.ObserveStorageOperation("save_role", "sqlite3", "duplicate_name", time.Millisecond)

	if v := testutil.ToFloat64(metrics.StorageOperationsTotal.WithLabelValues("save_role", "sqlite3", "success")); v != 1 {
		t.Errorf("expected 1 success, got %v", v)
	}
	if v := testutil.ToFloat64(metrics.StorageOperationsTotal.WithLabelValues("save_role", "sqlite3", "error")); v != 1 {
		t.Errorf("expected 1 error, got %v", v)
	}
	if v := testutil.ToFloat64(metrics.StorageErrorsTotal.WithLabelValues("save_role", "sqlite3", "duplicate_name")); v != 1 {
		t.Errorf("expected 1 duplicate_name error, got %v", v)
	}
}

func TestMetrics_RecordDBStats(t *testing.T) {
	metrics := NewMetrics(prometheus.NewRegistry())

	metrics.RecordDBStats(sql.DBStats{OpenConnections: 5, InUse: 2, Idle: 3, WaitCount: 7})

	if v := testutil.ToFloat64(metrics.DBConnectionsOpen); v != 5 {
		t.Errorf("expected 5 open connections, got %v", v)
	}
	if v := testutil.ToFloat64(metrics.DBConnectionsInUse); v != 2 {
		t.Errorf("expected 2 in use, got %v", v)
	}
	if v := testutil.ToFloat64(metrics.DBConnectionsIdle); v != 3 {
		t.Errorf("expected 3 idle, got %v", v)
	}
	if v := testutil.ToFloat64(metrics.DBConnectionsWaitCount); v != 7 {
		t.Errorf("expected wait count 7, got %v", v)
	}
}

func TestMetrics_RedisAndInventory(t *testing.T) {
	metrics := NewMetrics(prometheus.NewRegistry())

	metrics.ObserveRedisCommand("hget", nil, time.Millisecond)
	metrics.ObserveRedisCommand("hget", errors.New("timeout"), time.Millisecond)
	metrics.SetInventory(12, 3)

	if v := testutil.ToFloat64(metrics.RedisCommandsTotal.WithLabelValues("hget", "error")); v != 1 {
		t.Errorf("expected 1 failed hget, got %v", v)
	}
	if v := testutil.ToFloat64(metrics.PermissionsTotal); v != 12 {
		t.Errorf("expected 12 permissions, got %v", v)
	}
	if v := testutil.ToFloat64(metrics.RolesTotal); v != 3 {
		t.Errorf("expected 3 roles, got %v", v)
	}
}

func TestResponseWriter(t *testing.T) {
	rec := httptest.NewRecorder()
	rw := &responseWriter{ResponseWriter: rec, statusCode: http.StatusOK}

	rw.WriteHeader(http.StatusCreated)
	n, err := rw.Write([]byte("hello"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if rw.statusCode != http.StatusCreated {
		t.Errorf("expected status 201, got %d", rw.statusCode)
	}
	if n != 5 || rw.bytesWritten != 5 {
		t.Errorf("expected 5 bytes written, got %d/%d", n, rw.bytesWritten)
	}
}

func TestHTTPMetricsMiddleware(t *testing.T) {
	t.Run("labels requests with the route template", func(t *testing.T) {
		metrics := NewMetrics(prometheus.NewRegistry())

		router := mux.NewRouter()
		router.Use(HTTPMetricsMiddleware(metrics))
		router.HandleFunc("/v1/roles/{name}", func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte("OK"))
		}).Methods("GET")

		for _, name := range []string{"editor", "viewer"} {
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, httptest.NewRequest("GET", "/v1/roles/"+name, nil))
		}

		expected := `
# HELP gatekeeper_http_requests_total Total number of HTTP requests
# TYPE gatekeeper_http_requests_total counter
gatekeeper_http_requests_total{method="GET",route="/v1/roles/{name}",status="200"} 2
`
		if err := testutil.CollectAndCompare(metrics.HTTPRequestsTotal, strings.NewReader(expected)); err != nil {
			t.Errorf("unexpected counter value: %v", err)
		}
	})

	t.Run("unrouted handler", func(t *testing.T) {
		metrics := NewMetrics(prometheus.NewRegistry())

		handler := HTTPMetricsMiddleware(metrics)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		}))
		handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/nowhere", nil))

		if v := testutil.ToFloat64(metrics.HTTPRequestsTotal.WithLabelValues("GET", "unmatched", "404")); v != 1 {
			t.Errorf("expected 1 unmatched request, got %v", v)
		}
	})
}

func TestRegisterMetricsEndpoint(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := NewMetrics(registry)
	metrics.SetInventory(42, 1)

	serveMux := http.NewServeMux()
	RegisterMetricsEndpoint(serveMux, registry)

	rec := httptest.NewRecorder()
	serveMux.ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Errorf("expected status code %d, got %d", http.StatusOK, rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "gatekeeper_permissions_total 42") {
		t.Error("expected gatekeeper_permissions_total 42 in metrics output")
	}
}
