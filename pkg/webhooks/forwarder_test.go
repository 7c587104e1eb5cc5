package webhooks

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/gatekeeper/pkg/audit"
)

type receivedRequest struct {
	header http.Header
	body   []byte
}

type receiver struct {
	mu       sync.Mutex
	requests []receivedRequest
	statuses []int
}

func (r *receiver) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	body, _ := io.ReadAll(req.Body)

	r.mu.Lock()
	r.requests = append(r.requests, receivedRequest{header: req.Header.Clone(), body: body})
	status := http.StatusOK
	if len(r.statuses) > 0 {
		status = r.statuses[0]
		r.statuses = r.statuses[1:]
	}
	r.mu.Unlock()

	w.WriteHeader(status)
}

func (r *receiver) received() []receivedRequest {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]receivedRequest(nil), r.requests...)
}

func newForwarder(t *testing.T, url string, mutate func(*Config)) *Forwarder {
	t.Helper()
	cfg := Config{
		URL:     url,
		Workers: 1,
		Timeout: 5 * time.Second,
		Retry: RetryConfig{
			MaxAttempts:  3,
			InitialDelay: time.Millisecond,
			MaxDelay:     5 * time.Millisecond,
		},
	}
	if mutate != nil {
		mutate(&cfg)
	}
	fwd, err := NewForwarder(context.Background(), cfg, nil)
	require.NoError(t, err)
	return fwd
}

func TestConfigValidate(t *testing.T) {
	assert.Error(t, Config{}.Validate())
	assert.Error(t, Config{URL: "http://example.com", Workers: -1}.Validate())
	assert.NoError(t, Config{URL: "http://example.com"}.Validate())

	_, err := NewForwarder(context.Background(), Config{}, nil)
	assert.Error(t, err)
}

func TestForwarder_DeliversSignedEvents(t *testing.T) {
	recv := &receiver{}
	server := httptest.NewServer(recv)
	defer server.Close()

	fwd := newForwarder(t, server.URL, func(c *Config) { c.Secret = "s3cret" })

	event := audit.NewEvent(context.Background(), audit.EventTypeGrantRoleAssign, audit.EventStatusSuccess)
	event.ResourceName = "User:42"
	require.NoError(t, fwd.Log(context.Background(), event))
	require.NoError(t, fwd.Close())

	requests := recv.received()
	require.Len(t, requests, 1)

	got := requests[0]
	assert.Equal(t, "application/json", got.header.Get("Content-Type"))
	assert.Equal(t, string(audit.EventTypeGrantRoleAssign), got.header.Get(HeaderEvent))
	assert.Equal(t, event.ID, got.header.Get(HeaderEventID))
	assert.NotEmpty(t, got.header.Get(HeaderDelivery))
	assert.True(t, VerifySignature(got.body, got.header.Get(HeaderSignature), "s3cret"))
	assert.False(t, VerifySignature(got.body, got.header.Get(HeaderSignature), "other"))

	decoded, err := audit.FromJSON(got.body)
	require.NoError(t, err)
	assert.Equal(t, "User:42", decoded.ResourceName)

	assert.Equal(t, DeliveryStats{Delivered: 1}, fwd.Stats())
}

func TestForwarder_UnsignedWithoutSecret(t *testing.T) {
	recv := &receiver{}
	server := httptest.NewServer(recv)
	defer server.Close()

	fwd := newForwarder(t, server.URL, nil)
	require.NoError(t, fwd.Log(context.Background(), audit.NewEvent(context.Background(), audit.EventTypeAdminRoleCreate, audit.EventStatusSuccess)))
	require.NoError(t, fwd.Close())

	requests := recv.received()
	require.Len(t, requests, 1)
	assert.Empty(t, requests[0].header.Get(HeaderSignature))
}

func TestForwarder_RetriesTransientFailures(t *testing.T) {
	recv := &receiver{statuses: []int{http.StatusServiceUnavailable, http.StatusTooManyRequests}}
	server := httptest.NewServer(recv)
	defer server.Close()

	fwd := newForwarder(t, server.URL, nil)
	require.NoError(t, fwd.Log(context.Background(), audit.NewEvent(context.Background(), audit.EventTypeAdminPermissionCreate, audit.EventStatusSuccess)))
	require.NoError(t, fwd.Close())

	assert.Len(t, recv.received(), 3)
	assert.Equal(t, DeliveryStats{Delivered: 1, Retries: 2}, fwd.Stats())
}

func TestForwarder_GivesUpAfterMaxAttempts(t *testing.T) {
	recv := &receiver{statuses: []int{500, 500, 500, 500}}
	server := httptest.NewServer(recv)
	defer server.Close()

	fwd := newForwarder(t, server.URL, nil)
	require.NoError(t, fwd.Log(context.Background(), audit.NewEvent(context.Background(), audit.EventTypeAdminRoleDelete, audit.EventStatusSuccess)))
	require.NoError(t, fwd.Close())

	assert.Len(t, recv.received(), 3)
	assert.Equal(t, DeliveryStats{Failed: 1, Retries: 2}, fwd.Stats())
}

func TestForwarder_ClientErrorsAreFinal(t *testing.T) {
	recv := &receiver{statuses: []int{http.StatusBadRequest}}
	server := httptest.NewServer(recv)
	defer server.Close()

	fwd := newForwarder(t, server.URL, nil)
	require.NoError(t, fwd.Log(context.Background(), audit.NewEvent(context.Background(), audit.EventTypeAdminRoleUpdate, audit.EventStatusSuccess)))
	require.NoError(t, fwd.Close())

	assert.Len(t, recv.received(), 1)
	assert.Equal(t, DeliveryStats{Failed: 1}, fwd.Stats())
}

func TestForwarder_FiltersEventTypes(t *testing.T) {
	recv := &receiver{}
	server := httptest.NewServer(recv)
	defer server.Close()

	fwd := newForwarder(t, server.URL, func(c *Config) {
		c.Events = []audit.EventType{audit.EventTypeAuthzAccessDenied}
	})

	ctx := context.Background()
	require.NoError(t, fwd.Log(ctx, audit.NewEvent(ctx, audit.EventTypeAuthzPermissionCheck, audit.EventStatusSuccess)))
	require.NoError(t, fwd.Log(ctx, audit.NewEvent(ctx, audit.EventTypeAuthzAccessDenied, audit.EventStatusDenied)))
	require.NoError(t, fwd.Close())

	requests := recv.received()
	require.Len(t, requests, 1)
	assert.Equal(t, string(audit.EventTypeAuthzAccessDenied), requests[0].header.Get(HeaderEvent))
	assert.Equal(t, DeliveryStats{Delivered: 1, Filtered: 1}, fwd.Stats())
}

func TestForwarder_LogAfterClose(t *testing.T) {
	fwd := newForwarder(t, "http://127.0.0.1:1", nil)
	require.NoError(t, fwd.Close())

	err := fwd.Log(context.Background(), audit.NewEvent(context.Background(), audit.EventTypeAdminRoleCreate, audit.EventStatusSuccess))
	assert.Error(t, err)
}

func TestSign(t *testing.T) {
	sig := Sign([]byte(`{"id":"1"}`), "key")
	assert.Regexp(t, `^sha256=[0-9a-f]{64}$`, sig)
	assert.Equal(t, sig, Sign([]byte(`{"id":"1"}`), "key"))
	assert.NotEqual(t, sig, Sign([]byte(`{"id":"2"}`), "key"))
}
