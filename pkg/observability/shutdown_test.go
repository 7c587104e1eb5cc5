package observability

import (
	"context"
	"errors"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewShutdownManager(t *testing.T) {
	sm := NewShutdownManager(nil, 0)
	assert.Equal(t, 30*time.Second, sm.shutdownTimeout)
	assert.NotNil(t, sm.logger)
	assert.Empty(t, sm.shutdownFuncs)

	sm = NewShutdownManager(NewNopLogger(), 5*time.Second, &http.Server{}, &http.Server{})
	assert.Equal(t, 5*time.Second, sm.shutdownTimeout)
	assert.Len(t, sm.servers, 2)
}

func TestRegisterShutdownFunc_IgnoresNil(t *testing.T) {
	sm := NewShutdownManager(nil, time.Second)
	sm.RegisterShutdownFunc(nil)
	assert.Empty(t, sm.shutdownFuncs)
}

func TestShutdown_RunsFunctionsInReverseOrder(t *testing.T) {
	sm := NewShutdownManager(nil, time.Second)

	var order []int
	for i := 0; i < 3; i++ {
		i := i
		sm.RegisterShutdownFunc(func(ctx context.Context) error {
			order = append(order, i)
			return nil
		})
	}

	require.NoError(t, sm.Shutdown())
	assert.Equal(t, []int{2, 1, 0}, order)
}

func TestShutdown_CollectsErrors(t *testing.T) {
	sm := NewShutdownManager(nil, time.Second)
	first := errors.New("close store")
	sm.RegisterShutdownFunc(func(ctx context.Context) error { return first })
	sm.RegisterShutdownFunc(func(ctx context.Context) error { return nil })

	err := sm.Shutdown()
	require.Error(t, err)
	assert.ErrorIs(t, err, first)
	assert.Contains(t, err.Error(), "1 errors")
}

func TestShutdown_StopsServers(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	server := &http.Server{Handler: http.NotFoundHandler()}
	served := make(chan error, 1)
	go func() { served <- server.Serve(listener) }()

	sm := NewShutdownManager(nil, time.Second, server)
	require.NoError(t, sm.Shutdown())

	select {
	case err := <-served:
		assert.ErrorIs(t, err, http.ErrServerClosed)
	case <-time.After(2 * time.Second):
		t.Fatal("server did not stop")
	}
}

func TestWaitForShutdown_ContextDone(t *testing.T) {
	sm := NewShutdownManager(nil, time.Second)
	called := false
	sm.RegisterShutdownFunc(func(ctx context.Context) error {
		called = true
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.NoError(t, sm.WaitForShutdown(ctx))
	assert.True(t, called)
}
