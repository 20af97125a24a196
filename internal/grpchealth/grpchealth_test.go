package grpchealth

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

func startServer(t *testing.T) (*Server, string, context.CancelFunc, <-chan error) {
	t.Helper()
	logger, _ := test.NewNullLogger()
	srv := NewServer(logrus.NewEntry(logger))

	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, lis) }()
	return srv, lis.Addr().String(), cancel, done
}

func TestServingStatusFollowsSetServing(t *testing.T) {
	srv, addr, cancel, done := startServer(t)
	defer func() {
		cancel()
		<-done
	}()

	ctx, stop := context.WithTimeout(context.Background(), 5*time.Second)
	defer stop()

	status, err := Probe(ctx, addr, "")
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, status)

	srv.SetServing(true)
	for _, service := range []string{"", ServiceName} {
		status, err = Probe(ctx, addr, service)
		require.NoError(t, err)
		assert.Equal(t, healthpb.HealthCheckResponse_SERVING, status, service)
	}
}

func TestProbeUnknownService(t *testing.T) {
	_, addr, cancel, done := startServer(t)
	defer func() {
		cancel()
		<-done
	}()

	ctx, stop := context.WithTimeout(context.Background(), 5*time.Second)
	defer stop()

	_, err := Probe(ctx, addr, "nope")
	assert.Error(t, err)
}

func TestServeReturnsOnCancel(t *testing.T) {
	_, _, cancel, done := startServer(t)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
}
