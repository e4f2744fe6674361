package grpc

import (
	"context"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aescanero/dago-direct/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/test/bufconn"
)

type stateBox struct{ v atomic.Value }

func newStateBox(s domain.RunState) *stateBox {
	b := &stateBox{}
	b.v.Store(s)
	return b
}

func (b *stateBox) State() domain.RunState { return b.v.Load().(domain.RunState) }
func (b *stateBox) set(s domain.RunState)  { b.v.Store(s) }

func startServer(t *testing.T, engine StateSource) (*Server, healthpb.HealthClient) {
	t.Helper()
	lis := bufconn.Listen(1 << 20)

	s, err := NewServer(&Config{
		Listener:     lis,
		Engine:       engine,
		PollInterval: 5 * time.Millisecond,
		Logger:       zaptest.NewLogger(t),
	})
	require.NoError(t, err)

	go func() { _ = s.Start() }()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = s.Shutdown(ctx)
	})

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	return s, healthpb.NewHealthClient(conn)
}

func check(t *testing.T, client healthpb.HealthClient) healthpb.HealthCheckResponse_ServingStatus {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	resp, err := client.Check(ctx, &healthpb.HealthCheckRequest{Service: ServiceName})
	require.NoError(t, err)
	return resp.GetStatus()
}

func TestServer_SetRunState(t *testing.T) {
	s, client := startServer(t, nil)

	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, check(t, client))

	s.SetRunState(domain.RunStateFailed)
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, check(t, client))

	s.SetRunState(domain.RunStateIdle)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, check(t, client))
}

func TestServer_Track(t *testing.T) {
	engine := newStateBox(domain.RunStateRunning)
	s, client := startServer(t, engine)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Track(ctx)

	engine.set(domain.RunStateFailed)
	assert.Eventually(t, func() bool {
		return check(t, client) == healthpb.HealthCheckResponse_NOT_SERVING
	}, 2*time.Second, 10*time.Millisecond)

	engine.set(domain.RunStateCompleted)
	assert.Eventually(t, func() bool {
		return check(t, client) == healthpb.HealthCheckResponse_SERVING
	}, 2*time.Second, 10*time.Millisecond)
}

func TestServer_TrackWithoutEngineReturns(t *testing.T) {
	s, _ := startServer(t, nil)

	done := make(chan struct{})
	go func() {
		s.Track(context.Background())
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Track without an engine should return immediately")
	}
}
