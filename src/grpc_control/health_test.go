package grpc_control

import (
	"context"
	"net"
	"testing"
	"time"

	"market-streamer/src/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/test/bufconn"
)

func startHealth(t *testing.T) (*HealthServer, healthpb.HealthClient) {
	t.Helper()

	h := NewHealthServer(&models.MConfig{}, nil)
	lis := bufconn.Listen(1 << 20)
	go func() { _ = h.Serve(lis) }()
	t.Cleanup(h.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.Dial() }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	return h, healthpb.NewHealthClient(conn)
}

func check(t *testing.T, client healthpb.HealthClient, service string) healthpb.HealthCheckResponse_ServingStatus {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	resp, err := client.Check(ctx, &healthpb.HealthCheckRequest{Service: service})
	require.NoError(t, err)
	return resp.GetStatus()
}

func TestHealthFollowsSessions(t *testing.T) {
	h, client := startHealth(t)

	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, check(t, client, ""))
	assert.Equal(t, healthpb.HealthCheckResponse_UNKNOWN, check(t, client, FeedService))

	h.ReportSession(models.MSessionReport{EventType: "Candle", Completion: "window_elapsed"})
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, check(t, client, FeedService))
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, check(t, client, CandleService))
	assert.Equal(t, healthpb.HealthCheckResponse_UNKNOWN, check(t, client, QuoteService))

	h.ReportSession(models.MSessionReport{EventType: "Quote", Completion: "failed", Error: "authorization rejected"})
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, check(t, client, FeedService))
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, check(t, client, QuoteService))
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, check(t, client, CandleService))
}
