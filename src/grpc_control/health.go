package grpc_control

import (
	"fmt"
	"net"

	"market-streamer/src/logger"
	"market-streamer/src/models"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// Health service names, one per event type streamed.
const (
	FeedService   = "market_streamer.Feed"
	CandleService = "market_streamer.Feed.Candle"
	QuoteService  = "market_streamer.Feed.Quote"
)

// HealthServer owns the gRPC listener. It exposes the standard health protocol, where
// the feed services start UNKNOWN and follow the outcome of the latest streaming
// session, and optionally the Control service.
type HealthServer struct {
	Config *models.MConfig
	Logger *logger.Logger

	server *grpc.Server
	health *health.Server
}

// -----------------------------------------------------------------------------

func NewHealthServer(cfg *models.MConfig, log *logger.Logger) *HealthServer {
	if log == nil {
		log = logger.NewNopLogger()
	}

	hs := health.NewServer()
	for _, svc := range []string{FeedService, CandleService, QuoteService} {
		hs.SetServingStatus(svc, healthpb.HealthCheckResponse_UNKNOWN)
	}

	srv := grpc.NewServer()
	healthpb.RegisterHealthServer(srv, hs)
	reflection.Register(srv)

	return &HealthServer{
		Config: cfg,
		Logger: log,
		server: srv,
		health: hs,
	}
}

// -----------------------------------------------------------------------------

// ReportSession marks the feed SERVING after a clean session and NOT_SERVING after
// a failed one.
func (h *HealthServer) ReportSession(report models.MSessionReport) {
	status := healthpb.HealthCheckResponse_SERVING
	if report.Error != "" {
		status = healthpb.HealthCheckResponse_NOT_SERVING
	}

	h.health.SetServingStatus(FeedService, status)
	switch report.EventType {
	case "Candle":
		h.health.SetServingStatus(CandleService, status)
	case "Quote":
		h.health.SetServingStatus(QuoteService, status)
	}

	h.Logger.Debug("health %s (%s session %s: %s)", status, report.EventType, report.SessionID, report.Completion)
}

// -----------------------------------------------------------------------------

// RegisterControl adds the Control service. It must be called before Start or Serve.
func (h *HealthServer) RegisterControl(svc ControlServer) {
	RegisterControlServer(h.server, svc)
}

// -----------------------------------------------------------------------------

// Start listens on grpc_host:grpc_port and blocks until Stop.
func (h *HealthServer) Start() error {
	addr := fmt.Sprintf("%s:%d", h.Config.GrpcHost, h.Config.GrpcPort)
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	h.Logger.Info("gRPC server listening on %s", addr)
	return h.Serve(lis)
}

// Serve blocks serving on lis.
func (h *HealthServer) Serve(lis net.Listener) error {
	return h.server.Serve(lis)
}

func (h *HealthServer) Stop() {
	h.health.Shutdown()
	h.server.GracefulStop()
}
