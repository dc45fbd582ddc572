package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"market-streamer/src/grpc_control"
	"market-streamer/src/logger"
	"market-streamer/src/server"

	"github.com/spf13/cobra"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/encoding/protojson"
)

const retentionEvery = 24 * time.Hour

// -----------------------------------------------------------------------------

func newServeCommand(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the REST API, the quote websocket hub and the gRPC health and control services",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setupApp(*configPath)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return startServers(ctx, a)
		},
	}
}

// -----------------------------------------------------------------------------

// startServers runs every server until ctx ends or one of them fails.
func startServers(ctx context.Context, a *app) error {
	cfg := a.Config.MConfig

	health := grpc_control.NewHealthServer(cfg, logger.NewLogger(cfg, "HealthService"))
	srv := server.NewFastAPIServer(cfg, a.Service, logger.NewLogger(cfg, "FastAPIServer"))
	health.RegisterControl(grpc_control.NewControlService(a.Service, logger.NewLogger(cfg, "ControlService")))
	a.Service.Health = health
	a.Service.Exchange = srv

	errs := make(chan error, 2)

	// 1. FastAPIServer
	go func() { errs <- srv.Start() }()

	// 2. gRPC health and control
	go func() { errs <- health.Start() }()

	// 3. Retention
	go a.Service.RunRetention(ctx, retentionEvery)

	var err error
	select {
	case <-ctx.Done():
		a.Logger.Info("Shutdown signal received")
	case err = <-errs:
		if err != nil {
			a.Logger.Error("Server failed: %v", err)
		}
	}

	if stopErr := srv.Stop(); stopErr != nil {
		a.Logger.Warning("HTTP shutdown: %v", stopErr)
	}
	health.Stop()
	a.Logger.Info("Shutdown complete.")
	return err
}

// -----------------------------------------------------------------------------

func newStatusCommand(configPath *string) *cobra.Command {
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Ask a running server for its status over the gRPC control service",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			conf, err := loadConfig(*configPath)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}

			host := conf.GrpcHost
			if host == "" || host == "0.0.0.0" {
				host = "127.0.0.1"
			}
			addr := fmt.Sprintf("%s:%d", host, conf.GrpcPort)
			conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
			if err != nil {
				return err
			}
			defer conn.Close()

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			resp, err := grpc_control.NewControlClient(conn).GetStatus(ctx)
			if err != nil {
				return fmt.Errorf("status from %s: %w", addr, err)
			}
			out, err := protojson.MarshalOptions{Multiline: true}.Marshal(resp)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(out))
			return nil
		},
	}

	cmd.Flags().DurationVar(&timeout, "timeout", 5*time.Second, "how long to wait for the server")
	return cmd
}
