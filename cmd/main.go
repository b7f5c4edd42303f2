package main

import (
	"context"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/rs/zerolog/log"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	grpcapi "github.com/TinoTau/lingua-1-sub000/internal/api/grpc"
	"github.com/TinoTau/lingua-1-sub000/internal/app"
	"github.com/TinoTau/lingua-1-sub000/internal/config"
	httpapi "github.com/TinoTau/lingua-1-sub000/internal/http"
	"github.com/TinoTau/lingua-1-sub000/internal/observability"
	"github.com/TinoTau/lingua-1-sub000/internal/observability/logging"
	"github.com/TinoTau/lingua-1-sub000/internal/observability/metrics"
)

func main() {
	cfg := config.Load()

	logCfg := logging.DefaultConfig()
	logCfg.Level = cfg.Observability.LogLevel
	logCfg.Format = cfg.Observability.LogFormat
	logging.Init(logCfg)

	if cfg.Observability.SentryDSN != "" {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:         cfg.Observability.SentryDSN,
			Environment: cfg.Observability.Environment,
			ServerName:  cfg.Service.Principal,
		}); err != nil {
			log.Error().Err(err).Msg("Sentry initialization failed")
		}
		defer sentry.Flush(2 * time.Second)
	}

	application, err := app.New(cfg)
	if err != nil {
		fatal(err, "failed to build application")
	}
	if err := application.Start(); err != nil {
		fatal(err, "failed to start application")
	}

	lis, err := net.Listen("tcp", ":"+cfg.Service.GRPCPort)
	if err != nil {
		fatal(err, "failed to listen")
	}

	m := metrics.DefaultMetrics
	server := grpc.NewServer(
		grpc.ChainUnaryInterceptor(
			observability.RecoveryUnaryInterceptor(m),
			observability.UnaryServerInterceptor(m),
		),
		grpc.ChainStreamInterceptor(observability.StreamServerInterceptor(m)),
	)

	// Register gRPC health check service
	healthServer := health.NewServer()
	grpc_health_v1.RegisterHealthServer(server, healthServer)
	healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)
	healthServer.SetServingStatus(grpcapi.ServiceName, grpc_health_v1.HealthCheckResponse_SERVING)

	grpcapi.Register(server, application.Handler)

	// Enable gRPC reflection for debugging tools like grpcurl
	reflection.Register(server)

	go func() {
		log.Info().Str("port", cfg.Service.GRPCPort).Msg("Lingua aggregator gRPC server started")
		if err := server.Serve(lis); err != nil {
			fatal(err, "grpc serve failed")
		}
	}()

	httpServer := httpapi.NewServer(cfg.Service.HTTPAddr, httpapi.NewRouter(application))
	httpServer.Start()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	log.Info().Msg("Shutting down")
	healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_NOT_SERVING)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("HTTP shutdown failed")
	}
	server.GracefulStop()
	application.Shutdown()
}

func fatal(err error, msg string) {
	sentry.CaptureException(err)
	sentry.Flush(2 * time.Second)
	log.Fatal().Err(err).Msg(msg)
}
