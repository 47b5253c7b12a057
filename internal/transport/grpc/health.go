package grpc

import (
	"context"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	grpc_health_v1 "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// ServiceName is the health service name reported next to the overall "" status.
const ServiceName = "fulfillment.v1.Fulfillment"

type Pinger interface {
	Ping(ctx context.Context) error
}

// NewServer builds the gRPC server with health and reflection registered.
func NewServer(log *zap.Logger) (*grpc.Server, *health.Server) {
	srv := grpc.NewServer(
		grpc.ChainUnaryInterceptor(NewLoggingUnaryServerInterceptor(log)),
	)

	healthSrv := health.NewServer()
	healthSrv.SetServingStatus("", grpc_health_v1.HealthCheckResponse_NOT_SERVING)
	healthSrv.SetServingStatus(ServiceName, grpc_health_v1.HealthCheckResponse_NOT_SERVING)
	grpc_health_v1.RegisterHealthServer(srv, healthSrv)

	reflection.Register(srv)
	return srv, healthSrv
}

// WatchHealth mirrors database reachability into the health server until ctx ends.
func WatchHealth(ctx context.Context, hs *health.Server, db Pinger, every time.Duration, log *zap.Logger) {
	check := func() {
		status := grpc_health_v1.HealthCheckResponse_SERVING
		pctx, cancel := context.WithTimeout(ctx, every)
		err := db.Ping(pctx)
		cancel()
		if err != nil {
			log.Warn("database ping failed", zap.Error(err))
			status = grpc_health_v1.HealthCheckResponse_NOT_SERVING
		}
		hs.SetServingStatus("", status)
		hs.SetServingStatus(ServiceName, status)
	}

	check()
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			check()
		case <-ctx.Done():
			hs.Shutdown()
			return
		}
	}
}
