package simd

import (
	"context"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/GoSim-25-26J-441/adequacy-core/internal/cluster"
	"github.com/GoSim-25-26J-441/adequacy-core/pkg/logger"
)

// GatherServiceName is the health-check name of the gather service
const GatherServiceName = "adequacy.v1.GatherService"

// NewGRPCServer builds the daemon's gRPC server. It hosts the gather
// barriers of distributed runs and the standard health service.
func NewGRPCServer(gather *cluster.GatherServer, opts ...grpc.ServerOption) (*grpc.Server, *health.Server) {
	opts = append([]grpc.ServerOption{grpc.ChainUnaryInterceptor(logUnary)}, opts...)
	srv := grpc.NewServer(opts...)
	cluster.RegisterGatherServer(srv, gather)

	hs := health.NewServer()
	hs.SetServingStatus(GatherServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(srv, hs)
	return srv, hs
}

// logUnary logs every unary call at debug level
func logUnary(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	start := time.Now()
	resp, err := handler(ctx, req)
	if err != nil {
		logger.Debug("grpc call failed", "method", info.FullMethod, "duration", time.Since(start), "error", err)
	} else {
		logger.Debug("grpc call", "method", info.FullMethod, "duration", time.Since(start))
	}
	return resp, err
}
