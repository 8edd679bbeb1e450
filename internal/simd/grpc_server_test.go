package simd

import (
	"context"
	"net"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/GoSim-25-26J-441/adequacy-core/internal/cluster"
	"github.com/GoSim-25-26J-441/adequacy-core/internal/engine"
	"github.com/GoSim-25-26J-441/adequacy-core/pkg/models"
)

func startGRPC(t *testing.T, gather *cluster.GatherServer) *grpc.ClientConn {
	t.Helper()
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv, _ := NewGRPCServer(gather)
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	conn, err := grpc.NewClient(lis.Addr().String(), grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func TestGRPCServerHealth(t *testing.T) {
	conn := startGRPC(t, cluster.NewGatherServer(nil, ""))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	resp, err := healthpb.NewHealthClient(conn).Check(ctx, &healthpb.HealthCheckRequest{Service: GatherServiceName})
	if err != nil {
		t.Fatalf("health check: %v", err)
	}
	if resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		t.Fatalf("status = %v, want SERVING", resp.GetStatus())
	}
}

func TestGRPCServerDistributedRun(t *testing.T) {
	gather := cluster.NewGatherServer(nil, "")
	conn := startGRPC(t, gather)

	runs := NewRunStore()
	exec := NewRunExecutor(runs, ExecutorOptions{Gather: gather})
	t.Cleanup(exec.Wait)

	if _, err := runs.Create(RunRequest{RunID: "dist", Config: loadTestConfig(t, quickConfigYAML), HostedWorkers: []int{0}}); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := exec.Start("dist"); err != nil {
		t.Fatalf("Start: %v", err)
	}

	remote, err := engine.New(loadTestConfig(t, quickConfigYAML), engine.Options{
		RunID:    "dist",
		Workers:  []int{1},
		Gatherer: cluster.NewRemoteGather(conn, 2, "dist"),
	})
	if err != nil {
		t.Fatalf("engine.New: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	res, err := remote.Run(ctx)
	if err != nil {
		t.Fatalf("remote worker: %v", err)
	}
	if res != nil {
		t.Fatalf("remote worker should not produce a result")
	}

	waitDone(t, exec, "dist")
	rec, _ := runs.Get("dist")
	if got := rec.Run().Status; got != models.RunStatusCompleted {
		t.Fatalf("status = %s, want completed (error %q)", got, rec.Run().Error)
	}
	full, ok := rec.Result()
	if !ok {
		t.Fatalf("expected result on the coordinator")
	}
	if full.Samples != 6 {
		t.Fatalf("Samples = %d, want 6", full.Samples)
	}
}

func TestGRPCServerDistributedRunNeedsGather(t *testing.T) {
	runs := NewRunStore()
	exec := NewRunExecutor(runs, ExecutorOptions{})
	if _, err := runs.Create(RunRequest{RunID: "dist", Config: loadTestConfig(t, quickConfigYAML), HostedWorkers: []int{0}}); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := exec.Start("dist"); err == nil {
		t.Fatalf("expected an error without a gather service")
	}
}
