package cluster

import (
	"context"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

func startGatherServer(t *testing.T, g Gatherer, session string) *grpc.ClientConn {
	t.Helper()
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := grpc.NewServer()
	RegisterGatherServer(srv, NewGatherServer(g, session))
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	conn, err := grpc.NewClient(lis.Addr().String(), grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func TestRemoteGatherMixesLocalAndRemoteWorkers(t *testing.T) {
	local := NewLocalGather(3)
	conn := startGatherServer(t, local, "s1")
	remote := NewRemoteGather(conn, 3, "s1")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	results := make([][][]float64, 3)
	errs := make([]error, 3)
	var wg sync.WaitGroup
	for w := 0; w < 3; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			var g Gatherer = remote
			if w == 0 {
				g = local
			}
			results[w], errs[w] = g.Gather(ctx, 0, w, []float64{float64(w), 0.5})
		}(w)
	}
	wg.Wait()

	for w := 0; w < 3; w++ {
		if errs[w] != nil {
			t.Fatalf("worker %d: Gather() error = %v", w, errs[w])
		}
		if len(results[w]) != 3 {
			t.Fatalf("worker %d: got %d parts", w, len(results[w]))
		}
		for i, p := range results[w] {
			if len(p) != 2 || p[0] != float64(i) || p[1] != 0.5 {
				t.Fatalf("worker %d part %d = %v", w, i, p)
			}
		}
	}
}

func TestRemoteGatherMapsErrors(t *testing.T) {
	local := NewLocalGather(2)
	conn := startGatherServer(t, local, "")
	remote := NewRemoteGather(conn, 2, "")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := remote.Gather(ctx, 0, 7, nil); !errors.Is(err, ErrWorkerMismatch) {
		t.Fatalf("error = %v, want ErrWorkerMismatch", err)
	}
}

func TestRemoteGatherRejectsWrongSession(t *testing.T) {
	local := NewLocalGather(1)
	conn := startGatherServer(t, local, "right")
	remote := NewRemoteGather(conn, 1, "wrong")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err := remote.Gather(ctx, 0, 0, []float64{1})
	if err == nil {
		t.Fatal("expected session error")
	}
	if errors.Is(err, ErrWorkerMismatch) || errors.Is(err, ErrRoundMismatch) {
		t.Fatalf("error = %v, want plain status error", err)
	}
}

func TestGatherServerRoutesSessions(t *testing.T) {
	srv := NewGatherServer(nil, "")
	a, b := NewLocalGather(1), NewLocalGather(1)
	srv.Add("run-a", a)
	srv.Add("run-b", b)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req := func(session string, v float64) *structpb.Struct {
		return &structpb.Struct{Fields: map[string]*structpb.Value{
			"session": structpb.NewStringValue(session),
			"round":   structpb.NewNumberValue(0),
			"worker":  structpb.NewNumberValue(0),
			"values":  structpb.NewListValue(numberList([]float64{v})),
		}}
	}

	resp, err := srv.Gather(ctx, req("run-b", 2))
	if err != nil {
		t.Fatalf("Gather run-b: %v", err)
	}
	parts := resp.GetFields()["parts"].GetListValue().GetValues()
	if len(parts) != 1 || numbers(parts[0].GetListValue())[0] != 2 {
		t.Fatalf("unexpected parts: %v", parts)
	}

	srv.Remove("run-a")
	_, err = srv.Gather(ctx, req("run-a", 1))
	if status.Code(err) != codes.FailedPrecondition {
		t.Fatalf("code = %v, want FailedPrecondition", status.Code(err))
	}
}
