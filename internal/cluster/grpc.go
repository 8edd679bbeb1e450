package cluster

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/GoSim-25-26J-441/adequacy-core/pkg/logger"
)

const (
	gatherServiceName = "adequacy.v1.GatherService"
	gatherMethod      = "/" + gatherServiceName + "/Gather"
)

type gatherService interface {
	Gather(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
}

func gatherHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(gatherService).Gather(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: gatherMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(gatherService).Gather(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

// Messages are google.protobuf.Struct values:
//
//	request:  {session: string, round: number, worker: number, values: [number]}
//	response: {parts: [[number]]}
var gatherServiceDesc = grpc.ServiceDesc{
	ServiceName: gatherServiceName,
	HandlerType: (*gatherService)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Gather", Handler: gatherHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "adequacy/v1/gather.proto",
}

// GatherServer exposes one or more Gatherers to remote workers. Each
// barrier is addressed by a session id.
type GatherServer struct {
	mu       sync.RWMutex
	sessions map[string]Gatherer
}

// NewGatherServer serves g under session. An empty session accepts requests
// for any session that has no barrier of its own. g may be nil for a server
// populated later through Add.
func NewGatherServer(g Gatherer, session string) *GatherServer {
	s := &GatherServer{sessions: make(map[string]Gatherer)}
	if g != nil {
		s.sessions[session] = g
	}
	return s
}

// Add serves g under session, replacing any earlier barrier
func (s *GatherServer) Add(session string, g Gatherer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[session] = g
}

// Remove stops serving session
func (s *GatherServer) Remove(session string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, session)
}

func (s *GatherServer) lookup(session string) (Gatherer, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if g, ok := s.sessions[session]; ok {
		return g, true
	}
	g, ok := s.sessions[""]
	return g, ok
}

// RegisterGatherServer registers srv on s
func RegisterGatherServer(s grpc.ServiceRegistrar, srv *GatherServer) {
	s.RegisterService(&gatherServiceDesc, srv)
}

func (s *GatherServer) Gather(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	if req == nil {
		return nil, status.Error(codes.InvalidArgument, "request is required")
	}
	fields := req.GetFields()
	session := fields["session"].GetStringValue()
	g, ok := s.lookup(session)
	if !ok {
		return nil, status.Errorf(codes.FailedPrecondition, "unknown session %q", session)
	}
	round := int(fields["round"].GetNumberValue())
	worker := int(fields["worker"].GetNumberValue())
	values := numbers(fields["values"].GetListValue())

	parts, err := g.Gather(ctx, round, worker, values)
	if err != nil {
		logger.Warn("gather failed", "worker", worker, "round", round, "error", err)
		return nil, toStatus(err)
	}

	list := make([]*structpb.Value, len(parts))
	for i, p := range parts {
		list[i] = structpb.NewListValue(numberList(p))
	}
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		"parts": structpb.NewListValue(&structpb.ListValue{Values: list}),
	}}, nil
}

// RemoteGather is a Gatherer client for a GatherServer.
type RemoteGather struct {
	cc      grpc.ClientConnInterface
	size    int
	session string
}

// NewRemoteGather creates a client for a barrier of size workers
func NewRemoteGather(cc grpc.ClientConnInterface, size int, session string) *RemoteGather {
	return &RemoteGather{cc: cc, size: size, session: session}
}

// Size returns the number of workers
func (r *RemoteGather) Size() int { return r.size }

// Gather implements Gatherer. The call waits for the server to become reachable.
func (r *RemoteGather) Gather(ctx context.Context, round, worker int, values []float64) ([][]float64, error) {
	req := &structpb.Struct{Fields: map[string]*structpb.Value{
		"session": structpb.NewStringValue(r.session),
		"round":   structpb.NewNumberValue(float64(round)),
		"worker":  structpb.NewNumberValue(float64(worker)),
		"values":  structpb.NewListValue(numberList(values)),
	}}
	resp := new(structpb.Struct)
	if err := r.cc.Invoke(ctx, gatherMethod, req, resp, grpc.WaitForReady(true)); err != nil {
		return nil, fromStatus(err)
	}

	raw := resp.GetFields()["parts"].GetListValue().GetValues()
	parts := make([][]float64, len(raw))
	for i, v := range raw {
		parts[i] = numbers(v.GetListValue())
	}
	if len(parts) != r.size {
		return nil, fmt.Errorf("%w: got %d parts, expected %d", ErrWorkerMismatch, len(parts), r.size)
	}
	return parts, nil
}

func numberList(v []float64) *structpb.ListValue {
	out := &structpb.ListValue{Values: make([]*structpb.Value, len(v))}
	for i, x := range v {
		out.Values[i] = structpb.NewNumberValue(x)
	}
	return out
}

func numbers(l *structpb.ListValue) []float64 {
	vals := l.GetValues()
	out := make([]float64, len(vals))
	for i, v := range vals {
		out[i] = v.GetNumberValue()
	}
	return out
}

func toStatus(err error) error {
	switch {
	case errors.Is(err, ErrWorkerMismatch):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, ErrRoundMismatch):
		return status.Error(codes.Aborted, err.Error())
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	}
	return status.Error(codes.Internal, err.Error())
}

func fromStatus(err error) error {
	st, ok := status.FromError(err)
	if !ok {
		return err
	}
	switch st.Code() {
	case codes.InvalidArgument:
		return fmt.Errorf("%w: %s", ErrWorkerMismatch, st.Message())
	case codes.Aborted:
		return fmt.Errorf("%w: %s", ErrRoundMismatch, st.Message())
	case codes.Canceled:
		return fmt.Errorf("%w: %s", context.Canceled, st.Message())
	case codes.DeadlineExceeded:
		return fmt.Errorf("%w: %s", context.DeadlineExceeded, st.Message())
	}
	return err
}
