package masterconn

import (
	"context"
	"net"
	"testing"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"datanode/internal/rpcwire"
)

// fakeMasterServer backs the in-process listener grpcClient tests dial
// against; it returns canned responses so these tests exercise the
// wire-level request/response plumbing of GRPCClient without needing a
// real master process.
type fakeMasterServer struct {
	lastRegister     RegisterRequest
	lastHeartbeat    HeartbeatRequest
	lastJobHeartbeat JobHeartbeatRequest
}

func genericUnaryHandler[Req any, Resp any](call func(context.Context, *Req) (*Resp, error)) func(any, context.Context, func(any) error, grpc.UnaryServerInterceptor) (any, error) {
	return func(srv any, ctx context.Context, dec func(any) error, _ grpc.UnaryServerInterceptor) (any, error) {
		req := new(Req)
		if err := dec(req); err != nil {
			return nil, err
		}
		return call(ctx, req)
	}
}

func (s *fakeMasterServer) serviceDesc() grpc.ServiceDesc {
	return grpc.ServiceDesc{
		ServiceName: masterServiceName,
		HandlerType: (*any)(nil),
		Methods: []grpc.MethodDesc{
			{MethodName: "AcquireLease", Handler: genericUnaryHandler(func(_ context.Context, req *leaseRequest) (*leaseResponse, error) {
				return &leaseResponse{LeaseID: "lease-1"}, nil
			})},
			{MethodName: "PingLease", Handler: genericUnaryHandler(func(_ context.Context, req *pingLeaseRequest) (*pingLeaseResponse, error) {
				return &pingLeaseResponse{}, nil
			})},
			{MethodName: "Register", Handler: genericUnaryHandler(func(_ context.Context, req *RegisterRequest) (*RegisterResponse, error) {
				s.lastRegister = *req
				return &RegisterResponse{NodeID: "node-1", Incarnation: 7}, nil
			})},
			{MethodName: "Heartbeat", Handler: genericUnaryHandler(func(_ context.Context, req *HeartbeatRequest) (*HeartbeatResponse, error) {
				s.lastHeartbeat = *req
				return &HeartbeatResponse{IncarnationMismatch: false}, nil
			})},
			{MethodName: "JobHeartbeat", Handler: genericUnaryHandler(func(_ context.Context, req *JobHeartbeatRequest) (*struct{}, error) {
				s.lastJobHeartbeat = *req
				return &struct{}{}, nil
			})},
		},
	}
}

func startFakeMaster(t *testing.T) (addr string, fake *fakeMasterServer, stop func()) {
	t.Helper()
	rpcwire.Register()

	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	fake = &fakeMasterServer{}
	srv := grpc.NewServer()
	desc := fake.serviceDesc()
	srv.RegisterService(&desc, fake)

	go func() { _ = srv.Serve(lis) }()

	return lis.Addr().String(), fake, func() {
		srv.Stop()
		_ = lis.Close()
	}
}

func TestGRPCClientRoundTrips(t *testing.T) {
	addr, fake, stop := startFakeMaster(t)
	defer stop()

	client, err := Dial(addr, insecure.NewCredentials())
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer client.Close()

	ctx := context.Background()

	leaseID, err := client.AcquireLease(ctx, 3)
	if err != nil {
		t.Fatalf("AcquireLease: %v", err)
	}
	if leaseID != "lease-1" {
		t.Fatalf("got lease %q, want lease-1", leaseID)
	}

	if err := client.PingLease(ctx, 3, leaseID); err != nil {
		t.Fatalf("PingLease: %v", err)
	}

	regResp, err := client.Register(ctx, RegisterRequest{CellTag: 3, LeaseID: leaseID, Addresses: []string{"10.0.0.1:9"}})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if regResp.NodeID != "node-1" || regResp.Incarnation != 7 {
		t.Fatalf("got %+v, want node-1/7", regResp)
	}
	if fake.lastRegister.CellTag != 3 {
		t.Fatalf("server saw CellTag %d, want 3", fake.lastRegister.CellTag)
	}

	hbResp, err := client.Heartbeat(ctx, HeartbeatRequest{CellTag: 3, NodeID: "node-1", Full: true})
	if err != nil {
		t.Fatalf("Heartbeat: %v", err)
	}
	if hbResp.IncarnationMismatch {
		t.Fatal("unexpected incarnation mismatch")
	}
	if !fake.lastHeartbeat.Full {
		t.Fatal("server did not see Full=true")
	}

	if err := client.JobHeartbeat(ctx, JobHeartbeatRequest{CellTag: 3, NodeID: "node-1"}); err != nil {
		t.Fatalf("JobHeartbeat: %v", err)
	}
	if fake.lastJobHeartbeat.NodeID != "node-1" {
		t.Fatalf("server saw NodeID %q, want node-1", fake.lastJobHeartbeat.NodeID)
	}
}
