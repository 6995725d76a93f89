package masterconn

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"

	"datanode/internal/rpcwire"
)

const masterServiceName = "datanode.v1.MasterService"

// leaseRequest/leaseResponse and pingLeaseRequest/pingLeaseResponse are
// the wire payloads for GRPCClient's lease calls. Register, Heartbeat and
// JobHeartbeat send the connector's own RegisterRequest, HeartbeatRequest
// and JobHeartbeatRequest types on the wire unchanged.
type leaseRequest struct {
	CellTag uint16
}

type leaseResponse struct {
	LeaseID string
}

type pingLeaseRequest struct {
	CellTag uint16
	LeaseID string
}

type pingLeaseResponse struct{}

// GRPCClient implements MasterClient over a hand-registered gRPC service,
// the same msgpack-codec approach internal/rpcserver uses for the node's
// own RPC surface (no .proto/codegen available — see SPEC_FULL.md §1).
type GRPCClient struct {
	conn *grpc.ClientConn
}

var _ MasterClient = (*GRPCClient)(nil)

// Dial connects to a master cell at addr. If creds is nil, the
// connection is unencrypted (only appropriate for local testing).
func Dial(addr string, creds credentials.TransportCredentials) (*GRPCClient, error) {
	rpcwire.Register()

	if creds == nil {
		creds = insecure.NewCredentials()
	}
	conn, err := grpc.NewClient(addr,
		grpc.WithTransportCredentials(creds),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype(rpcwire.Name)),
	)
	if err != nil {
		return nil, fmt.Errorf("masterconn: dial %s: %w", addr, err)
	}
	return &GRPCClient{conn: conn}, nil
}

func (c *GRPCClient) Close() error { return c.conn.Close() }

func (c *GRPCClient) AcquireLease(ctx context.Context, cellTag uint16) (string, error) {
	resp := &leaseResponse{}
	if err := c.conn.Invoke(ctx, "/"+masterServiceName+"/AcquireLease", &leaseRequest{CellTag: cellTag}, resp); err != nil {
		return "", fmt.Errorf("masterconn: AcquireLease: %w", err)
	}
	return resp.LeaseID, nil
}

func (c *GRPCClient) PingLease(ctx context.Context, cellTag uint16, leaseID string) error {
	resp := &pingLeaseResponse{}
	req := &pingLeaseRequest{CellTag: cellTag, LeaseID: leaseID}
	if err := c.conn.Invoke(ctx, "/"+masterServiceName+"/PingLease", req, resp); err != nil {
		return fmt.Errorf("masterconn: PingLease: %w", err)
	}
	return nil
}

func (c *GRPCClient) Register(ctx context.Context, req RegisterRequest) (RegisterResponse, error) {
	resp := &RegisterResponse{}
	if err := c.conn.Invoke(ctx, "/"+masterServiceName+"/Register", &req, resp); err != nil {
		return RegisterResponse{}, fmt.Errorf("masterconn: Register: %w", err)
	}
	return *resp, nil
}

func (c *GRPCClient) Heartbeat(ctx context.Context, req HeartbeatRequest) (HeartbeatResponse, error) {
	resp := &HeartbeatResponse{}
	if err := c.conn.Invoke(ctx, "/"+masterServiceName+"/Heartbeat", &req, resp); err != nil {
		return HeartbeatResponse{}, fmt.Errorf("masterconn: Heartbeat: %w", err)
	}
	return *resp, nil
}

func (c *GRPCClient) JobHeartbeat(ctx context.Context, req JobHeartbeatRequest) error {
	resp := &struct{}{}
	if err := c.conn.Invoke(ctx, "/"+masterServiceName+"/JobHeartbeat", &req, resp); err != nil {
		return fmt.Errorf("masterconn: JobHeartbeat: %w", err)
	}
	return nil
}
