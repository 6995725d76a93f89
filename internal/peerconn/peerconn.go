// Package peerconn implements chunkbody.PeerSender: the tree-push
// replication call a write session uses to forward already-written
// blocks to a downstream peer data node (spec §4.5 "sendBlocks").
//
// Peers are addressed by their RPC addr string, the same one each node
// advertises to the master in its Register call, and are dialed over
// the node's own RPC surface (internal/rpcserver's PutBlocks method) —
// a peer data node looks exactly like a master to the codec/transport
// layer, grounded on internal/masterconn/grpcclient.go's client-wrapper
// pattern (hand-registered gRPC, no .proto available).
package peerconn

import (
	"context"
	"fmt"
	"sync"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"

	"datanode/internal/chunkid"
	"datanode/internal/rpcwire"
)

const dataNodeServiceName = "datanode.v1.DataNodeService"

type putBlocksRequest struct {
	ChunkID    chunkid.ID
	FirstIndex int
	Blocks     [][]byte
}

type putBlocksResponse struct{}

// Pool dials peer data nodes on demand, by RPC address, and caches the
// resulting connections for reuse across sessions.
type Pool struct {
	creds credentials.TransportCredentials

	mu    sync.Mutex
	conns map[string]*grpc.ClientConn
}

// NewPool builds a peer connection pool. A nil creds dials peers
// unencrypted, only appropriate for local/single-host testing.
func NewPool(creds credentials.TransportCredentials) *Pool {
	return &Pool{creds: creds, conns: make(map[string]*grpc.ClientConn)}
}

func (p *Pool) conn(target string) (*grpc.ClientConn, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if c, ok := p.conns[target]; ok {
		return c, nil
	}

	rpcwire.Register()
	creds := p.creds
	if creds == nil {
		creds = insecure.NewCredentials()
	}
	c, err := grpc.NewClient(target,
		grpc.WithTransportCredentials(creds),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype(rpcwire.Name)),
	)
	if err != nil {
		return nil, fmt.Errorf("peerconn: dial %s: %w", target, err)
	}
	p.conns[target] = c
	return c, nil
}

// SendBlocks implements chunkbody.PeerSender by invoking the target
// peer's own PutBlocks RPC.
func (p *Pool) SendBlocks(ctx context.Context, target string, id chunkid.ID, first, count int, blocks [][]byte) error {
	conn, err := p.conn(target)
	if err != nil {
		return err
	}

	req := &putBlocksRequest{ChunkID: id, FirstIndex: first, Blocks: blocks}
	resp := &putBlocksResponse{}
	if err := conn.Invoke(ctx, "/"+dataNodeServiceName+"/PutBlocks", req, resp); err != nil {
		return fmt.Errorf("peerconn: PutBlocks to %s: %w", target, err)
	}
	return nil
}

// Close tears down every cached peer connection.
func (p *Pool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var firstErr error
	for target, c := range p.conns {
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("peerconn: close %s: %w", target, err)
		}
	}
	return firstErr
}
