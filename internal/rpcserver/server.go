package rpcserver

import (
	"fmt"
	"log/slog"
	"net"
	"time"

	"google.golang.org/grpc"

	"datanode/internal/logging"
	"datanode/internal/rpcwire"
)

// Host binds the data-node RPC listen port and serves the
// hand-registered DataNodeService.
type Host struct {
	listener net.Listener
	grpcSrv  *grpc.Server
	logger   *slog.Logger
}

// NewHost binds addr and wires srv behind it. Registers the msgpack
// codec globally (see internal/rpcwire) before accepting connections.
func NewHost(addr string, srv *Server, opts []grpc.ServerOption, logger *slog.Logger) (*Host, error) {
	rpcwire.Register()

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("rpcserver: listen %s: %w", addr, err)
	}

	gs := grpc.NewServer(opts...)
	RegisterDataNodeService(gs, srv)

	return &Host{listener: ln, grpcSrv: gs, logger: logging.Default(logger).With("component", "rpcserver")}, nil
}

// Serve blocks accepting connections until Stop is called.
func (h *Host) Serve() error {
	h.logger.Info("data-node RPC server starting", "addr", h.listener.Addr().String())
	return h.grpcSrv.Serve(h.listener)
}

// Addr returns the bound listen address.
func (h *Host) Addr() string {
	return h.listener.Addr().String()
}

// Stop gracefully stops the server, forcing a hard stop after timeout.
func (h *Host) Stop(timeout time.Duration) {
	done := make(chan struct{})
	go func() {
		h.grpcSrv.GracefulStop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(timeout):
		h.logger.Warn("rpcserver: graceful stop timed out, forcing")
		h.grpcSrv.Stop()
	}
}
