package rpcserver

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"go.opentelemetry.io/otel"
	otelcodes "go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"datanode/internal/dataerr"
)

// tracer spans every RPC handler below by its full method name, so a
// trace shows where time went across a chunk lifecycle (StartChunk ->
// PutBlocks -> FinishChunk) and across peer fan-out (SendBlocks).
var tracer = otel.Tracer("datanode/rpcserver")

// dataNodeServiceServer is the interface the gRPC runtime type-checks
// Server against when RegisterDataNodeService runs.
type dataNodeServiceServer interface {
	startChunk(context.Context, *StartChunkRequest) (*StartChunkResponse, error)
	finishChunk(context.Context, *FinishChunkRequest) (*FinishChunkResponse, error)
	cancelChunk(context.Context, *CancelChunkRequest) (*CancelChunkResponse, error)
	pingSession(context.Context, *PingSessionRequest) (*PingSessionResponse, error)
	putBlocks(context.Context, *PutBlocksRequest) (*PutBlocksResponse, error)
	sendBlocks(context.Context, *SendBlocksRequest) (*SendBlocksResponse, error)
	flushBlocks(context.Context, *FlushBlocksRequest) (*FlushBlocksResponse, error)
	getBlockSet(context.Context, *GetBlockSetRequest) (*GetBlockSetResponse, error)
	getBlockRange(context.Context, *GetBlockRangeRequest) (*GetBlockRangeResponse, error)
	getChunkMeta(context.Context, *GetChunkMetaRequest) (*GetChunkMetaResponse, error)
	getTableSamples(context.Context, *GetTableSamplesRequest) (*GetTableSamplesResponse, error)
	getChunkSplits(context.Context, *GetChunkSplitsRequest) (*GetChunkSplitsResponse, error)
	precacheChunk(context.Context, *PrecacheChunkRequest) (*PrecacheChunkResponse, error)
	updatePeer(context.Context, *UpdatePeerRequest) (*UpdatePeerResponse, error)
}

// dataNodeServiceDesc is hand-registered rather than generated by
// protoc-gen-go-grpc: spec.md places the RPC wire framing itself out of
// scope, so there is no .proto to generate from (method names and
// codec are still stable per spec §6).
var dataNodeServiceDesc = grpc.ServiceDesc{
	ServiceName: "datanode.v1.DataNodeService",
	HandlerType: (*dataNodeServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "StartChunk", Handler: startChunkHandler},
		{MethodName: "FinishChunk", Handler: finishChunkHandler},
		{MethodName: "CancelChunk", Handler: cancelChunkHandler},
		{MethodName: "PingSession", Handler: pingSessionHandler},
		{MethodName: "PutBlocks", Handler: putBlocksHandler},
		{MethodName: "SendBlocks", Handler: sendBlocksHandler},
		{MethodName: "FlushBlocks", Handler: flushBlocksHandler},
		{MethodName: "GetBlockSet", Handler: getBlockSetHandler},
		{MethodName: "GetBlockRange", Handler: getBlockRangeHandler},
		{MethodName: "GetChunkMeta", Handler: getChunkMetaHandler},
		{MethodName: "GetTableSamples", Handler: getTableSamplesHandler},
		{MethodName: "GetChunkSplits", Handler: getChunkSplitsHandler},
		{MethodName: "PrecacheChunk", Handler: precacheChunkHandler},
		{MethodName: "UpdatePeer", Handler: updatePeerHandler},
	},
}

func unaryHandler[Req any, Resp any](fullMethod string, call func(*Server, context.Context, *Req) (*Resp, error)) func(any, context.Context, func(any) error, grpc.UnaryServerInterceptor) (any, error) {
	traced := func(s *Server, ctx context.Context, req *Req) (*Resp, error) {
		ctx, span := tracer.Start(ctx, fullMethod, trace.WithSpanKind(trace.SpanKindServer))
		defer span.End()
		resp, err := call(s, ctx, req)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(otelcodes.Error, err.Error())
		}
		return resp, err
	}
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		req := new(Req)
		if err := dec(req); err != nil {
			return nil, err
		}
		s := srv.(*Server)
		if interceptor == nil {
			return toGRPCResult(traced(s, ctx, req))
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req any) (any, error) {
			return toGRPCResult(traced(s, ctx, req.(*Req)))
		}
		return interceptor(ctx, req, info, handler)
	}
}

func toGRPCResult[Resp any](resp *Resp, err error) (any, error) {
	if err != nil {
		return nil, toGRPCStatus(err)
	}
	return resp, nil
}

// toGRPCStatus maps a dataerr.Kind to the gRPC status code clients
// expect (spec §7 error kinds, applied at the RPC boundary only).
func toGRPCStatus(err error) error {
	kind := dataerr.KindOf(err)
	var code codes.Code
	switch kind {
	case dataerr.NoSuchChunk, dataerr.NoSuchBlock:
		code = codes.NotFound
	case dataerr.SessionAlreadyExists, dataerr.ChunkAlreadyExists:
		code = codes.AlreadyExists
	case dataerr.Unavailable:
		code = codes.Unavailable
	case dataerr.ResourceOverdraft, dataerr.NodeResourceOvercommit:
		code = codes.ResourceExhausted
	case dataerr.IncarnationMismatch:
		code = codes.FailedPrecondition
	case dataerr.IOError:
		code = codes.Internal
	default:
		code = codes.Unknown
	}
	return status.Error(code, err.Error())
}

var (
	startChunkHandler       = unaryHandler[StartChunkRequest, StartChunkResponse]("/datanode.v1.DataNodeService/StartChunk", (*Server).startChunk)
	finishChunkHandler      = unaryHandler[FinishChunkRequest, FinishChunkResponse]("/datanode.v1.DataNodeService/FinishChunk", (*Server).finishChunk)
	cancelChunkHandler      = unaryHandler[CancelChunkRequest, CancelChunkResponse]("/datanode.v1.DataNodeService/CancelChunk", (*Server).cancelChunk)
	pingSessionHandler      = unaryHandler[PingSessionRequest, PingSessionResponse]("/datanode.v1.DataNodeService/PingSession", (*Server).pingSession)
	putBlocksHandler        = unaryHandler[PutBlocksRequest, PutBlocksResponse]("/datanode.v1.DataNodeService/PutBlocks", (*Server).putBlocks)
	sendBlocksHandler       = unaryHandler[SendBlocksRequest, SendBlocksResponse]("/datanode.v1.DataNodeService/SendBlocks", (*Server).sendBlocks)
	flushBlocksHandler      = unaryHandler[FlushBlocksRequest, FlushBlocksResponse]("/datanode.v1.DataNodeService/FlushBlocks", (*Server).flushBlocks)
	getBlockSetHandler      = unaryHandler[GetBlockSetRequest, GetBlockSetResponse]("/datanode.v1.DataNodeService/GetBlockSet", (*Server).getBlockSet)
	getBlockRangeHandler    = unaryHandler[GetBlockRangeRequest, GetBlockRangeResponse]("/datanode.v1.DataNodeService/GetBlockRange", (*Server).getBlockRange)
	getChunkMetaHandler     = unaryHandler[GetChunkMetaRequest, GetChunkMetaResponse]("/datanode.v1.DataNodeService/GetChunkMeta", (*Server).getChunkMeta)
	getTableSamplesHandler  = unaryHandler[GetTableSamplesRequest, GetTableSamplesResponse]("/datanode.v1.DataNodeService/GetTableSamples", (*Server).getTableSamples)
	getChunkSplitsHandler   = unaryHandler[GetChunkSplitsRequest, GetChunkSplitsResponse]("/datanode.v1.DataNodeService/GetChunkSplits", (*Server).getChunkSplits)
	precacheChunkHandler    = unaryHandler[PrecacheChunkRequest, PrecacheChunkResponse]("/datanode.v1.DataNodeService/PrecacheChunk", (*Server).precacheChunk)
	updatePeerHandler       = unaryHandler[UpdatePeerRequest, UpdatePeerResponse]("/datanode.v1.DataNodeService/UpdatePeer", (*Server).updatePeer)
)

// RegisterDataNodeService registers srv's handlers against gs, mirroring
// the teacher's hand-registered cluster service pattern.
func RegisterDataNodeService(gs *grpc.Server, srv *Server) {
	gs.RegisterService(&dataNodeServiceDesc, srv)
}
