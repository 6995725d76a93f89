package rpcserver

import (
	"testing"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"datanode/internal/dataerr"
)

func TestToGRPCStatusMapsKinds(t *testing.T) {
	cases := map[dataerr.Kind]codes.Code{
		dataerr.NoSuchChunk:          codes.NotFound,
		dataerr.NoSuchBlock:          codes.NotFound,
		dataerr.SessionAlreadyExists: codes.AlreadyExists,
		dataerr.Unavailable:          codes.Unavailable,
		dataerr.ResourceOverdraft:    codes.ResourceExhausted,
		dataerr.IncarnationMismatch:  codes.FailedPrecondition,
		dataerr.IOError:              codes.Internal,
	}
	for kind, want := range cases {
		err := toGRPCStatus(dataerr.New(kind, "test"))
		if got := status.Code(err); got != want {
			t.Fatalf("kind %v: got code %v, want %v", kind, got, want)
		}
	}
}

func TestDataNodeServiceDescListsAllMethods(t *testing.T) {
	want := []string{
		"StartChunk", "FinishChunk", "CancelChunk", "PingSession", "PutBlocks",
		"SendBlocks", "FlushBlocks", "GetBlockSet", "GetBlockRange", "GetChunkMeta",
		"GetTableSamples", "GetChunkSplits", "PrecacheChunk", "UpdatePeer",
	}
	if len(dataNodeServiceDesc.Methods) != len(want) {
		t.Fatalf("got %d methods, want %d", len(dataNodeServiceDesc.Methods), len(want))
	}
	names := make(map[string]bool, len(dataNodeServiceDesc.Methods))
	for _, m := range dataNodeServiceDesc.Methods {
		names[m.MethodName] = true
	}
	for _, w := range want {
		if !names[w] {
			t.Fatalf("missing method %q in ServiceDesc", w)
		}
	}
}
