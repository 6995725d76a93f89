// Package rpcwire supplies the wire codec for the data-node RPC surface:
// a msgpack encoding.Codec registered with gRPC in place of the protobuf
// codec, since no .proto definitions are supplied and the wire framing
// itself is out of scope (spec.md §6 "RPC surface").
package rpcwire

import (
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
	"google.golang.org/grpc/encoding"
)

// Name is the codec name negotiated over the wire; gRPC selects a codec
// by this string as the content-subtype ("application/grpc+msgpack"),
// which clients request with grpc.CallContentSubtype(Name).
const Name = "msgpack"

// Codec implements google.golang.org/grpc/encoding.Codec over msgpack.
type Codec struct{}

func (Codec) Marshal(v any) ([]byte, error) {
	data, err := msgpack.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("rpcwire: marshal: %w", err)
	}
	return data, nil
}

func (Codec) Unmarshal(data []byte, v any) error {
	if err := msgpack.Unmarshal(data, v); err != nil {
		return fmt.Errorf("rpcwire: unmarshal: %w", err)
	}
	return nil
}

func (Codec) Name() string { return Name }

// Register adds the msgpack codec to gRPC's codec registry under Name;
// a call uses it only when it carries that content-subtype. Call once at
// startup, before any client dial or server Serve.
func Register() {
	encoding.RegisterCodec(Codec{})
}
