// Package diagnosis — codec.go
//
// jsonCodec lets the diagnosis gRPC client exchange plain JSON messages
// instead of protobuf, avoiding a generated-stub dependency for a single
// best-effort unary call. Registered under subtype "json" and selected
// per-call with grpc.CallContentSubtype("json").

package diagnosis

import (
	"encoding/json"

	"google.golang.org/grpc/encoding"
)

const codecName = "json"

type jsonCodec struct{}

func (jsonCodec) Marshal(v any) ([]byte, error) {
	return json.Marshal(v)
}

func (jsonCodec) Unmarshal(data []byte, v any) error {
	return json.Unmarshal(data, v)
}

func (jsonCodec) Name() string {
	return codecName
}

func init() {
	encoding.RegisterCodec(jsonCodec{})
}
