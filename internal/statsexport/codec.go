package statsexport

import "encoding/json"

// jsonCodec implements google.golang.org/grpc/encoding.Codec using
// encoding/json instead of protobuf wire encoding. Forcing this codec
// server-wide (grpc.ForceServerCodec) is what lets StreamStats carry
// plain Go structs (Empty, StatsSnapshot) instead of generated
// proto.Message types — the whole point of a codegen-free service.
type jsonCodec struct{}

func (jsonCodec) Marshal(v interface{}) ([]byte, error) {
	return json.Marshal(v)
}

func (jsonCodec) Unmarshal(data []byte, v interface{}) error {
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, v)
}

func (jsonCodec) Name() string {
	return "json"
}
