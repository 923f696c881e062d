package pb

import "github.com/gogo/protobuf/proto"

// encodeVarint and decodeVarint wrap gogo/protobuf's byte-level varint
// codec so every message type in this package encodes/decodes fields
// identically. They deliberately stop short of proto.Marshal/
// proto.Unmarshal: those dispatch back to a type's own Marshal/
// Unmarshal methods when it satisfies proto.Marshaler/Unmarshaler,
// which Entry does, so calling them from Entry.Marshal/Unmarshal would
// recurse forever.
func encodeVarint(v uint64) []byte {
	return proto.EncodeVarint(v)
}

func decodeVarint(data []byte) (uint64, int) {
	return proto.DecodeVarint(data)
}
