// Package pb holds the wire types the save queue persists. The
// teacher's own raftproto types (e.g. raftTransport/msg_codec.go's
// raftproto.Message) are generated by protoc-gen-gogofaster, which
// emits real field-level Marshal/Unmarshal bodies rather than routing
// through gogo/protobuf's reflection-based proto.Marshal. Entry follows
// the same shape by hand, since no .proto pipeline runs here.
package pb

import "fmt"

// Entry is one record of the replicated log: spec.md's
// (term, index, payload) tuple.
type Entry struct {
	Term  uint64 `protobuf:"varint,1,opt,name=term,proto3" json:"term,omitempty"`
	Index uint64 `protobuf:"varint,2,opt,name=index,proto3" json:"index,omitempty"`
	Data  []byte `protobuf:"bytes,3,opt,name=data,proto3" json:"data,omitempty"`
}

func (e *Entry) Reset()         { *e = Entry{} }
func (e *Entry) String() string { return fmt.Sprintf("Entry{Term:%d Index:%d len(Data):%d}", e.Term, e.Index, len(e.Data)) }
func (*Entry) ProtoMessage()    {}

const (
	entryTermTag  = 1<<3 | 0 // field 1, varint
	entryIndexTag = 2<<3 | 0 // field 2, varint
	entryDataTag  = 3<<3 | 2 // field 3, length-delimited
)

// Marshal serializes e field-by-field in proto3 wire format, omitting
// zero-value fields the way generated proto3 code does.
func (e *Entry) Marshal() ([]byte, error) {
	var buf []byte
	if e.Term != 0 {
		buf = append(buf, entryTermTag)
		buf = append(buf, encodeVarint(e.Term)...)
	}
	if e.Index != 0 {
		buf = append(buf, entryIndexTag)
		buf = append(buf, encodeVarint(e.Index)...)
	}
	if len(e.Data) > 0 {
		buf = append(buf, entryDataTag)
		buf = append(buf, encodeVarint(uint64(len(e.Data)))...)
		buf = append(buf, e.Data...)
	}
	return buf, nil
}

// Unmarshal decodes data produced by Marshal into e, resetting e first.
func (e *Entry) Unmarshal(data []byte) error {
	*e = Entry{}
	for len(data) > 0 {
		tag, n := decodeVarint(data)
		if n == 0 {
			return fmt.Errorf("pb: Entry: invalid tag")
		}
		data = data[n:]
		fieldNum, wireType := tag>>3, tag&0x7

		switch fieldNum {
		case 1, 2:
			if wireType != 0 {
				return fmt.Errorf("pb: Entry: field %d: unexpected wire type %d", fieldNum, wireType)
			}
			v, n := decodeVarint(data)
			if n == 0 {
				return fmt.Errorf("pb: Entry: field %d: truncated varint", fieldNum)
			}
			data = data[n:]
			if fieldNum == 1 {
				e.Term = v
			} else {
				e.Index = v
			}
		case 3:
			if wireType != 2 {
				return fmt.Errorf("pb: Entry: field 3: unexpected wire type %d", wireType)
			}
			l, n := decodeVarint(data)
			if n == 0 {
				return fmt.Errorf("pb: Entry: field 3: truncated length")
			}
			data = data[n:]
			if uint64(len(data)) < l {
				return fmt.Errorf("pb: Entry: field 3: truncated payload")
			}
			e.Data = append([]byte(nil), data[:l]...)
			data = data[l:]
		default:
			return fmt.Errorf("pb: Entry: unknown field %d", fieldNum)
		}
	}
	return nil
}

// Equal reports whether e and other carry the same term, index and
// payload bytes. The append handler's overwrite-detection path does not
// use it: that path compares payload bytes only.
func (e *Entry) Equal(other *Entry) bool {
	if e == nil || other == nil {
		return e == other
	}
	if e.Term != other.Term || e.Index != other.Index || len(e.Data) != len(other.Data) {
		return false
	}
	for i := range e.Data {
		if e.Data[i] != other.Data[i] {
			return false
		}
	}
	return true
}
