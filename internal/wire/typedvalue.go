package wire

import (
	"encoding/binary"
	"fmt"
	"math"
)

// ValueKind is the executor ABI primitive tag (§3 Typed value).
type ValueKind uint8

const (
	ValueVoid ValueKind = 0
	ValueI32  ValueKind = 1
	ValueI64  ValueKind = 2
	ValueF32  ValueKind = 3
	ValueF64  ValueKind = 4
	ValueV128 ValueKind = 5
)

// Value is the tagged union of executor ABI primitives. Exactly one of the
// fields is meaningful, selected by Kind; callers use the constructors below
// rather than setting fields directly.
type Value struct {
	Kind ValueKind
	I32  int32
	I64  int64
	F32  float32
	F64  float64
	// V128 holds a 128-bit vector in little-endian byte order, matching the
	// executor's in-memory ABI.
	V128 [16]byte
}

// String renders v for logging and the inspector snapshot; it is not part
// of the wire format.
func (v Value) String() string {
	switch v.Kind {
	case ValueVoid:
		return "void"
	case ValueI32:
		return fmt.Sprintf("i32:%d", v.I32)
	case ValueI64:
		return fmt.Sprintf("i64:%d", v.I64)
	case ValueF32:
		return fmt.Sprintf("f32:%g", v.F32)
	case ValueF64:
		return fmt.Sprintf("f64:%g", v.F64)
	case ValueV128:
		return fmt.Sprintf("v128:%x", v.V128)
	default:
		return "unknown"
	}
}

func VoidValue() Value           { return Value{Kind: ValueVoid} }
func I32Value(v int32) Value     { return Value{Kind: ValueI32, I32: v} }
func I64Value(v int64) Value     { return Value{Kind: ValueI64, I64: v} }
func F32Value(v float32) Value   { return Value{Kind: ValueF32, F32: v} }
func F64Value(v float64) Value   { return Value{Kind: ValueF64, F64: v} }
func V128Value(v [16]byte) Value { return Value{Kind: ValueV128, V128: v} }

// wordCount returns the number of 4-byte words the value's kind occupies on
// the wire (§6: void=0, i32/f32=1, i64/f64=2, v128=4).
func (k ValueKind) wordCount() int {
	switch k {
	case ValueVoid:
		return 0
	case ValueI32, ValueF32:
		return 1
	case ValueI64, ValueF64:
		return 2
	case ValueV128:
		return 4
	default:
		return -1
	}
}

// encodeValue appends the 1-byte tag, 1-byte word count, and the value's
// big-endian words to buf.
func encodeValue(buf []byte, v Value) ([]byte, error) {
	n := v.Kind.wordCount()
	if n < 0 {
		return nil, ErrInvalidMessage
	}
	buf = append(buf, byte(v.Kind), byte(n))

	var words [4]uint32
	switch v.Kind {
	case ValueVoid:
		// no words
	case ValueI32:
		words[0] = uint32(v.I32)
	case ValueF32:
		words[0] = math.Float32bits(v.F32)
	case ValueI64:
		bits := uint64(v.I64)
		words[0] = uint32(bits >> 32)
		words[1] = uint32(bits)
	case ValueF64:
		bits := math.Float64bits(v.F64)
		words[0] = uint32(bits >> 32)
		words[1] = uint32(bits)
	case ValueV128:
		// The vector is little-endian internally; each 4-byte lane is read
		// out in little-endian order and its bit pattern written as one
		// big-endian wire word, lane 0 (least significant) first.
		for i := 0; i < 4; i++ {
			words[i] = binary.LittleEndian.Uint32(v.V128[i*4 : i*4+4])
		}
	}

	var wbuf [4]byte
	for i := 0; i < n; i++ {
		binary.BigEndian.PutUint32(wbuf[:], words[i])
		buf = append(buf, wbuf[:]...)
	}
	return buf, nil
}

// decodeValue reads one typed value from buf, returning the value and the
// number of bytes consumed.
func decodeValue(buf []byte) (Value, int, error) {
	if len(buf) < 2 {
		return Value{}, 0, ErrInsufficientData
	}
	kind := ValueKind(buf[0])
	wantWords := kind.wordCount()
	if wantWords < 0 {
		return Value{}, 0, ErrInvalidMessage
	}
	gotWords := int(buf[1])
	if gotWords != wantWords {
		return Value{}, 0, ErrMalformed
	}
	need := 2 + gotWords*4
	if len(buf) < need {
		return Value{}, 0, ErrInsufficientData
	}

	var words [4]uint32
	for i := 0; i < gotWords; i++ {
		words[i] = binary.BigEndian.Uint32(buf[2+i*4 : 2+i*4+4])
	}

	v := Value{Kind: kind}
	switch kind {
	case ValueVoid:
	case ValueI32:
		v.I32 = int32(words[0])
	case ValueF32:
		v.F32 = math.Float32frombits(words[0])
	case ValueI64:
		v.I64 = int64(uint64(words[0])<<32 | uint64(words[1]))
	case ValueF64:
		v.F64 = math.Float64frombits(uint64(words[0])<<32 | uint64(words[1]))
	case ValueV128:
		for i := 0; i < 4; i++ {
			binary.LittleEndian.PutUint32(v.V128[i*4:i*4+4], words[i])
		}
	}
	return v, need, nil
}
