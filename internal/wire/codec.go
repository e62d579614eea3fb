package wire

import (
	"encoding/binary"
	"errors"
)

// Decode error kinds (§4.A, §7 Protocol errors).
var (
	// ErrInsufficientData means the buffer does not yet hold a complete
	// frame; the caller should wait for more bytes and retry.
	ErrInsufficientData = errors.New("wire: insufficient data")
	// ErrInvalidMessage means the frame is complete but its tag or shape is
	// not one the codec understands.
	ErrInvalidMessage = errors.New("wire: invalid message")
	// ErrMalformed means the frame is complete but internally inconsistent
	// (e.g. a declared length that does not match the decoded length).
	ErrMalformed = errors.New("wire: malformed frame")
)

// MaxFrameLen is the largest payload length a frame may declare (§6: the
// 16-bit length field must stay under 65,536).
const MaxFrameLen = 1<<16 - 1

// Encode renders a full frame — 2-byte big-endian payload length followed by
// the tagged payload — for m.
func Encode(m Message) []byte {
	var payload []byte
	payload = appendUvarint(payload, uint64(m.Kind()))

	switch msg := m.(type) {
	case ClientReady:
		payload = appendStringList(payload, msg.CachedModules)
		payload = appendUint32(payload, msg.FreeRAMBytes)
	case ServerTask:
		payload = appendUint64(payload, msg.TaskID)
		payload = appendModuleDescriptor(payload, msg.Module)
		payload = appendUvarint(payload, uint64(len(msg.Params)))
		for _, v := range msg.Params {
			var err error
			payload, err = encodeValue(payload, v)
			if err != nil {
				panic(err) // caller-constructed Value with an invalid Kind
			}
		}
	case ServerModule:
		payload = appendUint64(payload, msg.TaskID)
		payload = appendUint32(payload, msg.ChunkIndex)
		payload = appendBytes(payload, msg.Data)
	case ClientAck:
		payload = appendUint64(payload, msg.TaskID)
		payload = append(payload, byte(msg.Info.Kind))
		switch msg.Info.Kind {
		case AckInfoTask:
			payload = appendStringList(payload, msg.Info.CachedModules)
		case AckInfoModule:
			payload = appendUint32(payload, msg.Info.ChunkIndex)
			payload = appendBool(payload, msg.Info.Success)
		}
	case ClientResult:
		payload = appendUint64(payload, msg.TaskID)
		payload = appendUvarint(payload, uint64(len(msg.Results)))
		for _, v := range msg.Results {
			var err error
			payload, err = encodeValue(payload, v)
			if err != nil {
				panic(err)
			}
		}
	case ServerAck:
		payload = appendUint64(payload, msg.TaskID)
		payload = appendBool(payload, msg.Success)
	case Heartbeat:
		payload = appendUint64(payload, uint64(msg.TimestampNanos))
	default:
		panic("wire: unknown message type")
	}

	frame := make([]byte, 2+len(payload))
	binary.BigEndian.PutUint16(frame, uint16(len(payload)))
	copy(frame[2:], payload)
	return frame
}

// Decode reads one frame from the front of buf. On success it returns the
// decoded message and the number of bytes consumed (2 + payload length); the
// caller advances its buffer by that amount and may call Decode again on the
// remainder. ErrInsufficientData means buf does not yet hold a whole frame
// and must never be treated as a parse failure — the bytes are left intact.
func Decode(buf []byte) (Message, int, error) {
	if len(buf) < 2 {
		return nil, 0, ErrInsufficientData
	}
	length := int(binary.BigEndian.Uint16(buf))
	if length > MaxFrameLen {
		return nil, 0, ErrInvalidMessage
	}
	total := 2 + length
	if len(buf) < total {
		return nil, 0, ErrInsufficientData
	}
	payload := buf[2:total]

	kind, n, err := readUvarint(payload)
	if err != nil {
		return nil, 0, ErrMalformed
	}
	rest := payload[n:]

	msg, consumed, err := decodePayload(Kind(kind), rest)
	if err == ErrInsufficientData {
		// The whole frame is present, so a payload that runs short is
		// malformed rather than incomplete.
		return nil, 0, ErrMalformed
	}
	if err != nil {
		return nil, 0, err
	}
	if n+consumed != length {
		return nil, 0, ErrMalformed
	}
	return msg, total, nil
}

func decodePayload(kind Kind, b []byte) (Message, int, error) {
	start := len(b)
	switch kind {
	case KindClientReady:
		modules, b2, err := readStringList(b)
		if err != nil {
			return nil, 0, err
		}
		ram, b3, err := readUint32(b2)
		if err != nil {
			return nil, 0, err
		}
		return ClientReady{CachedModules: modules, FreeRAMBytes: ram}, start - len(b3), nil

	case KindServerTask:
		taskID, b2, err := readUint64(b)
		if err != nil {
			return nil, 0, err
		}
		desc, b3, err := readModuleDescriptor(b2)
		if err != nil {
			return nil, 0, err
		}
		count, n, err := readUvarint(b3)
		if err != nil {
			return nil, 0, err
		}
		b4 := b3[n:]
		params := make([]Value, 0, count)
		for i := uint64(0); i < count; i++ {
			v, n, err := decodeValue(b4)
			if err != nil {
				return nil, 0, err
			}
			params = append(params, v)
			b4 = b4[n:]
		}
		return ServerTask{TaskID: taskID, Module: desc, Params: params}, start - len(b4), nil

	case KindServerModule:
		taskID, b2, err := readUint64(b)
		if err != nil {
			return nil, 0, err
		}
		idx, b3, err := readUint32(b2)
		if err != nil {
			return nil, 0, err
		}
		data, b4, err := readBytes(b3)
		if err != nil {
			return nil, 0, err
		}
		return ServerModule{TaskID: taskID, ChunkIndex: idx, Data: data}, start - len(b4), nil

	case KindClientAck:
		taskID, b2, err := readUint64(b)
		if err != nil {
			return nil, 0, err
		}
		if len(b2) < 1 {
			return nil, 0, ErrInsufficientData
		}
		infoKind := AckInfoKind(b2[0])
		b3 := b2[1:]
		info := AckInfo{Kind: infoKind}
		switch infoKind {
		case AckInfoTask:
			modules, b4, err := readStringList(b3)
			if err != nil {
				return nil, 0, err
			}
			info.CachedModules = modules
			b3 = b4
		case AckInfoModule:
			idx, b4, err := readUint32(b3)
			if err != nil {
				return nil, 0, err
			}
			success, b5, err := readBool(b4)
			if err != nil {
				return nil, 0, err
			}
			info.ChunkIndex = idx
			info.Success = success
			b3 = b5
		default:
			return nil, 0, ErrInvalidMessage
		}
		return ClientAck{TaskID: taskID, Info: info}, start - len(b3), nil

	case KindClientResult:
		taskID, b2, err := readUint64(b)
		if err != nil {
			return nil, 0, err
		}
		count, n, err := readUvarint(b2)
		if err != nil {
			return nil, 0, err
		}
		b3 := b2[n:]
		results := make([]Value, 0, count)
		for i := uint64(0); i < count; i++ {
			v, n, err := decodeValue(b3)
			if err != nil {
				return nil, 0, err
			}
			results = append(results, v)
			b3 = b3[n:]
		}
		return ClientResult{TaskID: taskID, Results: results}, start - len(b3), nil

	case KindServerAck:
		taskID, b2, err := readUint64(b)
		if err != nil {
			return nil, 0, err
		}
		success, b3, err := readBool(b2)
		if err != nil {
			return nil, 0, err
		}
		return ServerAck{TaskID: taskID, Success: success}, start - len(b3), nil

	case KindHeartbeat:
		ts, b2, err := readUint64(b)
		if err != nil {
			return nil, 0, err
		}
		return Heartbeat{TimestampNanos: int64(ts)}, start - len(b2), nil

	default:
		return nil, 0, ErrInvalidMessage
	}
}
