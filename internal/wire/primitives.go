package wire

import "encoding/binary"

// appendUvarint appends v as a standard LEB128-style variable-length
// unsigned integer (§6: "variant tag encoded with variable-length integer").
func appendUvarint(buf []byte, v uint64) []byte {
	var tmp [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(tmp[:], v)
	return append(buf, tmp[:n]...)
}

func readUvarint(buf []byte) (uint64, int, error) {
	v, n := binary.Uvarint(buf)
	if n == 0 {
		return 0, 0, ErrInsufficientData
	}
	if n < 0 {
		return 0, 0, ErrMalformed
	}
	return v, n, nil
}

func appendUint32(buf []byte, v uint32) []byte {
	var tmp [4]byte
	binary.BigEndian.PutUint32(tmp[:], v)
	return append(buf, tmp[:]...)
}

func readUint32(buf []byte) (uint32, []byte, error) {
	if len(buf) < 4 {
		return 0, nil, ErrInsufficientData
	}
	return binary.BigEndian.Uint32(buf), buf[4:], nil
}

func appendUint64(buf []byte, v uint64) []byte {
	var tmp [8]byte
	binary.BigEndian.PutUint64(tmp[:], v)
	return append(buf, tmp[:]...)
}

func readUint64(buf []byte) (uint64, []byte, error) {
	if len(buf) < 8 {
		return 0, nil, ErrInsufficientData
	}
	return binary.BigEndian.Uint64(buf), buf[8:], nil
}

func appendBool(buf []byte, v bool) []byte {
	if v {
		return append(buf, 1)
	}
	return append(buf, 0)
}

func readBool(buf []byte) (bool, []byte, error) {
	if len(buf) < 1 {
		return false, nil, ErrInsufficientData
	}
	return buf[0] != 0, buf[1:], nil
}

// appendBytes writes a uint32-length-prefixed byte slice (chunk payloads can
// approach the chunk size, so a 32-bit length is used rather than 16-bit).
func appendBytes(buf []byte, data []byte) []byte {
	buf = appendUint32(buf, uint32(len(data)))
	return append(buf, data...)
}

func readBytes(buf []byte) ([]byte, []byte, error) {
	n, rest, err := readUint32(buf)
	if err != nil {
		return nil, nil, err
	}
	if uint32(len(rest)) < n {
		return nil, nil, ErrInsufficientData
	}
	data := make([]byte, n)
	copy(data, rest[:n])
	return data, rest[n:], nil
}

func appendString(buf []byte, s string) []byte {
	buf = appendUint32(buf, uint32(len(s)))
	return append(buf, s...)
}

func readString(buf []byte) (string, []byte, error) {
	n, rest, err := readUint32(buf)
	if err != nil {
		return "", nil, err
	}
	if uint32(len(rest)) < n {
		return "", nil, ErrInsufficientData
	}
	return string(rest[:n]), rest[n:], nil
}

// appendStringList writes a varint count followed by that many
// length-prefixed strings (§6: "nested collections length-prefixed").
func appendStringList(buf []byte, list []string) []byte {
	buf = appendUvarint(buf, uint64(len(list)))
	for _, s := range list {
		buf = appendString(buf, s)
	}
	return buf
}

func readStringList(buf []byte) ([]string, []byte, error) {
	count, n, err := readUvarint(buf)
	if err != nil {
		return nil, nil, err
	}
	rest := buf[n:]
	list := make([]string, 0, count)
	for i := uint64(0); i < count; i++ {
		s, next, err := readString(rest)
		if err != nil {
			return nil, nil, err
		}
		list = append(list, s)
		rest = next
	}
	return list, rest, nil
}

func appendModuleDescriptor(buf []byte, d ModuleDescriptor) []byte {
	buf = appendString(buf, d.Name)
	buf = appendUint32(buf, d.Size)
	buf = appendUint32(buf, d.ChunkSize)
	buf = appendUint32(buf, d.TotalChunks)
	return append(buf, d.Digest[:]...)
}

func readModuleDescriptor(buf []byte) (ModuleDescriptor, []byte, error) {
	name, rest, err := readString(buf)
	if err != nil {
		return ModuleDescriptor{}, nil, err
	}
	size, rest, err := readUint32(rest)
	if err != nil {
		return ModuleDescriptor{}, nil, err
	}
	chunkSize, rest, err := readUint32(rest)
	if err != nil {
		return ModuleDescriptor{}, nil, err
	}
	totalChunks, rest, err := readUint32(rest)
	if err != nil {
		return ModuleDescriptor{}, nil, err
	}
	if len(rest) < 32 {
		return ModuleDescriptor{}, nil, ErrInsufficientData
	}
	var digest [32]byte
	copy(digest[:], rest[:32])
	return ModuleDescriptor{
		Name:        name,
		Size:        size,
		ChunkSize:   chunkSize,
		TotalChunks: totalChunks,
		Digest:      digest,
	}, rest[32:], nil
}
