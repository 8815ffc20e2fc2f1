package util

import "encoding/binary"

// Fixed-width and varint encodings used by the write ahead log, the
// table format and the manifest. All fixed-width values are little endian.

func EncodeFixed32(dst []byte, value uint32) {
	binary.LittleEndian.PutUint32(dst, value)
}

func EncodeFixed64(dst []byte, value uint64) {
	binary.LittleEndian.PutUint64(dst, value)
}

func PutFixed32(dst *[]byte, value uint32) {
	var buf [4]byte
	EncodeFixed32(buf[:], value)
	*dst = append(*dst, buf[:]...)
}

func PutFixed64(dst *[]byte, value uint64) {
	var buf [8]byte
	EncodeFixed64(buf[:], value)
	*dst = append(*dst, buf[:]...)
}

func DecodeFixed32(b []byte) uint32 {
	return binary.LittleEndian.Uint32(b)
}

func DecodeFixed64(b []byte) uint64 {
	return binary.LittleEndian.Uint64(b)
}

func EncodeVarInt32(value uint32) []byte {
	var buf [5]byte
	n := binary.PutUvarint(buf[:], uint64(value))
	return buf[:n]
}

func EncodeVarInt64(value uint64) []byte {
	var buf [10]byte
	n := binary.PutUvarint(buf[:], value)
	return buf[:n]
}

func PutVarInt32(dst *[]byte, value uint32) {
	*dst = append(*dst, EncodeVarInt32(value)...)
}

func PutVarInt64(dst *[]byte, value uint64) {
	*dst = append(*dst, EncodeVarInt64(value)...)
}

// GetVarInt32 decodes a varint32 from the front of *input, advancing it
// past the consumed bytes. Returns false on malformed or truncated input.
func GetVarInt32(input *[]byte, value *uint32) bool {
	v, n := binary.Uvarint(*input)
	if n <= 0 || v > 0xffffffff {
		return false
	}
	*value = uint32(v)
	*input = (*input)[n:]
	return true
}

func GetVarInt64(input *[]byte, value *uint64) bool {
	v, n := binary.Uvarint(*input)
	if n <= 0 {
		return false
	}
	*value = v
	*input = (*input)[n:]
	return true
}

func VarIntLength(value uint64) int {
	length := 1
	for value >= 128 {
		value >>= 7
		length++
	}
	return length
}

func PutLengthPrefixedSlice(dst *[]byte, value []byte) {
	PutVarInt32(dst, uint32(len(value)))
	*dst = append(*dst, value...)
}

// GetLengthPrefixedSlice decodes a length prefixed slice from the front
// of *input, advancing it. The result aliases the input buffer.
func GetLengthPrefixedSlice(input *[]byte, result *[]byte) bool {
	var length uint32
	if !GetVarInt32(input, &length) {
		return false
	}
	if uint32(len(*input)) < length {
		return false
	}
	*result = (*input)[:length]
	*input = (*input)[length:]
	return true
}
