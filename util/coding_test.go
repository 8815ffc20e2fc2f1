package util

import "testing"

func TestFixed32(t *testing.T) {
	var s []byte
	for v := uint32(0); v < 100000; v++ {
		PutFixed32(&s, v)
	}
	p := s
	for v := uint32(0); v < 100000; v++ {
		actual := DecodeFixed32(p)
		AssertEqual(v, actual, "decoded value", t)
		p = p[4:]
	}
}

func TestFixed64(t *testing.T) {
	var s []byte
	for power := 0; power <= 63; power++ {
		v := uint64(1) << uint(power)
		PutFixed64(&s, v-1)
		PutFixed64(&s, v)
		PutFixed64(&s, v+1)
	}
	p := s
	for power := 0; power <= 63; power++ {
		v := uint64(1) << uint(power)
		AssertEqual(v-1, DecodeFixed64(p), "v-1", t)
		p = p[8:]
		AssertEqual(v, DecodeFixed64(p), "v", t)
		p = p[8:]
		AssertEqual(v+1, DecodeFixed64(p), "v+1", t)
		p = p[8:]
	}
}

func TestEncodingOutput(t *testing.T) {
	var dst []byte
	PutFixed32(&dst, 0x04030201)
	AssertEqual(4, len(dst), "length", t)
	AssertEqual(byte(0x01), dst[0], "byte 0", t)
	AssertEqual(byte(0x02), dst[1], "byte 1", t)
	AssertEqual(byte(0x03), dst[2], "byte 2", t)
	AssertEqual(byte(0x04), dst[3], "byte 3", t)

	dst = dst[:0]
	PutFixed64(&dst, 0x0807060504030201)
	AssertEqual(8, len(dst), "length", t)
	for i := 0; i < 8; i++ {
		AssertEqual(byte(i+1), dst[i], "byte", t)
	}
}

func TestVarInt32(t *testing.T) {
	var s []byte
	for i := uint32(0); i < 32*32; i++ {
		v := (i / 32) << (i % 32)
		PutVarInt32(&s, v)
	}
	p := s
	for i := uint32(0); i < 32*32; i++ {
		expected := (i / 32) << (i % 32)
		var actual uint32
		before := len(p)
		AssertTrue(GetVarInt32(&p, &actual), "decode", t)
		AssertEqual(expected, actual, "value", t)
		AssertEqual(VarIntLength(uint64(expected)), before-len(p), "encoded length", t)
	}
	AssertEqual(0, len(p), "consumed all input", t)
}

func TestVarInt64(t *testing.T) {
	values := []uint64{0, 100, ^uint64(0), ^uint64(0) - 1}
	for k := 0; k < 64; k++ {
		power := uint64(1) << uint(k)
		values = append(values, power, power-1, power+1)
	}
	var s []byte
	for _, v := range values {
		PutVarInt64(&s, v)
	}
	p := s
	for _, expected := range values {
		var actual uint64
		before := len(p)
		AssertTrue(GetVarInt64(&p, &actual), "decode", t)
		AssertEqual(expected, actual, "value", t)
		AssertEqual(VarIntLength(expected), before-len(p), "encoded length", t)
	}
	AssertEqual(0, len(p), "consumed all input", t)
}

func TestVarInt32Truncation(t *testing.T) {
	const largeValue = uint32(1) << 31
	var s []byte
	PutVarInt32(&s, largeValue)
	var result uint32
	for i := 0; i < len(s)-1; i++ {
		p := s[:i]
		AssertFalse(GetVarInt32(&p, &result), "truncated varint rejected", t)
	}
	p := s
	AssertTrue(GetVarInt32(&p, &result), "full varint decodes", t)
	AssertEqual(largeValue, result, "value", t)
}

func TestVarInt32Overflow(t *testing.T) {
	input := []byte{0x81, 0x82, 0x83, 0x84, 0x85, 0x11}
	var result uint32
	AssertFalse(GetVarInt32(&input, &result), "overflowing varint rejected", t)
}

func TestStrings(t *testing.T) {
	var s []byte
	PutLengthPrefixedSlice(&s, []byte(""))
	PutLengthPrefixedSlice(&s, []byte("foo"))
	PutLengthPrefixedSlice(&s, []byte("bar"))
	big := make([]byte, 200)
	for i := range big {
		big[i] = 'x'
	}
	PutLengthPrefixedSlice(&s, big)

	var v []byte
	input := s
	AssertTrue(GetLengthPrefixedSlice(&input, &v), "decode", t)
	AssertEqual("", string(v), "empty", t)
	AssertTrue(GetLengthPrefixedSlice(&input, &v), "decode", t)
	AssertEqual("foo", string(v), "foo", t)
	AssertTrue(GetLengthPrefixedSlice(&input, &v), "decode", t)
	AssertEqual("bar", string(v), "bar", t)
	AssertTrue(GetLengthPrefixedSlice(&input, &v), "decode", t)
	AssertEqual(string(big), string(v), "big", t)
	AssertEqual(0, len(input), "consumed all input", t)

	truncated := s[:len(s)-1]
	for i := 0; i < 3; i++ {
		AssertTrue(GetLengthPrefixedSlice(&truncated, &v), "decode", t)
	}
	AssertFalse(GetLengthPrefixedSlice(&truncated, &v), "truncated slice rejected", t)
}
