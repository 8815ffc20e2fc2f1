package util

import (
	"fmt"
	"testing"
)

func TestNumberToString(t *testing.T) {
	AssertEqual("0", NumberToString(0), "zero", t)
	AssertEqual("1", NumberToString(1), "one", t)
	AssertEqual("9", NumberToString(9), "nine", t)
	AssertEqual("10", NumberToString(10), "ten", t)
	AssertEqual("1024", NumberToString(1024), "1024", t)
	AssertEqual("18446744073709551615", NumberToString(^uint64(0)), "max", t)
	for i := 0; i < 64; i++ {
		v := uint64(1) << uint(i)
		AssertEqual(fmt.Sprintf("%d", v), NumberToString(v), "power of two", t)
	}
}

func TestEscapeString(t *testing.T) {
	AssertEqual("", EscapeString([]byte{}), "empty", t)
	AssertEqual("abc", EscapeString([]byte("abc")), "printable", t)
	AssertEqual("a\\x00b", EscapeString([]byte{'a', 0, 'b'}), "embedded zero", t)
	AssertEqual("\\x1f", EscapeString([]byte{0x1f}), "control", t)
	AssertEqual("\\xff", EscapeString([]byte{0xff}), "high bit", t)
}

func consumeDecimalNumberRoundTrip(t *testing.T, number uint64, padding string) {
	input := []byte(NumberToString(number) + padding)
	var result uint64
	AssertTrue(ConsumeDecimalNumber(&input, &result), "parsed", t)
	AssertEqual(number, result, "value", t)
	AssertEqual(padding, string(input), "remainder", t)
}

func TestConsumeDecimalNumberRoundTrip(t *testing.T) {
	consumeDecimalNumberRoundTrip(t, 0, "")
	consumeDecimalNumberRoundTrip(t, 1, "")
	consumeDecimalNumberRoundTrip(t, 9, "")
	consumeDecimalNumberRoundTrip(t, 10, "")
	consumeDecimalNumberRoundTrip(t, 11, "")
	consumeDecimalNumberRoundTrip(t, 100, "")
	consumeDecimalNumberRoundTrip(t, ^uint64(0), "")
	consumeDecimalNumberRoundTrip(t, 123, "abc")
	for i := 0; i < 100; i++ {
		consumeDecimalNumberRoundTrip(t, uint64(i)*uint64(i)*uint64(i), " paddingpadding")
	}
}

func TestConsumeDecimalNumberOverflow(t *testing.T) {
	for _, s := range []string{
		"18446744073709551616",
		"18446744073709551617",
		"18446744073709551700",
		"99999999999999999999",
	} {
		input := []byte(s)
		var result uint64
		AssertFalse(ConsumeDecimalNumber(&input, &result), "overflow rejected", t)
	}
}

func TestConsumeDecimalNumberNoDigits(t *testing.T) {
	for _, s := range []string{"", " ", "a", " 123", "a123", ".", "-123"} {
		input := []byte(s)
		var result uint64
		AssertFalse(ConsumeDecimalNumber(&input, &result), "no digits rejected", t)
	}
}
