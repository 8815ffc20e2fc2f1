package util

import (
	"fmt"
	"strconv"
)

// AppendNumberTo appends a human readable printout of num to *str.
func AppendNumberTo(str *[]byte, num uint64) {
	*str = strconv.AppendUint(*str, num, 10)
}

// AppendEscapedStringTo appends a textual printout of value to *str,
// escaping any non-printable characters.
func AppendEscapedStringTo(str *[]byte, value []byte) {
	for _, c := range value {
		if c >= ' ' && c <= '~' {
			*str = append(*str, c)
		} else {
			*str = append(*str, []byte(fmt.Sprintf("\\x%02x", c))...)
		}
	}
}

func NumberToString(num uint64) string {
	return strconv.FormatUint(num, 10)
}

func EscapeString(value []byte) string {
	var str []byte
	AppendEscapedStringTo(&str, value)
	return string(str)
}

// ConsumeDecimalNumber parses a human readable number from the front of
// *input, advancing it past the consumed digits. Returns false on
// overflow or if no digits were found.
func ConsumeDecimalNumber(input *[]byte, value *uint64) bool {
	const maxUint64 = ^uint64(0)
	const lastDigitOfMaxUint64 = byte('0' + maxUint64%10)
	var v uint64
	digits := 0
	for _, c := range *input {
		if c < '0' || c > '9' {
			break
		}
		if v > maxUint64/10 || (v == maxUint64/10 && c > lastDigitOfMaxUint64) {
			return false
		}
		v = v*10 + uint64(c-'0')
		digits++
	}
	if digits == 0 {
		return false
	}
	*value = v
	*input = (*input)[digits:]
	return true
}
