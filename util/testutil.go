package util

import (
	"math/rand"
	"reflect"
	"testing"
)

func AssertTrue(b bool, s string, t *testing.T) {
	t.Helper()
	if !b {
		t.Fatalf("%s: expected true", s)
	}
}

func AssertFalse(b bool, s string, t *testing.T) {
	t.Helper()
	if b {
		t.Fatalf("%s: expected false", s)
	}
}

func AssertEqual(expected, actual interface{}, s string, t *testing.T) {
	t.Helper()
	if !reflect.DeepEqual(expected, actual) {
		t.Fatalf("%s: expected %v, got %v", s, expected, actual)
	}
}

func AssertNotError(err error, s string, t *testing.T) {
	t.Helper()
	if err != nil {
		t.Fatalf("%s: unexpected error: %v", s, err)
	}
}

func AssertError(err error, s string, t *testing.T) {
	t.Helper()
	if err == nil {
		t.Fatalf("%s: expected an error", s)
	}
}

// RandomString returns a random string of the given length drawn from
// printable characters.
func RandomString(rnd *rand.Rand, length int) []byte {
	b := make([]byte, length)
	for i := range b {
		b[i] = byte(' ' + rnd.Intn(95))
	}
	return b
}
