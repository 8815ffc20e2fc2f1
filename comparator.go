package rocksdb

import "bytes"

// Comparator defines a total order over keys. Implementations must be
// thread safe.
type Comparator interface {
	// Compare returns a value < 0, == 0 or > 0 as a is ordered before,
	// equal to or after b.
	Compare(a, b []byte) int

	// Name identifies the comparator. The name is persisted in the
	// manifest and a database rejects reopening with a different one.
	Name() string

	// FindShortestSeparator changes *start to a short byte slice in
	// [start, limit) when possible. Used to shrink index entries.
	FindShortestSeparator(start *[]byte, limit []byte)

	// FindShortSuccessor changes *key to a short byte slice >= key.
	FindShortSuccessor(key *[]byte)
}

type bytewiseComparator struct{}

// BytewiseComparator orders keys lexicographically by raw bytes.
var BytewiseComparator Comparator = bytewiseComparator{}

func (bytewiseComparator) Compare(a, b []byte) int {
	return bytes.Compare(a, b)
}

func (bytewiseComparator) Name() string {
	return "rocksdb.BytewiseComparator"
}

func (bytewiseComparator) FindShortestSeparator(start *[]byte, limit []byte) {
	s := *start
	minLength := len(s)
	if len(limit) < minLength {
		minLength = len(limit)
	}
	diffIndex := 0
	for diffIndex < minLength && s[diffIndex] == limit[diffIndex] {
		diffIndex++
	}
	if diffIndex >= minLength {
		// One key is a prefix of the other, no shortening possible.
		return
	}
	diffByte := s[diffIndex]
	if diffByte < 0xff && diffByte+1 < limit[diffIndex] {
		shortened := make([]byte, diffIndex+1)
		copy(shortened, s[:diffIndex+1])
		shortened[diffIndex]++
		*start = shortened
	}
}

func (bytewiseComparator) FindShortSuccessor(key *[]byte) {
	k := *key
	for i := 0; i < len(k); i++ {
		if k[i] != 0xff {
			successor := make([]byte, i+1)
			copy(successor, k[:i+1])
			successor[i]++
			*key = successor
			return
		}
	}
	// key is a run of 0xff bytes, leave it unchanged.
}
