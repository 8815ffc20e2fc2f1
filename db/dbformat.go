package db

import (
	"fmt"

	"github.com/mtxrym/rocksdb"
	"github.com/mtxrym/rocksdb/util"
)

const (
	// maxLevels bounds the level count any database may be configured
	// with. Level numbers must fit the manifest encoding.
	maxLevels = 64

	// maxSequenceNumber leaves the low 8 bits free for the value type,
	// which is packed with the sequence number into 64 bits.
	maxSequenceNumber = rocksdb.SequenceNumber((uint64(1) << 56) - 1)
)

// valueTypeForSeek is the highest value type, so that a seek key packed
// with it sorts before all entries of the same user key and sequence.
const valueTypeForSeek = rocksdb.TypeValue

func packSequenceAndType(seq rocksdb.SequenceNumber, t rocksdb.ValueType) uint64 {
	if seq > maxSequenceNumber {
		panic("sequence number overflow")
	}
	if t > valueTypeForSeek {
		panic("invalid value type")
	}
	return uint64(seq)<<8 | uint64(t)
}

// parsedInternalKey is the decomposed form of an internal key.
type parsedInternalKey struct {
	userKey  []byte
	sequence rocksdb.SequenceNumber
	typ      rocksdb.ValueType
}

func (k *parsedInternalKey) debugString() string {
	return fmt.Sprintf("'%s' @ %d : %d", util.EscapeString(k.userKey), k.sequence, k.typ)
}

// appendInternalKey appends the serialization of key to *result.
func appendInternalKey(result *[]byte, key *parsedInternalKey) {
	*result = append(*result, key.userKey...)
	util.PutFixed64(result, packSequenceAndType(key.sequence, key.typ))
}

// parseInternalKey splits an internal key into its parts. Returns false
// if the key is malformed.
func parseInternalKey(key []byte, result *parsedInternalKey) bool {
	if len(key) < 8 {
		return false
	}
	num := util.DecodeFixed64(key[len(key)-8:])
	t := rocksdb.ValueType(num & 0xff)
	if t > rocksdb.TypeValue {
		return false
	}
	result.userKey = key[:len(key)-8]
	result.sequence = rocksdb.SequenceNumber(num >> 8)
	result.typ = t
	return true
}

func extractUserKey(internalKey []byte) []byte {
	if len(internalKey) < 8 {
		panic("internal key too short")
	}
	return internalKey[:len(internalKey)-8]
}

// internalKey holds a serialized internal key. The zero value is an
// empty key.
type internalKey struct {
	rep []byte
}

func newInternalKey(userKey []byte, s rocksdb.SequenceNumber, t rocksdb.ValueType) internalKey {
	var key internalKey
	k := parsedInternalKey{userKey: userKey, sequence: s, typ: t}
	appendInternalKey(&key.rep, &k)
	return key
}

func (k *internalKey) encode() []byte {
	if len(k.rep) == 0 {
		panic("empty internal key")
	}
	return k.rep
}

func (k *internalKey) decodeFrom(s []byte) {
	k.rep = append(k.rep[:0], s...)
}

func (k *internalKey) userKey() []byte {
	return extractUserKey(k.rep)
}

func (k *internalKey) clear() {
	k.rep = k.rep[:0]
}

func (k *internalKey) debugString() string {
	var result parsedInternalKey
	if parseInternalKey(k.rep, &result) {
		return result.debugString()
	}
	return fmt.Sprintf("(bad)%s", util.EscapeString(k.rep))
}

// internalKeyComparator orders internal keys by increasing user key and
// decreasing sequence number, so the newest entry for a user key comes
// first.
type internalKeyComparator struct {
	userComparator rocksdb.Comparator
}

func newInternalKeyComparator(c rocksdb.Comparator) *internalKeyComparator {
	return &internalKeyComparator{userComparator: c}
}

func (c *internalKeyComparator) Name() string {
	return "rocksdb.InternalKeyComparator"
}

func (c *internalKeyComparator) Compare(a, b []byte) int {
	r := c.userComparator.Compare(extractUserKey(a), extractUserKey(b))
	if r != 0 {
		return r
	}
	anum := util.DecodeFixed64(a[len(a)-8:])
	bnum := util.DecodeFixed64(b[len(b)-8:])
	if anum > bnum {
		return -1
	} else if anum < bnum {
		return 1
	}
	return 0
}

func (c *internalKeyComparator) compareInternalKey(a, b *internalKey) int {
	return c.Compare(a.encode(), b.encode())
}

func (c *internalKeyComparator) FindShortestSeparator(start *[]byte, limit []byte) {
	userStart := extractUserKey(*start)
	userLimit := extractUserKey(limit)
	tmp := make([]byte, len(userStart))
	copy(tmp, userStart)
	c.userComparator.FindShortestSeparator(&tmp, userLimit)
	if len(tmp) < len(userStart) && c.userComparator.Compare(userStart, tmp) < 0 {
		// A shorter user key was found, tag it with the maximal
		// sequence so it still sorts before all real entries for it.
		util.PutFixed64(&tmp, packSequenceAndType(maxSequenceNumber, valueTypeForSeek))
		if c.Compare(*start, tmp) >= 0 || c.Compare(tmp, limit) >= 0 {
			panic("bad separator")
		}
		*start = tmp
	}
}

func (c *internalKeyComparator) FindShortSuccessor(key *[]byte) {
	userKey := extractUserKey(*key)
	tmp := make([]byte, len(userKey))
	copy(tmp, userKey)
	c.userComparator.FindShortSuccessor(&tmp)
	if len(tmp) < len(userKey) && c.userComparator.Compare(userKey, tmp) < 0 {
		util.PutFixed64(&tmp, packSequenceAndType(maxSequenceNumber, valueTypeForSeek))
		if c.Compare(*key, tmp) >= 0 {
			panic("bad successor")
		}
		*key = tmp
	}
}
