package rocksdb

import "github.com/mtxrym/rocksdb/util"

// WriteBatchHandler receives the operations of a batch during Iterate.
type WriteBatchHandler interface {
	Put(key, value []byte)
	Delete(key []byte)
}

// WriteBatch holds a group of updates to apply atomically to a database.
//
// The serialized form is an 8 byte sequence number, a 4 byte count and
// the concatenated records, each a type byte followed by length
// prefixed key (and value for puts).
type WriteBatch interface {
	// Put stores a key->value mapping in the batch.
	Put(key, value []byte)

	// Delete records the removal of key.
	Delete(key []byte)

	// Clear discards all buffered operations.
	Clear()

	// ApproximateSize returns the serialized size of the batch.
	ApproximateSize() int

	// Append copies the operations of other onto this batch.
	Append(other WriteBatch)

	// Iterate replays the operations in insertion order.
	Iterate(handler WriteBatchHandler) error

	// Contents exposes the serialized representation.
	Contents() []byte

	// SetContents replaces the serialized representation.
	SetContents(data []byte)
}

// writeBatchHeaderSize covers the sequence number and the count.
const writeBatchHeaderSize = 12

type writeBatch struct {
	rep []byte
}

// NewWriteBatch returns an empty WriteBatch.
func NewWriteBatch() WriteBatch {
	return &writeBatch{rep: make([]byte, writeBatchHeaderSize)}
}

func (b *writeBatch) setCount(n uint32) {
	util.EncodeFixed32(b.rep[8:], n)
}

func (b *writeBatch) count() uint32 {
	return util.DecodeFixed32(b.rep[8:])
}

func (b *writeBatch) Put(key, value []byte) {
	b.setCount(b.count() + 1)
	b.rep = append(b.rep, byte(TypeValue))
	util.PutLengthPrefixedSlice(&b.rep, key)
	util.PutLengthPrefixedSlice(&b.rep, value)
}

func (b *writeBatch) Delete(key []byte) {
	b.setCount(b.count() + 1)
	b.rep = append(b.rep, byte(TypeDeletion))
	util.PutLengthPrefixedSlice(&b.rep, key)
}

func (b *writeBatch) Clear() {
	b.rep = b.rep[:writeBatchHeaderSize]
	for i := range b.rep {
		b.rep[i] = 0
	}
}

func (b *writeBatch) ApproximateSize() int {
	return len(b.rep)
}

func (b *writeBatch) Append(other WriteBatch) {
	o := other.(*writeBatch)
	b.setCount(b.count() + o.count())
	b.rep = append(b.rep, o.rep[writeBatchHeaderSize:]...)
}

func (b *writeBatch) Iterate(handler WriteBatchHandler) error {
	input := b.rep
	if len(input) < writeBatchHeaderSize {
		return util.CorruptionError1("malformed WriteBatch (too small)")
	}
	input = input[writeBatchHeaderSize:]
	var key, value []byte
	var found uint32
	for len(input) > 0 {
		found++
		tag := ValueType(input[0])
		input = input[1:]
		switch tag {
		case TypeValue:
			if !util.GetLengthPrefixedSlice(&input, &key) ||
				!util.GetLengthPrefixedSlice(&input, &value) {
				return util.CorruptionError1("bad WriteBatch Put")
			}
			handler.Put(key, value)
		case TypeDeletion:
			if !util.GetLengthPrefixedSlice(&input, &key) {
				return util.CorruptionError1("bad WriteBatch Delete")
			}
			handler.Delete(key)
		default:
			return util.CorruptionError1("unknown WriteBatch tag")
		}
	}
	if found != b.count() {
		return util.CorruptionError1("WriteBatch has wrong count")
	}
	return nil
}

func (b *writeBatch) Contents() []byte {
	return b.rep
}

func (b *writeBatch) SetContents(data []byte) {
	if len(data) < writeBatchHeaderSize {
		panic("writeBatch: contents smaller than header")
	}
	b.rep = append(b.rep[:0], data...)
}
