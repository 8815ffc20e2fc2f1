package db

import (
	"github.com/mtxrym/rocksdb"
	"github.com/mtxrym/rocksdb/util"
)

// Helpers for manipulating the serialized form of a WriteBatch, which
// starts with an 8 byte sequence number and a 4 byte operation count.

const writeBatchHeaderSize = 12

func writeBatchCount(b rocksdb.WriteBatch) uint32 {
	return util.DecodeFixed32(b.Contents()[8:])
}

func writeBatchSequence(b rocksdb.WriteBatch) rocksdb.SequenceNumber {
	return rocksdb.SequenceNumber(util.DecodeFixed64(b.Contents()))
}

func writeBatchSetSequence(b rocksdb.WriteBatch, seq rocksdb.SequenceNumber) {
	util.EncodeFixed64(b.Contents(), uint64(seq))
}

// memTableInserter applies batch operations to a memtable, assigning
// consecutive sequence numbers starting at sequence.
type memTableInserter struct {
	sequence rocksdb.SequenceNumber
	mem      *memTable
}

func (i *memTableInserter) Put(key, value []byte) {
	i.mem.add(i.sequence, rocksdb.TypeValue, key, value)
	i.sequence++
}

func (i *memTableInserter) Delete(key []byte) {
	i.mem.add(i.sequence, rocksdb.TypeDeletion, key, nil)
	i.sequence++
}

// insertBatchInto replays the operations of b into mem.
func insertBatchInto(b rocksdb.WriteBatch, mem *memTable) error {
	inserter := &memTableInserter{sequence: writeBatchSequence(b), mem: mem}
	return b.Iterate(inserter)
}
