package table

import (
	"github.com/mtxrym/rocksdb"
	"github.com/mtxrym/rocksdb/util"
)

// block wraps the raw contents of a table block for iteration.
type block struct {
	data          []byte
	restartOffset uint32
	numRestarts   uint32
}

func newBlock(contents blockContents) (*block, error) {
	data := contents.data
	if len(data) < 4 {
		return nil, util.CorruptionError1("bad block contents")
	}
	numRestarts := util.DecodeFixed32(data[len(data)-4:])
	maxRestarts := (uint32(len(data)) - 4) / 4
	if numRestarts > maxRestarts {
		return nil, util.CorruptionError1("bad block restart count")
	}
	return &block{
		data:          data,
		restartOffset: uint32(len(data)) - (numRestarts+1)*4,
		numRestarts:   numRestarts,
	}, nil
}

func (b *block) newIterator(cmp rocksdb.Comparator) rocksdb.Iterator {
	if b.numRestarts == 0 {
		return rocksdb.NewEmptyIterator()
	}
	return &blockIterator{
		cmp:         cmp,
		data:        b.data,
		restarts:    b.restartOffset,
		numRestarts: b.numRestarts,
		current:     b.restartOffset,
	}
}

// blockIterator walks the entries of a block. current is the byte
// offset of the current entry, or >= restarts when invalid.
type blockIterator struct {
	rocksdb.CleanUpIterator
	cmp         rocksdb.Comparator
	data        []byte
	restarts    uint32
	numRestarts uint32
	current     uint32
	key         []byte
	value       []byte
	err         error
}

func (i *blockIterator) restartPoint(index uint32) uint32 {
	return util.DecodeFixed32(i.data[i.restarts+4*index:])
}

func (i *blockIterator) corruption() {
	i.current = i.restarts
	i.err = util.CorruptionError1("bad entry in block")
	i.key = i.key[:0]
	i.value = nil
}

// decodeEntry parses the entry header at offset. Returns the offset of
// the key delta and the three lengths, or ok == false on corruption.
func (i *blockIterator) decodeEntry(offset uint32) (dataOffset, shared, nonShared, valueLength uint32, ok bool) {
	input := i.data[offset:i.restarts]
	if !util.GetVarInt32(&input, &shared) ||
		!util.GetVarInt32(&input, &nonShared) ||
		!util.GetVarInt32(&input, &valueLength) {
		return 0, 0, 0, 0, false
	}
	dataOffset = i.restarts - uint32(len(input))
	if uint32(len(input)) < nonShared+valueLength {
		return 0, 0, 0, 0, false
	}
	return dataOffset, shared, nonShared, valueLength, true
}

func (i *blockIterator) parseCurrent() bool {
	dataOffset, shared, nonShared, valueLength, ok := i.decodeEntry(i.current)
	if !ok || uint32(len(i.key)) < shared {
		i.corruption()
		return false
	}
	i.key = append(i.key[:shared], i.data[dataOffset:dataOffset+nonShared]...)
	i.value = i.data[dataOffset+nonShared : dataOffset+nonShared+valueLength]
	return true
}

func (i *blockIterator) nextEntryOffset() uint32 {
	dataOffset, _, nonShared, valueLength, ok := i.decodeEntry(i.current)
	if !ok {
		return i.restarts
	}
	return dataOffset + nonShared + valueLength
}

func (i *blockIterator) Valid() bool {
	return i.current < i.restarts
}

func (i *blockIterator) Status() error {
	return i.err
}

func (i *blockIterator) Key() []byte {
	if !i.Valid() {
		panic("blockIterator: Key on invalid iterator")
	}
	return i.key
}

func (i *blockIterator) Value() []byte {
	if !i.Valid() {
		panic("blockIterator: Value on invalid iterator")
	}
	return i.value
}

func (i *blockIterator) SeekToFirst() {
	if i.err != nil {
		return
	}
	i.seekToRestartPoint(0)
	i.parseNextKey()
}

func (i *blockIterator) seekToRestartPoint(index uint32) {
	i.key = i.key[:0]
	i.current = i.restartPoint(index)
}

func (i *blockIterator) parseNextKey() bool {
	if i.current >= i.restarts {
		i.current = i.restarts
		return false
	}
	return i.parseCurrent()
}

func (i *blockIterator) Next() {
	if !i.Valid() {
		panic("blockIterator: Next on invalid iterator")
	}
	i.current = i.nextEntryOffset()
	i.parseNextKey()
}

func (i *blockIterator) Seek(target []byte) {
	if i.err != nil {
		return
	}
	// Binary search over restart points for the last one with a key
	// < target, then scan linearly.
	left := uint32(0)
	right := i.numRestarts - 1
	for left < right {
		mid := (left + right + 1) / 2
		offset := i.restartPoint(mid)
		dataOffset, shared, nonShared, _, ok := i.decodeEntry(offset)
		if !ok || shared != 0 {
			i.corruption()
			return
		}
		midKey := i.data[dataOffset : dataOffset+nonShared]
		if i.cmp.Compare(midKey, target) < 0 {
			left = mid
		} else {
			right = mid - 1
		}
	}
	i.seekToRestartPoint(left)
	for i.parseNextKey() {
		if i.cmp.Compare(i.key, target) >= 0 {
			return
		}
		i.current = i.nextEntryOffset()
	}
}
