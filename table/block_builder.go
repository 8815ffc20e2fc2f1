package table

import "github.com/mtxrym/rocksdb/util"

// blockBuilder generates blocks where keys are prefix compressed
// against the previous key. Every blockRestartInterval keys a restart
// point stores the full key, and the offsets of all restart points are
// appended to the end of the block so that a reader can binary search.
//
// Entry layout:
//	shared length    varint32
//	unshared length  varint32
//	value length     varint32
//	key delta        unshared bytes
//	value            value length bytes
type blockBuilder struct {
	blockRestartInterval int
	buffer               []byte
	restarts             []uint32
	counter              int
	finished             bool
	lastKey              []byte
}

func newBlockBuilder(blockRestartInterval int) *blockBuilder {
	if blockRestartInterval < 1 {
		panic("blockBuilder: restart interval must be >= 1")
	}
	return &blockBuilder{
		blockRestartInterval: blockRestartInterval,
		restarts:             []uint32{0},
	}
}

func (b *blockBuilder) reset() {
	b.buffer = b.buffer[:0]
	b.restarts = b.restarts[:0]
	b.restarts = append(b.restarts, 0)
	b.counter = 0
	b.finished = false
	b.lastKey = b.lastKey[:0]
}

// currentSizeEstimate returns the size of the block being built, as if
// finish were called now.
func (b *blockBuilder) currentSizeEstimate() int {
	return len(b.buffer) + len(b.restarts)*4 + 4
}

func (b *blockBuilder) empty() bool {
	return len(b.buffer) == 0
}

// add appends key->value. Keys must be added in increasing order.
func (b *blockBuilder) add(key, value []byte) {
	if b.finished {
		panic("blockBuilder: add after finish")
	}
	shared := 0
	if b.counter < b.blockRestartInterval {
		minLength := len(b.lastKey)
		if len(key) < minLength {
			minLength = len(key)
		}
		for shared < minLength && b.lastKey[shared] == key[shared] {
			shared++
		}
	} else {
		b.restarts = append(b.restarts, uint32(len(b.buffer)))
		b.counter = 0
	}
	nonShared := len(key) - shared
	util.PutVarInt32(&b.buffer, uint32(shared))
	util.PutVarInt32(&b.buffer, uint32(nonShared))
	util.PutVarInt32(&b.buffer, uint32(len(value)))
	b.buffer = append(b.buffer, key[shared:]...)
	b.buffer = append(b.buffer, value...)

	b.lastKey = append(b.lastKey[:shared], key[shared:]...)
	b.counter++
}

// finish appends the restart array and returns the complete block.
func (b *blockBuilder) finish() []byte {
	for _, restart := range b.restarts {
		util.PutFixed32(&b.buffer, restart)
	}
	util.PutFixed32(&b.buffer, uint32(len(b.restarts)))
	b.finished = true
	return b.buffer
}
