package table

import (
	"github.com/cespare/xxhash/v2"
	"github.com/golang/snappy"

	"github.com/mtxrym/rocksdb"
	"github.com/mtxrym/rocksdb/util"
)

// blockHandle points to a block stored in a table file.
type blockHandle struct {
	offset uint64
	size   uint64
}

// maxEncodedLength of a blockHandle, two maximal varint64s.
const maxEncodedLength = 10 + 10

func (h *blockHandle) encodeTo(dst *[]byte) {
	util.PutVarInt64(dst, h.offset)
	util.PutVarInt64(dst, h.size)
}

func (h *blockHandle) decodeFrom(input *[]byte) error {
	if !util.GetVarInt64(input, &h.offset) || !util.GetVarInt64(input, &h.size) {
		return util.CorruptionError1("bad block handle")
	}
	return nil
}

// footer is the fixed size tail of every table file. It holds the
// handle of the index block followed by the magic number.
type footer struct {
	indexHandle blockHandle
}

const (
	footerEncodedLength = maxEncodedLength + 8

	// tableMagicNumber identifies the file format.
	tableMagicNumber = uint64(0x9f4c8d2ab6e15370)
)

func (f *footer) encodeTo(dst *[]byte) {
	originalLength := len(*dst)
	f.indexHandle.encodeTo(dst)
	for len(*dst) < originalLength+maxEncodedLength {
		*dst = append(*dst, 0)
	}
	util.PutFixed64(dst, tableMagicNumber)
}

func (f *footer) decodeFrom(input []byte) error {
	if len(input) < footerEncodedLength {
		return util.CorruptionError1("footer too short")
	}
	magic := util.DecodeFixed64(input[maxEncodedLength:])
	if magic != tableMagicNumber {
		return util.CorruptionError1("not a table file (bad magic number)")
	}
	handleInput := input[:maxEncodedLength]
	return f.indexHandle.decodeFrom(&handleInput)
}

// blockTrailerSize covers the compression type byte and the 64 bit
// xxhash of the block contents plus that byte.
const blockTrailerSize = 9

type blockContents struct {
	data     []byte
	cachable bool
}

// readBlock reads and verifies the block identified by handle.
func readBlock(file rocksdb.RandomAccessFile, options *rocksdb.ReadOptions, handle blockHandle) (blockContents, error) {
	var contents blockContents
	n := int(handle.size)
	buf := make([]byte, n+blockTrailerSize)
	read, err := file.ReadAt(buf, int64(handle.offset))
	if err != nil {
		return contents, err
	}
	if read != len(buf) {
		return contents, util.CorruptionError1("truncated block read")
	}
	data := buf[:n]
	if options.VerifyChecksums {
		stored := util.DecodeFixed64(buf[n+1:])
		actual := xxhash.Sum64(buf[:n+1])
		if stored != actual {
			return contents, util.CorruptionError1("block checksum mismatch")
		}
	}
	switch rocksdb.CompressionType(buf[n]) {
	case rocksdb.NoCompression:
		contents.data = data
		contents.cachable = true
	case rocksdb.SnappyCompression:
		decoded, err := snappy.Decode(nil, data)
		if err != nil {
			return contents, util.CorruptionError1("corrupted compressed block contents")
		}
		contents.data = decoded
		contents.cachable = true
	default:
		return contents, util.CorruptionError1("bad block type")
	}
	return contents, nil
}
