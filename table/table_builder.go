package table

import (
	"github.com/cespare/xxhash/v2"
	"github.com/golang/snappy"

	"github.com/mtxrym/rocksdb"
	"github.com/mtxrym/rocksdb/util"
)

// Builder produces a table file from keys added in increasing order.
//
// Layout: a sequence of data blocks, an index block mapping separator
// keys to data block handles, and a fixed size footer.
type Builder struct {
	options           *rocksdb.Options
	file              rocksdb.WritableFile
	offset            uint64
	err               error
	dataBlock         *blockBuilder
	indexBlock        *blockBuilder
	lastKey           []byte
	numEntries        int64
	closed            bool
	pendingIndexEntry bool
	pendingHandle     blockHandle
	compressedOutput  []byte
}

// NewBuilder returns a Builder that writes a table to file. The caller
// retains ownership of file and must close it after Finish or Abandon.
func NewBuilder(options *rocksdb.Options, file rocksdb.WritableFile) *Builder {
	return &Builder{
		options:    options,
		file:       file,
		dataBlock:  newBlockBuilder(options.BlockRestartInterval),
		indexBlock: newBlockBuilder(1),
	}
}

// Add appends key->value. Keys must arrive in increasing order per the
// options comparator.
func (b *Builder) Add(key, value []byte) {
	if b.closed {
		panic("table.Builder: Add after Finish or Abandon")
	}
	if b.err != nil {
		return
	}
	if b.numEntries > 0 && b.options.Comparator.Compare(key, b.lastKey) <= 0 {
		panic("table.Builder: keys added out of order")
	}
	if b.pendingIndexEntry {
		// The separator only needs to sit between the last key of the
		// previous block and the first key of this one.
		b.options.Comparator.FindShortestSeparator(&b.lastKey, key)
		var handleEncoding []byte
		b.pendingHandle.encodeTo(&handleEncoding)
		b.indexBlock.add(b.lastKey, handleEncoding)
		b.pendingIndexEntry = false
	}
	b.lastKey = append(b.lastKey[:0], key...)
	b.numEntries++
	b.dataBlock.add(key, value)
	if b.dataBlock.currentSizeEstimate() >= b.options.BlockSize {
		b.Flush()
	}
}

// Flush forces the current data block to disk. Mostly useful to align
// block boundaries with key ranges.
func (b *Builder) Flush() {
	if b.closed {
		panic("table.Builder: Flush after Finish or Abandon")
	}
	if b.err != nil || b.dataBlock.empty() {
		return
	}
	if b.pendingIndexEntry {
		panic("table.Builder: unconsumed index entry")
	}
	b.writeBlock(b.dataBlock, &b.pendingHandle)
	if b.err == nil {
		b.pendingIndexEntry = true
		b.err = b.file.Flush()
	}
}

func (b *Builder) writeBlock(block *blockBuilder, handle *blockHandle) {
	raw := block.finish()
	var blockContents []byte
	compressionType := b.options.Compression
	switch compressionType {
	case rocksdb.SnappyCompression:
		b.compressedOutput = snappy.Encode(b.compressedOutput[:0], raw)
		if len(b.compressedOutput) < len(raw)-len(raw)/8 {
			blockContents = b.compressedOutput
		} else {
			// Compression gains less than 12.5%, store uncompressed.
			blockContents = raw
			compressionType = rocksdb.NoCompression
		}
	default:
		blockContents = raw
		compressionType = rocksdb.NoCompression
	}
	b.writeRawBlock(blockContents, compressionType, handle)
	block.reset()
}

func (b *Builder) writeRawBlock(blockContents []byte, compressionType rocksdb.CompressionType, handle *blockHandle) {
	handle.offset = b.offset
	handle.size = uint64(len(blockContents))
	if b.err = b.file.Append(blockContents); b.err != nil {
		return
	}
	var trailer [blockTrailerSize]byte
	trailer[0] = byte(compressionType)
	digest := xxhash.New()
	_, _ = digest.Write(blockContents)
	_, _ = digest.Write(trailer[:1])
	util.EncodeFixed64(trailer[1:], digest.Sum64())
	if b.err = b.file.Append(trailer[:]); b.err == nil {
		b.offset += uint64(len(blockContents) + blockTrailerSize)
	}
}

// Finish writes the index block and footer. The file contents are
// complete once Finish returns nil, though the file is not yet synced.
func (b *Builder) Finish() error {
	b.Flush()
	if b.closed {
		panic("table.Builder: Finish after Finish or Abandon")
	}
	b.closed = true
	if b.err != nil {
		return b.err
	}
	if b.pendingIndexEntry {
		b.options.Comparator.FindShortSuccessor(&b.lastKey)
		var handleEncoding []byte
		b.pendingHandle.encodeTo(&handleEncoding)
		b.indexBlock.add(b.lastKey, handleEncoding)
		b.pendingIndexEntry = false
	}
	var indexBlockHandle blockHandle
	b.writeBlock(b.indexBlock, &indexBlockHandle)
	if b.err != nil {
		return b.err
	}
	f := footer{indexHandle: indexBlockHandle}
	var footerEncoding []byte
	f.encodeTo(&footerEncoding)
	if b.err = b.file.Append(footerEncoding); b.err == nil {
		b.offset += uint64(len(footerEncoding))
	}
	return b.err
}

// Abandon discards the buffered contents. The caller deletes the file.
func (b *Builder) Abandon() {
	if b.closed {
		panic("table.Builder: Abandon after Finish or Abandon")
	}
	b.closed = true
}

// NumEntries returns the number of keys added so far.
func (b *Builder) NumEntries() int64 {
	return b.numEntries
}

// FileSize returns the size of the file generated so far.
func (b *Builder) FileSize() uint64 {
	return b.offset
}
