package table

import (
	"github.com/mtxrym/rocksdb"
	"github.com/mtxrym/rocksdb/util"
)

// Table is an immutable sorted map from internal keys to values backed
// by a single file. Safe for concurrent use.
type Table struct {
	options    *rocksdb.Options
	file       rocksdb.RandomAccessFile
	cacheID    uint64
	indexBlock *block
}

// Open reads the footer and index of the file, which must be size bytes
// long. The Table takes ownership of file and closes it on Close.
func Open(options *rocksdb.Options, file rocksdb.RandomAccessFile, size uint64) (*Table, error) {
	if size < footerEncodedLength {
		return nil, util.CorruptionError1("file is too short to be a table")
	}
	footerSpace := make([]byte, footerEncodedLength)
	n, err := file.ReadAt(footerSpace, int64(size-footerEncodedLength))
	if err != nil {
		return nil, err
	}
	if n != footerEncodedLength {
		return nil, util.CorruptionError1("truncated table footer")
	}
	var f footer
	if err := f.decodeFrom(footerSpace); err != nil {
		return nil, err
	}
	// The index must be intact for the table to be usable at all, so
	// always verify it.
	readOptions := rocksdb.ReadOptions{VerifyChecksums: true}
	indexContents, err := readBlock(file, &readOptions, f.indexHandle)
	if err != nil {
		return nil, err
	}
	indexBlock, err := newBlock(indexContents)
	if err != nil {
		return nil, err
	}
	t := &Table{
		options:    options,
		file:       file,
		indexBlock: indexBlock,
	}
	if options.BlockCache != nil {
		t.cacheID = options.BlockCache.NewID()
	}
	return t, nil
}

// Close releases the underlying file.
func (t *Table) Close() error {
	return t.file.Close()
}

func releaseBlockHandle(arg1, arg2 interface{}) {
	cache := arg1.(rocksdb.Cache)
	handle := arg2.(rocksdb.Handle)
	cache.Release(handle)
}

func deleteCachedBlock(_ string, value interface{}) {
	// Dropped from the cache, nothing else references it.
	_ = value.(*block)
}

// blockReader converts an index entry into an iterator over the block
// it names, consulting the block cache first.
func blockReader(arg interface{}, options *rocksdb.ReadOptions, indexValue []byte) rocksdb.Iterator {
	t := arg.(*Table)
	var handle blockHandle
	input := indexValue
	if err := handle.decodeFrom(&input); err != nil {
		return rocksdb.NewErrorIterator(err)
	}

	blockCache := t.options.BlockCache
	var b *block
	var cacheHandle rocksdb.Handle
	if blockCache != nil {
		var cacheKey []byte
		util.PutFixed64(&cacheKey, t.cacheID)
		util.PutFixed64(&cacheKey, handle.offset)
		key := string(cacheKey)
		if cacheHandle = blockCache.Lookup(key); cacheHandle != nil {
			b = blockCache.Value(cacheHandle).(*block)
		} else {
			contents, err := readBlock(t.file, options, handle)
			if err != nil {
				return rocksdb.NewErrorIterator(err)
			}
			var berr error
			if b, berr = newBlock(contents); berr != nil {
				return rocksdb.NewErrorIterator(berr)
			}
			if contents.cachable && options.FillCache {
				cacheHandle = blockCache.Insert(key, b, len(b.data), deleteCachedBlock)
			}
		}
	} else {
		contents, err := readBlock(t.file, options, handle)
		if err != nil {
			return rocksdb.NewErrorIterator(err)
		}
		var berr error
		if b, berr = newBlock(contents); berr != nil {
			return rocksdb.NewErrorIterator(berr)
		}
	}

	iter := b.newIterator(t.options.Comparator)
	if cacheHandle != nil {
		iter.RegisterCleanUp(releaseBlockHandle, blockCache, cacheHandle)
	}
	return iter
}

// NewIterator returns an iterator over the table contents.
func (t *Table) NewIterator(options *rocksdb.ReadOptions) rocksdb.Iterator {
	return NewTwoLevelIterator(t.indexBlock.newIterator(t.options.Comparator), blockReader, t, options)
}

// InternalGet looks up key and invokes handleResult on the first entry
// at or after it, if any.
func (t *Table) InternalGet(options *rocksdb.ReadOptions, key []byte, handleResult func(key, value []byte)) error {
	indexIter := t.indexBlock.newIterator(t.options.Comparator)
	defer indexIter.Close()
	indexIter.Seek(key)
	if indexIter.Valid() {
		blockIter := blockReader(t, options, indexIter.Value())
		defer blockIter.Close()
		blockIter.Seek(key)
		if blockIter.Valid() {
			handleResult(blockIter.Key(), blockIter.Value())
		}
		if err := blockIter.Status(); err != nil {
			return err
		}
	}
	return indexIter.Status()
}
