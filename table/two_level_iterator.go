package table

import (
	"bytes"

	"github.com/mtxrym/rocksdb"
)

// BlockFunction converts an index entry value into an iterator over the
// corresponding block.
type BlockFunction func(arg interface{}, options *rocksdb.ReadOptions, indexValue []byte) rocksdb.Iterator

// twoLevelIterator iterates the concatenation of the sequences produced
// by applying BlockFunction to every entry of an index iterator. Used
// for table files (index block -> data blocks) and for sorted levels
// (file list -> table files).
type twoLevelIterator struct {
	rocksdb.CleanUpIterator
	blockFunction  BlockFunction
	arg            interface{}
	options        *rocksdb.ReadOptions
	indexIter      iteratorWrapper
	dataIter       iteratorWrapper
	dataBlockValue []byte
	err            error
}

func NewTwoLevelIterator(indexIter rocksdb.Iterator, blockFunction BlockFunction, arg interface{}, options *rocksdb.ReadOptions) rocksdb.Iterator {
	i := &twoLevelIterator{
		blockFunction: blockFunction,
		arg:           arg,
		options:       options,
	}
	i.indexIter.set(indexIter)
	return i
}

func (i *twoLevelIterator) Valid() bool {
	return i.dataIter.Valid()
}

func (i *twoLevelIterator) Key() []byte {
	if !i.Valid() {
		panic("twoLevelIterator: Key on invalid iterator")
	}
	return i.dataIter.Key()
}

func (i *twoLevelIterator) Value() []byte {
	if !i.Valid() {
		panic("twoLevelIterator: Value on invalid iterator")
	}
	return i.dataIter.Value()
}

func (i *twoLevelIterator) Status() error {
	if err := i.indexIter.iter.Status(); err != nil {
		return err
	}
	if i.dataIter.iter != nil {
		if err := i.dataIter.Status(); err != nil {
			return err
		}
	}
	return i.err
}

func (i *twoLevelIterator) Seek(target []byte) {
	i.indexIter.Seek(target)
	i.initDataBlock()
	if i.dataIter.iter != nil {
		i.dataIter.Seek(target)
	}
	i.skipEmptyDataBlocksForward()
}

func (i *twoLevelIterator) SeekToFirst() {
	i.indexIter.SeekToFirst()
	i.initDataBlock()
	if i.dataIter.iter != nil {
		i.dataIter.SeekToFirst()
	}
	i.skipEmptyDataBlocksForward()
}

func (i *twoLevelIterator) Next() {
	if !i.Valid() {
		panic("twoLevelIterator: Next on invalid iterator")
	}
	i.dataIter.Next()
	i.skipEmptyDataBlocksForward()
}

func (i *twoLevelIterator) skipEmptyDataBlocksForward() {
	for i.dataIter.iter == nil || !i.dataIter.Valid() {
		if !i.indexIter.Valid() {
			i.setDataIterator(nil)
			return
		}
		i.indexIter.Next()
		i.initDataBlock()
		if i.dataIter.iter != nil {
			i.dataIter.SeekToFirst()
		}
	}
}

func (i *twoLevelIterator) setDataIterator(dataIter rocksdb.Iterator) {
	if i.dataIter.iter != nil {
		if err := i.dataIter.Status(); err != nil && i.err == nil {
			i.err = err
		}
	}
	i.dataIter.set(dataIter)
}

func (i *twoLevelIterator) initDataBlock() {
	if !i.indexIter.Valid() {
		i.setDataIterator(nil)
		return
	}
	handle := i.indexIter.Value()
	if i.dataIter.iter != nil && bytes.Equal(handle, i.dataBlockValue) {
		// dataIter is already positioned in this block.
		return
	}
	iter := i.blockFunction(i.arg, i.options, handle)
	i.dataBlockValue = append(i.dataBlockValue[:0], handle...)
	i.setDataIterator(iter)
}

func (i *twoLevelIterator) Close() {
	i.indexIter.close()
	i.dataIter.close()
	i.CleanUpIterator.Close()
}
