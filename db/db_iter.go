package db

import (
	"github.com/mtxrym/rocksdb"
	"github.com/mtxrym/rocksdb/util"
)

// dbIterator turns an iterator over internal keys into one over user
// keys: for each user key only the newest entry is surfaced, and user
// keys whose newest entry is a deletion are skipped.
type dbIterator struct {
	rocksdb.CleanUpIterator
	ucmp  rocksdb.Comparator
	iter  rocksdb.Iterator
	valid bool
	key   []byte
	value []byte
	err   error
}

func newDBIterator(ucmp rocksdb.Comparator, internalIter rocksdb.Iterator) rocksdb.Iterator {
	return &dbIterator{ucmp: ucmp, iter: internalIter}
}

func (i *dbIterator) Valid() bool {
	return i.valid
}

func (i *dbIterator) Key() []byte {
	if !i.valid {
		panic("dbIterator: Key on invalid iterator")
	}
	return i.key
}

func (i *dbIterator) Value() []byte {
	if !i.valid {
		panic("dbIterator: Value on invalid iterator")
	}
	return i.value
}

func (i *dbIterator) Status() error {
	if i.err != nil {
		return i.err
	}
	return i.iter.Status()
}

func (i *dbIterator) SeekToFirst() {
	i.iter.SeekToFirst()
	i.findNextUserEntry(nil)
}

func (i *dbIterator) Seek(target []byte) {
	ikey := newInternalKey(target, maxSequenceNumber, valueTypeForSeek)
	i.iter.Seek(ikey.encode())
	i.findNextUserEntry(nil)
}

func (i *dbIterator) Next() {
	if !i.valid {
		panic("dbIterator: Next on invalid iterator")
	}
	// Older entries for the current user key must be skipped.
	skip := append([]byte(nil), i.key...)
	if i.iter.Valid() {
		i.iter.Next()
	}
	i.findNextUserEntry(skip)
}

// findNextUserEntry positions on the next visible user key, skipping
// entries for skip and any user key whose newest entry is a deletion.
func (i *dbIterator) findNextUserEntry(skip []byte) {
	for i.iter.Valid() {
		var parsed parsedInternalKey
		if !parseInternalKey(i.iter.Key(), &parsed) {
			if i.err == nil {
				i.err = util.CorruptionError1("corrupted internal key in dbIterator")
			}
			i.iter.Next()
			continue
		}
		if skip != nil && i.ucmp.Compare(parsed.userKey, skip) <= 0 {
			// An older entry for an already emitted user key.
			i.iter.Next()
			continue
		}
		if parsed.typ == rocksdb.TypeDeletion {
			// Hide all older entries for this key as well.
			skip = append(skip[:0], parsed.userKey...)
			i.iter.Next()
			continue
		}
		i.valid = true
		i.key = append(i.key[:0], parsed.userKey...)
		i.value = i.iter.Value()
		return
	}
	i.valid = false
}

func (i *dbIterator) Close() {
	i.iter.Close()
	i.CleanUpIterator.Close()
}
