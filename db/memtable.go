package db

import (
	"sort"
	"sync/atomic"

	"github.com/zhangyunhao116/skipmap"

	"github.com/mtxrym/rocksdb"
)

// memEntry is the stored form of the newest update for a user key.
type memEntry struct {
	sequence rocksdb.SequenceNumber
	typ      rocksdb.ValueType
	value    []byte
}

// memTable buffers updates in a concurrent skip list keyed by user key.
// Replays always arrive in increasing sequence order, so only the
// newest update per key is retained.
type memTable struct {
	icmp            *internalKeyComparator
	table           *skipmap.FuncMap[string, memEntry]
	approximateSize int64
	refs            int32
}

func newMemTable(icmp *internalKeyComparator) *memTable {
	ucmp := icmp.userComparator
	return &memTable{
		icmp: icmp,
		table: skipmap.NewFunc[string, memEntry](func(a, b string) bool {
			return ucmp.Compare([]byte(a), []byte(b)) < 0
		}),
	}
}

func (m *memTable) ref() {
	atomic.AddInt32(&m.refs, 1)
}

func (m *memTable) unref() {
	if atomic.AddInt32(&m.refs, -1) < 0 {
		panic("memTable: negative refcount")
	}
}

// approximateMemoryUsage estimates the bytes held by the table.
func (m *memTable) approximateMemoryUsage() uint64 {
	return uint64(atomic.LoadInt64(&m.approximateSize))
}

func (m *memTable) empty() bool {
	return m.table.Len() == 0
}

// add records key->value at the given sequence. A TypeDeletion entry
// shadows older values of the key.
func (m *memTable) add(seq rocksdb.SequenceNumber, typ rocksdb.ValueType, key, value []byte) {
	entry := memEntry{sequence: seq, typ: typ}
	if typ == rocksdb.TypeValue {
		entry.value = append([]byte(nil), value...)
	}
	k := string(key)
	if old, ok := m.table.Load(k); ok {
		if old.sequence > seq {
			// Stale replay, the table already has a newer update.
			return
		}
		atomic.AddInt64(&m.approximateSize, int64(len(value)-len(old.value)))
	} else {
		atomic.AddInt64(&m.approximateSize, int64(len(key)+len(value)+16))
	}
	m.table.Store(k, entry)
}

// get returns the newest update for key. found reports whether the
// memtable knows about the key at all; deleted distinguishes tombstones
// from stored values.
func (m *memTable) get(key []byte) (value []byte, deleted, found bool) {
	entry, ok := m.table.Load(string(key))
	if !ok {
		return nil, false, false
	}
	if entry.typ == rocksdb.TypeDeletion {
		return nil, true, true
	}
	return entry.value, false, true
}

type memTableEntry struct {
	internalKey []byte
	value       []byte
}

// memTableIterator walks a point in time snapshot of the memtable in
// internal key order.
type memTableIterator struct {
	rocksdb.CleanUpIterator
	icmp    *internalKeyComparator
	entries []memTableEntry
	index   int
}

// newIterator snapshots the current contents. Updates applied after the
// call are not visible to the iterator.
func (m *memTable) newIterator() rocksdb.Iterator {
	entries := make([]memTableEntry, 0, m.table.Len())
	m.table.Range(func(key string, entry memEntry) bool {
		var ikey []byte
		parsed := parsedInternalKey{userKey: []byte(key), sequence: entry.sequence, typ: entry.typ}
		appendInternalKey(&ikey, &parsed)
		entries = append(entries, memTableEntry{internalKey: ikey, value: entry.value})
		return true
	})
	return &memTableIterator{icmp: m.icmp, entries: entries, index: len(entries)}
}

func (i *memTableIterator) Valid() bool {
	return i.index >= 0 && i.index < len(i.entries)
}

func (i *memTableIterator) SeekToFirst() {
	i.index = 0
}

func (i *memTableIterator) Seek(target []byte) {
	i.index = sort.Search(len(i.entries), func(n int) bool {
		return i.icmp.Compare(i.entries[n].internalKey, target) >= 0
	})
}

func (i *memTableIterator) Next() {
	if !i.Valid() {
		panic("memTableIterator: Next on invalid iterator")
	}
	i.index++
}

func (i *memTableIterator) Key() []byte {
	if !i.Valid() {
		panic("memTableIterator: Key on invalid iterator")
	}
	return i.entries[i.index].internalKey
}

func (i *memTableIterator) Value() []byte {
	if !i.Valid() {
		panic("memTableIterator: Value on invalid iterator")
	}
	return i.entries[i.index].value
}

func (i *memTableIterator) Status() error {
	return nil
}
