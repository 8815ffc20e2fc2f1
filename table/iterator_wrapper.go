package table

import "github.com/mtxrym/rocksdb"

// iteratorWrapper caches Valid() and Key() to avoid repeated virtual
// calls in the merging and two level iterators.
type iteratorWrapper struct {
	iter  rocksdb.Iterator
	valid bool
	key   []byte
}

func (w *iteratorWrapper) set(iter rocksdb.Iterator) {
	if w.iter != nil {
		w.iter.Close()
	}
	w.iter = iter
	if w.iter == nil {
		w.valid = false
	} else {
		w.update()
	}
}

func (w *iteratorWrapper) update() {
	w.valid = w.iter.Valid()
	if w.valid {
		w.key = w.iter.Key()
	}
}

func (w *iteratorWrapper) close() {
	if w.iter != nil {
		w.iter.Close()
		w.iter = nil
	}
}

func (w *iteratorWrapper) Valid() bool {
	return w.valid
}

func (w *iteratorWrapper) Key() []byte {
	return w.key
}

func (w *iteratorWrapper) Value() []byte {
	return w.iter.Value()
}

func (w *iteratorWrapper) Status() error {
	return w.iter.Status()
}

func (w *iteratorWrapper) SeekToFirst() {
	w.iter.SeekToFirst()
	w.update()
}

func (w *iteratorWrapper) Seek(target []byte) {
	w.iter.Seek(target)
	w.update()
}

func (w *iteratorWrapper) Next() {
	w.iter.Next()
	w.update()
}
