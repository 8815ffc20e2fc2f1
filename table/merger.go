package table

import "github.com/mtxrym/rocksdb"

// mergingIterator yields the union of its children in comparator
// order. Children with equal keys are ordered by child index.
type mergingIterator struct {
	rocksdb.CleanUpIterator
	cmp      rocksdb.Comparator
	children []iteratorWrapper
	current  *iteratorWrapper
}

// NewMergingIterator merges the supplied iterators into a single sorted
// stream. Takes ownership of the children.
func NewMergingIterator(cmp rocksdb.Comparator, children []rocksdb.Iterator) rocksdb.Iterator {
	if len(children) == 0 {
		return rocksdb.NewEmptyIterator()
	}
	if len(children) == 1 {
		return children[0]
	}
	i := &mergingIterator{
		cmp:      cmp,
		children: make([]iteratorWrapper, len(children)),
	}
	for n, child := range children {
		i.children[n].set(child)
	}
	return i
}

func (i *mergingIterator) Valid() bool {
	return i.current != nil
}

func (i *mergingIterator) Key() []byte {
	if !i.Valid() {
		panic("mergingIterator: Key on invalid iterator")
	}
	return i.current.Key()
}

func (i *mergingIterator) Value() []byte {
	if !i.Valid() {
		panic("mergingIterator: Value on invalid iterator")
	}
	return i.current.Value()
}

func (i *mergingIterator) Status() error {
	for n := range i.children {
		if err := i.children[n].Status(); err != nil {
			return err
		}
	}
	return nil
}

func (i *mergingIterator) SeekToFirst() {
	for n := range i.children {
		i.children[n].SeekToFirst()
	}
	i.findSmallest()
}

func (i *mergingIterator) Seek(target []byte) {
	for n := range i.children {
		i.children[n].Seek(target)
	}
	i.findSmallest()
}

func (i *mergingIterator) Next() {
	if !i.Valid() {
		panic("mergingIterator: Next on invalid iterator")
	}
	i.current.Next()
	i.findSmallest()
}

func (i *mergingIterator) findSmallest() {
	var smallest *iteratorWrapper
	for n := range i.children {
		child := &i.children[n]
		if !child.Valid() {
			continue
		}
		if smallest == nil || i.cmp.Compare(child.Key(), smallest.Key()) < 0 {
			smallest = child
		}
	}
	i.current = smallest
}

func (i *mergingIterator) Close() {
	for n := range i.children {
		i.children[n].close()
	}
	i.CleanUpIterator.Close()
}
