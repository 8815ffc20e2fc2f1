package rocksdb

// CleanUpFunction is invoked when an iterator is closed.
type CleanUpFunction func(arg1, arg2 interface{})

// Iterator yields a sequence of key/value pairs in ascending key order.
// Iterators are forward only.
type Iterator interface {
	// Valid reports whether the iterator is positioned at an entry.
	Valid() bool

	// SeekToFirst positions the iterator at the first entry.
	SeekToFirst()

	// Seek positions the iterator at the first entry with key >= target.
	Seek(target []byte)

	// Next advances to the next entry. Requires Valid().
	Next()

	// Key returns the key of the current entry. The returned slice is
	// only valid until the next mutation of the iterator.
	Key() []byte

	// Value returns the value of the current entry, with the same
	// lifetime as Key.
	Value() []byte

	// Status returns the first error encountered, if any.
	Status() error

	// RegisterCleanUp arranges for function to be called on Close.
	RegisterCleanUp(function CleanUpFunction, arg1, arg2 interface{})

	// Close releases resources held by the iterator.
	Close()
}

type cleanUp struct {
	function CleanUpFunction
	arg1     interface{}
	arg2     interface{}
}

// CleanUpIterator provides cleanup registration for iterator
// implementations that embed it.
type CleanUpIterator struct {
	cleanUps []cleanUp
}

func (i *CleanUpIterator) RegisterCleanUp(function CleanUpFunction, arg1, arg2 interface{}) {
	i.cleanUps = append(i.cleanUps, cleanUp{function: function, arg1: arg1, arg2: arg2})
}

func (i *CleanUpIterator) Close() {
	for _, c := range i.cleanUps {
		c.function(c.arg1, c.arg2)
	}
	i.cleanUps = nil
}

type emptyIterator struct {
	CleanUpIterator
	err error
}

func (i *emptyIterator) Valid() bool {
	return false
}

func (i *emptyIterator) SeekToFirst() {
}

func (i *emptyIterator) Seek(_ []byte) {
}

func (i *emptyIterator) Next() {
	panic("emptyIterator: Next on invalid iterator")
}

func (i *emptyIterator) Key() []byte {
	panic("emptyIterator: Key on invalid iterator")
}

func (i *emptyIterator) Value() []byte {
	panic("emptyIterator: Value on invalid iterator")
}

func (i *emptyIterator) Status() error {
	return i.err
}

// NewEmptyIterator returns an iterator over an empty sequence.
func NewEmptyIterator() Iterator {
	return &emptyIterator{}
}

// NewErrorIterator returns an empty iterator whose Status is err.
func NewErrorIterator(err error) Iterator {
	return &emptyIterator{err: err}
}
