package rocksdb

// DB is a persistent ordered map from keys to values. Implementations
// are safe for concurrent use by multiple goroutines.
type DB interface {
	// Put sets the value for the given key.
	Put(options *WriteOptions, key, value []byte) error

	// Delete removes the entry for the given key. It is not an error if
	// the key is absent.
	Delete(options *WriteOptions, key []byte) error

	// Write applies the operations in updates atomically.
	Write(options *WriteOptions, updates WriteBatch) error

	// Get returns the value stored for key. Returns an error satisfying
	// IsNotFound if the key is absent.
	Get(options *ReadOptions, key []byte) ([]byte, error)

	// NewIterator returns a forward iterator over the database contents.
	NewIterator(options *ReadOptions) Iterator

	// FlushMemTable writes the contents of the memtable to a table file
	// and installs it, placing it at the highest level it does not
	// overlap.
	FlushMemTable() error

	// GetProperty exports implementation state. Supported properties
	// include "rocksdb.num-files-at-level<N>", "rocksdb.stats" and
	// "rocksdb.sstables".
	GetProperty(property string) (string, bool)

	// Close releases the database lock and all other resources. The DB
	// must not be used afterwards.
	Close() error
}
