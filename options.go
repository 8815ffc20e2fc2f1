package rocksdb

import "log"

// Options controls the behavior of a database.
type Options struct {
	// Comparator defines the order of keys in the table.
	Comparator Comparator

	// CreateIfMissing creates the database if it does not exist.
	CreateIfMissing bool

	// ErrorIfExists raises an error if the database already exists.
	ErrorIfExists bool

	// ParanoidChecks makes the implementation aggressively verify the
	// data it is processing and stop early on any corruption.
	ParanoidChecks bool

	// Env provides access to the file system. Defaults to DefaultEnv().
	Env Env

	// InfoLog receives internal progress and error messages. If nil a
	// log file is created in the database directory.
	InfoLog *log.Logger

	// WriteBufferSize is the amount of data to build up in memory
	// before converting it to a sorted on disk file.
	WriteBufferSize int

	// MaxOpenFiles caps the number of open files usable by the
	// database's table cache.
	MaxOpenFiles int

	// BlockCache, if non nil, caches uncompressed table blocks.
	BlockCache Cache

	// BlockSize is the approximate size of user data packed per block
	// before compression.
	BlockSize int

	// BlockRestartInterval is the number of keys between restart points
	// for delta encoding of keys inside a block.
	BlockRestartInterval int

	// MaxFileSize bounds the size of files written during level
	// collapsing and memtable flushes.
	MaxFileSize int

	// Compression selects the block compression for new table files.
	Compression CompressionType

	// NumLevels is the number of on disk levels of a newly created
	// database. Existing databases keep the level count recorded in
	// their manifest.
	NumLevels int

	// MaxMemCompactLevel is the highest level a flushed memtable may be
	// placed at when it does not overlap lower levels.
	MaxMemCompactLevel int
}

// NewOptions returns Options with the default values.
func NewOptions() *Options {
	return &Options{
		Comparator:           BytewiseComparator,
		Env:                  DefaultEnv(),
		WriteBufferSize:      4 * 1024 * 1024,
		MaxOpenFiles:         1000,
		BlockSize:            4 * 1024,
		BlockRestartInterval: 16,
		MaxFileSize:          2 * 1024 * 1024,
		Compression:          SnappyCompression,
		NumLevels:            7,
		MaxMemCompactLevel:   2,
	}
}

// ReadOptions controls read operations.
type ReadOptions struct {
	// VerifyChecksums verifies all data read from the file system
	// against the stored checksums.
	VerifyChecksums bool

	// FillCache controls whether blocks read by this iteration are
	// inserted into the block cache.
	FillCache bool
}

// NewReadOptions returns ReadOptions with the default values.
func NewReadOptions() *ReadOptions {
	return &ReadOptions{FillCache: true}
}

// WriteOptions controls write operations.
type WriteOptions struct {
	// Sync flushes the write ahead log to stable storage before the
	// write is considered complete.
	Sync bool
}

// NewWriteOptions returns WriteOptions with the default values.
func NewWriteOptions() *WriteOptions {
	return &WriteOptions{}
}
