// Package rocksdb provides a log structured merge tree storage engine
// with explicit control over the number of on disk levels, including an
// offline operation that collapses a database down to fewer levels.
package rocksdb

// SequenceNumber orders all updates applied to the database. Each write
// consumes one sequence number.
type SequenceNumber uint64

// ValueType distinguishes stored values from deletion markers.
type ValueType int8

const (
	TypeDeletion ValueType = 0
	TypeValue    ValueType = 1
)

// CompressionType selects the block compression used by table files.
type CompressionType int8

const (
	NoCompression     CompressionType = 0
	SnappyCompression CompressionType = 1
)
