package db

// Log format shared by the reader and writer. The log is a sequence of
// 32KB blocks; records never straddle a block boundary and are split
// into fragments when they do not fit the remaining space.

type recordType int

const (
	// zeroType is reserved for preallocated files.
	zeroType recordType = iota
	fullType

	// Fragment types.
	firstType
	middleType
	lastType
)

const maxRecordType = lastType

const blockSize = 32768

// Header is checksum (4 bytes), length (2 bytes), type (1 byte).
const headerSize = 4 + 2 + 1
