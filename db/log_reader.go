package db

import (
	"io"

	"github.com/mtxrym/rocksdb"
	"github.com/mtxrym/rocksdb/util"
)

// logReporter is notified of corruption found while reading a log.
type logReporter interface {
	// corruption reports that bytes of the log were dropped.
	corruption(bytes int, err error)
}

// Sentinel results from readPhysicalRecord, above the real record types.
const (
	eofResult = int(maxRecordType) + 1 + iota
	badRecordResult
)

// logReader extracts records from a log file, skipping over corrupted
// regions when possible.
type logReader struct {
	file     rocksdb.SequentialFile
	reporter logReporter
	checksum bool

	backingStore []byte
	buffer       []byte
	eof          bool
}

func newLogReader(file rocksdb.SequentialFile, reporter logReporter, checksum bool) *logReader {
	r := &logReader{
		file:         file,
		reporter:     reporter,
		checksum:     checksum,
		backingStore: make([]byte, blockSize),
	}
	return r
}

// readRecord returns the next complete record, or false at end of log.
// The returned slice is only valid until the next call.
func (r *logReader) readRecord(record *[]byte, scratch *[]byte) bool {
	*scratch = (*scratch)[:0]
	*record = nil
	inFragmentedRecord := false
	var fragment []byte
	for {
		recordResult := r.readPhysicalRecord(&fragment)
		switch recordResult {
		case int(fullType):
			if inFragmentedRecord {
				r.reportCorruption(len(*scratch), "partial record without end(1)")
			}
			*scratch = (*scratch)[:0]
			*record = fragment
			return true
		case int(firstType):
			if inFragmentedRecord {
				r.reportCorruption(len(*scratch), "partial record without end(2)")
			}
			*scratch = append((*scratch)[:0], fragment...)
			inFragmentedRecord = true
		case int(middleType):
			if !inFragmentedRecord {
				r.reportCorruption(len(fragment), "missing start of fragmented record(1)")
			} else {
				*scratch = append(*scratch, fragment...)
			}
		case int(lastType):
			if !inFragmentedRecord {
				r.reportCorruption(len(fragment), "missing start of fragmented record(2)")
			} else {
				*scratch = append(*scratch, fragment...)
				*record = *scratch
				return true
			}
		case eofResult:
			if inFragmentedRecord {
				// The writer died in the middle of the record, drop it.
				*scratch = (*scratch)[:0]
			}
			return false
		case badRecordResult:
			if inFragmentedRecord {
				r.reportCorruption(len(*scratch), "error in middle of record")
				inFragmentedRecord = false
				*scratch = (*scratch)[:0]
			}
		default:
			r.reportCorruption(len(fragment)+len(*scratch), "unknown record type")
			inFragmentedRecord = false
			*scratch = (*scratch)[:0]
		}
	}
}

func (r *logReader) reportCorruption(bytes int, reason string) {
	r.reportDrop(bytes, util.CorruptionError1(reason))
}

func (r *logReader) reportDrop(bytes int, err error) {
	if r.reporter != nil {
		r.reporter.corruption(bytes, err)
	}
}

func (r *logReader) readPhysicalRecord(result *[]byte) int {
	for {
		if len(r.buffer) < headerSize {
			if !r.eof {
				// Last read was a full block, continue with the next.
				n, err := r.file.Read(r.backingStore)
				r.buffer = r.backingStore[:n]
				if err == io.EOF {
					r.eof = true
				} else if err != nil {
					r.buffer = nil
					r.reportDrop(blockSize, err)
					r.eof = true
					return eofResult
				}
				if n < blockSize {
					r.eof = true
				}
				continue
			}
			// A truncated header at file end is a writer crash, not
			// a corruption worth reporting.
			r.buffer = nil
			return eofResult
		}

		header := r.buffer
		length := int(header[4]) | int(header[5])<<8
		recordType := int(header[6])
		if headerSize+length > len(r.buffer) {
			dropSize := len(r.buffer)
			r.buffer = nil
			if !r.eof {
				r.reportCorruption(dropSize, "bad record length")
				return badRecordResult
			}
			// The writer died while writing the payload.
			return eofResult
		}
		if recordType == int(zeroType) && length == 0 {
			// Skip zero filled trailer or preallocated region.
			r.buffer = nil
			return badRecordResult
		}
		if r.checksum {
			expectedCrc := util.UnmaskChecksum(util.DecodeFixed32(header))
			actualCrc := util.ChecksumValue(header[6 : 7+length])
			if actualCrc != expectedCrc {
				dropSize := len(r.buffer)
				r.buffer = nil
				r.reportCorruption(dropSize, "checksum mismatch")
				return badRecordResult
			}
		}
		*result = header[headerSize : headerSize+length]
		r.buffer = r.buffer[headerSize+length:]
		return recordType
	}
}
