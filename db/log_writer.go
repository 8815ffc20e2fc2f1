package db

import (
	"github.com/mtxrym/rocksdb"
	"github.com/mtxrym/rocksdb/util"
)

// logWriter appends records to a log file.
type logWriter struct {
	dest        rocksdb.WritableFile
	blockOffset int

	// typeCrc[t] is the crc of the type byte t, precomputed to reduce
	// the cost of computing the crc of the type stored in the header.
	typeCrc [maxRecordType + 1]uint32
}

func initTypeCrc(typeCrc *[maxRecordType + 1]uint32) {
	for i := range typeCrc {
		typeCrc[i] = util.ChecksumValue([]byte{byte(i)})
	}
}

// newLogWriter returns a writer appending to dest, which must be
// initially empty. Ownership of dest stays with the caller.
func newLogWriter(dest rocksdb.WritableFile) *logWriter {
	w := &logWriter{dest: dest}
	initTypeCrc(&w.typeCrc)
	return w
}

// newLogWriterWithLength is like newLogWriter for a dest that already
// has destLength bytes.
func newLogWriterWithLength(dest rocksdb.WritableFile, destLength uint64) *logWriter {
	w := &logWriter{dest: dest, blockOffset: int(destLength % blockSize)}
	initTypeCrc(&w.typeCrc)
	return w
}

func (w *logWriter) addRecord(data []byte) error {
	left := len(data)
	// Empty records are allowed and emit a single zero length fragment.
	begin := true
	for {
		leftover := blockSize - w.blockOffset
		if leftover < headerSize {
			if leftover > 0 {
				// Fill the block trailer with zeroes.
				if err := w.dest.Append(make([]byte, leftover)); err != nil {
					return err
				}
			}
			w.blockOffset = 0
		}
		avail := blockSize - w.blockOffset - headerSize
		fragmentLength := left
		if fragmentLength > avail {
			fragmentLength = avail
		}
		end := left == fragmentLength
		var t recordType
		switch {
		case begin && end:
			t = fullType
		case begin:
			t = firstType
		case end:
			t = lastType
		default:
			t = middleType
		}
		offset := len(data) - left
		if err := w.emitPhysicalRecord(t, data[offset:offset+fragmentLength]); err != nil {
			return err
		}
		left -= fragmentLength
		begin = false
		if left <= 0 {
			return nil
		}
	}
}

func (w *logWriter) emitPhysicalRecord(t recordType, fragment []byte) error {
	length := len(fragment)
	if length > 0xffff || w.blockOffset+headerSize+length > blockSize {
		panic("log fragment does not fit the block")
	}
	var header [headerSize]byte
	crc := util.ChecksumExtend(w.typeCrc[t], fragment)
	util.EncodeFixed32(header[:], util.MaskChecksum(crc))
	header[4] = byte(length & 0xff)
	header[5] = byte(length >> 8)
	header[6] = byte(t)
	if err := w.dest.Append(header[:]); err != nil {
		return err
	}
	if err := w.dest.Append(fragment); err != nil {
		return err
	}
	w.blockOffset += headerSize + length
	return w.dest.Flush()
}
