package db

import (
	"fmt"
	"sort"

	"github.com/mtxrym/rocksdb"
	"github.com/mtxrym/rocksdb/util"
)

// Tags for field-tagged records in the manifest. New tags may be added
// but existing values must not change.
const (
	tagComparator     uint32 = 1
	tagLogNumber      uint32 = 2
	tagNextFileNumber uint32 = 3
	tagLastSequence   uint32 = 4
	tagDeletedFile    uint32 = 6
	tagNewFile        uint32 = 7
	tagNumLevels      uint32 = 8
)

// fileMetaData describes one table file of a version.
type fileMetaData struct {
	refs     int
	number   uint64
	fileSize uint64
	smallest internalKey
	largest  internalKey
}

type deletedFileEntry struct {
	level  int
	number uint64
}

type newFileEntry struct {
	level int
	meta  fileMetaData
}

// versionEdit is a delta applied to a version to produce its successor.
// Every state transition of the database is captured by exactly one
// edit appended to the manifest.
type versionEdit struct {
	comparator        string
	logNumber         uint64
	nextFileNumber    uint64
	lastSequence      rocksdb.SequenceNumber
	numLevels         int
	hasComparator     bool
	hasLogNumber      bool
	hasNextFileNumber bool
	hasLastSequence   bool
	hasNumLevels      bool

	deletedFiles map[deletedFileEntry]struct{}
	newFiles     []newFileEntry
}

func (e *versionEdit) clear() {
	*e = versionEdit{}
}

func (e *versionEdit) setComparatorName(name string) {
	e.hasComparator = true
	e.comparator = name
}

func (e *versionEdit) setLogNumber(num uint64) {
	e.hasLogNumber = true
	e.logNumber = num
}

func (e *versionEdit) setNextFile(num uint64) {
	e.hasNextFileNumber = true
	e.nextFileNumber = num
}

func (e *versionEdit) setLastSequence(seq rocksdb.SequenceNumber) {
	e.hasLastSequence = true
	e.lastSequence = seq
}

// setNumLevels records the level count of the database. Present in the
// first edit of every manifest and in edits produced by level
// reduction.
func (e *versionEdit) setNumLevels(n int) {
	e.hasNumLevels = true
	e.numLevels = n
}

// addFile adds a file with the given number to the given level. The
// smallest and largest internal keys must bound every entry in the
// file.
func (e *versionEdit) addFile(level int, number, fileSize uint64, smallest, largest internalKey) {
	e.newFiles = append(e.newFiles, newFileEntry{
		level: level,
		meta: fileMetaData{
			number:   number,
			fileSize: fileSize,
			smallest: smallest,
			largest:  largest,
		},
	})
}

// deleteFile removes the named file from the given level.
func (e *versionEdit) deleteFile(level int, number uint64) {
	if e.deletedFiles == nil {
		e.deletedFiles = make(map[deletedFileEntry]struct{})
	}
	e.deletedFiles[deletedFileEntry{level: level, number: number}] = struct{}{}
}

func (e *versionEdit) encodeTo(dst *[]byte) {
	if e.hasComparator {
		util.PutVarInt32(dst, tagComparator)
		util.PutLengthPrefixedSlice(dst, []byte(e.comparator))
	}
	if e.hasLogNumber {
		util.PutVarInt32(dst, tagLogNumber)
		util.PutVarInt64(dst, e.logNumber)
	}
	if e.hasNextFileNumber {
		util.PutVarInt32(dst, tagNextFileNumber)
		util.PutVarInt64(dst, e.nextFileNumber)
	}
	if e.hasLastSequence {
		util.PutVarInt32(dst, tagLastSequence)
		util.PutVarInt64(dst, uint64(e.lastSequence))
	}
	if e.hasNumLevels {
		util.PutVarInt32(dst, tagNumLevels)
		util.PutVarInt32(dst, uint32(e.numLevels))
	}
	deleted := make([]deletedFileEntry, 0, len(e.deletedFiles))
	for entry := range e.deletedFiles {
		deleted = append(deleted, entry)
	}
	sort.Slice(deleted, func(i, j int) bool {
		if deleted[i].level != deleted[j].level {
			return deleted[i].level < deleted[j].level
		}
		return deleted[i].number < deleted[j].number
	})
	for _, entry := range deleted {
		util.PutVarInt32(dst, tagDeletedFile)
		util.PutVarInt32(dst, uint32(entry.level))
		util.PutVarInt64(dst, entry.number)
	}
	for i := range e.newFiles {
		f := &e.newFiles[i]
		util.PutVarInt32(dst, tagNewFile)
		util.PutVarInt32(dst, uint32(f.level))
		util.PutVarInt64(dst, f.meta.number)
		util.PutVarInt64(dst, f.meta.fileSize)
		util.PutLengthPrefixedSlice(dst, f.meta.smallest.encode())
		util.PutLengthPrefixedSlice(dst, f.meta.largest.encode())
	}
}

func getInternalKey(input *[]byte, dst *internalKey) bool {
	var s []byte
	if !util.GetLengthPrefixedSlice(input, &s) {
		return false
	}
	if len(s) < 8 {
		return false
	}
	dst.decodeFrom(s)
	return true
}

func getLevel(input *[]byte, level *int) bool {
	var v uint32
	if !util.GetVarInt32(input, &v) {
		return false
	}
	if v >= maxLevels {
		return false
	}
	*level = int(v)
	return true
}

func (e *versionEdit) decodeFrom(src []byte) error {
	e.clear()
	input := src
	var msg string
	var tag uint32
	var level int
	var number uint64
	var f fileMetaData
	var s []byte
	for msg == "" && util.GetVarInt32(&input, &tag) {
		switch tag {
		case tagComparator:
			if util.GetLengthPrefixedSlice(&input, &s) {
				e.comparator = string(s)
				e.hasComparator = true
			} else {
				msg = "comparator name"
			}
		case tagLogNumber:
			if util.GetVarInt64(&input, &e.logNumber) {
				e.hasLogNumber = true
			} else {
				msg = "log number"
			}
		case tagNextFileNumber:
			if util.GetVarInt64(&input, &e.nextFileNumber) {
				e.hasNextFileNumber = true
			} else {
				msg = "next file number"
			}
		case tagLastSequence:
			var seq uint64
			if util.GetVarInt64(&input, &seq) {
				e.lastSequence = rocksdb.SequenceNumber(seq)
				e.hasLastSequence = true
			} else {
				msg = "last sequence number"
			}
		case tagNumLevels:
			var v uint32
			if util.GetVarInt32(&input, &v) && v > 0 && v <= maxLevels {
				e.numLevels = int(v)
				e.hasNumLevels = true
			} else {
				msg = "level count"
			}
		case tagDeletedFile:
			if getLevel(&input, &level) && util.GetVarInt64(&input, &number) {
				e.deleteFile(level, number)
			} else {
				msg = "deleted file"
			}
		case tagNewFile:
			if getLevel(&input, &level) &&
				util.GetVarInt64(&input, &f.number) &&
				util.GetVarInt64(&input, &f.fileSize) &&
				getInternalKey(&input, &f.smallest) &&
				getInternalKey(&input, &f.largest) {
				e.newFiles = append(e.newFiles, newFileEntry{level: level, meta: f})
				f = fileMetaData{}
			} else {
				msg = "new file entry"
			}
		default:
			msg = "unknown tag"
		}
	}
	if msg == "" && len(input) != 0 {
		msg = "invalid tag"
	}
	if msg != "" {
		return util.CorruptionError2("VersionEdit", msg)
	}
	return nil
}

func (e *versionEdit) debugString() string {
	r := "VersionEdit {"
	if e.hasComparator {
		r += "\n  Comparator: " + e.comparator
	}
	if e.hasLogNumber {
		r += fmt.Sprintf("\n  LogNumber: %d", e.logNumber)
	}
	if e.hasNextFileNumber {
		r += fmt.Sprintf("\n  NextFile: %d", e.nextFileNumber)
	}
	if e.hasLastSequence {
		r += fmt.Sprintf("\n  LastSeq: %d", e.lastSequence)
	}
	if e.hasNumLevels {
		r += fmt.Sprintf("\n  NumLevels: %d", e.numLevels)
	}
	for entry := range e.deletedFiles {
		r += fmt.Sprintf("\n  DeleteFile: %d %d", entry.level, entry.number)
	}
	for i := range e.newFiles {
		f := &e.newFiles[i]
		r += fmt.Sprintf("\n  AddFile: %d %d %d %s .. %s",
			f.level, f.meta.number, f.meta.fileSize,
			f.meta.smallest.debugString(), f.meta.largest.debugString())
	}
	r += "\n}\n"
	return r
}
