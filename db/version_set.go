package db

import (
	"fmt"
	"sort"

	"github.com/mtxrym/rocksdb"
	"github.com/mtxrym/rocksdb/table"
	"github.com/mtxrym/rocksdb/util"
)

// findFile returns the index of the first file in files whose largest
// key is >= key. files must be sorted and non overlapping.
func findFile(icmp *internalKeyComparator, files []*fileMetaData, key []byte) int {
	return sort.Search(len(files), func(i int) bool {
		return icmp.Compare(files[i].largest.encode(), key) >= 0
	})
}

func afterFile(ucmp rocksdb.Comparator, userKey []byte, f *fileMetaData) bool {
	return userKey != nil && ucmp.Compare(userKey, f.largest.userKey()) > 0
}

func beforeFile(ucmp rocksdb.Comparator, userKey []byte, f *fileMetaData) bool {
	return userKey != nil && ucmp.Compare(userKey, f.smallest.userKey()) < 0
}

// someFileOverlapsRange reports whether any file overlaps the user key
// range [smallest, largest]. A nil bound means unbounded.
func someFileOverlapsRange(icmp *internalKeyComparator, disjointSortedFiles bool, files []*fileMetaData, smallestUserKey, largestUserKey []byte) bool {
	ucmp := icmp.userComparator
	if !disjointSortedFiles {
		for _, f := range files {
			if !afterFile(ucmp, smallestUserKey, f) && !beforeFile(ucmp, largestUserKey, f) {
				return true
			}
		}
		return false
	}
	index := 0
	if smallestUserKey != nil {
		smallKey := newInternalKey(smallestUserKey, maxSequenceNumber, valueTypeForSeek)
		index = findFile(icmp, files, smallKey.encode())
	}
	if index >= len(files) {
		return false
	}
	return !beforeFile(ucmp, largestUserKey, files[index])
}

// version is an immutable snapshot of the files at each level. Versions
// form a doubly linked list owned by the versionSet; the newest one is
// current.
type version struct {
	vset  *versionSet
	next  *version
	prev  *version
	refs  int
	files [][]*fileMetaData
}

func newVersion(vset *versionSet, numLevels int) *version {
	v := &version{
		vset:  vset,
		files: make([][]*fileMetaData, numLevels),
	}
	v.next = v
	v.prev = v
	return v
}

func (v *version) numLevels() int {
	return len(v.files)
}

func (v *version) numFiles(level int) int {
	if level >= v.numLevels() {
		return 0
	}
	return len(v.files[level])
}

func (v *version) ref() {
	v.refs++
}

func (v *version) unref() {
	if v.refs < 1 {
		panic("version: negative refcount")
	}
	v.refs--
	if v.refs == 0 && v != &v.vset.dummyVersions {
		v.prev.next = v.next
		v.next.prev = v.prev
		for _, files := range v.files {
			for _, f := range files {
				f.refs--
			}
		}
	}
}

func (v *version) overlapInLevel(level int, smallestUserKey, largestUserKey []byte) bool {
	return someFileOverlapsRange(v.vset.icmp, level > 0, v.files[level], smallestUserKey, largestUserKey)
}

// pickLevelForMemTableOutput returns the level a flushed memtable
// covering [smallestUserKey, largestUserKey] should be placed at: the
// highest level up to maxMemCompactLevel whose lower levels it does
// not overlap.
func (v *version) pickLevelForMemTableOutput(smallestUserKey, largestUserKey []byte, maxMemCompactLevel int) int {
	level := 0
	if v.overlapInLevel(0, smallestUserKey, largestUserKey) {
		return 0
	}
	for level < maxMemCompactLevel && level+1 < v.numLevels() {
		if v.overlapInLevel(level+1, smallestUserKey, largestUserKey) {
			break
		}
		level++
	}
	return level
}

type saverState int

const (
	saverNotFound saverState = iota
	saverFound
	saverDeleted
	saverCorrupt
)

type saver struct {
	state   saverState
	ucmp    rocksdb.Comparator
	userKey []byte
	value   []byte
}

func saveValue(s *saver, ikey, v []byte) {
	var parsed parsedInternalKey
	if !parseInternalKey(ikey, &parsed) {
		s.state = saverCorrupt
		return
	}
	if s.ucmp.Compare(parsed.userKey, s.userKey) != 0 {
		return
	}
	if parsed.typ == rocksdb.TypeValue {
		s.state = saverFound
		s.value = append([]byte(nil), v...)
	} else {
		s.state = saverDeleted
	}
}

// get looks up userKey in the table files, newest first.
func (v *version) get(options *rocksdb.ReadOptions, userKey []byte) ([]byte, error) {
	ucmp := v.vset.icmp.userComparator
	ikey := newInternalKey(userKey, maxSequenceNumber, valueTypeForSeek)

	var searchFiles []*fileMetaData
	for level := 0; level < v.numLevels(); level++ {
		files := v.files[level]
		if len(files) == 0 {
			continue
		}
		searchFiles = searchFiles[:0]
		if level == 0 {
			// Level 0 files may overlap each other, check every file
			// containing the key, newest first.
			for _, f := range files {
				if ucmp.Compare(userKey, f.smallest.userKey()) >= 0 &&
					ucmp.Compare(userKey, f.largest.userKey()) <= 0 {
					searchFiles = append(searchFiles, f)
				}
			}
			sort.Slice(searchFiles, func(i, j int) bool {
				return searchFiles[i].number > searchFiles[j].number
			})
		} else {
			index := findFile(v.vset.icmp, files, ikey.encode())
			if index < len(files) {
				f := files[index]
				if ucmp.Compare(userKey, f.smallest.userKey()) >= 0 {
					searchFiles = append(searchFiles, f)
				}
			}
		}
		for _, f := range searchFiles {
			s := saver{state: saverNotFound, ucmp: ucmp, userKey: userKey}
			err := v.vset.tableCache.get(options, f.number, f.fileSize, ikey.encode(), func(k, val []byte) {
				saveValue(&s, k, val)
			})
			if err != nil {
				return nil, err
			}
			switch s.state {
			case saverFound:
				return s.value, nil
			case saverDeleted:
				return nil, util.NotFoundError1(util.EscapeString(userKey))
			case saverCorrupt:
				return nil, util.CorruptionError2("corrupted key for", util.EscapeString(userKey))
			}
		}
	}
	return nil, util.NotFoundError1(util.EscapeString(userKey))
}

// addIteratorsFromLevel appends iterators that together yield the
// contents of every level >= fromLevel.
func (v *version) addIteratorsFromLevel(options *rocksdb.ReadOptions, fromLevel int, iters *[]rocksdb.Iterator) {
	for level := fromLevel; level < v.numLevels(); level++ {
		files := v.files[level]
		if len(files) == 0 {
			continue
		}
		if level == 0 {
			for _, f := range files {
				*iters = append(*iters, v.vset.tableCache.newIterator(options, f.number, f.fileSize, nil))
			}
		} else {
			*iters = append(*iters, v.newConcatenatingIterator(options, level))
		}
	}
}

func (v *version) addIterators(options *rocksdb.ReadOptions, iters *[]rocksdb.Iterator) {
	v.addIteratorsFromLevel(options, 0, iters)
}

func (v *version) newConcatenatingIterator(options *rocksdb.ReadOptions, level int) rocksdb.Iterator {
	return table.NewTwoLevelIterator(
		newLevelFileNumIterator(v.vset.icmp, v.files[level]),
		getFileIterator, v.vset.tableCache, options)
}

func (v *version) debugString() string {
	var r string
	for level := 0; level < v.numLevels(); level++ {
		r += fmt.Sprintf("--- level %d ---\n", level)
		for _, f := range v.files[level] {
			r += fmt.Sprintf(" %d:%d[%s .. %s]\n", f.number, f.fileSize,
				f.smallest.debugString(), f.largest.debugString())
		}
	}
	return r
}

// levelFileNumIterator is the index iterator of a sorted level: keys
// are the largest key of each file, values encode (number, size).
type levelFileNumIterator struct {
	rocksdb.CleanUpIterator
	icmp     *internalKeyComparator
	files    []*fileMetaData
	index    int
	valueBuf [16]byte
}

func newLevelFileNumIterator(icmp *internalKeyComparator, files []*fileMetaData) rocksdb.Iterator {
	return &levelFileNumIterator{
		icmp:  icmp,
		files: files,
		index: len(files),
	}
}

func (i *levelFileNumIterator) Valid() bool {
	return i.index < len(i.files)
}

func (i *levelFileNumIterator) Seek(target []byte) {
	i.index = findFile(i.icmp, i.files, target)
}

func (i *levelFileNumIterator) SeekToFirst() {
	i.index = 0
}

func (i *levelFileNumIterator) Next() {
	if !i.Valid() {
		panic("levelFileNumIterator: Next on invalid iterator")
	}
	i.index++
}

func (i *levelFileNumIterator) Key() []byte {
	if !i.Valid() {
		panic("levelFileNumIterator: Key on invalid iterator")
	}
	return i.files[i.index].largest.encode()
}

func (i *levelFileNumIterator) Value() []byte {
	if !i.Valid() {
		panic("levelFileNumIterator: Value on invalid iterator")
	}
	f := i.files[i.index]
	util.EncodeFixed64(i.valueBuf[:8], f.number)
	util.EncodeFixed64(i.valueBuf[8:], f.fileSize)
	return i.valueBuf[:]
}

func (i *levelFileNumIterator) Status() error {
	return nil
}

func getFileIterator(arg interface{}, options *rocksdb.ReadOptions, fileValue []byte) rocksdb.Iterator {
	cache := arg.(*tableCache)
	if len(fileValue) != 16 {
		return rocksdb.NewErrorIterator(util.CorruptionError1("FileReader invoked with unexpected value"))
	}
	return cache.newIterator(options,
		util.DecodeFixed64(fileValue[:8]), util.DecodeFixed64(fileValue[8:]), nil)
}

// versionSet tracks the sequence of versions of one database together
// with the counters persisted in the manifest.
type versionSet struct {
	env                rocksdb.Env
	dbname             string
	options            *rocksdb.Options
	icmp               *internalKeyComparator
	tableCache         *tableCache
	numLevels          int
	nextFileNumber     uint64
	manifestFileNumber uint64
	lastSequence       rocksdb.SequenceNumber
	logNumber          uint64

	descriptorFile rocksdb.WritableFile
	descriptorLog  *logWriter
	dummyVersions  version
	current        *version
}

func newVersionSet(dbname string, options *rocksdb.Options, tableCache *tableCache, icmp *internalKeyComparator) *versionSet {
	s := &versionSet{
		env:            options.Env,
		dbname:         dbname,
		options:        options,
		icmp:           icmp,
		tableCache:     tableCache,
		numLevels:      options.NumLevels,
		nextFileNumber: 2,
	}
	s.dummyVersions.next = &s.dummyVersions
	s.dummyVersions.prev = &s.dummyVersions
	s.appendVersion(newVersion(s, s.numLevels))
	return s
}

func (s *versionSet) close() {
	s.current.unref()
	if s.dummyVersions.next != &s.dummyVersions {
		panic("versionSet: versions still referenced on close")
	}
	if s.descriptorFile != nil {
		_ = s.descriptorFile.Close()
		s.descriptorFile = nil
		s.descriptorLog = nil
	}
}

func (s *versionSet) appendVersion(v *version) {
	if v.refs != 0 || v == s.current {
		panic("versionSet: bad version append")
	}
	if s.current != nil {
		s.current.unref()
	}
	s.current = v
	v.ref()
	v.prev = s.dummyVersions.prev
	v.next = &s.dummyVersions
	v.prev.next = v
	v.next.prev = v
}

func (s *versionSet) newFileNumber() uint64 {
	n := s.nextFileNumber
	s.nextFileNumber++
	return n
}

// reuseFileNumber gives back an allocated number if no newer number has
// been handed out.
func (s *versionSet) reuseFileNumber(number uint64) {
	if s.nextFileNumber == number+1 {
		s.nextFileNumber = number
	}
}

func (s *versionSet) markFileNumberUsed(number uint64) {
	if s.nextFileNumber <= number {
		s.nextFileNumber = number + 1
	}
}

func (s *versionSet) numLevelFiles(level int) int {
	return s.current.numFiles(level)
}

// maxPopulatedLevel returns the highest level holding at least one
// file, or -1 for an empty database.
func (s *versionSet) maxPopulatedLevel() int {
	result := -1
	for level := 0; level < s.current.numLevels(); level++ {
		if len(s.current.files[level]) > 0 {
			result = level
		}
	}
	return result
}

// addLiveFiles inserts the numbers of all files referenced by any
// version into live.
func (s *versionSet) addLiveFiles(live map[uint64]struct{}) {
	for v := s.dummyVersions.next; v != &s.dummyVersions; v = v.next {
		for _, files := range v.files {
			for _, f := range files {
				live[f.number] = struct{}{}
			}
		}
	}
}

// logAndApply applies edit to the current version, persists it as one
// record in the manifest and installs the result. The new version is
// validated before anything is written; a validation failure leaves
// both the manifest and the in memory state untouched.
func (s *versionSet) logAndApply(edit *versionEdit) error {
	if edit.hasLogNumber {
		if edit.logNumber < s.logNumber || edit.logNumber >= s.nextFileNumber {
			panic("versionSet: edit has bad log number")
		}
	} else {
		edit.setLogNumber(s.logNumber)
	}
	edit.setNextFile(s.nextFileNumber)
	edit.setLastSequence(s.lastSequence)

	newNumLevels := s.numLevels
	if edit.hasNumLevels {
		newNumLevels = edit.numLevels
	}
	v := newVersion(s, newNumLevels)
	builder := newVersionSetBuilder(s, s.current)
	builder.apply(edit)
	if err := builder.saveTo(v); err != nil {
		return err
	}
	if err := checkLevelInvariants(s.icmp, v); err != nil {
		return err
	}

	// Writing to a new manifest starts with a snapshot of the current
	// state, so a reader needs only this one file.
	createdNewManifest := false
	var err error
	if s.descriptorLog == nil {
		if s.descriptorFile != nil {
			panic("versionSet: descriptor file without log")
		}
		manifestName := descriptorFileName(s.dbname, s.manifestFileNumber)
		s.descriptorFile, err = s.env.NewWritableFile(manifestName)
		if err == nil {
			s.descriptorLog = newLogWriter(s.descriptorFile)
			createdNewManifest = true
			err = s.writeSnapshot(s.descriptorLog)
		}
	}

	if err == nil {
		var record []byte
		edit.encodeTo(&record)
		err = s.descriptorLog.addRecord(record)
		if err == nil {
			err = s.descriptorFile.Sync()
		}
		if err != nil {
			rocksdb.Log(s.options.InfoLog, "MANIFEST write: %v", err)
		}
	}
	if err == nil && createdNewManifest {
		err = setCurrentFile(s.env, s.dbname, s.manifestFileNumber)
	}

	if err == nil {
		s.appendVersion(v)
		s.logNumber = edit.logNumber
		s.numLevels = newNumLevels
		return nil
	}
	if createdNewManifest {
		_ = s.descriptorFile.Close()
		_ = s.env.DeleteFile(descriptorFileName(s.dbname, s.manifestFileNumber))
		s.descriptorFile = nil
		s.descriptorLog = nil
	}
	return err
}

// rollManifest closes the live descriptor so the next logAndApply
// writes a fresh manifest and installs it with a CURRENT swap. Until
// that swap CURRENT keeps naming the previous manifest, so a failed
// edit leaves the recorded state untouched.
func (s *versionSet) rollManifest() {
	if s.descriptorLog == nil {
		return
	}
	_ = s.descriptorFile.Close()
	s.descriptorFile = nil
	s.descriptorLog = nil
	s.manifestFileNumber = s.newFileNumber()
}

type recoverReporter struct {
	err error
}

func (r *recoverReporter) corruption(bytes int, err error) {
	if r.err == nil {
		r.err = err
	}
}

// recover rebuilds the version state from the manifest named by
// CURRENT. saveManifest reports whether the caller must commit a fresh
// manifest: the recovered one is never appended to again, so the live
// descriptor is always the one CURRENT names.
func (s *versionSet) recover() (saveManifest bool, err error) {
	currentData, err := rocksdb.ReadFileToString(s.env, currentFileName(s.dbname))
	if err != nil {
		return false, err
	}
	if len(currentData) == 0 || currentData[len(currentData)-1] != '\n' {
		return false, util.CorruptionError1("CURRENT file does not end with newline")
	}
	manifestName := string(currentData[:len(currentData)-1])
	file, err := s.env.NewSequentialFile(s.dbname + "/" + manifestName)
	if err != nil {
		return false, err
	}
	defer file.Close()

	var (
		haveLogNumber    bool
		haveNextFile     bool
		haveLastSequence bool
		haveNumLevels    bool
		nextFile         uint64
		logNumber        uint64
		lastSequence     rocksdb.SequenceNumber
		numLevels        int
	)
	builder := newVersionSetBuilder(s, s.current)

	reporter := &recoverReporter{}
	reader := newLogReader(file, reporter, true)
	var record, scratch []byte
	var edit versionEdit
	for reader.readRecord(&record, &scratch) {
		if err := edit.decodeFrom(record); err != nil {
			return false, err
		}
		if edit.hasComparator && edit.comparator != s.icmp.userComparator.Name() {
			return false, util.InvalidArgumentError2(edit.comparator+" does not match existing comparator",
				s.icmp.userComparator.Name())
		}
		if edit.hasNumLevels {
			numLevels = edit.numLevels
			haveNumLevels = true
		}
		builder.apply(&edit)
		if edit.hasLogNumber {
			logNumber = edit.logNumber
			haveLogNumber = true
		}
		if edit.hasNextFileNumber {
			nextFile = edit.nextFileNumber
			haveNextFile = true
		}
		if edit.hasLastSequence {
			lastSequence = edit.lastSequence
			haveLastSequence = true
		}
	}
	if reporter.err != nil {
		return false, util.CorruptionError2("corrupted manifest", reporter.err.Error())
	}
	if !haveNextFile {
		return false, util.CorruptionError1("no meta-nextfile entry in descriptor")
	}
	if !haveLastSequence {
		return false, util.CorruptionError1("no last-sequence-number entry in descriptor")
	}
	if !haveNumLevels {
		return false, util.CorruptionError1("no level-count entry in descriptor")
	}
	if !haveLogNumber {
		logNumber = 0
	}
	s.markFileNumberUsed(logNumber)

	v := newVersion(s, numLevels)
	if err := builder.saveTo(v); err != nil {
		return false, err
	}
	if err := checkLevelInvariants(s.icmp, v); err != nil {
		return false, err
	}
	s.appendVersion(v)
	s.numLevels = numLevels
	s.manifestFileNumber = nextFile
	s.nextFileNumber = nextFile + 1
	s.lastSequence = lastSequence
	s.logNumber = logNumber
	return true, nil
}

// writeSnapshot appends a record reconstructing the current state to
// log.
func (s *versionSet) writeSnapshot(log *logWriter) error {
	var edit versionEdit
	edit.setComparatorName(s.icmp.userComparator.Name())
	edit.setNumLevels(s.numLevels)
	for level := 0; level < s.current.numLevels(); level++ {
		for _, f := range s.current.files[level] {
			edit.addFile(level, f.number, f.fileSize, f.smallest, f.largest)
		}
	}
	var record []byte
	edit.encodeTo(&record)
	return log.addRecord(record)
}

// versionSetBuilder accumulates edits on top of a base version. Levels
// are tracked up to maxLevels so the level count may change between the
// base and the saved version.
type versionSetBuilder struct {
	vset    *versionSet
	base    *version
	deleted [maxLevels]map[uint64]struct{}
	added   [maxLevels][]*fileMetaData
}

// The base version outlives the builder: both apply and saveTo run
// under the db mutex while base is still the current version.
func newVersionSetBuilder(vset *versionSet, base *version) *versionSetBuilder {
	b := &versionSetBuilder{vset: vset, base: base}
	for level := range b.deleted {
		b.deleted[level] = make(map[uint64]struct{})
	}
	return b
}

func (b *versionSetBuilder) apply(edit *versionEdit) {
	for entry := range edit.deletedFiles {
		b.deleted[entry.level][entry.number] = struct{}{}
	}
	for i := range edit.newFiles {
		entry := &edit.newFiles[i]
		f := entry.meta
		f.refs = 1
		delete(b.deleted[entry.level], f.number)
		b.added[entry.level] = append(b.added[entry.level], &f)
	}
}

// saveTo stores the merged state in v. Fails if any file survives at a
// level v does not have.
func (b *versionSetBuilder) saveTo(v *version) error {
	for level := 0; level < maxLevels; level++ {
		var baseFiles []*fileMetaData
		if level < b.base.numLevels() {
			baseFiles = b.base.files[level]
		}
		addedFiles := b.added[level]
		sort.Slice(addedFiles, func(i, j int) bool {
			return b.vset.icmp.compareInternalKey(&addedFiles[i].smallest, &addedFiles[j].smallest) < 0
		})
		var merged []*fileMetaData
		bi, ai := 0, 0
		for bi < len(baseFiles) || ai < len(addedFiles) {
			var f *fileMetaData
			if ai >= len(addedFiles) ||
				(bi < len(baseFiles) &&
					b.vset.icmp.compareInternalKey(&baseFiles[bi].smallest, &addedFiles[ai].smallest) < 0) {
				f = baseFiles[bi]
				bi++
			} else {
				f = addedFiles[ai]
				ai++
			}
			if _, ok := b.deleted[level][f.number]; ok {
				continue
			}
			merged = append(merged, f)
		}
		if level >= v.numLevels() {
			if len(merged) > 0 {
				return util.CorruptionError2("version builder",
					fmt.Sprintf("%d files remain at dropped level %d", len(merged), level))
			}
			continue
		}
		for _, f := range merged {
			f.refs++
		}
		v.files[level] = merged
	}
	return nil
}
