package db

import (
	"fmt"
	"log"
	"sort"
	"sync"

	"github.com/mtxrym/rocksdb"
	"github.com/mtxrym/rocksdb/table"
	"github.com/mtxrym/rocksdb/util"
)

const numNonTableCacheFiles = 10

func clipToRange(value *int, minValue, maxValue int) {
	if *value > maxValue {
		*value = maxValue
	}
	if *value < minValue {
		*value = minValue
	}
}

// sanitizeOptions clamps user supplied options into sane ranges and
// fills in the info log. The internal key comparator is substituted so
// every table and iterator orders internal keys.
func sanitizeOptions(dbname string, icmp *internalKeyComparator, src *rocksdb.Options) (*rocksdb.Options, func() error) {
	result := *src
	result.Comparator = icmp
	clipToRange(&result.NumLevels, 1, maxLevels)
	clipToRange(&result.MaxMemCompactLevel, 0, result.NumLevels-1)
	clipToRange(&result.MaxOpenFiles, 64+numNonTableCacheFiles, 50000)
	clipToRange(&result.WriteBufferSize, 64<<10, 1<<30)
	clipToRange(&result.MaxFileSize, 1<<20, 1<<30)
	clipToRange(&result.BlockSize, 1<<10, 4<<20)
	if result.BlockRestartInterval < 1 {
		result.BlockRestartInterval = 1
	}
	var infoLogCloser func() error
	if result.InfoLog == nil {
		// Open a log file in the same directory as the db.
		_ = src.Env.CreateDir(dbname)
		_ = src.Env.RenameFile(infoLogFileName(dbname), oldInfoLogFileName(dbname))
		logger, closer, err := src.Env.NewLogger(infoLogFileName(dbname))
		if err == nil {
			result.InfoLog = logger
			infoLogCloser = closer
		}
	}
	return &result, infoLogCloser
}

type db struct {
	env                rocksdb.Env
	internalComparator *internalKeyComparator
	options            *rocksdb.Options
	infoLogCloser      func() error
	dbname             string
	tableCache         *tableCache
	dbLock             rocksdb.FileLock

	mu             sync.Mutex
	closed         bool
	mem            *memTable
	logFile        rocksdb.WritableFile
	logFileNumber  uint64
	log            *logWriter
	pendingOutputs map[uint64]struct{}
	versions       *versionSet
}

func newDB(options *rocksdb.Options, dbname string) *db {
	d := &db{
		env:                options.Env,
		internalComparator: newInternalKeyComparator(options.Comparator),
		dbname:             dbname,
		pendingOutputs:     make(map[uint64]struct{}),
	}
	d.options, d.infoLogCloser = sanitizeOptions(dbname, d.internalComparator, options)
	d.tableCache = newTableCache(dbname, d.options, d.options.MaxOpenFiles-numNonTableCacheFiles)
	d.versions = newVersionSet(dbname, d.options, d.tableCache, d.internalComparator)
	return d
}

// Open opens (and possibly creates) the database at dbname.
func Open(dbname string, options *rocksdb.Options) (rocksdb.DB, error) {
	d := newDB(options, dbname)
	d.mu.Lock()
	edit := &versionEdit{}
	saveManifest, err := d.recover(edit)
	if err == nil && d.mem == nil {
		// Create a fresh log and memtable.
		newLogNumber := d.versions.newFileNumber()
		var logFile rocksdb.WritableFile
		logFile, err = d.env.NewWritableFile(logFileName(dbname, newLogNumber))
		if err == nil {
			d.logFile = logFile
			d.logFileNumber = newLogNumber
			d.log = newLogWriter(logFile)
			d.mem = newMemTable(d.internalComparator)
			d.mem.ref()
		}
	}
	if err == nil && saveManifest {
		edit.setLogNumber(d.logFileNumber)
		err = d.versions.logAndApply(edit)
	}
	if err == nil {
		d.deleteObsoleteFiles()
	}
	d.mu.Unlock()
	if err != nil {
		d.release()
		return nil, err
	}
	return d, nil
}

// newDatabase writes the initial manifest of an empty database.
func (d *db) newDatabase() error {
	var newDb versionEdit
	newDb.setComparatorName(d.internalComparator.userComparator.Name())
	newDb.setNumLevels(d.options.NumLevels)
	newDb.setLogNumber(0)
	newDb.setNextFile(2)
	newDb.setLastSequence(0)

	manifest := descriptorFileName(d.dbname, 1)
	file, err := d.env.NewWritableFile(manifest)
	if err != nil {
		return err
	}
	log := newLogWriter(file)
	var record []byte
	newDb.encodeTo(&record)
	err = log.addRecord(record)
	if err == nil {
		err = file.Sync()
	}
	if err == nil {
		err = file.Close()
	} else {
		_ = file.Close()
	}
	if err == nil {
		err = setCurrentFile(d.env, d.dbname, 1)
	} else {
		_ = d.env.DeleteFile(manifest)
	}
	return err
}

// recover brings the database to a consistent state from the manifest
// and any write ahead logs written after it.
func (d *db) recover(edit *versionEdit) (saveManifest bool, err error) {
	_ = d.env.CreateDir(d.dbname)
	if d.dbLock, err = d.env.LockFile(lockFileName(d.dbname)); err != nil {
		return false, err
	}
	if !d.env.FileExists(currentFileName(d.dbname)) {
		if !d.options.CreateIfMissing {
			return false, util.InvalidArgumentError2(d.dbname, "does not exist (create_if_missing is false)")
		}
		if err = d.newDatabase(); err != nil {
			return false, err
		}
	} else if d.options.ErrorIfExists {
		return false, util.InvalidArgumentError2(d.dbname, "exists (error_if_exists is true)")
	}

	if saveManifest, err = d.versions.recover(); err != nil {
		return false, err
	}

	// Any log with a number >= the one named in the manifest may hold
	// updates not yet in a table file.
	minLog := d.versions.logNumber
	filenames, err := d.env.GetChildren(d.dbname)
	if err != nil {
		return false, err
	}
	expected := make(map[uint64]struct{})
	d.versions.addLiveFiles(expected)
	var number uint64
	var ft fileType
	var logs []uint64
	for _, filename := range filenames {
		if parseFileName(filename, &number, &ft) {
			delete(expected, number)
			if ft == logFile && number >= minLog {
				logs = append(logs, number)
			}
		}
	}
	if len(expected) != 0 {
		return false, util.CorruptionError2(
			fmt.Sprintf("%d missing files; e.g.", len(expected)),
			tableFileName(d.dbname, anyKey(expected)))
	}

	sort.Slice(logs, func(i, j int) bool { return logs[i] < logs[j] })
	var maxSequence rocksdb.SequenceNumber
	for _, logNumber := range logs {
		if err = d.recoverLogFile(logNumber, edit, &saveManifest, &maxSequence); err != nil {
			return false, err
		}
		// Earlier incarnations may have allocated this number.
		d.versions.markFileNumberUsed(logNumber)
	}
	if d.versions.lastSequence < maxSequence {
		d.versions.lastSequence = maxSequence
	}
	return saveManifest, nil
}

func anyKey(m map[uint64]struct{}) uint64 {
	for k := range m {
		return k
	}
	return 0
}

type logFileReporter struct {
	infoLog  *log.Logger
	fname    string
	paranoid bool
	err      error
}

func (r *logFileReporter) corruption(bytes int, err error) {
	rocksdb.Log(r.infoLog, "%s: dropping %d bytes; %v", r.fname, bytes, err)
	if r.paranoid && r.err == nil {
		r.err = err
	}
}

func (d *db) recoverLogFile(logNumber uint64, edit *versionEdit, saveManifest *bool, maxSequence *rocksdb.SequenceNumber) error {
	fname := logFileName(d.dbname, logNumber)
	file, err := d.env.NewSequentialFile(fname)
	if err != nil {
		return err
	}
	defer file.Close()

	reporter := &logFileReporter{
		infoLog:  d.options.InfoLog,
		fname:    fname,
		paranoid: d.options.ParanoidChecks,
	}
	reader := newLogReader(file, reporter, true)
	rocksdb.Log(d.options.InfoLog, "Recovering log #%d", logNumber)

	var record, scratch []byte
	var mem *memTable
	batch := rocksdb.NewWriteBatch()
	for reader.readRecord(&record, &scratch) && reporter.err == nil {
		if len(record) < writeBatchHeaderSize {
			reporter.corruption(len(record), util.CorruptionError1("log record too small"))
			continue
		}
		batch.SetContents(record)
		if mem == nil {
			mem = newMemTable(d.internalComparator)
			mem.ref()
		}
		if err = insertBatchInto(batch, mem); err != nil {
			return err
		}
		lastSeq := writeBatchSequence(batch) + rocksdb.SequenceNumber(writeBatchCount(batch)) - 1
		if lastSeq > *maxSequence {
			*maxSequence = lastSeq
		}
		if mem.approximateMemoryUsage() > uint64(d.options.WriteBufferSize) {
			*saveManifest = true
			if err = d.writeLevel0Table(mem, edit, nil); err != nil {
				return err
			}
			mem.unref()
			mem = nil
		}
	}
	if err := reporter.err; err != nil {
		return err
	}
	if mem != nil {
		*saveManifest = true
		if err = d.writeLevel0Table(mem, edit, nil); err != nil {
			return err
		}
		mem.unref()
	}
	return nil
}

// writeLevel0Table flushes mem to a new table file and records it in
// edit. When base is non nil the file may be placed above level 0 if
// it does not overlap anything there.
func (d *db) writeLevel0Table(mem *memTable, edit *versionEdit, base *version) error {
	startMicros := d.env.NowMicros()
	meta := fileMetaData{number: d.versions.newFileNumber()}
	d.pendingOutputs[meta.number] = struct{}{}
	iter := mem.newIterator()
	rocksdb.Log(d.options.InfoLog, "Level-0 table #%d: started", meta.number)

	d.mu.Unlock()
	err := buildTable(d.dbname, d.env, d.options, d.tableCache, iter, &meta)
	d.mu.Lock()

	rocksdb.Log(d.options.InfoLog, "Level-0 table #%d: %d bytes %v (%d us)",
		meta.number, meta.fileSize, err, d.env.NowMicros()-startMicros)
	iter.Close()
	delete(d.pendingOutputs, meta.number)

	if err == nil && meta.fileSize > 0 {
		level := 0
		if base != nil {
			level = base.pickLevelForMemTableOutput(
				meta.smallest.userKey(), meta.largest.userKey(), d.options.MaxMemCompactLevel)
		}
		edit.addFile(level, meta.number, meta.fileSize, meta.smallest, meta.largest)
	}
	return err
}

// flushMemTableLocked writes the memtable out, switches to a new log
// and installs the result. No-op when the memtable is empty.
func (d *db) flushMemTableLocked() error {
	if d.mem.empty() {
		return nil
	}
	base := d.versions.current
	base.ref()
	var edit versionEdit
	err := d.writeLevel0Table(d.mem, &edit, base)
	base.unref()

	if err == nil {
		newLogNumber := d.versions.newFileNumber()
		var logFile rocksdb.WritableFile
		logFile, err = d.env.NewWritableFile(logFileName(d.dbname, newLogNumber))
		if err == nil {
			_ = d.logFile.Close()
			d.logFile = logFile
			d.logFileNumber = newLogNumber
			d.log = newLogWriter(logFile)
			edit.setLogNumber(newLogNumber)
			err = d.versions.logAndApply(&edit)
		} else {
			d.versions.reuseFileNumber(newLogNumber)
		}
	}
	if err == nil {
		d.mem.unref()
		d.mem = newMemTable(d.internalComparator)
		d.mem.ref()
		d.deleteObsoleteFiles()
	}
	return err
}

// FlushMemTable forces the memtable contents into a table file.
func (d *db) FlushMemTable() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return util.InvalidArgumentError1("database is closed")
	}
	return d.flushMemTableLocked()
}

func (d *db) makeRoomForWrite() error {
	if d.mem.approximateMemoryUsage() <= uint64(d.options.WriteBufferSize) {
		return nil
	}
	return d.flushMemTableLocked()
}

func (d *db) Put(options *rocksdb.WriteOptions, key, value []byte) error {
	batch := rocksdb.NewWriteBatch()
	batch.Put(key, value)
	return d.Write(options, batch)
}

func (d *db) Delete(options *rocksdb.WriteOptions, key []byte) error {
	batch := rocksdb.NewWriteBatch()
	batch.Delete(key)
	return d.Write(options, batch)
}

func (d *db) Write(options *rocksdb.WriteOptions, updates rocksdb.WriteBatch) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return util.InvalidArgumentError1("database is closed")
	}
	if err := d.makeRoomForWrite(); err != nil {
		return err
	}
	lastSequence := d.versions.lastSequence
	writeBatchSetSequence(updates, lastSequence+1)
	lastSequence += rocksdb.SequenceNumber(writeBatchCount(updates))

	// Log first; the memtable is only updated once the record is
	// durable in the WAL.
	err := d.log.addRecord(updates.Contents())
	if err == nil && options != nil && options.Sync {
		err = d.logFile.Sync()
	}
	if err == nil {
		err = insertBatchInto(updates, d.mem)
	}
	if err == nil {
		d.versions.lastSequence = lastSequence
	}
	return err
}

func (d *db) Get(options *rocksdb.ReadOptions, key []byte) ([]byte, error) {
	if options == nil {
		options = rocksdb.NewReadOptions()
	}
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil, util.InvalidArgumentError1("database is closed")
	}
	mem := d.mem
	mem.ref()
	current := d.versions.current
	current.ref()
	d.mu.Unlock()

	var value []byte
	var err error
	if v, deleted, found := mem.get(key); found {
		if deleted {
			err = util.NotFoundError1(util.EscapeString(key))
		} else {
			value = v
		}
	} else {
		value, err = current.get(options, key)
	}

	d.mu.Lock()
	mem.unref()
	current.unref()
	d.mu.Unlock()
	return value, err
}

func unrefVersion(arg1, arg2 interface{}) {
	d := arg1.(*db)
	v := arg2.(*version)
	d.mu.Lock()
	v.unref()
	d.mu.Unlock()
}

func unrefMemTable(arg1, arg2 interface{}) {
	d := arg1.(*db)
	m := arg2.(*memTable)
	d.mu.Lock()
	m.unref()
	d.mu.Unlock()
}

// newInternalIterator merges the memtable and all table files into a
// single iterator over internal keys.
func (d *db) newInternalIterator(options *rocksdb.ReadOptions) (rocksdb.Iterator, rocksdb.SequenceNumber) {
	d.mu.Lock()
	defer d.mu.Unlock()
	latest := d.versions.lastSequence
	iters := []rocksdb.Iterator{d.mem.newIterator()}
	d.mem.ref()
	current := d.versions.current
	current.addIterators(options, &iters)
	current.ref()
	internalIter := table.NewMergingIterator(d.internalComparator, iters)
	internalIter.RegisterCleanUp(unrefMemTable, d, d.mem)
	internalIter.RegisterCleanUp(unrefVersion, d, current)
	return internalIter, latest
}

func (d *db) NewIterator(options *rocksdb.ReadOptions) rocksdb.Iterator {
	if options == nil {
		options = rocksdb.NewReadOptions()
	}
	internalIter, _ := d.newInternalIterator(options)
	return newDBIterator(d.internalComparator.userComparator, internalIter)
}

func (d *db) GetProperty(property string) (string, bool) {
	const prefix = "rocksdb."
	if len(property) < len(prefix) || property[:len(prefix)] != prefix {
		return "", false
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	in := property[len(prefix):]

	const levelPrefix = "num-files-at-level"
	if len(in) > len(levelPrefix) && in[:len(levelPrefix)] == levelPrefix {
		rest := []byte(in[len(levelPrefix):])
		var level uint64
		if !util.ConsumeDecimalNumber(&rest, &level) || len(rest) != 0 {
			return "", false
		}
		if level >= uint64(d.versions.numLevels) {
			return "", false
		}
		return util.NumberToString(uint64(d.versions.numLevelFiles(int(level)))), true
	}
	switch in {
	case "num-levels":
		return util.NumberToString(uint64(d.versions.numLevels)), true
	case "stats":
		stats := "Level Files Size(MB)\n--------------------\n"
		for level := 0; level < d.versions.numLevels; level++ {
			files := d.versions.current.files[level]
			var bytes uint64
			for _, f := range files {
				bytes += f.fileSize
			}
			stats += fmt.Sprintf("%3d %8d %8.2f\n", level, len(files), float64(bytes)/1048576.0)
		}
		return stats, true
	case "sstables":
		return d.versions.current.debugString(), true
	}
	return "", false
}

// deleteObsoleteFiles removes files no longer referenced by any version
// or in flight operation.
func (d *db) deleteObsoleteFiles() {
	live := make(map[uint64]struct{})
	for number := range d.pendingOutputs {
		live[number] = struct{}{}
	}
	d.versions.addLiveFiles(live)

	filenames, err := d.env.GetChildren(d.dbname)
	if err != nil {
		return
	}
	var number uint64
	var ft fileType
	for _, filename := range filenames {
		if !parseFileName(filename, &number, &ft) {
			continue
		}
		keep := true
		switch ft {
		case logFile:
			keep = number >= d.versions.logNumber
		case descriptorFile:
			keep = number >= d.versions.manifestFileNumber
		case tableFile, tempFile:
			_, keep = live[number]
		case currentFile, dbLockFile, infoLogFile:
			keep = true
		}
		if keep {
			continue
		}
		if ft == tableFile {
			d.tableCache.evict(number)
		}
		rocksdb.Log(d.options.InfoLog, "Delete type=%v #%d", ft, number)
		_ = d.env.DeleteFile(d.dbname + "/" + filename)
	}
}

// release frees everything owned by the db. The mutex must not be held.
func (d *db) release() {
	if d.versions != nil {
		d.versions.close()
	}
	if d.mem != nil {
		d.mem.unref()
		d.mem = nil
	}
	if d.logFile != nil {
		_ = d.logFile.Close()
		d.logFile = nil
	}
	d.tableCache.close()
	if d.dbLock != nil {
		_ = d.env.UnlockFile(d.dbLock)
		d.dbLock = nil
	}
	if d.infoLogCloser != nil {
		_ = d.infoLogCloser()
		d.infoLogCloser = nil
	}
}

// Close flushes nothing; unwritten memtable contents survive in the
// write ahead log and are recovered on the next Open.
func (d *db) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	d.mu.Unlock()
	d.release()
	return nil
}

// Destroy removes the contents of the named database. Fails if the
// database is in use.
func Destroy(dbname string, options *rocksdb.Options) error {
	env := options.Env
	if env == nil {
		env = rocksdb.DefaultEnv()
	}
	filenames, err := env.GetChildren(dbname)
	if err != nil {
		// The directory may not exist, which counts as destroyed.
		return nil
	}
	lockName := lockFileName(dbname)
	lock, err := env.LockFile(lockName)
	if err != nil {
		return err
	}
	var number uint64
	var ft fileType
	for _, filename := range filenames {
		if parseFileName(filename, &number, &ft) && ft != dbLockFile {
			if err2 := env.DeleteFile(dbname + "/" + filename); err2 != nil && err == nil {
				err = err2
			}
		}
	}
	_ = env.UnlockFile(lock)
	_ = env.DeleteFile(lockName)
	_ = env.DeleteDir(dbname)
	return err
}
