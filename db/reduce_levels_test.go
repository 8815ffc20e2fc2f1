package db

import (
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"testing"

	"github.com/mtxrym/rocksdb"
	"github.com/mtxrym/rocksdb/util"
)

type reduceLevelsTester struct {
	t      *testing.T
	dbname string
	db     rocksdb.DB
}

func newReduceLevelsTester(t *testing.T) *reduceLevelsTester {
	return &reduceLevelsTester{t: t, dbname: t.TempDir() + "/reduce_test"}
}

func (r *reduceLevelsTester) options(numLevels, memCompactLevel int) *rocksdb.Options {
	options := rocksdb.NewOptions()
	options.NumLevels = numLevels
	options.MaxMemCompactLevel = memCompactLevel
	return options
}

func (r *reduceLevelsTester) openDB(create bool, numLevels, memCompactLevel int) {
	options := r.options(numLevels, memCompactLevel)
	options.CreateIfMissing = create
	var err error
	r.db, err = Open(r.dbname, options)
	util.AssertNotError(err, "open", r.t)
}

func (r *reduceLevelsTester) closeDB() {
	util.AssertNotError(r.db.Close(), "close", r.t)
	r.db = nil
}

func (r *reduceLevelsTester) put(key, value string) {
	util.AssertNotError(r.db.Put(rocksdb.NewWriteOptions(), []byte(key), []byte(value)), "put", r.t)
}

func (r *reduceLevelsTester) getString(key string) string {
	value, err := r.db.Get(rocksdb.NewReadOptions(), []byte(key))
	util.AssertNotError(err, "get "+key, r.t)
	return string(value)
}

func (r *reduceLevelsTester) flush() {
	util.AssertNotError(r.db.FlushMemTable(), "flush", r.t)
}

func (r *reduceLevelsTester) filesOnLevel(level int) int {
	value, ok := r.db.GetProperty(fmt.Sprintf("rocksdb.num-files-at-level%d", level))
	util.AssertTrue(ok, "num-files property", r.t)
	var n int
	_, err := fmt.Sscanf(value, "%d", &n)
	util.AssertNotError(err, "parse property", r.t)
	return n
}

func (r *reduceLevelsTester) numLevels() int {
	value, ok := r.db.GetProperty("rocksdb.num-levels")
	util.AssertTrue(ok, "num-levels property", r.t)
	var n int
	_, err := fmt.Sscanf(value, "%d", &n)
	util.AssertNotError(err, "parse property", r.t)
	return n
}

func (r *reduceLevelsTester) reduce(numLevels, newLevels int, compact bool) error {
	return r.reduceWith(r.options(numLevels, 0), newLevels, compact)
}

func (r *reduceLevelsTester) reduceWith(options *rocksdb.Options, newLevels int, compact bool) error {
	return ReduceLevels(r.dbname, options, newLevels, compact)
}

func TestReduceLevelsLastLevel(t *testing.T) {
	r := newReduceLevelsTester(t)
	r.openDB(true, 4, 3)
	r.put("aaaa", "11111")
	r.flush()
	util.AssertEqual(1, r.filesOnLevel(3), "file placed at level 3", t)
	r.closeDB()

	util.AssertNotError(r.reduce(4, 3, true), "reduce to 3", t)
	r.openDB(false, 3, 0)
	util.AssertEqual(3, r.numLevels(), "level count", t)
	util.AssertEqual(1, r.filesOnLevel(2), "file moved to level 2", t)
	util.AssertEqual("11111", r.getString("aaaa"), "value", t)
	r.closeDB()

	util.AssertNotError(r.reduce(3, 2, true), "reduce to 2", t)
	r.openDB(false, 2, 0)
	util.AssertEqual(2, r.numLevels(), "level count", t)
	util.AssertEqual(1, r.filesOnLevel(1), "file moved to level 1", t)
	util.AssertEqual("11111", r.getString("aaaa"), "value", t)
	r.closeDB()
}

func TestReduceLevelsTopLevel(t *testing.T) {
	r := newReduceLevelsTester(t)
	r.openDB(true, 4, 0)
	r.put("aaaa", "11111")
	r.flush()
	util.AssertEqual(1, r.filesOnLevel(0), "file placed at level 0", t)
	r.closeDB()

	util.AssertNotError(r.reduce(4, 1, true), "reduce to 1", t)
	r.openDB(false, 1, 0)
	util.AssertEqual(1, r.numLevels(), "level count", t)
	util.AssertEqual(1, r.filesOnLevel(0), "file at level 0", t)
	util.AssertEqual("11111", r.getString("aaaa"), "value", t)
	r.closeDB()
}

func TestReduceLevelsAllLevels(t *testing.T) {
	r := newReduceLevelsTester(t)

	// Stage one file on each of the levels 1..4. Each flush climbs as
	// high as MaxMemCompactLevel allows since the key ranges are
	// disjoint.
	r.openDB(true, 5, 1)
	r.put("a", "a11111")
	r.flush()
	util.AssertEqual(1, r.filesOnLevel(1), "file at level 1", t)
	r.closeDB()

	r.openDB(false, 5, 2)
	r.put("b", "b11111")
	r.flush()
	util.AssertEqual(1, r.filesOnLevel(1), "file at level 1", t)
	util.AssertEqual(1, r.filesOnLevel(2), "file at level 2", t)
	r.closeDB()

	r.openDB(false, 5, 3)
	r.put("c", "c11111")
	r.flush()
	util.AssertEqual(1, r.filesOnLevel(3), "file at level 3", t)
	r.closeDB()

	r.openDB(false, 5, 4)
	r.put("d", "d11111")
	r.flush()
	util.AssertEqual(1, r.filesOnLevel(4), "file at level 4", t)
	r.closeDB()

	util.AssertNotError(r.reduce(5, 4, true), "reduce to 4", t)
	r.openDB(false, 4, 0)
	util.AssertEqual("a11111", r.getString("a"), "a", t)
	util.AssertEqual("b11111", r.getString("b"), "b", t)
	util.AssertEqual("c11111", r.getString("c"), "c", t)
	util.AssertEqual("d11111", r.getString("d"), "d", t)
	r.closeDB()

	util.AssertNotError(r.reduce(4, 3, true), "reduce to 3", t)
	r.openDB(false, 3, 0)
	util.AssertEqual("a11111", r.getString("a"), "a", t)
	util.AssertEqual("b11111", r.getString("b"), "b", t)
	util.AssertEqual("c11111", r.getString("c"), "c", t)
	util.AssertEqual("d11111", r.getString("d"), "d", t)
	r.closeDB()

	util.AssertNotError(r.reduce(3, 2, true), "reduce to 2", t)
	r.openDB(false, 2, 0)
	util.AssertEqual(1, r.filesOnLevel(1), "merged into one file", t)
	util.AssertEqual("a11111", r.getString("a"), "a", t)
	util.AssertEqual("b11111", r.getString("b"), "b", t)
	util.AssertEqual("c11111", r.getString("c"), "c", t)
	util.AssertEqual("d11111", r.getString("d"), "d", t)
	r.closeDB()
}

func TestReduceLevelsNewestValueWins(t *testing.T) {
	r := newReduceLevelsTester(t)
	r.openDB(true, 5, 3)
	r.put("key", "old")
	r.flush()
	util.AssertEqual(1, r.filesOnLevel(3), "first file at level 3", t)
	r.put("key", "new")
	r.flush()
	// The second flush overlaps the level 3 file, so it settles one
	// level above it.
	util.AssertEqual(1, r.filesOnLevel(2), "overlapping flush stops above the old file", t)
	r.closeDB()

	util.AssertNotError(r.reduce(5, 1, true), "reduce to 1", t)
	r.openDB(false, 1, 0)
	util.AssertEqual(1, r.filesOnLevel(0), "single merged file", t)
	util.AssertEqual("new", r.getString("key"), "newest value", t)
	r.closeDB()
}

func TestReduceLevelsDropsDeletions(t *testing.T) {
	r := newReduceLevelsTester(t)
	r.openDB(true, 5, 3)
	r.put("gone", "value")
	r.flush()
	util.AssertNotError(r.db.Delete(rocksdb.NewWriteOptions(), []byte("gone")), "delete", t)
	r.flush()
	r.closeDB()

	util.AssertNotError(r.reduce(5, 1, true), "reduce to 1", t)
	r.openDB(false, 1, 0)
	// The tombstone and the value it shadowed both vanish, leaving
	// nothing to write.
	util.AssertEqual(0, r.filesOnLevel(0), "no output files", t)
	_, err := r.db.Get(rocksdb.NewReadOptions(), []byte("gone"))
	util.AssertError(err, "key deleted", t)
	util.AssertTrue(rocksdb.IsNotFound(err), "not found", t)
	r.closeDB()
}

func TestReduceLevelsMetadataOnly(t *testing.T) {
	r := newReduceLevelsTester(t)
	r.openDB(true, 7, 2)
	r.put("aaaa", "11111")
	r.flush()
	util.AssertEqual(1, r.filesOnLevel(2), "file at level 2", t)
	r.closeDB()

	// Levels 5 and 6 are empty, so no data moves even without
	// compaction.
	util.AssertNotError(r.reduce(7, 5, false), "metadata-only reduce", t)
	r.openDB(false, 5, 0)
	util.AssertEqual(5, r.numLevels(), "level count", t)
	util.AssertEqual(1, r.filesOnLevel(2), "file did not move", t)
	util.AssertEqual("11111", r.getString("aaaa"), "value", t)
	r.closeDB()

	// Reducing to 2 would have to move the level 2 file, which needs
	// compaction enabled.
	err := r.reduce(5, 2, false)
	util.AssertError(err, "occupied level refused", t)
	util.AssertTrue(rocksdb.IsInvalidArgument(err), "invalid argument", t)

	util.AssertNotError(r.reduce(5, 2, true), "reduce with compaction", t)
	r.openDB(false, 2, 0)
	util.AssertEqual(1, r.filesOnLevel(1), "file moved to level 1", t)
	util.AssertEqual("11111", r.getString("aaaa"), "value", t)
	r.closeDB()
}

func TestReduceLevelsNoOpAndInvalid(t *testing.T) {
	r := newReduceLevelsTester(t)
	r.openDB(true, 4, 0)
	r.put("aaaa", "11111")
	r.closeDB()

	util.AssertNotError(r.reduce(4, 4, false), "same level count is a no-op", t)

	err := r.reduce(4, 5, true)
	util.AssertError(err, "growing rejected", t)
	util.AssertTrue(rocksdb.IsInvalidArgument(err), "invalid argument", t)

	err = r.reduce(4, 0, true)
	util.AssertError(err, "zero rejected", t)
	util.AssertTrue(rocksdb.IsInvalidArgument(err), "invalid argument", t)

	err = r.reduce(4, maxLevels+1, true)
	util.AssertError(err, "over maximum rejected", t)
	util.AssertTrue(rocksdb.IsInvalidArgument(err), "invalid argument", t)

	r.openDB(false, 4, 0)
	util.AssertEqual("11111", r.getString("aaaa"), "value survives failed attempts", t)
	r.closeDB()
}

func TestReduceLevelsDatabaseInUse(t *testing.T) {
	r := newReduceLevelsTester(t)
	r.openDB(true, 4, 0)
	r.put("aaaa", "11111")

	err := r.reduce(4, 2, true)
	util.AssertError(err, "open database rejected", t)
	util.AssertTrue(rocksdb.IsInUse(err), "in use", t)
	r.closeDB()
}

func TestReduceLevelsMissingDatabase(t *testing.T) {
	r := newReduceLevelsTester(t)
	err := r.reduce(4, 2, true)
	util.AssertError(err, "missing database rejected", t)
	util.AssertTrue(rocksdb.IsInvalidArgument(err), "invalid argument", t)
}

func TestReduceLevelsFlushesMemTable(t *testing.T) {
	r := newReduceLevelsTester(t)
	r.openDB(true, 4, 0)
	r.put("buffered", "value")
	// No flush before close; the entry only exists in the WAL.
	r.closeDB()

	util.AssertNotError(r.reduce(4, 1, true), "reduce to 1", t)
	r.openDB(false, 1, 0)
	util.AssertEqual("value", r.getString("buffered"), "buffered entry survives", t)
	r.closeDB()
}

func TestReduceLevelsSplitsLargeOutput(t *testing.T) {
	r := newReduceLevelsTester(t)
	options := r.options(4, 3)
	options.CreateIfMissing = true
	var err error
	r.db, err = Open(r.dbname, options)
	util.AssertNotError(err, "open", t)
	// Write about 3MB so the merge has to split at the 1MB file size
	// floor.
	rnd := rand.New(rand.NewSource(301))
	for i := 0; i < 3000; i++ {
		r.put(fmt.Sprintf("key%06d", i), string(util.RandomString(rnd, 1000)))
	}
	r.flush()
	r.closeDB()

	reduceOptions := r.options(4, 0)
	reduceOptions.MaxFileSize = 1 << 20
	util.AssertNotError(ReduceLevels(r.dbname, reduceOptions, 2, true), "reduce to 2", t)

	r.openDB(false, 2, 0)
	util.AssertTrue(r.filesOnLevel(1) > 1, "output split into multiple files", t)
	for i := 0; i < 3000; i++ {
		key := fmt.Sprintf("key%06d", i)
		_, err := r.db.Get(rocksdb.NewReadOptions(), []byte(key))
		util.AssertNotError(err, "get "+key, t)
	}
	r.closeDB()
}

// syncFailEnv injects write failures into an otherwise real Env: Sync
// on files whose name contains match fails once allow earlier syncs
// have been spent.
type syncFailEnv struct {
	rocksdb.Env
	match string

	mu    sync.Mutex
	allow int
}

func newSyncFailEnv(match string, allow int) *syncFailEnv {
	return &syncFailEnv{Env: rocksdb.DefaultEnv(), match: match, allow: allow}
}

func (e *syncFailEnv) NewWritableFile(name string) (rocksdb.WritableFile, error) {
	file, err := e.Env.NewWritableFile(name)
	if err != nil || !strings.Contains(name, e.match) {
		return file, err
	}
	return &syncFailFile{WritableFile: file, env: e}, nil
}

type syncFailFile struct {
	rocksdb.WritableFile
	env *syncFailEnv
}

func (f *syncFailFile) Sync() error {
	f.env.mu.Lock()
	defer f.env.mu.Unlock()
	if f.env.allow > 0 {
		f.env.allow--
		return f.WritableFile.Sync()
	}
	return util.IOError2(f.env.match, "injected sync failure")
}

// stageOneFileAtLevel3 creates a database with a single table file at
// level 3 holding top=v.
func stageOneFileAtLevel3(r *reduceLevelsTester) {
	r.openDB(true, 4, 3)
	r.put("top", "v")
	r.flush()
	util.AssertEqual(1, r.filesOnLevel(3), "staged file placement", r.t)
	r.closeDB()
}

// assertCatalogUntouched reopens the database and checks that a failed
// reduction left the previous state fully recoverable.
func assertCatalogUntouched(r *reduceLevelsTester) {
	r.openDB(false, 4, 0)
	util.AssertEqual(4, r.numLevels(), "recorded level count", r.t)
	util.AssertEqual("v", r.getString("top"), "value after failed reduction", r.t)
	util.AssertEqual(1, r.filesOnLevel(3), "input file still in place", r.t)
	util.AssertEqual(0, r.filesOnLevel(1), "no output installed", r.t)
	r.closeDB()
}

func TestReduceLevelsAbortedManifestCommit(t *testing.T) {
	r := newReduceLevelsTester(t)
	stageOneFileAtLevel3(r)

	// The open inside ReduceLevels commits one manifest; the sync of
	// the manifest carrying the reduction edit is the one that fails.
	options := r.options(4, 0)
	options.Env = newSyncFailEnv("MANIFEST", 1)
	err := r.reduceWith(options, 2, true)
	util.AssertError(err, "reduce with failing manifest sync", t)
	util.AssertTrue(rocksdb.IsIOError(err), "io error surfaced", t)

	assertCatalogUntouched(r)
}

func TestReduceLevelsFailedMerge(t *testing.T) {
	r := newReduceLevelsTester(t)
	stageOneFileAtLevel3(r)

	options := r.options(4, 0)
	options.Env = newSyncFailEnv(".sst", 0)
	err := r.reduceWith(options, 2, true)
	util.AssertError(err, "reduce with failing table sync", t)
	util.AssertTrue(rocksdb.IsIOError(err), "io error surfaced", t)

	assertCatalogUntouched(r)
}
