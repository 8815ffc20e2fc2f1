package table

import (
	"fmt"
	"io"
	"testing"

	"github.com/mtxrym/rocksdb"
	"github.com/mtxrym/rocksdb/util"
)

type memWritableFile struct {
	contents []byte
}

func (f *memWritableFile) Append(data []byte) error {
	f.contents = append(f.contents, data...)
	return nil
}

func (f *memWritableFile) Flush() error { return nil }
func (f *memWritableFile) Sync() error  { return nil }
func (f *memWritableFile) Close() error { return nil }

type memRandomAccessFile struct {
	contents []byte
}

func (f *memRandomAccessFile) ReadAt(b []byte, offset int64) (int, error) {
	if offset >= int64(len(f.contents)) {
		return 0, io.EOF
	}
	n := copy(b, f.contents[offset:])
	if n < len(b) {
		return n, io.EOF
	}
	return n, nil
}

func (f *memRandomAccessFile) Close() error { return nil }

func testOptions(compression rocksdb.CompressionType) *rocksdb.Options {
	options := rocksdb.NewOptions()
	options.BlockSize = 256
	options.BlockRestartInterval = 4
	options.Compression = compression
	return options
}

func testKey(i int) []byte {
	return []byte(fmt.Sprintf("key%05d", i))
}

func testValue(i int) []byte {
	return []byte(fmt.Sprintf("value-%d-%s", i, "abcdefghijklmnopqrstuvwxyz"))
}

func buildTestTable(t *testing.T, options *rocksdb.Options, n int) *Table {
	file := &memWritableFile{}
	builder := NewBuilder(options, file)
	for i := 0; i < n; i++ {
		builder.Add(testKey(i), testValue(i))
	}
	util.AssertNotError(builder.Finish(), "finish", t)
	util.AssertEqual(int64(n), builder.NumEntries(), "entry count", t)
	util.AssertEqual(uint64(len(file.contents)), builder.FileSize(), "file size", t)

	tbl, err := Open(options, &memRandomAccessFile{contents: file.contents}, uint64(len(file.contents)))
	util.AssertNotError(err, "open", t)
	return tbl
}

func TestTableRoundTrip(t *testing.T) {
	for _, compression := range []rocksdb.CompressionType{rocksdb.NoCompression, rocksdb.SnappyCompression} {
		options := testOptions(compression)
		tbl := buildTestTable(t, options, 1000)
		iter := tbl.NewIterator(rocksdb.NewReadOptions())
		i := 0
		for iter.SeekToFirst(); iter.Valid(); iter.Next() {
			util.AssertEqual(string(testKey(i)), string(iter.Key()), "key", t)
			util.AssertEqual(string(testValue(i)), string(iter.Value()), "value", t)
			i++
		}
		util.AssertNotError(iter.Status(), "status", t)
		util.AssertEqual(1000, i, "all entries", t)
		iter.Close()
		_ = tbl.Close()
	}
}

func TestTableSeek(t *testing.T) {
	options := testOptions(rocksdb.SnappyCompression)
	tbl := buildTestTable(t, options, 500)
	defer tbl.Close()
	iter := tbl.NewIterator(rocksdb.NewReadOptions())
	defer iter.Close()

	iter.Seek(testKey(123))
	util.AssertTrue(iter.Valid(), "exact seek", t)
	util.AssertEqual(string(testKey(123)), string(iter.Key()), "exact key", t)

	// Between keys: lands on the next one.
	iter.Seek([]byte("key00123x"))
	util.AssertTrue(iter.Valid(), "between seek", t)
	util.AssertEqual(string(testKey(124)), string(iter.Key()), "next key", t)

	iter.Seek([]byte("zzz"))
	util.AssertFalse(iter.Valid(), "seek past end", t)
}

func TestTableInternalGet(t *testing.T) {
	options := testOptions(rocksdb.SnappyCompression)
	tbl := buildTestTable(t, options, 200)
	defer tbl.Close()

	var gotKey, gotValue []byte
	err := tbl.InternalGet(rocksdb.NewReadOptions(), testKey(77), func(k, v []byte) {
		gotKey = append([]byte(nil), k...)
		gotValue = append([]byte(nil), v...)
	})
	util.AssertNotError(err, "get", t)
	util.AssertEqual(string(testKey(77)), string(gotKey), "key", t)
	util.AssertEqual(string(testValue(77)), string(gotValue), "value", t)
}

func TestTableBlockCache(t *testing.T) {
	options := testOptions(rocksdb.NoCompression)
	options.BlockCache = rocksdb.NewLRUCache(1 << 20)
	defer options.BlockCache.Close()
	tbl := buildTestTable(t, options, 300)
	defer tbl.Close()

	for pass := 0; pass < 2; pass++ {
		iter := tbl.NewIterator(rocksdb.NewReadOptions())
		i := 0
		for iter.SeekToFirst(); iter.Valid(); iter.Next() {
			i++
		}
		util.AssertEqual(300, i, "all entries", t)
		iter.Close()
	}
	util.AssertTrue(options.BlockCache.TotalCharge() > 0, "blocks were cached", t)
}

func TestTableDetectsCorruption(t *testing.T) {
	options := testOptions(rocksdb.NoCompression)
	file := &memWritableFile{}
	builder := NewBuilder(options, file)
	for i := 0; i < 100; i++ {
		builder.Add(testKey(i), testValue(i))
	}
	util.AssertNotError(builder.Finish(), "finish", t)

	// Flip a byte in the first data block.
	file.contents[10] ^= 0xff
	tbl, err := Open(options, &memRandomAccessFile{contents: file.contents}, uint64(len(file.contents)))
	util.AssertNotError(err, "index still intact", t)
	defer tbl.Close()

	readOptions := rocksdb.NewReadOptions()
	readOptions.VerifyChecksums = true
	iter := tbl.NewIterator(readOptions)
	defer iter.Close()
	iter.SeekToFirst()
	for iter.Valid() {
		iter.Next()
	}
	err = iter.Status()
	util.AssertError(err, "corruption detected", t)
	util.AssertTrue(rocksdb.IsCorruption(err), "corruption kind", t)
}

func TestTableRejectsBadMagic(t *testing.T) {
	options := testOptions(rocksdb.NoCompression)
	file := &memWritableFile{}
	builder := NewBuilder(options, file)
	builder.Add([]byte("a"), []byte("b"))
	util.AssertNotError(builder.Finish(), "finish", t)

	file.contents[len(file.contents)-1] ^= 0xff
	_, err := Open(options, &memRandomAccessFile{contents: file.contents}, uint64(len(file.contents)))
	util.AssertError(err, "bad magic rejected", t)
	util.AssertTrue(rocksdb.IsCorruption(err), "corruption kind", t)
}

func TestMergingIteratorInterleaves(t *testing.T) {
	options := testOptions(rocksdb.NoCompression)
	evenFile := &memWritableFile{}
	builder := NewBuilder(options, evenFile)
	for i := 0; i < 100; i += 2 {
		builder.Add(testKey(i), testValue(i))
	}
	util.AssertNotError(builder.Finish(), "finish even", t)

	oddFile := &memWritableFile{}
	builder = NewBuilder(options, oddFile)
	for i := 1; i < 100; i += 2 {
		builder.Add(testKey(i), testValue(i))
	}
	util.AssertNotError(builder.Finish(), "finish odd", t)

	even, err := Open(options, &memRandomAccessFile{contents: evenFile.contents}, uint64(len(evenFile.contents)))
	util.AssertNotError(err, "open even", t)
	defer even.Close()
	odd, err := Open(options, &memRandomAccessFile{contents: oddFile.contents}, uint64(len(oddFile.contents)))
	util.AssertNotError(err, "open odd", t)
	defer odd.Close()

	iter := NewMergingIterator(options.Comparator, []rocksdb.Iterator{
		even.NewIterator(rocksdb.NewReadOptions()),
		odd.NewIterator(rocksdb.NewReadOptions()),
	})
	defer iter.Close()

	i := 0
	for iter.SeekToFirst(); iter.Valid(); iter.Next() {
		util.AssertEqual(string(testKey(i)), string(iter.Key()), "merged order", t)
		i++
	}
	util.AssertNotError(iter.Status(), "status", t)
	util.AssertEqual(100, i, "all entries", t)
}
