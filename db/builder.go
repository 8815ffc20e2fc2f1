package db

import (
	"github.com/mtxrym/rocksdb"
	"github.com/mtxrym/rocksdb/table"
)

// buildTable writes the contents of iter, which must yield internal
// keys in order, to a new table file and fills in meta. If iter is
// empty no file is produced and meta.fileSize is zero.
func buildTable(dbname string, env rocksdb.Env, options *rocksdb.Options, tableCache *tableCache, iter rocksdb.Iterator, meta *fileMetaData) error {
	meta.fileSize = 0
	iter.SeekToFirst()
	name := tableFileName(dbname, meta.number)
	if !iter.Valid() {
		return iter.Status()
	}

	file, err := env.NewWritableFile(name)
	if err != nil {
		return err
	}
	builder := table.NewBuilder(options, file)
	meta.smallest.decodeFrom(iter.Key())
	for ; iter.Valid(); iter.Next() {
		key := iter.Key()
		meta.largest.decodeFrom(key)
		builder.Add(key, iter.Value())
	}

	err = builder.Finish()
	if err == nil {
		meta.fileSize = builder.FileSize()
		if meta.fileSize == 0 {
			panic("buildTable: finished table has no size")
		}
		err = file.Sync()
	}
	if err == nil {
		err = file.Close()
	} else {
		_ = file.Close()
	}

	if err == nil {
		// Verify that the table is usable before installing it.
		it := tableCache.newIterator(rocksdb.NewReadOptions(), meta.number, meta.fileSize, nil)
		err = it.Status()
		it.Close()
	}
	if err2 := iter.Status(); err2 != nil && err == nil {
		err = err2
	}
	if err != nil || meta.fileSize == 0 {
		_ = env.DeleteFile(name)
	}
	return err
}
