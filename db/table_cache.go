package db

import (
	"github.com/mtxrym/rocksdb"
	"github.com/mtxrym/rocksdb/table"
	"github.com/mtxrym/rocksdb/util"
)

// tableCache keeps open table files on an LRU cache keyed by file
// number.
type tableCache struct {
	env     rocksdb.Env
	dbname  string
	options *rocksdb.Options
	cache   rocksdb.Cache
}

func newTableCache(dbname string, options *rocksdb.Options, entries int) *tableCache {
	return &tableCache{
		env:     options.Env,
		dbname:  dbname,
		options: options,
		cache:   rocksdb.NewLRUCache(entries),
	}
}

func (c *tableCache) close() {
	c.cache.Close()
}

func deleteTableEntry(_ string, value interface{}) {
	t := value.(*table.Table)
	_ = t.Close()
}

func (c *tableCache) findTable(fileNumber, fileSize uint64) (rocksdb.Handle, error) {
	var key []byte
	util.PutFixed64(&key, fileNumber)
	if handle := c.cache.Lookup(string(key)); handle != nil {
		return handle, nil
	}
	name := tableFileName(c.dbname, fileNumber)
	file, err := c.env.NewRandomAccessFile(name)
	if err != nil {
		return nil, err
	}
	t, err := table.Open(c.options, file, fileSize)
	if err != nil {
		// The file stays unusable, do not cache the failure.
		_ = file.Close()
		return nil, err
	}
	return c.cache.Insert(string(key), t, 1, deleteTableEntry), nil
}

func releaseTableHandle(arg1, arg2 interface{}) {
	cache := arg1.(rocksdb.Cache)
	handle := arg2.(rocksdb.Handle)
	cache.Release(handle)
}

// newIterator returns an iterator over the named file. If tableReturn
// is non nil it receives the underlying Table, valid while the iterator
// is open.
func (c *tableCache) newIterator(options *rocksdb.ReadOptions, fileNumber, fileSize uint64, tableReturn **table.Table) rocksdb.Iterator {
	if tableReturn != nil {
		*tableReturn = nil
	}
	handle, err := c.findTable(fileNumber, fileSize)
	if err != nil {
		return rocksdb.NewErrorIterator(err)
	}
	t := c.cache.Value(handle).(*table.Table)
	iter := t.NewIterator(options)
	iter.RegisterCleanUp(releaseTableHandle, c.cache, handle)
	if tableReturn != nil {
		*tableReturn = t
	}
	return iter
}

// get calls handleResult on the first entry at or after key in the
// named file.
func (c *tableCache) get(options *rocksdb.ReadOptions, fileNumber, fileSize uint64, key []byte, handleResult func(key, value []byte)) error {
	handle, err := c.findTable(fileNumber, fileSize)
	if err != nil {
		return err
	}
	t := c.cache.Value(handle).(*table.Table)
	err = t.InternalGet(options, key, handleResult)
	c.cache.Release(handle)
	return err
}

// evict drops the cached handle for a deleted file.
func (c *tableCache) evict(fileNumber uint64) {
	var key []byte
	util.PutFixed64(&key, fileNumber)
	c.cache.Erase(string(key))
}
