package db

import (
	"fmt"

	"github.com/pkg/errors"

	"github.com/mtxrym/rocksdb"
	"github.com/mtxrym/rocksdb/table"
	"github.com/mtxrym/rocksdb/util"
)

// ReduceLevels rewrites the database at dbname so that it uses at most
// newLevels on disk levels. The database must not be open elsewhere;
// the operation takes the database lock for its whole duration.
//
// All files at levels newLevels-1 and above are merged into new files
// at level newLevels-1, keeping only the newest entry per user key and
// dropping deletion markers, which have nothing left to shadow at the
// bottommost level. When every populated level already fits below
// newLevels only the recorded level count changes and no data is
// rewritten. In both cases the outcome is installed with a single
// atomic manifest edit: a crash before the edit is durable leaves the
// previous state intact apart from orphan files that the next open
// removes.
//
// With compact false the operation refuses to move any data and fails
// unless the metadata-only path applies.
func ReduceLevels(dbname string, options *rocksdb.Options, newLevels int, compact bool) error {
	if newLevels < 1 || newLevels > maxLevels {
		return util.InvalidArgumentError1(
			fmt.Sprintf("invalid number of levels %d (must be in [1, %d])", newLevels, maxLevels))
	}
	opts := *options
	opts.CreateIfMissing = false
	opts.ErrorIfExists = false
	handle, err := Open(dbname, &opts)
	if err != nil {
		return err
	}
	defer handle.Close()
	return handle.(*db).reduceLevels(newLevels, compact)
}

func (d *db) reduceLevels(newLevels int, compact bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	// Buffered updates must reach a table file so the merge below sees
	// every live entry.
	if err := d.flushMemTableLocked(); err != nil {
		return err
	}

	oldLevels := d.versions.numLevels
	if newLevels > oldLevels {
		return util.InvalidArgumentError1(
			fmt.Sprintf("database has %d levels, cannot reduce to %d", oldLevels, newLevels))
	}
	if newLevels == oldLevels {
		return nil
	}
	if err := checkLevelInvariants(d.internalComparator, d.versions.current); err != nil {
		return err
	}

	var edit versionEdit
	edit.setNumLevels(newLevels)

	if d.versions.maxPopulatedLevel() < newLevels {
		// All files already fit, only the recorded level count changes.
		rocksdb.Log(d.options.InfoLog, "Reducing levels %d -> %d (metadata only)", oldLevels, newLevels)
		d.versions.rollManifest()
		if err := d.versions.logAndApply(&edit); err != nil {
			return err
		}
		d.deleteObsoleteFiles()
		return nil
	}
	if !compact {
		return util.InvalidArgumentError1(
			fmt.Sprintf("reduction to %d levels requires compaction of occupied levels", newLevels))
	}

	target := newLevels - 1
	current := d.versions.current
	inputs := 0
	for level := target; level < current.numLevels(); level++ {
		for _, f := range current.files[level] {
			edit.deleteFile(level, f.number)
			inputs++
		}
	}
	rocksdb.Log(d.options.InfoLog, "Reducing levels %d -> %d: merging %d files into level %d",
		oldLevels, newLevels, inputs, target)

	outputs, err := d.mergeLevels(target)
	if err == nil {
		for i := range outputs {
			o := &outputs[i]
			edit.addFile(target, o.number, o.fileSize, o.smallest, o.largest)
		}
		// The edit goes into a fresh manifest. A commit failure cannot
		// leave a record referencing the outputs deleted below.
		d.versions.rollManifest()
		err = d.versions.logAndApply(&edit)
	}
	for i := range outputs {
		delete(d.pendingOutputs, outputs[i].number)
	}
	if err != nil {
		// Orphan outputs are useless without the manifest edit.
		for i := range outputs {
			d.tableCache.evict(outputs[i].number)
			_ = d.env.DeleteFile(tableFileName(d.dbname, outputs[i].number))
		}
		return errors.Wrap(err, "level reduction compaction")
	}
	rocksdb.Log(d.options.InfoLog, "Reduced levels: %d input files -> %d output files", inputs, len(outputs))
	d.deleteObsoleteFiles()
	return nil
}

// mergeLevels merges every file at levels >= target into fresh table
// files for target, splitting outputs at the configured maximum file
// size. The produced file numbers stay in pendingOutputs; the caller
// removes them once the outputs are installed or deleted.
func (d *db) mergeLevels(target int) ([]fileMetaData, error) {
	readOptions := &rocksdb.ReadOptions{VerifyChecksums: d.options.ParanoidChecks}
	inputVersion := d.versions.current
	inputVersion.ref()
	var iters []rocksdb.Iterator
	inputVersion.addIteratorsFromLevel(readOptions, target, &iters)
	iter := table.NewMergingIterator(d.internalComparator, iters)
	defer iter.Close()

	var (
		outputs           []fileMetaData
		allocated         []uint64
		builder           *table.Builder
		file              rocksdb.WritableFile
		meta              fileMetaData
		currentUserKey    []byte
		hasCurrentUserKey bool
		err               error
	)

	finishOutput := func() error {
		ferr := builder.Finish()
		if ferr == nil {
			meta.fileSize = builder.FileSize()
			ferr = file.Sync()
		}
		if ferr == nil {
			ferr = file.Close()
		} else {
			_ = file.Close()
		}
		if ferr == nil {
			// The file must be readable before it can be installed.
			it := d.tableCache.newIterator(rocksdb.NewReadOptions(), meta.number, meta.fileSize, nil)
			ferr = it.Status()
			it.Close()
		}
		builder = nil
		file = nil
		if ferr == nil {
			outputs = append(outputs, meta)
		}
		return ferr
	}

	d.mu.Unlock()
	iter.SeekToFirst()
	for ; iter.Valid(); iter.Next() {
		key := iter.Key()
		var parsed parsedInternalKey
		if !parseInternalKey(key, &parsed) {
			err = util.CorruptionError2("corrupted internal key", util.EscapeString(key))
			break
		}
		if hasCurrentUserKey && d.internalComparator.userComparator.Compare(parsed.userKey, currentUserKey) == 0 {
			// An older update for a user key already emitted.
			continue
		}
		currentUserKey = append(currentUserKey[:0], parsed.userKey...)
		hasCurrentUserKey = true
		if parsed.typ == rocksdb.TypeDeletion {
			// The output is the bottommost level, nothing below can
			// resurface this key.
			continue
		}

		if builder == nil {
			d.mu.Lock()
			meta = fileMetaData{number: d.versions.newFileNumber()}
			d.pendingOutputs[meta.number] = struct{}{}
			allocated = append(allocated, meta.number)
			d.mu.Unlock()
			file, err = d.env.NewWritableFile(tableFileName(d.dbname, meta.number))
			if err != nil {
				break
			}
			builder = table.NewBuilder(d.options, file)
			meta.smallest.decodeFrom(key)
		}
		meta.largest.decodeFrom(key)
		builder.Add(key, iter.Value())

		if builder.FileSize() >= uint64(d.options.MaxFileSize) {
			if err = finishOutput(); err != nil {
				break
			}
		}
	}
	if err == nil {
		err = iter.Status()
	}
	if err == nil && builder != nil {
		err = finishOutput()
	}
	if err != nil && builder != nil {
		builder.Abandon()
		_ = file.Close()
	}
	d.mu.Lock()
	inputVersion.unref()
	if err != nil {
		// Drop every allocated output the caller will not see finished.
		finished := make(map[uint64]struct{}, len(outputs))
		for i := range outputs {
			finished[outputs[i].number] = struct{}{}
		}
		for _, number := range allocated {
			if _, ok := finished[number]; ok {
				continue
			}
			delete(d.pendingOutputs, number)
			d.tableCache.evict(number)
			_ = d.env.DeleteFile(tableFileName(d.dbname, number))
		}
	}
	return outputs, err
}
