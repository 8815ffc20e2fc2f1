package db

import (
	"fmt"

	"github.com/mtxrym/rocksdb/util"
)

// checkLevelInvariants verifies the structural rules every version must
// satisfy:
//
//   - file numbers are unique across all levels
//   - key bounds of every file are well formed (smallest <= largest)
//   - on levels other than 0, files are sorted by key and their user
//     key ranges do not overlap
//
// Level 0 files may overlap each other because each one is a flushed
// memtable. A version that fails these checks is never installed.
func checkLevelInvariants(icmp *internalKeyComparator, v *version) error {
	seen := make(map[uint64]int)
	for level := 0; level < v.numLevels(); level++ {
		files := v.files[level]
		for i, f := range files {
			if prevLevel, ok := seen[f.number]; ok {
				return util.CorruptionError2("level invariant",
					fmt.Sprintf("file %06d appears at level %d and level %d", f.number, prevLevel, level))
			}
			seen[f.number] = level
			if icmp.compareInternalKey(&f.smallest, &f.largest) > 0 {
				return util.CorruptionError2("level invariant",
					fmt.Sprintf("file %06d at level %d has smallest key after largest key", f.number, level))
			}
			if level == 0 || i == 0 {
				continue
			}
			prev := files[i-1]
			if icmp.compareInternalKey(&prev.largest, &f.smallest) >= 0 {
				return util.CorruptionError2("level invariant",
					fmt.Sprintf("files %06d and %06d at level %d are out of order", prev.number, f.number, level))
			}
			if icmp.userComparator.Compare(prev.largest.userKey(), f.smallest.userKey()) >= 0 {
				return util.CorruptionError2("level invariant",
					fmt.Sprintf("files %06d and %06d at level %d have overlapping ranges", prev.number, f.number, level))
			}
		}
	}
	return nil
}
