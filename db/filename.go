package db

import (
	"fmt"
	"strings"

	"github.com/mtxrym/rocksdb"
	"github.com/mtxrym/rocksdb/util"
)

// fileType enumerates the kinds of files found in a database directory.
type fileType int

const (
	logFile fileType = iota
	dbLockFile
	tableFile
	descriptorFile
	currentFile
	tempFile
	infoLogFile
)

func makeFileName(dbname string, number uint64, suffix string) string {
	return fmt.Sprintf("%s/%06d.%s", dbname, number, suffix)
}

// logFileName returns the name of the write ahead log with the given
// number.
func logFileName(dbname string, number uint64) string {
	if number == 0 {
		panic("file number must be positive")
	}
	return makeFileName(dbname, number, "log")
}

// tableFileName returns the name of the table file with the given
// number.
func tableFileName(dbname string, number uint64) string {
	if number == 0 {
		panic("file number must be positive")
	}
	return makeFileName(dbname, number, "sst")
}

// descriptorFileName returns the name of the manifest with the given
// number.
func descriptorFileName(dbname string, number uint64) string {
	if number == 0 {
		panic("file number must be positive")
	}
	return fmt.Sprintf("%s/MANIFEST-%06d", dbname, number)
}

// currentFileName returns the name of the CURRENT file, which names the
// manifest in use.
func currentFileName(dbname string) string {
	return dbname + "/CURRENT"
}

func lockFileName(dbname string) string {
	return dbname + "/LOCK"
}

func tempFileName(dbname string, number uint64) string {
	if number == 0 {
		panic("file number must be positive")
	}
	return makeFileName(dbname, number, "dbtmp")
}

func infoLogFileName(dbname string) string {
	return dbname + "/LOG"
}

func oldInfoLogFileName(dbname string) string {
	return dbname + "/LOG.old"
}

// parseFileName decodes a file name produced by the functions above.
// The name must not include the directory.
func parseFileName(name string, number *uint64, ft *fileType) bool {
	rest := []byte(name)
	switch {
	case name == "CURRENT":
		*number = 0
		*ft = currentFile
	case name == "LOCK":
		*number = 0
		*ft = dbLockFile
	case name == "LOG" || name == "LOG.old":
		*number = 0
		*ft = infoLogFile
	case strings.HasPrefix(name, "MANIFEST-"):
		rest = rest[len("MANIFEST-"):]
		var num uint64
		if !util.ConsumeDecimalNumber(&rest, &num) || len(rest) != 0 {
			return false
		}
		*number = num
		*ft = descriptorFile
	default:
		var num uint64
		if !util.ConsumeDecimalNumber(&rest, &num) {
			return false
		}
		switch string(rest) {
		case ".log":
			*ft = logFile
		case ".sst", ".ldb":
			*ft = tableFile
		case ".dbtmp":
			*ft = tempFile
		default:
			return false
		}
		*number = num
	}
	return true
}

// setCurrentFile points CURRENT at the descriptor with the given
// number, using a rename for atomicity.
func setCurrentFile(env rocksdb.Env, dbname string, descriptorNumber uint64) error {
	manifest := descriptorFileName(dbname, descriptorNumber)
	contents := strings.TrimPrefix(manifest, dbname+"/")
	tmp := tempFileName(dbname, descriptorNumber)
	err := rocksdb.WriteStringToFileSync(env, []byte(contents+"\n"), tmp)
	if err == nil {
		err = env.RenameFile(tmp, currentFileName(dbname))
	}
	if err != nil {
		_ = env.DeleteFile(tmp)
	}
	return err
}
