package rocksdb

import (
	"io"
	"log"
)

// SequentialFile reads a file from beginning to end.
type SequentialFile interface {
	// Read reads up to len(b) bytes, returning the number read.
	Read(b []byte) (n int, err error)

	// Skip advances the read position by n bytes.
	Skip(n uint64) error

	Close() error
}

// RandomAccessFile reads a file at arbitrary offsets. Implementations
// must be safe for concurrent use.
type RandomAccessFile interface {
	// ReadAt reads len(b) bytes starting at offset.
	ReadAt(b []byte, offset int64) (n int, err error)

	Close() error
}

// WritableFile appends to a file. Writes are buffered until Flush or
// Sync.
type WritableFile interface {
	Append(data []byte) error
	Flush() error
	Sync() error
	Close() error
}

// FileLock represents a held file lock.
type FileLock interface {
	Name() string
}

// Env abstracts the operating system facilities used by the database.
type Env interface {
	NewSequentialFile(name string) (SequentialFile, error)
	NewRandomAccessFile(name string) (RandomAccessFile, error)
	NewWritableFile(name string) (WritableFile, error)
	NewAppendableFile(name string) (WritableFile, error)

	FileExists(name string) bool
	GetChildren(dir string) ([]string, error)
	DeleteFile(name string) error
	CreateDir(name string) error
	DeleteDir(name string) error
	GetFileSize(name string) (uint64, error)
	RenameFile(src, target string) error

	// LockFile acquires an exclusive lock on the named file, creating
	// it if necessary. Fails with an in use error if the lock is held
	// by any process, including this one.
	LockFile(name string) (FileLock, error)
	UnlockFile(lock FileLock) error

	// NewLogger creates a logger appending to the named file. The
	// returned function closes the underlying file.
	NewLogger(name string) (*log.Logger, func() error, error)

	NowMicros() uint64
}

// Log writes an entry to logger if it is non nil.
func Log(logger *log.Logger, format string, args ...interface{}) {
	if logger != nil {
		logger.Printf(format, args...)
	}
}

// WriteStringToFile writes data to the named file.
func WriteStringToFile(env Env, data []byte, name string) error {
	return doWriteStringToFile(env, data, name, false)
}

// WriteStringToFileSync writes data to the named file and syncs it.
func WriteStringToFileSync(env Env, data []byte, name string) error {
	return doWriteStringToFile(env, data, name, true)
}

func doWriteStringToFile(env Env, data []byte, name string, shouldSync bool) error {
	file, err := env.NewWritableFile(name)
	if err != nil {
		return err
	}
	err = file.Append(data)
	if err == nil && shouldSync {
		err = file.Sync()
	}
	if err == nil {
		err = file.Close()
	} else {
		_ = file.Close()
	}
	if err != nil {
		_ = env.DeleteFile(name)
	}
	return err
}

// ReadFileToString returns the contents of the named file.
func ReadFileToString(env Env, name string) ([]byte, error) {
	file, err := env.NewSequentialFile(name)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	var data []byte
	buf := make([]byte, 8192)
	for {
		n, err := file.Read(buf)
		data = append(data, buf[:n]...)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		if n == 0 {
			break
		}
	}
	return data, nil
}
