//go:build !windows

package rocksdb

import (
	"io"
	"log"
	"os"
	"sync"
	"time"

	"golang.org/x/sys/unix"

	"github.com/mtxrym/rocksdb/util"
)

func posixError(name string, err error) error {
	if os.IsNotExist(err) {
		return util.NotFoundError2(name, err.Error())
	}
	return util.IOError2(name, err.Error())
}

type posixSequentialFile struct {
	name string
	file *os.File
}

func (f *posixSequentialFile) Read(b []byte) (int, error) {
	n, err := f.file.Read(b)
	if err != nil && err != io.EOF {
		err = posixError(f.name, err)
	}
	return n, err
}

func (f *posixSequentialFile) Skip(n uint64) error {
	if _, err := f.file.Seek(int64(n), io.SeekCurrent); err != nil {
		return posixError(f.name, err)
	}
	return nil
}

func (f *posixSequentialFile) Close() error {
	return f.file.Close()
}

type posixRandomAccessFile struct {
	name string
	file *os.File
}

func (f *posixRandomAccessFile) ReadAt(b []byte, offset int64) (int, error) {
	n, err := f.file.ReadAt(b, offset)
	if err != nil && err != io.EOF {
		err = posixError(f.name, err)
	}
	if n == len(b) {
		err = nil
	}
	return n, err
}

func (f *posixRandomAccessFile) Close() error {
	return f.file.Close()
}

type posixWritableFile struct {
	name string
	file *os.File
}

func (f *posixWritableFile) Append(data []byte) error {
	if _, err := f.file.Write(data); err != nil {
		return posixError(f.name, err)
	}
	return nil
}

func (f *posixWritableFile) Flush() error {
	return nil
}

func (f *posixWritableFile) Sync() error {
	if err := f.file.Sync(); err != nil {
		return posixError(f.name, err)
	}
	return nil
}

func (f *posixWritableFile) Close() error {
	if err := f.file.Close(); err != nil {
		return posixError(f.name, err)
	}
	return nil
}

type posixFileLock struct {
	file *os.File
	name string
}

func (l *posixFileLock) Name() string {
	return l.name
}

// lockTable tracks lock files held by this process. fcntl locks do not
// provide any protection against multiple uses from the same process.
type lockTable struct {
	mu    sync.Mutex
	files map[string]struct{}
}

func (t *lockTable) insert(name string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.files[name]; ok {
		return false
	}
	t.files[name] = struct{}{}
	return true
}

func (t *lockTable) remove(name string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.files, name)
}

type posixEnv struct {
	locks lockTable
}

func (e *posixEnv) NewSequentialFile(name string) (SequentialFile, error) {
	f, err := os.Open(name)
	if err != nil {
		return nil, posixError(name, err)
	}
	return &posixSequentialFile{name: name, file: f}, nil
}

func (e *posixEnv) NewRandomAccessFile(name string) (RandomAccessFile, error) {
	f, err := os.Open(name)
	if err != nil {
		return nil, posixError(name, err)
	}
	return &posixRandomAccessFile{name: name, file: f}, nil
}

func (e *posixEnv) NewWritableFile(name string) (WritableFile, error) {
	f, err := os.OpenFile(name, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return nil, posixError(name, err)
	}
	return &posixWritableFile{name: name, file: f}, nil
}

func (e *posixEnv) NewAppendableFile(name string) (WritableFile, error) {
	f, err := os.OpenFile(name, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0644)
	if err != nil {
		return nil, posixError(name, err)
	}
	return &posixWritableFile{name: name, file: f}, nil
}

func (e *posixEnv) FileExists(name string) bool {
	_, err := os.Stat(name)
	return err == nil
}

func (e *posixEnv) GetChildren(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, posixError(dir, err)
	}
	result := make([]string, 0, len(entries))
	for _, entry := range entries {
		result = append(result, entry.Name())
	}
	return result, nil
}

func (e *posixEnv) DeleteFile(name string) error {
	if err := os.Remove(name); err != nil {
		return posixError(name, err)
	}
	return nil
}

func (e *posixEnv) CreateDir(name string) error {
	if err := os.Mkdir(name, 0755); err != nil {
		return posixError(name, err)
	}
	return nil
}

func (e *posixEnv) DeleteDir(name string) error {
	if err := os.Remove(name); err != nil {
		return posixError(name, err)
	}
	return nil
}

func (e *posixEnv) GetFileSize(name string) (uint64, error) {
	info, err := os.Stat(name)
	if err != nil {
		return 0, posixError(name, err)
	}
	return uint64(info.Size()), nil
}

func (e *posixEnv) RenameFile(src, target string) error {
	if err := os.Rename(src, target); err != nil {
		return posixError(src, err)
	}
	return nil
}

func setFileLock(f *os.File, lock bool) error {
	lockType := int16(unix.F_UNLCK)
	if lock {
		lockType = unix.F_WRLCK
	}
	flock := unix.Flock_t{
		Type:   lockType,
		Whence: io.SeekStart,
		Start:  0,
		Len:    0,
	}
	return unix.FcntlFlock(f.Fd(), unix.F_SETLK, &flock)
}

func (e *posixEnv) LockFile(name string) (FileLock, error) {
	f, err := os.OpenFile(name, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, posixError(name, err)
	}
	if !e.locks.insert(name) {
		_ = f.Close()
		return nil, util.InUseError2("lock "+name, "already held by process")
	}
	if err := setFileLock(f, true); err != nil {
		e.locks.remove(name)
		_ = f.Close()
		return nil, util.InUseError2("lock "+name, err.Error())
	}
	return &posixFileLock{file: f, name: name}, nil
}

func (e *posixEnv) UnlockFile(lock FileLock) error {
	l, ok := lock.(*posixFileLock)
	if !ok {
		return util.InvalidArgumentError1("unlock: not a posix file lock")
	}
	if err := setFileLock(l.file, false); err != nil {
		return posixError(l.name, err)
	}
	e.locks.remove(l.name)
	return l.file.Close()
}

func (e *posixEnv) NewLogger(name string) (*log.Logger, func() error, error) {
	f, err := os.OpenFile(name, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0644)
	if err != nil {
		return nil, nil, posixError(name, err)
	}
	return log.New(f, "", log.LstdFlags|log.Lmicroseconds), f.Close, nil
}

func (e *posixEnv) NowMicros() uint64 {
	return uint64(time.Now().UnixNano() / 1000)
}

var defaultEnv = &posixEnv{locks: lockTable{files: make(map[string]struct{})}}

// DefaultEnv returns an Env backed by the operating system.
func DefaultEnv() Env {
	return defaultEnv
}
