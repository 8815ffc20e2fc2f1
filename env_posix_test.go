//go:build !windows

package rocksdb

import (
	"io"
	"testing"

	"github.com/mtxrym/rocksdb/util"
)

func TestEnvReadWrite(t *testing.T) {
	env := DefaultEnv()
	fname := t.TempDir() + "/open_on_read.txt"

	util.AssertNotError(WriteStringToFile(env, []byte("hello world"), fname), "write", t)
	util.AssertTrue(env.FileExists(fname), "exists", t)
	size, err := env.GetFileSize(fname)
	util.AssertNotError(err, "size", t)
	util.AssertEqual(uint64(11), size, "size", t)

	data, err := ReadFileToString(env, fname)
	util.AssertNotError(err, "read", t)
	util.AssertEqual("hello world", string(data), "contents", t)

	util.AssertNotError(env.DeleteFile(fname), "delete", t)
	util.AssertFalse(env.FileExists(fname), "gone", t)
}

func TestEnvSequentialRead(t *testing.T) {
	env := DefaultEnv()
	fname := t.TempDir() + "/sequential.txt"
	util.AssertNotError(WriteStringToFileSync(env, []byte("0123456789"), fname), "write", t)

	file, err := env.NewSequentialFile(fname)
	util.AssertNotError(err, "open", t)
	defer file.Close()

	buf := make([]byte, 4)
	n, err := file.Read(buf)
	util.AssertNotError(err, "read", t)
	util.AssertEqual(4, n, "read size", t)
	util.AssertEqual("0123", string(buf[:n]), "first chunk", t)

	util.AssertNotError(file.Skip(3), "skip", t)
	n, _ = file.Read(buf)
	util.AssertEqual("789", string(buf[:n]), "after skip", t)

	_, err = file.Read(buf)
	util.AssertTrue(err == io.EOF, "eof", t)
}

func TestEnvRandomAccess(t *testing.T) {
	env := DefaultEnv()
	fname := t.TempDir() + "/random.txt"
	util.AssertNotError(WriteStringToFile(env, []byte("0123456789"), fname), "write", t)

	file, err := env.NewRandomAccessFile(fname)
	util.AssertNotError(err, "open", t)
	defer file.Close()

	buf := make([]byte, 3)
	n, err := file.ReadAt(buf, 5)
	util.AssertNotError(err, "read at", t)
	util.AssertEqual("567", string(buf[:n]), "middle", t)
	n, err = file.ReadAt(buf, 0)
	util.AssertNotError(err, "read at start", t)
	util.AssertEqual("012", string(buf[:n]), "start", t)
}

func TestEnvOpenNonExistentFile(t *testing.T) {
	env := DefaultEnv()
	fname := t.TempDir() + "/non_existent_file"
	util.AssertFalse(env.FileExists(fname), "absent", t)

	_, err := env.NewRandomAccessFile(fname)
	util.AssertError(err, "random access", t)
	util.AssertTrue(IsNotFound(err), "not found", t)

	_, err = env.NewSequentialFile(fname)
	util.AssertError(err, "sequential", t)
	util.AssertTrue(IsNotFound(err), "not found", t)
}

func TestEnvLockFile(t *testing.T) {
	env := DefaultEnv()
	fname := t.TempDir() + "/LOCK"

	lock, err := env.LockFile(fname)
	util.AssertNotError(err, "lock", t)

	_, err = env.LockFile(fname)
	util.AssertError(err, "second lock rejected", t)
	util.AssertTrue(IsInUse(err), "in use", t)

	util.AssertNotError(env.UnlockFile(lock), "unlock", t)
	lock, err = env.LockFile(fname)
	util.AssertNotError(err, "relock", t)
	util.AssertNotError(env.UnlockFile(lock), "unlock", t)
}

func TestEnvAppendableFile(t *testing.T) {
	env := DefaultEnv()
	fname := t.TempDir() + "/appendable.txt"
	util.AssertNotError(WriteStringToFile(env, []byte("abc"), fname), "write", t)

	file, err := env.NewAppendableFile(fname)
	util.AssertNotError(err, "open", t)
	util.AssertNotError(file.Append([]byte("def")), "append", t)
	util.AssertNotError(file.Close(), "close", t)

	data, err := ReadFileToString(env, fname)
	util.AssertNotError(err, "read", t)
	util.AssertEqual("abcdef", string(data), "contents", t)
}

func TestEnvRenameAndChildren(t *testing.T) {
	env := DefaultEnv()
	dir := t.TempDir() + "/children"
	util.AssertNotError(env.CreateDir(dir), "mkdir", t)
	util.AssertNotError(WriteStringToFile(env, []byte("x"), dir+"/a"), "write", t)
	util.AssertNotError(env.RenameFile(dir+"/a", dir+"/b"), "rename", t)

	children, err := env.GetChildren(dir)
	util.AssertNotError(err, "children", t)
	found := false
	for _, c := range children {
		if c == "b" {
			found = true
		}
	}
	util.AssertTrue(found, "renamed file listed", t)
	util.AssertFalse(env.FileExists(dir+"/a"), "old name gone", t)
}
