package db

import (
	"fmt"
	"io"
	"strings"
	"testing"

	"github.com/mtxrym/rocksdb/util"
)

type logDest struct {
	contents []byte
}

func (d *logDest) Append(data []byte) error {
	d.contents = append(d.contents, data...)
	return nil
}

func (d *logDest) Flush() error { return nil }
func (d *logDest) Sync() error  { return nil }
func (d *logDest) Close() error { return nil }

type logSource struct {
	contents []byte
	pos      int
}

func (s *logSource) Read(b []byte) (int, error) {
	if s.pos >= len(s.contents) {
		return 0, io.EOF
	}
	n := copy(b, s.contents[s.pos:])
	s.pos += n
	return n, nil
}

func (s *logSource) Skip(n uint64) error {
	s.pos += int(n)
	return nil
}

func (s *logSource) Close() error { return nil }

type dropReporter struct {
	droppedBytes int
	message      string
}

func (r *dropReporter) corruption(bytes int, err error) {
	r.droppedBytes += bytes
	r.message += err.Error()
}

type logHarness struct {
	t        *testing.T
	dest     *logDest
	writer   *logWriter
	reporter *dropReporter
	reader   *logReader
	scratch  []byte
}

func newLogHarness(t *testing.T) *logHarness {
	h := &logHarness{t: t, dest: &logDest{}, reporter: &dropReporter{}}
	h.writer = newLogWriter(h.dest)
	return h
}

func (h *logHarness) write(msg string) {
	util.AssertNotError(h.writer.addRecord([]byte(msg)), "addRecord", h.t)
}

func (h *logHarness) read() string {
	if h.reader == nil {
		h.reader = newLogReader(&logSource{contents: h.dest.contents}, h.reporter, true)
	}
	var record []byte
	if h.reader.readRecord(&record, &h.scratch) {
		return string(record)
	}
	return "EOF"
}

func (h *logHarness) incrementByte(offset int, delta byte) {
	h.dest.contents[offset] += delta
}

func bigString(partialMessage string, n int) string {
	var b strings.Builder
	for b.Len() < n {
		b.WriteString(partialMessage)
	}
	return b.String()[:n]
}

func numberString(n int) string {
	return fmt.Sprintf("%d.", n)
}

func TestLogReadWrite(t *testing.T) {
	h := newLogHarness(t)
	h.write("foo")
	h.write("bar")
	h.write("")
	h.write("xxxx")
	util.AssertEqual("foo", h.read(), "first", t)
	util.AssertEqual("bar", h.read(), "second", t)
	util.AssertEqual("", h.read(), "third", t)
	util.AssertEqual("xxxx", h.read(), "fourth", t)
	util.AssertEqual("EOF", h.read(), "eof", t)
	util.AssertEqual("EOF", h.read(), "eof is sticky", t)
}

func TestLogManyBlocks(t *testing.T) {
	h := newLogHarness(t)
	for i := 0; i < 100000; i++ {
		h.write(numberString(i))
	}
	for i := 0; i < 100000; i++ {
		util.AssertEqual(numberString(i), h.read(), "record", t)
	}
	util.AssertEqual("EOF", h.read(), "eof", t)
}

func TestLogFragmentation(t *testing.T) {
	h := newLogHarness(t)
	h.write("small")
	h.write(bigString("medium", 50000))
	h.write(bigString("large", 100000))
	util.AssertEqual("small", h.read(), "small", t)
	util.AssertEqual(bigString("medium", 50000), h.read(), "medium", t)
	util.AssertEqual(bigString("large", 100000), h.read(), "large", t)
	util.AssertEqual("EOF", h.read(), "eof", t)
}

func TestLogMarginalTrailer(t *testing.T) {
	// A record that leaves exactly headerSize bytes in the block.
	h := newLogHarness(t)
	n := blockSize - 2*headerSize
	h.write(bigString("foo", n))
	util.AssertEqual(blockSize-headerSize, len(h.dest.contents), "block layout", t)
	h.write("")
	h.write("bar")
	util.AssertEqual(bigString("foo", n), h.read(), "big", t)
	util.AssertEqual("", h.read(), "empty", t)
	util.AssertEqual("bar", h.read(), "bar", t)
	util.AssertEqual("EOF", h.read(), "eof", t)
}

func TestLogShortTrailer(t *testing.T) {
	h := newLogHarness(t)
	n := blockSize - 2*headerSize + 4
	h.write(bigString("foo", n))
	util.AssertEqual(blockSize-headerSize+4, len(h.dest.contents), "block layout", t)
	h.write("")
	h.write("bar")
	util.AssertEqual(bigString("foo", n), h.read(), "big", t)
	util.AssertEqual("", h.read(), "empty", t)
	util.AssertEqual("bar", h.read(), "bar", t)
	util.AssertEqual("EOF", h.read(), "eof", t)
}

func TestLogChecksumMismatch(t *testing.T) {
	h := newLogHarness(t)
	h.write("foooooo")
	h.incrementByte(0, 10)
	util.AssertEqual("EOF", h.read(), "corrupted record dropped", t)
	util.AssertEqual(headerSize+7, h.reporter.droppedBytes, "dropped bytes", t)
	util.AssertTrue(strings.Contains(h.reporter.message, "checksum mismatch"), "reason", t)
}

func TestLogTruncatedWrite(t *testing.T) {
	h := newLogHarness(t)
	h.write("foo")
	// Simulate a crash that lost the record payload tail.
	h.dest.contents = h.dest.contents[:len(h.dest.contents)-1]
	util.AssertEqual("EOF", h.read(), "truncated tail is a clean EOF", t)
	util.AssertEqual(0, h.reporter.droppedBytes, "no corruption reported", t)
}

func TestLogBadRecordType(t *testing.T) {
	h := newLogHarness(t)
	h.write("foo")
	h.incrementByte(6, 100)
	h.read()
	util.AssertTrue(h.reporter.droppedBytes > 0, "bytes dropped", t)
}
