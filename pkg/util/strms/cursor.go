package strms

import (
	"io"
)

//ReadAtReader is io.ReaderAt + io.Reader
type ReadAtReader interface {
	io.ReaderAt
	io.Reader
}

//WriterAtWriter is io.WriterAt + io.Writer
type WriterAtWriter interface {
	io.WriterAt
	io.Writer
}

type readAtReader struct {
	cur int64 //we own the position, the underlying io.ReaderAt has none
	io.ReaderAt
}

var _ io.Reader = (*readAtReader)(nil)

//NewReadAtReader returns a reader that streams from an io.ReaderAt starting at
// the provided offset using its own position counter. Flash devices are
// address based and have no notion of a position; this lets them be hashed,
// copied or uploaded with the io package helpers.
func NewReadAtReader(rdrAt io.ReaderAt, start int64) ReadAtReader {
	return &readAtReader{
		cur:      start,
		ReaderAt: rdrAt,
	}
}

func (rar *readAtReader) Read(buf []byte) (n int, err error) {
	n, err = rar.ReadAt(buf, rar.cur)
	rar.cur += int64(n)
	return n, err
}

type writeAtWriter struct {
	cur int64
	io.WriterAt
}

var _ io.Writer = (*writeAtWriter)(nil)

//NewWriteAtWriter is the io.WriterAt counterpart of NewReadAtReader
func NewWriteAtWriter(wtrAt io.WriterAt, start int64) WriterAtWriter {
	return &writeAtWriter{
		cur:      start,
		WriterAt: wtrAt,
	}
}

func (waw *writeAtWriter) Write(buf []byte) (n int, err error) {
	n, err = waw.WriteAt(buf, waw.cur)
	waw.cur += int64(n)
	return n, err
}
