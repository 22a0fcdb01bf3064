package strms

import (
	"io"
)

type closeList struct {
	io.Reader
	closers []io.Closer
}

var _ io.ReadCloser = closeList{}

//NewCloseList wraps a reader that is layered over one or more io.ReadClosers
// (ex. a decompressor over a download) so closing it closes every layer in order.
// The first close error is returned.
func NewCloseList(rdr io.Reader, closers ...io.Closer) io.ReadCloser {
	return closeList{
		Reader:  rdr,
		closers: closers,
	}
}

func (cl closeList) Close() (err error) {
	for _, closer := range cl.closers {
		if clsrErr := closer.Close(); clsrErr != nil && err == nil {
			err = clsrErr
		}
	}
	return err
}
