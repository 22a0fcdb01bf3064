package flashsim

import (
	"io"

	"github.com/tarndt/flashsim/pkg/stores/filestore"
)

//Store is the byte addressable region that materializes the simulated flash.
// Its layout is the raw flash image: byte N of the store is address N.
type Store interface {
	io.ReaderAt
	io.WriterAt
	io.Closer
	Size() int64
	Flush() error
}

//Resident is implemented by stores whose whole image is addressable memory,
// the erased check then inspects it directly instead of reading it back.
type Resident interface {
	Bytes() []byte
}

//Opener brings a Store online. created reports a brand new store the device
// must format (erase) before use.
type Opener interface {
	Open(size int64) (store Store, created bool, err error)
}

//OpenerFunc adapts a function to Opener
type OpenerFunc func(size int64) (Store, bool, error)

//Open calls fn
func (fn OpenerFunc) Open(size int64) (Store, bool, error) {
	return fn(size)
}

type pathOpener string

func (path pathOpener) Open(size int64) (Store, bool, error) {
	fstore, created, err := filestore.Open(string(path), size)
	if err != nil {
		return nil, false, err
	}
	return fstore, created, nil
}

//tempOpener creates an anonymous image that lives until the process exits
type tempOpener struct{}

func (tempOpener) Open(size int64) (Store, bool, error) {
	fstore, err := filestore.OpenTemp("", size)
	if err != nil {
		return nil, false, err
	}
	return fstore, true, nil
}
