package memstore

import (
	"io"
	"sync/atomic"

	"github.com/tarndt/flashsim/pkg/stores"
)

//MemStore is a heap backed ephemeral flash image
type MemStore struct {
	image []byte

	atomicOnline uint64
}

//New constructs a memory backed store of the provided size. Its contents are
// zeroed, not erased, the device formats it because Open reports it created.
func New(size int64) *MemStore {
	return &MemStore{
		image:        make([]byte, int(size)),
		atomicOnline: 1,
	}
}

//Open has the flashsim.Opener shape; a memory store is always new
func Open(size int64) (*MemStore, bool, error) {
	return New(size), true, nil
}

//Size of this store in bytes
func (ms *MemStore) Size() int64 {
	return int64(len(ms.image))
}

//Bytes exposes the resident image
func (ms *MemStore) Bytes() []byte {
	return ms.image
}

//ReadAt fufills io.ReaderAt
func (ms *MemStore) ReadAt(buf []byte, pos int64) (count int, err error) {
	if atomic.LoadUint64(&ms.atomicOnline) != 1 {
		return 0, stores.ErrClosed
	}
	if pos < 0 || pos > int64(len(ms.image)) {
		return 0, io.EOF
	}

	count = copy(buf, ms.image[pos:])
	if count < len(buf) {
		err = io.EOF
	}
	return count, err
}

//WriteAt fufills io.WriterAt
func (ms *MemStore) WriteAt(buf []byte, pos int64) (count int, err error) {
	if atomic.LoadUint64(&ms.atomicOnline) != 1 {
		return 0, stores.ErrClosed
	}

	end := pos + int64(len(buf))
	if pos < 0 || end > int64(len(ms.image)) {
		return 0, io.ErrUnexpectedEOF
	}
	return copy(ms.image[pos:end], buf), nil
}

//Flush is a no-op for memory
func (ms *MemStore) Flush() error {
	if atomic.LoadUint64(&ms.atomicOnline) != 1 {
		return stores.ErrClosed
	}
	return nil
}

//Close fufills io.Closer, the image is released
func (ms *MemStore) Close() error {
	if atomic.SwapUint64(&ms.atomicOnline, 0) == 1 {
		ms.image = nil
	}
	return nil
}
