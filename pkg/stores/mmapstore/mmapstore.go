package mmapstore

import (
	"fmt"
	"io"
	"os"

	"github.com/tarndt/flashsim/pkg/stores"

	"launchpad.net/gommap"
)

//MmapStore is a flash image file mapped into memory. Because the image is
// resident the device checks erased state directly against the mapping.
type MmapStore struct {
	file *os.File
	mmap gommap.MMap
	size int64
}

//Open maps the image at filename, creating it when it is missing or empty (in
// which case created is true). An existing image of a different size is rejected
// as is an image another simulator holds open.
func Open(filename string, size int64) (mstore *MmapStore, created bool, err error) {
	file, err := os.OpenFile(filename, os.O_RDWR|os.O_CREATE, 0666)
	if err != nil {
		return nil, false, fmt.Errorf("Could not open image file %q: %w", filename, err)
	}
	defer func() {
		if err != nil {
			file.Close()
		}
	}()

	if err = stores.LockFile(file); err != nil {
		return nil, false, err
	}

	info, err := file.Stat()
	if err != nil {
		return nil, false, fmt.Errorf("Could not stat image file %q: %w", filename, err)
	}
	switch found := info.Size(); {
	case found < 1:
		created = true
		if err = file.Truncate(size); err != nil {
			return nil, false, fmt.Errorf("Could not size image file %q: %w", filename, err)
		}
	case found != size:
		return nil, false, stores.SizeMismatch(filename, found, size)
	}

	mmap, err := gommap.Map(file.Fd(), gommap.PROT_READ|gommap.PROT_WRITE, gommap.MAP_SHARED)
	if err != nil {
		return nil, false, fmt.Errorf("Could not mmap image file %q (fd %d): %w", filename, file.Fd(), err)
	}
	return &MmapStore{file: file, mmap: mmap, size: size}, created, nil
}

//Size of this store in bytes
func (ms *MmapStore) Size() int64 {
	return ms.size
}

//Bytes exposes the mapped image
func (ms *MmapStore) Bytes() []byte {
	return ms.mmap
}

//ReadAt fufills io.ReaderAt
func (ms *MmapStore) ReadAt(buf []byte, pos int64) (int, error) {
	if ms.mmap == nil {
		return 0, stores.ErrClosed
	}
	if pos < 0 || pos > ms.size {
		return 0, io.EOF
	}

	n := copy(buf, ms.mmap[pos:])
	if n < len(buf) {
		return n, io.EOF
	}
	return n, nil
}

//WriteAt fufills io.WriterAt
func (ms *MmapStore) WriteAt(buf []byte, pos int64) (int, error) {
	if ms.mmap == nil {
		return 0, stores.ErrClosed
	}

	end := pos + int64(len(buf))
	if pos < 0 || end > ms.size {
		return 0, fmt.Errorf("Out of bounds write: %w", io.ErrUnexpectedEOF)
	}
	return copy(ms.mmap[pos:end], buf), nil
}

//Flush schedules dirty pages to be written back
func (ms *MmapStore) Flush() error {
	if ms.mmap == nil {
		return stores.ErrClosed
	}
	return ms.mmap.Sync(gommap.MS_ASYNC)
}

//Close writes back the mapping synchronously, unmaps and closes the image
func (ms *MmapStore) Close() error {
	if ms.mmap == nil {
		return nil
	}

	syncErr := ms.mmap.Sync(gommap.MS_SYNC)
	unmapErr := ms.mmap.UnsafeUnmap()
	ms.mmap = nil
	err := ms.file.Close()

	switch {
	case syncErr != nil:
		err = syncErr
	case unmapErr != nil:
		err = unmapErr
	}
	if err != nil {
		return fmt.Errorf("Could not close mapped image %q: %w", ms.file.Name(), err)
	}
	return nil
}
