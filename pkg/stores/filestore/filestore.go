package filestore

import (
	"errors"
	"fmt"
	"os"

	"github.com/tarndt/flashsim/pkg/stores"
)

//FileStore is a flash image held in a regular file, byte for byte from offset 0
type FileStore struct {
	*os.File
	SizeBytes int64
}

//Open reopens the image at filename, or creates it when it does not exist.
// created is true when the image is new (or an existing file was empty) and
// must be formatted. An existing image of a different size is rejected.
func Open(filename string, size int64) (fstore *FileStore, created bool, err error) {
	file, err := os.OpenFile(filename, os.O_RDWR, 0)
	if errors.Is(err, os.ErrNotExist) {
		file, err = os.OpenFile(filename, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0666)
		created = true
	}
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

	return &FileStore{File: file, SizeBytes: size}, created, nil
}

//OpenTemp creates an anonymous image in dir (or the default temp directory)
// that is unlinked immediately and so vanishes when closed or the process exits
func OpenTemp(dir string, size int64) (*FileStore, error) {
	file, err := os.CreateTemp(dir, "flashsim-*.img")
	if err != nil {
		return nil, fmt.Errorf("Could not create temporary image: %w", err)
	}
	if err = os.Remove(file.Name()); err != nil {
		file.Close()
		return nil, fmt.Errorf("Could not unlink temporary image %q: %w", file.Name(), err)
	}
	if err = file.Truncate(size); err != nil {
		file.Close()
		return nil, fmt.Errorf("Could not size temporary image: %w", err)
	}
	return &FileStore{File: file, SizeBytes: size}, nil
}

//Size of this store in bytes
func (fstore *FileStore) Size() int64 {
	return fstore.SizeBytes
}

//Flush fufills part of flashsim.Store. WriteAt already hands data to the kernel
// (the equivalent of a stdio fflush) so there is nothing to do; Close syncs.
func (*FileStore) Flush() error {
	return nil
}

//Close syncs and closes the image, releasing its lock
func (fstore *FileStore) Close() error {
	syncErr := fstore.Sync()
	if err := fstore.File.Close(); err != nil {
		return fmt.Errorf("Could not close image file %q: %w", fstore.Name(), err)
	}
	if syncErr != nil {
		return fmt.Errorf("Could not sync image file %q: %w", fstore.Name(), syncErr)
	}
	return nil
}
