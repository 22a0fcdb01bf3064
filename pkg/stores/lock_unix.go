//go:build unix

package stores

import (
	"errors"
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

//LockFile takes an exclusive advisory lock on an image, released when the
// file is closed
func LockFile(file *os.File) error {
	err := unix.Flock(int(file.Fd()), unix.LOCK_EX|unix.LOCK_NB)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, unix.EWOULDBLOCK):
		return fmt.Errorf("%w: %q", ErrLocked, file.Name())
	}
	return fmt.Errorf("Could not lock image file %q: %w", file.Name(), err)
}
