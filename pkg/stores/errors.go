//Package stores holds what the backing store implementations share. Each
// implementation lives in its own subpackage so a consumer only links the
// dependencies of the stores it uses.
package stores

import (
	"fmt"

	"github.com/tarndt/flashsim/pkg/util/consterr"
)

//Errors shared by store implementations
const (
	ErrClosed       = consterr.ConstErr("Store is closed")
	ErrSizeMismatch = consterr.ConstErr("Existing image size does not match the device size")
	ErrLocked       = consterr.ConstErr("Image is in use by another simulator")
)

//SizeMismatch builds the error returned when an existing image has the wrong size
func SizeMismatch(name string, found, expected int64) error {
	return fmt.Errorf("%w: %q holds %d bytes, expected %d", ErrSizeMismatch, name, found, expected)
}
