package flashsim

import (
	"errors"
	"fmt"

	"github.com/tarndt/flashsim/pkg/util/consterr"
)

//Errors reported by the simulator; use errors.Is to match them
const (
	ErrSectorNotFound    = consterr.ConstErr("Address is not the start of a sector")
	ErrNotErased         = consterr.ConstErr("Target range is not erased")
	ErrOutOfRange        = consterr.ConstErr("Address range is outside of the device")
	ErrBadGeometry       = consterr.ConstErr("Invalid flash geometry")
	ErrStoreUnavailable  = consterr.ConstErr("Backing store could not be opened or created")
	ErrContractViolation = consterr.ConstErr("Flash contract violation")
)

//ContractError reports misuse of flash semantics: programming bytes that were not
// erased first or a backing store that could not be brought online. These are
// bugs in the caller (or test setup), not conditions to retry.
type ContractError struct {
	Op   string
	Addr uint32
	Err  error
}

var _ error = (*ContractError)(nil)

func (ce *ContractError) Error() string {
	return fmt.Sprintf("%s: %s at %#08x: %s", ErrContractViolation, ce.Op, ce.Addr, ce.Err)
}

//Unwrap exposes the underlying cause (ex. ErrNotErased)
func (ce *ContractError) Unwrap() error {
	return ce.Err
}

//Is matches ErrContractViolation in addition to the wrapped cause
func (ce *ContractError) Is(target error) bool {
	return target == ErrContractViolation
}

//IsContractViolation is shorthand for errors.Is(err, ErrContractViolation)
func IsContractViolation(err error) bool {
	return errors.Is(err, ErrContractViolation)
}
