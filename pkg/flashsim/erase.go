package flashsim

import (
	"fmt"

	"go.uber.org/zap"
)

//EraseSector resets the sector starting at addr to the erased state. addr must
// be a sector start, otherwise an error wrapping ErrSectorNotFound is returned
// and nothing is modified.
func (dev *Device) EraseSector(addr uint32) error {
	if err := dev.ensureOpen(); err != nil {
		return err
	}

	idx, err := dev.geom.FindSector(addr)
	if err != nil {
		return err
	}

	length := dev.geom.SectorLength(idx)
	dev.log.Debug("Erasing sector", zap.Int("sector", idx), zap.Uint32("addr", addr), zap.Uint32("length", length))
	return dev.eraseRange(addr, length)
}

//EraseAll resets the whole device to the erased state (chip erase)
func (dev *Device) EraseAll() error {
	if err := dev.ensureOpen(); err != nil {
		return err
	}
	dev.log.Debug("Erasing device", zap.Stringer("geometry", dev.geom))
	return dev.eraseRange(0, dev.geom.size)
}

//eraseRange fills [addr, addr+length) with erased bytes a chunk at a time
func (dev *Device) eraseRange(addr, length uint32) error {
	for end := addr + length; addr < end; {
		chunk := dev.erased
		if remaining := end - addr; remaining < uint32(len(chunk)) {
			chunk = chunk[:remaining]
		}
		if _, err := dev.store.WriteAt(chunk, int64(addr)); err != nil {
			return fmt.Errorf("Could not erase %d bytes at %#08x: %w", len(chunk), addr, err)
		}
		addr += uint32(len(chunk))
	}
	return dev.flush()
}
