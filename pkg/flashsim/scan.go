package flashsim

import (
	"fmt"

	"github.com/tarndt/flashsim/pkg/util"

	"github.com/bits-and-blooms/bitset"
	"github.com/sigurn/crc16"
)

var crcTable = crc16.MakeTable(crc16.CRC16_CCITT_FALSE)

//Usage is a point in time survey of which sectors hold programmed data
type Usage struct {
	Geometry *Geometry
	Erased   *bitset.BitSet //bit i is set when sector i is fully erased
	CRC      []uint16       //CRC-16/CCITT-FALSE of each sector's contents
}

//Scan reads every sector of the provided device through its HAL
func Scan(dev HAL) (*Usage, error) {
	geom := dev.Geometry()
	usage := &Usage{
		Geometry: geom,
		Erased:   bitset.New(uint(geom.SectorCount())),
		CRC:      make([]uint16, geom.SectorCount()),
	}

	buf := make([]byte, 4096)
	for i := 0; i < geom.SectorCount(); i++ {
		addr, remaining := geom.SectorStart(i), geom.SectorLength(i)
		crc, erased := crc16.Init(crcTable), true

		for remaining > 0 {
			chunk := buf
			if remaining < uint32(len(chunk)) {
				chunk = chunk[:remaining]
			}
			if err := dev.Read(addr, chunk); err != nil {
				return nil, fmt.Errorf("Could not scan sector %d: %w", i, err)
			}
			crc = crc16.Update(crc, chunk, crcTable)
			erased = erased && util.IsErased(chunk)
			addr += uint32(len(chunk))
			remaining -= uint32(len(chunk))
		}

		usage.CRC[i] = crc16.Complete(crc, crcTable)
		if erased {
			usage.Erased.Set(uint(i))
		}
	}
	return usage, nil
}

//Programmed returns the indexes of sectors holding any programmed byte
func (u *Usage) Programmed() []int {
	programmed := make([]int, 0, u.Geometry.SectorCount()-int(u.Erased.Count()))
	for i := 0; i < u.Geometry.SectorCount(); i++ {
		if !u.Erased.Test(uint(i)) {
			programmed = append(programmed, i)
		}
	}
	return programmed
}

//ProgrammedBytes totals the length of all sectors holding programmed data
func (u *Usage) ProgrammedBytes() uint64 {
	var total uint64
	for _, i := range u.Programmed() {
		total += uint64(u.Geometry.SectorLength(i))
	}
	return total
}
