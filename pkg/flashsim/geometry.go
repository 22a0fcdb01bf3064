package flashsim

import (
	"fmt"
	"sort"

	"github.com/dustin/go-humanize"
)

//Geometry describes the erase-unit layout of a flash part: the start offset of
// every sector and the total capacity. Sector lengths are derived from the gap
// to the next sector (or to the end of the device for the last one).
type Geometry struct {
	size   uint32
	starts []uint32
}

//NewGeometry validates and constructs a Geometry. The first sector must start
// at 0 and sector starts must be strictly increasing and below size.
func NewGeometry(size uint32, starts ...uint32) (*Geometry, error) {
	switch {
	case size == 0:
		return nil, fmt.Errorf("%w: device size must be positive", ErrBadGeometry)
	case len(starts) < 1:
		return nil, fmt.Errorf("%w: at least one sector is required", ErrBadGeometry)
	case starts[0] != 0:
		return nil, fmt.Errorf("%w: first sector starts at %#x rather than 0", ErrBadGeometry, starts[0])
	}

	for i := 1; i < len(starts); i++ {
		if starts[i] <= starts[i-1] {
			return nil, fmt.Errorf("%w: sector %d start %#x does not follow sector %d start %#x", ErrBadGeometry, i, starts[i], i-1, starts[i-1])
		}
	}
	if last := starts[len(starts)-1]; last >= size {
		return nil, fmt.Errorf("%w: last sector starts at %#x which is not below the device size %#x", ErrBadGeometry, last, size)
	}

	return &Geometry{
		size:   size,
		starts: append([]uint32(nil), starts...),
	}, nil
}

//MustGeometry is NewGeometry for static tables, it panics on invalid input
func MustGeometry(size uint32, starts ...uint32) *Geometry {
	geom, err := NewGeometry(size, starts...)
	if err != nil {
		panic(err)
	}
	return geom
}

//UniformGeometry builds a geometry of equally sized sectors
func UniformGeometry(size, sectorSize uint32) (*Geometry, error) {
	if sectorSize == 0 || size%sectorSize != 0 {
		return nil, fmt.Errorf("%w: device size %d is not a multiple of sector size %d", ErrBadGeometry, size, sectorSize)
	}
	starts := make([]uint32, size/sectorSize)
	for i := range starts {
		starts[i] = uint32(i) * sectorSize
	}
	return NewGeometry(size, starts...)
}

//NativeGeometry is the simulated 1 MiB part: four 16 KiB sectors, one 64 KiB
// sector and seven 128 KiB sectors
func NativeGeometry() *Geometry {
	return MustGeometry(1024*1024,
		0x00000000, // 16 * 1024
		0x00004000, // 16 * 1024
		0x00008000, // 16 * 1024
		0x0000c000, // 16 * 1024
		0x00010000, // 64 * 1024
		0x00020000, // 128 * 1024
		0x00040000, // 128 * 1024
		0x00060000, // 128 * 1024
		0x00080000, // 128 * 1024
		0x000a0000, // 128 * 1024
		0x000c0000, // 128 * 1024
		0x000e0000, // 128 * 1024
	)
}

//Size of the device in bytes
func (g *Geometry) Size() uint32 {
	return g.size
}

//SectorCount is the number of erase units
func (g *Geometry) SectorCount() int {
	return len(g.starts)
}

//SectorStart returns the address of sector i
func (g *Geometry) SectorStart(i int) uint32 {
	return g.starts[i]
}

//SectorLength returns the length of sector i in bytes
func (g *Geometry) SectorLength(i int) uint32 {
	end := g.size
	if i < len(g.starts)-1 {
		end = g.starts[i+1]
	}
	return end - g.starts[i]
}

//Sectors returns a copy of the ordered sector start table
func (g *Geometry) Sectors() []uint32 {
	return append([]uint32(nil), g.starts...)
}

//FindSector maps a sector start address to its index. Only exact sector starts
// match, erases must never begin mid-sector.
func (g *Geometry) FindSector(addr uint32) (int, error) {
	i := sort.Search(len(g.starts), func(i int) bool { return g.starts[i] >= addr })
	if i < len(g.starts) && g.starts[i] == addr {
		return i, nil
	}
	return -1, fmt.Errorf("%w: %#08x", ErrSectorNotFound, addr)
}

//Contains reports whether [addr, addr+length) lies within the device
func (g *Geometry) Contains(addr uint32, length int) bool {
	return length >= 0 && uint64(addr)+uint64(length) <= uint64(g.size)
}

//String is a human readable description for display
func (g *Geometry) String() string {
	return fmt.Sprintf("%s in %d sectors", humanize.IBytes(uint64(g.size)), len(g.starts))
}
