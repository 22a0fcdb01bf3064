package flashsim

import (
	"errors"
	"testing"
)

func TestNativeGeometry(t *testing.T) {
	geom := NativeGeometry()

	if geom.Size() != 0x100000 {
		t.Fatalf("Native size is %#x, expected %#x", geom.Size(), 0x100000)
	}
	if geom.SectorCount() != 12 {
		t.Fatalf("Native geometry has %d sectors, expected 12", geom.SectorCount())
	}

	expectedLens := []uint32{
		0x4000, 0x4000, 0x4000, 0x4000,
		0x10000,
		0x20000, 0x20000, 0x20000, 0x20000, 0x20000, 0x20000, 0x20000,
	}
	var total uint32
	for i, expected := range expectedLens {
		if actual := geom.SectorLength(i); actual != expected {
			t.Errorf("Sector %d has length %#x, expected %#x", i, actual, expected)
		}
		if geom.SectorStart(i) != total {
			t.Errorf("Sector %d starts at %#x, expected %#x", i, geom.SectorStart(i), total)
		}
		total += expectedLens[i]
	}
	if total != geom.Size() {
		t.Fatalf("Sector lengths total %#x rather than the device size %#x", total, geom.Size())
	}

	if str := geom.String(); str != "1.0 MiB in 12 sectors" {
		t.Fatalf("Unexpected geometry description %q", str)
	}
}

func TestNewGeometry(t *testing.T) {
	testCases := []struct {
		name   string
		size   uint32
		starts []uint32
		valid  bool
	}{
		{"single", 0x1000, []uint32{0}, true},
		{"mixed", 0x14000, []uint32{0, 0x4000, 0x8000, 0xC000, 0x10000}, true},
		{"zero-size", 0, []uint32{0}, false},
		{"no-sectors", 0x1000, nil, false},
		{"nonzero-first", 0x1000, []uint32{0x100}, false},
		{"unordered", 0x1000, []uint32{0, 0x800, 0x400}, false},
		{"duplicate", 0x1000, []uint32{0, 0x400, 0x400}, false},
		{"past-end", 0x1000, []uint32{0, 0x1000}, false},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			geom, err := NewGeometry(testCase.size, testCase.starts...)
			switch {
			case testCase.valid && err != nil:
				t.Fatalf("Valid geometry rejected: %s", err)
			case !testCase.valid && !errors.Is(err, ErrBadGeometry):
				t.Fatalf("Expected ErrBadGeometry, got: %v", err)
			case testCase.valid && geom.SectorCount() != len(testCase.starts):
				t.Fatalf("Geometry has %d sectors, expected %d", geom.SectorCount(), len(testCase.starts))
			}
		})
	}

	t.Run("uniform", func(t *testing.T) {
		geom, err := UniformGeometry(0x10000, 0x1000)
		if err != nil {
			t.Fatalf("Uniform geometry rejected: %s", err)
		}
		if geom.SectorCount() != 16 || geom.SectorLength(15) != 0x1000 {
			t.Fatalf("Unexpected uniform layout %v", geom.Sectors())
		}
		if _, err = UniformGeometry(0x10000, 0x3000); !errors.Is(err, ErrBadGeometry) {
			t.Fatalf("Expected uneven uniform geometry to be rejected, got: %v", err)
		}
	})

	t.Run("isolated-table", func(t *testing.T) {
		starts := []uint32{0, 0x100}
		geom := MustGeometry(0x200, starts...)
		starts[1] = 0x150
		geom.Sectors()[1] = 0x180
		if geom.SectorStart(1) != 0x100 {
			t.Fatalf("Geometry was mutated through a shared slice, sector 1 starts at %#x", geom.SectorStart(1))
		}
	})
}

func TestFindSector(t *testing.T) {
	geom := MustGeometry(0x14000, 0x0, 0x4000, 0x8000, 0xC000, 0x10000)

	for i, start := range geom.Sectors() {
		idx, err := geom.FindSector(start)
		if err != nil {
			t.Fatalf("Sector start %#x not found: %s", start, err)
		}
		if idx != i {
			t.Fatalf("Sector start %#x mapped to %d rather than %d", start, idx, i)
		}
	}

	for _, addr := range []uint32{1, 0x3FFF, 0x4001, 0x10001, 0x13FFF, 0x14000, 0xFFFFFFFF} {
		idx, err := geom.FindSector(addr)
		if !errors.Is(err, ErrSectorNotFound) {
			t.Fatalf("Expected ErrSectorNotFound for %#x, got: %v", addr, err)
		}
		if idx != -1 {
			t.Fatalf("Lookup of %#x returned index %d with an error", addr, idx)
		}
	}

	if length := geom.SectorLength(4); length != 0x4000 {
		t.Fatalf("Last sector length is %#x, expected %#x", length, 0x4000)
	}
}

func TestContains(t *testing.T) {
	geom := MustGeometry(0x1000, 0)

	testCases := []struct {
		addr   uint32
		length int
		inside bool
	}{
		{0, 0x1000, true},
		{0xFFF, 1, true},
		{0x1000, 0, true},
		{0x1000, 1, false},
		{0xFFF, 2, false},
		{0xFFFFFFFF, 1, false},
		{0, -1, false},
	}
	for _, testCase := range testCases {
		if actual := geom.Contains(testCase.addr, testCase.length); actual != testCase.inside {
			t.Errorf("Contains(%#x, %d) = %t, expected %t", testCase.addr, testCase.length, actual, testCase.inside)
		}
	}
}
