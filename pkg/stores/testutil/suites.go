package testutil

import (
	"testing"

	"github.com/tarndt/flashsim/pkg/flashsim"
)

//SmallGeometry is a 192 KiB part with mixed sector sizes that keeps the suites
// quick while still covering unequal sector lengths
func SmallGeometry() *flashsim.Geometry {
	return flashsim.MustGeometry(0x30000, 0x0, 0x4000, 0x8000, 0xC000, 0x10000, 0x20000)
}

//TestFlash runs the standard suite of flash semantics tests on the provided
// device and closes it when done
func TestFlash(t *testing.T, dev *flashsim.Device) {
	t.Run("flash", func(t *testing.T) {
		if err := dev.Init(); err != nil {
			t.Fatalf("Device init failed: %s", err)
		}
		if err := dev.Read(0, []byte{0}); err != nil {
			t.Fatalf("1 byte test read failed: %s", err)
		}

		TestDevSize(t, dev, dev.Geometry().Size())
		TestReadErased(t, dev)
		TestReadHash(t, dev, TestWriteReadPattern(t, dev))
		TestRewriteRejected(t, dev)
		TestEraseSectors(t, dev)
		TestClose(t, dev)
	})
}

//TestPersistence programs a device produced by open, closes it and confirms a
// second device produced by open sees the same image without it being erased
func TestPersistence(t *testing.T, open func() *flashsim.Device) {
	t.Run("persistence", func(t *testing.T) {
		dev := open()
		if err := dev.Init(); err != nil {
			t.Fatalf("Device init failed: %s", err)
		}
		TestReadErased(t, dev)
		devHash := TestWriteReadPattern(t, dev)
		TestClose(t, dev)

		t.Run("reopen", func(t *testing.T) {
			dev := open()
			if err := dev.Init(); err != nil {
				t.Fatalf("Device reinit failed: %s", err)
			}
			TestReadHash(t, dev, devHash)
			TestClose(t, dev)
		})
	})
}
