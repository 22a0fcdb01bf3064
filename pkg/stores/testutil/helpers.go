package testutil

import (
	"bufio"
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/tarndt/flashsim/pkg/flashsim"
	"github.com/tarndt/flashsim/pkg/util"
	"github.com/tarndt/flashsim/pkg/util/strms"
)

//CreateContext creates a context aware of the provided a testing.T's deadline
func CreateContext(t *testing.T) context.Context {
	const defaultTO = time.Minute
	deadline, hasDeadline := t.Deadline()
	if !hasDeadline {
		deadline = time.Now().Add(defaultTO)
	}

	ctx, cancel := context.WithDeadline(context.Background(), deadline)
	t.Cleanup(cancel)
	return ctx
}

//TestDevSize verfies the provided device reports the correct size
func TestDevSize(t *testing.T, dev *flashsim.Device, expectedSize uint32) {
	t.Run("dev-size", func(t *testing.T) {
		if actual := dev.Size(); actual != int64(expectedSize) {
			t.Fatalf("Expected device size to be %d but it was %d", expectedSize, actual)
		}
		if actual := dev.Geometry().Size(); actual != expectedSize {
			t.Fatalf("Expected geometry size to be %d but it was %d", expectedSize, actual)
		}
	})
}

//TestReadErased verifies every byte of the provided device reads as erased
func TestReadErased(t *testing.T, dev *flashsim.Device) {
	t.Run("read-erased", func(t *testing.T) {
		t.Run("buffered", func(t *testing.T) {
			rdr := bufio.NewReader(strms.NewReadAtReader(dev, 0))
			for i := int64(0); i < dev.Size(); i++ {
				actual, err := rdr.ReadByte()
				if err != nil {
					t.Fatalf("Failed to read byte %d: %s", i, err)
				}
				if actual != util.ErasedByte {
					t.Fatalf("Wrong value %#x found at %#x, expecting %#x", actual, i, util.ErasedByte)
				}
			}
		})

		t.Run("per-sector", func(t *testing.T) {
			geom := dev.Geometry()
			for i := 0; i < geom.SectorCount(); i++ {
				buf := make([]byte, geom.SectorLength(i))
				if err := dev.Read(geom.SectorStart(i), buf); err != nil {
					t.Fatalf("Failed to read sector %d: %s", i, err)
				}
				if idx := util.FirstNonErased(buf); idx >= 0 {
					t.Fatalf("Sector %d has non-erased value %#x at offset %#x", i, buf[idx], idx)
				}
			}
		})
	})
}

//TestWriteReadPattern programs a pattern across the whole (erased) device and
// reads it back. The returned hash is of the full device image.
func TestWriteReadPattern(t *testing.T, dev *flashsim.Device) (writtenHash []byte) {
	count := dev.Size()

	t.Run("write-read-pattern", func(t *testing.T) {
		t.Run("unbuffered", func(t *testing.T) {
			count := unbufCount(count)
			buf, wtr := make([]byte, 1), strms.NewWriteAtWriter(dev, 0)
			for i := int64(0); i < count; i++ {
				writeVal := byte(i % 256)
				if _, err := wtr.Write([]byte{writeVal}); err != nil {
					t.Fatalf("Failed to write byte %d of %d: %s", i+1, count, err)
				}
				if err := dev.Read(uint32(i), buf); err != nil {
					t.Fatalf("Failed to read byte just written: %s", err)
				}
				if buf[0] != writeVal {
					t.Fatalf("Wrong value %d found at pos %d, expecting %d", buf[0], i, writeVal)
				}
			}

			if err := dev.EraseAll(); err != nil {
				t.Fatalf("Failed to erase device after unbuffered pattern: %s", err)
			}
		})

		t.Run("buffered", func(t *testing.T) {
			const offset = 16

			getVal := func(idx int64) byte {
				if (idx/4096)%2 == 0 {
					return byte((idx + offset) % 256)
				}
				return util.ErasedByte
			}

			t.Run("write", func(t *testing.T) {
				hashWtr := sha256.New()
				wtr := bufio.NewWriter(io.MultiWriter(strms.NewWriteAtWriter(dev, 0), hashWtr))
				for i := int64(0); i < count; i++ {
					if err := wtr.WriteByte(getVal(i)); err != nil {
						t.Fatalf("Failed to write byte %d of %d: %s", i+1, count, err)
					}
				}
				if err := wtr.Flush(); err != nil {
					t.Fatalf("Failed to flush buffered writer: %s", err)
				}
				writtenHash = hashWtr.Sum(nil)

				if err := dev.Flush(); err != nil {
					t.Fatalf("Failed to flush device: %s", err)
				}
			})

			t.Run("read", func(t *testing.T) {
				rdr := bufio.NewReader(strms.NewReadAtReader(dev, 0))
				for i := int64(0); true; i++ {
					actual, err := rdr.ReadByte()
					if err != nil {
						if err == io.EOF && i == count {
							break
						}
						t.Fatalf("Failed to read byte index %d of %d just written: %s", i, count, err)
					}
					if expected := getVal(i); actual != expected {
						t.Fatalf("Wrong value %d found at %d, expecting %d", actual, i, expected)
					}
				}

				TestReadHash(t, dev, writtenHash)
			})
		})
	})

	return writtenHash
}

//TestReadHash confirms the SHA of the provided device matches the expected SHA
func TestReadHash(t *testing.T, dev *flashsim.Device, expectedHash []byte) {
	t.Run("read-hash", func(t *testing.T) {
		if readHash := HashDevice(t, dev); !bytes.Equal(expectedHash, readHash) {
			t.Fatalf("SHA256 of device was %s but %s was expected", hex.EncodeToString(readHash), hex.EncodeToString(expectedHash))
		}
	})
}

//HashDevice calculates the SHA256 of the full device image
func HashDevice(t *testing.T, dev *flashsim.Device) []byte {
	hashWtr := sha256.New()
	if n, err := io.Copy(hashWtr, bufio.NewReader(strms.NewReadAtReader(dev, 0))); err != nil {
		t.Fatalf("Failed to calculate SHA256 of device: %s", err)
	} else if devSize := dev.Size(); n != devSize {
		t.Fatalf("While calculating SHA256 of device %d bytes were found instead of %d", n, devSize)
	}
	return hashWtr.Sum(nil)
}

//TestRewriteRejected confirms programming over programmed bytes is reported as
// a contract violation and leaves the device untouched
func TestRewriteRejected(t *testing.T, dev *flashsim.Device) {
	t.Run("rewrite-rejected", func(t *testing.T) {
		addr := dev.Geometry().SectorStart(dev.Geometry().SectorCount() - 1)
		if err := dev.EraseSector(addr); err != nil {
			t.Fatalf("Failed to erase last sector: %s", err)
		}
		if err := dev.Write(addr+8, []byte{0xA5, 0x5A}); err != nil {
			t.Fatalf("First write to erased sector failed: %s", err)
		}

		err := dev.Write(addr, bytes.Repeat([]byte{0x00}, 16))
		switch {
		case err == nil:
			t.Fatal("Write over programmed bytes was accepted")
		case !flashsim.IsContractViolation(err):
			t.Fatalf("Expected a contract violation but got: %s", err)
		case !errors.Is(err, flashsim.ErrNotErased):
			t.Fatalf("Expected violation to wrap ErrNotErased but got: %s", err)
		}

		buf := make([]byte, 16)
		if err := dev.Read(addr, buf); err != nil {
			t.Fatalf("Failed to read back sector: %s", err)
		}
		expected := bytes.Repeat([]byte{util.ErasedByte}, 16)
		expected[8], expected[9] = 0xA5, 0x5A
		if !bytes.Equal(buf, expected) {
			t.Fatalf("Rejected write modified the device: found %x, expected %x", buf, expected)
		}

		if err := dev.EraseSector(addr); err != nil {
			t.Fatalf("Failed to erase last sector: %s", err)
		}
		if err := dev.Write(addr, bytes.Repeat([]byte{0x00}, 16)); err != nil {
			t.Fatalf("Write after erase failed: %s", err)
		}
	})
}

//TestEraseSectors erases every sector (twice, erase must be idempotent) and
// confirms the whole device reads erased afterwards
func TestEraseSectors(t *testing.T, dev *flashsim.Device) {
	t.Run("erase-sectors", func(t *testing.T) {
		geom := dev.Geometry()
		for pass := 0; pass < 2; pass++ {
			for i := 0; i < geom.SectorCount(); i++ {
				if err := dev.EraseSector(geom.SectorStart(i)); err != nil {
					t.Fatalf("Pass %d: failed to erase sector %d: %s", pass, i, err)
				}
			}
		}

		if geom.SectorLength(0) > 1 {
			if err := dev.EraseSector(geom.SectorStart(0) + 1); !errors.Is(err, flashsim.ErrSectorNotFound) {
				t.Fatalf("Expected mid-sector erase to report ErrSectorNotFound, got: %v", err)
			}
		}
		TestReadErased(t, dev)
	})
}

//TestClose confirms the device closes without error
func TestClose(t *testing.T, dev *flashsim.Device) {
	t.Run("close", func(t *testing.T) {
		if err := dev.Close(); err != nil {
			t.Fatalf("Failed to close device: %s", err)
		}
		if dev.Opened() {
			t.Fatal("Device still reports an open store after close")
		}
		if err := dev.Close(); err != nil {
			t.Fatalf("Second close of device failed: %s", err)
		}
	})
}

func unbufCount(count int64) int64 {
	const maxUnbuf = 64 * 1024
	unbufCount := count / 3
	if unbufCount > maxUnbuf {
		unbufCount = maxUnbuf
	}
	return unbufCount
}
