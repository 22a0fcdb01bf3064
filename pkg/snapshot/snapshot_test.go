package snapshot

import (
	"bytes"
	"errors"
	"io"
	"net/http/httptest"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/tarndt/flashsim/pkg/flashsim"
	"github.com/tarndt/flashsim/pkg/snapshot/compress"
	"github.com/tarndt/flashsim/pkg/stores/memstore"
	"github.com/tarndt/flashsim/pkg/stores/testutil"

	"github.com/graymeta/stow"
	"github.com/graymeta/stow/local"
	"github.com/graymeta/stow/s3"
	"github.com/johannesboyne/gofakes3"
	"github.com/johannesboyne/gofakes3/backend/s3mem"
)

func s3Server() *httptest.Server {
	return httptest.NewServer(gofakes3.New(s3mem.New()).Server())
}

func s3Store(t *testing.T, srv *httptest.Server) stow.Location {
	loc, err := Dial(KindS3, stow.ConfigMap{
		s3.ConfigEndpoint:    srv.URL,
		s3.ConfigAccessKeyID: "fake",
		s3.ConfigSecretKey:   "fake",
	})
	if err != nil {
		t.Fatalf("Could not create S3 object store: %s", err)
	}
	return loc
}

func localStore(t *testing.T) stow.Location {
	loc, err := Dial(KindLocal, stow.ConfigMap{local.ConfigKeyPath: t.TempDir()})
	if err != nil {
		t.Fatalf("Could not create local object store: %s", err)
	}
	return loc
}

func createContainer(t *testing.T, loc stow.Location) stow.Container {
	container, err := OpenContainer(loc, strconv.FormatInt(time.Now().UnixNano(), 36))
	if err != nil {
		t.Fatalf("Could not create container: %s", err)
	}
	return container
}

func createDevice(t *testing.T) *flashsim.Device {
	opener := flashsim.OpenerFunc(func(size int64) (flashsim.Store, bool, error) {
		return memstore.Open(size)
	})
	dev := flashsim.New(testutil.SmallGeometry(), flashsim.OptOpener{Opener: opener})
	if err := dev.Init(); err != nil {
		t.Fatalf("Device init failed: %s", err)
	}
	t.Cleanup(func() { dev.Close() })
	return dev
}

func TestSnapshot(t *testing.T) {
	t.Run("local", func(t *testing.T) {
		testRoundTrip(t, localStore(t))
	})

	t.Run("s3", func(t *testing.T) {
		srv := s3Server()
		defer srv.Close()
		loc := s3Store(t, srv)

		t.Run("compress-none", func(t *testing.T) {
			testRoundTrip(t, loc)
		})
		t.Run("compress-s2", func(t *testing.T) {
			testRoundTrip(t, loc, OptCompress(compress.ModeS2))
		})
		t.Run("compress-gz", func(t *testing.T) {
			testRoundTrip(t, loc, OptCompress(compress.ModeGzip), OptConcurrency(1))
		})
	})
}

func testRoundTrip(t *testing.T, loc stow.Location, options ...Option) {
	container := createContainer(t, loc)
	src := createDevice(t)
	geom := src.Geometry()

	if err := src.Write(geom.SectorStart(1)+10, []byte("sector one")); err != nil {
		t.Fatalf("Write failed: %s", err)
	}
	if err := src.Fill(geom.SectorStart(5), 0x42, geom.SectorLength(5)); err != nil {
		t.Fatalf("Fill failed: %s", err)
	}
	if err := src.Write(geom.Size()-1, []byte{0x00}); !flashsim.IsContractViolation(err) {
		t.Fatalf("Expected write over filled sector to be rejected, got: %v", err)
	}
	if err := src.Write(geom.SectorStart(3), []byte{0xFF, 0xFF}); err != nil {
		t.Fatalf("Write of erased values failed: %s", err)
	}

	snap := New(container, "unit", options...)
	ctx := testutil.CreateContext(t)

	stats, err := snap.Push(ctx, src)
	if err != nil {
		t.Fatalf("Push failed: %s", err)
	}
	if stats.Sectors != 2 || stats.Skipped != geom.SectorCount()-2 || stats.Removed != 0 {
		t.Fatalf("Unexpected push stats: %s", stats)
	}
	if expected := uint64(geom.SectorLength(1) + geom.SectorLength(5)); stats.Bytes != expected {
		t.Fatalf("Pushed %d bytes, expected %d", stats.Bytes, expected)
	}

	objects, err := snap.Objects(geom)
	if err != nil {
		t.Fatalf("Could not list snapshot objects: %s", err)
	}
	if _, has1 := objects[1]; !has1 || len(objects) != 2 {
		t.Fatalf("Expected objects for sectors 1 and 5, found %d objects", len(objects))
	}
	if name := objects[5].Name(); name != "fsim-unit-sec_5" {
		t.Fatalf("Unexpected object name %q", name)
	}

	srcHash := testutil.HashDevice(t, src)

	t.Run("pull", func(t *testing.T) {
		dst := createDevice(t)
		if err := dst.Fill(0, 0x00, geom.Size()); err != nil {
			t.Fatalf("Fill of destination failed: %s", err)
		}

		stats, err := snap.Pull(ctx, dst)
		if err != nil {
			t.Fatalf("Pull failed: %s", err)
		}
		if stats.Sectors != 2 {
			t.Fatalf("Unexpected pull stats: %s", stats)
		}
		testutil.TestReadHash(t, dst, srcHash)
	})

	t.Run("stale-removed", func(t *testing.T) {
		if err := src.EraseSector(geom.SectorStart(5)); err != nil {
			t.Fatalf("Erase failed: %s", err)
		}
		stats, err := snap.Push(ctx, src)
		if err != nil {
			t.Fatalf("Second push failed: %s", err)
		}
		if stats.Sectors != 1 || stats.Removed != 1 {
			t.Fatalf("Unexpected push stats: %s", stats)
		}

		dst := createDevice(t)
		if _, err = snap.Pull(ctx, dst); err != nil {
			t.Fatalf("Pull failed: %s", err)
		}
		testutil.TestReadHash(t, dst, testutil.HashDevice(t, src))
	})
}

func TestPullBadObject(t *testing.T) {
	container := createContainer(t, localStore(t))
	snap := New(container, "bad")

	if _, err := container.Put(snap.ObjectName(0), bytes.NewReader([]byte{1, 2, 3}), 3, nil); err != nil {
		t.Fatalf("Could not store object: %s", err)
	}
	dev := createDevice(t)
	if err := dev.Write(0x4000, []byte("precious")); err != nil {
		t.Fatalf("Write failed: %s", err)
	}
	if _, err := snap.Pull(testutil.CreateContext(t), dev); !errors.Is(err, ErrBadObject) {
		t.Fatalf("Expected ErrBadObject for a short sector, got: %v", err)
	}
	found := make([]byte, len("precious"))
	if err := dev.Read(0x4000, found); err != nil {
		t.Fatalf("Read failed: %s", err)
	}
	if string(found) != "precious" {
		t.Fatalf("Failed pull modified the device, found %q", found)
	}

	if _, err := container.Put(snap.ObjectName(99), bytes.NewReader([]byte{1}), 1, nil); err != nil {
		t.Fatalf("Could not store object: %s", err)
	}
	if _, err := snap.Objects(dev.Geometry()); !errors.Is(err, ErrBadObject) {
		t.Fatalf("Expected ErrBadObject for a sector past the device, got: %v", err)
	}
}

func TestSharedImagePrefix(t *testing.T) {
	container := createContainer(t, localStore(t))
	ctx := testutil.CreateContext(t)

	other, dev := createDevice(t), createDevice(t)
	geom := dev.Geometry()
	if err := other.Fill(0, 0x11, geom.Size()); err != nil {
		t.Fatalf("Fill failed: %s", err)
	}
	if err := dev.Write(geom.SectorStart(2), []byte("mine")); err != nil {
		t.Fatalf("Write failed: %s", err)
	}

	if _, err := New(container, "a-sec_1").Push(ctx, other); err != nil {
		t.Fatalf("Push of image a-sec_1 failed: %s", err)
	}
	snap := New(container, "a")
	if _, err := snap.Push(ctx, dev); err != nil {
		t.Fatalf("Push of image a failed: %s", err)
	}

	objects, err := snap.Objects(geom)
	if err != nil {
		t.Fatalf("Could not list objects of image a: %s", err)
	}
	if _, has2 := objects[2]; !has2 || len(objects) != 1 {
		t.Fatalf("Image a should only hold sector 2, found %d objects", len(objects))
	}

	dst := createDevice(t)
	if _, err = snap.Pull(ctx, dst); err != nil {
		t.Fatalf("Pull of image a failed: %s", err)
	}
	testutil.TestReadHash(t, dst, testutil.HashDevice(t, dev))
}

//failingContainer rejects every upload
type failingContainer struct {
	stow.Container
	puts int32
}

func (cont *failingContainer) Put(name string, rdr io.Reader, size int64, metadata map[string]interface{}) (stow.Item, error) {
	atomic.AddInt32(&cont.puts, 1)
	return nil, errors.New("upload refused")
}

func TestPushStopsOnFailure(t *testing.T) {
	container := &failingContainer{Container: createContainer(t, localStore(t))}
	dev := createDevice(t)
	if err := dev.Fill(0, 0x00, dev.Geometry().Size()); err != nil {
		t.Fatalf("Fill failed: %s", err)
	}

	stats, err := New(container, "fails", OptConcurrency(1)).Push(testutil.CreateContext(t), dev)
	if err == nil {
		t.Fatal("Push to a failing container succeeded")
	}
	if puts := atomic.LoadInt32(&container.puts); puts != 1 {
		t.Fatalf("Push attempted %d uploads after the first failure, expected to stop after 1", puts)
	}
	if stats.Sectors != 0 {
		t.Fatalf("Unexpected push stats: %s", stats)
	}
}

func TestCompressMode(t *testing.T) {
	for _, name := range []string{"", compress.ModeS2Name, "gzip", "gz", "identity"} {
		var mode compress.Mode
		if err := mode.UnmarshalText([]byte(name)); err != nil {
			t.Fatalf("Mode %q rejected: %s", name, err)
		}
	}

	var mode compress.Mode
	if err := mode.UnmarshalText([]byte("zip")); err == nil {
		t.Fatal("Unknown mode was accepted")
	}

	if !SupportsMetaData(KindS3) || SupportsMetaData(KindLocal) {
		t.Fatal("Unexpected metadata support")
	}
}
