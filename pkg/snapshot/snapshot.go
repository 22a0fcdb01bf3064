//Package snapshot copies flash images to and from object storage. Each
// programmed sector becomes one object, erased sectors are not stored.
package snapshot

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	"github.com/tarndt/flashsim/pkg/flashsim"
	"github.com/tarndt/flashsim/pkg/snapshot/compress"
	"github.com/tarndt/flashsim/pkg/util/consterr"

	"github.com/graymeta/stow"
	"github.com/tarndt/sema"
	"go.uber.org/zap"
)

const (
	objectPrefix  = "fsim-"
	sectorPrefix  = "-sec_"
	listPageCount = 100

	//DefaultConcurrency is the default number of simultaneous transfers
	DefaultConcurrency = 4

	//ErrBadObject is returned when a stored sector can not be restored
	ErrBadObject = consterr.ConstErr("Snapshot object is not a valid sector")
)

//Target is a device a snapshot can be restored to
type Target interface {
	flashsim.HAL
	EraseAll() error
}

//Stats summarize a push or pull
type Stats struct {
	Sectors int    //sectors transferred
	Skipped int    //erased sectors not transferred
	Removed int    //stale objects of sectors that are now erased
	Bytes   uint64 //uncompressed bytes transferred
}

func (s Stats) String() string {
	return fmt.Sprintf("%d sectors (%d bytes) transferred, %d erased sectors skipped, %d stale objects removed", s.Sectors, s.Bytes, s.Skipped, s.Removed)
}

//Snapshot names a flash image stored in an object store container
type Snapshot struct {
	container   stow.Container
	image       string
	log         *zap.Logger
	concurrency uint
}

//New constructs a Snapshot for the image with the provided name
func New(container stow.Container, image string, options ...Option) *Snapshot {
	snap := &Snapshot{
		container:   container,
		image:       image,
		log:         zap.NewNop(),
		concurrency: DefaultConcurrency,
	}
	for _, opt := range options {
		opt.apply(snap)
	}
	if snap.concurrency < 1 {
		snap.concurrency = 1
	}
	return snap
}

func (snap *Snapshot) prefix() string {
	return objectPrefix + snap.image + sectorPrefix
}

//ObjectName returns the name of the object holding the provided sector
func (snap *Snapshot) ObjectName(sector int) string {
	return snap.prefix() + strconv.Itoa(sector)
}

//Objects maps sector index to the stored object of every sector in the snapshot.
// Items under the prefix whose suffix is not a decimal index belong to other
// images (ex. image "a-sec_1" shares the prefix of image "a") and are ignored.
func (snap *Snapshot) Objects(geom *flashsim.Geometry) (map[int]stow.Item, error) {
	prefix, count := snap.prefix(), geom.SectorCount()
	objects := make(map[int]stow.Item, count)

	for cursor := stow.CursorStart; ; {
		items, next, err := snap.container.Items(prefix, cursor, listPageCount)
		if err != nil {
			return nil, fmt.Errorf("Could not enumerate items in %s: %w", describeContainer(snap.container), err)
		}

		for _, item := range items {
			idx, ok := sectorIndex(strings.TrimPrefix(item.Name(), prefix))
			switch {
			case !ok:
				continue
			case idx >= count:
				return nil, fmt.Errorf("%w: %s names sector %d but the device has %d sectors", ErrBadObject, describeItem(item), idx, count)
			}
			objects[idx] = item
		}

		if stow.IsCursorEnd(next) {
			return objects, nil
		}
		cursor = next
	}
}

//sectorIndex parses an object name suffix made only of decimal digits
func sectorIndex(suffix string) (int, bool) {
	if suffix == "" || len(suffix) > 9 {
		return 0, false
	}
	for _, r := range suffix {
		if r < '0' || r > '9' {
			return 0, false
		}
	}
	idx, err := strconv.Atoi(suffix)
	return idx, err == nil
}

//Push uploads every programmed sector of dev and removes objects of sectors
// that are now erased. The device is only accessed from the calling goroutine.
func (snap *Snapshot) Push(ctx context.Context, dev flashsim.HAL) (stats Stats, err error) {
	geom := dev.Geometry()
	usage, err := flashsim.Scan(dev)
	if err != nil {
		return stats, fmt.Errorf("Could not scan device: %w", err)
	}
	existing, err := snap.Objects(geom)
	if err != nil {
		return stats, err
	}

	errCh := make(chan error, 1)
	reportErr := func(err error) {
		select {
		case errCh <- err:
		default:
		}
	}
	var (
		pending  sync.WaitGroup
		uploadMu sync.Mutex
	)
	uploadSema := sema.NewChanSemaCount(snap.concurrency)

	for idx := 0; idx < geom.SectorCount(); idx++ {
		if err = ctx.Err(); err != nil {
			break
		}

		if usage.Erased.Test(uint(idx)) {
			stats.Skipped++
			if item, exists := existing[idx]; exists {
				if err = snap.container.RemoveItem(item.ID()); err != nil {
					err = fmt.Errorf("Could not remove stale %s: %w", describeItem(item), err)
					break
				}
				stats.Removed++
			}
			continue
		}

		buf := make([]byte, geom.SectorLength(idx))
		if err = dev.Read(geom.SectorStart(idx), buf); err != nil {
			err = fmt.Errorf("Could not read sector %d: %w", idx, err)
			break
		}

		uploadSema.P()
		if len(errCh) > 0 { //an upload failed, stop early
			uploadSema.V()
			break
		}
		pending.Add(1)
		go func(idx int, buf []byte) {
			defer func() {
				uploadSema.V()
				pending.Done()
			}()

			name := snap.ObjectName(idx)
			if _, err := snap.container.Put(name, bytes.NewReader(buf), int64(len(buf)), nil); err != nil {
				reportErr(fmt.Errorf("Could not upload sector %d as %q to %s: %w", idx, name, describeContainer(snap.container), err))
				return
			}
			snap.log.Debug("Uploaded sector", zap.Int("sector", idx), zap.String("object", name), zap.Int("bytes", len(buf)))

			uploadMu.Lock()
			stats.Sectors++
			stats.Bytes += uint64(len(buf))
			uploadMu.Unlock()
		}(idx, buf)
	}
	pending.Wait()
	close(errCh)

	if err != nil {
		return stats, err
	}
	if err = <-errCh; err != nil {
		return stats, fmt.Errorf("One or more sectors failed to upload: %w", err)
	}

	snap.log.Info("Pushed snapshot", zap.String("image", snap.image), zap.Stringer("stats", stats))
	return stats, nil
}

type download struct {
	idx  int
	data []byte
	err  error
}

//Pull downloads and validates every sector stored in the snapshot, then erases
// dev and programs the sectors through the normal write path. A failed download
// leaves dev untouched. Downloads run concurrently, the device is only accessed
// from the calling goroutine.
func (snap *Snapshot) Pull(ctx context.Context, dev Target) (stats Stats, err error) {
	geom := dev.Geometry()
	objects, err := snap.Objects(geom)
	if err != nil {
		return stats, err
	}

	sectors, err := snap.fetchAll(ctx, geom, objects)
	if err != nil {
		return stats, err
	}

	if err = dev.EraseAll(); err != nil {
		return stats, fmt.Errorf("Could not erase device before restore: %w", err)
	}
	for idx := 0; idx < geom.SectorCount(); idx++ {
		data, exists := sectors[idx]
		if !exists {
			stats.Skipped++
			continue
		}
		if err = dev.Write(geom.SectorStart(idx), data); err != nil {
			return stats, fmt.Errorf("Could not restore sector %d: %w", idx, err)
		}
		snap.log.Debug("Restored sector", zap.Int("sector", idx), zap.Int("bytes", len(data)))
		stats.Sectors++
		stats.Bytes += uint64(len(data))
	}

	snap.log.Info("Pulled snapshot", zap.String("image", snap.image), zap.Stringer("stats", stats))
	return stats, nil
}

//fetchAll downloads every object concurrently, stopping at the first failure
func (snap *Snapshot) fetchAll(ctx context.Context, geom *flashsim.Geometry, objects map[int]stow.Item) (map[int][]byte, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	results := make(chan download, len(objects))
	go func() {
		downloadSema := sema.NewChanSemaCount(snap.concurrency)
		for idx, item := range objects {
			downloadSema.P()
			go func(idx int, item stow.Item) {
				defer downloadSema.V()
				if err := ctx.Err(); err != nil {
					results <- download{idx: idx, err: err}
					return
				}
				data, err := snap.fetch(item, geom.SectorLength(idx))
				results <- download{idx: idx, data: data, err: err}
			}(idx, item)
		}
	}()

	var err error
	sectors := make(map[int][]byte, len(objects))
	for range objects {
		res := <-results
		switch {
		case err != nil:
		case res.err != nil:
			err = res.err
			cancel()
		default:
			sectors[res.idx] = res.data
		}
	}
	if err != nil {
		return nil, err
	}
	return sectors, nil
}

func (snap *Snapshot) fetch(item stow.Item, sectorLen uint32) ([]byte, error) {
	if size, err := item.Size(); err != nil {
		return nil, fmt.Errorf("Could not size %s: %w", describeItem(item), err)
	} else if size != int64(sectorLen) {
		return nil, fmt.Errorf("%w: %s holds %d bytes but the sector is %d bytes", ErrBadObject, describeItem(item), size, sectorLen)
	}

	rdr, err := item.Open()
	if err != nil {
		return nil, fmt.Errorf("Could not open %s: %w", describeItem(item), err)
	}
	defer rdr.Close()

	data := make([]byte, sectorLen)
	if _, err = io.ReadFull(rdr, data); err != nil {
		return nil, fmt.Errorf("Could not download %s: %w", describeItem(item), err)
	}
	if n, _ := rdr.Read(make([]byte, 1)); n > 0 {
		return nil, fmt.Errorf("%w: %s holds more than the %d byte sector", ErrBadObject, describeItem(item), sectorLen)
	}
	return data, nil
}

//Option is a Snapshot option
type Option interface {
	apply(*Snapshot)
}

//OptConcurrency bounds the number of simultaneous uploads or downloads
type OptConcurrency uint

func (concur OptConcurrency) apply(snap *Snapshot) {
	snap.concurrency = uint(concur)
}

//OptCompress stores sector objects compressed with the provided mode. The
// container must support item metadata, see SupportsMetaData.
type OptCompress compress.Mode

func (mode OptCompress) apply(snap *Snapshot) {
	if compress.Mode(mode) != compress.ModeIdentity {
		snap.container = compress.NewCompressedContainer(snap.container, compress.Mode(mode))
	}
}

//OptLogger instructs a Snapshot to log through the provided logger
type OptLogger struct {
	*zap.Logger
}

func (opt OptLogger) apply(snap *Snapshot) {
	if opt.Logger != nil {
		snap.log = opt.Logger
	}
}
