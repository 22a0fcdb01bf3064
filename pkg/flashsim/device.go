package flashsim

import (
	"fmt"
	"io"

	"github.com/tarndt/flashsim/pkg/util"

	"go.uber.org/zap"
)

//DefaultChunkSize bounds the scratch buffers used by erase, verify and fill
const DefaultChunkSize = 256

//Device is a simulated NOR flash part. It owns its geometry and backing store;
// the store is brought online lazily on first access and is erased when newly
// created. A Device is a single-actor test double: it has no internal locking
// and callers sharing one across goroutines must serialize access themselves.
type Device struct {
	geom   *Geometry
	path   string
	opener Opener
	store  Store

	log              *zap.Logger
	panicOnViolation bool
	chunkSize        int

	scratch []byte //reused for read-before-write checks
	erased  []byte //chunk of erased bytes used to erase ranges
}

//New is the constructor for simulated flash devices. A nil geometry selects
// NativeGeometry. Without OptPath or OptOpener the device is backed by an
// anonymous temporary file.
func New(geom *Geometry, options ...Option) *Device {
	if geom == nil {
		geom = NativeGeometry()
	}

	dev := &Device{
		geom:      geom,
		log:       zap.NewNop(),
		chunkSize: DefaultChunkSize,
	}
	for _, opt := range options {
		opt.apply(dev)
	}

	dev.scratch = make([]byte, dev.chunkSize)
	dev.erased = make([]byte, dev.chunkSize)
	util.EraseFill(dev.erased)
	return dev
}

//Geometry returns the sector layout of this device
func (dev *Device) Geometry() *Geometry {
	return dev.geom
}

//Size of this device in bytes
func (dev *Device) Size() int64 {
	return int64(dev.geom.size)
}

//Opened reports if the backing store has been brought online
func (dev *Device) Opened() bool {
	return dev.store != nil
}

//Init brings a persistent (path or opener configured) store online eagerly.
// Ephemeral devices are opened lazily on first access.
func (dev *Device) Init() error {
	if dev.path == "" && dev.opener == nil {
		return nil
	}
	return dev.ensureOpen()
}

func (dev *Device) ensureOpen() error {
	if dev.store != nil {
		return nil
	}

	opener := dev.opener
	switch {
	case opener != nil:
	case dev.path != "":
		opener = pathOpener(dev.path)
	default:
		opener = tempOpener{}
	}

	store, created, err := opener.Open(dev.Size())
	if err != nil {
		return dev.violation("open", 0, fmt.Errorf("%w: %w", ErrStoreUnavailable, err))
	}
	if store.Size() != dev.Size() {
		store.Close()
		return dev.violation("open", 0, fmt.Errorf("%w: store holds %d bytes but the device is %d bytes", ErrStoreUnavailable, store.Size(), dev.Size()))
	}

	dev.store = store
	dev.log.Debug("Backing store online",
		zap.Stringer("geometry", dev.geom), zap.String("path", dev.path), zap.Bool("created", created))

	if created {
		if err = dev.eraseRange(0, dev.geom.size); err != nil {
			dev.store = nil
			store.Close()
			return dev.violation("format", 0, fmt.Errorf("%w: %w", ErrStoreUnavailable, err))
		}
		dev.log.Debug("Formatted new backing store", zap.Uint32("bytes", dev.geom.size))
	}
	return nil
}

//Read copies len(dst) bytes starting at addr into dst
func (dev *Device) Read(addr uint32, dst []byte) error {
	if !dev.geom.Contains(addr, len(dst)) {
		return dev.outOfRange("read", addr, len(dst))
	}
	if err := dev.ensureOpen(); err != nil {
		return err
	}
	return dev.readStore(addr, dst)
}

//ReadAt fufills io.ReaderAt so a device can be streamed, hashed or uploaded
func (dev *Device) ReadAt(buf []byte, pos int64) (int, error) {
	if pos < 0 {
		return 0, dev.outOfRange("read", 0, len(buf))
	} else if pos >= dev.Size() {
		return 0, io.EOF
	}

	var err error
	if remaining := dev.Size() - pos; int64(len(buf)) > remaining {
		buf, err = buf[:remaining], io.EOF
	}
	if readErr := dev.Read(uint32(pos), buf); readErr != nil {
		return 0, readErr
	}
	return len(buf), err
}

//Write programs src at addr. Every target byte must be erased; programming over
// bytes that were not erased first is a contract violation and nothing is written.
func (dev *Device) Write(addr uint32, src []byte) error {
	return dev.write("write", addr, src, false)
}

//WriteAt fufills io.WriterAt using the same rules as Write
func (dev *Device) WriteAt(buf []byte, pos int64) (int, error) {
	if pos < 0 || pos > int64(dev.geom.size) {
		return 0, dev.outOfRange("write", 0, len(buf))
	}
	if err := dev.Write(uint32(pos), buf); err != nil {
		return 0, err
	}
	return len(buf), nil
}

//Overwrite writes src at addr without the erased check. It exists to seed
// fixture content in test harnesses and must not be handed to code under test.
func (dev *Device) Overwrite(addr uint32, src []byte) error {
	return dev.write("overwrite", addr, src, true)
}

//Fill overwrites length bytes starting at addr with val, see Overwrite
func (dev *Device) Fill(addr uint32, val byte, length uint32) error {
	if length == 0 {
		return nil
	}
	if !dev.geom.Contains(addr, int(length)) {
		return dev.outOfRange("fill", addr, int(length))
	}

	buf := make([]byte, dev.chunkSize)
	util.Fill(buf, val)

	for length > 0 {
		chunk := uint32(len(buf))
		if length < chunk {
			chunk = length
		}
		if err := dev.Overwrite(addr, buf[:chunk]); err != nil {
			return err
		}
		addr += chunk
		length -= chunk
	}
	return nil
}

func (dev *Device) write(op string, addr uint32, src []byte, allowOverwrite bool) error {
	if len(src) == 0 {
		return nil
	}
	if !dev.geom.Contains(addr, len(src)) {
		return dev.outOfRange(op, addr, len(src))
	}
	if err := dev.ensureOpen(); err != nil {
		return err
	}

	if !allowOverwrite {
		if err := dev.verifyErased(addr, uint32(len(src))); err != nil {
			return err
		}
	}

	if _, err := dev.store.WriteAt(src, int64(addr)); err != nil {
		return fmt.Errorf("Could not %s %d bytes at %#08x: %w", op, len(src), addr, err)
	}
	return dev.flush()
}

func (dev *Device) verifyErased(addr, length uint32) error {
	if resident, isResident := dev.store.(Resident); isResident {
		region := resident.Bytes()[addr : addr+length]
		if idx := util.FirstNonErased(region); idx >= 0 {
			return dev.notErased(addr+uint32(idx), region[idx])
		}
		return nil
	}

	for cur, end := addr, addr+length; cur < end; {
		chunk := dev.scratch
		if remaining := end - cur; remaining < uint32(len(chunk)) {
			chunk = chunk[:remaining]
		}
		if err := dev.readStore(cur, chunk); err != nil {
			return err
		}
		if idx := util.FirstNonErased(chunk); idx >= 0 {
			return dev.notErased(cur+uint32(idx), chunk[idx])
		}
		cur += uint32(len(chunk))
	}
	return nil
}

func (dev *Device) readStore(addr uint32, dst []byte) error {
	n, err := dev.store.ReadAt(dst, int64(addr))
	if n == len(dst) && (err == nil || err == io.EOF) {
		return nil
	}
	if err == nil {
		err = io.ErrUnexpectedEOF
	}
	return fmt.Errorf("Could not read %d bytes at %#08x (got %d): %w", len(dst), addr, n, err)
}

func (dev *Device) flush() error {
	if err := dev.store.Flush(); err != nil {
		return fmt.Errorf("Could not flush backing store: %w", err)
	}
	return nil
}

//Flush commits any buffered backing store state
func (dev *Device) Flush() error {
	if dev.store == nil {
		return nil
	}
	return dev.flush()
}

//Close flushes and releases the backing store, the device returns to its
// unopened state and will reopen its store on next use. An ephemeral store's
// contents are lost.
func (dev *Device) Close() error {
	if dev.store == nil {
		return nil
	}

	store := dev.store
	dev.store = nil
	flushErr := store.Flush()
	if err := store.Close(); err != nil {
		return fmt.Errorf("Could not close backing store: %w", err)
	}
	if flushErr != nil {
		return fmt.Errorf("Could not flush backing store during close: %w", flushErr)
	}
	return nil
}

func (dev *Device) notErased(addr uint32, found byte) error {
	return dev.violation("write", addr, fmt.Errorf("%w: byte at %#08x holds %#02x", ErrNotErased, addr, found))
}

func (dev *Device) violation(op string, addr uint32, err error) error {
	cerr := &ContractError{Op: op, Addr: addr, Err: err}
	dev.log.Warn("Flash contract violation", zap.String("op", op), zap.Uint32("addr", addr), zap.Error(err))
	if dev.panicOnViolation {
		panic(cerr)
	}
	return cerr
}

func (dev *Device) outOfRange(op string, addr uint32, length int) error {
	return fmt.Errorf("Could not %s %d bytes at %#08x on a %d byte device: %w", op, length, addr, dev.geom.size, ErrOutOfRange)
}
