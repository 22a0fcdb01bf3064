package pebblestore

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/tarndt/flashsim/pkg/stores"
	"github.com/tarndt/flashsim/pkg/util"

	"github.com/cockroachdb/pebble"
)

//DefaultPageBytes is the granularity images are stored at
const DefaultPageBytes = 4096

var (
	sizeKey    = []byte("meta/size")
	pagePrefix = []byte("page/")
)

//PebbleStore keeps a sparse flash image in PebbleDB. Each page holding any
// programmed byte is a key; a page that is absent reads as erased. Large mostly
// erased parts therefore cost almost nothing on disk.
type PebbleStore struct {
	dbPath    string
	db        *pebble.DB
	size      int64
	pageBytes int64
	page      []byte
	writeOpts *pebble.WriteOptions
	closeOnce sync.Once
}

//Open opens (or creates) the database at dbPath for an image of size bytes.
// created is true for a new database. Reopening with another size is rejected.
func Open(dbPath string, size int64, cacheBytes int64) (pstore *PebbleStore, created bool, err error) {
	cache := pebble.NewCache(cacheBytes)
	defer cache.Unref()

	db, err := pebble.Open(dbPath, &pebble.Options{Cache: cache})
	if err != nil {
		return nil, false, fmt.Errorf("Could not open database %q: %w", dbPath, err)
	}
	defer func() {
		if err != nil {
			db.Close()
		}
	}()

	rawVal, closeVal, err := db.Get(sizeKey)
	switch {
	case errors.Is(err, pebble.ErrNotFound):
		created = true
		rawVal = make([]byte, 8)
		binary.BigEndian.PutUint64(rawVal, uint64(size))
		if err = db.Set(sizeKey, rawVal, pebble.Sync); err != nil {
			return nil, false, fmt.Errorf("Could not record image size in %q: %w", dbPath, err)
		}
	case err != nil:
		return nil, false, fmt.Errorf("Could not read image size from %q: %w", dbPath, err)
	default:
		found := int64(binary.BigEndian.Uint64(rawVal))
		closeVal.Close()
		if found != size {
			err = stores.SizeMismatch(dbPath, found, size)
			return nil, false, err
		}
	}

	return &PebbleStore{
		dbPath:    dbPath,
		db:        db,
		size:      size,
		pageBytes: DefaultPageBytes,
		page:      make([]byte, DefaultPageBytes),
		writeOpts: pebble.NoSync,
	}, created, nil
}

func pageKey(idx int64) []byte {
	key := make([]byte, len(pagePrefix)+8)
	copy(key, pagePrefix)
	binary.BigEndian.PutUint64(key[len(pagePrefix):], uint64(idx))
	return key
}

//Size of this store in bytes
func (ps *PebbleStore) Size() int64 {
	return ps.size
}

//readPage copies the part of page idx starting at off into dst
func (ps *PebbleStore) readPage(idx, off int64, dst []byte) error {
	rawVal, closeVal, err := ps.db.Get(pageKey(idx))
	switch {
	case errors.Is(err, pebble.ErrNotFound):
		util.EraseFill(dst)
		return nil
	case err != nil:
		return fmt.Errorf("Database get of page %d failed: %w", idx, err)
	}
	defer closeVal.Close()

	if int64(len(rawVal)) < off+int64(len(dst)) {
		return fmt.Errorf("Page %d holds %d bytes, fewer than the %d expected", idx, len(rawVal), off+int64(len(dst)))
	}
	copy(dst, rawVal[off:])
	return nil
}

func (ps *PebbleStore) pageLen(idx int64) int64 {
	if remaining := ps.size - idx*ps.pageBytes; remaining < ps.pageBytes {
		return remaining
	}
	return ps.pageBytes
}

//ReadAt fufills io.ReaderAt
func (ps *PebbleStore) ReadAt(buf []byte, pos int64) (count int, err error) {
	if ps.db == nil {
		return 0, stores.ErrClosed
	}
	if pos < 0 || pos > ps.size {
		return 0, io.EOF
	}
	if remaining := ps.size - pos; int64(len(buf)) > remaining {
		buf, err = buf[:remaining], io.EOF
	}

	for done := 0; done < len(buf); {
		idx, off := (pos+int64(done))/ps.pageBytes, (pos+int64(done))%ps.pageBytes
		n := int(ps.pageLen(idx) - off)
		if n > len(buf)-done {
			n = len(buf) - done
		}
		if readErr := ps.readPage(idx, off, buf[done:done+n]); readErr != nil {
			return done, readErr
		}
		done += n
	}
	return len(buf), err
}

//WriteAt fufills io.WriterAt. Pages are rewritten whole, a page left fully
// erased is deleted rather than stored.
func (ps *PebbleStore) WriteAt(buf []byte, pos int64) (int, error) {
	if ps.db == nil {
		return 0, stores.ErrClosed
	}
	if pos < 0 || pos+int64(len(buf)) > ps.size {
		return 0, fmt.Errorf("Out of bounds write: %w", io.ErrUnexpectedEOF)
	}

	batch := ps.db.NewBatch()
	defer batch.Close()

	for done := 0; done < len(buf); {
		idx, off := (pos+int64(done))/ps.pageBytes, (pos+int64(done))%ps.pageBytes
		page := ps.page[:ps.pageLen(idx)]
		n := len(page) - int(off)
		if n > len(buf)-done {
			n = len(buf) - done
		}

		if n != len(page) { //partial page, merge with what is stored
			if err := ps.readPage(idx, 0, page); err != nil {
				return 0, err
			}
		}
		copy(page[off:], buf[done:done+n])

		var err error
		if util.IsErased(page) {
			err = batch.Delete(pageKey(idx), nil)
		} else {
			err = batch.Set(pageKey(idx), page, nil)
		}
		if err != nil {
			return 0, fmt.Errorf("Could not stage page %d: %w", idx, err)
		}
		done += n
	}

	if err := batch.Commit(ps.writeOpts); err != nil {
		return 0, fmt.Errorf("Database commit of %d bytes at %d failed: %w", len(buf), pos, err)
	}
	return len(buf), nil
}

//Pages returns the number of stored (not fully erased) pages
func (ps *PebbleStore) Pages() (int, error) {
	if ps.db == nil {
		return 0, stores.ErrClosed
	}

	upper := append(append([]byte(nil), pagePrefix[:len(pagePrefix)-1]...), pagePrefix[len(pagePrefix)-1]+1)
	iter := ps.db.NewIter(&pebble.IterOptions{LowerBound: pagePrefix, UpperBound: upper})
	count := 0
	for iter.First(); iter.Valid(); iter.Next() {
		count++
	}
	if err := iter.Close(); err != nil {
		return 0, fmt.Errorf("Could not iterate pages of %q: %w", ps.dbPath, err)
	}
	return count, nil
}

//Flush fufills part of flashsim.Store, commits are written to the WAL as they
// happen and the WAL is synced when the database is closed
func (ps *PebbleStore) Flush() error {
	if ps.db == nil {
		return stores.ErrClosed
	}
	return nil
}

//Close fufills io.Closer
func (ps *PebbleStore) Close() (err error) {
	ps.closeOnce.Do(func() {
		if ps.db != nil {
			err = ps.db.Close()
			ps.db = nil
		}
	})
	return err
}
