package conf

import (
	"fmt"
	"strings"

	"github.com/tarndt/flashsim/pkg/flashsim"
	"github.com/tarndt/flashsim/pkg/stores/filestore"
	"github.com/tarndt/flashsim/pkg/stores/memstore"
	"github.com/tarndt/flashsim/pkg/stores/mmapstore"
	"github.com/tarndt/flashsim/pkg/stores/pebblestore"
)

//These are enums that map to each of the available store implementations
const (
	StoreUnknown StoreKind = iota
	StoreFile
	StoreMmap
	StorePebble
	StoreMem
)

//StoreKind represents the available backing store implementations
type StoreKind uint8

//NewStoreKind constructs a StoreKind from a human textual short name
func NewStoreKind(desc string) StoreKind {
	switch strings.ToLower(desc) {
	case "file", "disk":
		return StoreFile
	case "mmap", "mapped":
		return StoreMmap
	case "pebble", "sparse":
		return StorePebble
	case "mem", "memory":
		return StoreMem
	default:
		return StoreUnknown
	}
}

//UnmarshalText allows a StoreKind to be used directly as a flag value
func (sk *StoreKind) UnmarshalText(text []byte) error {
	if *sk = NewStoreKind(string(text)); *sk == StoreUnknown {
		return fmt.Errorf("Unknown store kind %q (supported: file, mmap, pebble, mem)", text)
	}
	return nil
}

//String is a human readable description of the store for display
func (sk StoreKind) String() string {
	switch sk {
	case StoreFile:
		return "image file"
	case StoreMmap:
		return "memory-mapped image file"
	case StorePebble:
		return "sparse pebble database"
	case StoreMem:
		return "ephemeral memory"
	default:
		return "unknown"
	}
}

//Persistent reports if the store outlives the process
func (sk StoreKind) Persistent() bool {
	return sk != StoreMem
}

//Opener returns the flashsim.Opener for this kind of store at path
func (sk StoreKind) Opener(path string, pebbleCache Capacity) (flashsim.Opener, error) {
	switch sk {
	case StoreFile:
		return flashsim.OpenerFunc(func(size int64) (flashsim.Store, bool, error) {
			return filestore.Open(path, size)
		}), nil
	case StoreMmap:
		return flashsim.OpenerFunc(func(size int64) (flashsim.Store, bool, error) {
			return mmapstore.Open(path, size)
		}), nil
	case StorePebble:
		return flashsim.OpenerFunc(func(size int64) (flashsim.Store, bool, error) {
			return pebblestore.Open(path, size, int64(pebbleCache))
		}), nil
	case StoreMem:
		return flashsim.OpenerFunc(func(size int64) (flashsim.Store, bool, error) {
			return memstore.Open(size)
		}), nil
	}
	return nil, fmt.Errorf("Bug: Could not create store: unknown store kind enum: %d", sk)
}
