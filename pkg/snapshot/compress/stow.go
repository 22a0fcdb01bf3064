package compress

import (
	"bytes"
	"fmt"
	"io"
	"strconv"

	"github.com/tarndt/flashsim/pkg/util/strms"

	"github.com/graymeta/stow"
)

//Metadata keys recording how an object was compressed
const (
	MetaAlgoKey = "x-fsim-cmp-alg"
	MetaSizeKey = "x-fsim-cmp-size"
)

type compressedContainer struct {
	stow.Container
	Mode
}

var _ stow.Container = compressedContainer{}

//NewCompressedContainer wraps the provided container so objects are compressed
// on Put and transparently decompressed on Open. Objects written without
// compression remain readable. The container must support item metadata.
func NewCompressedContainer(container stow.Container, mode Mode) stow.Container {
	return compressedContainer{
		Container: container,
		Mode:      mode,
	}
}

func (cont compressedContainer) Item(id string) (stow.Item, error) {
	item, err := cont.Container.Item(id)
	if item != nil {
		item = compressedItem{item}
	}
	return item, err
}

func (cont compressedContainer) Items(prefix, cursor string, count int) ([]stow.Item, string, error) {
	items, cursor, err := cont.Container.Items(prefix, cursor, count)
	for i := range items {
		items[i] = compressedItem{items[i]}
	}
	return items, cursor, err
}

//Put compresses the object fully in memory, snapshot objects are single
// sectors so the compressed length is known before the upload starts
func (cont compressedContainer) Put(name string, rdr io.Reader, size int64, metadata map[string]interface{}) (stow.Item, error) {
	if cont.Mode == ModeIdentity {
		return cont.Container.Put(name, rdr, size, metadata)
	}

	var compressed bytes.Buffer
	wtr, err := cont.NewWriter(&compressed)
	if err != nil {
		return nil, err
	}
	if _, err = io.Copy(wtr, rdr); err != nil {
		wtr.Close()
		return nil, fmt.Errorf("Copy failed during %s compression of %q: %w", cont.Mode, name, err)
	}
	if err = wtr.Close(); err != nil {
		return nil, fmt.Errorf("Close failed during %s compression of %q: %w", cont.Mode, name, err)
	}

	mdWithCmp := make(map[string]interface{}, len(metadata)+2)
	for key, val := range metadata {
		mdWithCmp[key] = val
	}
	mdWithCmp[MetaAlgoKey] = cont.AlgoName()
	mdWithCmp[MetaSizeKey] = strconv.FormatInt(size, 36)

	item, err := cont.Container.Put(name, &compressed, int64(compressed.Len()), mdWithCmp)
	if item != nil {
		item = compressedItem{item}
	}
	return item, err
}

type compressedItem struct {
	stow.Item
}

var _ stow.Item = compressedItem{}

func (item compressedItem) mode() (Mode, map[string]interface{}, error) {
	md, err := item.Metadata()
	if err != nil {
		return ModeUnknown, nil, fmt.Errorf("Reading item metadata to check for compression failed: %w", err)
	}

	algoVal, isCompressed := md[MetaAlgoKey]
	if !isCompressed {
		return ModeIdentity, md, nil
	}
	algoStr, isString := algoVal.(string)
	if !isString {
		return ModeUnknown, nil, fmt.Errorf("Item metadata indicated compression but value (%#v) was a %T not a string", algoVal, algoVal)
	}
	mode := ModeFromName(algoStr)
	if mode == ModeUnknown {
		return ModeUnknown, nil, fmt.Errorf("Item metadata specified unsupported compression mode: %q", algoStr)
	}
	return mode, md, nil
}

//Size reports the uncompressed size
func (item compressedItem) Size() (int64, error) {
	mode, md, err := item.mode()
	switch {
	case err != nil:
		return 0, err
	case mode == ModeIdentity:
		return item.Item.Size()
	}

	sizeVal, hasSize := md[MetaSizeKey]
	if !hasSize {
		return 0, fmt.Errorf("Item metadata indicated %s compression but no size was recorded", mode)
	}
	sizeStr, isString := sizeVal.(string)
	if !isString {
		return 0, fmt.Errorf("Item metadata indicated %s compression but size (%#v) was a %T not a string", mode, sizeVal, sizeVal)
	}
	size, err := strconv.ParseInt(sizeStr, 36, 64)
	if err != nil {
		return 0, fmt.Errorf("Item metadata size %q was not parseable as base36 integer: %w", sizeStr, err)
	}
	return size, nil
}

//Open returns the decompressed contents
func (item compressedItem) Open() (io.ReadCloser, error) {
	mode, _, err := item.mode()
	if err != nil {
		return nil, err
	}

	itemRdr, err := item.Item.Open()
	if mode == ModeIdentity || err != nil {
		return itemRdr, err
	}
	decompRdr, err := mode.NewReader(itemRdr)
	if err != nil {
		itemRdr.Close()
		return nil, fmt.Errorf("Item decompressor could not be created: %w", err)
	}
	return strms.NewCloseList(decompRdr, decompRdr, itemRdr), nil
}
