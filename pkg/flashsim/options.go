package flashsim

import (
	"go.uber.org/zap"
)

//Option is a Device option
type Option interface {
	apply(*Device)
}

//OptPath backs the device with a persistent image file at the provided path.
// An existing image is reopened as-is, a missing one is created and erased.
type OptPath string

func (path OptPath) apply(dev *Device) {
	dev.path = string(path)
}

//OptOpener backs the device with a custom store (ex. mmap or pebble)
type OptOpener struct {
	Opener
}

func (opt OptOpener) apply(dev *Device) {
	dev.opener = opt.Opener
}

//OptLogger instructs a Device to log through the provided logger
type OptLogger struct {
	*zap.Logger
}

func (opt OptLogger) apply(dev *Device) {
	if opt.Logger != nil {
		dev.log = opt.Logger
	}
}

//OptPanicOnViolation makes contract violations panic instead of returning a
// *ContractError, for harnesses that want the process to stop at the first misuse
type OptPanicOnViolation bool

func (panicOn OptPanicOnViolation) apply(dev *Device) {
	dev.panicOnViolation = bool(panicOn)
}

//OptChunkSize sets the size of the scratch buffer used for chunked erase,
// verify and fill operations
type OptChunkSize int

func (size OptChunkSize) apply(dev *Device) {
	if size > 0 {
		dev.chunkSize = int(size)
	}
}
