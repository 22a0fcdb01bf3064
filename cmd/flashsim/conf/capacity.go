package conf

import (
	"fmt"

	"github.com/alecthomas/kong"
	"github.com/dustin/go-humanize"
)

//Capacity is a count/size in bytes, its primary purpose is to allow human IEC
// values like "64 KiB" on the command line
type Capacity int64

//String returns capacity in human readable IEC units
func (c Capacity) String() string {
	return humanize.IBytes(uint64(c))
}

//Set parses a human readable size
func (c *Capacity) Set(str string) error {
	val, err := humanize.ParseBytes(str)
	if err != nil {
		return fmt.Errorf("Parsing %q failed: %w", str, err)
	}

	*c = Capacity(val)
	return nil
}

//Decode fulfills kong.MapperValue
func (c *Capacity) Decode(ctx *kong.DecodeContext) error {
	var str string
	if err := ctx.Scan.PopValueInto("capacity", &str); err != nil {
		return err
	}
	return c.Set(str)
}

//Bytes as a uint32, flash devices are addressed with 32 bits
func (c Capacity) Bytes() (uint32, error) {
	if c < 0 || c > 1<<32-1 {
		return 0, fmt.Errorf("Capacity %s does not fit a 32 bit address space", c)
	}
	return uint32(c), nil
}
