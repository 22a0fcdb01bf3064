package conf

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
)

//Addr is a flash address accepting decimal, 0x hex, 0o octal or 0b binary
type Addr uint32

//UnmarshalText parses an address
func (a *Addr) UnmarshalText(text []byte) error {
	val, err := strconv.ParseUint(strings.ReplaceAll(string(text), "_", ""), 0, 32)
	if err != nil {
		return fmt.Errorf("Invalid address %q: %w", text, err)
	}
	*a = Addr(val)
	return nil
}

func (a Addr) String() string {
	return fmt.Sprintf("%#08x", uint32(a))
}

//Byte is a single byte value in any base strconv accepts
type Byte uint8

//UnmarshalText parses a byte value
func (b *Byte) UnmarshalText(text []byte) error {
	val, err := strconv.ParseUint(string(text), 0, 8)
	if err != nil {
		return fmt.Errorf("Invalid byte value %q: %w", text, err)
	}
	*b = Byte(val)
	return nil
}

//DecodeHex decodes data given on the command line as hex, spaces, colons and
// 0x prefixes are ignored
func DecodeHex(str string) ([]byte, error) {
	clean := strings.NewReplacer(" ", "", ":", "", "0x", "").Replace(str)
	data, err := hex.DecodeString(clean)
	if err != nil {
		return nil, fmt.Errorf("Invalid hex data %q: %w", str, err)
	}
	return data, nil
}
