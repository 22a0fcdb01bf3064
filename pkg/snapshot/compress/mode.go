package compress

import (
	"compress/gzip"
	"fmt"
	"io"

	"github.com/klauspost/compress/s2"
)

//Mode is a compression algorithm applied to snapshot objects
type Mode uint8

//Available modes and their textual names
const (
	ModeIdentity Mode = iota
	ModeUnknown
	ModeS2
	ModeGzip

	ModeIdentityName = "identity"
	ModeS2Name       = "s2"
	ModeGzipName     = "gzip"
	ModeUnknownName  = "unknown"
)

//ModeFromName constructs a Mode from a textual name
func ModeFromName(name string) Mode {
	switch name {
	case "", "none", ModeIdentityName:
		return ModeIdentity
	case ModeS2Name:
		return ModeS2
	case ModeGzipName, "gz":
		return ModeGzip
	}
	return ModeUnknown
}

//AlgoName returns the textual name of a Mode
func (m Mode) AlgoName() string {
	switch m {
	case ModeIdentity:
		return ModeIdentityName
	case ModeS2:
		return ModeS2Name
	case ModeGzip:
		return ModeGzipName
	}
	return ModeUnknownName
}

//String is a synonym for AlgoName
func (m Mode) String() string {
	return m.AlgoName()
}

//UnmarshalText allows a Mode to be used directly as a flag value
func (m *Mode) UnmarshalText(text []byte) error {
	if *m = ModeFromName(string(text)); *m == ModeUnknown {
		return fmt.Errorf("Unsupported compression mode %q (supported: %s, %s, %s)", text, ModeIdentityName, ModeS2Name, ModeGzipName)
	}
	return nil
}

//NewReader wraps rdr with this mode's decompression
func (m Mode) NewReader(rdr io.Reader) (io.ReadCloser, error) {
	switch m {
	case ModeIdentity:
		return io.NopCloser(rdr), nil
	case ModeGzip:
		return gzip.NewReader(rdr)
	case ModeS2:
		return io.NopCloser(s2.NewReader(rdr)), nil
	}
	return nil, fmt.Errorf("Cannot create decompressor for %s compression mode", m)
}

//NewWriter wraps wtr with this mode's compression, the returned writer must be
// closed to flush the compressed stream
func (m Mode) NewWriter(wtr io.Writer) (io.WriteCloser, error) {
	switch m {
	case ModeIdentity:
		return nopWriteCloser{wtr}, nil
	case ModeGzip:
		return gzip.NewWriter(wtr), nil
	case ModeS2:
		return s2.NewWriter(wtr), nil
	}
	return nil, fmt.Errorf("Cannot create compressor for %s compression mode", m)
}

type nopWriteCloser struct {
	io.Writer
}

func (nopWriteCloser) Close() error { return nil }
