package conf

import (
	"bytes"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/tarndt/flashsim/pkg/flashsim"
	"github.com/tarndt/flashsim/pkg/snapshot"
	"github.com/tarndt/flashsim/pkg/snapshot/compress"

	"github.com/dustin/go-humanize"
	"github.com/graymeta/stow"
	"go.uber.org/zap"
)

//Config holds the flags shared by every command
type Config struct {
	Image            string    `short:"i" default:"flash.img" type:"path" help:"Path of the flash image (file or database directory)."`
	Store            StoreKind `short:"s" default:"file" help:"Backing store kind: file, mmap, pebble or mem."`
	Size             Capacity  `help:"Device size, the native 1 MiB mixed sector geometry is used when unset."`
	Sector           Capacity  `default:"64KiB" help:"Sector size of a device created with --size."`
	PebbleCache      Capacity  `default:"8MiB" help:"Block cache size of the pebble store."`
	PanicOnViolation bool      `help:"Abort on the first flash contract violation."`
	Verbose          bool      `short:"v" help:"Log debug output."`
}

//String generates human-readable prose describing a configuration
func (cfg *Config) String() string {
	geomDesc := "native geometry"
	if geom, err := cfg.Geometry(); err == nil {
		geomDesc = geom.String()
	}

	location := fmt.Sprintf(" at %q", cfg.Image)
	if !cfg.Store.Persistent() {
		location = ""
	}
	return fmt.Sprintf("Simulating %s flash backed by %s%s.", geomDesc, cfg.Store, location)
}

//Geometry builds the device geometry: the native part unless --size is set, in
// which case sectors are uniform
func (cfg *Config) Geometry() (*flashsim.Geometry, error) {
	if cfg.Size == 0 {
		return flashsim.NativeGeometry(), nil
	}

	size, err := cfg.Size.Bytes()
	if err != nil {
		return nil, err
	}
	sector, err := cfg.Sector.Bytes()
	if err != nil {
		return nil, err
	}
	return flashsim.UniformGeometry(size, sector)
}

//NewLogger builds a development logger when verbose and a production one otherwise
func (cfg *Config) NewLogger() (*zap.Logger, error) {
	if cfg.Verbose {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

//NewDevice constructs the configured (not yet opened) device
func (cfg *Config) NewDevice(log *zap.Logger) (*flashsim.Device, error) {
	geom, err := cfg.Geometry()
	if err != nil {
		return nil, fmt.Errorf("Invalid geometry: %w", err)
	}
	opener, err := cfg.Store.Opener(filepath.Clean(cfg.Image), cfg.PebbleCache)
	if err != nil {
		return nil, err
	}

	return flashsim.New(geom,
		flashsim.OptOpener{Opener: opener},
		flashsim.OptLogger{Logger: log},
		flashsim.OptPanicOnViolation(cfg.PanicOnViolation),
	), nil
}

//ObjStoreConfig is the object storage configuration of snapshot commands
type ObjStoreConfig struct {
	Kind        string        `name:"objstore-kind" default:"local" help:"Object store kind (local, s3, google, azure, b2, oracle, sftp, swift)."`
	Config      string        `name:"objstore-cfg" default:"{}" help:"Object store configuration as a JSON object of strings (ex. {\"path\":\"/tmp/snaps\"})."`
	Container   string        `default:"flashsim" help:"Container (bucket) holding snapshots."`
	Name        string        `help:"Snapshot name, defaults to the image file name."`
	Compress    compress.Mode `default:"identity" help:"Compression of stored sectors: identity, s2 or gzip."`
	Concurrency uint          `default:"4" help:"Simultaneous uploads or downloads."`
}

//String generates human-readable prose describing a ObjStoreConfig
func (c *ObjStoreConfig) String() string {
	cfgMap, _ := c.ConfigMap()
	return fmt.Sprintf("using a %s remote object store (%s), container %q, %s compression and %d workers",
		c.Kind, stowCfgStr(cfgMap), c.Container, c.Compress, c.Concurrency)
}

//ConfigMap decodes the JSON object store configuration
func (c *ObjStoreConfig) ConfigMap() (stow.ConfigMap, error) {
	cfgMap := stow.ConfigMap{}
	if err := json.Unmarshal([]byte(c.Config), &cfgMap); err != nil {
		return nil, fmt.Errorf("Object store configuration is not a JSON object of strings: %w", err)
	}
	return cfgMap, nil
}

//Snapshot connects to the configured object store and returns the snapshot
// of the provided image
func (c *ObjStoreConfig) Snapshot(image string, log *zap.Logger) (*snapshot.Snapshot, error) {
	if c.Compress != compress.ModeIdentity && !snapshot.SupportsMetaData(c.Kind) {
		return nil, fmt.Errorf("Object store kind %q does not support metadata which %s compression requires", c.Kind, c.Compress)
	}

	cfgMap, err := c.ConfigMap()
	if err != nil {
		return nil, err
	}
	loc, err := snapshot.Dial(c.Kind, cfgMap)
	if err != nil {
		return nil, err
	}
	container, err := snapshot.OpenContainer(loc, c.Container)
	if err != nil {
		return nil, err
	}

	name := c.Name
	if name == "" {
		name = strings.TrimSuffix(filepath.Base(image), filepath.Ext(image))
	}
	return snapshot.New(container, name,
		snapshot.OptCompress(c.Compress),
		snapshot.OptConcurrency(c.Concurrency),
		snapshot.OptLogger{Logger: log},
	), nil
}

//DescribeBytes is a human readable byte count
func DescribeBytes(count uint64) string {
	return humanize.IBytes(count)
}

func stowCfgStr(cm stow.ConfigMap) string {
	var str bytes.Buffer
	for k, v := range cm {
		str.WriteString(k)
		str.WriteByte('=')

		if mayBeSecret(k) {
			str.WriteString("<REDACTED>")
		} else {
			str.WriteByte('"')
			str.WriteString(v)
			str.WriteByte('"')
		}
		str.WriteString(", ")
	}
	if str.Len() > 2 {
		str.Truncate(str.Len() - 2)
	}
	return str.String()
}

func mayBeSecret(s string) bool {
	s = strings.ToLower(s)
	for _, candidate := range []string{"secret", "cred", "pass", "token", "key"} {
		if strings.Contains(s, candidate) {
			return true
		}
	}
	return false
}
