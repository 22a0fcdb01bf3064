package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"testing"

	"github.com/tarndt/flashsim/pkg/flashsim"
)

func runCmd(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	err := run(context.Background(), args, &out)
	return out.String(), err
}

func mustRun(t *testing.T, args ...string) string {
	t.Helper()
	out, err := runCmd(t, args...)
	if err != nil {
		t.Fatalf("%q failed: %s\n%s", strings.Join(args, " "), err, out)
	}
	return out
}

func TestCommands(t *testing.T) {
	for _, store := range []string{"file", "mmap", "pebble"} {
		t.Run(store, func(t *testing.T) {
			image := filepath.Join(t.TempDir(), "flash.img")
			global := []string{"--image", image, "--store", store}
			cmd := func(args ...string) []string {
				return append(append([]string(nil), global...), args...)
			}

			if out := mustRun(t, cmd("info")...); !strings.Contains(out, "0 of 12 sectors programmed") {
				t.Fatalf("Unexpected info for a new image:\n%s", out)
			}

			mustRun(t, cmd("write", "0x10000", "abcd")...)
			if out := mustRun(t, cmd("read", "0x10000", "2")...); !strings.Contains(out, "00010000  ab cd") {
				t.Fatalf("Unexpected dump:\n%s", out)
			}

			if _, err := runCmd(t, cmd("write", "0x10000", "00")...); !flashsim.IsContractViolation(err) {
				t.Fatalf("Expected rewrite to be a contract violation, got: %v", err)
			}
			if _, err := runCmd(t, cmd("erase", "0x10001")...); !errors.Is(err, flashsim.ErrSectorNotFound) {
				t.Fatalf("Expected mid-sector erase to fail with ErrSectorNotFound, got: %v", err)
			}
			if out := mustRun(t, cmd("info")...); !strings.Contains(out, "1 of 12 sectors programmed (64 KiB of 1.0 MiB)") {
				t.Fatalf("Unexpected info after write:\n%s", out)
			}

			mustRun(t, cmd("erase", "0x10000")...)
			if out := mustRun(t, cmd("read", "0x10000", "2")...); !strings.Contains(out, "00010000  ff ff") {
				t.Fatalf("Sector not erased:\n%s", out)
			}

			mustRun(t, cmd("fill", "0", "0x00", "16KiB")...)
			mustRun(t, cmd("fill", "0xe0000", "0x5a", "128KiB")...)
			if out := mustRun(t, cmd("info")...); !strings.Contains(out, "2 of 12 sectors programmed") {
				t.Fatalf("Unexpected info after fill:\n%s", out)
			}
			mustRun(t, cmd("format")...)
			if out := mustRun(t, cmd("info")...); !strings.Contains(out, "0 of 12 sectors programmed") {
				t.Fatalf("Unexpected info after format:\n%s", out)
			}
		})
	}
}

func TestCommandErrors(t *testing.T) {
	image := filepath.Join(t.TempDir(), "flash.img")

	if _, err := runCmd(t, "--image", image, "read", "0xfffff", "2"); !errors.Is(err, flashsim.ErrOutOfRange) {
		t.Fatalf("Expected ErrOutOfRange, got: %v", err)
	}
	if _, err := runCmd(t, "--image", image, "write", "0", "xyz"); err == nil {
		t.Fatal("Invalid hex was accepted")
	}
	if _, err := runCmd(t, "--image", image, "--store", "tape", "info"); err == nil {
		t.Fatal("Unknown store kind was accepted")
	}
	if _, err := runCmd(t, "--image", image, "--size", "100KiB", "--sector", "64KiB", "info"); !errors.Is(err, flashsim.ErrBadGeometry) {
		t.Fatalf("Expected ErrBadGeometry for an uneven geometry, got: %v", err)
	}
	if _, err := runCmd(t, "--image", image, "--size", "256KiB", "info"); !errors.Is(err, flashsim.ErrStoreUnavailable) {
		t.Fatalf("Expected a resized image to be rejected, got: %v", err)
	}
}

func TestCustomGeometry(t *testing.T) {
	image := filepath.Join(t.TempDir(), "flash.img")
	args := []string{"--image", image, "--size", "256KiB", "--sector", "4KiB"}

	out := mustRun(t, append(args, "info")...)
	if !strings.Contains(out, "256 KiB in 64 sectors") {
		t.Fatalf("Unexpected info for a custom geometry:\n%s", out)
	}
	mustRun(t, append(args, "write", "0x3f000", "01 02 03")...)
	mustRun(t, append(args, "erase", "0x3f000")...)
}

func TestSnapshotCommands(t *testing.T) {
	dir := t.TempDir()
	image := filepath.Join(dir, "flash.img")
	objCfg := fmt.Sprintf(`{"path":%q}`, t.TempDir())
	snapArgs := []string{"--objstore-kind", "local", "--objstore-cfg", objCfg, "--container", "snaps"}

	mustRun(t, "--image", image, "write", "0x4000", "0badf00d")
	mustRun(t, "--image", image, "fill", "0x20000", "0x11", "128KiB")

	if out := mustRun(t, append([]string{"--image", image, "push"}, snapArgs...)...); !strings.Contains(out, "2 sectors") {
		t.Fatalf("Unexpected push output:\n%s", out)
	}

	mustRun(t, "--image", image, "format")
	mustRun(t, "--image", image, "write", "0x0", "ee")
	if out := mustRun(t, append([]string{"--image", image, "pull"}, snapArgs...)...); !strings.Contains(out, "2 sectors") {
		t.Fatalf("Unexpected pull output:\n%s", out)
	}

	if out := mustRun(t, "--image", image, "read", "0x0", "1"); !strings.Contains(out, "00000000  ff") {
		t.Fatalf("Pull did not erase the device first:\n%s", out)
	}
	if out := mustRun(t, "--image", image, "read", "0x4000", "4"); !strings.Contains(out, "00004000  0b ad f0 0d") {
		t.Fatalf("Restored data mismatch:\n%s", out)
	}
	if out := mustRun(t, "--image", image, "read", "0x3fff0", "2"); !strings.Contains(out, "0003fff0  11 11") {
		t.Fatalf("Restored fill mismatch:\n%s", out)
	}

	if _, err := runCmd(t, append([]string{"--image", image, "push", "--compress", "s2"}, snapArgs...)...); err == nil {
		t.Fatal("Compression was accepted for an object store without metadata")
	}
}
