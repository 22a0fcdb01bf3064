package main

import (
	"fmt"

	"github.com/tarndt/flashsim/cmd/flashsim/conf"
	"github.com/tarndt/flashsim/pkg/flashsim"

	"github.com/fatih/color"
)

const dumpWidth = 16

var (
	erasedColor     = color.New(color.FgGreen)
	programmedColor = color.New(color.FgYellow, color.Bold)
	headerColor     = color.New(color.FgCyan)
)

type infoCmd struct{}

func (cmd *infoCmd) Run(e *env) error {
	usage, err := flashsim.Scan(e.dev)
	if err != nil {
		return err
	}

	geom := usage.Geometry
	headerColor.Fprintln(e.out, e.cfg.String())
	fmt.Fprintf(e.out, "%d of %d sectors programmed (%s of %s)\n",
		len(usage.Programmed()), geom.SectorCount(),
		conf.DescribeBytes(usage.ProgrammedBytes()), conf.DescribeBytes(uint64(geom.Size())))

	headerColor.Fprintf(e.out, "%-6s %-10s %-10s %-12s %s\n", "sector", "start", "length", "state", "crc16")
	for i := 0; i < geom.SectorCount(); i++ {
		state, stateColor := "programmed", programmedColor
		if usage.Erased.Test(uint(i)) {
			state, stateColor = "erased", erasedColor
		}
		fmt.Fprintf(e.out, "%-6d %#08x %-10s ", i, geom.SectorStart(i), conf.DescribeBytes(uint64(geom.SectorLength(i))))
		stateColor.Fprintf(e.out, "%-12s", state)
		fmt.Fprintf(e.out, " %#04x\n", usage.CRC[i])
	}
	return nil
}

type eraseCmd struct {
	Addr conf.Addr `arg:"" help:"Sector start address."`
}

func (cmd *eraseCmd) Run(e *env) error {
	idx, err := e.dev.Geometry().FindSector(uint32(cmd.Addr))
	if err != nil {
		return err
	}
	if err = e.dev.EraseSector(uint32(cmd.Addr)); err != nil {
		return err
	}
	fmt.Fprintf(e.out, "Erased sector %d (%s at %s)\n", idx, conf.DescribeBytes(uint64(e.dev.Geometry().SectorLength(idx))), cmd.Addr)
	return nil
}

type formatCmd struct{}

func (cmd *formatCmd) Run(e *env) error {
	if err := e.dev.EraseAll(); err != nil {
		return err
	}
	fmt.Fprintf(e.out, "Erased %s\n", e.dev.Geometry())
	return nil
}

type readCmd struct {
	Addr   conf.Addr     `arg:"" help:"Start address."`
	Length conf.Capacity `arg:"" help:"Number of bytes to dump (ex. 256 or 4KiB)."`
}

func (cmd *readCmd) Run(e *env) error {
	length, err := cmd.Length.Bytes()
	if err != nil {
		return err
	}
	buf := make([]byte, length)
	if err = e.dev.Read(uint32(cmd.Addr), buf); err != nil {
		return err
	}

	for off := 0; off < len(buf); off += dumpWidth {
		end := off + dumpWidth
		if end > len(buf) {
			end = len(buf)
		}
		fmt.Fprintf(e.out, "%08x  % x\n", uint32(cmd.Addr)+uint32(off), buf[off:end])
	}
	return nil
}

type writeCmd struct {
	Addr conf.Addr `arg:"" help:"Start address."`
	Data string    `arg:"" help:"Hex data to program (ex. abcd or \"ab:cd\")."`
}

func (cmd *writeCmd) Run(e *env) error {
	data, err := conf.DecodeHex(cmd.Data)
	if err != nil {
		return err
	}
	if err = e.dev.Write(uint32(cmd.Addr), data); err != nil {
		return err
	}
	fmt.Fprintf(e.out, "Programmed %d bytes at %s\n", len(data), cmd.Addr)
	return nil
}

type fillCmd struct {
	Addr   conf.Addr     `arg:"" help:"Start address."`
	Value  conf.Byte     `arg:"" help:"Byte value (ex. 0x00)."`
	Length conf.Capacity `arg:"" help:"Number of bytes to fill (ex. 16KiB)."`
}

func (cmd *fillCmd) Run(e *env) error {
	length, err := cmd.Length.Bytes()
	if err != nil {
		return err
	}
	if err = e.dev.Fill(uint32(cmd.Addr), byte(cmd.Value), length); err != nil {
		return err
	}
	fmt.Fprintf(e.out, "Filled %s at %s with %#02x\n", conf.DescribeBytes(uint64(length)), cmd.Addr, uint8(cmd.Value))
	return nil
}

type pushCmd struct {
	ObjStore conf.ObjStoreConfig `embed:""`
}

func (cmd *pushCmd) Run(e *env) error {
	snap, err := cmd.ObjStore.Snapshot(e.cfg.Image, e.log)
	if err != nil {
		return err
	}
	stats, err := snap.Push(e.ctx, e.dev)
	if err != nil {
		return err
	}
	fmt.Fprintf(e.out, "Pushed %s %s: %s\n", e.cfg.Image, cmd.ObjStore.String(), stats)
	return nil
}

type pullCmd struct {
	ObjStore conf.ObjStoreConfig `embed:""`
}

func (cmd *pullCmd) Run(e *env) error {
	snap, err := cmd.ObjStore.Snapshot(e.cfg.Image, e.log)
	if err != nil {
		return err
	}
	stats, err := snap.Pull(e.ctx, e.dev)
	if err != nil {
		return err
	}
	fmt.Fprintf(e.out, "Pulled %s %s: %s\n", e.cfg.Image, cmd.ObjStore.String(), stats)
	return nil
}
