package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"

	"github.com/tarndt/flashsim/cmd/flashsim/conf"
	"github.com/tarndt/flashsim/pkg/flashsim"

	"github.com/alecthomas/kong"
	"go.uber.org/zap"
)

const appName = "flashsim"

type cli struct {
	Config conf.Config `embed:""`

	Info   infoCmd   `cmd:"" help:"Describe the geometry and which sectors hold data."`
	Erase  eraseCmd  `cmd:"" help:"Erase the sector starting at an address."`
	Format formatCmd `cmd:"" help:"Erase the whole device."`
	Read   readCmd   `cmd:"" help:"Hex dump a range of the device."`
	Write  writeCmd  `cmd:"" help:"Program hex data at an address, the range must be erased."`
	Fill   fillCmd   `cmd:"" help:"Overwrite a range with one byte value, bypassing erase checks."`
	Push   pushCmd   `cmd:"" help:"Upload a snapshot of the device to object storage."`
	Pull   pullCmd   `cmd:"" help:"Restore the device from a snapshot in object storage."`
}

//env is bound into every command's Run method
type env struct {
	ctx context.Context
	cfg *conf.Config
	log *zap.Logger
	dev *flashsim.Device
	out io.Writer
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		log.Fatalf(appName+" failed: %s", err)
	}
}

func run(ctx context.Context, args []string, out io.Writer) (err error) {
	var app cli
	parser, err := kong.New(&app,
		kong.Name(appName),
		kong.Description("Simulated NOR flash device tool."),
		kong.UsageOnError(),
		kong.Writers(out, out),
	)
	if err != nil {
		return fmt.Errorf("Bug: Could not build command line parser: %w", err)
	}
	kctx, err := parser.Parse(args)
	if err != nil {
		return err
	}

	logger, err := app.Config.NewLogger()
	if err != nil {
		return fmt.Errorf("Could not create logger: %w", err)
	}
	defer logger.Sync()
	logger.Debug("Configured", zap.Stringer("config", &app.Config))

	dev, err := app.Config.NewDevice(logger)
	if err != nil {
		return err
	}
	if err = dev.Init(); err != nil {
		return fmt.Errorf("Could not bring device online: %w", err)
	}
	defer func() {
		if closeErr := dev.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()

	return kctx.Run(&env{ctx: ctx, cfg: &app.Config, log: logger, dev: dev, out: out})
}
