package main

import (
	"os"

	"github.com/Alia5/usbridge/internal/cmd"
	"github.com/Alia5/usbridge/internal/config"
	"github.com/Alia5/usbridge/internal/log"
	"github.com/Alia5/usbridge/internal/progress"
	"github.com/Alia5/usbridge/internal/util"
	"github.com/Alia5/usbridge/usb"
	"github.com/Alia5/usbridge/usb/libusb"

	"github.com/alecthomas/kong"
)

func main() {
	sources := config.Discover(os.Args[1:], os.Getenv)

	var cli config.CLI
	ctx := kong.Parse(&cli, append([]kong.Option{
		kong.Name("usbridge"),
		kong.Description("Serve files to a USB-attached console over a bulk-transfer tunnel"),
		kong.UsageOnError(),
	}, sources.Options()...)...)

	// Log lines go through the registry so they print above open progress bars.
	reg := cli.Serve.Progress.NewRegistry()
	logger, closeFiles, err := log.SetupLogger(cli.Log.Level, cli.Log.File,
		progress.ConsoleWriter{Registry: reg},
		progress.ConsoleWriter{Registry: reg, Fallback: os.Stderr})
	if err != nil {
		_, _ = os.Stderr.WriteString("failed to setup logger: " + err.Error() + "\n")
		os.Exit(2)
	}
	defer func() {
		for _, c := range closeFiles {
			_ = c.Close()
		}
	}()
	reg.SetLogger(logger)

	var rawLogger log.RawLogger
	if cli.Log.RawFile != "" {
		f, err := os.OpenFile(cli.Log.RawFile, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
		if err != nil {
			logger.Error("failed to open raw log file", "file", cli.Log.RawFile, "error", err)
			rawLogger = log.NewRaw(nil)
		} else {
			rawLogger = log.NewRaw(f)
			closeFiles = append(closeFiles, f)
		}
	} else if cli.Log.Level == "trace" {
		rawLogger = log.NewRaw(os.Stdout)
	} else {
		rawLogger = log.NewRaw(nil)
	}

	// libusb is only initialized for commands that touch the bus.
	var finder *libusb.Finder
	openFinder := func() *libusb.Finder {
		if finder == nil {
			finder = libusb.New(logger)
		}
		return finder
	}
	defer func() {
		if finder != nil {
			_ = finder.Close()
		}
	}()

	ctx.Bind(logger)
	ctx.Bind(reg)
	ctx.Bind(cmd.ConfigFiles{User: config.UserFile, Workdir: config.WorkdirFile})
	ctx.BindTo(rawLogger, (*log.RawLogger)(nil))
	_ = ctx.BindToProvider(func() (usb.Finder, error) { return openFinder(), nil })
	_ = ctx.BindToProvider(func() (usb.Lister, error) { return openFinder(), nil })

	err = ctx.Run()
	util.PauseIfGUI(err, os.Stderr, os.Stdin)
	ctx.FatalIfErrorf(err)
}
