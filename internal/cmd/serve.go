package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/Alia5/usbridge/apitypes"
	"github.com/Alia5/usbridge/internal/catalog"
	"github.com/Alia5/usbridge/internal/dispatch"
	"github.com/Alia5/usbridge/internal/link"
	"github.com/Alia5/usbridge/internal/log"
	"github.com/Alia5/usbridge/internal/metrics"
	"github.com/Alia5/usbridge/internal/progress"
	"github.com/Alia5/usbridge/internal/router"
	"github.com/Alia5/usbridge/internal/router/handler"
	"github.com/Alia5/usbridge/internal/status"
	"github.com/Alia5/usbridge/internal/transport"
	"github.com/Alia5/usbridge/usb"
)

// Version is set at build time with -ldflags "-X .../internal/cmd.Version=...".
var Version = "dev"

type USBConfig struct {
	PollInterval time.Duration `help:"Interval between device probes while disconnected" default:"1s" env:"USBRIDGE_USB_POLL_INTERVAL"`
	RetryDelay   time.Duration `help:"Delay before rediscovery after a link error" default:"1s" env:"USBRIDGE_USB_RETRY_DELAY"`
	ReplyTimeout time.Duration `help:"Timeout for each write of a reply" default:"10m" env:"USBRIDGE_USB_REPLY_TIMEOUT"`
	MaxPayload   uint64        `help:"Largest accepted request payload in bytes; 0 for no limit" default:"0" env:"USBRIDGE_USB_MAX_PAYLOAD"`
}

type CatalogConfig struct {
	Root string   `help:"Directory served to the device" default:"." env:"USBRIDGE_CATALOG_ROOT"`
	Ext  []string `help:"File extensions to list" default:".nsp,.nsz,.xci,.xcz" env:"USBRIDGE_CATALOG_EXT"`
	// A download reply is held in memory whole before it is sent.
	MaxRange int64 `help:"Largest byte range served in one download reply; 0 for no limit" default:"536870912" env:"USBRIDGE_CATALOG_MAX_RANGE"`
}

type StatusConfig struct {
	Addr string `help:"Status HTTP listen address; empty to disable" default:"127.0.0.1:9170" env:"USBRIDGE_STATUS_ADDR"`
}

type ProgressConfig struct {
	Interval time.Duration `help:"Transfer sampling interval" default:"500ms" env:"USBRIDGE_PROGRESS_INTERVAL"`
	Bars     string        `help:"Draw progress bars" enum:"auto,always,never" default:"auto" env:"USBRIDGE_PROGRESS_BARS"`
}

// NewRegistry builds the progress registry these settings describe.
func (p ProgressConfig) NewRegistry() *progress.Registry {
	ui := progress.DefaultUI()
	switch p.Bars {
	case "always":
		ui = progress.BarUI(os.Stderr)
	case "never":
		ui = progress.NopUI
	}
	return progress.New(progress.WithInterval(p.Interval), progress.WithUI(ui), progress.WithOutput(os.Stdout))
}

type Serve struct {
	USB      USBConfig      `embed:"" prefix:"usb."`
	Catalog  CatalogConfig  `embed:"" prefix:"catalog."`
	Status   StatusConfig   `embed:"" prefix:"status."`
	Progress ProgressConfig `embed:"" prefix:"progress."`
}

// Run is called by Kong when the serve command is executed.
func (s *Serve) Run(logger *slog.Logger, rawLogger log.RawLogger, reg *progress.Registry, finder usb.Finder) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return s.StartServer(ctx, finder, logger, rawLogger, reg)
}

// StartServer bridges devices found by finder until ctx is cancelled.
func (s *Serve) StartServer(ctx context.Context, finder usb.Finder, logger *slog.Logger, rawLogger log.RawLogger, reg *progress.Registry) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	promReg := prometheus.NewRegistry()
	promReg.MustRegister(collectors.NewGoCollector())
	m := metrics.New(promReg)
	metrics.RegisterOpenTransfers(promReg, reg.OpenCount)

	cat := catalog.New(s.Catalog.Root, s.Catalog.Ext)
	var mgr *link.Manager
	linkState := func() string { return mgr.State().String() }

	rt := router.New(logger)
	handler.Register(rt, Version, cat, reg, linkState, s.Catalog.MaxRange)

	serveLink := func(ctx context.Context, in usb.InEndpoint, out usb.OutEndpoint, l *slog.Logger) error {
		sess := transport.New(in, out, l,
			transport.WithRawLogger(rawLogger),
			transport.WithMetrics(m),
			transport.WithMaxPayload(s.USB.MaxPayload),
		)
		d := dispatch.New(sess, rt, l,
			dispatch.WithMetrics(m),
			dispatch.WithReplyTimeout(s.USB.ReplyTimeout),
		)
		return d.Serve(ctx)
	}
	mgr = link.New(finder, serveLink, link.Config{
		Identities:   usb.DefaultIdentities,
		PollInterval: s.USB.PollInterval,
		RetryDelay:   s.USB.RetryDelay,
	}, logger,
		link.WithMetrics(m),
		link.OnStateChange(func(st link.State) { logger.Debug("link state changed", "state", st) }),
	)

	logger.Info("Starting usbridge", "version", Version, "root", s.Catalog.Root)

	reg.Start()
	defer reg.Shutdown()

	statusErrCh := make(chan error, 1)
	if s.Status.Addr != "" {
		report := func() apitypes.StatusResponse { return handler.StatusReport(Version, reg, linkState) }
		srv := status.NewServer(s.Status.Addr, status.NewRouter(report, promReg, logger), logger)
		go func() { statusErrCh <- srv.Start(ctx) }()
	} else {
		close(statusErrCh)
	}

	linkErrCh := make(chan error, 1)
	go func() { linkErrCh <- mgr.Run(ctx) }()

	select {
	case err, ok := <-statusErrCh:
		if ok && err != nil {
			logger.Error("status server failed", "error", err)
			cancel()
			<-linkErrCh
			return err
		}
		err = <-linkErrCh
		return ignoreCanceled(err)
	case err := <-linkErrCh:
		cancel()
		if sErr, ok := <-statusErrCh; ok && sErr != nil {
			logger.Error("status server failed", "error", sErr)
		}
		return ignoreCanceled(err)
	}
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("usb link: %w", err)
	}
	return nil
}
