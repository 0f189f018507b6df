// Package link discovers the device, binds its bulk endpoints and keeps a
// serving loop running across disconnects.
package link

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/Alia5/usbridge/internal/metrics"
	"github.com/Alia5/usbridge/usb"
)

// ErrServePanic wraps a panic recovered from a ServeFunc.
var ErrServePanic = errors.New("link serving panicked")

const (
	DefaultPollInterval = time.Second
	DefaultRetryDelay   = time.Second
)

// Config controls discovery and recovery timing.
type Config struct {
	// Identities are probed in order on every poll.
	Identities   []usb.Identity
	PollInterval time.Duration
	RetryDelay   time.Duration
}

// ServeFunc services a bound link until it fails. It must return when ctx is
// cancelled.
type ServeFunc func(ctx context.Context, in usb.InEndpoint, out usb.OutEndpoint, logger *slog.Logger) error

// Manager runs the Disconnected, Connected, Servicing cycle.
type Manager struct {
	finder   usb.Finder
	serve    ServeFunc
	cfg      Config
	logger   *slog.Logger
	metrics  *metrics.Metrics
	onChange func(State)

	state atomic.Int32
}

type Option func(*Manager)

func WithMetrics(m *metrics.Metrics) Option {
	return func(mg *Manager) { mg.metrics = m }
}

// OnStateChange registers fn to be called on every transition.
func OnStateChange(fn func(State)) Option {
	return func(mg *Manager) { mg.onChange = fn }
}

func New(finder usb.Finder, serve ServeFunc, cfg Config, logger *slog.Logger, opts ...Option) *Manager {
	if len(cfg.Identities) == 0 {
		cfg.Identities = usb.DefaultIdentities
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = DefaultRetryDelay
	}
	m := &Manager{finder: finder, serve: serve, cfg: cfg, logger: logger}
	for _, o := range opts {
		o(m)
	}
	m.metrics.SetLinkState(StateInitializing.String(), StateNames)
	return m
}

// State returns the current lifecycle state.
func (m *Manager) State() State { return State(m.state.Load()) }

func (m *Manager) setState(s State) {
	if State(m.state.Swap(int32(s))) == s {
		return
	}
	m.metrics.SetLinkState(s.String(), StateNames)
	if m.onChange != nil {
		m.onChange(s)
	}
}

// Run cycles until ctx is cancelled and then returns ctx.Err(). Link errors
// are logged and followed by a fresh discovery after RetryDelay.
func (m *Manager) Run(ctx context.Context) error {
	for {
		err := m.runOnce(ctx)
		if ctx.Err() != nil {
			m.setState(StateDisconnected)
			return ctx.Err()
		}
		if err == nil {
			err = errors.New("link serving stopped")
		}
		m.logger.Error("usb link failed", "error", err, "retry", m.cfg.RetryDelay)
		m.metrics.RecordFault()
		if err := sleep(ctx, m.cfg.RetryDelay); err != nil {
			m.setState(StateDisconnected)
			return err
		}
	}
}

func (m *Manager) runOnce(ctx context.Context) error {
	m.setState(StateDisconnected)
	dev, err := m.discover(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if err := dev.Close(); err != nil {
			m.logger.Debug("closing device", "error", err)
		}
	}()

	id := dev.Identity()
	logger := m.logger.With("device", id.String())
	logger.Info("USB connected", "name", id.Name)
	m.setState(StateConnected)

	in, out, err := m.bind(dev)
	if err != nil {
		return fmt.Errorf("configure %s: %w", id, err)
	}
	m.metrics.RecordConnect()

	m.setState(StateServicing)
	return m.service(ctx, in, out, logger)
}

// service runs the ServeFunc and turns a panic into an error so the cycle
// restarts instead of the process exiting.
func (m *Manager) service(ctx context.Context, in usb.InEndpoint, out usb.OutEndpoint, logger *slog.Logger) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrServePanic, r)
		}
	}()
	return m.serve(ctx, in, out, logger)
}

func (m *Manager) discover(ctx context.Context) (usb.Device, error) {
	for {
		for _, id := range m.cfg.Identities {
			dev, err := m.finder.Find(id)
			if err != nil {
				return nil, fmt.Errorf("find %s: %w", id, err)
			}
			if dev != nil {
				return dev, nil
			}
		}
		if err := sleep(ctx, m.cfg.PollInterval); err != nil {
			return nil, err
		}
	}
}

func (m *Manager) bind(dev usb.Device) (usb.InEndpoint, usb.OutEndpoint, error) {
	if err := dev.Reset(); err != nil {
		return nil, nil, fmt.Errorf("reset: %w", err)
	}
	if err := dev.SetDefaultConfiguration(); err != nil {
		return nil, nil, fmt.Errorf("set configuration: %w", err)
	}
	eps, err := dev.Endpoints(0, 0)
	if err != nil {
		return nil, nil, fmt.Errorf("interface 0: %w", err)
	}
	inDesc, outDesc, err := usb.SelectBulkPair(eps)
	if err != nil {
		return nil, nil, err
	}
	in, err := dev.OpenIn(0, 0, inDesc)
	if err != nil {
		return nil, nil, err
	}
	out, err := dev.OpenOut(0, 0, outDesc)
	if err != nil {
		return nil, nil, err
	}
	m.logger.Debug("endpoints bound", "in", inDesc, "out", outDesc)
	return in, out, nil
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
