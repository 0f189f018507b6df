// Package libusb implements usb.Finder on top of libusb via google/gousb.
package libusb

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/google/gousb"

	"github.com/Alia5/usbridge/usb"
)

// Finder opens devices through a shared libusb context.
type Finder struct {
	ctx    *gousb.Context
	logger *slog.Logger
}

// New creates a libusb context. Close it when done.
func New(logger *slog.Logger) *Finder {
	return &Finder{ctx: gousb.NewContext(), logger: logger}
}

// Close releases the libusb context.
func (f *Finder) Close() error {
	return f.ctx.Close()
}

// Find opens the first attached device matching id. It returns nil, nil when
// no such device is attached.
func (f *Finder) Find(id usb.Identity) (usb.Device, error) {
	dev, err := f.ctx.OpenDeviceWithVIDPID(gousb.ID(id.Vendor), gousb.ID(id.Product))
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", id, err)
	}
	if dev == nil {
		return nil, nil
	}
	if err := dev.SetAutoDetach(true); err != nil {
		f.logger.Debug("Kernel driver auto-detach unavailable", "device", id.String(), "error", err)
	}
	return &device{dev: dev, id: id}, nil
}

// List returns every attached device whose identity is in ids, without
// opening any of them.
func (f *Finder) List(ids []usb.Identity) ([]usb.DeviceInfo, error) {
	var out []usb.DeviceInfo
	_, err := f.ctx.OpenDevices(func(desc *gousb.DeviceDesc) bool {
		for _, id := range ids {
			if uint16(desc.Vendor) == id.Vendor && uint16(desc.Product) == id.Product {
				out = append(out, usb.DeviceInfo{
					Identity: id,
					Bus:      desc.Bus,
					Address:  desc.Address,
					Port:     desc.Port,
					Speed:    desc.Speed.String(),
				})
			}
		}
		return false
	})
	return out, err
}

type device struct {
	dev  *gousb.Device
	id   usb.Identity
	cfg  *gousb.Config
	intf *gousb.Interface

	intfNum, altNum int
}

func (d *device) Identity() usb.Identity { return d.id }

func (d *device) Reset() error {
	return d.dev.Reset()
}

func (d *device) SetDefaultConfiguration() error {
	if d.cfg != nil {
		return nil
	}
	nums := make([]int, 0, len(d.dev.Desc.Configs))
	for n := range d.dev.Desc.Configs {
		nums = append(nums, n)
	}
	if len(nums) == 0 {
		return errors.New("device reports no configurations")
	}
	sort.Ints(nums)
	cfg, err := d.dev.Config(nums[0])
	if err != nil {
		return fmt.Errorf("set configuration %d: %w", nums[0], err)
	}
	d.cfg = cfg
	return nil
}

func (d *device) Endpoints(iface, alt int) ([]usb.EndpointDescriptor, error) {
	if d.cfg == nil {
		return nil, errors.New("no active configuration")
	}
	setting, err := findSetting(d.cfg.Desc, iface, alt)
	if err != nil {
		return nil, err
	}
	out := make([]usb.EndpointDescriptor, 0, len(setting.Endpoints))
	for _, ep := range setting.Endpoints {
		out = append(out, usb.EndpointDescriptor{
			BEndpointAddress: uint8(ep.Address),
			BMAttributes:     uint8(ep.TransferType),
			WMaxPacketSize:   uint16(ep.MaxPacketSize),
		})
	}
	// Map iteration order is random; keep selection deterministic.
	sort.Slice(out, func(i, j int) bool { return out[i].BEndpointAddress < out[j].BEndpointAddress })
	return out, nil
}

func (d *device) claim(iface, alt int) (*gousb.Interface, error) {
	if d.intf != nil {
		if d.intfNum == iface && d.altNum == alt {
			return d.intf, nil
		}
		return nil, fmt.Errorf("interface %d/%d already claimed", d.intfNum, d.altNum)
	}
	if d.cfg == nil {
		return nil, errors.New("no active configuration")
	}
	intf, err := d.cfg.Interface(iface, alt)
	if err != nil {
		return nil, fmt.Errorf("claim interface %d/%d: %w", iface, alt, err)
	}
	d.intf, d.intfNum, d.altNum = intf, iface, alt
	return intf, nil
}

func (d *device) OpenIn(iface, alt int, ep usb.EndpointDescriptor) (usb.InEndpoint, error) {
	intf, err := d.claim(iface, alt)
	if err != nil {
		return nil, err
	}
	in, err := intf.InEndpoint(ep.Number())
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", ep, err)
	}
	return in, nil
}

func (d *device) OpenOut(iface, alt int, ep usb.EndpointDescriptor) (usb.OutEndpoint, error) {
	intf, err := d.claim(iface, alt)
	if err != nil {
		return nil, err
	}
	out, err := intf.OutEndpoint(ep.Number())
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", ep, err)
	}
	return out, nil
}

func (d *device) Close() error {
	if d.intf != nil {
		d.intf.Close()
		d.intf = nil
	}
	var errs []error
	if d.cfg != nil {
		errs = append(errs, d.cfg.Close())
		d.cfg = nil
	}
	errs = append(errs, d.dev.Close())
	return errors.Join(errs...)
}

func findSetting(cfg gousb.ConfigDesc, iface, alt int) (gousb.InterfaceSetting, error) {
	for _, i := range cfg.Interfaces {
		if i.Number != iface {
			continue
		}
		for _, s := range i.AltSettings {
			if s.Alternate == alt {
				return s, nil
			}
		}
	}
	return gousb.InterfaceSetting{}, fmt.Errorf("interface %d/%d not found in config %d", iface, alt, cfg.Number)
}

var (
	_ usb.Finder      = (*Finder)(nil)
	_ usb.Lister      = (*Finder)(nil)
	_ usb.InEndpoint  = (*gousb.InEndpoint)(nil)
	_ usb.OutEndpoint = (*gousb.OutEndpoint)(nil)
)
