// Package usb abstracts the host side of the USB link: finding a device by
// vendor/product identity, configuring it and opening its bulk endpoints.
package usb

import (
	"context"
	"fmt"
)

// Identity is a vendor/product ID pair a device is discovered by.
type Identity struct {
	Vendor  uint16
	Product uint16
	Name    string
}

func (i Identity) String() string {
	return fmt.Sprintf("%04x:%04x", i.Vendor, i.Product)
}

// DefaultIdentities are probed in order: custom firmware first, then stock.
var DefaultIdentities = []Identity{
	{Vendor: 0x16C0, Product: 0x27E2, Name: "custom firmware"},
	{Vendor: 0x057E, Product: 0x3000, Name: "stock firmware"},
}

// Finder locates attached devices.
type Finder interface {
	// Find returns the first attached device matching id, or nil when none is
	// attached.
	Find(id Identity) (Device, error)
}

// DeviceInfo describes an attached device without opening it.
type DeviceInfo struct {
	Identity Identity
	Bus      int
	Address  int
	Port     int
	Speed    string
}

// Lister enumerates attached devices matching any of ids.
type Lister interface {
	List(ids []Identity) ([]DeviceInfo, error)
}

// Device is an opened USB device.
type Device interface {
	Identity() Identity
	// Reset issues a port reset.
	Reset() error
	// SetDefaultConfiguration applies the device's first configuration and
	// makes it the active one.
	SetDefaultConfiguration() error
	// Endpoints lists the endpoint descriptors of the active configuration's
	// interface/alternate setting.
	Endpoints(iface, alt int) ([]EndpointDescriptor, error)
	// OpenIn opens an IN endpoint on the given interface/alternate setting.
	OpenIn(iface, alt int, ep EndpointDescriptor) (InEndpoint, error)
	// OpenOut opens an OUT endpoint on the given interface/alternate setting.
	OpenOut(iface, alt int, ep EndpointDescriptor) (OutEndpoint, error)
	// Close releases the interface, configuration and device handle.
	Close() error
}

// InEndpoint reads device-to-host bulk transfers. A read may return fewer
// bytes than len(p).
type InEndpoint interface {
	ReadContext(ctx context.Context, p []byte) (int, error)
}

// OutEndpoint writes host-to-device bulk transfers.
type OutEndpoint interface {
	WriteContext(ctx context.Context, p []byte) (int, error)
}
