package testing

import (
	"errors"
	"sync"

	"github.com/Alia5/usbridge/usb"
)

// BulkEndpoints is a descriptor set with one bulk IN and one bulk OUT endpoint.
var BulkEndpoints = []usb.EndpointDescriptor{
	{BEndpointAddress: 0x81, BMAttributes: usb.EndpointTypeBulk, WMaxPacketSize: 512},
	{BEndpointAddress: 0x01, BMAttributes: usb.EndpointTypeBulk, WMaxPacketSize: 512},
}

// FakeDevice implements usb.Device over FakeIn/FakeOut.
type FakeDevice struct {
	ID        usb.Identity
	Eps       []usb.EndpointDescriptor
	In        *FakeIn
	Out       *FakeOut
	ResetErr  error
	ConfigErr error

	mu         sync.Mutex
	resets     int
	configured bool
	closed     bool
}

// NewFakeDevice creates a device with BulkEndpoints.
func NewFakeDevice(id usb.Identity) *FakeDevice {
	return &FakeDevice{ID: id, Eps: BulkEndpoints, In: NewFakeIn(0), Out: NewFakeOut()}
}

func (d *FakeDevice) Identity() usb.Identity { return d.ID }

func (d *FakeDevice) Reset() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.resets++
	return d.ResetErr
}

func (d *FakeDevice) SetDefaultConfiguration() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.ConfigErr != nil {
		return d.ConfigErr
	}
	d.configured = true
	return nil
}

func (d *FakeDevice) Endpoints(iface, alt int) ([]usb.EndpointDescriptor, error) {
	if iface != 0 || alt != 0 {
		return nil, errors.New("no such interface")
	}
	return d.Eps, nil
}

func (d *FakeDevice) OpenIn(iface, alt int, ep usb.EndpointDescriptor) (usb.InEndpoint, error) {
	return d.In, nil
}

func (d *FakeDevice) OpenOut(iface, alt int, ep usb.EndpointDescriptor) (usb.OutEndpoint, error) {
	return d.Out, nil
}

func (d *FakeDevice) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	return nil
}

// Closed reports whether Close was called.
func (d *FakeDevice) Closed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed
}

// Resets returns the number of Reset calls.
func (d *FakeDevice) Resets() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.resets
}

// FakeFinder hands out queued devices per identity.
type FakeFinder struct {
	mu      sync.Mutex
	devices map[usb.Identity][]usb.Device
	probes  []usb.Identity
	Err     error
}

// NewFakeFinder creates an empty finder.
func NewFakeFinder() *FakeFinder {
	return &FakeFinder{devices: map[usb.Identity][]usb.Device{}}
}

// Attach queues dev to be returned by the next Find for its identity.
func (f *FakeFinder) Attach(dev usb.Device) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := dev.Identity()
	f.devices[id] = append(f.devices[id], dev)
}

func (f *FakeFinder) Find(id usb.Identity) (usb.Device, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.probes = append(f.probes, id)
	if f.Err != nil {
		return nil, f.Err
	}
	q := f.devices[id]
	if len(q) == 0 {
		return nil, nil
	}
	f.devices[id] = q[1:]
	return q[0], nil
}

// Probes returns the identities probed so far, in order.
func (f *FakeFinder) Probes() []usb.Identity {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]usb.Identity(nil), f.probes...)
}
