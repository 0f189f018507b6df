package usb

import (
	"errors"
	"fmt"
)

// Endpoint address/attribute bits
const (
	EndpointDirIn       = 0x80
	EndpointNumberMask  = 0x0f
	EndpointTypeMask    = 0x03
	EndpointTypeControl = 0x00
	EndpointTypeIso     = 0x01
	EndpointTypeBulk    = 0x02
	EndpointTypeIntr    = 0x03
)

// ErrMissingEndpoint is returned when interface 0/alt 0 lacks a bulk IN or
// bulk OUT endpoint.
var ErrMissingEndpoint = errors.New("missing bulk endpoint")

// EndpointDescriptor is the subset of the standard endpoint descriptor used
// for endpoint selection.
type EndpointDescriptor struct {
	BEndpointAddress uint8
	BMAttributes     uint8
	WMaxPacketSize   uint16
}

// Number returns the endpoint number without the direction bit.
func (e EndpointDescriptor) Number() int { return int(e.BEndpointAddress & EndpointNumberMask) }

// IsIn reports whether the endpoint is device-to-host.
func (e EndpointDescriptor) IsIn() bool { return e.BEndpointAddress&EndpointDirIn != 0 }

// IsOut reports whether the endpoint is host-to-device.
func (e EndpointDescriptor) IsOut() bool { return !e.IsIn() }

// IsBulk reports whether the endpoint uses bulk transfers.
func (e EndpointDescriptor) IsBulk() bool { return e.BMAttributes&EndpointTypeMask == EndpointTypeBulk }

func (e EndpointDescriptor) String() string {
	dir := "OUT"
	if e.IsIn() {
		dir = "IN"
	}
	return fmt.Sprintf("ep%d %s (0x%02x, max %d)", e.Number(), dir, e.BEndpointAddress, e.WMaxPacketSize)
}

// SelectBulkPair picks the first bulk IN and first bulk OUT endpoint. It
// fails with ErrMissingEndpoint if either is absent.
func SelectBulkPair(eps []EndpointDescriptor) (in, out EndpointDescriptor, err error) {
	var haveIn, haveOut bool
	for _, ep := range eps {
		if !ep.IsBulk() {
			continue
		}
		if ep.IsIn() && !haveIn {
			in, haveIn = ep, true
		}
		if ep.IsOut() && !haveOut {
			out, haveOut = ep, true
		}
	}
	switch {
	case !haveIn && !haveOut:
		return in, out, fmt.Errorf("%w: no bulk IN or OUT endpoint", ErrMissingEndpoint)
	case !haveIn:
		return in, out, fmt.Errorf("%w: no bulk IN endpoint", ErrMissingEndpoint)
	case !haveOut:
		return in, out, fmt.Errorf("%w: no bulk OUT endpoint", ErrMissingEndpoint)
	}
	return in, out, nil
}
